package sessionmgr

import (
	"sync"
	"testing"

	"github.com/screenbridge/hostcore/internal/codec"
	"github.com/screenbridge/hostcore/internal/launcher"
	"github.com/screenbridge/hostcore/internal/protocol"
)

type fakePublisher struct {
	mu         sync.Mutex
	media      []string
	statuses   []string
	errs       []string
	connStates []protocol.ConnState
	active     []string
	removed    []string
}

func (p *fakePublisher) PublishAdded(serial, sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
}
func (p *fakePublisher) PublishMedia(serial string, ev protocol.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.media = append(p.media, serial)
}
func (p *fakePublisher) PublishStatus(serial, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses = append(p.statuses, serial+":"+message)
}
func (p *fakePublisher) PublishError(serial string, cause error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs = append(p.errs, serial)
}
func (p *fakePublisher) PublishConnState(serial string, state protocol.ConnState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connStates = append(p.connStates, state)
}
func (p *fakePublisher) PublishActive(serial string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = append(p.active, serial)
}
func (p *fakePublisher) PublishRemoved(serial string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removed = append(p.removed, serial)
}

func TestFallbackOrderAV1ToH265ToH264ToNone(t *testing.T) {
	next, ok := fallback(codec.AV1)
	if !ok || next != codec.H265 {
		t.Fatalf("expected h265, got %v ok=%v", next, ok)
	}
	next, ok = fallback(codec.H265)
	if !ok || next != codec.H264 {
		t.Fatalf("expected h264, got %v ok=%v", next, ok)
	}
	_, ok = fallback(codec.H264)
	if ok {
		t.Fatal("expected no further fallback from h264")
	}
}

func TestReplayEventsOrderingConfigThenKeyframe(t *testing.T) {
	e := &entry{
		lastWidth:        1280,
		lastHeight:       720,
		lastCodec:        codec.H264,
		lastConfigBlob:   []byte{0xAA},
		lastKeyframeBlob: []byte{0xBB},
	}
	events := replayEvents(e)
	if len(events) != 2 {
		t.Fatalf("expected 2 replay events, got %d", len(events))
	}
	if !events[0].IsConfig || events[0].Width != 1280 || events[0].Height != 720 {
		t.Fatalf("expected first event to be the config replay, got %+v", events[0])
	}
	if !events[1].IsKeyFrame || string(events[1].Payload) != "\xbb" {
		t.Fatalf("expected second event to be the keyframe replay, got %+v", events[1])
	}
}

func TestReplayEventsEmptyWhenNoCachedState(t *testing.T) {
	e := &entry{}
	if events := replayEvents(e); len(events) != 0 {
		t.Fatalf("expected no replay events for a fresh entry, got %v", events)
	}
}

func TestOnSessionEventDropsMediaWhilePaused(t *testing.T) {
	pub := &fakePublisher{}
	m := New(pub, nil, nil)
	e := &entry{serial: "dev-1", isPaused: true}
	m.entries["dev-1"] = e

	m.onSessionEvent("dev-1", protocol.Event{Kind: protocol.EventVideo, Payload: []byte{1}})

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.media) != 0 {
		t.Fatalf("expected paused session's media to be dropped, got %v", pub.media)
	}
}

func TestOnSessionEventForwardsMediaWhenActive(t *testing.T) {
	pub := &fakePublisher{}
	m := New(pub, nil, nil)
	e := &entry{serial: "dev-1", isPaused: false}
	m.entries["dev-1"] = e

	m.onSessionEvent("dev-1", protocol.Event{Kind: protocol.EventVideo, Payload: []byte{1}})

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.media) != 1 {
		t.Fatalf("expected one media publish, got %v", pub.media)
	}
}

func TestOnSessionEventCachesConfigAndKeyframe(t *testing.T) {
	pub := &fakePublisher{}
	m := New(pub, nil, nil)
	e := &entry{serial: "dev-1"}
	m.entries["dev-1"] = e

	m.onSessionEvent("dev-1", protocol.Event{
		Kind: protocol.EventVideo, IsConfig: true, Width: 1920, Height: 1080, Codec: codec.H265, Payload: []byte{0x01},
	})
	m.onSessionEvent("dev-1", protocol.Event{
		Kind: protocol.EventVideo, IsKeyFrame: true, Payload: []byte{0x02},
	})

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastWidth != 1920 || e.lastHeight != 1080 || e.lastCodec != codec.H265 {
		t.Fatalf("config cache not updated: %+v", e)
	}
	if string(e.lastKeyframeBlob) != "\x02" {
		t.Fatalf("keyframe cache not updated: %+v", e)
	}
}

// TestRemoveHandsOffActiveSlotByInsertionOrder exercises §4.5's
// deterministic handoff rule: when the active session is removed, the
// slot passes to the first remaining session by insertion order, not
// by any other heuristic.
func TestRemoveHandsOffActiveSlotByInsertionOrder(t *testing.T) {
	pub := &fakePublisher{}
	m := New(pub, launcher.New(launcher.NewClient(""), "/tmp/agent"), launcher.NewClient(""))

	first := &entry{serial: "dev-1"}
	second := &entry{serial: "dev-2"}
	m.entries["dev-1"] = first
	m.entries["dev-2"] = second
	m.insertion = []string{"dev-1", "dev-2"}
	m.active = "dev-1"

	m.Remove("dev-1")

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != "dev-2" {
		t.Fatalf("expected handoff to dev-2, got active=%q", m.active)
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.active) == 0 || pub.active[len(pub.active)-1] != "dev-2" {
		t.Fatalf("expected PublishActive(dev-2), got %v", pub.active)
	}
	if len(pub.removed) != 1 || pub.removed[0] != "dev-1" {
		t.Fatalf("expected PublishRemoved(dev-1), got %v", pub.removed)
	}
}

func TestRemoveOfNonActiveSessionLeavesActiveUnchanged(t *testing.T) {
	pub := &fakePublisher{}
	m := New(pub, launcher.New(launcher.NewClient(""), "/tmp/agent"), launcher.NewClient(""))

	first := &entry{serial: "dev-1"}
	second := &entry{serial: "dev-2"}
	m.entries["dev-1"] = first
	m.entries["dev-2"] = second
	m.insertion = []string{"dev-1", "dev-2"}
	m.active = "dev-1"

	m.Remove("dev-2")

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != "dev-1" {
		t.Fatalf("expected active to remain dev-1, got %q", m.active)
	}
}
