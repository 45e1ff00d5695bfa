package mirror

import (
	"testing"
	"time"

	"github.com/screenbridge/hostcore/internal/protocol"
	"github.com/screenbridge/hostcore/internal/store"
)

type nopPersister struct{}

func (nopPersister) LoadAllowList() []string                            { return nil }
func (nopPersister) SaveAllowList([]string) error                       { return nil }
func (nopPersister) LoadBlockList() []string                            { return nil }
func (nopPersister) SaveBlockList([]string) error                       { return nil }
func (nopPersister) LoadUIPreferences() map[string]store.UIPreferences  { return map[string]store.UIPreferences{} }
func (nopPersister) SaveUIPreferences(map[string]store.UIPreferences) error { return nil }

func waitForSnapshot(t *testing.T, ch chan store.Snapshot) store.Snapshot {
	t.Helper()
	select {
	case snap := <-ch:
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a snapshot")
		return store.Snapshot{}
	}
}

func TestStorePublisherPublishAddedCreatesSession(t *testing.T) {
	st := store.New(nopPersister{})
	defer st.Close()
	pub := &storePublisher{st: st}

	ch := make(chan store.Snapshot, 8)
	st.Subscribe(func(snap store.Snapshot) { ch <- snap })

	pub.PublishAdded("dev-1", "sess-1")

	snap := waitForSnapshot(t, ch)
	if len(snap.Sessions) != 1 || snap.Sessions[0].SessionID != "sess-1" {
		t.Fatalf("expected one session sess-1, got %+v", snap.Sessions)
	}
}

func TestStorePublisherPublishConnStateResolvesSessionID(t *testing.T) {
	st := store.New(nopPersister{})
	defer st.Close()
	pub := &storePublisher{st: st}

	ch := make(chan store.Snapshot, 8)
	st.Subscribe(func(snap store.Snapshot) { ch <- snap })

	pub.PublishAdded("dev-1", "sess-1")
	waitForSnapshot(t, ch)

	pub.PublishConnState("dev-1", protocol.StateConnected)
	snap := waitForSnapshot(t, ch)
	if snap.Sessions[0].ConnState != protocol.StateConnected {
		t.Fatalf("expected state connected, got %+v", snap.Sessions[0])
	}
}

func TestStorePublisherPublishConnStateNoOpForUnknownSerial(t *testing.T) {
	st := store.New(nopPersister{})
	defer st.Close()
	pub := &storePublisher{st: st}

	pub.PublishConnState("unknown", protocol.StateConnected)

	snap := st.Snapshot()
	if len(snap.Sessions) != 0 {
		t.Fatalf("expected no sessions, got %+v", snap.Sessions)
	}
}

func TestStorePublisherPublishMediaReachesMediaBusSubscriber(t *testing.T) {
	st := store.New(nopPersister{})
	defer st.Close()
	media := newMediaBus()
	pub := &storePublisher{st: st, media: media}

	ch := make(chan protocol.Event, 1)
	media.subscribe(func(serial string, ev protocol.Event) {
		if serial != "dev-1" {
			t.Errorf("expected serial dev-1, got %q", serial)
		}
		ch <- ev
	})

	pub.PublishMedia("dev-1", protocol.Event{Kind: protocol.EventVideo, IsKeyFrame: true})

	select {
	case ev := <-ch:
		if ev.Kind != protocol.EventVideo || !ev.IsKeyFrame {
			t.Fatalf("expected key-frame video event, got %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for media event")
	}
}

func TestStorePublisherPublishMediaNilBusIsNoOp(t *testing.T) {
	st := store.New(nopPersister{})
	defer st.Close()
	pub := &storePublisher{st: st}

	pub.PublishMedia("dev-1", protocol.Event{Kind: protocol.EventVideo})
}

func TestStorePublisherPublishRemovedClearsSession(t *testing.T) {
	st := store.New(nopPersister{})
	defer st.Close()
	pub := &storePublisher{st: st}

	ch := make(chan store.Snapshot, 8)
	st.Subscribe(func(snap store.Snapshot) { ch <- snap })

	pub.PublishAdded("dev-1", "sess-1")
	waitForSnapshot(t, ch)

	pub.PublishRemoved("dev-1")
	snap := waitForSnapshot(t, ch)
	if len(snap.Sessions) != 0 {
		t.Fatalf("expected session removed, got %+v", snap.Sessions)
	}
}
