package sessionmgr

import (
	"github.com/screenbridge/hostcore/internal/protocol"
)

// entryHandle adapts one registry entry to protocol.SessionHandle,
// routing emitted events back through the manager so it can apply
// active/paused gating and cache last-frame state before anything
// reaches subscribers (§4.5).
type entryHandle struct {
	mgr    *Manager
	serial string
}

func (h *entryHandle) ReportEvent(ev protocol.Event) {
	h.mgr.onSessionEvent(h.serial, ev)
}

func (h *entryHandle) RequestReconnectTick() {
	h.mgr.onUnexpectedDisconnect(h.serial)
}

// replayEvents builds the synthetic config+media pair used both when a
// session first becomes active and when resuming after pause, per the
// exact ordering in §4.5: a config event carrying (last_width,
// last_height, last_codec) and last_config_blob, then a media event
// carrying last_keyframe_blob.
func replayEvents(e *entry) []protocol.Event {
	var events []protocol.Event
	if e.lastWidth != 0 || e.lastHeight != 0 || e.lastCodec != 0 {
		events = append(events, protocol.Event{
			Kind:   protocol.EventVideo,
			Width:  e.lastWidth,
			Height: e.lastHeight,
			Codec:  e.lastCodec,
			Payload: e.lastConfigBlob,
			IsConfig: true,
		})
	}
	if e.lastKeyframeBlob != nil {
		events = append(events, protocol.Event{
			Kind:       protocol.EventVideo,
			Payload:    e.lastKeyframeBlob,
			IsKeyFrame: true,
			Codec:      e.lastCodec,
		})
	}
	return events
}
