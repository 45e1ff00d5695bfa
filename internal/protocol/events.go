package protocol

import "github.com/screenbridge/hostcore/internal/codec"

// EventKind tags the variant carried by an Event.
type EventKind int

const (
	EventVideo EventKind = iota
	EventAudio
	EventStatus
	EventError
	EventClipboard
)

// Event is the single typed union delivered from a Session to its
// SessionHandle, replacing the source's separate on_video/on_audio/
// on_status/on_error/on_clipboard callback fields (§9 "Callbacks →
// events").
type Event struct {
	Kind EventKind

	// EventVideo / EventAudio
	Payload    []byte
	IsConfig   bool
	IsKeyFrame bool
	Width      uint32
	Height     uint32
	Codec      codec.ID

	// EventStatus / EventError
	Text  string
	Cause error
}

// SessionHandle is the narrow interface a Session uses to reach back
// into its owner, avoiding a cyclic reference to the full Session
// Manager (§9 "Cyclic references between Session and SessionManager").
type SessionHandle interface {
	ReportEvent(Event)
	RequestReconnectTick()
}
