package mirror

import (
	"sync"

	"github.com/screenbridge/hostcore/internal/protocol"
)

// MediaListener receives the video/audio events of the Session
// Manager's active session and the clipboard events of every session;
// status and error events go to the State Store instead (§2's C6 ->
// subscribers data flow: raw codec bitstream chunks to a downstream
// decoder).
type MediaListener func(serial string, ev protocol.Event)

// mediaBus fans out Session Manager media events to Client subscribers,
// independent of the State Store's batched-snapshot notifications,
// mirroring the Store's own token-based Subscribe/Unsubscribe shape.
type mediaBus struct {
	mu        sync.Mutex
	listeners map[int]MediaListener
	nextID    int
}

func newMediaBus() *mediaBus {
	return &mediaBus{listeners: make(map[int]MediaListener)}
}

// subscribe registers l and returns an unsubscribe func; after it
// returns, l receives zero further events.
func (b *mediaBus) subscribe(l MediaListener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = l
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners, id)
	}
}

func (b *mediaBus) publish(serial string, ev protocol.Event) {
	b.mu.Lock()
	listeners := make([]MediaListener, 0, len(b.listeners))
	for _, l := range b.listeners {
		listeners = append(listeners, l)
	}
	b.mu.Unlock()

	for _, l := range listeners {
		safeNotifyMedia(l, serial, ev)
	}
}

func safeNotifyMedia(l MediaListener, serial string, ev protocol.Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("media listener panicked", "panic", r)
		}
	}()
	l(serial, ev)
}
