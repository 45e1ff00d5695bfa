package sessionmgr

import (
	"context"
	"fmt"
	"time"

	"github.com/screenbridge/hostcore/internal/errs"
	"github.com/screenbridge/hostcore/internal/protocol"
)

func errReconnectExhausted(serial string) error {
	return fmt.Errorf("%w: reconnect retries exhausted for %s", errs.ErrTransientConnect, serial)
}

// reconnectDelay is the default inter-attempt delay for auto-reconnect
// (§4.5), used when AddOptions.ReconnectDelay is not positive. Unlike AddDevice's codec-fallback loop, reconnect never
// renegotiates codec — it always rebuilds with the session's current
// effective_codec.
const reconnectDelay = 1500 * time.Millisecond

// reconnectLoop runs the bounded-retry auto-reconnect sequence for an
// unexpectedly-disconnected, still-connected (not disposed) session.
// Disposal is cancel-safe: a Remove() that fires mid-loop is observed
// on the next retry check and the loop exits silently.
func (m *Manager) reconnectLoop(ctx context.Context, e *entry) {
	for {
		e.mu.Lock()
		if e.isDisposed {
			e.mu.Unlock()
			return
		}
		retries := e.opts.ReconnectRetries
		if e.retryCount >= retries {
			e.mu.Unlock()
			m.exhaustReconnect(e)
			return
		}
		e.isReconnecting = true
		e.connState = protocol.StateReconnecting
		effective := e.effectiveCodec
		e.mu.Unlock()

		m.pub.PublishConnState(e.serial, protocol.StateReconnecting)

		delay := reconnectDelay
		if e.opts.ReconnectDelay > 0 {
			delay = e.opts.ReconnectDelay
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}

		e.mu.Lock()
		if e.isDisposed {
			e.mu.Unlock()
			return
		}
		e.mu.Unlock()

		if err := m.openSession(ctx, e, effective); err != nil {
			log.Warn("reconnect attempt failed", "serial", e.serial, "error", err)
			e.mu.Lock()
			e.retryCount++
			e.mu.Unlock()
			continue
		}

		e.mu.Lock()
		e.isReconnecting = false
		e.retryCount = 0
		e.connState = protocol.StateConnected
		e.mu.Unlock()
		m.pub.PublishConnState(e.serial, protocol.StateConnected)
		return
	}
}

// exhaustReconnect drops a session whose retries are exhausted,
// removing it from the store and handing off the active slot if it
// held one (§4.5).
func (m *Manager) exhaustReconnect(e *entry) {
	e.mu.Lock()
	e.connState = protocol.StateDisconnected
	e.mu.Unlock()
	m.pub.PublishConnState(e.serial, protocol.StateDisconnected)
	m.pub.PublishError(e.serial, errReconnectExhausted(e.serial))
	m.Remove(e.serial)
}
