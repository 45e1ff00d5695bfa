// Package errs defines the error-kind taxonomy shared across the
// session core (§7): sentinel kinds that component errors wrap with
// %w, so callers can branch with errors.Is without string matching.
package errs

import "errors"

var (
	// ErrToolMissing: the debug tool or agent binary cannot be located
	// or invoked. Surfaced once at startup; not retried automatically.
	ErrToolMissing = errors.New("tool missing")

	// ErrTransientConnect: socket accept timeout, agent exits non-zero
	// on startup. Retried by codec fallback, then by the reconnect loop.
	ErrTransientConnect = errors.New("transient connect failure")

	// ErrProtocolViolation: frame length over the limit, malformed
	// codec meta failing its sanity check, unreadable track-devices
	// hex. Fatal within a session; within the inventory tracker the
	// buffer is discarded and the tracker continues.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrCommandFailure: an individual ADB shell call failed. Yields a
	// degraded result with "Unknown" placeholders; never surfaced as a
	// session error.
	ErrCommandFailure = errors.New("command failure")

	// ErrUserCancel: session disposed during reconnect. Silent exit.
	ErrUserCancel = errors.New("user cancel")

	// ErrFatal: unexpected programming error in a listener callback.
	// Caught and logged; other listeners still run.
	ErrFatal = errors.New("fatal internal error")
)
