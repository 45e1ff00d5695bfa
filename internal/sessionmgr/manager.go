// Package sessionmgr implements the registry of active device
// sessions: the codec-fallback loop on add, the bounded-retry
// auto-reconnect loop, active-device pause/resume with last-frame
// replay, and removal with insertion-order active-slot handoff (§4.5).
// Allow/block-list bookkeeping is done by pkg/mirror, not here.
package sessionmgr

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/screenbridge/hostcore/internal/codec"
	"github.com/screenbridge/hostcore/internal/errs"
	"github.com/screenbridge/hostcore/internal/launcher"
	"github.com/screenbridge/hostcore/internal/logging"
	"github.com/screenbridge/hostcore/internal/protocol"
)

var log = logging.L("sessionmgr")

// fallbackOrder is the codec-fallback chain walked on connection
// failure: av1 -> h265 -> h264 -> none (§4.5).
var fallbackOrder = []codec.ID{codec.AV1, codec.H265, codec.H264}

func fallback(current codec.ID) (codec.ID, bool) {
	for i, c := range fallbackOrder {
		if c == current {
			if i+1 < len(fallbackOrder) {
				return fallbackOrder[i+1], true
			}
			return 0, false
		}
	}
	return 0, false
}

// Publisher is the narrow outbound contract the manager drives: media
// only flows for the active session, status/error/state changes flow
// for every session. pkg/mirror's storePublisher implements this on
// top of the State Store.
type Publisher interface {
	PublishAdded(serial, sessionID string)
	PublishMedia(serial string, ev protocol.Event)
	PublishStatus(serial, message string)
	PublishError(serial string, cause error)
	PublishConnState(serial string, state protocol.ConnState)
	PublishActive(serial string)
	PublishRemoved(serial string)
}

// AddOptions configures one AddDevice call; fields map directly onto
// the agent start argv schema (§6) via internal/launcher.
type AddOptions struct {
	Serial               string
	PreferredCodecs      []codec.ID
	AudioEnabled         bool
	BitRate              int
	MaxFPS               int
	MaxSize              int
	LockVideoOrientation int
	ClipboardAutosync    bool
	StayAwake            bool
	ShowTouches          bool
	PowerOffOnClose      bool
	ReconnectRetries     int
	ReconnectDelay       time.Duration
	AcceptTimeout        time.Duration
	LocalAgentPath       string
	AgentPushPath        string
}

type entry struct {
	mu sync.Mutex

	sessionID string
	serial    string
	opts      AddOptions

	session *protocol.Session
	handle  *entryHandle

	connState      protocol.ConnState
	isPaused       bool
	effectiveCodec codec.ID
	retryCount     int
	isReconnecting bool
	isDisposed     bool

	lastWidth        uint32
	lastHeight       uint32
	lastCodec        codec.ID
	lastConfigBlob   []byte
	lastKeyframeBlob []byte
}

// Manager is the registry of live sessions. One Manager serves the
// whole process; it is safe for concurrent use.
type Manager struct {
	mu         sync.Mutex
	entries    map[string]*entry
	insertion  []string // serials, in insertion order, for deterministic active handoff
	active     string
	pub        Publisher
	launcher   *launcher.Launcher
	adb        *launcher.Client
}

// New returns a Manager that drives sessions via launcher/adb and
// reports outcomes to pub.
func New(pub Publisher, l *launcher.Launcher, adb *launcher.Client) *Manager {
	return &Manager{
		entries:  make(map[string]*entry),
		pub:      pub,
		launcher: l,
		adb:      adb,
	}
}

// AddDevice mints a session_id, places the session in connecting,
// pauses the current active session, makes the new one active, then
// runs the codec-fallback loop (§4.5).
func (m *Manager) AddDevice(ctx context.Context, opts AddOptions) (string, error) {
	if len(opts.PreferredCodecs) == 0 {
		opts.PreferredCodecs = fallbackOrder
	}

	m.mu.Lock()
	if _, exists := m.entries[opts.Serial]; exists {
		m.mu.Unlock()
		return "", fmt.Errorf("%w: serial %s already has a session", errs.ErrFatal, opts.Serial)
	}

	sessionID := uuid.NewString()
	e := &entry{
		sessionID:      sessionID,
		serial:         opts.Serial,
		opts:           opts,
		connState:      protocol.StateConnecting,
		effectiveCodec: opts.PreferredCodecs[0],
	}
	m.entries[opts.Serial] = e
	m.insertion = append(m.insertion, opts.Serial)
	prevActive := m.active
	m.active = opts.Serial
	m.mu.Unlock()

	m.pub.PublishAdded(opts.Serial, sessionID)
	if prevActive != "" {
		m.setPaused(prevActive, true)
	}
	m.pub.PublishActive(opts.Serial)

	if err := m.runCodecFallback(ctx, e); err != nil {
		m.mu.Lock()
		delete(m.entries, opts.Serial)
		m.removeFromInsertion(opts.Serial)
		m.mu.Unlock()
		m.pub.PublishError(opts.Serial, err)
		return "", err
	}

	return sessionID, nil
}

// runCodecFallback implements the loop from §4.5's pseudocode.
func (m *Manager) runCodecFallback(ctx context.Context, e *entry) error {
	requested := e.effectiveCodec
	effective := requested

	for {
		if err := m.openSession(ctx, e, effective); err != nil {
			next, ok := fallback(effective)
			if !ok {
				e.mu.Lock()
				e.connState = protocol.StateDisconnected
				e.mu.Unlock()
				m.pub.PublishConnState(e.serial, protocol.StateDisconnected)
				return fmt.Errorf("%w: all codecs failed for %s: %v", errs.ErrTransientConnect, e.serial, err)
			}
			effective = next
			e.mu.Lock()
			e.effectiveCodec = effective
			e.mu.Unlock()
			continue
		}

		e.mu.Lock()
		e.connState = protocol.StateConnected
		e.mu.Unlock()
		m.pub.PublishConnState(e.serial, protocol.StateConnected)
		if effective != requested {
			m.pub.PublishStatus(e.serial, fmt.Sprintf("using %s (fallback from %s)", effective.Name(), requested.Name()))
		} else {
			m.pub.PublishStatus(e.serial, "")
		}
		return nil
	}
}

// openSession pushes the agent, starts it, opens the listening
// session, and accepts all sockets with the given codec.
func (m *Manager) openSession(ctx context.Context, e *entry, codecID codec.ID) error {
	handle := &entryHandle{mgr: m, serial: e.serial}
	sess := protocol.NewSession(e.serial, handle, codecID, e.opts.AudioEnabled, e.opts.AcceptTimeout)

	addr, err := sess.Listen()
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	if err := m.launcher.PushAgent(ctx, e.serial, e.opts.LocalAgentPath); err != nil {
		return err
	}

	statusCh := make(chan string, 8)
	exitCh := make(chan error, 1)
	err = m.launcher.Start(launcher.StartOptions{
		Serial:               e.serial,
		SessionID:            e.sessionID,
		LogLevel:             "info",
		BitRate:              e.opts.BitRate,
		MaxFPS:               e.opts.MaxFPS,
		MaxSize:              e.opts.MaxSize,
		LockVideoOrientation: e.opts.LockVideoOrientation,
		TunnelForward:        true,
		Control:              true,
		Audio:                e.opts.AudioEnabled,
		VideoCodec:           codecID.Name(),
		AudioCodec:           "opus",
		ClipboardAutosync:    e.opts.ClipboardAutosync,
		StayAwake:            e.opts.StayAwake,
		ShowTouches:          e.opts.ShowTouches,
		PowerOffOnClose:      e.opts.PowerOffOnClose,
		Cleanup:              true,
	}, func(line string) { statusCh <- line }, func(exitErr error) { exitCh <- exitErr })
	if err != nil {
		return err
	}

	localPort, err := portFromAddr(addr)
	if err != nil {
		m.launcher.Stop(e.serial)
		return err
	}
	socketName := fmt.Sprintf("screenbridge_%s", e.sessionID)
	if err := m.adb.Forward(ctx, 5*time.Second, e.serial, localPort, socketName); err != nil {
		m.launcher.Stop(e.serial)
		return err
	}

	acceptCtx, cancel := context.WithTimeout(ctx, e.opts.AcceptTimeout)
	defer cancel()
	if err := sess.Accept(acceptCtx); err != nil {
		m.launcher.Stop(e.serial)
		return fmt.Errorf("accept: %w", err)
	}

	go func() {
		for line := range statusCh {
			m.pub.PublishStatus(e.serial, line)
		}
	}()
	go func() {
		if err := <-exitCh; err != nil {
			m.onUnexpectedDisconnect(e.serial)
		}
	}()

	e.mu.Lock()
	e.session = sess
	e.handle = handle
	e.mu.Unlock()
	return nil
}

// SetActive makes serial the active session, pausing whichever session
// was previously active and replaying the newly active session's last
// cached frame state.
func (m *Manager) SetActive(serial string) error {
	m.mu.Lock()
	e, ok := m.entries[serial]
	prevActive := m.active
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: unknown serial %s", errs.ErrFatal, serial)
	}
	m.active = serial
	m.mu.Unlock()

	if prevActive == serial {
		return nil
	}
	if prevActive != "" {
		m.setPaused(prevActive, true)
	}
	m.setPaused(serial, false)
	m.pub.PublishActive(serial)

	e.mu.Lock()
	events := replayEvents(e)
	e.mu.Unlock()
	for _, ev := range events {
		m.pub.PublishMedia(serial, ev)
	}
	return nil
}

func (m *Manager) setPaused(serial string, paused bool) {
	m.mu.Lock()
	e, ok := m.entries[serial]
	m.mu.Unlock()
	if !ok {
		return
	}
	e.mu.Lock()
	e.isPaused = paused
	e.mu.Unlock()
}

// Remove marks serial's session disposed, disconnects it, and removes
// it from the registry. If it held the active slot, the slot hands off
// to the first remaining session by insertion order.
func (m *Manager) Remove(serial string) {
	m.mu.Lock()
	e, ok := m.entries[serial]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.entries, serial)
	m.removeFromInsertion(serial)
	wasActive := m.active == serial
	if wasActive {
		m.active = ""
	}
	var handoff string
	if wasActive && len(m.insertion) > 0 {
		handoff = m.insertion[0]
		m.active = handoff
	}
	m.mu.Unlock()

	e.mu.Lock()
	e.isDisposed = true
	sess := e.session
	e.mu.Unlock()
	if sess != nil {
		sess.Close()
	}
	m.launcher.Stop(serial)

	m.pub.PublishRemoved(serial)
	if handoff != "" {
		m.setPaused(handoff, false)
		m.pub.PublishActive(handoff)
		m.mu.Lock()
		h := m.entries[handoff]
		m.mu.Unlock()
		if h != nil {
			h.mu.Lock()
			events := replayEvents(h)
			h.mu.Unlock()
			for _, ev := range events {
				m.pub.PublishMedia(handoff, ev)
			}
		}
	}
}

// SendControl forwards frame to serial's active control socket.
func (m *Manager) SendControl(serial string, frame []byte) error {
	m.mu.Lock()
	e, ok := m.entries[serial]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: unknown serial %s", errs.ErrFatal, serial)
	}
	e.mu.Lock()
	sess := e.session
	e.mu.Unlock()
	if sess == nil {
		return fmt.Errorf("%w: %s has no open session", errs.ErrTransientConnect, serial)
	}
	return sess.SendControl(frame)
}

func portFromAddr(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed listen address %s: %v", errs.ErrFatal, addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, fmt.Errorf("%w: non-numeric listen port in %s: %v", errs.ErrFatal, addr, err)
	}
	return port, nil
}

func (m *Manager) removeFromInsertion(serial string) {
	for i, s := range m.insertion {
		if s == serial {
			m.insertion = append(m.insertion[:i], m.insertion[i+1:]...)
			return
		}
	}
}

// onSessionEvent is the protocol.SessionHandle callback: it caches
// last-frame state and gates outbound media on the active/paused
// status before forwarding to the publisher.
func (m *Manager) onSessionEvent(serial string, ev protocol.Event) {
	m.mu.Lock()
	e, ok := m.entries[serial]
	m.mu.Unlock()
	if !ok {
		return
	}

	e.mu.Lock()
	switch ev.Kind {
	case protocol.EventVideo:
		if ev.IsConfig {
			e.lastWidth = ev.Width
			e.lastHeight = ev.Height
			e.lastCodec = ev.Codec
			e.lastConfigBlob = ev.Payload
		} else if ev.IsKeyFrame {
			e.lastKeyframeBlob = ev.Payload
		}
	}
	paused := e.isPaused
	e.mu.Unlock()

	switch ev.Kind {
	case protocol.EventVideo, protocol.EventAudio:
		if paused {
			return
		}
		m.pub.PublishMedia(serial, ev)
	case protocol.EventClipboard:
		m.pub.PublishMedia(serial, ev)
	case protocol.EventError:
		m.pub.PublishError(serial, ev.Cause)
	case protocol.EventStatus:
		m.pub.PublishStatus(serial, ev.Text)
	}
}

// onUnexpectedDisconnect starts the auto-reconnect loop for serial, if
// the session is still connected and not disposed.
func (m *Manager) onUnexpectedDisconnect(serial string) {
	m.mu.Lock()
	e, ok := m.entries[serial]
	m.mu.Unlock()
	if !ok {
		return
	}
	e.mu.Lock()
	eligible := !e.isDisposed && e.connState == protocol.StateConnected
	e.mu.Unlock()
	if !eligible {
		return
	}
	go m.reconnectLoop(context.Background(), e)
}
