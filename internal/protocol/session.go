package protocol

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/screenbridge/hostcore/internal/codec"
	"github.com/screenbridge/hostcore/internal/logging"
	"github.com/screenbridge/hostcore/internal/wire"
)

var log = logging.L("protocol")

// ConnState mirrors the Session lifecycle states from §3.
type ConnState int

const (
	StateConnecting ConnState = iota
	StateConnected
	StateDisconnected
	StateReconnecting
)

// Session owns the three sockets for one device (§4.2): video, audio
// (if enabled), and control, opened by the agent in that fixed order.
// The host side listens; the agent connects in. ReportEvent on the
// SessionHandle may be called concurrently from the video, audio, and
// control read loops — implementations must be safe for concurrent use.
type Session struct {
	serial        string
	handle        SessionHandle
	codec         codec.ID
	audioEnabled  bool
	acceptTimeout time.Duration

	listener net.Listener

	videoConn   net.Conn
	audioConn   net.Conn
	controlConn net.Conn

	mu          sync.Mutex
	curWidth    uint32
	curHeight   uint32
	lastClip    string
	closed      bool
	closeOnce   sync.Once
	wg          sync.WaitGroup
}

// NewSession constructs a Session for serial, talking the given codec.
func NewSession(serial string, handle SessionHandle, codecID codec.ID, audioEnabled bool, acceptTimeout time.Duration) *Session {
	return &Session{
		serial:        serial,
		handle:        handle,
		codec:         codecID,
		audioEnabled:  audioEnabled,
		acceptTimeout: acceptTimeout,
	}
}

// Listen binds the local tunnel port the debug tool forwards the
// agent's outgoing connections to, and returns its address.
func (s *Session) Listen() (string, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("protocol: listen: %w", err)
	}
	s.listener = l
	return l.Addr().String(), nil
}

// Accept blocks accepting the video, (optionally) audio, then control
// sockets in order, each bounded by acceptTimeout, then starts the read
// loops. The listener is closed once all expected sockets are accepted
// or the deadline expires.
func (s *Session) Accept(ctx context.Context) error {
	defer s.listener.Close()

	var err error
	if s.videoConn, err = s.acceptOne(); err != nil {
		return fmt.Errorf("protocol: accept video: %w", err)
	}
	if s.audioEnabled {
		if s.audioConn, err = s.acceptOne(); err != nil {
			return fmt.Errorf("protocol: accept audio: %w", err)
		}
	}
	if s.controlConn, err = s.acceptOne(); err != nil {
		return fmt.Errorf("protocol: accept control: %w", err)
	}

	s.wg.Add(1)
	go s.runVideoLoop()
	if s.audioEnabled {
		s.wg.Add(1)
		go s.runAudioLoop()
	}
	s.wg.Add(1)
	go s.runControlLoop()

	return nil
}

func (s *Session) acceptOne() (net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := s.listener.Accept()
		ch <- result{conn, err}
	}()

	select {
	case r := <-ch:
		return r.conn, r.err
	case <-time.After(s.acceptTimeout):
		return nil, fmt.Errorf("accept timeout after %s", s.acceptTimeout)
	}
}

// Close tears down all sockets and waits for the read loops to exit.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		if s.videoConn != nil {
			s.videoConn.Close()
		}
		if s.audioConn != nil {
			s.audioConn.Close()
		}
		if s.controlConn != nil {
			s.controlConn.Close()
		}
	})
	s.wg.Wait()
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) runVideoLoop() {
	defer s.wg.Done()
	r := wire.NewReader(wire.ModeDeviceName)
	buf := make([]byte, 64*1024)

	for !s.isClosed() {
		n, err := s.videoConn.Read(buf)
		if n > 0 {
			r.Feed(buf[:n])
			if ferr := s.drainVideoFrames(r); ferr != nil {
				s.emitError("video protocol error", ferr)
				return
			}
		}
		if err != nil {
			if !s.isClosed() {
				s.emitError("video socket closed", err)
			}
			return
		}
	}
}

func (s *Session) drainVideoFrames(r *wire.Reader) error {
	for {
		frame, ok, err := r.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		switch f := frame.(type) {
		case *wire.DeviceNameFrame:
			log.Debug("device name", "serial", s.serial, "name", f.Name)
			r.SetMode(wire.ModeVideoCodecMeta)

		case *wire.CodecMetaFrame:
			s.mu.Lock()
			s.curWidth, s.curHeight = f.Width, f.Height
			s.mu.Unlock()
			s.handle.ReportEvent(Event{
				Kind:     EventVideo,
				IsConfig: true,
				Width:    f.Width,
				Height:   f.Height,
				Codec:    f.Codec,
			})
			r.SetMode(wire.ModeMediaPacket)

		case *wire.MediaPacketFrame:
			s.handleVideoPacket(f)
		}
	}
}

// handleVideoPacket applies the in-loop re-config detection from §4.2:
// a 12-byte payload that parses as plausible video dimensions is
// treated as a rotation/resolution change, whether or not the agent
// also sets is_config (the source's two shapes, per the open question
// in §9, are both accepted here). Failing that, an H.264 payload
// carrying a fresh SPS (detected via the codec package's Annex B
// helpers) is treated the same way, covering agents that re-signal a
// resolution change in-band rather than with either out-of-band shape.
func (s *Session) handleVideoPacket(f *wire.MediaPacketFrame) {
	if reconf, ok := s.tryReconfig(f); ok {
		s.handle.ReportEvent(reconf)
		return
	}
	if reconf, ok := s.tryParamSetReconfig(f); ok {
		s.handle.ReportEvent(reconf)
		return
	}

	if s.codec == codec.H264 || s.codec == codec.H265 {
		if f.IsKeyFrame != codec.IsKeyFrame(s.codec, f.Payload) {
			log.Debug("wire key-frame bit disagrees with NAL sniff", "serial", s.serial, "wireBit", f.IsKeyFrame)
		}
	}

	ev := Event{
		Kind:       EventVideo,
		Payload:    f.Payload,
		IsConfig:   f.IsConfig,
		IsKeyFrame: f.IsKeyFrame,
	}
	if f.IsConfig {
		s.mu.Lock()
		ev.Width, ev.Height = s.curWidth, s.curHeight
		s.mu.Unlock()
		ev.Codec = s.codec
	}
	s.handle.ReportEvent(ev)
}

// tryParamSetReconfig detects an in-band parameter-set refresh (a fresh
// SPS arriving mid-stream, distinct from the bare-dimension shapes
// tryReconfig handles) and recovers the new dimensions from it. AV1 has
// no Annex B framing and is left to the out-of-band shapes.
func (s *Session) tryParamSetReconfig(f *wire.MediaPacketFrame) (Event, bool) {
	if s.codec != codec.H264 || !codec.ContainsParameterSets(s.codec, f.Payload) {
		return Event{}, false
	}

	var width, height uint32
	found := false
	for _, nal := range codec.SplitAnnexB(f.Payload) {
		if w, h, ok := codec.ParseH264SPSDimensions(nal); ok {
			width, height = w, h
			found = true
			break
		}
	}
	if !found {
		return Event{}, false
	}

	s.mu.Lock()
	unchanged := width == s.curWidth && height == s.curHeight
	if !unchanged {
		s.curWidth, s.curHeight = width, height
	}
	s.mu.Unlock()
	if unchanged {
		return Event{}, false
	}

	return Event{
		Kind:     EventVideo,
		IsConfig: true,
		Width:    width,
		Height:   height,
		Codec:    s.codec,
	}, true
}

func (s *Session) tryReconfig(f *wire.MediaPacketFrame) (Event, bool) {
	if len(f.Payload) != 12 {
		return Event{}, false
	}

	width := beUint32(f.Payload[4:8])
	height := beUint32(f.Payload[8:12])
	if width >= 10000 || height >= 10000 {
		return Event{}, false
	}

	s.mu.Lock()
	unchanged := width == s.curWidth && height == s.curHeight
	if !unchanged {
		s.curWidth, s.curHeight = width, height
	}
	s.mu.Unlock()
	if unchanged {
		return Event{}, false
	}

	return Event{
		Kind:     EventVideo,
		IsConfig: true,
		Width:    width,
		Height:   height,
		Codec:    s.codec,
	}, true
}

func (s *Session) runAudioLoop() {
	defer s.wg.Done()
	r := wire.NewReader(wire.ModeAudioCodecMeta)
	buf := make([]byte, 64*1024)

	for !s.isClosed() {
		n, err := s.audioConn.Read(buf)
		if n > 0 {
			r.Feed(buf[:n])
			for {
				frame, ok, ferr := r.Next()
				if ferr != nil {
					s.emitError("audio protocol error", ferr)
					return
				}
				if !ok {
					break
				}
				switch f := frame.(type) {
				case *wire.CodecMetaFrame:
					s.handle.ReportEvent(Event{Kind: EventAudio, IsConfig: true, Codec: f.Codec})
					r.SetMode(wire.ModeMediaPacket)
				case *wire.MediaPacketFrame:
					s.handle.ReportEvent(Event{Kind: EventAudio, Payload: f.Payload})
				}
			}
		}
		if err != nil {
			if !s.isClosed() {
				s.emitError("audio socket closed", err)
			}
			return
		}
	}
}

func (s *Session) runControlLoop() {
	defer s.wg.Done()
	r := wire.NewReader(wire.ModeDeviceMessage)
	buf := make([]byte, 4096)

	for !s.isClosed() {
		n, err := s.controlConn.Read(buf)
		if n > 0 {
			r.Feed(buf[:n])
			for {
				frame, ok, ferr := r.Next()
				if ferr != nil {
					s.emitError("control protocol error", ferr)
					return
				}
				if !ok {
					break
				}
				dm := frame.(*wire.DeviceMessageFrame)
				s.handleDeviceMessage(dm)
			}
		}
		if err != nil {
			if !s.isClosed() {
				s.emitError("control socket closed", err)
			}
			return
		}
	}
}

func (s *Session) handleDeviceMessage(dm *wire.DeviceMessageFrame) {
	switch dm.Tag {
	case wire.TagClipboard:
		s.mu.Lock()
		dup := dm.Clipboard == s.lastClip
		if !dup {
			s.lastClip = dm.Clipboard
		}
		s.mu.Unlock()
		if !dup {
			s.handle.ReportEvent(Event{Kind: EventClipboard, Text: dm.Clipboard})
		}
	case wire.TagAckClipboard, wire.TagUHIDOutput:
		// Observability only (§4.2); no event is forwarded.
	}
}

// SendControl writes a pre-encoded control frame to the control socket.
func (s *Session) SendControl(frame []byte) error {
	if s.controlConn == nil {
		return fmt.Errorf("protocol: control socket not connected")
	}
	_, err := s.controlConn.Write(frame)
	return err
}

func (s *Session) emitError(text string, cause error) {
	s.handle.ReportEvent(Event{Kind: EventError, Text: text, Cause: cause})
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
