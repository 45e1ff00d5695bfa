package protocol

import (
	"encoding/binary"
	"math"
)

// Outgoing control message type tags (host -> device), a fixed leading
// byte followed by type-specific big-endian fields. Layout follows the
// well-known Android-mirroring control-message schema (§4.2); values
// and field order must stay bit-identical to the agent's decoder.
const (
	ctrlInjectKeycode     byte = 0
	ctrlInjectText        byte = 1
	ctrlInjectTouchEvent  byte = 2
	ctrlInjectScrollEvent byte = 3
	ctrlExpandNotification byte = 5
	ctrlExpandSettings    byte = 6
	ctrlCollapsePanels    byte = 7
	ctrlSetClipboard      byte = 9
	ctrlRotateDevice      byte = 11
)

// Touch actions, matching the Android MotionEvent action constants the
// agent expects verbatim.
const (
	ActionDown = 0
	ActionUp   = 1
	ActionMove = 2
)

// Key actions, matching Android KeyEvent.ACTION_DOWN/ACTION_UP.
const (
	KeyActionDown = 0
	KeyActionUp   = 1
)

// pointerIDMouse is the scrcpy-style reserved pointer id for a
// single-point (mouse-like) touch event.
const pointerIDMouse = ^uint64(0)

// EncodeTouch builds an INJECT_TOUCH_EVENT frame for a single contact
// point at (x, y) within the device's screenW x screenH frame; the
// coordinates are written as given, without any scaling.
func EncodeTouch(action int, x, y int32, screenW, screenH uint16, pressure float32) []byte {
	buf := make([]byte, 1+1+8+4+4+2+2+2+4+4)
	i := 0
	buf[i] = ctrlInjectTouchEvent
	i++
	buf[i] = byte(action)
	i++
	binary.BigEndian.PutUint64(buf[i:], pointerIDMouse)
	i += 8
	binary.BigEndian.PutUint32(buf[i:], uint32(x))
	i += 4
	binary.BigEndian.PutUint32(buf[i:], uint32(y))
	i += 4
	binary.BigEndian.PutUint16(buf[i:], screenW)
	i += 2
	binary.BigEndian.PutUint16(buf[i:], screenH)
	i += 2
	binary.BigEndian.PutUint16(buf[i:], floatToFixed16(pressure))
	i += 2
	binary.BigEndian.PutUint32(buf[i:], 1) // action_button: primary
	i += 4
	binary.BigEndian.PutUint32(buf[i:], 1) // buttons: primary pressed
	return buf
}

// TouchPoint is one contact in a multi-touch gesture.
type TouchPoint struct {
	PointerID uint64
	X, Y      int32
	Pressure  float32
}

// EncodeMultiTouch builds a sequence of INJECT_TOUCH_EVENT frames, one
// per contact point, sharing the same action and screen dimensions. The
// agent has no dedicated multi-touch message; multiple simultaneous
// contacts are represented as distinct pointer ids across frames.
func EncodeMultiTouch(action int, points []TouchPoint, screenW, screenH uint16) [][]byte {
	frames := make([][]byte, 0, len(points))
	for _, p := range points {
		buf := make([]byte, 1+1+8+4+4+2+2+2+4+4)
		i := 0
		buf[i] = ctrlInjectTouchEvent
		i++
		buf[i] = byte(action)
		i++
		binary.BigEndian.PutUint64(buf[i:], p.PointerID)
		i += 8
		binary.BigEndian.PutUint32(buf[i:], uint32(p.X))
		i += 4
		binary.BigEndian.PutUint32(buf[i:], uint32(p.Y))
		i += 4
		binary.BigEndian.PutUint16(buf[i:], screenW)
		i += 2
		binary.BigEndian.PutUint16(buf[i:], screenH)
		i += 2
		binary.BigEndian.PutUint16(buf[i:], floatToFixed16(p.Pressure))
		i += 2
		binary.BigEndian.PutUint32(buf[i:], 1)
		i += 4
		binary.BigEndian.PutUint32(buf[i:], 1)
		frames = append(frames, buf)
	}
	return frames
}

// EncodeScroll builds an INJECT_SCROLL_EVENT frame.
func EncodeScroll(x, y int32, screenW, screenH uint16, hScroll, vScroll float32) []byte {
	buf := make([]byte, 1+4+4+2+2+2+2+4)
	i := 0
	buf[i] = ctrlInjectScrollEvent
	i++
	binary.BigEndian.PutUint32(buf[i:], uint32(x))
	i += 4
	binary.BigEndian.PutUint32(buf[i:], uint32(y))
	i += 4
	binary.BigEndian.PutUint16(buf[i:], screenW)
	i += 2
	binary.BigEndian.PutUint16(buf[i:], screenH)
	i += 2
	binary.BigEndian.PutUint16(buf[i:], floatToFixed16(hScroll))
	i += 2
	binary.BigEndian.PutUint16(buf[i:], floatToFixed16(vScroll))
	i += 2
	binary.BigEndian.PutUint32(buf[i:], 0) // buttons
	return buf
}

// EncodeKey builds an INJECT_KEYCODE frame. keycode and metaState are
// the Android KeyEvent values, passed through untranslated (§1: "no
// keystroke mapping tables").
func EncodeKey(action int, keycode, repeat, metaState int32) []byte {
	buf := make([]byte, 1+1+4+4+4)
	i := 0
	buf[i] = ctrlInjectKeycode
	i++
	buf[i] = byte(action)
	i++
	binary.BigEndian.PutUint32(buf[i:], uint32(keycode))
	i += 4
	binary.BigEndian.PutUint32(buf[i:], uint32(repeat))
	i += 4
	binary.BigEndian.PutUint32(buf[i:], uint32(metaState))
	return buf
}

// EncodeText builds an INJECT_TEXT frame.
func EncodeText(text string) []byte {
	body := []byte(text)
	buf := make([]byte, 1+4+len(body))
	buf[0] = ctrlInjectText
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(body)))
	copy(buf[5:], body)
	return buf
}

// EncodeClipboardPaste builds a SET_CLIPBOARD frame. sequence lets the
// caller correlate the device's eventual ACK_CLIPBOARD response; paste
// requests an immediate paste action on the device after setting.
func EncodeClipboardPaste(sequence uint64, text string, paste bool) []byte {
	body := []byte(text)
	buf := make([]byte, 1+8+1+4+len(body))
	i := 0
	buf[i] = ctrlSetClipboard
	i++
	binary.BigEndian.PutUint64(buf[i:], sequence)
	i += 8
	if paste {
		buf[i] = 1
	}
	i++
	binary.BigEndian.PutUint32(buf[i:], uint32(len(body)))
	i += 4
	copy(buf[i:], body)
	return buf
}

// EncodeRotate builds a ROTATE_DEVICE frame.
func EncodeRotate() []byte {
	return []byte{ctrlRotateDevice}
}

// EncodeExpandNotificationPanel builds an EXPAND_NOTIFICATION_PANEL frame.
func EncodeExpandNotificationPanel() []byte {
	return []byte{ctrlExpandNotification}
}

// EncodeExpandSettingsPanel builds an EXPAND_SETTINGS_PANEL frame.
func EncodeExpandSettingsPanel() []byte {
	return []byte{ctrlExpandSettings}
}

// EncodeCollapsePanels builds a COLLAPSE_PANELS frame.
func EncodeCollapsePanels() []byte {
	return []byte{ctrlCollapsePanels}
}

// floatToFixed16 packs a normalized [0,1] float into the agent's
// 16-bit fixed-point pressure/scroll encoding (Q0.16, clamped).
func floatToFixed16(v float32) uint16 {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return uint16(math.Round(float64(v) * 0xFFFF))
}
