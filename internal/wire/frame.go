package wire

import "github.com/screenbridge/hostcore/internal/codec"

// Mode selects which frame shape the Reader expects next. The Protocol
// Session drives mode transitions; the reader never guesses.
type Mode int

const (
	// ModeDeviceName expects the 64-byte NUL-padded device name greeting
	// on the video socket.
	ModeDeviceName Mode = iota
	// ModeVideoCodecMeta expects a 12-byte codec/width/height header.
	ModeVideoCodecMeta
	// ModeAudioCodecMeta expects a 4-byte codec magic.
	ModeAudioCodecMeta
	// ModeMediaPacket expects a 12-byte packet header followed by its payload.
	ModeMediaPacket
	// ModeDeviceMessage expects a 1-byte tag followed by a type-specific body.
	ModeDeviceMessage
)

// MaxFrameSize is the fatal limit on a single frame's payload (§4.1).
const MaxFrameSize = 64 * 1024 * 1024

// DeviceNameFrame is the NUL-trimmed greeting read from the video socket.
type DeviceNameFrame struct {
	Name string
}

// CodecMetaFrame carries the negotiated codec and, for video, its
// current dimensions.
type CodecMetaFrame struct {
	Codec  codec.ID
	Width  uint32
	Height uint32
}

// MediaPacketFrame is one PTS-stamped media packet.
type MediaPacketFrame struct {
	PTS         uint64 // low 62 bits of pts_raw; meaningless if no timestamp
	IsConfig    bool   // bit 63 of pts_raw
	IsKeyFrame  bool   // bit 62 of pts_raw
	Payload     []byte
}

const (
	ptsConfigBit    = uint64(1) << 63
	ptsKeyFrameBit  = uint64(1) << 62
	ptsValueMask    = ptsKeyFrameBit - 1
)

// DecodePTSRaw splits the 8-byte pts_raw field into its three fields.
func DecodePTSRaw(raw uint64) (pts uint64, isConfig, isKeyFrame bool) {
	isConfig = raw&ptsConfigBit != 0
	isKeyFrame = raw&ptsKeyFrameBit != 0
	pts = raw & ptsValueMask
	return
}

// DeviceMessageTag identifies the body shape of an incoming control-socket message.
type DeviceMessageTag byte

const (
	TagClipboard    DeviceMessageTag = 0
	TagAckClipboard DeviceMessageTag = 1
	TagUHIDOutput   DeviceMessageTag = 2
)

// DeviceMessageFrame is a decoded incoming control-socket message.
// Clipboard is populated for TagClipboard, AckSequence for
// TagAckClipboard, and UHIDID/UHIDData for TagUHIDOutput; unknown tags are never surfaced by the reader (it skips one byte and
// continues per §4.2).
type DeviceMessageFrame struct {
	Tag         DeviceMessageTag
	Clipboard   string
	AckSequence uint64
	UHIDID      uint16
	UHIDData    []byte
}
