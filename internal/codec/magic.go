// Package codec recognizes the video codec magic values the mirroring
// agent sends at the front of the video socket, and inspects H.264/H.265
// Annex B access units for key frames and SPS dimensions.
package codec

import "fmt"

// ID identifies a negotiated video codec.
type ID uint32

// Magic values as written by the agent at the start of the video stream,
// big-endian four-byte codec identifiers (FourCC-style, ASCII-derived).
const (
	H264 ID = 0x68323634 // "h264"
	H265 ID = 0x68323635 // "h265"
	AV1  ID = 0x00617631 // "av1" (3-byte ASCII, zero-padded high byte)
)

// Name returns the lowercase codec name used in config and logs.
func (id ID) Name() string {
	switch id {
	case H264:
		return "h264"
	case H265:
		return "h265"
	case AV1:
		return "av1"
	default:
		return fmt.Sprintf("unknown(0x%08x)", uint32(id))
	}
}

// ParseName maps a config-level codec name to its magic ID.
func ParseName(name string) (ID, bool) {
	switch name {
	case "h264":
		return H264, true
	case "h265":
		return H265, true
	case "av1":
		return AV1, true
	default:
		return 0, false
	}
}

// Known reports whether magic is one of the three recognized codec IDs.
func Known(magic uint32) bool {
	switch ID(magic) {
	case H264, H265, AV1:
		return true
	default:
		return false
	}
}
