package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/screenbridge/hostcore/internal/codec"
)

// compactThreshold is how many consumed-but-retained bytes accumulate at
// the front of the buffer before Reader copies the live tail down to
// offset zero and shrinks its backing array's consumed prefix.
const compactThreshold = 64 * 1024

// Reader accumulates bytes from one socket and hands out complete
// frames in the shape dictated by the current Mode. It never blocks and
// never re-reads a byte: Next returns (nil, false, nil) when the buffer
// doesn't yet hold a full frame, leaving the head cursor untouched.
type Reader struct {
	buf  []byte
	head int
	mode Mode
}

// NewReader creates a reader starting in the given mode.
func NewReader(mode Mode) *Reader {
	return &Reader{mode: mode}
}

// Feed appends newly-read socket bytes to the internal buffer.
func (r *Reader) Feed(data []byte) {
	r.buf = append(r.buf, data...)
}

// SetMode switches the frame shape expected by the next call to Next.
// The Protocol Session calls this after consuming a frame that implies
// a state transition (DeviceName -> VideoCodecMeta, etc).
func (r *Reader) SetMode(mode Mode) {
	r.mode = mode
}

// Mode reports the reader's current parse mode.
func (r *Reader) Mode() Mode {
	return r.mode
}

// Pending reports how many unconsumed bytes are buffered.
func (r *Reader) Pending() int {
	return len(r.buf) - r.head
}

// Next attempts to extract one complete frame from the buffer under the
// current mode. ok is false when more bytes are needed; err is non-nil
// only for a fatal protocol violation (oversized frame).
func (r *Reader) Next() (frame interface{}, ok bool, err error) {
	switch r.mode {
	case ModeDeviceName:
		frame, ok = r.nextDeviceName()
	case ModeVideoCodecMeta:
		frame, ok = r.nextCodecMeta(true)
	case ModeAudioCodecMeta:
		frame, ok = r.nextCodecMeta(false)
	case ModeMediaPacket:
		frame, ok, err = r.nextMediaPacket()
	case ModeDeviceMessage:
		frame, ok, err = r.nextDeviceMessage()
	default:
		err = fmt.Errorf("wire: unknown mode %d", r.mode)
	}
	if ok {
		r.compact()
	}
	return frame, ok, err
}

func (r *Reader) available() []byte {
	return r.buf[r.head:]
}

func (r *Reader) advance(n int) {
	r.head += n
}

func (r *Reader) compact() {
	if r.head < compactThreshold {
		return
	}
	remaining := len(r.buf) - r.head
	copy(r.buf, r.buf[r.head:])
	r.buf = r.buf[:remaining]
	r.head = 0
}

func (r *Reader) nextDeviceName() (*DeviceNameFrame, bool) {
	buf := r.available()
	if len(buf) < 64 {
		return nil, false
	}
	raw := buf[:64]
	end := 64
	for i, b := range raw {
		if b == 0 {
			end = i
			break
		}
	}
	r.advance(64)
	return &DeviceNameFrame{Name: string(raw[:end])}, true
}

func (r *Reader) nextCodecMeta(withDimensions bool) (*CodecMetaFrame, bool) {
	need := 4
	if withDimensions {
		need = 12
	}
	buf := r.available()
	if len(buf) < need {
		return nil, false
	}
	magic := binary.BigEndian.Uint32(buf[0:4])
	frame := &CodecMetaFrame{Codec: magicToCodec(magic)}
	if withDimensions {
		frame.Width = binary.BigEndian.Uint32(buf[4:8])
		frame.Height = binary.BigEndian.Uint32(buf[8:12])
	}
	r.advance(need)
	return frame, true
}

func magicToCodec(magic uint32) codec.ID {
	switch codec.ID(magic) {
	case codec.H265:
		return codec.H265
	case codec.AV1:
		return codec.AV1
	default:
		return codec.H264
	}
}

func (r *Reader) nextMediaPacket() (*MediaPacketFrame, bool, error) {
	buf := r.available()
	if len(buf) < 12 {
		return nil, false, nil
	}
	ptsRaw := binary.BigEndian.Uint64(buf[0:8])
	length := binary.BigEndian.Uint32(buf[8:12])
	if length > MaxFrameSize {
		return nil, false, fmt.Errorf("wire: frame length %d exceeds %d byte limit", length, MaxFrameSize)
	}
	total := 12 + int(length)
	if len(buf) < total {
		return nil, false, nil
	}

	pts, isConfig, isKey := DecodePTSRaw(ptsRaw)
	payload := make([]byte, length)
	copy(payload, buf[12:total])

	r.advance(total)
	return &MediaPacketFrame{
		PTS:        pts,
		IsConfig:   isConfig,
		IsKeyFrame: isKey,
		Payload:    payload,
	}, true, nil
}

func (r *Reader) nextDeviceMessage() (*DeviceMessageFrame, bool, error) {
	for {
		buf := r.available()
		if len(buf) < 1 {
			return nil, false, nil
		}
		tag := DeviceMessageTag(buf[0])

		switch tag {
		case TagClipboard:
			if len(buf) < 5 {
				return nil, false, nil
			}
			textLen := binary.BigEndian.Uint32(buf[1:5])
			total := 5 + int(textLen)
			if textLen > MaxFrameSize {
				return nil, false, fmt.Errorf("wire: clipboard text length %d exceeds %d byte limit", textLen, MaxFrameSize)
			}
			if len(buf) < total {
				return nil, false, nil
			}
			text := string(buf[5:total])
			r.advance(total)
			return &DeviceMessageFrame{Tag: TagClipboard, Clipboard: text}, true, nil

		case TagAckClipboard:
			if len(buf) < 9 {
				return nil, false, nil
			}
			seq := binary.BigEndian.Uint64(buf[1:9])
			r.advance(9)
			return &DeviceMessageFrame{Tag: TagAckClipboard, AckSequence: seq}, true, nil

		case TagUHIDOutput:
			if len(buf) < 5 {
				return nil, false, nil
			}
			id := binary.BigEndian.Uint16(buf[1:3])
			dataLen := binary.BigEndian.Uint16(buf[3:5])
			total := 5 + int(dataLen)
			if len(buf) < total {
				return nil, false, nil
			}
			data := make([]byte, dataLen)
			copy(data, buf[5:total])
			r.advance(total)
			return &DeviceMessageFrame{Tag: TagUHIDOutput, UHIDID: id, UHIDData: data}, true, nil

		default:
			// Unrecognized tag: skip one byte and keep looking, lenient
			// to forward-compatible extensions (§4.2).
			r.advance(1)
			continue
		}
	}
}
