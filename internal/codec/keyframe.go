package codec

// SplitAnnexB splits an Annex B access unit (H.264/H.265) into its NAL
// units, stripping start codes. Malformed input (no start code) yields
// a single-element slice containing the whole buffer so callers never
// have to special-case an empty result.
func SplitAnnexB(au []byte) [][]byte {
	starts := findStartCodes(au)
	if len(starts) == 0 {
		return [][]byte{au}
	}

	units := make([][]byte, 0, len(starts))
	for i, s := range starts {
		end := len(au)
		if i+1 < len(starts) {
			end = starts[i+1].offset
		}
		unit := au[s.offset+s.length : end]
		if len(unit) > 0 {
			units = append(units, unit)
		}
	}
	return units
}

type startCode struct {
	offset int
	length int
}

func findStartCodes(b []byte) []startCode {
	var out []startCode
	for i := 0; i+2 < len(b); i++ {
		if b[i] == 0 && b[i+1] == 0 && b[i+2] == 1 {
			out = append(out, startCode{offset: i, length: 3})
			i += 2
			continue
		}
		if i+3 < len(b) && b[i] == 0 && b[i+1] == 0 && b[i+2] == 0 && b[i+3] == 1 {
			out = append(out, startCode{offset: i, length: 4})
			i += 3
		}
	}
	return out
}

// H264NALType extracts the NAL unit type (low 5 bits of the header byte)
// from an H.264 NAL unit. Returns -1 for an empty unit.
func H264NALType(nal []byte) int {
	if len(nal) == 0 {
		return -1
	}
	return int(nal[0] & 0x1f)
}

// H265NALType extracts the NAL unit type (bits 1-6 of the header byte)
// from an H.265 NAL unit. Returns -1 for an empty unit.
func H265NALType(nal []byte) int {
	if len(nal) == 0 {
		return -1
	}
	return int((nal[0] >> 1) & 0x3f)
}

const (
	h264NALTypeIDR = 5
	h264NALTypeSPS = 7
	h264NALTypePPS = 8

	h265NALTypeIDRWRADL = 19
	h265NALTypeIDRNLP   = 20
	h265NALTypeVPS      = 32
	h265NALTypeSPS      = 33
)

// IsKeyFrame reports whether the access unit au (already demultiplexed
// from the frame stream, still in Annex B form) contains a NAL unit that
// starts a key frame for the given codec. AV1 is not classified here:
// it has no Annex B framing in this protocol, so this always returns
// false for it and the caller relies on the agent's own config-frame
// signaling for AV1 streams.
func IsKeyFrame(id ID, au []byte) bool {
	switch id {
	case H264:
		for _, nal := range SplitAnnexB(au) {
			if H264NALType(nal) == h264NALTypeIDR {
				return true
			}
		}
		return false
	case H265:
		for _, nal := range SplitAnnexB(au) {
			t := H265NALType(nal)
			if t == h265NALTypeIDRWRADL || t == h265NALTypeIDRNLP {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// ContainsParameterSets reports whether au carries SPS/PPS (H.264) or
// VPS/SPS (H.265) NAL units, the signal used to detect a fresh
// configuration frame ahead of a resolution change.
func ContainsParameterSets(id ID, au []byte) bool {
	switch id {
	case H264:
		for _, nal := range SplitAnnexB(au) {
			switch H264NALType(nal) {
			case h264NALTypeSPS, h264NALTypePPS:
				return true
			}
		}
	case H265:
		for _, nal := range SplitAnnexB(au) {
			switch H265NALType(nal) {
			case h265NALTypeVPS, h265NALTypeSPS:
				return true
			}
		}
	}
	return false
}
