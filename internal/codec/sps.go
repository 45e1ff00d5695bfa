package codec

// bitReader walks an RBSP byte slice one bit at a time, MSB first. It
// does not strip emulation prevention bytes itself; call stripEmulation
// first.
type bitReader struct {
	data []byte
	pos  int // bit position
}

func (r *bitReader) bitsLeft() int {
	return len(r.data)*8 - r.pos
}

func (r *bitReader) readBit() (uint32, bool) {
	if r.bitsLeft() <= 0 {
		return 0, false
	}
	byteIdx := r.pos / 8
	bitIdx := 7 - uint(r.pos%8)
	bit := (r.data[byteIdx] >> bitIdx) & 1
	r.pos++
	return uint32(bit), true
}

func (r *bitReader) readBits(n int) (uint32, bool) {
	var v uint32
	for i := 0; i < n; i++ {
		bit, ok := r.readBit()
		if !ok {
			return 0, false
		}
		v = (v << 1) | bit
	}
	return v, true
}

// readUE reads an Exp-Golomb coded unsigned value.
func (r *bitReader) readUE() (uint32, bool) {
	leadingZeros := 0
	for {
		bit, ok := r.readBit()
		if !ok {
			return 0, false
		}
		if bit == 1 {
			break
		}
		leadingZeros++
		if leadingZeros > 32 {
			return 0, false
		}
	}
	if leadingZeros == 0 {
		return 0, true
	}
	suffix, ok := r.readBits(leadingZeros)
	if !ok {
		return 0, false
	}
	return (1 << uint(leadingZeros)) - 1 + suffix, true
}

// readSE reads an Exp-Golomb coded signed value.
func (r *bitReader) readSE() (int32, bool) {
	ue, ok := r.readUE()
	if !ok {
		return 0, false
	}
	if ue%2 == 0 {
		return -int32(ue / 2), true
	}
	return int32((ue + 1) / 2), true
}

func stripEmulation(nal []byte) []byte {
	out := make([]byte, 0, len(nal))
	zeroRun := 0
	for _, b := range nal {
		if zeroRun >= 2 && b == 0x03 {
			zeroRun = 0
			continue
		}
		if b == 0 {
			zeroRun++
		} else {
			zeroRun = 0
		}
		out = append(out, b)
	}
	return out
}

// ParseH264SPSDimensions extracts the coded picture width/height in
// pixels from an H.264 SPS NAL unit (header byte included), applying the
// conformance cropping window. It returns ok=false rather than panicking
// on any truncated or malformed input.
func ParseH264SPSDimensions(nal []byte) (width, height uint32, ok bool) {
	if len(nal) < 4 || H264NALType(nal) != h264NALTypeSPS {
		return 0, 0, false
	}

	rbsp := stripEmulation(nal[1:])
	r := &bitReader{data: rbsp}

	profileIdc, ok1 := r.readBits(8)
	if !ok1 {
		return 0, 0, false
	}
	if _, ok := r.readBits(8); !ok { // constraint flags + reserved
		return 0, 0, false
	}
	if _, ok := r.readBits(8); !ok { // level_idc
		return 0, 0, false
	}
	if _, ok := r.readUE(); !ok { // seq_parameter_set_id
		return 0, 0, false
	}

	chromaFormatIdc := uint32(1)
	switch profileIdc {
	case 100, 110, 122, 244, 44, 83, 86, 118, 128, 138, 139, 134, 135:
		var ok bool
		chromaFormatIdc, ok = r.readUE()
		if !ok {
			return 0, 0, false
		}
		if chromaFormatIdc == 3 {
			if _, ok := r.readBit(); !ok { // separate_colour_plane_flag
				return 0, 0, false
			}
		}
		if _, ok := r.readUE(); !ok { // bit_depth_luma_minus8
			return 0, 0, false
		}
		if _, ok := r.readUE(); !ok { // bit_depth_chroma_minus8
			return 0, 0, false
		}
		if _, ok := r.readBit(); !ok { // qpprime_y_zero_transform_bypass_flag
			return 0, 0, false
		}
		seqScalingMatrixPresent, ok := r.readBit()
		if !ok {
			return 0, 0, false
		}
		if seqScalingMatrixPresent == 1 {
			count := 8
			if chromaFormatIdc == 3 {
				count = 12
			}
			for i := 0; i < count; i++ {
				present, ok := r.readBit()
				if !ok {
					return 0, 0, false
				}
				if present == 1 {
					if !skipScalingList(r, sizeForScalingIdx(i)) {
						return 0, 0, false
					}
				}
			}
		}
	}

	if _, ok := r.readUE(); !ok { // log2_max_frame_num_minus4
		return 0, 0, false
	}
	picOrderCntType, ok2 := r.readUE()
	if !ok2 {
		return 0, 0, false
	}
	switch picOrderCntType {
	case 0:
		if _, ok := r.readUE(); !ok { // log2_max_pic_order_cnt_lsb_minus4
			return 0, 0, false
		}
	case 1:
		if _, ok := r.readBit(); !ok { // delta_pic_order_always_zero_flag
			return 0, 0, false
		}
		if _, ok := r.readSE(); !ok { // offset_for_non_ref_pic
			return 0, 0, false
		}
		if _, ok := r.readSE(); !ok { // offset_for_top_to_bottom_field
			return 0, 0, false
		}
		numRefFrames, ok := r.readUE()
		if !ok {
			return 0, 0, false
		}
		for i := uint32(0); i < numRefFrames; i++ {
			if _, ok := r.readSE(); !ok {
				return 0, 0, false
			}
		}
	}

	if _, ok := r.readUE(); !ok { // max_num_ref_frames
		return 0, 0, false
	}
	if _, ok := r.readBit(); !ok { // gaps_in_frame_num_value_allowed_flag
		return 0, 0, false
	}

	picWidthInMbsMinus1, ok3 := r.readUE()
	if !ok3 {
		return 0, 0, false
	}
	picHeightInMapUnitsMinus1, ok4 := r.readUE()
	if !ok4 {
		return 0, 0, false
	}
	frameMbsOnlyFlag, ok5 := r.readBit()
	if !ok5 {
		return 0, 0, false
	}
	if frameMbsOnlyFlag == 0 {
		if _, ok := r.readBit(); !ok { // mb_adaptive_frame_field_flag
			return 0, 0, false
		}
	}
	if _, ok := r.readBit(); !ok { // direct_8x8_inference_flag
		return 0, 0, false
	}

	var cropLeft, cropRight, cropTop, cropBottom uint32
	cropFlag, ok6 := r.readBit()
	if !ok6 {
		return 0, 0, false
	}
	if cropFlag == 1 {
		var ok bool
		cropLeft, ok = r.readUE()
		if !ok {
			return 0, 0, false
		}
		cropRight, ok = r.readUE()
		if !ok {
			return 0, 0, false
		}
		cropTop, ok = r.readUE()
		if !ok {
			return 0, 0, false
		}
		cropBottom, ok = r.readUE()
		if !ok {
			return 0, 0, false
		}
	}

	width = (picWidthInMbsMinus1 + 1) * 16
	heightMapUnits := (picHeightInMapUnitsMinus1 + 1) * 16
	if frameMbsOnlyFlag == 0 {
		heightMapUnits *= 2
	}
	height = heightMapUnits

	cropUnitX := uint32(1)
	cropUnitY := uint32(2 - frameMbsOnlyFlag)
	if chromaFormatIdc != 0 {
		subWidthC, subHeightC := chromaSubsampling(chromaFormatIdc)
		cropUnitX = subWidthC
		cropUnitY *= subHeightC
	}

	width -= (cropLeft + cropRight) * cropUnitX
	height -= (cropTop + cropBottom) * cropUnitY

	if width == 0 || height == 0 {
		return 0, 0, false
	}

	return width, height, true
}

func chromaSubsampling(chromaFormatIdc uint32) (subWidthC, subHeightC uint32) {
	switch chromaFormatIdc {
	case 1:
		return 2, 2
	case 2:
		return 2, 1
	case 3:
		return 1, 1
	default:
		return 1, 1
	}
}

func sizeForScalingIdx(i int) int {
	if i < 6 {
		return 16
	}
	return 64
}

func skipScalingList(r *bitReader, size int) bool {
	lastScale := 8
	nextScale := 8
	for j := 0; j < size; j++ {
		if nextScale != 0 {
			deltaScale, ok := r.readSE()
			if !ok {
				return false
			}
			nextScale = (lastScale + int(deltaScale) + 256) % 256
		}
		if nextScale != 0 {
			lastScale = nextScale
		}
	}
	return true
}
