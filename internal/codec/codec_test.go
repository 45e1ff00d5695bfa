package codec

import "testing"

func TestMagicName(t *testing.T) {
	cases := map[ID]string{
		H264: "h264",
		H265: "h265",
		AV1:  "av1",
	}
	for id, want := range cases {
		if got := id.Name(); got != want {
			t.Errorf("ID(0x%08x).Name() = %q, want %q", uint32(id), got, want)
		}
	}
}

func TestParseName(t *testing.T) {
	id, ok := ParseName("h264")
	if !ok || id != H264 {
		t.Fatalf("ParseName(h264) = %v, %v", id, ok)
	}
	if _, ok := ParseName("mjpeg"); ok {
		t.Fatal("ParseName(mjpeg) should fail")
	}
}

func TestKnown(t *testing.T) {
	if !Known(uint32(H264)) || !Known(uint32(H265)) || !Known(uint32(AV1)) {
		t.Fatal("expected all three codec magics to be known")
	}
	if Known(0xdeadbeef) {
		t.Fatal("unexpected magic reported known")
	}
}

func TestSplitAnnexBFourByteStartCode(t *testing.T) {
	au := []byte{0, 0, 0, 1, 0x67, 0xAA, 0, 0, 0, 1, 0x68, 0xBB}
	units := SplitAnnexB(au)
	if len(units) != 2 {
		t.Fatalf("expected 2 NAL units, got %d", len(units))
	}
	if units[0][0] != 0x67 || units[1][0] != 0x68 {
		t.Fatalf("unexpected unit headers: %v", units)
	}
}

func TestSplitAnnexBMixedStartCodes(t *testing.T) {
	au := []byte{0, 0, 1, 0x67, 0xAA, 0xBB, 0, 0, 0, 1, 0x65, 0xCC}
	units := SplitAnnexB(au)
	if len(units) != 2 {
		t.Fatalf("expected 2 NAL units, got %d: %v", len(units), units)
	}
}

func TestSplitAnnexBNoStartCode(t *testing.T) {
	au := []byte{0x67, 0xAA, 0xBB}
	units := SplitAnnexB(au)
	if len(units) != 1 {
		t.Fatalf("expected fallback single unit, got %d", len(units))
	}
}

func TestH264NALType(t *testing.T) {
	if H264NALType([]byte{0x65}) != h264NALTypeIDR {
		t.Fatal("expected IDR type 5")
	}
	if H264NALType(nil) != -1 {
		t.Fatal("expected -1 for empty input")
	}
}

func TestIsKeyFrameH264(t *testing.T) {
	au := []byte{0, 0, 0, 1, 0x67, 0xAA, 0, 0, 0, 1, 0x65, 0xBB}
	if !IsKeyFrame(H264, au) {
		t.Fatal("expected key frame due to IDR NAL")
	}
	nonKey := []byte{0, 0, 0, 1, 0x41, 0xAA}
	if IsKeyFrame(H264, nonKey) {
		t.Fatal("expected non-key frame")
	}
}

func TestIsKeyFrameAV1NeverClassified(t *testing.T) {
	if IsKeyFrame(AV1, []byte{0x01, 0x02}) {
		t.Fatal("AV1 access units are never classified here")
	}
}

func TestIsKeyFrameH265(t *testing.T) {
	idrWRADL := []byte{0, 0, 0, 1, 19 << 1, 0x01, 0x02}
	if !IsKeyFrame(H265, idrWRADL) {
		t.Fatal("expected key frame for IDR_W_RADL (type 19)")
	}
	idrNLP := []byte{0, 0, 0, 1, 20 << 1, 0x01, 0x02}
	if !IsKeyFrame(H265, idrNLP) {
		t.Fatal("expected key frame for IDR_N_LP (type 20)")
	}
	trail := []byte{0, 0, 0, 1, 1 << 1, 0x01, 0x02}
	if IsKeyFrame(H265, trail) {
		t.Fatal("expected non-key frame for a TRAIL slice")
	}
}

func TestContainsParameterSetsH264(t *testing.T) {
	au := []byte{0, 0, 0, 1, 0x67, 0xAA, 0, 0, 0, 1, 0x65, 0xBB}
	if !ContainsParameterSets(H264, au) {
		t.Fatal("expected SPS NAL to be detected")
	}
	noParams := []byte{0, 0, 0, 1, 0x41, 0xBB}
	if ContainsParameterSets(H264, noParams) {
		t.Fatal("did not expect parameter sets")
	}
}

func TestParseH264SPSDimensionsRejectsGarbage(t *testing.T) {
	if _, _, ok := ParseH264SPSDimensions([]byte{0x65, 0x00}); ok {
		t.Fatal("expected failure on non-SPS NAL")
	}
	if _, _, ok := ParseH264SPSDimensions([]byte{0x67}); ok {
		t.Fatal("expected failure on truncated SPS")
	}
}

// Hand-encoded baseline profile SPS (profile_idc 66, no cropping,
// pic_width_in_mbs_minus1=79, pic_height_in_map_units_minus1=44,
// frame_mbs_only_flag=1) describing a 1280x720 picture.
func TestParseH264SPSDimensions1280x720(t *testing.T) {
	sps := []byte{0x67, 0x42, 0x00, 0x1E, 0xF4, 0x02, 0x80, 0x2D, 0xC0}
	width, height, ok := ParseH264SPSDimensions(sps)
	if !ok {
		t.Fatal("expected successful parse")
	}
	if width != 1280 || height != 720 {
		t.Fatalf("got %dx%d, want 1280x720", width, height)
	}
}
