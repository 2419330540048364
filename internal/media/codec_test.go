package media

import (
	"bytes"
	"testing"
)

func TestCodecByPayloadType(t *testing.T) {
	tests := []struct {
		pt   uint8
		want string
		ok   bool
	}{
		{0, "PCMU", true},
		{8, "PCMA", true},
		{101, "", false},
		{96, "", false},
	}

	for _, tt := range tests {
		c, ok := CodecByPayloadType(tt.pt)
		if ok != tt.ok {
			t.Errorf("CodecByPayloadType(%d) ok = %v, want %v", tt.pt, ok, tt.ok)
			continue
		}
		if ok && c.Name != tt.want {
			t.Errorf("CodecByPayloadType(%d) = %q, want %q", tt.pt, c.Name, tt.want)
		}
	}
}

func TestFrameSizes(t *testing.T) {
	if got := CodecPCMU.SamplesPerFrame(); got != 160 {
		t.Errorf("SamplesPerFrame() = %d, want 160", got)
	}
	if got := CodecPCMU.BytesPerFrame(); got != 160 {
		t.Errorf("BytesPerFrame() = %d, want 160", got)
	}
}

func TestSilenceByte(t *testing.T) {
	if got := CodecPCMU.SilenceByte(); got != 0xFF {
		t.Errorf("PCMU SilenceByte() = %#x, want 0xFF", got)
	}
	if got := CodecPCMA.SilenceByte(); got != 0xD5 {
		t.Errorf("PCMA SilenceByte() = %#x, want 0xD5", got)
	}
}

// Encoded audio must survive decode-then-encode unchanged: decode is the
// inverse of encode on the encoded image, so the round trip is bit-exact.
func TestPCMURoundTrip(t *testing.T) {
	pcm := make([]byte, 0, 2048)
	for i := -512; i < 512; i++ {
		s := int16(i * 64)
		pcm = append(pcm, byte(s), byte(s>>8))
	}

	first := CodecPCMU.Encode(pcm)
	second := CodecPCMU.Encode(CodecPCMU.Decode(first))
	if !bytes.Equal(first, second) {
		t.Errorf("PCMU round trip mismatch: first %x, second %x", first[:16], second[:16])
	}

	firstA := CodecPCMA.Encode(pcm)
	secondA := CodecPCMA.Encode(CodecPCMA.Decode(firstA))
	if !bytes.Equal(firstA, secondA) {
		t.Errorf("PCMA round trip mismatch: first %x, second %x", firstA[:16], secondA[:16])
	}
}

func TestDecodeSilenceIsQuiet(t *testing.T) {
	pcm := CodecPCMU.Decode(CodecPCMU.SilencePayload(160))
	if len(pcm) != 320 {
		t.Fatalf("Decode() produced %d bytes, want 320", len(pcm))
	}
	for i := 0; i < len(pcm); i += 2 {
		s := int16(pcm[i]) | int16(pcm[i+1])<<8
		if s > 8 || s < -8 {
			t.Fatalf("silence sample %d decodes to %d, want near zero", i/2, s)
		}
	}
}

func TestUpsample8kTo16kDoublesLength(t *testing.T) {
	in := Float32ToPCM16([]float32{0, 0.5, -0.5, 0.25})
	out := Upsample8kTo16k(in)
	if len(out) != 2*len(in) {
		t.Fatalf("Upsample8kTo16k() len = %d, want %d", len(out), 2*len(in))
	}

	// Even samples are the originals, odd samples the midpoints.
	samples := PCM16ToFloat32(out)
	orig := PCM16ToFloat32(in)
	for i, want := range orig {
		if got := samples[i*2]; got != want {
			t.Errorf("sample %d = %v, want %v", i*2, got, want)
		}
	}
}

func TestPCM16Float32RoundTrip(t *testing.T) {
	in := []byte{0x00, 0x00, 0xFF, 0x7F, 0x00, 0x80, 0x34, 0x12}
	out := Float32ToPCM16(PCM16ToFloat32(in))
	if !bytes.Equal(in, out) {
		t.Errorf("round trip = %x, want %x", out, in)
	}
}
