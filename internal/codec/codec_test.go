package codec

import "testing"

func TestPCMRoundTrip(t *testing.T) {
	c := NewPCM(4)
	in := []float32{0.1, -0.2, 0.3, -0.4}
	encoded, err := c.Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := c.Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("out[%d] = %v, want %v", i, out[i], in[i])
		}
	}
}

func TestPCMEncodedSizeIsFourBytesPerSample(t *testing.T) {
	c := NewPCM(10)
	encoded, _ := c.Encode(make([]float32, 10))
	if len(encoded) != 40 {
		t.Fatalf("len = %d, want 40", len(encoded))
	}
}

func TestPCMDecodePLCReturnsSilence(t *testing.T) {
	c := NewPCM(4)
	out, err := c.DecodePLC()
	if err != nil {
		t.Fatalf("DecodePLC: %v", err)
	}
	for _, v := range out {
		if v != 0 {
			t.Fatalf("expected silence, got %v", out)
		}
	}
}
