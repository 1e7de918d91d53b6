package plc

import "testing"

func almostEqual(a, b, eps float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= eps
}

func TestConcealFadesOutThenGoesSilent(t *testing.T) {
	c := New(Config{})
	c.Store([]float32{1, 1, 1, 1})

	want := []float64{0.85, 0.7225, 0.614125, 0.52200625, 0.4437053125}
	for i, w := range want {
		out := c.Conceal()
		if !almostEqual(float64(out[0]), w, 1e-4) {
			t.Fatalf("conceal[%d] = %v, want ~%v", i, out[0], w)
		}
	}

	for i := 0; i < 4; i++ {
		out := c.Conceal()
		for _, v := range out {
			if v != 0 {
				t.Fatalf("post-threshold conceal call %d not silent: %v", i, out)
			}
		}
	}
}

func TestStoreResetsConcealmentRun(t *testing.T) {
	c := New(Config{})
	c.Store([]float32{1, 1})
	c.Conceal()
	c.Conceal()
	c.Store([]float32{2, 2})
	out := c.Conceal()
	want := float64(float32(2 * DefaultFadeout)) // Conceal returns float32 samples
	if !almostEqual(float64(out[0]), want, 1e-9) {
		t.Fatalf("conceal after restore = %v, want %v", out[0], want)
	}
}

func TestConcealBeforeAnyStoreReturnsEmpty(t *testing.T) {
	c := New(Config{})
	out := c.Conceal()
	if len(out) != 0 {
		t.Fatalf("conceal before store = %v, want empty", out)
	}
}

func TestConfigNormalizeDefaults(t *testing.T) {
	cfg := Config{}.Normalize()
	if cfg.Fadeout != DefaultFadeout || cfg.MaxLosses != DefaultMaxLosses {
		t.Fatalf("normalized config = %+v, want defaults", cfg)
	}
}
