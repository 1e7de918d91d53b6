package jitter

import "testing"

func TestPlayoutOrdersBySequenceAndReportsLoss(t *testing.T) {
	b := New(Config{MinDelayFrames: 1, MaxDelayFrames: 4, InitialDelayFrames: 1, FrameDurationMs: 20})

	b.Insert(0, 1000, []byte{0})
	if r := b.Pop(); r.Outcome != OutcomePacket || r.Sequence != 0 {
		t.Fatalf("first pop = %+v, want Packet{Sequence:0}", r)
	}

	b.Insert(2, 1040, []byte{2})
	b.Insert(3, 1060, []byte{3})

	if r := b.Pop(); r.Outcome != OutcomeLost || r.Sequence != 1 {
		t.Fatalf("second pop = %+v, want Lost{Sequence:1}", r)
	}
	if r := b.Pop(); r.Outcome != OutcomePacket || r.Sequence != 2 {
		t.Fatalf("third pop = %+v, want Packet{Sequence:2}", r)
	}
}

func TestConfigNormalizeZeroMinBecomesOne(t *testing.T) {
	cfg := Config{MinDelayFrames: 0, MaxDelayFrames: 4, InitialDelayFrames: 0, FrameDurationMs: 20}.Normalize()
	if cfg.MinDelayFrames != 1 {
		t.Fatalf("MinDelayFrames = %d, want 1", cfg.MinDelayFrames)
	}
	if cfg.InitialDelayFrames != 1 {
		t.Fatalf("InitialDelayFrames = %d, want 1", cfg.InitialDelayFrames)
	}
}

func TestConfigNormalizeMaxBelowMinRaisesMax(t *testing.T) {
	cfg := Config{MinDelayFrames: 5, MaxDelayFrames: 2, InitialDelayFrames: 2, FrameDurationMs: 20}.Normalize()
	if cfg.MaxDelayFrames != 5 {
		t.Fatalf("MaxDelayFrames = %d, want 5", cfg.MaxDelayFrames)
	}
	if cfg.InitialDelayFrames != 5 {
		t.Fatalf("InitialDelayFrames = %d, want 5", cfg.InitialDelayFrames)
	}
}

func TestUnderrunBeforePriming(t *testing.T) {
	b := New(Config{MinDelayFrames: 2, MaxDelayFrames: 4, InitialDelayFrames: 2, FrameDurationMs: 20})
	b.Insert(0, 0, []byte{0})
	if r := b.Pop(); r.Outcome != OutcomeUnderrun {
		t.Fatalf("pop before priming = %+v, want Underrun", r)
	}
}

func TestLateArrivalAfterPlayoutIsDropped(t *testing.T) {
	b := New(Config{MinDelayFrames: 1, MaxDelayFrames: 4, InitialDelayFrames: 1, FrameDurationMs: 20})
	b.Insert(0, 0, []byte{0})
	b.Pop() // primes and plays seq 0, nextSeq now 1

	b.Insert(0, 0, []byte{0}) // arrives after playout passed it
	stats := b.Stats()
	if stats.Late != 1 {
		t.Fatalf("Late = %d, want 1", stats.Late)
	}
}

func TestAdaptRaisesDelayOnHighLoss(t *testing.T) {
	b := New(Config{MinDelayFrames: 1, MaxDelayFrames: 4, InitialDelayFrames: 1, FrameDurationMs: 20})
	b.windowReceived = 10
	b.windowLost = 2 // 2/12 ≈ 16.7% > 5%
	b.Adapt()
	if b.delayFrames != 2 {
		t.Fatalf("delayFrames = %d, want 2 after high-loss adapt", b.delayFrames)
	}
}

func TestAdaptLowersDelayOnLowLossWhenDepthExceedsDelay(t *testing.T) {
	b := New(Config{MinDelayFrames: 1, MaxDelayFrames: 4, InitialDelayFrames: 3, FrameDurationMs: 20})
	b.Insert(0, 0, nil)
	b.Insert(1, 0, nil)
	b.Insert(2, 0, nil)
	b.Insert(3, 0, nil) // depth 4 > delayFrames 3
	b.windowReceived = 1000
	b.windowLost = 1 // well under 1%
	b.Adapt()
	if b.delayFrames != 2 {
		t.Fatalf("delayFrames = %d, want 2 after low-loss adapt", b.delayFrames)
	}
}

func TestStatsTrackCounts(t *testing.T) {
	b := New(Config{MinDelayFrames: 1, MaxDelayFrames: 4, InitialDelayFrames: 1, FrameDurationMs: 20})
	b.Insert(0, 0, []byte{0})
	b.Pop()
	b.Insert(2, 0, []byte{2})
	b.Pop() // lost seq 1

	stats := b.Stats()
	if stats.Inserted != 2 || stats.Played != 1 || stats.Lost != 1 {
		t.Fatalf("stats = %+v, want Inserted:2 Played:1 Lost:1", stats)
	}
}
