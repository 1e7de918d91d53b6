// Package jitter implements deadline-based playout ordering for a single
// peer's audio stream: packets are buffered by sequence number, played out
// in order once primed, and missing slots are reported rather than
// stalling the playout clock. The ring/priming structure follows the
// teacher repository's per-sender jitter buffer (client/internal/jitter),
// generalized here to the spec's richer adaptive-depth and statistics model.
package jitter

import "time"

// Config validates and holds the buffer's timing parameters.
type Config struct {
	MinDelayFrames     int
	MaxDelayFrames     int
	InitialDelayFrames int
	FrameDurationMs    float64
}

// Normalize clamps an out-of-range Config to valid bounds (min ≥ 1, max ≥
// min, initial ∈ [min, max], frame duration > 0).
func (c Config) Normalize() Config {
	if c.MinDelayFrames < 1 {
		c.MinDelayFrames = 1
	}
	if c.MaxDelayFrames < c.MinDelayFrames {
		c.MaxDelayFrames = c.MinDelayFrames
	}
	if c.InitialDelayFrames < c.MinDelayFrames {
		c.InitialDelayFrames = c.MinDelayFrames
	}
	if c.InitialDelayFrames > c.MaxDelayFrames {
		c.InitialDelayFrames = c.MaxDelayFrames
	}
	if c.FrameDurationMs <= 0 {
		c.FrameDurationMs = 20
	}
	return c
}

// entry is one buffered packet awaiting playout.
type entry struct {
	timestamp  uint32
	payload    []byte
	receivedAt time.Time
}

// Outcome classifies one Pop() result.
type Outcome int

const (
	OutcomePacket Outcome = iota
	OutcomeLost
	OutcomeUnderrun
)

// Result is the return value of Pop.
type Result struct {
	Outcome   Outcome
	Sequence  uint32
	Timestamp uint32
	Payload   []byte
}

// Stats reports running jitter-buffer counters.
type Stats struct {
	Inserted     uint64
	Played       uint64
	Lost         uint64
	Late         uint64
	Depth        int
	DelayFrames  int
	JitterMs     float64
}

// Buffer is a single-stream jitter buffer. Not safe for concurrent use; the
// caller (one playout goroutine per peer) is the sole owner.
type Buffer struct {
	cfg Config

	entries map[uint32]*entry
	playing bool
	nextSeq uint32
	hasNext bool

	delayFrames int

	inserted uint64
	played   uint64
	lost     uint64
	late     uint64

	// jitter estimation: RFC 3550-style smoothed inter-arrival deviation.
	lastArrival time.Time
	haveLast    bool
	smoothedDev float64 // milliseconds

	// adapt() bookkeeping: counts since the last adapt call.
	windowReceived uint64
	windowLost     uint64
}

// New creates a Buffer from cfg, normalizing invalid values.
func New(cfg Config) *Buffer {
	cfg = cfg.Normalize()
	return &Buffer{
		cfg:         cfg,
		entries:     make(map[uint32]*entry),
		delayFrames: cfg.InitialDelayFrames,
	}
}

// capacity is 2x max-delay-frames, per spec.
func (b *Buffer) capacity() int { return 2 * b.cfg.MaxDelayFrames }

// Insert places a received packet into the buffer.
func (b *Buffer) Insert(seq, timestamp uint32, payload []byte) {
	now := time.Now()

	if b.haveLast {
		gapMs := now.Sub(b.lastArrival).Seconds() * 1000
		dev := gapMs - b.cfg.FrameDurationMs
		if dev < 0 {
			dev = -dev
		}
		b.smoothedDev += (dev - b.smoothedDev) / 16
	}
	b.lastArrival = now
	b.haveLast = true

	if !b.playing {
		if !b.hasNext || seqBefore(seq, b.nextSeq) {
			b.nextSeq = seq
			b.hasNext = true
		}
	} else if seqBefore(seq, b.nextSeq) {
		// Late arrival: playout already passed this sequence.
		b.late++
		return
	}

	b.entries[seq] = &entry{timestamp: timestamp, payload: payload, receivedAt: now}
	b.inserted++
	b.windowReceived++

	if len(b.entries) > b.capacity() {
		b.pruneOldest()
	}
}

// seqBefore reports whether a is strictly before b, wraparound-safe.
func seqBefore(a, b uint32) bool {
	return int32(a-b) < 0
}

func (b *Buffer) pruneOldest() {
	var oldest uint32
	found := false
	for seq := range b.entries {
		if !found || seqBefore(seq, oldest) {
			oldest = seq
			found = true
		}
	}
	if found {
		delete(b.entries, oldest)
	}
}

func (b *Buffer) depth() int { return len(b.entries) }

// Pop returns the next playout result. Before priming, returns Underrun
// until depth reaches the current delay; the playout clock never waits on a
// missing packet once playing — it emits Lost and advances.
func (b *Buffer) Pop() Result {
	if !b.playing {
		if b.depth() < b.delayFrames {
			return Result{Outcome: OutcomeUnderrun}
		}
		b.playing = true
	}

	if !b.hasNext {
		return Result{Outcome: OutcomeUnderrun}
	}

	seq := b.nextSeq
	e, ok := b.entries[seq]
	b.nextSeq = seq + 1
	if ok {
		delete(b.entries, seq)
		b.played++
		return Result{Outcome: OutcomePacket, Sequence: seq, Timestamp: e.timestamp, Payload: e.payload}
	}

	b.lost++
	b.windowLost++
	return Result{Outcome: OutcomeLost, Sequence: seq}
}

// Adapt re-tunes the delay based on the loss rate observed since the last
// call: loss > 5% increases delay (up to max); loss < 1% and depth exceeds
// the current delay decreases it (down to min). Call periodically (spec:
// every 100 ms).
func (b *Buffer) Adapt() {
	defer func() { b.windowReceived, b.windowLost = 0, 0 }()

	total := b.windowReceived + b.windowLost
	if total == 0 {
		return
	}
	lossRate := float64(b.windowLost) / float64(total)

	switch {
	case lossRate > 0.05:
		if b.delayFrames < b.cfg.MaxDelayFrames {
			b.delayFrames++
		}
	case lossRate < 0.01 && b.depth() > b.delayFrames:
		if b.delayFrames > b.cfg.MinDelayFrames {
			b.delayFrames--
		}
	}
}

// Stats returns a snapshot of running counters.
func (b *Buffer) Stats() Stats {
	return Stats{
		Inserted:    b.inserted,
		Played:      b.played,
		Lost:        b.lost,
		Late:        b.late,
		Depth:       b.depth(),
		DelayFrames: b.delayFrames,
		JitterMs:    b.smoothedDev,
	}
}
