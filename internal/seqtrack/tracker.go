// Package seqtrack implements a sliding-window bitmap for tracking per-sender
// sequence numbers, counting loss and late arrivals, wraparound-safe.
package seqtrack

// WindowSize is the number of trailing sequences tracked in the bitmap.
const WindowSize = 64

// Tracker tracks one sender's sequence stream.
type Tracker struct {
	highest    uint32
	hasHighest bool
	// bitmap bit i (0 = most recent) set means sequence (highest-i) was received.
	bitmap   uint64
	received uint64
	lost     uint64
}

// New creates an empty Tracker.
func New() *Tracker { return &Tracker{} }

// wrappingDiff returns a-b as a signed difference, safe across uint32 wraparound.
func wrappingDiff(a, b uint32) int64 {
	return int64(int32(a - b))
}

// Record registers the arrival of seq and returns the sequences newly
// declared lost because of a forward gap. Arrivals within the window that
// fill a previously-lost slot un-count that loss (late arrival). Arrivals
// outside the window are treated as a session reset: the tracker reinitializes
// around the new sequence and nothing is reported lost.
func (t *Tracker) Record(seq uint32) []uint32 {
	if !t.hasHighest {
		t.hasHighest = true
		t.highest = seq
		t.bitmap = 1
		t.received++
		return nil
	}

	diff := wrappingDiff(seq, t.highest)

	switch {
	case diff == 0:
		// Duplicate of the most recent sequence; ignore.
		return nil
	case diff > 0:
		// Forward progress: seq is newer than anything seen so far.
		if diff > WindowSize {
			// Outside the window in the forward direction: treat as reset.
			t.highest = seq
			t.bitmap = 1
			t.received++
			return nil
		}
		var lost []uint32
		// Every sequence strictly between the old highest and seq that is
		// about to fall inside the window, and wasn't already marked lost,
		// is a newly-lost gap.
		for gap := t.highest + 1; gap != seq; gap++ {
			lost = append(lost, gap)
			t.lost++
		}
		t.bitmap <<= uint(diff)
		t.bitmap |= 1
		t.highest = seq
		t.received++
		return lost
	default: // diff < 0: seq is older than highest
		back := uint(-diff)
		if back >= WindowSize {
			// Outside the window in the backward direction: session reset.
			t.highest = seq
			t.bitmap = 1
			t.received++
			return nil
		}
		bit := uint64(1) << back
		if t.bitmap&bit == 0 {
			// Late arrival filling a previously-declared-lost slot.
			t.bitmap |= bit
			if t.lost > 0 {
				t.lost--
			}
			t.received++
		}
		return nil
	}
}

// LossRate returns lost / (received + lost), or 0 if nothing has been recorded.
func (t *Tracker) LossRate() float64 {
	total := t.received + t.lost
	if total == 0 {
		return 0
	}
	return float64(t.lost) / float64(total)
}

// Stats returns the raw received/lost counters.
func (t *Tracker) Stats() (received, lost uint64) {
	return t.received, t.lost
}
