package audio

import "sync/atomic"

// ringCapacity is the number of frame slots: tight enough to bound latency,
// loose enough to absorb one scheduling hiccup between producer and consumer.
const ringCapacity = 3

// ring is a single-producer single-consumer lock-free ring buffer of fixed
// size float32 frames. Push overwrites the oldest unread slot if full,
// favoring fresh audio over backlog.
type ring struct {
	slots    [ringCapacity][]float32
	frameLen int

	head atomic.Uint32 // next slot to write
	tail atomic.Uint32 // next slot to read
	size atomic.Int32  // number of filled slots
}

func newRing(frameLen int) *ring {
	r := &ring{frameLen: frameLen}
	for i := range r.slots {
		r.slots[i] = make([]float32, frameLen)
	}
	return r
}

// Push writes frame into the next slot. If the ring is full, the oldest
// slot is dropped to make room, so the consumer always gets the freshest
// audio at the cost of an occasional skipped frame.
func (r *ring) Push(frame []float32) {
	if r.size.Load() == ringCapacity {
		r.tail.Store((r.tail.Load() + 1) % ringCapacity)
		r.size.Add(-1)
	}
	idx := r.head.Load()
	copy(r.slots[idx], frame)
	r.head.Store((idx + 1) % ringCapacity)
	r.size.Add(1)
}

// Pop reads the oldest filled slot into dst, returning false (dst left
// untouched, caller should fill silence) if the ring is empty.
func (r *ring) Pop(dst []float32) bool {
	if r.size.Load() == 0 {
		return false
	}
	idx := r.tail.Load()
	copy(dst, r.slots[idx])
	r.tail.Store((idx + 1) % ringCapacity)
	r.size.Add(-1)
	return true
}
