// Package ring implements a one-producer-one-consumer sample block
// queue: a fixed-depth ring that drops the oldest unread block on
// overflow rather than blocking the producer, with bookkeeping so the
// consumer can compensate its tick timestamp for any blocks it missed.
package ring

import (
	"sync"
	"time"

	"go1090/internal/modes"
)

// Block is one captured sample block: raw interleaved I/Q bytes plus
// its wall-clock and 12 MHz tick timestamps.
type Block struct {
	Samples    []byte
	CapturedAt time.Time
	Tick       uint64
}

// Buffer is a fixed-capacity ring of sample blocks. Depth must be a
// power of two; modes.RingDepth (16) is used by production callers.
type Buffer struct {
	mu      sync.Mutex
	cond    *sync.Cond
	slots   []Block
	mask    uint64
	in, out uint64 // monotonically increasing write/read cursors
	lost    uint64 // slots dropped due to overflow
	closed  bool
}

// New creates a ring buffer with the given depth (rounded up to the
// next power of two if not already one).
func New(depth int) *Buffer {
	if depth <= 0 {
		depth = modes.RingDepth
	}
	d := 1
	for d < depth {
		d <<= 1
	}
	return &Buffer{
		slots: make([]Block, d),
		mask:  uint64(d - 1),
	}
}

func (b *Buffer) init() {
	if b.cond == nil {
		b.cond = sync.NewCond(&b.mu)
	}
}

// Push enqueues a block. If the ring is full, the oldest unread slot
// is dropped (the lost counter increments) and overwritten. Ownership
// of blk.Samples transfers to the buffer; callers must not reuse the
// slice afterwards.
func (b *Buffer) Push(blk Block) {
	b.mu.Lock()
	b.init()
	defer b.mu.Unlock()

	ready := b.in - b.out
	if ready >= uint64(len(b.slots)) {
		// Overflow: drop the oldest unread slot.
		b.out++
		b.lost++
	}
	b.slots[b.in&b.mask] = blk
	b.in++
	b.cond.Signal()
}

// Pop blocks until a slot is ready or the buffer is closed, returning
// ok == false only on close with nothing left to drain.
func (b *Buffer) Pop() (blk Block, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.init()

	for b.in == b.out && !b.closed {
		b.cond.Wait()
	}
	if b.in == b.out {
		return Block{}, false
	}
	blk = b.slots[b.out&b.mask]
	b.slots[b.out&b.mask] = Block{} // release reference
	b.out++
	return blk, true
}

// Close unblocks any pending Pop so a waiting consumer can observe
// shutdown instead of blocking forever on an empty buffer.
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.init()
	b.closed = true
	b.cond.Broadcast()
}

// Ready reports the number of slots currently queued.
func (b *Buffer) Ready() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int(b.in - b.out)
}

// Lost reports the cumulative count of dropped slots.
func (b *Buffer) Lost() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lost
}

// DrainLost atomically reads and resets the lost-slot counter, used
// by the decoder to compensate its tick timestamp for each dropped
// slot's worth of 12 MHz ticks (see TickJumpForLoss).
func (b *Buffer) DrainLost() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.lost
	b.lost = 0
	return n
}

// TickJumpForLoss computes the 12 MHz tick-clock advance to apply
// after losing n blocks of blockSamples I/Q sample pairs each.
func TickJumpForLoss(n uint64, blockSamples uint64) uint64 {
	return n * blockSamples * modes.TicksPerMicrosecond / modes.SamplesPerBit
}
