package ring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Property: N blocks enqueued without overflow are dequeued in
// enqueue order, with strictly monotonically increasing timestamps.
func TestOrderingWithoutOverflow(t *testing.T) {
	b := New(16)
	base := time.Now()
	for i := 0; i < 10; i++ {
		b.Push(Block{Samples: []byte{byte(i)}, CapturedAt: base.Add(time.Duration(i) * time.Millisecond), Tick: uint64(i)})
	}
	var last time.Time
	for i := 0; i < 10; i++ {
		blk, ok := b.Pop()
		require.True(t, ok)
		require.Equal(t, byte(i), blk.Samples[0])
		require.True(t, blk.CapturedAt.After(last) || i == 0)
		last = blk.CapturedAt
	}
	require.Equal(t, uint64(0), b.Lost())
}

// Overflow: pushing more than the ring depth drops the oldest unread
// slots and counts them as lost.
func TestOverflowDropsOldest(t *testing.T) {
	b := New(4) // rounds to 4
	for i := 0; i < 4; i++ {
		b.Push(Block{Tick: uint64(i)})
	}
	// One more push should evict slot 0.
	b.Push(Block{Tick: 4})
	require.Equal(t, uint64(1), b.Lost())

	first, ok := b.Pop()
	require.True(t, ok)
	require.Equal(t, uint64(1), first.Tick, "oldest surviving block should be tick 1")
}

func TestDrainLostResets(t *testing.T) {
	b := New(2)
	for i := 0; i < 5; i++ {
		b.Push(Block{Tick: uint64(i)})
	}
	require.Greater(t, b.DrainLost(), uint64(0))
	require.Equal(t, uint64(0), b.Lost())
}

func TestPopBlocksUntilPush(t *testing.T) {
	b := New(4)
	done := make(chan Block, 1)
	go func() {
		blk, ok := b.Pop()
		require.True(t, ok)
		done <- blk
	}()

	time.Sleep(10 * time.Millisecond)
	b.Push(Block{Tick: 42})

	select {
	case blk := <-done:
		require.Equal(t, uint64(42), blk.Tick)
	case <-time.After(time.Second):
		t.Fatal("Pop never returned")
	}
}

func TestClosePermitsPopToReturnFalse(t *testing.T) {
	b := New(4)
	done := make(chan bool, 1)
	go func() {
		_, ok := b.Pop()
		done <- ok
	}()
	time.Sleep(10 * time.Millisecond)
	b.Close()

	select {
	case ok := <-done:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Pop never returned after Close")
	}
}

// Tick-jump compensation: tick_after == tick_before + k*samples*6, the
// same 6 ticks per sample a processed block advances the clock by.
func TestTickJumpForLoss(t *testing.T) {
	require.Equal(t, uint64(0), TickJumpForLoss(0, 131072))
	require.Equal(t, uint64(131072*6), TickJumpForLoss(1, 131072))
	require.Equal(t, uint64(3*131072*6), TickJumpForLoss(3, 131072))
}
