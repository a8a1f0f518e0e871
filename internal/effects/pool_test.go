package effects

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRunsSubmittedWork(t *testing.T) {
	p := NewPool(2, 8, nil)
	var count int32
	for i := 0; i < 5; i++ {
		p.Submit(func() { atomic.AddInt32(&count, 1) })
	}
	p.Shutdown()
	if atomic.LoadInt32(&count) != 5 {
		t.Fatalf("count = %d, want 5", count)
	}
}

func TestPoolRecoversPanicsInEffects(t *testing.T) {
	p := NewPool(1, 4, nil)
	var ran int32
	p.Submit(func() { panic("boom") })
	p.Submit(func() { atomic.AddInt32(&ran, 1) })
	p.Shutdown()
	if atomic.LoadInt32(&ran) != 1 {
		t.Fatal("expected subsequent effect to still run after a panicking one")
	}
}

func TestPoolDropsWhenQueueFull(t *testing.T) {
	block := make(chan struct{})
	p := NewPool(1, 1, nil)
	p.Submit(func() { <-block }) // occupies the single worker

	// Give the worker a moment to pick up the blocking task.
	time.Sleep(10 * time.Millisecond)

	var ran int32
	p.Submit(func() { atomic.AddInt32(&ran, 1) }) // fills the 1-deep queue
	p.Submit(func() { atomic.AddInt32(&ran, 1) }) // queue full: dropped

	close(block)
	p.Shutdown()

	if atomic.LoadInt32(&ran) > 1 {
		t.Errorf("ran = %d, want at most 1 (second submit should have been dropped)", ran)
	}
}
