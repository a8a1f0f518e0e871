// Package effects implements a small bounded worker pool for the five
// fire-and-forget classes of work spec §5 names: event emission,
// document-store writes, object-store ingestion, embedding computation,
// and git commits. None of these may block the PTC pipeline.
package effects

import (
	"log/slog"
	"sync"
)

// Pool runs submitted work on a fixed number of background workers.
// Submitting never blocks the caller: when the queue is full the effect
// is dropped and logged rather than backing up the pipeline — effects
// are best-effort by contract (spec §5, §7).
//
// Grounded on the teacher's detached-goroutine-per-background-task
// pattern (internal/chief/chief.go's `go c.monitorCeremonyCompletion(...)`),
// generalized into a bounded pool per spec §5's "a worker pool whose
// size is bounded by a configuration constant."
type Pool struct {
	queue  chan func()
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewPool starts `workers` background goroutines draining a queue of
// depth `queueDepth`. workers and queueDepth are both clamped to at
// least 1.
func NewPool(workers, queueDepth int, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueDepth < 1 {
		queueDepth = 1
	}
	p := &Pool{
		queue:  make(chan func(), queueDepth),
		logger: logger,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

func (p *Pool) run() {
	defer p.wg.Done()
	for fn := range p.queue {
		safeRun(fn, p.logger)
	}
}

func safeRun(fn func(), logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil && logger != nil {
			logger.Error("effects: recovered panic in background effect", "panic", r)
		}
	}()
	fn()
}

// Submit enqueues fn to run on a worker. If the queue is full, the
// effect is dropped immediately (logged) rather than blocking — losing
// a best-effort side effect is always preferable to stalling the
// pipeline that produced it.
func (p *Pool) Submit(fn func()) {
	select {
	case p.queue <- fn:
	default:
		if p.logger != nil {
			p.logger.Warn("effects: queue full, dropping background effect")
		}
	}
}

// Shutdown closes the queue and waits for the workers to exit. Workers
// first run every effect already queued, so nothing queued before
// Shutdown is dropped. Submit must not be called after Shutdown (a send
// on the closed queue panics).
func (p *Pool) Shutdown() {
	close(p.queue)
	p.wg.Wait()
}
