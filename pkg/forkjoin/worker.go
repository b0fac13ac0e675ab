package forkjoin

import (
	"sync/atomic"

	"github.com/vnykmshr/forkjoin/pkg/deque"
)

// worker owns one deque and runs the scheduling loop on its own goroutine.
type worker struct {
	id    int
	pool  *Pool
	deque *deque.Deque[taskCore]

	idle atomic.Bool

	// seed drives victim selection; only the worker goroutine touches it.
	seed uint32
}

func newWorker(p *Pool, id int, d *deque.Deque[taskCore]) *worker {
	return &worker{
		id:    id,
		pool:  p,
		deque: d,
		seed:  uint32(id)*2654435761 + 1,
	}
}

// run is the main loop for a worker.
func (w *worker) run() {
	p := w.pool
	defer p.workerWg.Done()

	if p.config.OnWorkerStart != nil {
		p.config.OnWorkerStart(w.id)
	}
	p.log.Debug("worker started", "worker", w.id)

	for {
		if c, stolen := w.findWork(); c != nil {
			p.execute(w, c, stolen)
			continue
		}
		if p.isTerminated() {
			break
		}
		w.park()
	}

	p.log.Debug("worker stopped", "worker", w.id)
	if p.config.OnWorkerStop != nil {
		p.config.OnWorkerStop(w.id)
	}
}

// findWork makes one pass: own deque, then every peer, then the inlet.
func (w *worker) findWork() (*taskCore, bool) {
	if c, ok := w.deque.PopBottom(); ok {
		return c, false
	}
	if c := w.stealPass(); c != nil {
		return c, true
	}
	if c, ok := w.pool.inlet.TryReceive(); ok {
		w.pool.recordInlet()
		return c, false
	}
	return nil, false
}

// stealPass tries each peer once, starting from a pseudo-random victim. A
// lost race moves on to the next victim rather than retrying the same one.
func (w *worker) stealPass() *taskCore {
	workers := w.pool.workers
	n := len(workers)
	if n < 2 {
		return nil
	}

	start := int(w.nextRandom() % uint32(n))
	for i := 0; i < n; i++ {
		victim := workers[(start+i)%n]
		if victim == w {
			continue
		}
		if c, ok := victim.deque.Steal(); ok {
			if w.pool.log.IsTrace() {
				w.pool.log.Trace("stole task", "worker", w.id, "victim", victim.id, "task", c.id)
			}
			// Pass the wake on so other parked workers drain the rest.
			if victim.deque.Len() > 0 {
				w.pool.signalWork()
			}
			return c
		}
	}
	return nil
}

// park blocks until new work is signalled or the pool terminates. The idle
// count is raised before the final rescan so a concurrent push either is
// seen by the rescan or sees the idle worker and signals.
func (w *worker) park() {
	p := w.pool
	p.enterIdle(w)

	c, stolen := w.findWork()
	if c == nil && !p.isTerminated() {
		if p.log.IsTrace() {
			p.log.Trace("worker parked", "worker", w.id)
		}
		select {
		case <-p.wake:
		case <-p.stopCh:
		}
	}

	p.leaveIdle(w)
	if c != nil {
		p.execute(w, c, stolen)
	}
}

// nextRandom is a xorshift32 step.
func (w *worker) nextRandom() uint32 {
	x := w.seed
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	w.seed = x
	return x
}
