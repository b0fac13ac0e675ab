package forkjoin

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/sourcegraph/conc/panics"

	fjerrors "github.com/vnykmshr/forkjoin/pkg/common/errors"
	"github.com/vnykmshr/forkjoin/pkg/deque"
	"github.com/vnykmshr/forkjoin/pkg/queue"
)

// PoolState is the lifecycle state of a Pool. Transitions are one-way.
type PoolState int32

const (
	// PoolRunning pools accept submissions.
	PoolRunning PoolState = iota
	// PoolShuttingDown pools reject submissions but finish queued work.
	PoolShuttingDown
	// PoolTerminated pools have no outstanding tasks and no workers.
	PoolTerminated
)

func (s PoolState) String() string {
	switch s {
	case PoolRunning:
		return "running"
	case PoolShuttingDown:
		return "shutting-down"
	case PoolTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Pool is a fixed set of workers executing fork/join tasks by work stealing.
// Pools are independent; nothing is shared between instances.
type Pool struct {
	config Config
	log    hclog.Logger

	workers []*worker
	inlet   *queue.Queue[*taskCore]

	state       atomic.Int32
	outstanding atomic.Int64
	idle        atomic.Int32
	nextID      atomic.Uint64

	// wake carries new-work signals to parked workers and joiners.
	wake chan struct{}
	// stopCh closes when the pool terminates.
	stopCh   chan struct{}
	stopOnce sync.Once
	// done closes after every worker goroutine has returned.
	done chan struct{}

	// ctx is handed to task bodies; ShutdownNow cancels it with cause
	// ErrShutdown.
	ctx    context.Context
	cancel context.CancelCauseFunc

	workerWg sync.WaitGroup

	stats   *poolStats
	metrics atomic.Pointer[poolMetrics]
}

// New creates a pool with the given parallelism and default settings.
// It panics if parallelism is negative; zero selects GOMAXPROCS.
func New(parallelism int) *Pool {
	config := DefaultConfig()
	config.Parallelism = parallelism
	p, err := NewWithConfig(config)
	if err != nil {
		panic(err)
	}
	return p
}

// NewWithConfig creates a pool and starts its workers.
func NewWithConfig(config Config) (*Pool, error) {
	config, err := config.withDefaults()
	if err != nil {
		return nil, err
	}

	inlet, err := queue.NewWithConfig[*taskCore](queue.Config{
		Capacity: config.InletCapacity,
		Strategy: config.InletStrategy,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	p := &Pool{
		config: config,
		log:    config.Logger.Named(config.Name),
		inlet:  inlet,
		wake:   make(chan struct{}, config.Parallelism),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
		stats:  newPoolStats(),
	}

	p.workers = make([]*worker, config.Parallelism)
	for i := range p.workers {
		d, err := deque.New[taskCore](config.InitialDequeCapacity)
		if err != nil {
			cancel(err)
			return nil, err
		}
		p.workers[i] = newWorker(p, i, d)
	}

	if config.Metrics.Enabled {
		p.metrics.Store(newPoolMetrics(config.Name, config.Metrics, config.Parallelism))
	}

	p.workerWg.Add(len(p.workers))
	for _, w := range p.workers {
		go w.run()
	}
	go func() {
		p.workerWg.Wait()
		close(p.done)
	}()

	p.log.Info("pool started", "parallelism", config.Parallelism,
		"deque_capacity", config.InitialDequeCapacity, "inlet_capacity", config.InletCapacity)
	return p, nil
}

// Submit enqueues body as a top-level task and returns its handle. Called
// from a task body of this pool, the task goes onto that worker's deque;
// from anywhere else it enters the inlet, where ctx bounds the wait for
// space under the Block strategy. Once shutdown has begun Submit fails with
// ErrRejected.
func Submit[T any](ctx context.Context, p *Pool, body Body[T]) (*Task[T], error) {
	if body == nil {
		return nil, fjerrors.NewValidationError("forkjoin", "body", nil, "cannot be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	// Count the task before checking state so shutdown cannot observe zero
	// outstanding work while this submission is still being accepted.
	p.outstanding.Add(1)
	if p.State() != PoolRunning {
		p.releaseOutstanding()
		return nil, fjerrors.NewOperationError("forkjoin", "Submit", ErrRejected).
			WithContext("pool " + p.config.Name + " is " + p.State().String())
	}

	if current := currentTask(ctx); current != nil && current.executor != nil && current.executor.pool == p {
		w := current.executor
		t := newTask(p, body, w.id, 0)
		w.deque.PushBottom(&t.taskCore)
		p.recordSubmitted()
		p.signalWork()
		return t, nil
	}

	t := newTask(p, body, -1, 0)
	if err := p.inlet.Send(ctx, &t.taskCore); err != nil {
		p.releaseOutstanding()
		if errors.Is(err, fjerrors.ErrClosed) {
			err = ErrRejected
		}
		return nil, fjerrors.NewOperationError("forkjoin", "Submit", err)
	}
	p.recordSubmitted()
	p.signalWork()
	return t, nil
}

// InvokeOn submits body and waits for its outcome. It fails with
// ErrShutdown once the pool has begun shutting down.
func InvokeOn[T any](ctx context.Context, p *Pool, body Body[T]) (T, error) {
	var zero T
	if p.State() != PoolRunning {
		return zero, ErrShutdown
	}

	t, err := Submit(ctx, p, body)
	if err != nil {
		if errors.Is(err, ErrRejected) {
			return zero, ErrShutdown
		}
		return zero, err
	}
	return t.Join(ctx)
}

// Shutdown stops accepting submissions. Tasks already queued, and the
// tasks they fork, still run. The returned channel closes once the pool is
// terminated and every worker has exited.
func (p *Pool) Shutdown() <-chan struct{} {
	if p.state.CompareAndSwap(int32(PoolRunning), int32(PoolShuttingDown)) {
		p.log.Info("shutdown requested", "outstanding", p.outstanding.Load())
	}
	p.tryTerminate()
	return p.done
}

// ShutdownNow is Shutdown that also cancels every task still queued and
// cancels the context of running bodies, so their later forks come back
// Cancelled. Running bodies are not interrupted.
func (p *Pool) ShutdownNow() <-chan struct{} {
	p.state.CompareAndSwap(int32(PoolRunning), int32(PoolShuttingDown))
	p.cancel(ErrShutdown)

	cancelled := 0
	for _, c := range p.inlet.Drain() {
		if p.cancelTask(c) {
			cancelled++
		}
	}
	for _, w := range p.workers {
		for _, c := range w.deque.Snapshot() {
			if p.cancelTask(c) {
				cancelled++
			}
		}
	}
	p.log.Info("shutdown now", "cancelled", cancelled, "outstanding", p.outstanding.Load())

	p.wakeAll()
	p.tryTerminate()
	return p.done
}

// AwaitTermination blocks until the pool has terminated or ctx is done.
func (p *Pool) AwaitTermination(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the lifecycle state.
func (p *Pool) State() PoolState {
	return PoolState(p.state.Load())
}

// Name returns the configured pool name.
func (p *Pool) Name() string {
	return p.config.Name
}

// Parallelism returns the number of workers.
func (p *Pool) Parallelism() int {
	return len(p.workers)
}

// Outstanding returns the number of tasks that are not yet terminal.
func (p *Pool) Outstanding() int64 {
	return p.outstanding.Load()
}

// execute claims c for w and runs its body. A task cancelled while queued
// fails the claim and is skipped.
func (p *Pool) execute(w *worker, c *taskCore, stolen bool) {
	if !c.claim() {
		return
	}
	c.executor = w
	p.recordExecuted(stolen)

	start := time.Now()
	err := p.runBody(c)
	terminal := Completed
	if err != nil {
		c.err = &TaskError{TaskID: c.id, Cause: err}
		terminal = ExceptionallyCompleted
	}
	c.publish(terminal)

	p.recordFinished(terminal, time.Since(start))
	p.releaseOutstanding()
}

// runBody runs the body and turns a panic into an error.
func (p *Pool) runBody(c *taskCore) error {
	var err error
	r := panics.Try(func() {
		err = c.self.run(withTask(p.ctx, c))
	})

	if r != nil {
		p.log.Warn("task panicked", "task", c.id, "worker", c.executor.id, "panic", r.Value)
		if p.config.PanicHandler != nil {
			p.config.PanicHandler(c.id, r.Value)
		}
		return r.AsError()
	}
	return err
}

// cancelTask moves c from Queued to Cancelled.
func (p *Pool) cancelTask(c *taskCore) bool {
	if !c.state.CompareAndSwap(int32(Queued), int32(Cancelled)) {
		return false
	}
	c.closeDone()
	p.recordCancelled()
	p.releaseOutstanding()
	return true
}

// releaseOutstanding retires one task and terminates a quiescent pool that
// is shutting down.
func (p *Pool) releaseOutstanding() {
	n := p.outstanding.Add(-1)
	p.recordOutstanding(n)
	if n == 0 && p.State() == PoolShuttingDown {
		p.tryTerminate()
	}
}

func (p *Pool) tryTerminate() {
	if p.outstanding.Load() != 0 {
		return
	}
	if !p.state.CompareAndSwap(int32(PoolShuttingDown), int32(PoolTerminated)) {
		return
	}

	p.stopOnce.Do(func() {
		p.inlet.Close()
		p.cancel(ErrShutdown)
		close(p.stopCh)
		p.log.Info("pool terminated", "executed", p.stats.executed.Value())
	})
}

func (p *Pool) isTerminated() bool {
	return p.State() == PoolTerminated
}

// signalWork wakes one parked worker, if any, after new work was queued.
func (p *Pool) signalWork() {
	if p.idle.Load() == 0 {
		return
	}
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// wakeAll fills the wake channel so every parked goroutine rescans.
func (p *Pool) wakeAll() {
	for i := 0; i < cap(p.wake); i++ {
		select {
		case p.wake <- struct{}{}:
		default:
			return
		}
	}
}

func (p *Pool) enterIdle(w *worker) {
	w.idle.Store(true)
	p.recordIdle(p.idle.Add(1))
}

func (p *Pool) leaveIdle(w *worker) {
	w.idle.Store(false)
	p.recordIdle(p.idle.Add(-1))
}
