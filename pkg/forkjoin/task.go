package forkjoin

import (
	"context"
	"sync/atomic"
)

// State is the lifecycle state of a task.
type State int32

const (
	// Queued tasks sit in a deque or the inlet and have not been claimed.
	Queued State = iota
	// Running tasks have been claimed and their body is executing.
	Running
	// Completed tasks returned normally; the result is available.
	Completed
	// ExceptionallyCompleted tasks returned an error or panicked.
	ExceptionallyCompleted
	// Cancelled tasks were cancelled before any worker ran them.
	Cancelled
)

func (s State) String() string {
	switch s {
	case Queued:
		return "queued"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case ExceptionallyCompleted:
		return "exceptionally-completed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	return s >= Completed
}

// Body is the work a task performs. Execute runs on a pool worker; ctx
// carries that worker, so Fork and Join called with ctx (or a context
// derived from it) schedule onto the same pool.
type Body[T any] interface {
	Execute(ctx context.Context) (T, error)
}

// BodyFunc is a function type that implements the Body interface.
type BodyFunc[T any] func(ctx context.Context) (T, error)

// Execute implements the Body interface for BodyFunc.
func (f BodyFunc[T]) Execute(ctx context.Context) (T, error) {
	return f(ctx)
}

// runner lets the non-generic scheduler run a typed task body.
type runner interface {
	run(ctx context.Context) error
}

// taskCore is the part of a task the scheduler manipulates. Deques and the
// inlet hold *taskCore handles.
type taskCore struct {
	id     uint64
	parent uint64
	owner  int
	pool   *Pool
	self   runner

	state atomic.Int32

	// err is written once by the executing worker before state turns
	// ExceptionallyCompleted.
	err error

	// executor is the worker running the body; set after the claim.
	executor *worker

	done       atomic.Pointer[chan struct{}]
	doneClosed atomic.Bool
}

func (c *taskCore) loadState() State {
	return State(c.state.Load())
}

func (c *taskCore) isDone() bool {
	return c.loadState().Terminal()
}

// claim moves Queued to Running. Only the winner may run the body.
func (c *taskCore) claim() bool {
	return c.state.CompareAndSwap(int32(Queued), int32(Running))
}

// publish makes the outcome visible. Result and err are already written.
func (c *taskCore) publish(terminal State) {
	c.state.CompareAndSwap(int32(Running), int32(terminal))
	c.closeDone()
}

// doneCh returns a channel closed once the task is terminal. It is created
// on first use so tasks nobody parks on never allocate one.
func (c *taskCore) doneCh() <-chan struct{} {
	if p := c.done.Load(); p != nil {
		return *p
	}

	ch := make(chan struct{})
	if !c.done.CompareAndSwap(nil, &ch) {
		return *c.done.Load()
	}

	// The task may have finished before the channel was installed.
	if c.isDone() {
		c.closeDone()
	}
	return ch
}

func (c *taskCore) closeDone() {
	p := c.done.Load()
	if p == nil {
		return
	}
	if c.doneClosed.CompareAndSwap(false, true) {
		close(*p)
	}
}

// Task is a handle to a unit of forked or submitted work producing a T.
type Task[T any] struct {
	taskCore
	body   Body[T]
	result T
}

func (t *Task[T]) run(ctx context.Context) error {
	v, err := t.body.Execute(ctx)
	if err == nil {
		t.result = v
	}
	return err
}

// ID returns the pool-unique task identifier.
func (t *Task[T]) ID() uint64 {
	return t.id
}

// Parent returns the ID of the task that forked this one, or 0 for
// top-level submissions.
func (t *Task[T]) Parent() uint64 {
	return t.parent
}

// Owner returns the worker whose deque received the task at creation, or -1
// when it entered through the inlet.
func (t *Task[T]) Owner() int {
	return t.owner
}

// State returns the current lifecycle state.
func (t *Task[T]) State() State {
	return t.loadState()
}

// IsDone reports whether the task reached a terminal state.
func (t *Task[T]) IsDone() bool {
	return t.isDone()
}

// Done returns a channel that is closed when the task becomes terminal.
func (t *Task[T]) Done() <-chan struct{} {
	return t.doneCh()
}

// Cancel moves a task that no worker has claimed to Cancelled. It returns
// false, and changes nothing, once the task is running or terminal.
// Cancellation does not reach tasks this one already forked.
func (t *Task[T]) Cancel() bool {
	if t.pool == nil {
		return false
	}
	return t.pool.cancelTask(&t.taskCore)
}

// Join waits for the task and returns its outcome. A terminal task returns
// at once. Otherwise, on a worker of the owning pool, Join runs other
// pending tasks while it waits; elsewhere it blocks. If ctx is done first,
// Join returns ErrTimeout (deadline) or the context error, leaving the task
// untouched.
func (t *Task[T]) Join(ctx context.Context) (T, error) {
	if !t.isDone() {
		if err := t.pool.awaitDone(ctx, &t.taskCore); err != nil {
			var zero T
			return zero, err
		}
	}
	return t.outcome()
}

func (t *Task[T]) outcome() (T, error) {
	var zero T
	switch t.loadState() {
	case Completed:
		return t.result, nil
	case ExceptionallyCompleted:
		return zero, t.err
	default:
		return zero, cancelledError(t.id)
	}
}

// Fork creates a child task running body and pushes it onto the deque of
// the worker executing the caller. It returns without waiting. ctx must be
// the context passed to the calling task body (or derived from it) and Fork
// must be called on that body's goroutine.
//
// If ctx is already done the child is created Cancelled. Called outside a
// worker, the child is created failed with ErrNotInWorker.
func Fork[T any](ctx context.Context, body Body[T]) *Task[T] {
	current := currentTask(ctx)
	if current == nil || current.executor == nil {
		t := &Task[T]{body: body}
		t.owner = -1
		t.self = t
		t.err = &TaskError{Cause: ErrNotInWorker}
		t.state.Store(int32(ExceptionallyCompleted))
		return t
	}

	w := current.executor
	p := w.pool
	t := newTask(p, body, w.id, current.id)

	if ctx.Err() != nil {
		t.state.Store(int32(Cancelled))
		p.recordCancelled()
		return t
	}

	p.outstanding.Add(1)
	w.deque.PushBottom(&t.taskCore)
	p.recordForked()
	p.signalWork()
	return t
}

// Invoke forks body and joins it, running it inline on the calling worker.
func Invoke[T any](ctx context.Context, body Body[T]) (T, error) {
	return Fork(ctx, body).Join(ctx)
}

// ForkAll forks every body in order and returns their handles.
func ForkAll[T any](ctx context.Context, bodies ...Body[T]) []*Task[T] {
	tasks := make([]*Task[T], len(bodies))
	for i, body := range bodies {
		tasks[i] = Fork(ctx, body)
	}
	return tasks
}

func newTask[T any](p *Pool, body Body[T], owner int, parent uint64) *Task[T] {
	t := &Task[T]{body: body}
	t.id = p.nextID.Add(1)
	t.parent = parent
	t.owner = owner
	t.pool = p
	t.self = t
	return t
}

type taskKey struct{}

// withTask returns a context identifying c as the running task.
func withTask(ctx context.Context, c *taskCore) context.Context {
	return context.WithValue(ctx, taskKey{}, c)
}

func currentTask(ctx context.Context) *taskCore {
	if ctx == nil {
		return nil
	}
	c, _ := ctx.Value(taskKey{}).(*taskCore)
	return c
}

// WorkerID returns the id of the worker running the task that owns ctx.
func WorkerID(ctx context.Context) (int, bool) {
	c := currentTask(ctx)
	if c == nil || c.executor == nil {
		return 0, false
	}
	return c.executor.id, true
}

// TaskID returns the id of the task whose body received ctx.
func TaskID(ctx context.Context) (uint64, bool) {
	c := currentTask(ctx)
	if c == nil {
		return 0, false
	}
	return c.id, true
}
