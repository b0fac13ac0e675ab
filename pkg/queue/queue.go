package queue

import (
	"context"
	"sync"
	"sync/atomic"

	fjerrors "github.com/vnykmshr/forkjoin/pkg/common/errors"
	"github.com/vnykmshr/forkjoin/pkg/common/validation"
)

// Strategy defines how Send behaves when the queue is full.
type Strategy int

const (
	// Block strategy blocks the producer until space is available.
	Block Strategy = iota

	// Error strategy returns ErrFull when the buffer is full.
	Error
)

// String returns the strategy name used in configuration files.
func (s Strategy) String() string {
	switch s {
	case Block:
		return "block"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// ParseStrategy converts a configuration string into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "", "block":
		return Block, nil
	case "error":
		return Error, nil
	default:
		return Block, fjerrors.NewValidationError("queue", "strategy", s, "unknown strategy").
			WithHint(`use "block" or "error"`)
	}
}

// ErrFull is returned when the buffer is full and the strategy is Error.
var ErrFull = fjerrors.NewOperationError("queue", "Send", fjerrors.ErrCapacityExceeded)

// Stats holds counters describing queue traffic.
type Stats struct {
	// SendCount is the total number of accepted sends.
	SendCount int64

	// ReceiveCount is the total number of successful receives.
	ReceiveCount int64

	// RejectedCount is the number of sends refused with ErrFull.
	RejectedCount int64

	// BlockedSends is the number of sends that had to wait for space.
	BlockedSends int64
}

// Config holds configuration for a Queue.
type Config struct {
	// Capacity is the maximum number of buffered elements.
	Capacity int

	// Strategy defines how a full queue is handled.
	Strategy Strategy

	// OnBlock is called when a send has to wait for space.
	OnBlock func()
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		Capacity: 1024,
		Strategy: Block,
	}
}

// Queue is a bounded multi-producer multi-consumer FIFO queue.
type Queue[T any] struct {
	config Config

	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond
	buffer   []T
	head     int
	tail     int
	count    int
	closed   atomic.Bool

	// length mirrors count for lock-free emptiness checks.
	length atomic.Int64

	sends    atomic.Int64
	receives atomic.Int64
	rejected atomic.Int64
	blocked  atomic.Int64
}

// New creates a queue with the given capacity and the Block strategy.
func New[T any](capacity int) (*Queue[T], error) {
	config := DefaultConfig()
	config.Capacity = capacity
	return NewWithConfig[T](config)
}

// NewWithConfig creates a queue with the specified configuration.
func NewWithConfig[T any](config Config) (*Queue[T], error) {
	if err := validation.ValidatePositive("queue", "capacity", config.Capacity); err != nil {
		return nil, err
	}

	q := &Queue[T]{
		config: config,
		buffer: make([]T, config.Capacity),
	}
	q.notFull = sync.NewCond(&q.mu)
	q.notEmpty = sync.NewCond(&q.mu)
	return q, nil
}

// Send enqueues value, applying the configured strategy when full. A blocked
// Send returns ctx.Err() when ctx is done and fjerrors.ErrClosed when the
// queue is closed while waiting.
func (q *Queue[T]) Send(ctx context.Context, value T) error {
	if q.closed.Load() {
		return fjerrors.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count >= len(q.buffer) {
		if q.config.Strategy == Error {
			q.rejected.Add(1)
			return ErrFull
		}

		q.blocked.Add(1)
		if q.config.OnBlock != nil {
			q.config.OnBlock()
		}

		// Cond.Wait cannot observe ctx, so wake every waiter on cancellation.
		stop := context.AfterFunc(ctx, func() {
			q.mu.Lock()
			q.notFull.Broadcast()
			q.mu.Unlock()
		})
		defer stop()

		for q.count >= len(q.buffer) && !q.closed.Load() {
			if err := ctx.Err(); err != nil {
				return err
			}
			q.notFull.Wait()
		}
	}

	if q.closed.Load() {
		return fjerrors.ErrClosed
	}

	q.pushLocked(value)
	q.sends.Add(1)
	q.notEmpty.Signal()
	return nil
}

// TrySend enqueues value without blocking, returning ErrFull when there is
// no space regardless of strategy.
func (q *Queue[T]) TrySend(value T) error {
	if q.closed.Load() {
		return fjerrors.ErrClosed
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count >= len(q.buffer) {
		q.rejected.Add(1)
		return ErrFull
	}

	q.pushLocked(value)
	q.sends.Add(1)
	q.notEmpty.Signal()
	return nil
}

// Receive dequeues the oldest value, blocking until one is available, ctx
// is done, or the queue is closed and drained.
func (q *Queue[T]) Receive(ctx context.Context) (T, error) {
	var zero T

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		stop := context.AfterFunc(ctx, func() {
			q.mu.Lock()
			q.notEmpty.Broadcast()
			q.mu.Unlock()
		})
		defer stop()

		for q.count == 0 && !q.closed.Load() {
			if err := ctx.Err(); err != nil {
				return zero, err
			}
			q.notEmpty.Wait()
		}
	}

	if q.count == 0 {
		return zero, fjerrors.ErrClosed
	}

	value := q.popLocked()
	q.receives.Add(1)
	q.notFull.Signal()
	return value, nil
}

// TryReceive dequeues the oldest value without blocking. Closed queues keep
// yielding buffered values until drained.
func (q *Queue[T]) TryReceive() (T, bool) {
	var zero T

	if q.length.Load() == 0 {
		return zero, false
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return zero, false
	}

	value := q.popLocked()
	q.receives.Add(1)
	q.notFull.Signal()
	return value, true
}

// Drain removes and returns every buffered value.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]T, 0, q.count)
	for q.count > 0 {
		out = append(out, q.popLocked())
	}
	q.receives.Add(int64(len(out)))
	q.notFull.Broadcast()
	return out
}

// Close stops further sends. Buffered values remain receivable.
func (q *Queue[T]) Close() error {
	if !q.closed.CompareAndSwap(false, true) {
		return nil // Already closed
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.notFull.Broadcast()
	q.notEmpty.Broadcast()
	return nil
}

// IsClosed returns true if the queue is closed.
func (q *Queue[T]) IsClosed() bool {
	return q.closed.Load()
}

// Len returns the current number of buffered elements.
func (q *Queue[T]) Len() int {
	return int(q.length.Load())
}

// Cap returns the buffer capacity.
func (q *Queue[T]) Cap() int {
	return len(q.buffer)
}

// Stats returns queue statistics.
func (q *Queue[T]) Stats() Stats {
	return Stats{
		SendCount:     q.sends.Load(),
		ReceiveCount:  q.receives.Load(),
		RejectedCount: q.rejected.Load(),
		BlockedSends:  q.blocked.Load(),
	}
}

// pushLocked adds a value to the buffer (must hold lock).
func (q *Queue[T]) pushLocked(value T) {
	q.buffer[q.tail] = value
	q.tail = (q.tail + 1) % len(q.buffer)
	q.count++
	q.length.Store(int64(q.count))
}

// popLocked removes a value from the buffer (must hold lock).
func (q *Queue[T]) popLocked() T {
	value := q.buffer[q.head]
	var zero T
	q.buffer[q.head] = zero // Clear reference
	q.head = (q.head + 1) % len(q.buffer)
	q.count--
	q.length.Store(int64(q.count))
	return value
}
