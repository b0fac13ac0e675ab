package deque

import (
	"sync/atomic"

	"github.com/vnykmshr/forkjoin/pkg/common/validation"
)

// DefaultCapacity is the ring size used when New is given zero.
const DefaultCapacity = 32

// ring is a fixed power-of-two array of task slots. Indices are the deque's
// logical positions; the physical slot is index & mask.
type ring[T any] struct {
	mask  int64
	slots []atomic.Pointer[T]
}

func newRing[T any](capacity int64) *ring[T] {
	return &ring[T]{
		mask:  capacity - 1,
		slots: make([]atomic.Pointer[T], capacity),
	}
}

func (r *ring[T]) cap() int64 {
	return r.mask + 1
}

func (r *ring[T]) load(i int64) *T {
	return r.slots[i&r.mask].Load()
}

func (r *ring[T]) store(i int64, x *T) {
	r.slots[i&r.mask].Store(x)
}

// grow returns a ring twice as large holding the live range [top, bottom).
func (r *ring[T]) grow(top, bottom int64) *ring[T] {
	next := newRing[T](r.cap() * 2)
	for i := top; i < bottom; i++ {
		next.store(i, r.load(i))
	}
	return next
}

// Deque is a lock-free work-stealing deque.
//
// PushBottom, PopBottom and PeekBottom may only be called by the owning
// goroutine. Steal, Len, Cap and Snapshot are safe from any goroutine.
type Deque[T any] struct {
	top    atomic.Int64
	bottom atomic.Int64
	array  atomic.Pointer[ring[T]]
}

// New creates a deque whose initial ring holds at least capacity elements.
// Zero selects DefaultCapacity; capacities are rounded up to a power of two.
func New[T any](capacity int) (*Deque[T], error) {
	if err := validation.ValidateNonNegative("deque", "capacity", capacity); err != nil {
		return nil, err
	}
	if capacity == 0 {
		capacity = DefaultCapacity
	}

	d := &Deque[T]{}
	d.array.Store(newRing[T](roundUpPow2(int64(capacity))))
	return d, nil
}

// PushBottom appends x at the owner's end, growing the ring when full.
func (d *Deque[T]) PushBottom(x *T) {
	b := d.bottom.Load()
	t := d.top.Load()
	a := d.array.Load()

	if b-t >= a.cap() {
		a = a.grow(t, b)
		d.array.Store(a)
	}

	a.store(b, x)
	d.bottom.Store(b + 1)
}

// PopBottom removes the most recently pushed element. It reports false when
// the deque is empty or a thief claimed the last element first.
func (d *Deque[T]) PopBottom() (*T, bool) {
	b := d.bottom.Load() - 1
	a := d.array.Load()
	d.bottom.Store(b)
	t := d.top.Load()

	if t > b {
		d.bottom.Store(b + 1)
		return nil, false
	}

	x := a.load(b)
	if t < b {
		a.store(b, nil)
		return x, true
	}

	// Last element: race thieves for it through top.
	won := d.top.CompareAndSwap(t, t+1)
	d.bottom.Store(b + 1)
	if !won {
		return nil, false
	}
	a.store(b, nil)
	return x, true
}

// Steal claims the oldest element. A lost race reports false; retrying is
// the caller's decision.
func (d *Deque[T]) Steal() (*T, bool) {
	t := d.top.Load()
	b := d.bottom.Load()
	if t >= b {
		return nil, false
	}

	a := d.array.Load()
	x := a.load(t)
	if !d.top.CompareAndSwap(t, t+1) {
		return nil, false
	}
	return x, true
}

// PeekBottom returns the element PopBottom would return without removing it.
// Owner only.
func (d *Deque[T]) PeekBottom() (*T, bool) {
	b := d.bottom.Load() - 1
	if d.top.Load() > b {
		return nil, false
	}
	return d.array.Load().load(b), true
}

// Len returns the number of elements in [top, bottom). The value is a
// snapshot and may be stale by the time it is read.
func (d *Deque[T]) Len() int {
	n := d.bottom.Load() - d.top.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}

// Cap returns the current ring size.
func (d *Deque[T]) Cap() int {
	return int(d.array.Load().cap())
}

// Snapshot returns the live elements from top to bottom. It claims nothing;
// under concurrent mutation the view is best effort and may include
// elements that are being popped or stolen.
func (d *Deque[T]) Snapshot() []*T {
	t := d.top.Load()
	b := d.bottom.Load()
	a := d.array.Load()
	if b-t > a.cap() {
		b = t + a.cap()
	}

	out := make([]*T, 0, max(b-t, 0))
	for i := t; i < b; i++ {
		if x := a.load(i); x != nil {
			out = append(out, x)
		}
	}
	return out
}

func roundUpPow2(n int64) int64 {
	p := int64(1)
	for p < n {
		p <<= 1
	}
	return p
}
