package forkjoin

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vnykmshr/forkjoin/internal/testutil"
)

// newTestPool creates a pool that is shut down and awaited when the test ends.
func newTestPool(t *testing.T, parallelism int) *Pool {
	t.Helper()
	config := DefaultConfig()
	config.Parallelism = parallelism
	config.Name = t.Name()
	return newTestPoolWithConfig(t, config)
}

func newTestPoolWithConfig(t *testing.T, config Config) *Pool {
	t.Helper()
	p, err := NewWithConfig(config)
	testutil.AssertNoError(t, err)
	t.Cleanup(func() {
		select {
		case <-p.ShutdownNow():
		case <-time.After(testutil.TestTimeout):
			t.Errorf("pool %s did not terminate", p.Name())
		}
	})
	return p
}

// rangeSum adds the integers in [lo, hi], splitting ranges wider than
// threshold.
type rangeSum struct {
	lo, hi    int64
	threshold int64
}

func (r rangeSum) Execute(ctx context.Context) (int64, error) {
	if r.hi-r.lo+1 <= r.threshold {
		var s int64
		for i := r.lo; i <= r.hi; i++ {
			s += i
		}
		return s, nil
	}

	mid := r.lo + (r.hi-r.lo)/2
	left := Fork[int64](ctx, rangeSum{r.lo, mid, r.threshold})
	right, err := rangeSum{mid + 1, r.hi, r.threshold}.Execute(ctx)
	if err != nil {
		return 0, err
	}
	l, err := left.Join(ctx)
	if err != nil {
		return 0, err
	}
	return l + right, nil
}

// rangeProduct multiplies the integers in [lo, hi], forking both halves.
type rangeProduct struct {
	lo, hi int64
}

func (r rangeProduct) Execute(ctx context.Context) (int64, error) {
	if r.lo == r.hi {
		return r.lo, nil
	}
	mid := r.lo + (r.hi-r.lo)/2
	products, err := InvokeAll[int64](ctx, rangeProduct{r.lo, mid}, rangeProduct{mid + 1, r.hi})
	if err != nil {
		return 0, err
	}
	return products[0] * products[1], nil
}

// fib is deliberately naive so that joins nest deeply.
type fib int

func (n fib) Execute(ctx context.Context) (int, error) {
	if n < 2 {
		return int(n), nil
	}
	a := Fork[int](ctx, n-1)
	b, err := Invoke[int](ctx, n-2)
	if err != nil {
		return 0, err
	}
	av, err := a.Join(ctx)
	return av + b, err
}

// countedLeaves forks one task per leaf and records each execution.
type countedLeaves struct {
	lo, hi int
	runs   []int32
	total  *atomic.Int64
}

func (c countedLeaves) Execute(ctx context.Context) (struct{}, error) {
	if c.lo == c.hi {
		atomic.AddInt32(&c.runs[c.lo], 1)
		c.total.Add(1)
		return struct{}{}, nil
	}
	mid := c.lo + (c.hi-c.lo)/2
	left := Fork[struct{}](ctx, countedLeaves{c.lo, mid, c.runs, c.total})
	right := Fork[struct{}](ctx, countedLeaves{mid + 1, c.hi, c.runs, c.total})
	if _, err := right.Join(ctx); err != nil {
		return struct{}{}, err
	}
	_, err := left.Join(ctx)
	return struct{}{}, err
}
