package main

import (
	"context"

	"github.com/vnykmshr/forkjoin/pkg/forkjoin"
)

// sumRange adds the integers in [lo, hi].
type sumRange struct {
	lo, hi    int64
	threshold int64
}

func (r sumRange) Execute(ctx context.Context) (int64, error) {
	if r.hi-r.lo+1 <= r.threshold {
		var s int64
		for i := r.lo; i <= r.hi; i++ {
			s += i
		}
		return s, nil
	}

	mid := r.lo + (r.hi-r.lo)/2
	left := forkjoin.Fork[int64](ctx, sumRange{r.lo, mid, r.threshold})
	right, err := sumRange{mid + 1, r.hi, r.threshold}.Execute(ctx)
	if err != nil {
		return 0, err
	}
	l, err := left.Join(ctx)
	if err != nil {
		return 0, err
	}
	return l + right, nil
}

// fibonacci computes the n-th Fibonacci number, sequentially below cutoff.
type fibonacci struct {
	n, cutoff int
}

func (f fibonacci) Execute(ctx context.Context) (int64, error) {
	if f.n <= f.cutoff {
		return seqFib(f.n), nil
	}
	a := forkjoin.Fork[int64](ctx, fibonacci{f.n - 1, f.cutoff})
	b, err := fibonacci{f.n - 2, f.cutoff}.Execute(ctx)
	if err != nil {
		return 0, err
	}
	av, err := a.Join(ctx)
	return av + b, err
}

func seqFib(n int) int64 {
	if n < 2 {
		return int64(n)
	}
	var a, b int64 = 0, 1
	for i := 1; i < n; i++ {
		a, b = b, a+b
	}
	return b
}

// product multiplies the integers in [lo, hi].
type product struct {
	lo, hi int64
}

func (p product) Execute(ctx context.Context) (int64, error) {
	if p.hi-p.lo < 2 {
		r := int64(1)
		for i := p.lo; i <= p.hi; i++ {
			r *= i
		}
		return r, nil
	}
	mid := p.lo + (p.hi-p.lo)/2
	parts, err := forkjoin.InvokeAll[int64](ctx, product{p.lo, mid}, product{mid + 1, p.hi})
	if err != nil {
		return 0, err
	}
	return parts[0] * parts[1], nil
}
