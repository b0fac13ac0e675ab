package forkjoin

import (
	"context"
	"errors"

	"github.com/hashicorp/go-multierror"
)

// awaitDone blocks until c is terminal using the help-first policy.
func (p *Pool) awaitDone(ctx context.Context, c *taskCore) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.isDone() {
		return nil
	}

	if current := currentTask(ctx); current != nil {
		if w := current.executor; w != nil && w.pool == p {
			return w.helpJoin(ctx, c)
		}
	}
	return parkUntilDone(ctx, c)
}

// parkUntilDone is the wait of a goroutine that owns no deque in this pool.
func parkUntilDone(ctx context.Context, c *taskCore) error {
	select {
	case <-c.doneCh():
		return nil
	case <-ctx.Done():
		if c.isDone() {
			return nil
		}
		return interrupted(ctx)
	}
}

// helpJoin keeps w productive until target is terminal: it first tries to
// run target inline, then executes whatever it can pop, steal or take from
// the inlet, and parks only when there is nothing to help with.
func (w *worker) helpJoin(ctx context.Context, target *taskCore) error {
	p := w.pool

	if top, ok := w.deque.PeekBottom(); ok && top == target {
		// Unfork: PopBottom yields target unless a thief took it first.
		if c, ok := w.deque.PopBottom(); ok {
			p.execute(w, c, false)
		}
	}

	for !target.isDone() {
		interrupt := ctx.Done()
		if ctx.Err() != nil {
			if !stoppedByPool(ctx) {
				return interrupted(ctx)
			}
			// ShutdownNow cancelled the body context. The join still
			// completes; the target is either running or cancelled.
			interrupt = nil
		}

		if c, stolen := w.findWork(); c != nil {
			p.execute(w, c, stolen)
			continue
		}

		p.enterIdle(w)
		c, stolen := w.findWork()
		if c == nil && !target.isDone() {
			select {
			case <-target.doneCh():
			case <-p.wake:
			case <-interrupt:
			}
		}
		p.leaveIdle(w)

		if c != nil {
			p.execute(w, c, stolen)
		}
	}
	return nil
}

// stoppedByPool reports whether ctx ended only because its pool was stopped.
func stoppedByPool(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), ErrShutdown)
}

// JoinAll joins tasks in reverse fork order, so the most recently forked
// ones can run inline, and returns their results in the original order.
// Every task is joined; the failures are combined into one error.
func JoinAll[T any](ctx context.Context, tasks []*Task[T]) ([]T, error) {
	results := make([]T, len(tasks))
	var errs *multierror.Error

	for i := len(tasks) - 1; i >= 0; i-- {
		v, err := tasks[i].Join(ctx)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		results[i] = v
	}
	return results, errs.ErrorOrNil()
}

// InvokeAll forks every body and joins them all.
func InvokeAll[T any](ctx context.Context, bodies ...Body[T]) ([]T, error) {
	return JoinAll(ctx, ForkAll(ctx, bodies...))
}
