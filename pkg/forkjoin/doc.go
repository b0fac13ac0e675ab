/*
Package forkjoin provides a work-stealing scheduler for recursive,
divide-and-conquer workloads.

A Pool runs a fixed number of worker goroutines. Each worker owns a
lock-free deque (see pkg/deque). A running task splits its work by forking
children onto its worker's deque and later joins them; idle workers steal
the oldest, coarsest tasks from the top of their peers' deques.

Basic usage:

	pool := forkjoin.New(runtime.NumCPU())
	defer func() { <-pool.Shutdown() }()

	total, err := forkjoin.InvokeOn[int64](ctx, pool, sumRange{lo: 1, hi: 1_000_000})

A recursive body forks one half and computes the other itself:

	type sumRange struct{ lo, hi int64 }

	func (r sumRange) Execute(ctx context.Context) (int64, error) {
		if r.hi-r.lo < 1000 {
			var s int64
			for i := r.lo; i <= r.hi; i++ {
				s += i
			}
			return s, nil
		}
		mid := (r.lo + r.hi) / 2
		left := forkjoin.Fork[int64](ctx, sumRange{r.lo, mid})
		right, err := sumRange{mid + 1, r.hi}.Execute(ctx)
		if err != nil {
			return 0, err
		}
		l, err := left.Join(ctx)
		return l + right, err
	}

The ctx handed to Execute identifies the worker running the body. Fork and
Join must be called with it (or a context derived from it) on the body's own
goroutine.

Joining:

Join never parks a worker while there is runnable work. If the joined task is
still at the bottom of the caller's deque it runs inline. Otherwise the
caller pops its own deque, steals from peers and drains the submission
inlet, re-checking the joined task after each execution, and parks only when
nothing is runnable anywhere. A pool therefore does not deadlock on nested
joins regardless of its size. Goroutines that are not workers of the pool
simply wait.

Join on a terminal task returns immediately. A context deadline bounds the
wait and yields ErrTimeout without disturbing the task.

Errors:

Task failures stay with the task. An error returned by a body, or a panic
inside it, is stored and surfaced only to callers of Join as a *TaskError
wrapping the original failure. The worker keeps running and sibling tasks
are unaffected.

	ErrRejected   Submit after shutdown began
	ErrShutdown   InvokeOn after shutdown began
	ErrCancelled  Join on a task cancelled before it ran
	ErrTimeout    Join context deadline passed

Cancellation:

Task.Cancel succeeds only while the task is queued and unclaimed. A running
body observes cancellation at its fork points: once ShutdownNow cancels the
pool context, Fork returns children that are already Cancelled.

Shutdown:

	<-pool.Shutdown()    // reject submissions, finish queued and forked work
	<-pool.ShutdownNow() // also cancel everything still queued

Both return a channel that closes once no task is outstanding and every
worker has exited.

Observability:

Config.Logger accepts an hclog.Logger for lifecycle events; Config.Metrics
enables Prometheus series labelled with Config.Name; Pool.Stats returns the
same counters without Prometheus.
*/
package forkjoin
