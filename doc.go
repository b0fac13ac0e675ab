/*
Package forkjoin is the root of a Go library for recursive parallelism with
a work-stealing fork/join scheduler.

Scheduling (pkg/forkjoin):
  - Pool: fixed workers, per-worker deques, help-first joins, graceful and
    immediate shutdown
  - Task: fork, join, cancel and typed results

Building blocks:
  - deque: lock-free work-stealing deque (owner LIFO, thieves FIFO)
  - queue: bounded blocking queue used as the pool's submission inlet
  - periodic: one-shot, interval and cron submission onto a pool
  - metrics: Prometheus instrumentation shared by the above

Example usage:

	import "github.com/vnykmshr/forkjoin/pkg/forkjoin"

	pool := forkjoin.New(8)
	defer func() { <-pool.Shutdown() }()

	total, err := forkjoin.InvokeOn[int64](ctx, pool, sumRange{lo: 1, hi: 1_000_000})

The forkjoin command (cmd/forkjoin) runs sample workloads from the shell.
*/
package forkjoin
