/*
Package queue provides a bounded producer/consumer queue.

forkjoin uses it as the inlet for submissions that arrive from goroutines
which are not pool workers: those goroutines own no deque, so their tasks
wait here until an idle worker polls the inlet.

	q, _ := queue.New[*job](128)

	// producer
	if err := q.Send(ctx, j); err != nil {
		return err
	}

	// consumer, non-blocking
	if j, ok := q.TryReceive(); ok {
		run(j)
	}

Strategies:

	Block: Send waits for space (honouring ctx cancellation)
	Error: Send fails immediately with ErrFull

ErrFull wraps errors.ErrCapacityExceeded, so errors.IsRetryable reports true
for it. Closing a queue rejects further sends with errors.ErrClosed while
buffered values remain receivable; Drain empties the buffer in one call.
*/
package queue
