package periodic

import (
	"context"
	"time"
)

// Job is the work dispatched each time an entry is due. Execute runs as a
// top-level task on the scheduler's pool, so ctx may be used with
// forkjoin.Fork and Task.Join.
type Job interface {
	Execute(ctx context.Context) error
}

// JobFunc is a function type that implements the Job interface.
type JobFunc func(ctx context.Context) error

// Execute implements the Job interface for JobFunc.
func (f JobFunc) Execute(ctx context.Context) error {
	return f(ctx)
}

// Retry wraps a job with exponential backoff between attempts.
type Retry struct {
	Job          Job
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// Execute runs the wrapped job until it succeeds, MaxRetries retries are
// used up or ctx is done. The delay doubles after every failure.
func (r Retry) Execute(ctx context.Context) error {
	var lastErr error
	delay := r.InitialDelay

	for attempt := 0; attempt <= r.MaxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}

			delay *= 2
			if r.MaxDelay > 0 && delay > r.MaxDelay {
				delay = r.MaxDelay
			}
		}

		lastErr = r.Job.Execute(ctx)
		if lastErr == nil {
			return nil
		}
	}

	return lastErr
}
