package forkjoin

import (
	"context"
	"errors"
	"fmt"

	fjerrors "github.com/vnykmshr/forkjoin/pkg/common/errors"
)

// Errors returned by pool and task operations. They alias the shared
// sentinels in pkg/common/errors so either name matches with errors.Is.
var (
	// ErrRejected is returned by Submit once the pool has begun shutting down.
	ErrRejected = fjerrors.ErrRejected

	// ErrShutdown is returned by InvokeOn once shutdown has been initiated.
	ErrShutdown = fjerrors.ErrShutdown

	// ErrCancelled is returned by Join when the task was cancelled before it ran.
	ErrCancelled = fjerrors.ErrCancelled

	// ErrNotInWorker is the failure of a task forked outside a worker.
	ErrNotInWorker = fjerrors.ErrNotInWorker

	// ErrTimeout is returned by Join when its context deadline passes first.
	ErrTimeout = fjerrors.ErrTimeout
)

// TaskError is the failure of a task body, reported only to its joiners.
type TaskError struct {
	TaskID uint64
	Cause  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("forkjoin: task %d failed: %v", e.TaskID, e.Cause)
}

func (e *TaskError) Unwrap() error {
	return e.Cause
}

// IsTaskError reports whether err is or wraps a *TaskError.
func IsTaskError(err error) bool {
	var terr *TaskError
	return errors.As(err, &terr)
}

// cancelledError is what Join returns for a Cancelled task.
func cancelledError(id uint64) error {
	return fmt.Errorf("forkjoin: task %d: %w", id, ErrCancelled)
}

// interrupted converts a done join context into the error Join reports.
func interrupted(ctx context.Context) error {
	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fjerrors.NewOperationError("forkjoin", "Join", err)
}
