package forkjoin

import (
	"runtime"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/vnykmshr/forkjoin/pkg/common/validation"
	"github.com/vnykmshr/forkjoin/pkg/deque"
	"github.com/vnykmshr/forkjoin/pkg/metrics"
	"github.com/vnykmshr/forkjoin/pkg/queue"
)

// Config holds configuration options for creating a Pool.
type Config struct {
	// Name identifies the pool in logs and metric labels.
	// If empty, a random "forkjoin-xxxxxxxx" name is generated.
	Name string

	// Parallelism is the number of worker goroutines.
	// Zero selects runtime.GOMAXPROCS(0).
	Parallelism int

	// InitialDequeCapacity is the per-worker deque size before its first
	// growth. Zero selects deque.DefaultCapacity.
	InitialDequeCapacity int

	// InletCapacity bounds the queue holding submissions made from
	// goroutines that are not workers of this pool.
	InletCapacity int

	// InletStrategy decides what Submit does when the inlet is full.
	InletStrategy queue.Strategy

	// Logger receives scheduler-level events. If nil, nothing is logged.
	Logger hclog.Logger

	// Metrics configures Prometheus instrumentation. Disabled by default.
	Metrics metrics.Config

	// PanicHandler is called when a task body panics. The panic is always
	// recovered and surfaced to joiners as a *TaskError.
	PanicHandler func(taskID uint64, recovered interface{})

	// OnWorkerStart is called on the worker goroutine before it takes work.
	OnWorkerStart func(workerID int)

	// OnWorkerStop is called on the worker goroutine after it leaves the loop.
	OnWorkerStop func(workerID int)
}

// DefaultConfig returns the configuration used by New.
func DefaultConfig() Config {
	return Config{
		Parallelism:          runtime.GOMAXPROCS(0),
		InitialDequeCapacity: deque.DefaultCapacity,
		InletCapacity:        queue.DefaultConfig().Capacity,
		InletStrategy:        queue.Block,
	}
}

// withDefaults validates config and fills zero values.
func (c Config) withDefaults() (Config, error) {
	if err := validation.ValidateNonNegative("forkjoin", "parallelism", c.Parallelism); err != nil {
		return c, err
	}
	if err := validation.ValidateNonNegative("forkjoin", "initialDequeCapacity", c.InitialDequeCapacity); err != nil {
		return c, err
	}
	if err := validation.ValidateNonNegative("forkjoin", "inletCapacity", c.InletCapacity); err != nil {
		return c, err
	}

	if c.Parallelism == 0 {
		c.Parallelism = runtime.GOMAXPROCS(0)
	}
	if c.InitialDequeCapacity == 0 {
		c.InitialDequeCapacity = deque.DefaultCapacity
	}
	if c.InletCapacity == 0 {
		c.InletCapacity = queue.DefaultConfig().Capacity
	}
	if c.Name == "" {
		c.Name = "forkjoin-" + uuid.NewString()[:8]
	}
	if c.Logger == nil {
		c.Logger = hclog.NewNullLogger()
	}
	return c, nil
}
