// Package metrics provides Prometheus instrumentation for forkjoin components.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all metric instances for forkjoin components.
type Registry struct {
	// Task Metrics
	TasksForked    *prometheus.CounterVec
	TasksSubmitted *prometheus.CounterVec
	TasksExecuted  *prometheus.CounterVec
	TasksStolen    *prometheus.CounterVec
	TasksCompleted *prometheus.CounterVec
	TasksFailed    *prometheus.CounterVec
	TasksCancelled *prometheus.CounterVec
	TaskDuration   *prometheus.HistogramVec

	// Pool Metrics
	PoolSize    *prometheus.GaugeVec
	IdleWorkers *prometheus.GaugeVec
	Outstanding *prometheus.GaugeVec
	InletQueued *prometheus.GaugeVec

	// Periodic Submission Metrics
	JobsScheduled  *prometheus.CounterVec
	JobsDispatched *prometheus.CounterVec
	JobsRejected   *prometheus.CounterVec
}

type registryKey struct {
	reg       prometheus.Registerer
	namespace string
}

var (
	sharedMu sync.Mutex
	shared   = map[registryKey]*Registry{}
)

// Default returns the registry bound to prometheus.DefaultRegisterer.
func Default() *Registry {
	return FromConfig(DefaultConfig())
}

// FromConfig returns the registry for config.Registry and config.Namespace,
// creating and registering it on first use. Components sharing a Prometheus
// registerer share the metric vectors and are told apart by their name label.
func FromConfig(config Config) *Registry {
	reg := config.Registry
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	namespace := config.Namespace
	if namespace == "" {
		namespace = DefaultNamespace
	}

	sharedMu.Lock()
	defer sharedMu.Unlock()

	key := registryKey{reg: reg, namespace: namespace}
	if r, ok := shared[key]; ok {
		return r
	}

	r := newRegistry(reg, namespace, config.Labels)
	shared[key] = r
	return r
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
// Registering twice against the same registerer panics; use FromConfig to share.
func NewRegistry(reg prometheus.Registerer) *Registry {
	return newRegistry(reg, DefaultNamespace, nil)
}

func newRegistry(reg prometheus.Registerer, namespace string, labels prometheus.Labels) *Registry {
	factory := promauto.With(reg)

	counter := func(subsystem, name, help string, labelNames ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   subsystem,
				Name:        name,
				Help:        help,
				ConstLabels: labels,
			},
			labelNames,
		)
	}
	gauge := func(subsystem, name, help string, labelNames ...string) *prometheus.GaugeVec {
		return factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   namespace,
				Subsystem:   subsystem,
				Name:        name,
				Help:        help,
				ConstLabels: labels,
			},
			labelNames,
		)
	}

	return &Registry{
		TasksForked:    counter("pool", "tasks_forked_total", "Total number of tasks forked by running tasks", "pool_name"),
		TasksSubmitted: counter("pool", "tasks_submitted_total", "Total number of top-level tasks submitted", "pool_name"),
		TasksExecuted:  counter("pool", "tasks_executed_total", "Total number of task bodies started", "pool_name"),
		TasksStolen:    counter("pool", "tasks_stolen_total", "Total number of tasks claimed by stealing", "pool_name"),
		TasksCompleted: counter("pool", "tasks_completed_total", "Total number of tasks completed successfully", "pool_name"),
		TasksFailed:    counter("pool", "tasks_failed_total", "Total number of tasks completed exceptionally", "pool_name"),
		TasksCancelled: counter("pool", "tasks_cancelled_total", "Total number of tasks cancelled before running", "pool_name"),

		TaskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   namespace,
				Subsystem:   "pool",
				Name:        "task_duration_seconds",
				Help:        "Time spent executing task bodies, including nested joins",
				Buckets:     prometheus.ExponentialBuckets(0.00001, 4, 12),
				ConstLabels: labels,
			},
			[]string{"pool_name"},
		),

		PoolSize:    gauge("pool", "size", "Number of workers in the pool", "pool_name"),
		IdleWorkers: gauge("pool", "idle_workers", "Number of workers parked waiting for work", "pool_name"),
		Outstanding: gauge("pool", "outstanding_tasks", "Number of tasks not yet terminal", "pool_name"),
		InletQueued: gauge("pool", "inlet_queued_tasks", "Number of external submissions waiting in the inlet", "pool_name"),

		JobsScheduled:  counter("periodic", "jobs_scheduled_total", "Total number of periodic jobs registered", "scheduler_name"),
		JobsDispatched: counter("periodic", "jobs_dispatched_total", "Total number of periodic runs submitted to a pool", "scheduler_name"),
		JobsRejected:   counter("periodic", "jobs_rejected_total", "Total number of periodic runs the pool refused", "scheduler_name"),
	}
}
