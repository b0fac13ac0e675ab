package forkjoin

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/vnykmshr/forkjoin/pkg/metrics"
)

// Stats is a point-in-time view of pool activity. Counters are cumulative.
type Stats struct {
	State       PoolState
	Parallelism int
	Outstanding int64
	IdleWorkers int
	InletQueued int

	Submitted int64
	Forked    int64
	Executed  int64
	Stolen    int64
	Completed int64
	Failed    int64
	Cancelled int64
}

// poolStats holds counters bumped by every worker. Striped counters keep
// the hot path free of a single contended cache line.
type poolStats struct {
	submitted *xsync.Counter
	forked    *xsync.Counter
	executed  *xsync.Counter
	stolen    *xsync.Counter
	completed *xsync.Counter
	failed    *xsync.Counter
	cancelled *xsync.Counter
}

func newPoolStats() *poolStats {
	return &poolStats{
		submitted: xsync.NewCounter(),
		forked:    xsync.NewCounter(),
		executed:  xsync.NewCounter(),
		stolen:    xsync.NewCounter(),
		completed: xsync.NewCounter(),
		failed:    xsync.NewCounter(),
		cancelled: xsync.NewCounter(),
	}
}

// Stats returns current pool statistics.
func (p *Pool) Stats() Stats {
	return Stats{
		State:       p.State(),
		Parallelism: len(p.workers),
		Outstanding: p.outstanding.Load(),
		IdleWorkers: int(p.idle.Load()),
		InletQueued: p.inlet.Len(),
		Submitted:   p.stats.submitted.Value(),
		Forked:      p.stats.forked.Value(),
		Executed:    p.stats.executed.Value(),
		Stolen:      p.stats.stolen.Value(),
		Completed:   p.stats.completed.Value(),
		Failed:      p.stats.failed.Value(),
		Cancelled:   p.stats.cancelled.Value(),
	}
}

// poolMetrics holds Prometheus series curried with the pool name.
type poolMetrics struct {
	forked      prometheus.Counter
	submitted   prometheus.Counter
	executed    prometheus.Counter
	stolen      prometheus.Counter
	completed   prometheus.Counter
	failed      prometheus.Counter
	cancelled   prometheus.Counter
	duration    prometheus.Observer
	size        prometheus.Gauge
	idle        prometheus.Gauge
	outstanding prometheus.Gauge
	inlet       prometheus.Gauge
}

func newPoolMetrics(name string, config metrics.Config, parallelism int) *poolMetrics {
	r := metrics.FromConfig(config)
	m := &poolMetrics{
		forked:      r.TasksForked.WithLabelValues(name),
		submitted:   r.TasksSubmitted.WithLabelValues(name),
		executed:    r.TasksExecuted.WithLabelValues(name),
		stolen:      r.TasksStolen.WithLabelValues(name),
		completed:   r.TasksCompleted.WithLabelValues(name),
		failed:      r.TasksFailed.WithLabelValues(name),
		cancelled:   r.TasksCancelled.WithLabelValues(name),
		duration:    r.TaskDuration.WithLabelValues(name),
		size:        r.PoolSize.WithLabelValues(name),
		idle:        r.IdleWorkers.WithLabelValues(name),
		outstanding: r.Outstanding.WithLabelValues(name),
		inlet:       r.InletQueued.WithLabelValues(name),
	}
	m.size.Set(float64(parallelism))
	return m
}

// EnableMetrics starts reporting to the registry described by config.
func (p *Pool) EnableMetrics(config metrics.Config) error {
	if !config.Enabled {
		p.DisableMetrics()
		return nil
	}
	m := newPoolMetrics(p.config.Name, config, len(p.workers))
	m.outstanding.Set(float64(p.outstanding.Load()))
	m.idle.Set(float64(p.idle.Load()))
	p.metrics.Store(m)
	return nil
}

// DisableMetrics stops metrics collection.
func (p *Pool) DisableMetrics() {
	p.metrics.Store(nil)
}

// MetricsEnabled returns true if metrics are currently enabled.
func (p *Pool) MetricsEnabled() bool {
	return p.metrics.Load() != nil
}

func (p *Pool) recordSubmitted() {
	p.stats.submitted.Inc()
	if m := p.metrics.Load(); m != nil {
		m.submitted.Inc()
		m.outstanding.Set(float64(p.outstanding.Load()))
		m.inlet.Set(float64(p.inlet.Len()))
	}
}

func (p *Pool) recordForked() {
	p.stats.forked.Inc()
	if m := p.metrics.Load(); m != nil {
		m.forked.Inc()
		m.outstanding.Set(float64(p.outstanding.Load()))
	}
}

func (p *Pool) recordInlet() {
	if m := p.metrics.Load(); m != nil {
		m.inlet.Set(float64(p.inlet.Len()))
	}
}

func (p *Pool) recordExecuted(stolen bool) {
	p.stats.executed.Inc()
	if stolen {
		p.stats.stolen.Inc()
	}
	if m := p.metrics.Load(); m != nil {
		m.executed.Inc()
		if stolen {
			m.stolen.Inc()
		}
	}
}

func (p *Pool) recordFinished(terminal State, d time.Duration) {
	if terminal == Completed {
		p.stats.completed.Inc()
	} else {
		p.stats.failed.Inc()
	}
	if m := p.metrics.Load(); m != nil {
		m.duration.Observe(d.Seconds())
		if terminal == Completed {
			m.completed.Inc()
		} else {
			m.failed.Inc()
		}
	}
}

func (p *Pool) recordCancelled() {
	p.stats.cancelled.Inc()
	if m := p.metrics.Load(); m != nil {
		m.cancelled.Inc()
	}
}

func (p *Pool) recordOutstanding(n int64) {
	if m := p.metrics.Load(); m != nil {
		m.outstanding.Set(float64(n))
	}
}

func (p *Pool) recordIdle(n int32) {
	if m := p.metrics.Load(); m != nil {
		m.idle.Set(float64(n))
	}
}

var _ metrics.Instrumentable = (*Pool)(nil)
