package periodic

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/robfig/cron/v3"

	fjerrors "github.com/vnykmshr/forkjoin/pkg/common/errors"
	"github.com/vnykmshr/forkjoin/pkg/common/validation"
	"github.com/vnykmshr/forkjoin/pkg/forkjoin"
	"github.com/vnykmshr/forkjoin/pkg/metrics"
)

var (
	// ErrDuplicateID is returned when an entry with the same ID is scheduled.
	ErrDuplicateID = errors.New("periodic: entry ID already scheduled")

	// ErrRunning is returned by Start on a scheduler that is running.
	ErrRunning = errors.New("periodic: scheduler already running")
)

// Entry describes a scheduled job.
type Entry struct {
	ID       string
	RunAt    time.Time
	Interval time.Duration // zero for one-shot and cron entries
	Cron     string
	Created  time.Time
	Runs     int64 // times dispatched
}

// Stats holds cumulative scheduler counters.
type Stats struct {
	Entries    int
	Dispatched int64
	Rejected   int64
	Dropped    int64
	Failed     int64
}

type entry struct {
	id       string
	job      Job
	runAt    time.Time
	interval time.Duration
	cronExpr string
	schedule cron.Schedule
	created  time.Time
	runs     int64
}

// Scheduler submits jobs to a forkjoin pool at fixed times, at fixed
// intervals or on cron schedules.
type Scheduler struct {
	config Config
	parser cron.Parser

	mu      sync.Mutex
	entries map[string]*entry
	running bool

	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}

	dispatched *xsync.Counter
	rejected   *xsync.Counter
	dropped    *xsync.Counter
	failed     *xsync.Counter

	scheduledMetric  prometheus.Counter
	dispatchedMetric prometheus.Counter
	rejectedMetric   prometheus.Counter
}

// New creates a scheduler dispatching onto pool with default settings.
func New(pool *forkjoin.Pool) (*Scheduler, error) {
	return NewWithConfig(Config{Pool: pool})
}

// NewWithConfig creates a scheduler. It does not run entries until Start.
func NewWithConfig(config Config) (*Scheduler, error) {
	config, err := config.withDefaults()
	if err != nil {
		return nil, err
	}

	config.Logger = config.Logger.Named(config.Name)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		config:     config,
		parser:     cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		entries:    make(map[string]*entry),
		ctx:        ctx,
		cancel:     cancel,
		stopped:    make(chan struct{}),
		dispatched: xsync.NewCounter(),
		rejected:   xsync.NewCounter(),
		dropped:    xsync.NewCounter(),
		failed:     xsync.NewCounter(),
	}

	if config.Metrics.Enabled {
		r := metrics.FromConfig(config.Metrics)
		s.scheduledMetric = r.JobsScheduled.WithLabelValues(config.Name)
		s.dispatchedMetric = r.JobsDispatched.WithLabelValues(config.Name)
		s.rejectedMetric = r.JobsRejected.WithLabelValues(config.Name)
	}
	return s, nil
}

// Schedule runs job once at runAt.
func (s *Scheduler) Schedule(id string, job Job, runAt time.Time) error {
	if err := validateEntry(id, job); err != nil {
		return err
	}
	if runAt.IsZero() {
		return fjerrors.NewValidationError("periodic", "runAt", runAt, "cannot be zero")
	}
	return s.add(&entry{id: id, job: job, runAt: runAt})
}

// ScheduleAfter runs job once after delay.
func (s *Scheduler) ScheduleAfter(id string, job Job, delay time.Duration) error {
	return s.Schedule(id, job, s.config.Clock.Now().Add(delay))
}

// ScheduleRepeating runs job on the next tick and then every interval.
func (s *Scheduler) ScheduleRepeating(id string, job Job, interval time.Duration) error {
	if err := validateEntry(id, job); err != nil {
		return err
	}
	if interval <= 0 {
		return fjerrors.NewValidationError("periodic", "interval", interval, "must be positive")
	}
	return s.add(&entry{id: id, job: job, runAt: s.config.Clock.Now(), interval: interval})
}

// ScheduleCron runs job whenever the cron expression matches. Expressions
// take an optional leading seconds field, and descriptors such as "@hourly"
// or "@every 5m" are accepted.
func (s *Scheduler) ScheduleCron(id string, expr string, job Job) error {
	if err := validateEntry(id, job); err != nil {
		return err
	}
	if err := validation.ValidateNotEmpty("periodic", "cron expression", expr); err != nil {
		return err
	}

	schedule, err := s.parser.Parse(expr)
	if err != nil {
		return fjerrors.NewValidationError("periodic", "cron expression", expr, err.Error())
	}

	now := s.config.Clock.Now().In(s.config.Location)
	return s.add(&entry{id: id, job: job, runAt: schedule.Next(now), cronExpr: expr, schedule: schedule})
}

func validateEntry(id string, job Job) error {
	if err := validation.ValidateNotEmpty("periodic", "id", id); err != nil {
		return err
	}
	if err := validation.ValidateAtMost("periodic", "id length", len(id), MaxIDLength); err != nil {
		return err
	}
	if job == nil {
		return validation.ValidateNotNil("periodic", "job", nil)
	}
	return nil
}

func (s *Scheduler) add(e *entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[e.id]; exists {
		return fjerrors.NewOperationError("periodic", "Schedule", ErrDuplicateID).WithContext("id " + e.id)
	}
	if len(s.entries) >= s.config.MaxJobs {
		return fjerrors.NewOperationError("periodic", "Schedule", fjerrors.ErrCapacityExceeded)
	}

	e.created = s.config.Clock.Now()
	s.entries[e.id] = e
	if s.scheduledMetric != nil {
		s.scheduledMetric.Inc()
	}
	s.config.Logger.Debug("job scheduled", "id", e.id, "run_at", e.runAt)
	return nil
}

// Cancel removes an entry. Runs already dispatched are not affected.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[id]; !exists {
		return false
	}
	delete(s.entries, id)
	return true
}

// CancelAll removes every entry.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*entry)
}

// Next returns the next run time of an entry.
func (s *Scheduler) Next(id string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return time.Time{}, false
	}
	return e.runAt, true
}

// List returns every entry ordered by next run time.
func (s *Scheduler) List() []Entry {
	s.mu.Lock()
	list := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		list = append(list, Entry{
			ID:       e.id,
			RunAt:    e.runAt,
			Interval: e.interval,
			Cron:     e.cronExpr,
			Created:  e.created,
			Runs:     e.runs,
		})
	}
	s.mu.Unlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].RunAt.Equal(list[j].RunAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].RunAt.Before(list[j].RunAt)
	})
	return list
}

// Stats returns the scheduler counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	n := len(s.entries)
	s.mu.Unlock()

	return Stats{
		Entries:    n,
		Dispatched: s.dispatched.Value(),
		Rejected:   s.rejected.Value(),
		Dropped:    s.dropped.Value(),
		Failed:     s.failed.Value(),
	}
}

// Start begins checking for due entries every TickInterval. A stopped
// scheduler cannot be restarted.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrRunning
	}
	if s.ctx.Err() != nil {
		return fjerrors.NewOperationError("periodic", "Start", fjerrors.ErrClosed)
	}

	s.running = true
	go s.run()
	s.config.Logger.Info("scheduler started", "tick", s.config.TickInterval)
	return nil
}

// Stop halts dispatching. The returned channel closes once the dispatch
// loop has exited. Jobs already submitted keep running on the pool.
func (s *Scheduler) Stop() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() == nil {
		s.cancel()
		if !s.running {
			close(s.stopped)
		}
		s.config.Logger.Info("scheduler stopped", "dispatched", s.dispatched.Value())
	}
	s.running = false
	return s.stopped
}

func (s *Scheduler) run() {
	defer close(s.stopped)

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.dispatchDue()
		}
	}
}

// dispatchDue submits every entry whose run time has passed and
// reschedules the repeating ones.
func (s *Scheduler) dispatchDue() {
	now := s.config.Clock.Now()

	s.mu.Lock()
	var due []*entry
	for id, e := range s.entries {
		if e.runAt.After(now) {
			continue
		}
		due = append(due, e)
		e.runs++

		switch {
		case e.interval > 0:
			e.runAt = now.Add(e.interval)
		case e.schedule != nil:
			e.runAt = e.schedule.Next(now.In(s.config.Location))
		default:
			delete(s.entries, id)
		}
	}
	s.mu.Unlock()

	for _, e := range due {
		s.dispatch(e.id, e.job)
	}
}

func (s *Scheduler) dispatch(id string, job Job) {
	body := forkjoin.BodyFunc[struct{}](func(ctx context.Context) (struct{}, error) {
		err := job.Execute(ctx)
		if err != nil {
			s.failed.Inc()
			s.config.Logger.Warn("job failed", "id", id, "error", err)
			if s.config.OnError != nil {
				s.config.OnError(id, err)
			}
		}
		return struct{}{}, err
	})

	if _, err := forkjoin.Submit(s.ctx, s.config.Pool, body); err != nil {
		if errors.Is(err, forkjoin.ErrRejected) {
			s.rejected.Inc()
			if s.rejectedMetric != nil {
				s.rejectedMetric.Inc()
			}
			s.config.Logger.Warn("job rejected", "id", id, "error", err)
			return
		}

		// Full inlet under the Error strategy, or Stop while waiting for space.
		s.dropped.Inc()
		if s.ctx.Err() != nil {
			s.config.Logger.Debug("job dropped on stop", "id", id)
			return
		}
		s.config.Logger.Warn("job dropped", "id", id, "error", err)
		return
	}

	s.dispatched.Inc()
	if s.dispatchedMetric != nil {
		s.dispatchedMetric.Inc()
	}
}
