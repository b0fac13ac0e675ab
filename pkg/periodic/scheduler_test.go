package periodic

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vnykmshr/forkjoin/internal/testutil"
	fjerrors "github.com/vnykmshr/forkjoin/pkg/common/errors"
	"github.com/vnykmshr/forkjoin/pkg/forkjoin"
	"github.com/vnykmshr/forkjoin/pkg/metrics"
	"github.com/vnykmshr/forkjoin/pkg/queue"
)

var epoch = time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)

func newTestPool(t *testing.T) *forkjoin.Pool {
	t.Helper()
	pool := forkjoin.New(2)
	t.Cleanup(func() { <-pool.ShutdownNow() })
	return pool
}

// newManualScheduler returns a scheduler whose ticker never fires in a
// test's lifetime; tests drive it with dispatchDue and the mock clock.
func newManualScheduler(t *testing.T, config Config) (*Scheduler, *testutil.MockClock) {
	t.Helper()
	clock := testutil.NewMockClock(epoch)
	if config.Pool == nil {
		config.Pool = newTestPool(t)
	}
	config.Clock = clock
	config.Location = time.UTC
	config.TickInterval = time.Hour

	s, err := NewWithConfig(config)
	testutil.AssertNoError(t, err)
	t.Cleanup(func() { <-s.Stop() })
	return s, clock
}

func counting(n *atomic.Int32) Job {
	return JobFunc(func(context.Context) error {
		n.Add(1)
		return nil
	})
}

func TestNewWithConfig(t *testing.T) {
	_, err := New(nil)
	testutil.AssertEqual(t, fjerrors.IsValidationError(err), true)

	pool := newTestPool(t)
	_, err = NewWithConfig(Config{Pool: pool, MaxJobs: -1})
	testutil.AssertEqual(t, fjerrors.IsValidationError(err), true)
	_, err = NewWithConfig(Config{Pool: pool, TickInterval: -time.Second})
	testutil.AssertEqual(t, fjerrors.IsValidationError(err), true)

	s, err := New(pool)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, strings.HasPrefix(s.config.Name, "periodic-"), true)
	testutil.AssertEqual(t, s.config.TickInterval, DefaultTickInterval)
	testutil.AssertEqual(t, s.config.MaxJobs, DefaultMaxJobs)
	<-s.Stop()
}

func TestScheduleValidation(t *testing.T) {
	s, _ := newManualScheduler(t, Config{MaxJobs: 2})
	job := JobFunc(func(context.Context) error { return nil })

	tests := []struct {
		name string
		err  error
	}{
		{"empty id", s.Schedule("", job, epoch)},
		{"long id", s.Schedule(strings.Repeat("x", MaxIDLength+1), job, epoch)},
		{"nil job", s.Schedule("a", nil, epoch)},
		{"zero time", s.Schedule("a", job, time.Time{})},
		{"zero interval", s.ScheduleRepeating("a", job, 0)},
		{"empty cron", s.ScheduleCron("a", "", job)},
		{"bad cron", s.ScheduleCron("a", "not a cron", job)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutil.AssertEqual(t, fjerrors.IsValidationError(tt.err), true)
		})
	}

	testutil.AssertNoError(t, s.Schedule("a", job, epoch))
	err := s.Schedule("a", job, epoch)
	testutil.AssertEqual(t, errors.Is(err, ErrDuplicateID), true)

	testutil.AssertNoError(t, s.Schedule(strings.Repeat("b", MaxIDLength), job, epoch))
	err = s.Schedule("c", job, epoch)
	testutil.AssertEqual(t, errors.Is(err, fjerrors.ErrCapacityExceeded), true)
	testutil.AssertEqual(t, s.Stats().Entries, 2)
}

func TestOneShot(t *testing.T) {
	s, clock := newManualScheduler(t, Config{})
	var runs atomic.Int32

	testutil.AssertNoError(t, s.ScheduleAfter("once", counting(&runs), time.Minute))

	s.dispatchDue()
	testutil.AssertEqual(t, s.Stats().Dispatched, int64(0))

	clock.Advance(time.Minute)
	s.dispatchDue()
	testutil.AssertEqual(t, s.Stats().Dispatched, int64(1))
	testutil.AssertEventually(t, func() bool { return runs.Load() == 1 })

	_, ok := s.Next("once")
	testutil.AssertEqual(t, ok, false)
	s.dispatchDue()
	testutil.AssertEqual(t, s.Stats().Dispatched, int64(1))
}

func TestRepeating(t *testing.T) {
	s, clock := newManualScheduler(t, Config{})
	var runs atomic.Int32

	testutil.AssertNoError(t, s.ScheduleRepeating("tick", counting(&runs), 10*time.Second))

	s.dispatchDue()
	s.dispatchDue()
	testutil.AssertEqual(t, s.Stats().Dispatched, int64(1))

	next, ok := s.Next("tick")
	testutil.AssertEqual(t, ok, true)
	testutil.AssertEqual(t, next, epoch.Add(10*time.Second))

	clock.Advance(10 * time.Second)
	s.dispatchDue()
	testutil.AssertEventually(t, func() bool { return runs.Load() == 2 })
	testutil.AssertEqual(t, s.List()[0].Runs, int64(2))
}

func TestCron(t *testing.T) {
	s, clock := newManualScheduler(t, Config{})
	var runs atomic.Int32

	testutil.AssertNoError(t, s.ScheduleCron("fives", "*/5 * * * * *", counting(&runs)))
	testutil.AssertNoError(t, s.ScheduleCron("hourly", "@hourly", counting(&runs)))
	testutil.AssertNoError(t, s.ScheduleCron("minutes", "*/2 * * * *", counting(&runs)))

	next, _ := s.Next("fives")
	testutil.AssertEqual(t, next, epoch.Add(5*time.Second))
	next, _ = s.Next("hourly")
	testutil.AssertEqual(t, next, epoch.Add(time.Hour))
	next, _ = s.Next("minutes")
	testutil.AssertEqual(t, next, epoch.Add(2*time.Minute))

	clock.Advance(5 * time.Second)
	s.dispatchDue()
	testutil.AssertEventually(t, func() bool { return runs.Load() == 1 })

	next, _ = s.Next("fives")
	testutil.AssertEqual(t, next, epoch.Add(10*time.Second))

	list := s.List()
	testutil.AssertEqual(t, len(list), 3)
	testutil.AssertEqual(t, list[0].ID, "fives")
	testutil.AssertEqual(t, list[0].Cron, "*/5 * * * * *")
	testutil.AssertEqual(t, list[2].ID, "hourly")
}

func TestCancel(t *testing.T) {
	s, clock := newManualScheduler(t, Config{})
	var runs atomic.Int32

	testutil.AssertNoError(t, s.ScheduleAfter("a", counting(&runs), time.Second))
	testutil.AssertNoError(t, s.ScheduleAfter("b", counting(&runs), time.Second))
	testutil.AssertNoError(t, s.ScheduleAfter("c", counting(&runs), time.Second))

	testutil.AssertEqual(t, s.Cancel("a"), true)
	testutil.AssertEqual(t, s.Cancel("a"), false)
	testutil.AssertEqual(t, len(s.List()), 2)

	s.CancelAll()
	testutil.AssertEqual(t, len(s.List()), 0)

	clock.Advance(time.Second)
	s.dispatchDue()
	testutil.AssertEqual(t, s.Stats().Dispatched, int64(0))
}

func TestJobRunsAsPoolTask(t *testing.T) {
	s, _ := newManualScheduler(t, Config{})
	result := make(chan int, 1)

	testutil.AssertNoError(t, s.Schedule("fork", JobFunc(func(ctx context.Context) error {
		square := func(n int) forkjoin.Body[int] {
			return forkjoin.BodyFunc[int](func(context.Context) (int, error) { return n * n, nil })
		}
		squares, err := forkjoin.InvokeAll(ctx, square(2), square(3))
		if err != nil {
			return err
		}
		result <- squares[0] + squares[1]
		return nil
	}), epoch))

	s.dispatchDue()
	select {
	case got := <-result:
		testutil.AssertEqual(t, got, 13)
	case <-time.After(testutil.TestTimeout):
		t.Fatal("job did not run")
	}
}

func TestJobFailure(t *testing.T) {
	var failedID atomic.Value
	out := testutil.NewMockWriter()
	s, _ := newManualScheduler(t, Config{
		Name:    "failing",
		Logger:  hclog.New(&hclog.LoggerOptions{Output: out, Level: hclog.Debug}),
		OnError: func(id string, err error) { failedID.Store(id) },
	})

	testutil.AssertNoError(t, s.Schedule("bad", JobFunc(func(context.Context) error {
		return errors.New("broken")
	}), epoch))
	s.dispatchDue()

	testutil.AssertEventually(t, func() bool { return failedID.Load() != nil })
	testutil.AssertEqual(t, failedID.Load(), any("bad"))
	testutil.AssertEqual(t, s.Stats().Failed, int64(1))
	testutil.AssertEventually(t, func() bool { return out.Contains("job failed") })
	testutil.AssertEqual(t, out.Contains("failing: job scheduled"), true)
}

func TestRejectedAfterPoolShutdown(t *testing.T) {
	pool := newTestPool(t)
	out := testutil.NewMockWriter()
	s, _ := newManualScheduler(t, Config{
		Pool:   pool,
		Logger: hclog.New(&hclog.LoggerOptions{Output: out}),
	})
	var runs atomic.Int32

	testutil.AssertNoError(t, s.ScheduleRepeating("r", counting(&runs), time.Second))
	<-pool.Shutdown()
	s.dispatchDue()

	stats := s.Stats()
	testutil.AssertEqual(t, stats.Rejected, int64(1))
	testutil.AssertEqual(t, stats.Dispatched, int64(0))
	testutil.AssertEqual(t, stats.Entries, 1)
	testutil.AssertEqual(t, out.Contains("job rejected"), true)
	testutil.AssertEqual(t, runs.Load(), int32(0))
}

func TestDroppedSubmissions(t *testing.T) {
	t.Run("inlet full", func(t *testing.T) {
		config := forkjoin.DefaultConfig()
		config.Parallelism = 1
		config.InletCapacity = 1
		config.InletStrategy = queue.Error
		pool, err := forkjoin.NewWithConfig(config)
		testutil.AssertNoError(t, err)
		t.Cleanup(func() { <-pool.ShutdownNow() })

		ctx := context.Background()
		started, release := make(chan struct{}), make(chan struct{})
		defer close(release)
		_, err = forkjoin.Submit(ctx, pool, forkjoin.BodyFunc[struct{}](func(context.Context) (struct{}, error) {
			close(started)
			<-release
			return struct{}{}, nil
		}))
		testutil.AssertNoError(t, err)
		<-started
		_, err = forkjoin.Submit(ctx, pool, forkjoin.BodyFunc[struct{}](func(context.Context) (struct{}, error) {
			return struct{}{}, nil
		}))
		testutil.AssertNoError(t, err)

		out := testutil.NewMockWriter()
		s, _ := newManualScheduler(t, Config{
			Pool:   pool,
			Logger: hclog.New(&hclog.LoggerOptions{Output: out}),
		})
		var runs atomic.Int32
		testutil.AssertNoError(t, s.ScheduleRepeating("r", counting(&runs), time.Second))
		s.dispatchDue()

		stats := s.Stats()
		testutil.AssertEqual(t, stats.Dropped, int64(1))
		testutil.AssertEqual(t, stats.Rejected, int64(0))
		testutil.AssertEqual(t, stats.Dispatched, int64(0))
		testutil.AssertEqual(t, out.Contains("job dropped"), true)
		testutil.AssertEqual(t, out.Contains("job rejected"), false)
	})

	t.Run("stopped", func(t *testing.T) {
		s, _ := newManualScheduler(t, Config{})
		var runs atomic.Int32
		testutil.AssertNoError(t, s.ScheduleRepeating("r", counting(&runs), time.Second))
		<-s.Stop()
		s.dispatchDue()

		stats := s.Stats()
		testutil.AssertEqual(t, stats.Dropped, int64(1))
		testutil.AssertEqual(t, stats.Rejected, int64(0))
		testutil.AssertEqual(t, runs.Load(), int32(0))
	})
}

func TestStartStop(t *testing.T) {
	pool := newTestPool(t)
	s, err := NewWithConfig(Config{Pool: pool, TickInterval: time.Millisecond})
	testutil.AssertNoError(t, err)

	testutil.AssertNoError(t, s.Start())
	testutil.AssertEqual(t, errors.Is(s.Start(), ErrRunning), true)

	var runs atomic.Int32
	testutil.AssertNoError(t, s.ScheduleAfter("soon", counting(&runs), 0))
	testutil.AssertNoError(t, s.ScheduleRepeating("often", counting(&runs), time.Millisecond))
	testutil.AssertEventually(t, func() bool { return runs.Load() >= 3 })

	select {
	case <-s.Stop():
	case <-time.After(testutil.TestTimeout):
		t.Fatal("scheduler did not stop")
	}
	<-s.Stop()

	err = s.Start()
	testutil.AssertEqual(t, errors.Is(err, fjerrors.ErrClosed), true)
}

func TestStopWithoutStart(t *testing.T) {
	s, err := New(newTestPool(t))
	testutil.AssertNoError(t, err)

	select {
	case <-s.Stop():
	case <-time.After(testutil.TestTimeout):
		t.Fatal("stop channel not closed")
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	config := metrics.Config{Enabled: true, Registry: reg, Namespace: "periodictest"}
	pool := newTestPool(t)
	s, clock := newManualScheduler(t, Config{Name: "measured", Pool: pool, Metrics: config})
	var runs atomic.Int32

	testutil.AssertNoError(t, s.ScheduleRepeating("a", counting(&runs), time.Second))
	testutil.AssertNoError(t, s.ScheduleAfter("b", counting(&runs), time.Second))
	s.dispatchDue()
	clock.Advance(time.Second)
	s.dispatchDue()
	<-pool.Shutdown()
	clock.Advance(time.Second)
	s.dispatchDue()

	r := metrics.FromConfig(config)
	testutil.AssertEqual(t, promtest.ToFloat64(r.JobsScheduled.WithLabelValues("measured")), float64(2))
	testutil.AssertEqual(t, promtest.ToFloat64(r.JobsDispatched.WithLabelValues("measured")), float64(3))
	testutil.AssertEqual(t, promtest.ToFloat64(r.JobsRejected.WithLabelValues("measured")), float64(1))
	testutil.AssertEqual(t, runs.Load(), int32(3))
}

func TestRetry(t *testing.T) {
	var attempts atomic.Int32
	flaky := JobFunc(func(context.Context) error {
		if attempts.Add(1) < 3 {
			return errors.New("not yet")
		}
		return nil
	})

	r := Retry{Job: flaky, MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	testutil.AssertNoError(t, r.Execute(context.Background()))
	testutil.AssertEqual(t, attempts.Load(), int32(3))

	attempts.Store(0)
	r.MaxRetries = 1
	testutil.AssertError(t, r.Execute(context.Background()))
	testutil.AssertEqual(t, attempts.Load(), int32(2))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	attempts.Store(0)
	r.MaxRetries = 5
	err := r.Execute(ctx)
	testutil.AssertEqual(t, errors.Is(err, context.Canceled), true)
	testutil.AssertEqual(t, attempts.Load(), int32(1))
}
