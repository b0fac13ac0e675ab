// Package integration contains integration tests that verify cross-package functionality.
// These tests ensure that different components work together correctly in realistic scenarios.
package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/viper"
	"go.uber.org/goleak"

	"github.com/vnykmshr/forkjoin/internal/config"
	"github.com/vnykmshr/forkjoin/internal/testutil"
	"github.com/vnykmshr/forkjoin/pkg/forkjoin"
	"github.com/vnykmshr/forkjoin/pkg/metrics"
	"github.com/vnykmshr/forkjoin/pkg/periodic"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type sumRange struct{ lo, hi int64 }

func (r sumRange) Execute(ctx context.Context) (int64, error) {
	if r.hi-r.lo < 256 {
		var s int64
		for i := r.lo; i <= r.hi; i++ {
			s += i
		}
		return s, nil
	}
	mid := r.lo + (r.hi-r.lo)/2
	left := forkjoin.Fork[int64](ctx, sumRange{r.lo, mid})
	right, err := forkjoin.Invoke[int64](ctx, sumRange{mid + 1, r.hi})
	if err != nil {
		return 0, err
	}
	l, err := left.Join(ctx)
	return l + right, err
}

// TestPeriodicJobsForkOnPool verifies that jobs dispatched by a periodic
// scheduler run as pool tasks, fork subtasks and report into shared metrics.
func TestPeriodicJobsForkOnPool(t *testing.T) {
	reg := prometheus.NewRegistry()
	metricsConfig := metrics.Config{Enabled: true, Registry: reg, Namespace: "integration"}

	pool, err := forkjoin.NewWithConfig(forkjoin.Config{
		Name:        "integration_pool",
		Parallelism: 4,
		Metrics:     metricsConfig,
	})
	testutil.AssertNoError(t, err)

	sched, err := periodic.NewWithConfig(periodic.Config{
		Pool:         pool,
		Name:         "integration_scheduler",
		TickInterval: 5 * time.Millisecond,
		Metrics:      metricsConfig,
	})
	testutil.AssertNoError(t, err)

	results := make(chan int64, 64)
	job := periodic.JobFunc(func(ctx context.Context) error {
		if _, ok := forkjoin.WorkerID(ctx); !ok {
			return errors.New("job not running on a worker")
		}
		sum, err := forkjoin.Invoke[int64](ctx, sumRange{1, 100_000})
		if err != nil {
			return err
		}
		select {
		case results <- sum:
		default:
		}
		return nil
	})
	testutil.AssertNoError(t, sched.ScheduleRepeating("sum", job, 20*time.Millisecond))
	testutil.AssertNoError(t, sched.Start())

	for i := 0; i < 3; i++ {
		select {
		case got := <-results:
			testutil.AssertEqual(t, got, int64(5000050000))
		case <-time.After(testutil.TestTimeout):
			t.Fatalf("timed out waiting for run %d", i+1)
		}
	}

	<-sched.Stop()
	<-pool.Shutdown()

	stats := sched.Stats()
	testutil.AssertEqual(t, stats.Failed, int64(0))
	testutil.AssertEqual(t, stats.Rejected, int64(0))

	poolStats := pool.Stats()
	testutil.AssertEqual(t, poolStats.Submitted, stats.Dispatched)
	testutil.AssertEqual(t, poolStats.Failed, int64(0))
	testutil.AssertEqual(t, poolStats.Forked > 0, true)

	r := metrics.FromConfig(metricsConfig)
	testutil.AssertEqual(t, promtest.ToFloat64(r.JobsDispatched.WithLabelValues("integration_scheduler")), float64(stats.Dispatched))
	testutil.AssertEqual(t, promtest.ToFloat64(r.TasksSubmitted.WithLabelValues("integration_pool")), float64(poolStats.Submitted))
	testutil.AssertEqual(t, promtest.ToFloat64(r.TasksForked.WithLabelValues("integration_pool")), float64(poolStats.Forked))
}

// TestConfiguredPool verifies that a pool built from loaded configuration
// runs recursive work and honours the configured parallelism.
func TestConfiguredPool(t *testing.T) {
	t.Setenv("FORKJOIN_PARALLELISM", "3")
	t.Setenv("FORKJOIN_NAME", "configured")
	t.Chdir(t.TempDir())

	cfg, err := config.Load(viper.New(), "")
	testutil.AssertNoError(t, err)

	w := testutil.NewMockWriter()
	poolConfig, err := cfg.PoolConfig(cfg.Logger(w))
	testutil.AssertNoError(t, err)

	pool, err := forkjoin.NewWithConfig(poolConfig)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, pool.Parallelism(), 3)
	testutil.AssertEqual(t, pool.Name(), "configured")

	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	got, err := forkjoin.InvokeOn[int64](ctx, pool, sumRange{1, 1_000_000})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, got, int64(500000500000))

	<-pool.Shutdown()
	testutil.AssertNoError(t, pool.AwaitTermination(ctx))
	testutil.AssertEqual(t, w.Contains("pool started"), true)
}

// TestShutdownNowStopsPeriodicDispatch verifies that a scheduler whose pool
// has been stopped counts its runs as rejected instead of failing.
func TestShutdownNowStopsPeriodicDispatch(t *testing.T) {
	pool := forkjoin.New(2)
	<-pool.ShutdownNow()

	sched, err := periodic.NewWithConfig(periodic.Config{
		Pool:         pool,
		TickInterval: 5 * time.Millisecond,
	})
	testutil.AssertNoError(t, err)

	testutil.AssertNoError(t, sched.ScheduleRepeating("noop", periodic.JobFunc(func(context.Context) error {
		return nil
	}), 10*time.Millisecond))
	testutil.AssertNoError(t, sched.Start())

	testutil.AssertEventually(t, func() bool { return sched.Stats().Rejected >= 2 })
	<-sched.Stop()

	testutil.AssertEqual(t, sched.Stats().Dispatched, int64(0))
	testutil.AssertEqual(t, pool.State(), forkjoin.PoolTerminated)
}
