// Package metrics provides Prometheus instrumentation for forkjoin components.
//
// # Overview
//
// The metrics package provides instrumentation for:
//   - Fork/join pools (forks, submissions, executions, steals, outcomes)
//   - Pool state (size, idle workers, outstanding tasks, inlet depth)
//   - Periodic submission (jobs scheduled, dispatched, rejected)
//
// # Quick Start
//
// Enable metrics through the pool configuration:
//
//	cfg := forkjoin.DefaultConfig()
//	cfg.Name = "render"
//	cfg.Metrics = metrics.DefaultConfig()
//	pool, _ := forkjoin.NewWithConfig(cfg)
//
// Then expose metrics via HTTP:
//
//	http.Handle("/metrics", promhttp.Handler())
//	log.Fatal(http.ListenAndServe(":8080", nil))
//
// # Custom Registry
//
// Use a custom Prometheus registry for isolation:
//
//	registry := prometheus.NewRegistry()
//	cfg.Metrics = metrics.Config{
//		Enabled:  true,
//		Registry: registry,
//	}
//
// FromConfig caches one Registry per (registerer, namespace) pair, so several
// pools can report into the same registerer; each pool is distinguished by
// its pool_name label.
//
// # Available Metrics
//
//   - forkjoin_pool_tasks_forked_total: Tasks forked by running tasks
//   - forkjoin_pool_tasks_submitted_total: Top-level tasks submitted
//   - forkjoin_pool_tasks_executed_total: Task bodies started
//   - forkjoin_pool_tasks_stolen_total: Tasks claimed by stealing
//   - forkjoin_pool_tasks_completed_total: Tasks completed successfully
//   - forkjoin_pool_tasks_failed_total: Tasks completed exceptionally
//   - forkjoin_pool_tasks_cancelled_total: Tasks cancelled before running
//   - forkjoin_pool_task_duration_seconds: Task body duration
//   - forkjoin_pool_size: Workers in the pool
//   - forkjoin_pool_idle_workers: Workers parked waiting for work
//   - forkjoin_pool_outstanding_tasks: Tasks not yet terminal
//   - forkjoin_pool_inlet_queued_tasks: External submissions waiting
//   - forkjoin_periodic_jobs_scheduled_total: Periodic jobs registered
//   - forkjoin_periodic_jobs_dispatched_total: Periodic runs submitted
//   - forkjoin_periodic_jobs_rejected_total: Periodic runs refused by the pool
//
// # Runtime Control
//
// Components implementing the Instrumentable interface support runtime control:
//
//	pool.DisableMetrics()           // Stop collecting metrics
//	pool.EnableMetrics(config)      // Re-enable with new config
//	enabled := pool.MetricsEnabled() // Check current state
package metrics
