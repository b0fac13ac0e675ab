// Package periodic submits jobs to a forkjoin pool on a timetable.
//
// A Scheduler holds named entries: one-shot (Schedule, ScheduleAfter),
// fixed-interval (ScheduleRepeating) and cron (ScheduleCron). Every
// TickInterval it submits the entries that are due as top-level tasks on its
// pool, so a job may itself fork and join subtasks.
//
// Basic usage:
//
//	pool := forkjoin.New(runtime.NumCPU())
//	defer func() { <-pool.Shutdown() }()
//
//	s, err := periodic.New(pool)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer func() { <-s.Stop() }()
//
//	s.ScheduleCron("rollup", "0 */5 * * * *", periodic.JobFunc(rollup))
//	s.Start()
//
// Cron expressions use the robfig/cron syntax with an optional leading
// seconds field, plus descriptors such as "@hourly" and "@every 30s".
//
// Dispatch is fire-and-forget. A job error is logged, counted in Stats.Failed
// and passed to Config.OnError. A submission the pool refuses (for example
// after pool shutdown) is logged and counted in Stats.Rejected. A run that
// never reached the pool because its inlet was full, or because Stop came
// while it waited for space, is counted in Stats.Dropped instead. Either way
// the entry itself stays scheduled unless it was a one-shot.
//
// Stop halts dispatching but leaves the pool running; the caller owns the
// pool's lifecycle.
package periodic
