package scheduler

import (
	"context"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// cronParser parses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

// timeNow is swapped in tests.
var timeNow = time.Now

// Runner executes one due job.
type Runner func(ctx context.Context, job Job) error

// Config holds the dependencies for the job scheduler.
type Config struct {
	JobsDir  string
	Runner   Runner
	Logger   *slog.Logger
	Interval time.Duration // tick interval; defaults to 1 minute if zero
}

// Scheduler periodically reloads the job directory and fires jobs whose
// next run time has passed. Job files are the source of truth; edits are
// picked up on the next tick without a restart.
type Scheduler struct {
	jobsDir  string
	runner   Runner
	logger   *slog.Logger
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	nextRun map[string]time.Time
}

// NewScheduler creates a new Scheduler with the given config.
func NewScheduler(cfg Config) *Scheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 1 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		jobsDir:  cfg.JobsDir,
		runner:   cfg.Runner,
		logger:   logger,
		interval: interval,
		nextRun:  map[string]time.Time{},
	}
}

// Start begins the scheduler loop. It runs in a background goroutine
// and respects the provided context for shutdown.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop(ctx)
	s.logger.Info("job scheduler started", "interval", s.interval, "jobs_dir", s.jobsDir)
}

// Stop cancels the scheduler loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("job scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Seed next-run times on startup; the first tick fires nothing so a
	// restart never replays jobs that were due while the shell was down.
	s.tick(ctx, true)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, false)
		}
	}
}

// tick reloads the job directory and fires every due job.
func (s *Scheduler) tick(ctx context.Context, seedOnly bool) {
	now := timeNow()
	jobs, broken, err := LoadJobs(s.jobsDir)
	if err != nil {
		s.logger.Error("scheduler: failed to load jobs", "error", err)
		return
	}
	for file, loadErr := range broken {
		s.logger.Warn("scheduler: skipping invalid job file", "file", file, "error", loadErr)
	}

	s.mu.Lock()
	seen := map[string]struct{}{}
	var due []Job
	for _, job := range jobs {
		seen[job.ID] = struct{}{}
		if !job.Active() {
			delete(s.nextRun, job.ID)
			continue
		}
		next, known := s.nextRun[job.ID]
		if !known || seedOnly {
			s.scheduleNext(job, now)
			continue
		}
		if now.Before(next) {
			continue
		}
		due = append(due, job)
		s.scheduleNext(job, now)
	}
	// Forget deleted jobs.
	for id := range s.nextRun {
		if _, ok := seen[id]; !ok {
			delete(s.nextRun, id)
		}
	}
	s.mu.Unlock()

	for _, job := range due {
		s.fire(ctx, job)
	}
}

func (s *Scheduler) scheduleNext(job Job, now time.Time) {
	next, err := NextRunTime(job.Schedule, now)
	if err != nil {
		s.logger.Error("scheduler: failed to compute next run",
			"job_id", job.ID,
			"cron_expr", job.Schedule,
			"error", err,
		)
		delete(s.nextRun, job.ID)
		return
	}
	s.nextRun[job.ID] = next
}

func (s *Scheduler) fire(ctx context.Context, job Job) {
	s.logger.Info("scheduler: job fired", "job_id", job.ID, "job_name", job.Name)
	if s.runner == nil {
		return
	}
	if err := s.runner(ctx, job); err != nil {
		s.logger.Error("scheduler: job failed", "job_id", job.ID, "error", err)
	}
}

// NextRunTime parses the cron expression and returns the next run time after the given time.
func NextRunTime(cronExpr string, after time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}

// EngineRunner returns a Runner that hands the job's prompt to the
// engine CLI in the job's workspace (or defaultDir when unset).
func EngineRunner(engineBin, defaultDir string, logger *slog.Logger) Runner {
	return func(ctx context.Context, job Job) error {
		dir := job.Workspace
		if dir == "" {
			dir = defaultDir
		}
		cmd := exec.CommandContext(ctx, engineBin, "run", job.Prompt)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		if err != nil {
			logger.Warn("engine run failed", "job_id", job.ID, "output", string(out))
			return err
		}
		return nil
	}
}
