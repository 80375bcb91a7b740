// Package jobs contains the background jobs that keep hospital and pricing
// data current, and the scheduler that runs them. Every execution — scheduled
// or manually triggered — is recorded as a job_runs row so operators can see
// what ran, what it touched, and what failed.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/itz4blitz/glimmr-api-sub005/internal/db/models"
	"github.com/itz4blitz/glimmr-api-sub005/internal/telemetry"
)

// TriggeredByScheduler marks interval runs in job_runs.triggered_by; manual
// runs carry the triggering user's id instead.
const TriggeredByScheduler = "scheduler"

// manualRunTimeout bounds a manually triggered run so a hung upstream cannot
// pin a goroutine forever.
const manualRunTimeout = 30 * time.Minute

// ErrUnknownJob is returned by Trigger for a name no registered job carries.
var ErrUnknownJob = errors.New("unknown job")

// Result reports what a job execution touched.
type Result struct {
	Processed int
	Inserted  int
	Updated   int
}

// Job is one unit of schedulable work.
type Job interface {
	Name() string
	Run(ctx context.Context) (Result, error)
}

// RunStore records job executions. Implemented by repositories.JobRunRepository.
type RunStore interface {
	Start(ctx context.Context, jobName, triggeredBy string) (string, error)
	Complete(ctx context.Context, id string, processed, inserted, updated int) error
	Fail(ctx context.Context, id, errorMessage string) error
}

type scheduledJob struct {
	job      Job
	interval time.Duration
}

// Scheduler runs registered jobs on their intervals and accepts manual
// triggers from the API.
type Scheduler struct {
	runs   RunStore
	jobs   []scheduledJob
	byName map[string]Job
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler creates an empty scheduler.
func NewScheduler(runs RunStore) *Scheduler {
	return &Scheduler{
		runs:   runs,
		byName: make(map[string]Job),
		stopCh: make(chan struct{}),
	}
}

// Register adds a job. An interval of zero registers the job for manual
// triggering only.
func (s *Scheduler) Register(job Job, interval time.Duration) {
	s.byName[job.Name()] = job
	if interval > 0 {
		s.jobs = append(s.jobs, scheduledJob{job: job, interval: interval})
	}
}

// Start launches one ticker goroutine per scheduled job. Jobs do not run
// immediately at startup; the first execution happens after one interval, so
// a crash-looping process does not hammer upstreams.
func (s *Scheduler) Start(ctx context.Context) {
	for _, sj := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, sj)
	}
	slog.Info("job scheduler started", "scheduled_jobs", len(s.jobs))
}

func (s *Scheduler) loop(ctx context.Context, sj scheduledJob) {
	defer s.wg.Done()

	ticker := time.NewTicker(sj.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.execute(ctx, sj.job, TriggeredByScheduler)
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		}
	}
}

// Stop terminates the ticker loops and waits for them to exit. An execution
// already in flight runs to completion.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	slog.Info("job scheduler stopped")
}

// Trigger starts a manual run of the named job on a detached goroutine and
// returns its job_runs id immediately; callers poll the run record for the
// outcome. Unknown names and double-starts surface as errors.
func (s *Scheduler) Trigger(ctx context.Context, name, triggeredBy string) (string, error) {
	job, ok := s.byName[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownJob, name)
	}

	runID, err := s.runs.Start(ctx, name, triggeredBy)
	if err != nil {
		return "", fmt.Errorf("failed to record job start: %w", err)
	}

	go func() {
		runCtx, cancel := context.WithTimeout(context.Background(), manualRunTimeout)
		defer cancel()
		s.run(runCtx, job, runID)
	}()

	return runID, nil
}

// execute records and runs a scheduled execution synchronously within the
// ticker goroutine, so one job never has two overlapping runs.
func (s *Scheduler) execute(ctx context.Context, job Job, triggeredBy string) {
	runID, err := s.runs.Start(ctx, job.Name(), triggeredBy)
	if err != nil {
		slog.Error("failed to record job start", "job", job.Name(), "error", err)
		return
	}
	s.run(ctx, job, runID)
}

func (s *Scheduler) run(ctx context.Context, job Job, runID string) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("panic: %v", r)
			slog.Error("job panicked", "job", job.Name(), "run_id", runID, "panic", r)
			if err := s.runs.Fail(context.Background(), runID, msg); err != nil {
				slog.Error("failed to record job panic", "job", job.Name(), "error", err)
			}
			telemetry.JobRunsTotal.WithLabelValues(job.Name(), models.JobStatusFailed).Inc()
		}
	}()

	start := time.Now()
	slog.Info("job started", "job", job.Name(), "run_id", runID)

	result, err := job.Run(ctx)
	telemetry.JobRunDuration.WithLabelValues(job.Name()).Observe(time.Since(start).Seconds())

	if err != nil {
		slog.Error("job failed", "job", job.Name(), "run_id", runID, "error", err)
		if ferr := s.runs.Fail(context.Background(), runID, err.Error()); ferr != nil {
			slog.Error("failed to record job failure", "job", job.Name(), "error", ferr)
		}
		telemetry.JobRunsTotal.WithLabelValues(job.Name(), models.JobStatusFailed).Inc()
		return
	}

	if cerr := s.runs.Complete(context.Background(), runID, result.Processed, result.Inserted, result.Updated); cerr != nil {
		slog.Error("failed to record job completion", "job", job.Name(), "error", cerr)
	}
	telemetry.JobRunsTotal.WithLabelValues(job.Name(), models.JobStatusCompleted).Inc()
	slog.Info("job completed", "job", job.Name(), "run_id", runID,
		"processed", result.Processed, "inserted", result.Inserted, "updated", result.Updated,
		"duration", time.Since(start))
}
