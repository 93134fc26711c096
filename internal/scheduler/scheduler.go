// Package scheduler runs fetch tasks in batches under a process-wide
// concurrency bound.
package scheduler

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	errs "igharvest/pkg/errors"
	"igharvest/pkg/logger"
	"igharvest/pkg/metrics"
	"igharvest/pkg/models"
)

// Executor drives a single task to its terminal outcome. Execute must not
// return until the task is resolved and must not panic across tasks.
type Executor interface {
	Execute(ctx context.Context, task models.FetchTask) models.TaskOutcome
}

// ExecutorFunc adapts a function to the Executor interface
type ExecutorFunc func(ctx context.Context, task models.FetchTask) models.TaskOutcome

// Execute calls f(ctx, task)
func (f ExecutorFunc) Execute(ctx context.Context, task models.FetchTask) models.TaskOutcome {
	return f(ctx, task)
}

// Config holds scheduler limits
type Config struct {
	BatchSize        int
	ConcurrencyLimit int
	Logger           logger.Logger
	Metrics          *metrics.Metrics
}

// BatchScheduler groups tasks into batches of BatchSize and keeps at most
// ConcurrencyLimit batches running at once. Every task inside an admitted
// batch runs in its own goroutine with no further limit, so the real bound
// on concurrently executing tasks (and in-flight fetches) is
// ConcurrencyLimit * BatchSize.
//
// Batches are admitted in formation order through a FIFO counting
// semaphore. A failing task never affects its siblings: each one always
// produces exactly one outcome.
type BatchScheduler struct {
	batchSize        int
	concurrencyLimit int
	sem              *semaphore.Weighted
	logger           logger.Logger
	metrics          *metrics.Metrics
}

// New creates a BatchScheduler. Both limits must be positive.
func New(cfg Config) (*BatchScheduler, error) {
	if cfg.BatchSize < 1 {
		return nil, errs.NewConfigError("batchsize", cfg.BatchSize, "must be > 0")
	}
	if cfg.ConcurrencyLimit < 1 {
		return nil, errs.NewConfigError("concurrency_limit", cfg.ConcurrencyLimit, "must be > 0")
	}

	return &BatchScheduler{
		batchSize:        cfg.BatchSize,
		concurrencyLimit: cfg.ConcurrencyLimit,
		sem:              semaphore.NewWeighted(int64(cfg.ConcurrencyLimit)),
		logger:           logger.OrNop(cfg.Logger),
		metrics:          cfg.Metrics,
	}, nil
}

// ParallelismBound is the maximum number of tasks that can execute at once
func (s *BatchScheduler) ParallelismBound() int {
	return s.concurrencyLimit * s.batchSize
}

// Run executes every task in tasks and sends exactly one outcome per task
// on results. It returns once all admitted tasks have finished; it does not
// close results.
//
// When ctx is cancelled no further batch is admitted. Tasks already running
// continue on a context that is not cancelled so they can finish cleanly,
// and every task that was never admitted is reported as failed with
// ErrNotAdmitted. Run then returns ctx's error.
func (s *BatchScheduler) Run(ctx context.Context, tasks iter.Seq[models.FetchTask], exec Executor, results chan<- models.TaskOutcome) error {
	s.logger.InfoWithFields("Scheduler started", map[string]interface{}{
		"batch_size":        s.batchSize,
		"concurrency_limit": s.concurrencyLimit,
		"parallelism_bound": s.ParallelismBound(),
	})

	taskCtx := context.WithoutCancel(ctx)

	var (
		wg          sync.WaitGroup
		admitErr    error
		admitted    int
		notAdmitted int
	)

	for batch := range Batches(tasks, s.batchSize) {
		if admitErr == nil {
			admitErr = s.admit(ctx)
			if admitErr != nil {
				s.logger.WarnWithFields("Run cancelled, no further batches admitted", map[string]interface{}{
					"batches_admitted": admitted,
					"reason":           admitErr.Error(),
				})
			}
		}
		if admitErr != nil {
			for _, task := range batch {
				results <- notAdmittedOutcome(task, admitErr)
				notAdmitted++
			}
			continue
		}

		batchIndex := admitted
		admitted++
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer s.sem.Release(1)
			s.runBatch(taskCtx, batchIndex, batch, exec, results)
		}()
	}

	wg.Wait()

	s.logger.InfoWithFields("Scheduler finished", map[string]interface{}{
		"batches":      admitted,
		"not_admitted": notAdmitted,
	})
	return admitErr
}

// admit blocks until a concurrency slot is free or ctx is done
func (s *BatchScheduler) admit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.sem.Acquire(ctx, 1)
}

func (s *BatchScheduler) runBatch(ctx context.Context, index int, batch []models.FetchTask, exec Executor, results chan<- models.TaskOutcome) {
	start := time.Now()
	s.metrics.BatchStarted()
	defer s.metrics.BatchFinished()

	log := s.logger.WithField("batch", index)
	log.DebugWithFields("Batch admitted", map[string]interface{}{
		"tasks": len(batch),
	})

	var wg sync.WaitGroup
	for _, task := range batch {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- s.runTask(ctx, task, exec, log)
		}()
	}
	wg.Wait()

	log.DebugWithFields("Batch completed", map[string]interface{}{
		"tasks":    len(batch),
		"duration": time.Since(start),
	})
}

// runTask isolates a panicking executor so it only fails its own task
func (s *BatchScheduler) runTask(ctx context.Context, task models.FetchTask, exec Executor, log logger.Logger) (outcome models.TaskOutcome) {
	s.metrics.TaskStarted()
	defer s.metrics.TaskFinished()

	defer func() {
		if r := recover(); r != nil {
			log.ErrorWithFields("Task panicked", map[string]interface{}{
				"task":  task.Key(),
				"panic": fmt.Sprint(r),
			})
			outcome = models.TaskOutcome{Task: task, Status: models.StatusFailed}
			outcome.SetError(&errs.TaskFailure{TaskID: task.Key(), Err: fmt.Errorf("panic: %v", r)})
		}
	}()

	return exec.Execute(ctx, task)
}

func notAdmittedOutcome(task models.FetchTask, cause error) models.TaskOutcome {
	outcome := models.TaskOutcome{Task: task, Status: models.StatusFailed}
	if task.Kind == models.KindUser {
		outcome.StopReason = models.StopFailed
	}
	outcome.SetError(&errs.TaskFailure{
		TaskID: task.Key(),
		Err:    fmt.Errorf("%w: %w", errs.ErrNotAdmitted, cause),
	})
	return outcome
}
