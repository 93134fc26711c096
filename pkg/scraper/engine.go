package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"igharvest/internal/scheduler"
	"igharvest/pkg/config"
	errs "igharvest/pkg/errors"
	"igharvest/pkg/logger"
	"igharvest/pkg/metrics"
	"igharvest/pkg/models"
	"igharvest/pkg/retry"
)

// Options configures an Engine
type Options struct {
	BatchSize        int
	ConcurrencyLimit int
	MaxRetries       int
	// MaxPages limits pages per user; UnlimitedPages disables the limit
	MaxPages int
	// EarliestPostDate is the date cutoff for user enumeration; the zero
	// time disables it
	EarliestPostDate time.Time
	Backoff          retry.BackoffStrategy
	// RetryIf decides whether a failed attempt is retried; nil retries every
	// error except context cancellation
	RetryIf func(error) bool
	Logger  logger.Logger
	Metrics *metrics.Metrics
}

// DefaultOptions mirrors the configuration defaults
func DefaultOptions() Options {
	cutoff, _ := config.ParseDate(config.DefaultConfig().Scrape.EarliestPostDate)
	return Options{
		BatchSize:        10,
		ConcurrencyLimit: 10,
		MaxRetries:       3,
		MaxPages:         UnlimitedPages,
		EarliestPostDate: cutoff,
		Backoff:          retry.DefaultExponentialBackoff(),
	}
}

// OptionsFromConfig builds engine options from a validated configuration
func OptionsFromConfig(cfg *config.Config, log logger.Logger, m *metrics.Metrics) (Options, error) {
	cutoff, err := cfg.EarliestPostDate()
	if err != nil {
		return Options{}, errs.NewConfigError("earliest_post_date", cfg.Scrape.EarliestPostDate, err.Error())
	}
	backoff, err := retry.NewBackoff(cfg.Retry)
	if err != nil {
		return Options{}, errs.NewConfigError("retry.strategy", cfg.Retry.Strategy, err.Error())
	}

	opts := DefaultOptions()
	opts.BatchSize = cfg.Scrape.BatchSize
	opts.ConcurrencyLimit = cfg.Scrape.ConcurrencyLimit
	opts.MaxRetries = cfg.Scrape.MaxRetries
	opts.MaxPages = cfg.Scrape.MaxPages
	opts.EarliestPostDate = cutoff
	opts.Backoff = backoff
	opts.Logger = log
	opts.Metrics = m
	if cfg.Retry.TransientOnly {
		opts.RetryIf = retry.TransientOnly
	}
	return opts, nil
}

// Validate reports every invalid option as a joined ConfigError
func (o Options) Validate() error {
	var errList []error
	if o.BatchSize <= 0 {
		errList = append(errList, errs.NewConfigError("batchsize", o.BatchSize, "must be positive"))
	}
	if o.ConcurrencyLimit <= 0 {
		errList = append(errList, errs.NewConfigError("concurrency_limit", o.ConcurrencyLimit, "must be positive"))
	}
	if o.MaxRetries < 0 {
		errList = append(errList, errs.NewConfigError("max_retries", o.MaxRetries, "cannot be negative"))
	}
	if o.MaxPages < UnlimitedPages {
		errList = append(errList, errs.NewConfigError("max_pages", o.MaxPages, "must be -1 (unlimited) or greater"))
	}
	return errors.Join(errList...)
}

// Engine fetches posts for shortcodes and user ids through a FetchPort
type Engine struct {
	port            FetchPort
	opts            Options
	scheduler       *scheduler.BatchScheduler
	shortcodePolicy *retry.Policy
	userPolicy      *retry.Policy
	logger          logger.Logger
	metrics         *metrics.Metrics
}

// New validates opts and wires the engine. Invalid options are reported as
// ConfigErrors and no engine is returned.
func New(port FetchPort, opts Options) (*Engine, error) {
	if port == nil {
		return nil, fmt.Errorf("fetch port is required")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	log := logger.OrNop(opts.Logger)
	if opts.Backoff == nil {
		opts.Backoff = retry.DefaultExponentialBackoff()
	}

	e := &Engine{
		port:    port,
		opts:    opts,
		logger:  log,
		metrics: opts.Metrics,
	}

	var err error
	e.shortcodePolicy, err = e.newPolicy(models.KindShortcode)
	if err != nil {
		return nil, err
	}
	e.userPolicy, err = e.newPolicy(models.KindUser)
	if err != nil {
		return nil, err
	}

	e.scheduler, err = scheduler.New(scheduler.Config{
		BatchSize:        opts.BatchSize,
		ConcurrencyLimit: opts.ConcurrencyLimit,
		Logger:           log.WithField("component", "scheduler"),
		Metrics:          opts.Metrics,
	})
	if err != nil {
		return nil, err
	}

	return e, nil
}

func (e *Engine) newPolicy(kind models.TaskKind) (*retry.Policy, error) {
	return retry.NewPolicy(e.opts.MaxRetries,
		retry.WithBackoff(e.opts.Backoff),
		retry.WithRetryIf(e.opts.RetryIf),
		retry.WithLogger(e.logger.WithField("kind", string(kind))),
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			e.metrics.IncRetries(string(kind))
		}),
	)
}

// ParallelismBound is the maximum number of tasks executing at once
func (e *Engine) ParallelismBound() int {
	return e.scheduler.ParallelismBound()
}

// Run fetches every distinct shortcode and user id and returns the report.
// The report always holds one outcome per identifier. The error is non-nil
// only when ctx was cancelled before every batch could be admitted.
func (e *Engine) Run(ctx context.Context, shortcodes, userIDs []string) (*Report, error) {
	runID := uuid.NewString()
	startedAt := time.Now()
	log := e.logger.WithField("run_id", runID)

	logger.LogComponentStart(log, "engine", map[string]interface{}{
		"shortcodes":         len(shortcodes),
		"user_ids":           len(userIDs),
		"batch_size":         e.opts.BatchSize,
		"concurrency_limit":  e.opts.ConcurrencyLimit,
		"parallelism_bound":  e.ParallelismBound(),
		"max_retries":        e.opts.MaxRetries,
		"max_pages":          e.opts.MaxPages,
		"earliest_post_date": e.opts.EarliestPostDate.Format(config.DateLayout),
	})

	aggregator := NewAggregator(log)
	results := make(chan models.TaskOutcome, e.opts.BatchSize)
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		aggregator.Collect(results)
	}()

	exec := scheduler.ExecutorFunc(func(ctx context.Context, task models.FetchTask) models.TaskOutcome {
		return e.execute(ctx, task, log)
	})
	runErr := e.scheduler.Run(ctx, Enumerate(shortcodes, userIDs), exec, results)
	close(results)
	<-collected

	report := aggregator.Report(runID, startedAt, time.Now())
	expected := 0
	for range Enumerate(shortcodes, userIDs) {
		expected++
	}
	if got := aggregator.Len(); got != expected {
		log.ErrorWithFields("Outcome count mismatch", map[string]interface{}{
			"expected": expected,
			"recorded": got,
		})
	}

	reason := "completed"
	if runErr != nil {
		reason = "cancelled"
	}
	logger.LogComponentStop(log, "engine", reason)
	logger.LogRunSummary(log, runID, map[string]interface{}{
		"total":           report.Summary.Total,
		"success":         report.Summary.Success,
		"partial_success": report.Summary.PartialSuccess,
		"failed":          report.Summary.Failed,
		"records":         report.Summary.Records,
		"outcomes":        aggregator.Len(),
		"duration":        report.FinishedAt.Sub(startedAt),
	})

	if runErr != nil {
		return report, fmt.Errorf("run %s cancelled: %w", runID, runErr)
	}
	return report, nil
}

// execute drives one task to its terminal outcome
func (e *Engine) execute(ctx context.Context, task models.FetchTask, log logger.Logger) models.TaskOutcome {
	start := time.Now()
	log = log.WithField("task_id", task.Key())

	var outcome models.TaskOutcome
	switch task.Kind {
	case models.KindShortcode:
		outcome = e.fetchShortcode(ctx, task)
	case models.KindUser:
		outcome = e.enumerateUser(ctx, task, log)
	default:
		outcome = models.TaskOutcome{Task: task, Status: models.StatusFailed, Records: []models.PostRecord{}}
		outcome.SetError(&errs.TaskFailure{TaskID: task.Key(), Err: fmt.Errorf("unknown task kind %q", task.Kind)})
	}

	e.metrics.ObserveTask(string(task.Kind), string(outcome.Status), time.Since(start))
	logger.LogTaskOutcome(log, task.Key(), string(outcome.Status), len(outcome.Records), outcome.Attempts, outcome.Err)
	return outcome
}

func (e *Engine) fetchShortcode(ctx context.Context, task models.FetchTask) models.TaskOutcome {
	record, attempts, err := retry.DoWithResult(ctx, e.shortcodePolicy, func(ctx context.Context) (models.PostRecord, error) {
		rec, err := e.port.FetchByShortcode(ctx, task.ID)
		e.metrics.ObserveAttempt(string(models.KindShortcode), err)
		return rec, err
	})

	outcome := models.TaskOutcome{
		Task:     task,
		Records:  []models.PostRecord{},
		Attempts: attempts,
	}
	if err != nil {
		outcome.Status = models.StatusFailed
		outcome.SetError(&errs.TaskFailure{TaskID: task.Key(), Attempts: attempts, Err: err})
		return outcome
	}

	outcome.Status = models.StatusSuccess
	outcome.Records = append(outcome.Records, record)
	return outcome
}

func (e *Engine) enumerateUser(ctx context.Context, task models.FetchTask, log logger.Logger) models.TaskOutcome {
	cursor := NewPaginationCursor(task.ID, CursorConfig{
		Port:     e.port,
		Policy:   e.userPolicy,
		MaxPages: e.opts.MaxPages,
		Cutoff:   e.opts.EarliestPostDate,
		Logger:   log,
		Metrics:  e.metrics,
	})
	cursor.Run(ctx)

	state := cursor.State()
	outcome := models.TaskOutcome{
		Task:         task,
		Records:      cursor.Records(),
		StopReason:   state.StoppedReason,
		Attempts:     cursor.Attempts(),
		PagesFetched: state.PagesFetched,
	}

	switch {
	case state.StoppedReason != models.StopFailed:
		outcome.Status = models.StatusSuccess
	case len(outcome.Records) > 0:
		outcome.Status = models.StatusPartialSuccess
	default:
		outcome.Status = models.StatusFailed
	}

	if err := cursor.Err(); err != nil {
		outcome.SetError(&errs.TaskFailure{TaskID: task.Key(), Attempts: cursor.Attempts(), Err: err})
	}
	return outcome
}
