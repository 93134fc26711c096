package scraper

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igharvest/pkg/config"
	errs "igharvest/pkg/errors"
	"igharvest/pkg/logger"
	"igharvest/pkg/metrics"
	"igharvest/pkg/models"
	"igharvest/pkg/retry"
)

func testOptions() Options {
	opts := DefaultOptions()
	opts.Backoff = &retry.ConstantBackoff{}
	return opts
}

func newTestEngine(t *testing.T, port FetchPort, mutate func(*Options)) *Engine {
	t.Helper()
	opts := testOptions()
	if mutate != nil {
		mutate(&opts)
	}
	engine, err := New(port, opts)
	require.NoError(t, err)
	return engine
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	port := newFakePort()

	opts := testOptions()
	opts.BatchSize = 0
	opts.ConcurrencyLimit = -1
	opts.MaxRetries = -2
	opts.MaxPages = -5

	_, err := New(port, opts)
	require.Error(t, err)
	assert.True(t, errs.IsConfigError(err))
	for _, field := range []string{"batchsize", "concurrency_limit", "max_retries", "max_pages"} {
		assert.Contains(t, err.Error(), field)
	}

	_, err = New(nil, testOptions())
	assert.Error(t, err)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Scrape.BatchSize = 4
	cfg.Scrape.MaxPages = 7
	cfg.Scrape.EarliestPostDate = "2025-02-03"
	cfg.Retry.Strategy = "constant"

	opts, err := OptionsFromConfig(cfg, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, opts.BatchSize)
	assert.Equal(t, 7, opts.MaxPages)
	assert.Equal(t, time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC), opts.EarliestPostDate)
	assert.IsType(t, &retry.ConstantBackoff{}, opts.Backoff)
	assert.Nil(t, opts.RetryIf)

	cfg.Retry.TransientOnly = true
	opts, err = OptionsFromConfig(cfg, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, opts.RetryIf)
	assert.False(t, opts.RetryIf(errs.NewFetchError(errs.ErrorTypeNotFound, 404, "gone")))

	cfg.Scrape.EarliestPostDate = "03/02/2025"
	_, err = OptionsFromConfig(cfg, nil, nil)
	assert.True(t, errs.IsConfigError(err))
}

func TestEngineShortcodeRetriedToSuccess(t *testing.T) {
	port := newFakePort()
	port.shortcodeFails["abc123"] = 2

	engine := newTestEngine(t, port, func(o *Options) { o.MaxRetries = 2 })
	report, err := engine.Run(context.Background(), []string{"abc123"}, nil)
	require.NoError(t, err)

	outcome := report.Shortcodes["abc123"]
	assert.Equal(t, models.StatusSuccess, outcome.Status)
	assert.Len(t, outcome.Records, 1)
	assert.Equal(t, 3, outcome.Attempts)
	assert.Equal(t, 3, port.shortcodeCalls["abc123"])
	assert.Empty(t, outcome.Error)
}

func TestEngineRetriesTypedFetchErrorsToSuccess(t *testing.T) {
	for _, errorType := range []errs.ErrorType{
		errs.ErrorTypeUnknown, errs.ErrorTypeParsing, errs.ErrorTypeNotFound, errs.ErrorTypeAuth,
	} {
		for failures := 1; failures <= 3; failures++ {
			t.Run(fmt.Sprintf("%s/%d", errorType, failures), func(t *testing.T) {
				port := newFakePort()
				port.shortcodeFails["abc123"] = failures
				port.failWith["abc123"] = errs.NewFetchError(errorType, 200, "challenge page")
				port.pages["42"] = [][]models.PostRecord{{post("42", "a", "2025-01-05")}}
				port.pageFails["42"] = map[int]int{0: failures}
				port.failWith["42"] = errs.NewFetchError(errorType, 200, "challenge page")

				engine := newTestEngine(t, port, func(o *Options) { o.MaxRetries = 3 })
				report, err := engine.Run(context.Background(), []string{"abc123"}, []string{"42"})
				require.NoError(t, err)

				shortcode := report.Shortcodes["abc123"]
				assert.Equal(t, models.StatusSuccess, shortcode.Status)
				assert.Equal(t, failures+1, shortcode.Attempts)

				user := report.Users["42"]
				assert.Equal(t, models.StatusSuccess, user.Status)
				assert.Equal(t, failures+1, user.Attempts)
				assert.Len(t, user.Records, 1)
			})
		}
	}
}

func TestEngineTransientOnlyStopsOnPermanentFetchError(t *testing.T) {
	port := newFakePort()
	port.shortcodeFails["abc123"] = 1
	port.failWith["abc123"] = errs.NewFetchError(errs.ErrorTypeNotFound, 404, "gone")

	engine := newTestEngine(t, port, func(o *Options) { o.RetryIf = retry.TransientOnly })
	report, err := engine.Run(context.Background(), []string{"abc123"}, nil)
	require.NoError(t, err)

	outcome := report.Shortcodes["abc123"]
	assert.Equal(t, models.StatusFailed, outcome.Status)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, 1, port.shortcodeCalls["abc123"])
}

func TestEngineShortcodeExhaustsRetries(t *testing.T) {
	port := newFakePort()
	port.shortcodeFails["bad"] = 10

	engine := newTestEngine(t, port, func(o *Options) { o.MaxRetries = 1 })
	report, err := engine.Run(context.Background(), []string{"bad", "good"}, nil)
	require.NoError(t, err)

	bad := report.Shortcodes["bad"]
	assert.Equal(t, models.StatusFailed, bad.Status)
	assert.Equal(t, 2, bad.Attempts)
	assert.Empty(t, bad.Records)

	var failure *errs.TaskFailure
	require.ErrorAs(t, bad.Err, &failure)
	assert.Equal(t, "shortcode:bad", failure.TaskID)
	assert.ErrorIs(t, bad.Err, errs.ErrRetriesExhausted)

	assert.Equal(t, models.StatusSuccess, report.Shortcodes["good"].Status)
	assert.Equal(t, Summary{Total: 2, Success: 1, Failed: 1, Records: 1}, report.Summary)
}

func TestEngineUserExhaustedBeforeCutoff(t *testing.T) {
	port := newFakePort()
	port.pages["u1"] = [][]models.PostRecord{
		{post("u1", "a", "2024-06-02"), post("u1", "b", "2024-06-01")},
		{post("u1", "c", "2024-05-01")},
	}

	engine := newTestEngine(t, port, func(o *Options) {
		o.MaxPages = UnlimitedPages
		o.EarliestPostDate = day("2024-01-01")
	})
	report, err := engine.Run(context.Background(), nil, []string{"u1"})
	require.NoError(t, err)

	outcome := report.Users["u1"]
	assert.Equal(t, models.StatusSuccess, outcome.Status)
	assert.Equal(t, models.StopExhausted, outcome.StopReason)
	assert.Equal(t, 2, outcome.PagesFetched)
	assert.Len(t, outcome.Records, 3)
}

func TestEngineUserPartialAndFailed(t *testing.T) {
	port := newFakePort()
	port.pages["partial"] = [][]models.PostRecord{
		{post("partial", "a", "2025-01-02")},
		{post("partial", "b", "2025-01-01")},
	}
	port.pageFails["partial"] = map[int]int{1: 100}
	port.pages["dead"] = [][]models.PostRecord{{post("dead", "a", "2025-01-02")}}
	port.pageFails["dead"] = map[int]int{0: 100}

	engine := newTestEngine(t, port, func(o *Options) { o.MaxRetries = 0 })
	report, err := engine.Run(context.Background(), nil, []string{"partial", "dead"})
	require.NoError(t, err)

	partial := report.Users["partial"]
	assert.Equal(t, models.StatusPartialSuccess, partial.Status)
	assert.Equal(t, models.StopFailed, partial.StopReason)
	assert.Len(t, partial.Records, 1)
	assert.NotEmpty(t, partial.Error)

	dead := report.Users["dead"]
	assert.Equal(t, models.StatusFailed, dead.Status)
	assert.Empty(t, dead.Records)
	assert.Equal(t, Summary{Total: 2, PartialSuccess: 1, Failed: 1, Records: 1}, report.Summary)
}

func TestEngineRespectsParallelismBound(t *testing.T) {
	port := newFakePort()
	port.delay = 5 * time.Millisecond

	var shortcodes, users []string
	for i := 0; i < 30; i++ {
		shortcodes = append(shortcodes, fmt.Sprintf("sc%d", i))
	}
	for i := 0; i < 6; i++ {
		users = append(users, fmt.Sprintf("u%d", i))
	}

	engine := newTestEngine(t, port, func(o *Options) {
		o.BatchSize = 3
		o.ConcurrencyLimit = 2
		o.MaxPages = 2
	})
	report, err := engine.Run(context.Background(), shortcodes, users)
	require.NoError(t, err)

	assert.Equal(t, 36, report.Summary.Total)
	assert.Equal(t, 36, report.Summary.Success)
	assert.LessOrEqual(t, port.peak.Load(), int64(engine.ParallelismBound()))
	for _, u := range users {
		assert.Equal(t, models.StopMaxPages, report.Users[u].StopReason)
	}
}

func TestEngineIsIdempotent(t *testing.T) {
	build := func() *fakePort {
		port := newFakePort()
		port.shortcodeFails["flaky"] = 1
		port.shortcodeFails["dead"] = 10
		port.pages["u1"] = [][]models.PostRecord{
			{post("u1", "a", "2024-12-20"), post("u1", "b", "2024-12-10")},
			{post("u1", "c", "2024-12-02"), post("u1", "d", "2024-11-20")},
		}
		port.pages["u2"] = [][]models.PostRecord{{post("u2", "a", "2025-01-01")}}
		return port
	}

	run := func() *Report {
		engine := newTestEngine(t, build(), func(o *Options) {
			o.MaxRetries = 2
			o.BatchSize = 2
			o.ConcurrencyLimit = 2
		})
		report, err := engine.Run(context.Background(), []string{"ok", "flaky", "dead"}, []string{"u1", "u2"})
		require.NoError(t, err)
		return report
	}

	first, second := run(), run()
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, first.Shortcodes, second.Shortcodes)
	assert.Equal(t, first.Users, second.Users)
	assert.Equal(t, first.Summary, second.Summary)
	assert.Equal(t, models.StopDateCutoff, first.Users["u1"].StopReason)
	assert.Len(t, first.Users["u1"].Records, 3)
}

func TestEngineCancelledRunReportsEveryIdentifier(t *testing.T) {
	port := newFakePort()
	engine := newTestEngine(t, port, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := engine.Run(ctx, []string{"a", "b"}, []string{"u"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Equal(t, 3, report.Summary.Total)
	assert.Equal(t, 3, report.Summary.Failed)
	assert.ErrorIs(t, report.Users["u"].Err, errs.ErrNotAdmitted)
}

func TestEngineRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	port := newFakePort()
	port.shortcodeFails["retry"] = 1
	engine := newTestEngine(t, port, func(o *Options) {
		o.Metrics = m
		o.MaxPages = 2
	})

	_, err := engine.Run(context.Background(), []string{"retry"}, []string{"endless"})
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(reg,
		"igharvest_tasks_total",
		"igharvest_retries_total",
		"igharvest_pages_total",
		"igharvest_pagination_stops_total",
	)
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	expected := `
# HELP igharvest_pages_total Total number of user pages fetched successfully.
# TYPE igharvest_pages_total counter
igharvest_pages_total 2
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "igharvest_pages_total"))
}

func TestEngineRecordsOneOutcomePerDistinctIdentifier(t *testing.T) {
	tl := logger.NewTestLogger()
	engine := newTestEngine(t, newFakePort(), func(o *Options) {
		o.Logger = tl
		o.MaxPages = 1
	})

	report, err := engine.Run(context.Background(), []string{"a", "b", "a"}, []string{"7", "7", "a"})
	require.NoError(t, err)

	assert.Equal(t, 4, report.Summary.Total)
	for _, task := range []models.FetchTask{models.ShortcodeTask("a"), models.ShortcodeTask("b"), models.UserTask("7"), models.UserTask("a")} {
		_, ok := report.Outcome(task)
		assert.True(t, ok, task.Key())
	}
	assert.False(t, tl.HasMessage("ERROR", "Outcome count mismatch"))
	for _, msg := range tl.GetMessages() {
		if msg.Message == "Run finished" {
			assert.Equal(t, 4, msg.Fields["outcomes"])
		}
	}
	assert.True(t, tl.HasMessage("INFO", "Run finished"))
}
