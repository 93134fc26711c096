package scraper

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igharvest/pkg/logger"
	"igharvest/pkg/models"
)

func TestAggregatorWriteOnce(t *testing.T) {
	tl := logger.NewTestLogger()
	agg := NewAggregator(tl)

	first := models.TaskOutcome{Task: models.ShortcodeTask("abc"), Status: models.StatusSuccess}
	second := models.TaskOutcome{Task: models.ShortcodeTask("abc"), Status: models.StatusFailed}

	require.NoError(t, agg.Record(first))
	assert.ErrorIs(t, agg.Record(second), ErrDuplicateOutcome)
	assert.True(t, tl.HasMessage("ERROR", "Duplicate outcome rejected"))

	report := agg.Report("run", time.Time{}, time.Time{})
	assert.Equal(t, models.StatusSuccess, report.Shortcodes["abc"].Status)
}

func TestAggregatorSeparatesNamespaces(t *testing.T) {
	agg := NewAggregator(nil)
	require.NoError(t, agg.Record(models.TaskOutcome{Task: models.ShortcodeTask("x"), Status: models.StatusSuccess}))
	require.NoError(t, agg.Record(models.TaskOutcome{Task: models.UserTask("x"), Status: models.StatusFailed}))

	report := agg.Report("run", time.Time{}, time.Time{})
	assert.Len(t, report.Shortcodes, 1)
	assert.Len(t, report.Users, 1)
	assert.Equal(t, Summary{Total: 2, Success: 1, Failed: 1}, report.Summary)
}

func TestAggregatorCollectOutOfOrder(t *testing.T) {
	agg := NewAggregator(nil)
	results := make(chan models.TaskOutcome)
	done := make(chan struct{})
	go func() {
		agg.Collect(results)
		close(done)
	}()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status := models.StatusSuccess
			if i%5 == 0 {
				status = models.StatusPartialSuccess
			}
			results <- models.TaskOutcome{
				Task:    models.UserTask(fmt.Sprintf("u%d", i)),
				Status:  status,
				Records: []models.PostRecord{{ID: fmt.Sprint(i)}},
			}
		}()
	}
	wg.Wait()
	close(results)
	<-done

	report := agg.Report("run", time.Time{}, time.Time{})
	assert.Equal(t, 50, agg.Len())
	assert.Equal(t, Summary{Total: 50, Success: 40, PartialSuccess: 10, Records: 50}, report.Summary)
}

func TestReportMergeCarriesPreviousSuccesses(t *testing.T) {
	previous := newReport("old", time.Time{}, time.Time{})
	previous.put(models.TaskOutcome{Task: models.ShortcodeTask("done"), Status: models.StatusSuccess, Records: []models.PostRecord{{ID: "1"}}})
	previous.put(models.TaskOutcome{Task: models.ShortcodeTask("broken"), Status: models.StatusFailed})
	previous.put(models.TaskOutcome{Task: models.UserTask("u1"), Status: models.StatusSuccess})
	previous.put(models.TaskOutcome{Task: models.UserTask("u2"), Status: models.StatusPartialSuccess})

	current := newReport("new", time.Time{}, time.Time{})
	current.put(models.TaskOutcome{Task: models.ShortcodeTask("broken"), Status: models.StatusSuccess})
	current.put(models.TaskOutcome{Task: models.UserTask("u2"), Status: models.StatusFailed})
	current.Merge(previous)

	assert.Equal(t, []string{"broken", "done"}, current.Succeeded(models.KindShortcode))
	assert.Equal(t, []string{"u1"}, current.Succeeded(models.KindUser))
	assert.Equal(t, models.StatusFailed, current.Users["u2"].Status, "current outcome wins")
	assert.Equal(t, Summary{Total: 4, Success: 3, Failed: 1, Records: 1}, current.Summary)

	current.Merge(nil)
	assert.Equal(t, 4, current.Summary.Total)
}

func TestReportOutcome(t *testing.T) {
	r := newReport("run", time.Time{}, time.Time{})
	r.put(models.TaskOutcome{Task: models.UserTask("u"), Status: models.StatusSuccess})

	o, ok := r.Outcome(models.UserTask("u"))
	assert.True(t, ok)
	assert.Equal(t, models.StatusSuccess, o.Status)

	_, ok = r.Outcome(models.ShortcodeTask("u"))
	assert.False(t, ok)
}

func TestAggregatorReportIsASnapshot(t *testing.T) {
	agg := NewAggregator(nil)
	require.NoError(t, agg.Record(models.TaskOutcome{Task: models.UserTask("1"), Status: models.StatusSuccess}))

	report := agg.Report("run", time.Time{}, time.Time{})
	require.NoError(t, agg.Record(models.TaskOutcome{Task: models.UserTask("2"), Status: models.StatusFailed}))

	assert.Len(t, report.Users, 1)
	assert.Equal(t, 2, agg.Len())
	_, ok := report.Outcome(models.UserTask("2"))
	assert.False(t, ok)
}
