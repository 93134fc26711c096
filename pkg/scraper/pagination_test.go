package scraper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "igharvest/pkg/errors"
	"igharvest/pkg/logger"
	"igharvest/pkg/models"
	"igharvest/pkg/retry"
)

func testPolicy(t *testing.T, maxRetries int) *retry.Policy {
	t.Helper()
	p, err := retry.NewPolicy(maxRetries, retry.WithBackoff(&retry.ConstantBackoff{}))
	require.NoError(t, err)
	return p
}

func newTestCursor(t *testing.T, port FetchPort, userID string, maxPages int, cutoff string) *PaginationCursor {
	t.Helper()
	var c time.Time
	if cutoff != "" {
		c = day(cutoff)
	}
	return NewPaginationCursor(userID, CursorConfig{
		Port:     port,
		Policy:   testPolicy(t, 1),
		MaxPages: maxPages,
		Cutoff:   c,
	})
}

func TestCursorStopsAtMaxPages(t *testing.T) {
	port := newFakePort()
	cursor := newTestCursor(t, port, "endless", 3, "2024-12-01")
	cursor.Run(context.Background())

	state := cursor.State()
	assert.Equal(t, models.StopMaxPages, state.StoppedReason)
	assert.Equal(t, 3, state.PagesFetched)
	assert.Equal(t, 3, port.calls("endless"))
	assert.Len(t, cursor.Records(), 3)
	assert.NoError(t, cursor.Err())
}

func TestCursorMaxPagesZeroFetchesOnePage(t *testing.T) {
	port := newFakePort()
	cursor := newTestCursor(t, port, "endless", 0, "")
	cursor.Run(context.Background())

	assert.Equal(t, models.StopMaxPages, cursor.State().StoppedReason)
	assert.Equal(t, 1, port.calls("endless"))
}

func TestCursorDateCutoffIsInclusiveExclusive(t *testing.T) {
	port := newFakePort()
	port.pages["u"] = [][]models.PostRecord{
		{post("u", "new", "2024-12-05"), post("u", "old", "2024-11-30")},
		{post("u", "never", "2024-11-01")},
	}

	cursor := newTestCursor(t, port, "u", UnlimitedPages, "2024-12-01")
	cursor.Run(context.Background())

	assert.Equal(t, models.StopDateCutoff, cursor.State().StoppedReason)
	require.Len(t, cursor.Records(), 1)
	assert.Equal(t, "new", cursor.Records()[0].ID)
	assert.Equal(t, 1, port.calls("u"), "no page after the cutoff page may be requested")
}

func TestCursorKeepsPostsOnCutoffDay(t *testing.T) {
	port := newFakePort()
	onDay := post("u", "same-day", "2024-12-01")
	onDay.PostedAt = time.Date(2024, 12, 1, 0, 0, 1, 0, time.UTC)
	port.pages["u"] = [][]models.PostRecord{
		{onDay},
		{post("u", "later", "2024-11-30")},
	}

	cursor := newTestCursor(t, port, "u", UnlimitedPages, "2024-12-01")
	cursor.Run(context.Background())

	assert.Equal(t, models.StopDateCutoff, cursor.State().StoppedReason)
	require.Len(t, cursor.Records(), 1)
	assert.Equal(t, "same-day", cursor.Records()[0].ID)
	assert.Equal(t, 2, cursor.State().PagesFetched)
}

func TestCursorCutoffWinsOverMaxPages(t *testing.T) {
	port := newFakePort()
	port.pages["u"] = [][]models.PostRecord{
		{post("u", "a", "2024-12-05"), post("u", "b", "2024-11-01")},
		{post("u", "c", "2024-10-01")},
	}

	cursor := newTestCursor(t, port, "u", 1, "2024-12-01")
	cursor.Run(context.Background())
	assert.Equal(t, models.StopDateCutoff, cursor.State().StoppedReason)
}

func TestCursorExhausted(t *testing.T) {
	port := newFakePort()
	port.pages["u"] = [][]models.PostRecord{
		{post("u", "1", "2024-06-01"), post("u", "2", "2024-05-01")},
		{post("u", "3", "2024-04-01")},
	}

	cursor := newTestCursor(t, port, "u", UnlimitedPages, "2020-01-01")
	cursor.Run(context.Background())

	assert.Equal(t, models.StopExhausted, cursor.State().StoppedReason)
	assert.Equal(t, 2, cursor.State().PagesFetched)
	assert.Len(t, cursor.Records(), 3)

	reqs := port.requests["u"]
	require.Len(t, reqs, 2)
	assert.Equal(t, models.PageRequest{UserID: "u", Cursor: "", PageIndex: 0}, reqs[0])
	assert.Equal(t, models.PageRequest{UserID: "u", Cursor: "p1", PageIndex: 1}, reqs[1])
}

func TestCursorRepeatedCursorEndsEnumeration(t *testing.T) {
	port := newFakePort()
	port.pages["u"] = [][]models.PostRecord{
		{post("u", "1", "2025-01-03")},
		{post("u", "2", "2025-01-02")},
		{post("u", "3", "2025-01-01")},
	}
	port.repeatCursorFrom["u"] = 1

	cursor := newTestCursor(t, port, "u", UnlimitedPages, "2024-12-01")
	cursor.Run(context.Background())

	assert.Equal(t, models.StopExhausted, cursor.State().StoppedReason)
	assert.Equal(t, 2, port.calls("u"))
	assert.Len(t, cursor.Records(), 2)
}

func TestCursorFailureKeepsEarlierPages(t *testing.T) {
	port := newFakePort()
	port.pages["u"] = [][]models.PostRecord{
		{post("u", "1", "2025-01-03")},
		{post("u", "2", "2025-01-02")},
	}
	port.pageFails["u"] = map[int]int{1: 5}

	cursor := newTestCursor(t, port, "u", UnlimitedPages, "2024-12-01")
	cursor.Run(context.Background())

	assert.Equal(t, models.StopFailed, cursor.State().StoppedReason)
	assert.Len(t, cursor.Records(), 1)
	assert.ErrorIs(t, cursor.Err(), errs.ErrRetriesExhausted)
	// one attempt for page 0, two (1 + max_retries) for page 1
	assert.Equal(t, 3, cursor.Attempts())
	assert.Equal(t, 1, cursor.State().PagesFetched)
}

func TestCursorRetriesPageWithSameRequest(t *testing.T) {
	port := newFakePort()
	port.pages["u"] = [][]models.PostRecord{
		{post("u", "1", "2025-01-03")},
		{post("u", "2", "2025-01-02")},
	}
	port.pageFails["u"] = map[int]int{1: 1}

	cursor := newTestCursor(t, port, "u", UnlimitedPages, "2024-12-01")
	cursor.Run(context.Background())

	assert.Equal(t, models.StopExhausted, cursor.State().StoppedReason)
	reqs := port.requests["u"]
	require.Len(t, reqs, 3)
	assert.Equal(t, reqs[1], reqs[2])
	assert.Equal(t, 3, cursor.Attempts())
}

func TestCursorKeepsUndatedRecords(t *testing.T) {
	port := newFakePort()
	undated := models.PostRecord{ID: "undated", OwnerID: "u"}
	port.pages["u"] = [][]models.PostRecord{{undated}}

	tl := logger.NewTestLogger()
	cursor := NewPaginationCursor("u", CursorConfig{
		Port:     port,
		Policy:   testPolicy(t, 0),
		MaxPages: UnlimitedPages,
		Cutoff:   day("2024-12-01"),
		Logger:   tl,
	})
	cursor.Run(context.Background())

	assert.Equal(t, models.StopExhausted, cursor.State().StoppedReason)
	assert.Len(t, cursor.Records(), 1)
	assert.True(t, tl.HasMessage("WARN", "Record has no posted_at, keeping it"))
}

func TestCursorStepAfterStopIsNoop(t *testing.T) {
	port := newFakePort()
	port.pages["u"] = [][]models.PostRecord{{post("u", "1", "2025-01-01")}}

	cursor := newTestCursor(t, port, "u", UnlimitedPages, "")
	assert.False(t, cursor.Step(context.Background()))
	assert.False(t, cursor.Step(context.Background()))
	assert.Equal(t, 1, port.calls("u"))
}
