package scraper

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"igharvest/pkg/models"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t.Add(15 * time.Hour)
}

func post(owner, id, date string) models.PostRecord {
	return models.PostRecord{ID: id, OwnerID: owner, Shortcode: "sc-" + id, PostedAt: day(date)}
}

// fakePort is a deterministic FetchPort. Shortcode failures are scripted per
// shortcode as a number of leading failures; user histories are a list of
// pages chained by cursor "p<n>". failWith replaces the plain scripted error
// for a shortcode or user id.
type fakePort struct {
	mu               sync.Mutex
	shortcodeFails   map[string]int
	shortcodeCalls   map[string]int
	pages            map[string][][]models.PostRecord
	pageFails        map[string]map[int]int
	pageCalls        map[string]int
	requests         map[string][]models.PageRequest
	repeatCursorFrom map[string]int
	failWith         map[string]error
	delay            time.Duration

	inFlight atomic.Int64
	peak     atomic.Int64
}

func newFakePort() *fakePort {
	return &fakePort{
		shortcodeFails:   map[string]int{},
		shortcodeCalls:   map[string]int{},
		pages:            map[string][][]models.PostRecord{},
		pageFails:        map[string]map[int]int{},
		pageCalls:        map[string]int{},
		requests:         map[string][]models.PageRequest{},
		repeatCursorFrom: map[string]int{},
		failWith:         map[string]error{},
	}
}

func (f *fakePort) enter() func() {
	n := f.inFlight.Add(1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return func() { f.inFlight.Add(-1) }
}

func (f *fakePort) FetchByShortcode(ctx context.Context, shortcode string) (models.PostRecord, error) {
	defer f.enter()()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.shortcodeCalls[shortcode]++
	if f.shortcodeCalls[shortcode] <= f.shortcodeFails[shortcode] {
		if err, ok := f.failWith[shortcode]; ok {
			return models.PostRecord{}, err
		}
		return models.PostRecord{}, fmt.Errorf("transient failure %d for %s", f.shortcodeCalls[shortcode], shortcode)
	}
	return models.PostRecord{ID: "id-" + shortcode, OwnerID: "owner", Shortcode: shortcode, PostedAt: day("2024-12-10")}, nil
}

func (f *fakePort) FetchUserPage(ctx context.Context, req models.PageRequest) (models.Page, error) {
	defer f.enter()()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageCalls[req.UserID]++
	f.requests[req.UserID] = append(f.requests[req.UserID], req)

	index := 0
	if req.Cursor != "" {
		if _, err := fmt.Sscanf(req.Cursor, "p%d", &index); err != nil {
			return models.Page{}, fmt.Errorf("bad cursor %q", req.Cursor)
		}
	}

	if fails := f.pageFails[req.UserID]; fails != nil && fails[index] > 0 {
		fails[index]--
		if err, ok := f.failWith[req.UserID]; ok {
			return models.Page{}, err
		}
		return models.Page{}, fmt.Errorf("page %d unavailable", index)
	}

	history, ok := f.pages[req.UserID]
	if !ok {
		// Unknown users get an endless history of fresh posts.
		return models.Page{
			Records:    []models.PostRecord{post(req.UserID, fmt.Sprintf("%s-%d", req.UserID, index), "2025-01-01")},
			NextCursor: fmt.Sprintf("p%d", index+1),
		}, nil
	}
	if index >= len(history) {
		return models.Page{}, fmt.Errorf("page %d out of range", index)
	}

	page := models.Page{Records: history[index]}
	if from, ok := f.repeatCursorFrom[req.UserID]; ok && index >= from {
		page.NextCursor = req.Cursor
	} else if index+1 < len(history) {
		page.NextCursor = fmt.Sprintf("p%d", index+1)
	}
	return page, nil
}

func (f *fakePort) calls(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pageCalls[userID]
}
