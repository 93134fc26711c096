package scraper

import (
	"sort"
	"time"

	"igharvest/pkg/models"
)

// Summary counts outcomes by status
type Summary struct {
	Total          int `json:"total"`
	Success        int `json:"success"`
	PartialSuccess int `json:"partial_success"`
	Failed         int `json:"failed"`
	Records        int `json:"records"`
}

// Report maps each input identifier to its outcome, per namespace
type Report struct {
	RunID      string                        `json:"run_id"`
	StartedAt  time.Time                     `json:"started_at"`
	FinishedAt time.Time                     `json:"finished_at"`
	Shortcodes map[string]models.TaskOutcome `json:"shortcodes"`
	Users      map[string]models.TaskOutcome `json:"users"`
	Summary    Summary                       `json:"summary"`
}

func newReport(runID string, startedAt, finishedAt time.Time) *Report {
	return &Report{
		RunID:      runID,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Shortcodes: make(map[string]models.TaskOutcome),
		Users:      make(map[string]models.TaskOutcome),
	}
}

func (r *Report) put(outcome models.TaskOutcome) {
	switch outcome.Task.Kind {
	case models.KindShortcode:
		r.Shortcodes[outcome.Task.ID] = outcome
	case models.KindUser:
		r.Users[outcome.Task.ID] = outcome
	}
}

// Outcome looks up the outcome of a task
func (r *Report) Outcome(task models.FetchTask) (models.TaskOutcome, bool) {
	var (
		o  models.TaskOutcome
		ok bool
	)
	switch task.Kind {
	case models.KindShortcode:
		o, ok = r.Shortcodes[task.ID]
	case models.KindUser:
		o, ok = r.Users[task.ID]
	}
	return o, ok
}

// Summarize recomputes the summary counters from the outcome maps
func (r *Report) Summarize() {
	var s Summary
	count := func(outcomes map[string]models.TaskOutcome) {
		for _, o := range outcomes {
			s.Total++
			s.Records += len(o.Records)
			switch o.Status {
			case models.StatusSuccess:
				s.Success++
			case models.StatusPartialSuccess:
				s.PartialSuccess++
			default:
				s.Failed++
			}
		}
	}
	count(r.Shortcodes)
	count(r.Users)
	r.Summary = s
}

// Succeeded returns the identifiers of one kind whose outcome was a full
// success, sorted
func (r *Report) Succeeded(kind models.TaskKind) []string {
	source := r.Shortcodes
	if kind == models.KindUser {
		source = r.Users
	}

	var ids []string
	for id, o := range source {
		if o.Status == models.StatusSuccess {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Merge carries successful outcomes of a previous run into r for every
// identifier r did not process itself
func (r *Report) Merge(previous *Report) {
	if previous == nil {
		return
	}
	carry := func(dst, src map[string]models.TaskOutcome) {
		for id, o := range src {
			if o.Status != models.StatusSuccess {
				continue
			}
			if _, exists := dst[id]; !exists {
				dst[id] = o
			}
		}
	}
	carry(r.Shortcodes, previous.Shortcodes)
	carry(r.Users, previous.Users)
	r.Summarize()
}
