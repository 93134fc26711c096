// Package models holds the data shared between the engine, its scheduler and
// the fetch adapters.
package models

import (
	"fmt"
	"time"
)

// TaskKind discriminates the two task variants
type TaskKind string

const (
	KindShortcode TaskKind = "shortcode"
	KindUser      TaskKind = "user"
)

// FetchTask is either a single-post fetch (KindShortcode) or a paginated
// enumeration of one account's posts (KindUser). Tasks are values and are
// never mutated after enumeration.
type FetchTask struct {
	Kind TaskKind `json:"kind"`
	ID   string   `json:"id"`
}

// ShortcodeTask builds a single-post task
func ShortcodeTask(shortcode string) FetchTask {
	return FetchTask{Kind: KindShortcode, ID: shortcode}
}

// UserTask builds a pagination-driving task
func UserTask(userID string) FetchTask {
	return FetchTask{Kind: KindUser, ID: userID}
}

// Key identifies the task across both namespaces
func (t FetchTask) Key() string {
	return fmt.Sprintf("%s:%s", t.Kind, t.ID)
}

func (t FetchTask) String() string {
	return t.Key()
}

// PageRequest asks for one page of a user's posts. An empty Cursor requests
// the first page.
type PageRequest struct {
	UserID    string `json:"user_id"`
	Cursor    string `json:"cursor,omitempty"`
	PageIndex int    `json:"page_index"`
}

// Page is one page of a user's posts. An empty NextCursor means the end of
// the history was reached.
type Page struct {
	Records    []PostRecord `json:"records"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

// HasNext reports whether the provider offered another page
func (p Page) HasNext() bool {
	return p.NextCursor != ""
}

// PostRecord is one fetched post. Payload is whatever the fetch adapter
// produced and is carried through untouched.
type PostRecord struct {
	ID        string      `json:"id"`
	OwnerID   string      `json:"owner_id"`
	Shortcode string      `json:"shortcode"`
	PostedAt  time.Time   `json:"posted_at"`
	Payload   interface{} `json:"payload,omitempty"`
}

// StopReason is why a pagination cursor left the Fetching state
type StopReason string

const (
	StopNone       StopReason = ""
	StopMaxPages   StopReason = "max_pages"
	StopDateCutoff StopReason = "date_cutoff"
	StopExhausted  StopReason = "exhausted"
	StopFailed     StopReason = "failed"
)

// PaginationState is owned by exactly one cursor for the lifetime of a user task
type PaginationState struct {
	PagesFetched  int        `json:"pages_fetched"`
	Cursor        string     `json:"cursor,omitempty"`
	StoppedReason StopReason `json:"stopped_reason,omitempty"`
}

// Stopped reports whether the cursor reached a terminal state
func (s PaginationState) Stopped() bool {
	return s.StoppedReason != StopNone
}

// Status is the terminal status of a task
type Status string

const (
	StatusSuccess        Status = "success"
	StatusPartialSuccess Status = "partial_success"
	StatusFailed         Status = "failed"
)

// TaskOutcome is the result of one FetchTask
type TaskOutcome struct {
	Task         FetchTask    `json:"task"`
	Records      []PostRecord `json:"records"`
	Status       Status       `json:"status"`
	StopReason   StopReason   `json:"stop_reason,omitempty"`
	Attempts     int          `json:"attempts"`
	PagesFetched int          `json:"pages_fetched,omitempty"`
	Err          error        `json:"-"`
	Error        string       `json:"error,omitempty"`
}

// SetError records err on the outcome, keeping the JSON field in sync
func (o *TaskOutcome) SetError(err error) {
	o.Err = err
	if err != nil {
		o.Error = err.Error()
	} else {
		o.Error = ""
	}
}
