package ingest

import (
	"time"
)

const (
	StatusRunning   = "RUNNING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// Run is one warm-up pass over the configured subjects.
type Run struct {
	ID            string     `json:"id"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	Status        string     `json:"status"`
	Subjects      []string   `json:"subjects"`
	WorksSeen     int        `json:"works_seen"`
	BooksCreated  int        `json:"books_created"`
	BooksExisting int        `json:"books_existing"`
	BooksFailed   int        `json:"books_failed"`
	Error         string     `json:"error,omitempty"`
}
