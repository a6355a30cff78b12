// Package job defines the records shared by the scheduling handler, the stores,
// the view paginator and the dispatch worker.
package job

import (
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of a scheduled job.
type Status string

const (
	StatusPending      Status = "PENDING"
	StatusSent         Status = "SENT"
	StatusFailedToSend Status = "FAILED_TO_SEND"
	StatusCancelled    Status = "CANCELLED"
)

const (
	// MaxPending is the number of PENDING jobs a single owner may hold.
	MaxPending = 10
	// MaxBatchSize caps the jobs fetched by one dispatch tick.
	MaxBatchSize = 50
	// MaxContentLength is the longest accepted message body, in characters.
	MaxContentLength = 1000
)

// Job is one scheduled outbound message.
type Job struct {
	ID               string
	OwnerID          string
	Recipient        string // normalized, e.g. +56912345678
	RecipientInput   string // as typed
	Content          string
	ScheduledAt      time.Time // UTC
	DateTimeInput    string
	UTCOffsetMinutes int
	Status           Status
	CreatedAt        time.Time
	UpdatedAt        time.Time

	Attempts  int
	LastError string
	SentAt    *time.Time
}

// NewJob is the input for Store.Create. The store assigns the id, the
// timestamps and the PENDING status.
type NewJob struct {
	OwnerID          string
	Recipient        string
	RecipientInput   string
	Content          string
	ScheduledAt      time.Time
	DateTimeInput    string
	UTCOffsetMinutes int
}

// StatusDetail carries delivery bookkeeping recorded with a transition.
type StatusDetail struct {
	Attempts  int
	LastError string
	At        time.Time
}

var (
	ErrNotFound          = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// LimitError reports that an owner already holds the maximum number of
// pending jobs.
type LimitError struct {
	Current int
	Max     int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("pending limit reached: %d/%d", e.Current, e.Max)
}

// IsLimit reports whether err is (or wraps) a LimitError.
func IsLimit(err error) (*LimitError, bool) {
	var le *LimitError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}

var transitions = map[Status][]Status{
	StatusPending:      {StatusSent, StatusFailedToSend, StatusCancelled},
	StatusSent:         {},
	StatusFailedToSend: {},
	StatusCancelled:    {},
}

// IsValidTransition reports whether a job may move from one status to another.
// Only PENDING jobs move and every other status is terminal.
func IsValidTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether s accepts no further transitions.
func (s Status) Terminal() bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}
