package job

import "time"

// MissingField names the piece a partial natural-language request lacks.
type MissingField string

const (
	MissingDate  MissingField = "date"
	MissingTime  MissingField = "time"
	MissingPhone MissingField = "phone"
)

// Conversation is the follow-up state of an incomplete scheduling request.
// An owner has at most one.
type Conversation struct {
	OwnerID        string
	Recipient      string // extracted phone, may be empty
	PartialContent string
	Missing        MissingField
	OriginalInput  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ViewStats records how an owner pages through their pending jobs.
type ViewStats struct {
	OwnerID      string
	TotalViews   int
	LastOffset   int
	LastViewedAt time.Time
}
