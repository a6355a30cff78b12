package view

import (
	"context"

	"schedbot/internal/job"
)

// DefaultPageSize is the number of jobs per page.
const DefaultPageSize = 10

// Store is the read side of the scheduling store.
type Store interface {
	CountPending(ctx context.Context, ownerID string) (int, error)
	ListPending(ctx context.Context, ownerID string, offset, limit int) ([]job.Job, error)
}

// Page is one slice of an owner's pending jobs.
type Page struct {
	Items   []job.Job
	Total   int
	Offset  int
	HasMore bool
}

// Remaining is the number of pending jobs after this page.
func (p Page) Remaining() int {
	if r := p.Total - (p.Offset + len(p.Items)); r > 0 {
		return r
	}
	return 0
}

type Paginator struct {
	store Store
}

func NewPaginator(store Store) *Paginator { return &Paginator{store: store} }

// Page returns PENDING jobs ordered by ScheduledAt ascending. It only reads, so
// repeated calls with the same offset return the same page until the set of
// pending jobs changes.
func (p *Paginator) Page(ctx context.Context, owner string, offset, size int) (Page, error) {
	if offset < 0 {
		offset = 0
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	total, err := p.store.CountPending(ctx, owner)
	if err != nil {
		return Page{}, err
	}
	items := []job.Job{}
	if offset < total {
		items, err = p.store.ListPending(ctx, owner, offset, size)
		if err != nil {
			return Page{}, err
		}
	}
	return Page{
		Items:   items,
		Total:   total,
		Offset:  offset,
		HasMore: offset+len(items) < total,
	}, nil
}
