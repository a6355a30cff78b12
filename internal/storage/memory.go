package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"schedbot/internal/job"
)

// Memory is a process-local Store. A single mutex serializes every
// operation, which makes Create's limit check trivially atomic.
type Memory struct {
	mu         sync.Mutex
	jobs       map[string]job.Job
	convs      map[string]job.Conversation
	stats      map[string]job.ViewStats
	maxPending int
	now        func() time.Time
}

func NewMemory(cfg Config) *Memory {
	return &Memory{
		jobs:       map[string]job.Job{},
		convs:      map[string]job.Conversation{},
		stats:      map[string]job.ViewStats{},
		maxPending: cfg.maxPending(),
		now:        cfg.clock(),
	}
}

func (m *Memory) countPendingLocked(owner string) int {
	n := 0
	for _, j := range m.jobs {
		if j.OwnerID == owner && j.Status == job.StatusPending {
			n++
		}
	}
	return n
}

func (m *Memory) CountPending(_ context.Context, owner string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countPendingLocked(owner), nil
}

func (m *Memory) Create(_ context.Context, in job.NewJob) (job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := m.countPendingLocked(in.OwnerID); n >= m.maxPending {
		return job.Job{}, &job.LimitError{Current: n, Max: m.maxPending}
	}
	now := m.now().UTC()
	j := job.Job{
		ID:               uuid.NewString(),
		OwnerID:          in.OwnerID,
		Recipient:        in.Recipient,
		RecipientInput:   in.RecipientInput,
		Content:          in.Content,
		ScheduledAt:      in.ScheduledAt.UTC(),
		DateTimeInput:    in.DateTimeInput,
		UTCOffsetMinutes: in.UTCOffsetMinutes,
		Status:           job.StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	m.jobs[j.ID] = j
	return j, nil
}

// sortedPending returns PENDING jobs matching keep, ordered by ScheduledAt
// then CreatedAt then ID.
func (m *Memory) sortedPending(keep func(job.Job) bool) []job.Job {
	out := make([]job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if j.Status == job.StatusPending && keep(j) {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		x, y := out[a], out[b]
		if !x.ScheduledAt.Equal(y.ScheduledAt) {
			return x.ScheduledAt.Before(y.ScheduledAt)
		}
		if !x.CreatedAt.Equal(y.CreatedAt) {
			return x.CreatedAt.Before(y.CreatedAt)
		}
		return x.ID < y.ID
	})
	return out
}

func (m *Memory) ListDue(_ context.Context, now time.Time, limit int) ([]job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	due := m.sortedPending(func(j job.Job) bool { return !j.ScheduledAt.After(now) })
	if n := batchLimit(limit); len(due) > n {
		due = due[:n]
	}
	return due, nil
}

func (m *Memory) UpdateStatus(_ context.Context, id string, to job.Status, d job.StatusDetail) (job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return job.Job{}, job.ErrNotFound
	}
	if !job.IsValidTransition(j.Status, to) {
		return job.Job{}, fmt.Errorf("%w: %s -> %s", job.ErrInvalidTransition, j.Status, to)
	}
	at := d.At
	if at.IsZero() {
		at = m.now()
	}
	at = at.UTC()
	j.Status = to
	j.Attempts = d.Attempts
	j.LastError = d.LastError
	j.UpdatedAt = at
	if to == job.StatusSent {
		j.SentAt = &at
	}
	m.jobs[id] = j
	return j, nil
}

func (m *Memory) Get(_ context.Context, id string) (job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return job.Job{}, job.ErrNotFound
	}
	return j, nil
}

func (m *Memory) ListPending(_ context.Context, owner string, offset, limit int) ([]job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sortedPending(func(j job.Job) bool { return j.OwnerID == owner })
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return []job.Job{}, nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return append([]job.Job(nil), all[offset:end]...), nil
}

func (m *Memory) GetViewStats(_ context.Context, owner string) (job.ViewStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stats[owner]
	if !ok {
		return job.ViewStats{}, job.ErrNotFound
	}
	return st, nil
}

func (m *Memory) RecordView(_ context.Context, owner string, offset int, at time.Time) (job.ViewStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.stats[owner]
	st.OwnerID = owner
	st.TotalViews++
	st.LastOffset = offset
	st.LastViewedAt = at.UTC()
	m.stats[owner] = st
	return st, nil
}

func (m *Memory) GetConversation(_ context.Context, owner string) (job.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[owner]
	if !ok {
		return job.Conversation{}, job.ErrNotFound
	}
	return c, nil
}

func (m *Memory) SaveConversation(_ context.Context, c job.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}
	m.convs[c.OwnerID] = c
	return nil
}

func (m *Memory) DeleteConversation(_ context.Context, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.convs, owner)
	return nil
}

func (m *Memory) Close() error { return nil }
