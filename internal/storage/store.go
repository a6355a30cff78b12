package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"schedbot/internal/job"
	"schedbot/pkg/logx"
)

// Store is the full persistence API. Consumers depend on the narrower
// interfaces declared next to them.
type Store interface {
	CountPending(ctx context.Context, ownerID string) (int, error)
	// Create inserts a PENDING job, refusing with *job.LimitError when the
	// owner already holds MaxPending. The check and the insert are atomic.
	Create(ctx context.Context, in job.NewJob) (job.Job, error)
	// ListDue returns PENDING jobs with ScheduledAt <= now, oldest first,
	// at most min(limit, job.MaxBatchSize).
	ListDue(ctx context.Context, now time.Time, limit int) ([]job.Job, error)
	// UpdateStatus moves a job along the status table. Unknown ids return
	// job.ErrNotFound; disallowed moves return job.ErrInvalidTransition.
	UpdateStatus(ctx context.Context, id string, to job.Status, d job.StatusDetail) (job.Job, error)
	Get(ctx context.Context, id string) (job.Job, error)
	// ListPending pages an owner's PENDING jobs ordered by ScheduledAt.
	ListPending(ctx context.Context, ownerID string, offset, limit int) ([]job.Job, error)

	GetViewStats(ctx context.Context, ownerID string) (job.ViewStats, error)
	RecordView(ctx context.Context, ownerID string, offset int, at time.Time) (job.ViewStats, error)

	GetConversation(ctx context.Context, ownerID string) (job.Conversation, error)
	SaveConversation(ctx context.Context, c job.Conversation) error
	DeleteConversation(ctx context.Context, ownerID string) error

	Close() error
}

// DispatchLocker is implemented by engines shared between processes.
// TryLockDispatch returns ok=false when another process holds the lock.
type DispatchLocker interface {
	TryLockDispatch(ctx context.Context) (release func(), ok bool, err error)
}

type Config struct {
	Driver      string
	Path        string // sqlite
	DSN         string // postgres
	BusyTimeout time.Duration
	MaxPending  int
	// Now overrides the clock used for created/updated timestamps.
	Now func() time.Time
}

func (c Config) maxPending() int {
	if c.MaxPending > 0 {
		return c.MaxPending
	}
	return job.MaxPending
}

func (c Config) clock() func() time.Time {
	if c.Now != nil {
		return c.Now
	}
	return time.Now
}

// Open initializes the configured engine. An empty driver means "memory".
func Open(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	log = log.With(logx.Component("storage"), logx.String("driver", driver))

	switch driver {
	case "", "memory":
		return NewMemory(cfg), nil
	case "sqlite", "sqlite3":
		return openSQLite(ctx, cfg, log)
	case "postgres", "postgresql", "pg":
		return openPostgres(ctx, cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

func batchLimit(limit int) int {
	if limit <= 0 || limit > job.MaxBatchSize {
		return job.MaxBatchSize
	}
	return limit
}
