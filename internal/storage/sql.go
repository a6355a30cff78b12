package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"schedbot/internal/job"
	"schedbot/pkg/logx"
)

// dialect captures what differs between the SQL engines.
type dialect struct {
	name string
	// numbered placeholders ($1, $2) instead of "?"
	numbered bool
	// lockOwner serializes Create for one owner inside tx.
	lockOwner func(ctx context.Context, tx *sql.Tx, owner string) error
}

// sqlStore implements Store on database/sql. Times are stored as unix
// milliseconds so ordering is numeric on every engine.
type sqlStore struct {
	db         *sql.DB
	d          dialect
	log        logx.Logger
	maxPending int
	now        func() time.Time
}

const jobColumns = `id, owner_id, recipient, recipient_input, content, scheduled_at, datetime_input,
	utc_offset_minutes, status, attempts, last_error, sent_at, created_at, updated_at`

func (s *sqlStore) q(query string) string {
	if !s.d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) migrate(ctx context.Context, file string) error {
	b, err := migrationsFS.ReadFile(file)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, string(b)); err != nil {
		return fmt.Errorf("migrate %s: %w", s.d.name, err)
	}
	return nil
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *sqlStore) countPending(ctx context.Context, q querier, owner string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		s.q(`SELECT COUNT(*) FROM jobs WHERE owner_id = ? AND status = ?`),
		owner, string(job.StatusPending),
	).Scan(&n)
	return n, err
}

func (s *sqlStore) CountPending(ctx context.Context, owner string) (int, error) {
	return s.countPending(ctx, s.db, owner)
}

func (s *sqlStore) Create(ctx context.Context, in job.NewJob) (job.Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return job.Job{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if s.d.lockOwner != nil {
		if err := s.d.lockOwner(ctx, tx, in.OwnerID); err != nil {
			return job.Job{}, fmt.Errorf("lock owner: %w", err)
		}
	}
	n, err := s.countPending(ctx, tx, in.OwnerID)
	if err != nil {
		return job.Job{}, err
	}
	if n >= s.maxPending {
		return job.Job{}, &job.LimitError{Current: n, Max: s.maxPending}
	}

	now := s.now().UTC()
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
	_, err = tx.ExecContext(ctx, s.q(`INSERT INTO jobs(`+jobColumns+`)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`),
		j.ID, j.OwnerID, j.Recipient, j.RecipientInput, j.Content, toMS(j.ScheduledAt), j.DateTimeInput,
		j.UTCOffsetMinutes, string(j.Status), 0, "", nil, toMS(j.CreatedAt), toMS(j.UpdatedAt),
	)
	if err != nil {
		return job.Job{}, err
	}
	if err := tx.Commit(); err != nil {
		return job.Job{}, err
	}
	return j, nil
}

func (s *sqlStore) ListDue(ctx context.Context, now time.Time, limit int) ([]job.Job, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+jobColumns+` FROM jobs
		WHERE status = ? AND scheduled_at <= ?
		ORDER BY scheduled_at ASC, created_at ASC, id ASC
		LIMIT ?`),
		string(job.StatusPending), toMS(now), batchLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	return scanJobs(rows)
}

func (s *sqlStore) ListPending(ctx context.Context, owner string, offset, limit int) ([]job.Job, error) {
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + jobColumns + ` FROM jobs
		WHERE owner_id = ? AND status = ?
		ORDER BY scheduled_at ASC, created_at ASC, id ASC`
	args := []any{owner, string(job.StatusPending)}
	switch {
	case limit > 0:
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	case s.d.numbered:
		query += ` OFFSET ?`
		args = append(args, offset)
	default:
		// sqlite only accepts OFFSET after a LIMIT clause.
		query += ` LIMIT -1 OFFSET ?`
		args = append(args, offset)
	}
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	return scanJobs(rows)
}

func (s *sqlStore) Get(ctx context.Context, id string) (job.Job, error) {
	return s.get(ctx, s.db, id)
}

func (s *sqlStore) get(ctx context.Context, q querier, id string) (job.Job, error) {
	row := q.QueryRowContext(ctx, s.q(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`), id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return job.Job{}, job.ErrNotFound
	}
	return j, err
}

// UpdateStatus compares and sets: the UPDATE only applies while the row
// still holds the status read inside the same transaction.
func (s *sqlStore) UpdateStatus(ctx context.Context, id string, to job.Status, d job.StatusDetail) (job.Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return job.Job{}, err
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := s.get(ctx, tx, id)
	if err != nil {
		return job.Job{}, err
	}
	if !job.IsValidTransition(cur.Status, to) {
		return job.Job{}, fmt.Errorf("%w: %s -> %s", job.ErrInvalidTransition, cur.Status, to)
	}

	at := d.At
	if at.IsZero() {
		at = s.now()
	}
	var sentAt any
	if to == job.StatusSent {
		sentAt = toMS(at)
	}
	res, err := tx.ExecContext(ctx, s.q(`UPDATE jobs
		SET status = ?, attempts = ?, last_error = ?, sent_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`),
		string(to), d.Attempts, d.LastError, sentAt, toMS(at), id, string(cur.Status),
	)
	if err != nil {
		return job.Job{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return job.Job{}, fmt.Errorf("%w: %s changed concurrently", job.ErrInvalidTransition, id)
	}
	updated, err := s.get(ctx, tx, id)
	if err != nil {
		return job.Job{}, err
	}
	if err := tx.Commit(); err != nil {
		return job.Job{}, err
	}
	return updated, nil
}

func (s *sqlStore) GetViewStats(ctx context.Context, owner string) (job.ViewStats, error) {
	var st job.ViewStats
	var at int64
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT owner_id, total_views, last_offset, last_viewed_at FROM view_stats WHERE owner_id = ?`), owner,
	).Scan(&st.OwnerID, &st.TotalViews, &st.LastOffset, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return job.ViewStats{}, job.ErrNotFound
	}
	if err != nil {
		return job.ViewStats{}, err
	}
	st.LastViewedAt = fromMS(at)
	return st, nil
}

func (s *sqlStore) RecordView(ctx context.Context, owner string, offset int, at time.Time) (job.ViewStats, error) {
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO view_stats(owner_id, total_views, last_offset, last_viewed_at)
		VALUES(?, 1, ?, ?)
		ON CONFLICT(owner_id) DO UPDATE SET
			total_views = view_stats.total_views + 1,
			last_offset = excluded.last_offset,
			last_viewed_at = excluded.last_viewed_at`),
		owner, offset, toMS(at),
	)
	if err != nil {
		return job.ViewStats{}, err
	}
	return s.GetViewStats(ctx, owner)
}

func (s *sqlStore) GetConversation(ctx context.Context, owner string) (job.Conversation, error) {
	var c job.Conversation
	var missing string
	var created, updated int64
	err := s.db.QueryRowContext(ctx, s.q(`SELECT owner_id, recipient, partial_content, missing, original_input, created_at, updated_at
		FROM conversations WHERE owner_id = ?`), owner,
	).Scan(&c.OwnerID, &c.Recipient, &c.PartialContent, &missing, &c.OriginalInput, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return job.Conversation{}, job.ErrNotFound
	}
	if err != nil {
		return job.Conversation{}, err
	}
	c.Missing = job.MissingField(missing)
	c.CreatedAt, c.UpdatedAt = fromMS(created), fromMS(updated)
	return c, nil
}

func (s *sqlStore) SaveConversation(ctx context.Context, c job.Conversation) error {
	now := s.now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO conversations(owner_id, recipient, partial_content, missing, original_input, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?)
		ON CONFLICT(owner_id) DO UPDATE SET
			recipient = excluded.recipient,
			partial_content = excluded.partial_content,
			missing = excluded.missing,
			original_input = excluded.original_input,
			updated_at = excluded.updated_at`),
		c.OwnerID, c.Recipient, c.PartialContent, string(c.Missing), c.OriginalInput, toMS(c.CreatedAt), toMS(c.UpdatedAt),
	)
	return err
}

func (s *sqlStore) DeleteConversation(ctx context.Context, owner string) error {
	_, err := s.db.ExecContext(ctx, s.q(`DELETE FROM conversations WHERE owner_id = ?`), owner)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (job.Job, error) {
	var (
		j                           job.Job
		status                      string
		scheduled, created, updated int64
		sent                        sql.NullInt64
	)
	err := r.Scan(&j.ID, &j.OwnerID, &j.Recipient, &j.RecipientInput, &j.Content, &scheduled, &j.DateTimeInput,
		&j.UTCOffsetMinutes, &status, &j.Attempts, &j.LastError, &sent, &created, &updated)
	if err != nil {
		return job.Job{}, err
	}
	j.Status = job.Status(status)
	j.ScheduledAt = fromMS(scheduled)
	j.CreatedAt = fromMS(created)
	j.UpdatedAt = fromMS(updated)
	if sent.Valid {
		t := fromMS(sent.Int64)
		j.SentAt = &t
	}
	return j, nil
}

func scanJobs(rows *sql.Rows) ([]job.Job, error) {
	defer rows.Close()
	out := []job.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func toMS(t time.Time) int64    { return t.UTC().UnixMilli() }
func fromMS(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
