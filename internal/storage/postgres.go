package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "github.com/lib/pq"

	"schedbot/pkg/logx"
)

// dispatchLockKey identifies the cluster-wide dispatch tick lock.
const dispatchLockKey int64 = 0x5C4ED

type postgresStore struct {
	*sqlStore
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	st := &postgresStore{sqlStore: &sqlStore{
		db: db,
		d: dialect{
			name:     "postgres",
			numbered: true,
			lockOwner: func(ctx context.Context, tx *sql.Tx, owner string) error {
				_, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, owner)
				return err
			},
		},
		log:        log,
		maxPending: cfg.maxPending(),
		now:        cfg.clock(),
	}}
	if err := st.migrate(ctx, "migrations/postgres.sql"); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("postgres store ready")
	return st, nil
}

// TryLockDispatch takes a session advisory lock on a dedicated connection.
// The lock lives until release closes that connection.
func (s *postgresStore) TryLockDispatch(ctx context.Context) (func(), bool, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, false, err
	}
	var ok bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, dispatchLockKey).Scan(&ok); err != nil {
		_ = conn.Close()
		return nil, false, err
	}
	if !ok {
		_ = conn.Close()
		return nil, false, nil
	}
	release := func() {
		_, err := conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, dispatchLockKey)
		if err != nil {
			s.log.Warn("dispatch unlock failed", logx.Err(err))
		}
		_ = conn.Close()
	}
	return release, true, nil
}
