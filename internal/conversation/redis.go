// Package conversation keeps pending follow-up state in Redis so it expires
// on its own and is shared between bot processes.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	r "github.com/redis/go-redis/v9"

	"schedbot/internal/job"
)

type Config struct {
	Addr     string
	Password string
	DB       int
	// TTL is the lifetime of a saved conversation; every save renews it.
	TTL time.Duration
	// Prefix namespaces keys; defaults to "schedbot:".
	Prefix string
	// DispatchTimeout is the longest a tick may hold the dispatch lock.
	DispatchTimeout time.Duration
}

type Redis struct {
	rdb     *r.Client
	ttl     time.Duration
	prefix  string
	lockTTL atomic.Int64
}

func NewRedis(cfg Config) *Redis {
	return newRedis(r.NewClient(&r.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}), cfg)
}

func newRedis(rdb *r.Client, cfg Config) *Redis {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "schedbot:"
	}
	s := &Redis{rdb: rdb, ttl: ttl, prefix: prefix}
	s.SetDispatchTimeout(cfg.DispatchTimeout)
	return s
}

func (s *Redis) Ping(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }

func (s *Redis) Close() error { return s.rdb.Close() }

func (s *Redis) key(owner string) string { return s.prefix + "conv:" + owner }

type record struct {
	Recipient      string `json:"recipient,omitempty"`
	PartialContent string `json:"partial_content,omitempty"`
	Missing        string `json:"missing"`
	OriginalInput  string `json:"original_input"`
	CreatedAt      int64  `json:"created_at"`
	UpdatedAt      int64  `json:"updated_at"`
}

func (s *Redis) GetConversation(ctx context.Context, owner string) (job.Conversation, error) {
	raw, err := s.rdb.Get(ctx, s.key(owner)).Bytes()
	if errors.Is(err, r.Nil) {
		return job.Conversation{}, job.ErrNotFound
	}
	if err != nil {
		return job.Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return job.Conversation{}, fmt.Errorf("decode conversation: %w", err)
	}
	return job.Conversation{
		OwnerID:        owner,
		Recipient:      rec.Recipient,
		PartialContent: rec.PartialContent,
		Missing:        job.MissingField(rec.Missing),
		OriginalInput:  rec.OriginalInput,
		CreatedAt:      time.UnixMilli(rec.CreatedAt).UTC(),
		UpdatedAt:      time.UnixMilli(rec.UpdatedAt).UTC(),
	}, nil
}

func (s *Redis) SaveConversation(ctx context.Context, c job.Conversation) error {
	raw, err := json.Marshal(record{
		Recipient:      c.Recipient,
		PartialContent: c.PartialContent,
		Missing:        string(c.Missing),
		OriginalInput:  c.OriginalInput,
		CreatedAt:      c.CreatedAt.UnixMilli(),
		UpdatedAt:      c.UpdatedAt.UnixMilli(),
	})
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.key(c.OwnerID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}

func (s *Redis) DeleteConversation(ctx context.Context, owner string) error {
	if err := s.rdb.Del(ctx, s.key(owner)).Err(); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

// unlockScript deletes the lock only if it still holds our token.
var unlockScript = r.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

const (
	// defaultLockTTL applies when no dispatch timeout is known.
	defaultLockTTL = 5 * time.Minute
	lockTTLMargin  = time.Minute
)

// lockTTLFor outlives a tick bounded by timeout, so the lock cannot expire
// while the holder is still delivering.
func lockTTLFor(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return defaultLockTTL
	}
	return timeout + lockTTLMargin
}

// SetDispatchTimeout resizes the dispatch lock for ticks bounded by d.
func (s *Redis) SetDispatchTimeout(d time.Duration) {
	s.lockTTL.Store(int64(lockTTLFor(d)))
}

// TryLockDispatch takes a short-lived cross-process lock so only one bot
// instance runs a dispatch tick at a time.
func (s *Redis) TryLockDispatch(ctx context.Context) (func(), bool, error) {
	key := s.prefix + "dispatch.lock"
	token := uuid.NewString()
	ok, err := s.rdb.SetNX(ctx, key, token, time.Duration(s.lockTTL.Load())).Result()
	if err != nil {
		return nil, false, fmt.Errorf("dispatch lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = unlockScript.Run(rctx, s.rdb, []string{key}, token).Err()
	}
	return release, true, nil
}
