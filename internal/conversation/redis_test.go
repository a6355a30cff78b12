package conversation

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"schedbot/internal/job"
)

func testRedis(t *testing.T) *Redis {
	t.Helper()
	addr := os.Getenv("SCHEDBOT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SCHEDBOT_TEST_REDIS_ADDR not set")
	}
	s := NewRedis(Config{Addr: addr, TTL: time.Minute, Prefix: "schedbot-test:" + uuid.NewString() + ":"})
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	return s
}

func TestRedisConversationLifecycle(t *testing.T) {
	s := testRedis(t)
	ctx := context.Background()

	if _, err := s.GetConversation(ctx, "o"); !errors.Is(err, job.ErrNotFound) {
		t.Fatalf("empty get err=%v", err)
	}
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	in := job.Conversation{
		OwnerID:       "o",
		Recipient:     "+56912345678",
		Missing:       job.MissingTime,
		OriginalInput: "envía +56912345678 mañana hola",
		CreatedAt:     at,
		UpdatedAt:     at,
	}
	if err := s.SaveConversation(ctx, in); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.GetConversation(ctx, "o")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != in {
		t.Fatalf("got %+v want %+v", got, in)
	}
	ttl, err := s.rdb.TTL(ctx, s.key("o")).Result()
	if err != nil || ttl <= 0 || ttl > time.Minute {
		t.Fatalf("ttl=%s err=%v", ttl, err)
	}
	if err := s.DeleteConversation(ctx, "o"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetConversation(ctx, "o"); !errors.Is(err, job.ErrNotFound) {
		t.Fatalf("after delete err=%v", err)
	}
}

func TestRedisDispatchLock(t *testing.T) {
	s := testRedis(t)
	ctx := context.Background()

	release, ok, err := s.TryLockDispatch(ctx)
	if err != nil || !ok {
		t.Fatalf("first lock ok=%v err=%v", ok, err)
	}
	if _, ok, err := s.TryLockDispatch(ctx); err != nil || ok {
		t.Fatalf("second lock ok=%v err=%v", ok, err)
	}
	release()
	release2, ok, err := s.TryLockDispatch(ctx)
	if err != nil || !ok {
		t.Fatalf("relock ok=%v err=%v", ok, err)
	}
	release2()
}

func TestDispatchLockOutlivesTick(t *testing.T) {
	t.Parallel()
	cases := []struct {
		timeout time.Duration
		want    time.Duration
	}{
		{0, 5 * time.Minute},
		{30 * time.Second, 90 * time.Second},
		{5 * time.Minute, 6 * time.Minute},
		{20 * time.Minute, 21 * time.Minute},
	}
	for _, tc := range cases {
		if got := lockTTLFor(tc.timeout); got != tc.want || got <= tc.timeout {
			t.Fatalf("lockTTLFor(%v)=%v want %v", tc.timeout, got, tc.want)
		}
	}

	s := newRedis(nil, Config{DispatchTimeout: 10 * time.Minute})
	if got := time.Duration(s.lockTTL.Load()); got != 11*time.Minute {
		t.Fatalf("lock ttl=%v", got)
	}
	s.SetDispatchTimeout(time.Minute)
	if got := time.Duration(s.lockTTL.Load()); got != 2*time.Minute {
		t.Fatalf("lock ttl after reload=%v", got)
	}
}
