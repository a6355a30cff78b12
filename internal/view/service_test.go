package view

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"schedbot/internal/job"
	"schedbot/internal/storage"
	"schedbot/pkg/logx"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, st *storage.Memory, owner string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := st.Create(context.Background(), job.NewJob{
			OwnerID:          owner,
			Recipient:        "+56912345678",
			Content:          fmt.Sprintf("msg %02d", i),
			ScheduledAt:      now.Add(time.Duration(n-i) * time.Hour),
			UTCOffsetMinutes: -240,
		})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func TestPaginatorPage(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory(storage.Config{MaxPending: 100})
	seed(t, st, "o", 23)
	p := NewPaginator(st)
	ctx := context.Background()

	cases := []struct {
		offset, items int
		more          bool
	}{
		{0, 10, true},
		{10, 10, true},
		{20, 3, false},
		{23, 0, false},
		{40, 0, false},
	}
	for _, tc := range cases {
		pg, err := p.Page(ctx, "o", tc.offset, 10)
		if err != nil {
			t.Fatalf("Page(%d): %v", tc.offset, err)
		}
		if len(pg.Items) != tc.items || pg.HasMore != tc.more || pg.Total != 23 {
			t.Fatalf("Page(%d)=items %d more %v total %d", tc.offset, len(pg.Items), pg.HasMore, pg.Total)
		}
		if pg.HasMore != (tc.offset+len(pg.Items) < pg.Total) {
			t.Fatalf("HasMore inconsistent at %d", tc.offset)
		}
		for i := 1; i < len(pg.Items); i++ {
			if pg.Items[i].ScheduledAt.Before(pg.Items[i-1].ScheduledAt) {
				t.Fatalf("page %d not ascending", tc.offset)
			}
		}
	}

	a, _ := p.Page(ctx, "o", 10, 10)
	b, _ := p.Page(ctx, "o", 10, 10)
	for i := range a.Items {
		if a.Items[i].ID != b.Items[i].ID {
			t.Fatalf("repeated page differs at %d", i)
		}
	}
}

func TestServiceListThenMore(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory(storage.Config{MaxPending: 100})
	seed(t, st, "o", 12)
	s := NewService(st, st, Options{Now: func() time.Time { return now }}, logx.Nop())
	ctx := context.Background()

	r := s.Handle(ctx, "o", "ver mensajes")
	if r.Kind != ResultShow || r.More || len(r.Page.Items) != 10 || !r.Page.HasMore {
		t.Fatalf("list=%+v", r)
	}
	text := Reply(r)
	if !strings.Contains(text, "Total de mensajes programados: 12") || !strings.Contains(text, "Hay 2 mensajes más") {
		t.Fatalf("reply=%q", text)
	}

	r = s.Handle(ctx, "o", "ver más")
	if r.Kind != ResultShow || !r.More || len(r.Page.Items) != 2 || r.Page.Offset != 10 || r.Page.HasMore {
		t.Fatalf("more=%+v", r)
	}
	if text := Reply(r); !strings.HasPrefix(text, "📬 Aquí tienes más mensajes:") || !strings.Contains(text, "11. 📅") {
		t.Fatalf("reply=%q", text)
	}

	r = s.Handle(ctx, "o", "ver más")
	if r.Kind != ResultNoMore {
		t.Fatalf("exhausted more=%+v", r)
	}

	st2, _ := st.GetViewStats(ctx, "o")
	if st2.TotalViews != 3 || st2.LastOffset != 20 {
		t.Fatalf("stats=%+v", st2)
	}

	if r = s.Handle(ctx, "o", "mis mensajes"); r.Page.Offset != 0 {
		t.Fatalf("list should restart at 0, got %d", r.Page.Offset)
	}
}

func TestServiceNoMessages(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory(storage.Config{})
	s := NewService(st, st, Options{}, logx.Nop())
	for _, text := range []string{"ver mensajes", "ver más"} {
		if r := s.Handle(context.Background(), "empty", text); r.Kind != ResultNoMessages {
			t.Fatalf("%q: kind=%s", text, r.Kind)
		}
	}
}

func TestServiceInvalid(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory(storage.Config{})
	s := NewService(st, st, Options{}, logx.Nop())
	r := s.Handle(context.Background(), "o", "delete from jobs")
	if r.Kind != ResultInvalid || Reply(r) != msgInvalid {
		t.Fatalf("result=%+v", r)
	}
}

type brokenStats struct{}

func (brokenStats) GetViewStats(context.Context, string) (job.ViewStats, error) {
	return job.ViewStats{}, errors.New("stats offline")
}
func (brokenStats) RecordView(context.Context, string, int, time.Time) (job.ViewStats, error) {
	return job.ViewStats{}, errors.New("stats offline")
}

func TestServiceStatsFailureDoesNotFailRead(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory(storage.Config{})
	seed(t, st, "o", 3)
	s := NewService(st, brokenStats{}, Options{}, logx.Nop())
	for _, text := range []string{"ver mensajes", "ver más"} {
		r := s.Handle(context.Background(), "o", text)
		if r.Kind != ResultShow || len(r.Page.Items) != 3 {
			t.Fatalf("%q: result=%+v", text, r)
		}
	}
}

type brokenStore struct{}

func (brokenStore) CountPending(context.Context, string) (int, error) {
	return 0, errors.New("db down")
}
func (brokenStore) ListPending(context.Context, string, int, int) ([]job.Job, error) {
	return nil, errors.New("db down")
}

func TestServiceStoreFailure(t *testing.T) {
	t.Parallel()
	s := NewService(brokenStore{}, nil, Options{}, logx.Nop())
	r := s.Handle(context.Background(), "o", "ver mensajes")
	if r.Kind != ResultError || Reply(r) != msgFetchError {
		t.Fatalf("result=%+v", r)
	}
}

func TestServicePageRecordsOffset(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory(storage.Config{MaxPending: 100})
	seed(t, st, "o", 15)
	s := NewService(st, st, Options{Now: func() time.Time { return now }}, logx.Nop())
	ctx := context.Background()

	pg, err := s.Page(ctx, "o", 5, 0)
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if len(pg.Items) != 10 || pg.Offset != 5 || pg.Total != 15 {
		t.Fatalf("page=%+v", pg)
	}
	vs, err := st.GetViewStats(ctx, "o")
	if err != nil || vs.LastOffset != 5 || vs.TotalViews != 1 {
		t.Fatalf("stats=%+v err=%v", vs, err)
	}

	// "more" continues after the page read through Page.
	r := s.Handle(ctx, "o", "ver más")
	if r.Kind != ResultNoMore || r.Page.Offset != 15 {
		t.Fatalf("more after Page: %+v", r)
	}
}

func TestServicePageStoreFailure(t *testing.T) {
	t.Parallel()
	s := NewService(brokenStore{}, brokenStats{}, Options{}, logx.Nop())
	if _, err := s.Page(context.Background(), "o", 0, 10); err == nil {
		t.Fatalf("expected store error")
	}
}
