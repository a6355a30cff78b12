package schedule

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"schedbot/internal/eventbus"
	"schedbot/internal/job"
	"schedbot/internal/storage"
	"schedbot/pkg/logx"
)

var newYear = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestHandler(t *testing.T) (*Handler, *storage.Memory) {
	t.Helper()
	st := storage.NewMemory(storage.Config{Now: func() time.Time { return newYear }})
	h := NewHandler(st, Options{
		UTCOffsetMinutes: -240,
		Now:              func() time.Time { return newYear },
	}, logx.Nop())
	return h, st
}

func TestHandleCreatesJob(t *testing.T) {
	t.Parallel()
	h, st := newTestHandler(t)
	ctx := context.Background()

	o := h.Handle(ctx, Request{OwnerID: "owner", Text: "/schedule +1234567890 $2024-12-25 10:30$ $Feliz Navidad$"})
	if !o.OK() || o.Stage != StageCreated || o.Job == nil {
		t.Fatalf("outcome=%+v", o)
	}
	want := time.Date(2024, 12, 25, 14, 30, 0, 0, time.UTC)
	j := o.Job
	if j.Recipient != "+1234567890" || j.Content != "Feliz Navidad" || !j.ScheduledAt.Equal(want) || j.Status != job.StatusPending {
		t.Fatalf("job=%+v", j)
	}
	if j.DateTimeInput != "2024-12-25 10:30" || j.UTCOffsetMinutes != -240 {
		t.Fatalf("job metadata=%+v", j)
	}
	n, _ := st.CountPending(ctx, "owner")
	if n != 1 {
		t.Fatalf("pending=%d", n)
	}
	reply := Catalog{}.Reply(o)
	if !strings.Contains(reply, "25 de diciembre de 2024, 10:30") || !strings.Contains(reply, DefaultZoneLabel) {
		t.Fatalf("reply=%q", reply)
	}
}

func TestHandleFailuresShortCircuit(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in    string
		kind  OutcomeKind
		stage Stage
	}{
		{"/schedule $18:00$ $msg$", OutcomeMissingRecipient, StageParse},
		{"/schedule +1234567 $$ $msg$", OutcomeMissingDateTime, StageParse},
		{"/schedule +1234567 $18:00$ $$", OutcomeMissingMessage, StageParse},
		{"/schedule +1234567 18:00", OutcomeInvalidFormat, StageParse},
		{"/schedule +123 $18:00$ $msg$", OutcomeInvalidPhone, StageRecipient},
		{"/schedule Mamá $18:00$ $msg$", OutcomeContactNotFound, StageRecipient},
		{"/schedule +1234567 $someday$ $msg$", OutcomeInvalidDateTime, StageDateTime},
		{"/schedule +1234567 $mañana 25:00$ $msg$", OutcomeInvalidHour, StageDateTime},
		{"/schedule +1234567 $2023-12-31 10:00$ $msg$", OutcomePastDateTime, StageDateTime},
		{"/schedule +1234567 $mañana 10:00$ $   $", OutcomeInvalidMessage, StageContent},
		{"/schedule +1234567 $mañana 10:00$ $" + strings.Repeat("x", 1001) + "$", OutcomeInvalidMessage, StageContent},
	}
	for _, tc := range cases {
		h, st := newTestHandler(t)
		o := h.Handle(context.Background(), Request{OwnerID: "owner", Text: tc.in})
		if o.Kind != tc.kind || o.Stage != tc.stage {
			t.Fatalf("Handle(%q)=%s/%s want %s/%s", tc.in, o.Kind, o.Stage, tc.kind, tc.stage)
		}
		if n, _ := st.CountPending(context.Background(), "owner"); n != 0 {
			t.Fatalf("Handle(%q) created a job", tc.in)
		}
		if (Catalog{}).Reply(o) == "" {
			t.Fatalf("empty reply for %s", o.Kind)
		}
	}
}

func TestHandleLimitReached(t *testing.T) {
	t.Parallel()
	h, st := newTestHandler(t)
	ctx := context.Background()
	for i := 0; i < job.MaxPending; i++ {
		if o := h.Handle(ctx, Request{OwnerID: "owner", Text: "/schedule +1234567 $mañana 10:00$ $m$"}); !o.OK() {
			t.Fatalf("create %d: %+v", i, o)
		}
	}
	o := h.Handle(ctx, Request{OwnerID: "owner", Text: "/schedule +1234567 $mañana 10:00$ $m$"})
	if o.Kind != OutcomeLimitReached || o.Current != job.MaxPending || o.Max != job.MaxPending {
		t.Fatalf("outcome=%+v", o)
	}
	if n, _ := st.CountPending(ctx, "owner"); n != job.MaxPending {
		t.Fatalf("pending=%d", n)
	}
	if reply := (Catalog{}).Reply(o); !strings.Contains(reply, "10/10") {
		t.Fatalf("reply=%q", reply)
	}
}

type failingStore struct{ err error }

func (f failingStore) CountPending(context.Context, string) (int, error) { return 0, nil }
func (f failingStore) Create(context.Context, job.NewJob) (job.Job, error) {
	return job.Job{}, f.err
}

func TestHandleInternalErrorCarriesDetail(t *testing.T) {
	t.Parallel()
	h := NewHandler(failingStore{err: errors.New("disk full")}, Options{Now: func() time.Time { return newYear }}, logx.Nop())
	o := h.Handle(context.Background(), Request{OwnerID: "o", Text: "/schedule +1234567 $mañana 10:00$ $m$"})
	if o.Kind != OutcomeInternal {
		t.Fatalf("kind=%s", o.Kind)
	}
	if reply := (Catalog{}).Reply(o); !strings.Contains(reply, "Detalle: disk full") {
		t.Fatalf("reply=%q", reply)
	}
}

func TestHandleRaceLimitFromStore(t *testing.T) {
	t.Parallel()
	h := NewHandler(failingStore{err: &job.LimitError{Current: 10, Max: 10}}, Options{Now: func() time.Time { return newYear }}, logx.Nop())
	o := h.Handle(context.Background(), Request{OwnerID: "o", Text: "/schedule +1234567 $mañana 10:00$ $m$"})
	if o.Kind != OutcomeLimitReached || o.Current != 10 {
		t.Fatalf("outcome=%+v", o)
	}
}

func TestHandlePublishesJobCreated(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4, eventbus.JobCreated)
	defer unsub()
	st := storage.NewMemory(storage.Config{})
	h := NewHandler(st, Options{Bus: bus, Now: func() time.Time { return newYear }}, logx.Nop())

	if o := h.Handle(context.Background(), Request{OwnerID: "o", Text: "/schedule +1234567 $mañana 10:00$ $m$"}); !o.OK() {
		t.Fatalf("outcome=%+v", o)
	}
	select {
	case e := <-events:
		if _, ok := e.Data.(job.Job); !ok {
			t.Fatalf("event data %T", e.Data)
		}
	default:
		t.Fatalf("no job.created event")
	}
}

func TestHandleUsesReceivedAt(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandler(t)
	later := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	o := h.Handle(context.Background(), Request{OwnerID: "o", Text: "/schedule +1234567 $2024-12-25 10:30$ $m$", ReceivedAt: later})
	if o.Kind != OutcomePastDateTime {
		t.Fatalf("kind=%s", o.Kind)
	}
}
