package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"schedbot/internal/eventbus"
	"schedbot/internal/job"
	"schedbot/internal/storage"
	"schedbot/pkg/logx"
)

var base = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

type fakeSender struct {
	mu    sync.Mutex
	fails map[string]int // recipient -> failures before success; -1 always fails
	sent  []string
	calls int
}

func (f *fakeSender) Send(_ context.Context, recipient, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if n := f.fails[recipient]; n != 0 {
		if n > 0 {
			f.fails[recipient] = n - 1
		}
		return errors.New("transport down")
	}
	f.sent = append(f.sent, recipient+":"+text)
	return nil
}

func newWorker(t *testing.T, st Store, s Sender, bus eventbus.Bus) *Worker {
	t.Helper()
	w := NewWorker(st, s, Config{MaxAttempts: 3, RetryDelay: time.Second, JobGap: time.Second}, bus, logx.Nop())
	w.now = func() time.Time { return base }
	w.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return w
}

func seed(t *testing.T, st *storage.Memory, owner, recipient string, at time.Time) job.Job {
	t.Helper()
	j, err := st.Create(context.Background(), job.NewJob{
		OwnerID:     owner,
		Recipient:   recipient,
		Content:     "hola " + recipient,
		ScheduledAt: at,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return j
}

func TestTickDeliversDueJobs(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory(storage.Config{Now: func() time.Time { return base.Add(-time.Hour) }})
	due := seed(t, st, "o", "+111111", base.Add(-time.Minute))
	future := seed(t, st, "o", "+222222", base.Add(time.Hour))
	s := &fakeSender{fails: map[string]int{}}
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(4, eventbus.DispatchSent)
	defer unsub()

	w := newWorker(t, st, s, bus)
	rep, err := w.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if rep.Fetched != 1 || rep.Sent != 1 || rep.Failed != 0 {
		t.Fatalf("report=%+v", rep)
	}
	got, _ := st.Get(context.Background(), due.ID)
	if got.Status != job.StatusSent || got.Attempts != 1 || got.SentAt == nil {
		t.Fatalf("due job=%+v", got)
	}
	left, _ := st.Get(context.Background(), future.ID)
	if left.Status != job.StatusPending {
		t.Fatalf("future job touched: %+v", left)
	}
	select {
	case ev := <-ch:
		if se, ok := ev.Data.(SentEvent); !ok || se.JobID != due.ID {
			t.Fatalf("event=%+v", ev)
		}
	default:
		t.Fatalf("no sent event")
	}

	// A second tick must not deliver the same job again.
	rep, err = w.Tick(context.Background())
	if err != nil || rep.Fetched != 0 {
		t.Fatalf("second tick rep=%+v err=%v", rep, err)
	}
	if len(s.sent) != 1 {
		t.Fatalf("sent=%v", s.sent)
	}
}

func TestTickRetries(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name     string
		fails    int
		status   job.Status
		attempts int
	}{
		{"recovers on second attempt", 1, job.StatusSent, 2},
		{"recovers on last attempt", 2, job.StatusSent, 3},
		{"exhausts attempts", -1, job.StatusFailedToSend, 3},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			st := storage.NewMemory(storage.Config{Now: func() time.Time { return base.Add(-time.Hour) }})
			j := seed(t, st, "o", "+333333", base.Add(-time.Second))
			s := &fakeSender{fails: map[string]int{"+333333": tc.fails}}
			w := newWorker(t, st, s, nil)

			if _, err := w.Tick(context.Background()); err != nil {
				t.Fatalf("tick: %v", err)
			}
			got, _ := st.Get(context.Background(), j.ID)
			if got.Status != tc.status || got.Attempts != tc.attempts {
				t.Fatalf("job=%+v", got)
			}
			if tc.status == job.StatusFailedToSend && got.LastError == "" {
				t.Fatalf("missing last error")
			}
			if s.calls != tc.attempts {
				t.Fatalf("calls=%d", s.calls)
			}
		})
	}
}

func TestTickOrderAndFailureIsolation(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory(storage.Config{Now: func() time.Time { return base.Add(-time.Hour) }})
	seed(t, st, "a", "+444444", base.Add(-2*time.Minute))
	seed(t, st, "b", "+555555", base.Add(-3*time.Minute))
	seed(t, st, "c", "+666666", base.Add(-time.Minute))
	s := &fakeSender{fails: map[string]int{"+555555": -1}}
	w := newWorker(t, st, s, nil)

	rep, err := w.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if rep.Fetched != 3 || rep.Sent != 2 || rep.Failed != 1 {
		t.Fatalf("report=%+v", rep)
	}
	want := []string{"+444444:hola +444444", "+666666:hola +666666"}
	if len(s.sent) != len(want) || s.sent[0] != want[0] || s.sent[1] != want[1] {
		t.Fatalf("sent=%v", s.sent)
	}
}

type brokenStore struct{ err error }

func (b brokenStore) ListDue(context.Context, time.Time, int) ([]job.Job, error) {
	return nil, b.err
}

func (b brokenStore) UpdateStatus(context.Context, string, job.Status, job.StatusDetail) (job.Job, error) {
	return job.Job{}, b.err
}

func TestTickListError(t *testing.T) {
	t.Parallel()
	boom := errors.New("db gone")
	s := &fakeSender{}
	w := newWorker(t, brokenStore{err: boom}, s, nil)
	if _, err := w.Tick(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
	if s.calls != 0 {
		t.Fatalf("sender called %d times", s.calls)
	}
}

type lockedStore struct {
	*storage.Memory
	held     bool
	released int
}

func (l *lockedStore) TryLockDispatch(context.Context) (func(), bool, error) {
	if l.held {
		return nil, false, nil
	}
	return func() { l.released++ }, true, nil
}

func TestTickHonorsDispatchLock(t *testing.T) {
	t.Parallel()
	mem := storage.NewMemory(storage.Config{Now: func() time.Time { return base.Add(-time.Hour) }})
	seed(t, mem, "o", "+777777", base.Add(-time.Second))
	st := &lockedStore{Memory: mem, held: true}
	s := &fakeSender{fails: map[string]int{}}
	w := newWorker(t, st, s, nil)

	rep, err := w.Tick(context.Background())
	if err != nil || !rep.Skipped || s.calls != 0 {
		t.Fatalf("rep=%+v err=%v calls=%d", rep, err, s.calls)
	}

	st.held = false
	rep, err = w.Tick(context.Background())
	if err != nil || rep.Sent != 1 || st.released != 1 {
		t.Fatalf("rep=%+v err=%v released=%d", rep, err, st.released)
	}
}

func TestTickStopsOnCancel(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory(storage.Config{Now: func() time.Time { return base.Add(-time.Hour) }})
	j := seed(t, st, "o", "+888888", base.Add(-time.Second))
	s := &fakeSender{fails: map[string]int{"+888888": -1}}
	w := newWorker(t, st, s, nil)

	ctx, cancel := context.WithCancel(context.Background())
	w.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}
	if _, err := w.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	got, _ := st.Get(context.Background(), j.ID)
	if got.Status != job.StatusPending {
		t.Fatalf("interrupted job should stay pending: %+v", got)
	}
	if s.calls != 1 {
		t.Fatalf("calls=%d", s.calls)
	}
}

type cancelOnAttempt struct {
	n      int
	cancel context.CancelFunc
	calls  int
}

func (c *cancelOnAttempt) Send(ctx context.Context, _, _ string) error {
	c.calls++
	if c.calls == c.n {
		c.cancel()
		return ctx.Err()
	}
	return errors.New("transport down")
}

func TestTickCancelledDuringLastAttemptKeepsPending(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory(storage.Config{Now: func() time.Time { return base.Add(-time.Hour) }})
	j := seed(t, st, "o", "+999999", base.Add(-time.Second))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := &cancelOnAttempt{n: 3, cancel: cancel}
	w := newWorker(t, st, s, nil)
	w.sleep = func(context.Context, time.Duration) error { return nil }

	rep, err := w.Tick(ctx)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if rep.Failed != 0 || rep.Sent != 0 {
		t.Fatalf("report=%+v", rep)
	}
	got, _ := st.Get(context.Background(), j.ID)
	if got.Status != job.StatusPending || got.LastError != "" {
		t.Fatalf("job should stay pending: %+v", got)
	}
	if s.calls != 3 {
		t.Fatalf("calls=%d", s.calls)
	}
}
