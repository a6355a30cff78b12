// Package dispatch delivers due jobs through the outbound transport.
package dispatch

import (
	"context"
	"sync"
	"time"

	"schedbot/internal/eventbus"
	"schedbot/internal/job"
	"schedbot/pkg/logx"
)

// Sender delivers text to a recipient. Implementations bound each call with
// their own timeout.
type Sender interface {
	Send(ctx context.Context, recipient, text string) error
}

// Store is the part of the scheduling store the worker reads and advances.
type Store interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]job.Job, error)
	UpdateStatus(ctx context.Context, id string, to job.Status, d job.StatusDetail) (job.Job, error)
}

// Locker is optionally implemented by stores shared between processes.
type Locker interface {
	TryLockDispatch(ctx context.Context) (release func(), ok bool, err error)
}

type Config struct {
	BatchSize   int
	MaxAttempts int
	RetryDelay  time.Duration
	// JobGap separates deliveries within one batch.
	JobGap time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 || c.BatchSize > job.MaxBatchSize {
		c.BatchSize = job.MaxBatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.JobGap < 0 {
		c.JobGap = 0
	}
	return c
}

// DefaultConfig mirrors the production cadence.
func DefaultConfig() Config {
	return Config{BatchSize: job.MaxBatchSize, MaxAttempts: 3, RetryDelay: 2 * time.Second, JobGap: time.Second}
}

// Report summarizes one tick.
type Report struct {
	Fetched int
	Sent    int
	Failed  int
	// Skipped is true when another process held the dispatch lock.
	Skipped bool
	// Errors holds per-job store errors; delivery failures are recorded on
	// the job instead.
	Errors []error
}

// SentEvent is published on eventbus.DispatchSent and DispatchFailed.
type SentEvent struct {
	JobID     string
	OwnerID   string
	Recipient string
	Attempts  int
	Err       string
}

type Worker struct {
	store  Store
	sender Sender
	bus    eventbus.Bus
	log    logx.Logger

	mu     sync.Mutex
	cfg    Config
	locker Locker

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewWorker(store Store, sender Sender, cfg Config, bus eventbus.Bus, log logx.Logger) *Worker {
	if bus == nil {
		bus = eventbus.Nop()
	}
	return &Worker{
		store:  store,
		sender: sender,
		bus:    bus,
		log:    log.With(logx.Component("dispatch")),
		cfg:    cfg.withDefaults(),
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// Apply swaps tuning for subsequent ticks.
func (w *Worker) Apply(cfg Config) {
	w.mu.Lock()
	w.cfg = cfg.withDefaults()
	w.mu.Unlock()
}

// SetLocker overrides the dispatch lock the store provides, if any.
func (w *Worker) SetLocker(l Locker) {
	w.mu.Lock()
	w.locker = l
	w.mu.Unlock()
}

func (w *Worker) config() (Config, Locker) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.locker != nil {
		return w.cfg, w.locker
	}
	l, _ := w.store.(Locker)
	return w.cfg, l
}

// Tick delivers one batch of due jobs, sequentially and oldest first.
// A failure to fetch the batch is returned; per-job failures are recorded
// and the batch continues.
func (w *Worker) Tick(ctx context.Context) (Report, error) {
	var rep Report
	cfg, l := w.config()

	if l != nil {
		release, got, err := l.TryLockDispatch(ctx)
		if err != nil {
			return rep, err
		}
		if !got {
			rep.Skipped = true
			w.log.Debug("dispatch lock held elsewhere, skipping tick")
			return rep, nil
		}
		defer release()
	}

	due, err := w.store.ListDue(ctx, w.now(), cfg.BatchSize)
	if err != nil {
		w.log.Error("list due jobs failed", logx.Err(err))
		return rep, err
	}
	rep.Fetched = len(due)
	if len(due) == 0 {
		return rep, nil
	}
	w.log.Debug("dispatching batch", logx.Int("jobs", len(due)))

	for i, j := range due {
		if i > 0 && cfg.JobGap > 0 {
			if err := w.sleep(ctx, cfg.JobGap); err != nil {
				break
			}
		}
		if ctx.Err() != nil {
			break
		}
		w.deliver(ctx, cfg, j, &rep)
	}
	w.bus.Publish(eventbus.Event{Type: eventbus.DispatchTick, Data: rep})
	return rep, nil
}

func (w *Worker) deliver(ctx context.Context, cfg Config, j job.Job, rep *Report) {
	log := w.log.With(logx.String("job", j.ID), logx.String("owner", j.OwnerID))

	var lastErr error
	attempts := 0
	for attempts < cfg.MaxAttempts {
		attempts++
		lastErr = w.sender.Send(ctx, j.Recipient, j.Content)
		if lastErr == nil {
			break
		}
		if ctx.Err() != nil {
			// The tick ended mid-send; the failure is ours, not the
			// transport's, so the job stays PENDING.
			log.Warn("delivery interrupted", logx.Int("attempt", attempts), logx.Err(lastErr))
			return
		}
		log.Warn("delivery attempt failed", logx.Int("attempt", attempts), logx.Int("max", cfg.MaxAttempts), logx.Err(lastErr))
		if attempts < cfg.MaxAttempts {
			if err := w.sleep(ctx, cfg.RetryDelay); err != nil {
				// Shutdown between attempts leaves the job PENDING for the
				// next run.
				return
			}
		}
	}

	detail := job.StatusDetail{Attempts: attempts, At: w.now()}
	to := job.StatusSent
	if lastErr != nil {
		to = job.StatusFailedToSend
		detail.LastError = lastErr.Error()
	}

	// The status write must land even if the tick context is being torn down.
	uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if _, err := w.store.UpdateStatus(uctx, j.ID, to, detail); err != nil {
		log.Error("record delivery result failed", logx.String("status", string(to)), logx.Err(err))
		rep.Errors = append(rep.Errors, err)
		return
	}

	ev := SentEvent{JobID: j.ID, OwnerID: j.OwnerID, Recipient: j.Recipient, Attempts: attempts}
	if lastErr != nil {
		rep.Failed++
		ev.Err = lastErr.Error()
		log.Error("delivery failed, giving up", logx.Int("attempts", attempts), logx.Err(lastErr))
		w.bus.Publish(eventbus.Event{Type: eventbus.DispatchFailed, Data: ev})
		return
	}
	rep.Sent++
	log.Info("message delivered", logx.Int("attempts", attempts))
	w.bus.Publish(eventbus.Event{Type: eventbus.DispatchSent, Data: ev})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
