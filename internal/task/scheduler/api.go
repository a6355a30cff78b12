package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"schedbot/pkg/logx"
)

// Add parses schedule and registers either a cron or interval task.
//
// Supported schedule formats:
//   - Cron: "*/5 * * * *", "55 * * * *", "@hourly", "@every 55m"
//   - Interval duration: "55m", "30s"
//   - Interval HH:MM: "00:50" (50 minutes), "02:30" (2 hours 30 minutes)
func (s *Service) Add(name, schedule string, timeout time.Duration, task Task) (string, error) {
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return "", err
	}
	switch ps.Kind {
	case SpecCron:
		return s.AddCron(name, ps.Cron, timeout, task)
	case SpecInterval:
		return s.AddInterval(name, ps.Every, timeout, task)
	default:
		return "", fmt.Errorf("unsupported schedule kind")
	}
}

func (s *Service) AddCron(name, spec string, timeout time.Duration, task Task) (string, error) {
	if _, err := s.parser.Parse(spec); err != nil {
		return "", fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return s.upsert(name, spec, timeout, task)
}

func (s *Service) AddInterval(name string, every, timeout time.Duration, task Task) (string, error) {
	if every < time.Second {
		return "", fmt.Errorf("interval must be at least 1s, got %s", every)
	}
	return s.upsert(name, "@every "+every.String(), timeout, task)
}

// upsert replaces any schedule with the same name so hot reloads never
// duplicate triggers.
func (s *Service) upsert(name, spec string, timeout time.Duration, task Task) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("name required")
	}
	if task == nil {
		return "", errors.New("task required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(name)
	d := &scheduleDef{name: name, spec: spec, timeout: timeout, task: task}
	s.defs = append(s.defs, d)
	if s.c == nil {
		// Registered with cron when Start runs.
		return name, nil
	}
	if err := s.addCronLocked(d); err != nil {
		s.log.Error("schedule register failed", logx.String("name", name), logx.String("spec", spec), logx.Err(err))
		return name, err
	}
	args := []logx.Field{logx.String("name", name), logx.String("spec", spec), logx.Duration("timeout", timeout)}
	if next := s.previewNextRunsLocked(spec, 3); next != "" {
		args = append(args, logx.String("next", next))
	}
	s.log.Debug("schedule registered", args...)
	return name, nil
}

// Remove unschedules name. It reports whether anything was removed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	removed := s.removeLocked(strings.TrimSpace(name))
	s.mu.Unlock()
	if removed {
		s.log.Debug("schedule removed", logx.String("name", name))
	}
	return removed
}

func (s *Service) removeLocked(name string) bool {
	n := 0
	removed := false
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	for i := n; i < len(s.defs); i++ {
		s.defs[i] = nil
	}
	s.defs = s.defs[:n]
	return removed
}

// RunNow runs name synchronously. It returns ErrOverlapSkip if a triggered
// run is still in flight, otherwise the task's own error.
func (s *Service) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	d := s.findLocked(name)
	s.mu.Unlock()
	if d == nil {
		return fmt.Errorf("%w: %s", ErrUnknownSchedule, name)
	}
	return s.run(ctx, d)
}

func (s *Service) findLocked(name string) *scheduleDef {
	for _, d := range s.defs {
		if d.name == name {
			return d
		}
	}
	return nil
}

func (s *Service) addCronLocked(d *scheduleDef) error {
	job := cron.FuncJob(func() {
		s.mu.Lock()
		ctx := s.runCtx
		s.mu.Unlock()
		if ctx == nil {
			ctx = context.Background()
		}
		if err := s.run(ctx, d); err != nil && !errors.Is(err, ErrOverlapSkip) {
			s.log.Warn("scheduled task failed", logx.String("schedule", d.name), logx.Err(err))
		}
	})
	eid, err := s.c.AddJob(d.spec, job)
	if err != nil {
		return err
	}
	d.entryID = eid
	return nil
}

func (s *Service) run(parent context.Context, d *scheduleDef) error {
	if !d.running.CompareAndSwap(false, true) {
		d.mu.Lock()
		d.skipped++
		d.mu.Unlock()
		s.log.Debug("schedule trigger skipped", logx.String("schedule", d.name))
		return ErrOverlapSkip
	}
	defer d.running.Store(false)

	timeout := d.timeout
	if timeout <= 0 {
		s.mu.Lock()
		timeout = s.cfg.DefaultTimeout
		s.mu.Unlock()
	}
	ctx := parent
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, timeout)
		defer cancel()
	}

	start := time.Now()
	err := d.task(ctx)
	took := time.Since(start)

	d.mu.Lock()
	d.runs++
	d.lastRun = start
	d.lastDur = took
	d.lastErr = ""
	if err != nil {
		d.lastErr = err.Error()
	}
	d.mu.Unlock()
	s.log.Trace("schedule ran", logx.String("schedule", d.name), logx.Duration("took", took))
	return err
}

// previewNextRunsLocked lists upcoming run times for debug logging.
func (s *Service) previewNextRunsLocked(spec string, n int) string {
	if !s.log.Enabled(logx.LevelDebug) {
		return ""
	}
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return ""
	}
	t := time.Now().In(s.loc)
	var b strings.Builder
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Snapshot{Running: s.c != nil, Timezone: "UTC"}
	if s.loc != nil {
		out.Timezone = s.loc.String()
	}
	for _, d := range s.defs {
		it := ScheduleInfo{Name: d.name, Spec: d.spec, Timeout: d.timeout, Running: d.running.Load()}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			it.Next = e.Next
			it.Prev = e.Prev
		}
		d.mu.Lock()
		it.Runs = d.runs
		it.Skipped = d.skipped
		it.LastRun = d.lastRun
		it.LastDur = d.lastDur
		it.LastErr = d.lastErr
		d.mu.Unlock()
		out.Schedules = append(out.Schedules, it)
	}
	return out
}
