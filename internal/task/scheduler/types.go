package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"schedbot/pkg/logx"
)

var (
	ErrUnknownSchedule = errors.New("scheduler: unknown schedule")
	ErrOverlapSkip     = errors.New("scheduler: previous run still in flight")
)

// Config controls the trigger service.
type Config struct {
	// Timezone is an IANA name used for cron expressions. Empty means UTC.
	Timezone string
	// DefaultTimeout bounds a run when the schedule has none.
	DefaultTimeout time.Duration
}

// Task is the unit of work a schedule triggers.
type Task func(ctx context.Context) error

type scheduleDef struct {
	name    string
	spec    string
	timeout time.Duration
	task    Task
	entryID cron.EntryID

	running atomic.Bool

	mu      sync.Mutex
	runs    uint64
	skipped uint64
	lastRun time.Time
	lastDur time.Duration
	lastErr string
}

type Service struct {
	mu sync.Mutex

	log    logx.Logger
	cfg    Config
	loc    *time.Location
	parser cron.Parser
	c      *cron.Cron
	defs   []*scheduleDef

	// runCtx is cancelled by Stop so in-flight runs see shutdown.
	runCtx    context.Context
	runCancel context.CancelFunc
}

type ScheduleInfo struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
	Running bool
	Runs    uint64
	Skipped uint64
	LastRun time.Time
	LastDur time.Duration
	LastErr string
}

type Snapshot struct {
	Running   bool
	Timezone  string
	Schedules []ScheduleInfo
}
