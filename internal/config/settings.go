package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultUTCOffsetMinutes = -240
	DefaultMaxPending       = 10
	DefaultPageSize         = 10
	DefaultKeyword          = "/schedule"
	DefaultZoneLabel        = "hora de Chile"
	DefaultDispatchSchedule = "30s"
	DefaultBatchSize        = 50
	DefaultMaxAttempts      = 3
	DefaultHTTPAddr         = "127.0.0.1:8080"
	DefaultSQLitePath       = "./data/schedbot.db"
)

// Settings is a validated Config with defaults filled in and durations
// parsed.
type Settings struct {
	Telegram struct {
		Token          string
		PollTimeout    time.Duration
		AllowedUserIDs []int64
		LogChatID      int64
		Recipients     map[string]int64
		Workers        int
		HandlerTimeout time.Duration
	}
	Logging LoggingConfig
	Storage struct {
		Driver      string
		Path        string
		DSN         string
		BusyTimeout time.Duration
	}
	Conversation struct {
		Driver   string
		Addr     string
		Password string
		DB       int
		Prefix   string
		TTL      time.Duration
	}
	Scheduling struct {
		UTCOffsetMinutes int
		MaxPending       int
		Keyword          string
		PageSize         int
		ZoneLabel        string
	}
	Dispatch struct {
		Enabled     bool
		Schedule    string
		BatchSize   int
		MaxAttempts int
		RetryDelay  time.Duration
		JobGap      time.Duration
		Timeout     time.Duration
	}
	Timezone string
	HTTP     HTTPConfig
	Transport struct {
		Driver      string
		SendTimeout time.Duration
		RatePerSec  int
	}
}

// Resolve validates cfg and returns its effective settings. All problems
// are reported together.
func Resolve(cfg *Config) (Settings, error) {
	var s Settings
	if cfg == nil {
		cfg = &Config{}
	}
	var errs []error
	d := &durations{}

	t := cfg.Telegram
	s.Telegram.Token = strings.TrimSpace(t.Token)
	s.Telegram.PollTimeout = d.get("telegram.poll_timeout", t.PollTimeout, 10*time.Second)
	s.Telegram.AllowedUserIDs = append([]int64(nil), t.AllowedUserIDs...)
	s.Telegram.LogChatID = t.LogChatID
	s.Telegram.Recipients = make(map[string]int64, len(t.Recipients))
	for phone, chat := range t.Recipients {
		if !strings.HasPrefix(strings.TrimSpace(phone), "+") {
			errs = append(errs, fmt.Errorf("telegram.recipients: %q must start with +", phone))
			continue
		}
		if chat == 0 {
			errs = append(errs, fmt.Errorf("telegram.recipients: %q has no chat id", phone))
			continue
		}
		s.Telegram.Recipients[strings.TrimSpace(phone)] = chat
	}
	s.Telegram.Workers = orInt(t.Workers, 4)
	s.Telegram.HandlerTimeout = d.get("telegram.handler_timeout", t.HandlerTimeout, 15*time.Second)

	s.Logging = cfg.Logging
	if strings.TrimSpace(s.Logging.Level) == "" {
		s.Logging.Level = "info"
	}

	st := cfg.Storage
	s.Storage.Driver = lower(st.Driver, "memory")
	s.Storage.Path = strings.TrimSpace(st.Path)
	s.Storage.DSN = strings.TrimSpace(st.DSN)
	s.Storage.BusyTimeout = d.get("storage.busy_timeout", st.BusyTimeout, 5*time.Second)
	switch s.Storage.Driver {
	case "memory":
	case "sqlite":
		if s.Storage.Path == "" {
			s.Storage.Path = DefaultSQLitePath
		}
	case "postgres":
		if s.Storage.DSN == "" {
			errs = append(errs, errors.New("storage.dsn: required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown %q", st.Driver))
	}

	cv := cfg.Conversation
	s.Conversation.Driver = lower(cv.Driver, "store")
	s.Conversation.Addr = strings.TrimSpace(cv.Addr)
	s.Conversation.Password = cv.Password
	s.Conversation.DB = cv.DB
	s.Conversation.Prefix = strings.TrimSpace(cv.Prefix)
	s.Conversation.TTL = d.get("conversation.ttl", cv.TTL, 30*time.Minute)
	switch s.Conversation.Driver {
	case "store":
	case "redis":
		if s.Conversation.Addr == "" {
			errs = append(errs, errors.New("conversation.addr: required for redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("conversation.driver: unknown %q", cv.Driver))
	}

	sc := cfg.Scheduling
	s.Scheduling.UTCOffsetMinutes = DefaultUTCOffsetMinutes
	if sc.UTCOffsetMinutes != nil {
		s.Scheduling.UTCOffsetMinutes = *sc.UTCOffsetMinutes
	}
	if o := s.Scheduling.UTCOffsetMinutes; o < -14*60 || o > 14*60 {
		errs = append(errs, fmt.Errorf("scheduling.utc_offset_minutes: %d out of range", o))
	}
	s.Scheduling.MaxPending = orInt(sc.MaxPending, DefaultMaxPending)
	s.Scheduling.PageSize = orInt(sc.PageSize, DefaultPageSize)
	s.Scheduling.Keyword = strings.TrimSpace(sc.Keyword)
	if s.Scheduling.Keyword == "" {
		s.Scheduling.Keyword = DefaultKeyword
	}
	if strings.ContainsAny(s.Scheduling.Keyword, " $") {
		errs = append(errs, fmt.Errorf("scheduling.keyword: %q must not contain spaces or $", s.Scheduling.Keyword))
	}
	s.Scheduling.ZoneLabel = strings.TrimSpace(sc.ZoneLabel)
	if s.Scheduling.ZoneLabel == "" {
		s.Scheduling.ZoneLabel = DefaultZoneLabel
		if s.Scheduling.UTCOffsetMinutes != DefaultUTCOffsetMinutes {
			s.Scheduling.ZoneLabel = zoneLabel(s.Scheduling.UTCOffsetMinutes)
		}
	}

	dp := cfg.Dispatch
	s.Dispatch.Enabled = dp.Enabled == nil || *dp.Enabled
	s.Dispatch.Schedule = strings.TrimSpace(dp.Schedule)
	if s.Dispatch.Schedule == "" {
		s.Dispatch.Schedule = DefaultDispatchSchedule
	}
	s.Dispatch.BatchSize = orInt(dp.BatchSize, DefaultBatchSize)
	if s.Dispatch.BatchSize > DefaultBatchSize {
		errs = append(errs, fmt.Errorf("dispatch.batch_size: %d exceeds %d", s.Dispatch.BatchSize, DefaultBatchSize))
	}
	s.Dispatch.MaxAttempts = orInt(dp.MaxAttempts, DefaultMaxAttempts)
	s.Dispatch.RetryDelay = d.get("dispatch.retry_delay", dp.RetryDelay, 2*time.Second)
	s.Dispatch.JobGap = d.get("dispatch.job_gap", dp.JobGap, time.Second)
	s.Dispatch.Timeout = d.get("dispatch.timeout", dp.Timeout, 5*time.Minute)

	s.Timezone = strings.TrimSpace(cfg.Scheduler.Timezone)
	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
		}
	}

	s.HTTP = cfg.HTTP
	s.HTTP.Addr = strings.TrimSpace(s.HTTP.Addr)
	if s.HTTP.Addr == "" {
		s.HTTP.Addr = DefaultHTTPAddr
	}

	tr := cfg.Transport
	def := "log"
	if s.Telegram.Token != "" {
		def = "telegram"
	}
	s.Transport.Driver = lower(tr.Driver, def)
	s.Transport.SendTimeout = d.get("transport.send_timeout", tr.SendTimeout, 10*time.Second)
	s.Transport.RatePerSec = orInt(tr.RatePerSec, 1)
	switch s.Transport.Driver {
	case "telegram":
		if s.Telegram.Token == "" {
			errs = append(errs, errors.New("telegram.token: required for the telegram transport"))
		}
	case "log":
	default:
		errs = append(errs, fmt.Errorf("transport.driver: unknown %q", tr.Driver))
	}

	errs = append(errs, d.errs...)
	if len(errs) > 0 {
		return Settings{}, fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return s, nil
}

// Validate reports whether cfg resolves.
func Validate(cfg *Config) error {
	_, err := Resolve(cfg)
	return err
}

func zoneLabel(offset int) string {
	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	if offset%60 == 0 {
		return fmt.Sprintf("UTC%s%d", sign, offset/60)
	}
	return fmt.Sprintf("UTC%s%d:%02d", sign, offset/60, offset%60)
}

func lower(s, def string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return def
	case "sqlite3":
		return "sqlite"
	case "postgresql", "pg":
		return "postgres"
	}
	return s
}

func orInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
