package config

// Config is the on-disk configuration. Durations are Go duration strings
// ("30s", "2m") and are resolved with ParseDurationField so errors name the
// offending field.
type Config struct {
	Telegram     TelegramConfig     `json:"telegram"`
	Logging      LoggingConfig      `json:"logging"`
	Storage      StorageConfig      `json:"storage"`
	Conversation ConversationConfig `json:"conversation"`
	Scheduling   SchedulingConfig   `json:"scheduling"`
	Dispatch     DispatchConfig     `json:"dispatch"`
	Scheduler    SchedulerConfig    `json:"scheduler"`
	HTTP         HTTPConfig         `json:"http"`
	Transport    TransportConfig    `json:"transport"`
}

type TelegramConfig struct {
	Token          string  `json:"token"`
	PollTimeout    string  `json:"poll_timeout"`
	AllowedUserIDs []int64 `json:"allowed_user_ids"`
	// LogChatID receives operator notices and forwarded log lines. 0 disables.
	LogChatID int64 `json:"log_chat_id"`
	// Recipients maps a phone number ("+56912345678") to a chat id.
	Recipients map[string]int64 `json:"recipients"`
	Workers    int              `json:"workers"`
	// HandlerTimeout bounds one inbound message end to end.
	HandlerTimeout string `json:"handler_timeout"`
}

type LoggingConfig struct {
	Level    string                `json:"level"`
	Console  bool                  `json:"console"`
	File     LoggingFileConfig     `json:"file"`
	Telegram LoggingTelegramConfig `json:"telegram"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegramConfig struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

type StorageConfig struct {
	// Driver is memory, sqlite or postgres.
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	DSN         string `json:"dsn"`
	BusyTimeout string `json:"busy_timeout"`
}

type ConversationConfig struct {
	// Driver is "store" (same engine as jobs) or "redis".
	Driver   string `json:"driver"`
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Prefix   string `json:"prefix"`
	TTL      string `json:"ttl"`
}

type SchedulingConfig struct {
	UTCOffsetMinutes *int   `json:"utc_offset_minutes,omitempty"`
	MaxPending       int    `json:"max_pending"`
	Keyword          string `json:"keyword"`
	PageSize         int    `json:"page_size"`
	ZoneLabel        string `json:"zone_label"`
}

type DispatchConfig struct {
	Enabled     *bool  `json:"enabled,omitempty"`
	Schedule    string `json:"schedule"`
	BatchSize   int    `json:"batch_size"`
	MaxAttempts int    `json:"max_attempts"`
	RetryDelay  string `json:"retry_delay"`
	JobGap      string `json:"job_gap"`
	Timeout     string `json:"timeout"`
}

type SchedulerConfig struct {
	Timezone string `json:"timezone"`
}

type HTTPConfig struct {
	Enabled     bool     `json:"enabled"`
	Addr        string   `json:"addr"`
	CORSOrigins []string `json:"cors_origins"`
	// Pprof exposes /debug/pprof on the same listener.
	Pprof bool `json:"pprof"`
}

type TransportConfig struct {
	// Driver is telegram or log (dry run).
	Driver      string `json:"driver"`
	SendTimeout string `json:"send_timeout"`
	RatePerSec  int    `json:"rate_per_sec"`
}
