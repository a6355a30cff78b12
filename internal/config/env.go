package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Overrides are environment values applied on top of the file. Secrets
// normally live here rather than in the file.
type Overrides struct {
	TelegramToken     string  `env:"SCHEDBOT_TELEGRAM_TOKEN"`
	TelegramAllowed   []int64 `env:"SCHEDBOT_TELEGRAM_ALLOWED_USER_IDS" envSeparator:","`
	TelegramLogChatID int64   `env:"SCHEDBOT_TELEGRAM_LOG_CHAT_ID"`
	LogLevel          string  `env:"SCHEDBOT_LOG_LEVEL"`
	StorageDriver     string  `env:"SCHEDBOT_STORAGE_DRIVER"`
	StoragePath       string  `env:"SCHEDBOT_STORAGE_PATH"`
	StorageDSN        string  `env:"SCHEDBOT_STORAGE_DSN"`
	RedisAddr         string  `env:"SCHEDBOT_REDIS_ADDR"`
	RedisPassword     string  `env:"SCHEDBOT_REDIS_PASSWORD"`
	HTTPAddr          string  `env:"SCHEDBOT_HTTP_ADDR"`
	HTTPEnabled       *bool   `env:"SCHEDBOT_HTTP_ENABLED"`
	TransportDriver   string  `env:"SCHEDBOT_TRANSPORT_DRIVER"`
	UTCOffsetMinutes  *int    `env:"SCHEDBOT_UTC_OFFSET_MINUTES"`
}

// LoadDotEnv loads the given .env files (default ".env") into the process
// environment. Missing files are ignored; variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ParseOverrides reads Overrides from the environment.
func ParseOverrides() (Overrides, error) {
	var o Overrides
	if err := env.Parse(&o); err != nil {
		return Overrides{}, fmt.Errorf("parse env: %w", err)
	}
	return o, nil
}

// Apply writes every set override into cfg.
func (o Overrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.TelegramToken != "" {
		cfg.Telegram.Token = o.TelegramToken
	}
	if len(o.TelegramAllowed) > 0 {
		cfg.Telegram.AllowedUserIDs = append([]int64(nil), o.TelegramAllowed...)
	}
	if o.TelegramLogChatID != 0 {
		cfg.Telegram.LogChatID = o.TelegramLogChatID
	}
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}
	if o.StorageDriver != "" {
		cfg.Storage.Driver = o.StorageDriver
	}
	if o.StoragePath != "" {
		cfg.Storage.Path = o.StoragePath
	}
	if o.StorageDSN != "" {
		cfg.Storage.DSN = o.StorageDSN
	}
	if o.RedisAddr != "" {
		cfg.Conversation.Addr = o.RedisAddr
		if cfg.Conversation.Driver == "" {
			cfg.Conversation.Driver = "redis"
		}
	}
	if o.RedisPassword != "" {
		cfg.Conversation.Password = o.RedisPassword
	}
	if o.HTTPAddr != "" {
		cfg.HTTP.Addr = o.HTTPAddr
	}
	if o.HTTPEnabled != nil {
		cfg.HTTP.Enabled = *o.HTTPEnabled
	}
	if o.TransportDriver != "" {
		cfg.Transport.Driver = o.TransportDriver
	}
	if o.UTCOffsetMinutes != nil {
		v := *o.UTCOffsetMinutes
		cfg.Scheduling.UTCOffsetMinutes = &v
	}
}
