package app

import (
	"schedbot/internal/config"
	"schedbot/internal/conversation"
	"schedbot/internal/dispatch"
	"schedbot/internal/schedule"
	"schedbot/internal/storage"
	"schedbot/internal/task/scheduler"
	telegram "schedbot/internal/transport/telegram/adapter"
	"schedbot/internal/transport/telegram/router"
	"schedbot/internal/view"
	"schedbot/pkg/logx"
)

// The forwarded-log chat sink needs both a target chat and a transport
// that can reach it.
func mapLogging(s config.Settings, hasChat bool) logx.Config {
	l := s.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Chat: logx.ChatConfig{
			Enabled:    l.Telegram.Enabled && hasChat && s.Telegram.LogChatID != 0,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

func mapStorage(s config.Settings) storage.Config {
	return storage.Config{
		Driver:      s.Storage.Driver,
		Path:        s.Storage.Path,
		DSN:         s.Storage.DSN,
		BusyTimeout: s.Storage.BusyTimeout,
		MaxPending:  s.Scheduling.MaxPending,
	}
}

func mapRedis(s config.Settings) conversation.Config {
	c := s.Conversation
	return conversation.Config{
		Addr: c.Addr, Password: c.Password, DB: c.DB, TTL: c.TTL, Prefix: c.Prefix,
		DispatchTimeout: s.Dispatch.Timeout,
	}
}

func mapSchedule(s config.Settings) schedule.Options {
	return schedule.Options{
		Keyword:          s.Scheduling.Keyword,
		UTCOffsetMinutes: s.Scheduling.UTCOffsetMinutes,
		MaxPending:       s.Scheduling.MaxPending,
	}
}

func mapView(s config.Settings) view.Options {
	return view.Options{PageSize: s.Scheduling.PageSize, UTCOffsetMinutes: s.Scheduling.UTCOffsetMinutes}
}

func mapDispatch(s config.Settings) dispatch.Config {
	d := s.Dispatch
	return dispatch.Config{
		BatchSize:   d.BatchSize,
		MaxAttempts: d.MaxAttempts,
		RetryDelay:  d.RetryDelay,
		JobGap:      d.JobGap,
	}
}

func mapScheduler(s config.Settings) scheduler.Config {
	return scheduler.Config{Timezone: s.Timezone, DefaultTimeout: s.Dispatch.Timeout}
}

func mapAdapter(s config.Settings) telegram.Config {
	return telegram.Config{
		Token:       s.Telegram.Token,
		PollTimeout: s.Telegram.PollTimeout,
		LogChatID:   s.Telegram.LogChatID,
		Recipients:  s.Telegram.Recipients,
		SendTimeout: s.Transport.SendTimeout,
		RatePerSec:  float64(s.Transport.RatePerSec),
	}
}

func mapRouter(s config.Settings) router.Config {
	return router.Config{
		AllowedUserIDs: s.Telegram.AllowedUserIDs,
		Keyword:        s.Scheduling.Keyword,
		ZoneLabel:      s.Scheduling.ZoneLabel,
		Timeout:        s.Telegram.HandlerTimeout,
		Workers:        s.Telegram.Workers,
	}
}
