package config

import (
	"reflect"

	"schedbot/pkg/logx"
)

// SummarizeChange lists the sections that differ and returns log fields
// describing the new values. Secrets are reported only as set or unset.
func SummarizeChange(oldS, newS Settings) ([]string, []logx.Field) {
	changed := make([]string, 0, 8)
	fields := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldS.Telegram, newS.Telegram) {
		changed = append(changed, "telegram")
		fields = append(fields,
			logx.Bool("telegram.token_set", newS.Telegram.Token != ""),
			logx.Bool("telegram.token_changed", oldS.Telegram.Token != newS.Telegram.Token),
			logx.Int("telegram.allowed_users", len(newS.Telegram.AllowedUserIDs)),
			logx.Int("telegram.recipients", len(newS.Telegram.Recipients)),
			logx.Bool("telegram.log_chat_set", newS.Telegram.LogChatID != 0),
		)
	}
	if oldS.Logging != newS.Logging {
		changed = append(changed, "logging")
		fields = append(fields,
			logx.String("logging.level", newS.Logging.Level),
			logx.Bool("logging.console", newS.Logging.Console),
			logx.Bool("logging.file", newS.Logging.File.Enabled),
			logx.Bool("logging.telegram", newS.Logging.Telegram.Enabled),
		)
	}
	if oldS.Storage != newS.Storage {
		changed = append(changed, "storage")
		fields = append(fields, logx.String("storage.driver", newS.Storage.Driver))
	}
	if oldS.Conversation != newS.Conversation {
		changed = append(changed, "conversation")
		fields = append(fields,
			logx.String("conversation.driver", newS.Conversation.Driver),
			logx.Duration("conversation.ttl", newS.Conversation.TTL),
		)
	}
	if oldS.Scheduling != newS.Scheduling {
		changed = append(changed, "scheduling")
		fields = append(fields,
			logx.Int("scheduling.utc_offset_minutes", newS.Scheduling.UTCOffsetMinutes),
			logx.String("scheduling.keyword", newS.Scheduling.Keyword),
		)
	}
	if oldS.Dispatch != newS.Dispatch || oldS.Timezone != newS.Timezone {
		changed = append(changed, "dispatch")
		fields = append(fields,
			logx.Bool("dispatch.enabled", newS.Dispatch.Enabled),
			logx.String("dispatch.schedule", newS.Dispatch.Schedule),
			logx.Int("dispatch.batch_size", newS.Dispatch.BatchSize),
			logx.String("scheduler.timezone", newS.Timezone),
		)
	}
	if !reflect.DeepEqual(oldS.HTTP, newS.HTTP) {
		changed = append(changed, "http")
		fields = append(fields, logx.Bool("http.enabled", newS.HTTP.Enabled), logx.String("http.addr", newS.HTTP.Addr))
	}
	if oldS.Transport != newS.Transport {
		changed = append(changed, "transport")
		fields = append(fields, logx.String("transport.driver", newS.Transport.Driver))
	}
	return changed, fields
}

// RequiresRestart reports changes that are only picked up on restart:
// engines, listeners and credentials.
func RequiresRestart(oldS, newS Settings) []string {
	var out []string
	if oldS.Storage != newS.Storage {
		out = append(out, "storage")
	}
	if oldS.Conversation.Driver != newS.Conversation.Driver ||
		oldS.Conversation.Addr != newS.Conversation.Addr ||
		oldS.Conversation.DB != newS.Conversation.DB {
		out = append(out, "conversation")
	}
	if oldS.Telegram.Token != newS.Telegram.Token || oldS.Transport.Driver != newS.Transport.Driver {
		out = append(out, "transport")
	}
	if !reflect.DeepEqual(oldS.HTTP, newS.HTTP) {
		out = append(out, "http")
	}
	if oldS.Scheduling != newS.Scheduling {
		out = append(out, "scheduling")
	}
	return out
}
