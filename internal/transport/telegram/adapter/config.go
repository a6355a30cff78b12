package adapter

import (
	"strings"
	"time"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// LogChatID receives operator notifications; 0 disables them.
	LogChatID int64
	// Recipients maps an E.164 phone number to the chat that receives
	// messages scheduled for it.
	Recipients  map[string]int64
	SendTimeout time.Duration
	RatePerSec  float64
}

func (c Config) sendTimeout() time.Duration {
	if c.SendTimeout <= 0 {
		return 10 * time.Second
	}
	return c.SendTimeout
}

func (c Config) rate() float64 {
	if c.RatePerSec <= 0 {
		return 1
	}
	return c.RatePerSec
}

// normalizePhone strips the separators users type so directory keys and job
// recipients compare equal.
func normalizePhone(s string) string {
	return strings.NewReplacer("-", "", " ", "", "(", "", ")", "").Replace(strings.TrimSpace(s))
}

func buildDirectory(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for phone, chat := range in {
		if p := normalizePhone(phone); p != "" && chat != 0 {
			out[p] = chat
		}
	}
	return out
}
