package router

import (
	"context"
	"strings"
	"unicode"

	kit "schedbot/internal/transport"
)

// sanitizeTelegramCommand converts an arbitrary keyword into a Telegram-safe bot command name.
// Telegram command names are restricted to [a-z0-9_]{1,32}.
func sanitizeTelegramCommand(s string) string {
	s = strings.TrimPrefix(strings.TrimSpace(strings.ToLower(s)), "/")
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastUnderscore = false
		case r == '_' || r == '-' || r == '/' || unicode.IsSpace(r):
			if b.Len() > 0 && !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "_")
	// Telegram clients generally expect commands to start with a letter.
	if out != "" && out[0] >= '0' && out[0] <= '9' {
		out = "cmd_" + out
	}
	if len(out) > 32 {
		out = strings.TrimRight(out[:32], "_")
	}
	return out
}

func menuCommands(cfg Config) []kit.BotCommand {
	cmds := []kit.BotCommand{
		{Command: "help", Description: "cómo programar mensajes"},
		{Command: "mensajes", Description: "ver mensajes programados"},
	}
	if kw := sanitizeTelegramCommand(cfg.Keyword); kw != "" {
		cmds = append([]kit.BotCommand{{Command: kw, Description: "programar un mensaje"}}, cmds...)
	}
	return cmds
}

// PublishMenu updates the platform command menu when the adapter supports it.
func (r *Router) PublishMenu(ctx context.Context) error {
	up, ok := r.adapter.(kit.CommandMenuUpdater)
	if !ok {
		return nil
	}
	cfg, _ := r.config()
	return up.UpdateMenuCommands(ctx, menuCommands(cfg))
}
