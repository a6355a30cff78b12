// Package transport defines the chat-platform boundary: inbound updates,
// replies to the operator chat, and outbound delivery to recipients.
package transport

import (
	"context"
	"errors"
	"time"
)

// ErrUnknownRecipient is returned by a Sender that has no route to the
// recipient identifier.
var ErrUnknownRecipient = errors.New("transport: unknown recipient")

type Update struct {
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
	IsGroup      bool
	Time         time.Time
}

type ChatTarget struct {
	ChatID int64
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Adapter is the inbound side and the reply channel of a chat platform.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) error
}

// Sender delivers a scheduled message to a recipient identifier (an E.164
// phone number).
type Sender interface {
	Send(ctx context.Context, recipient, text string) error
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus (e.g. Telegram /menu list).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
