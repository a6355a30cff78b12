// Package logsender is a dry-run transport.Sender that records deliveries in
// the log instead of contacting a chat platform.
package logsender

import (
	"context"
	"sync"
	"time"

	"schedbot/pkg/logx"
)

type Delivery struct {
	Recipient string
	Text      string
	At        time.Time
}

type Sender struct {
	log logx.Logger

	mu   sync.Mutex
	sent []Delivery
	keep int
}

// New returns a Sender remembering the last keep deliveries (0 keeps none).
func New(log logx.Logger, keep int) *Sender {
	return &Sender{log: log.With(logx.Component("logsender")), keep: keep}
}

func (s *Sender) Send(ctx context.Context, recipient, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.log.Info("dry-run delivery", logx.String("recipient", recipient), logx.Int("chars", len([]rune(text))))
	if s.keep <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, Delivery{Recipient: recipient, Text: text, At: time.Now()})
	if over := len(s.sent) - s.keep; over > 0 {
		s.sent = append(s.sent[:0], s.sent[over:]...)
	}
	return nil
}

// Deliveries returns a copy of the remembered deliveries, oldest first.
func (s *Sender) Deliveries() []Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Delivery(nil), s.sent...)
}
