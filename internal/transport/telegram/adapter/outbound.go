package adapter

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	kit "schedbot/internal/transport"
)

type outboundLimiter struct {
	l *rate.Limiter
}

func newOutboundLimiter(perSec float64) *outboundLimiter {
	burst := int(perSec)
	if burst < 1 {
		burst = 1
	}
	return &outboundLimiter{l: rate.NewLimiter(rate.Limit(perSec), burst)}
}

func (o *outboundLimiter) wait(ctx context.Context) error { return o.l.Wait(ctx) }

// SetRecipients swaps the phone directory, typically after a config reload.
func (a *Adapter) SetRecipients(m map[string]int64) {
	dir := buildDirectory(m)
	a.dirMu.Lock()
	a.directory = dir
	a.dirMu.Unlock()
}

func (a *Adapter) lookup(recipient string) (int64, bool) {
	a.dirMu.RLock()
	defer a.dirMu.RUnlock()
	id, ok := a.directory[normalizePhone(recipient)]
	return id, ok
}

// Send delivers a scheduled message to the chat registered for recipient.
// It implements transport.Sender.
func (a *Adapter) Send(ctx context.Context, recipient, text string) error {
	chatID, ok := a.lookup(recipient)
	if !ok {
		return fmt.Errorf("%w: %s", kit.ErrUnknownRecipient, recipient)
	}
	if err := a.limiter.wait(ctx); err != nil {
		return err
	}
	sctx, cancel := context.WithTimeout(ctx, a.cfg.sendTimeout())
	defer cancel()
	return a.SendText(sctx, kit.ChatTarget{ChatID: chatID}, text, nil)
}

// NotifyOperator posts text to the configured log chat. It implements
// logx.ChatNotifier.
func (a *Adapter) NotifyOperator(ctx context.Context, text string) error {
	if a.cfg.LogChatID == 0 {
		return nil
	}
	return a.SendText(ctx, kit.ChatTarget{ChatID: a.cfg.LogChatID}, text, nil)
}
