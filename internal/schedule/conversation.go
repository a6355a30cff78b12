package schedule

import (
	"context"
	"errors"
	"strings"
	"time"

	"schedbot/internal/datetime"
	"schedbot/internal/job"
	"schedbot/pkg/logx"
)

// ConversationStore keeps at most one pending conversation per owner.
// GetConversation returns job.ErrNotFound when there is none.
type ConversationStore interface {
	GetConversation(ctx context.Context, ownerID string) (job.Conversation, error)
	SaveConversation(ctx context.Context, c job.Conversation) error
	DeleteConversation(ctx context.Context, ownerID string) error
}

// DefaultConversationTTL bounds how long a partial request waits for its
// follow-up.
const DefaultConversationTTL = 30 * time.Minute

// Assistant is the entry point for scheduling text. Delimited commands go
// straight to the Handler; anything else is treated as natural language and
// may open, continue or close a pending conversation.
type Assistant struct {
	h     *Handler
	convs ConversationStore
	ttl   time.Duration
	log   logx.Logger
}

func NewAssistant(h *Handler, convs ConversationStore, ttl time.Duration, log logx.Logger) *Assistant {
	if ttl <= 0 {
		ttl = DefaultConversationTTL
	}
	return &Assistant{h: h, convs: convs, ttl: ttl, log: log.With(logx.Component("conversation"))}
}

// IsCommand reports whether text is a delimited scheduling command.
func (a *Assistant) IsCommand(text string) bool { return a.h.IsCommand(text) }

func (a *Assistant) Handle(ctx context.Context, req Request) Outcome {
	if a.h.IsCommand(req.Text) {
		a.abandon(ctx, req.OwnerID)
		return a.h.Handle(ctx, req)
	}

	conv, ok, err := a.pending(ctx, req.OwnerID, a.h.reference(req))
	if err != nil {
		return a.h.internal("load conversation", req.OwnerID, err)
	}

	n := ParseNatural(req.Text)
	if !ok || n.Complete() {
		if ok {
			a.abandon(ctx, req.OwnerID)
		}
		return a.start(ctx, req, n)
	}
	return a.followUp(ctx, req, conv, n)
}

// pending loads the owner's conversation, dropping it when expired.
func (a *Assistant) pending(ctx context.Context, owner string, now time.Time) (job.Conversation, bool, error) {
	conv, err := a.convs.GetConversation(ctx, owner)
	if errors.Is(err, job.ErrNotFound) {
		return job.Conversation{}, false, nil
	}
	if err != nil {
		return job.Conversation{}, false, err
	}
	if now.Sub(conv.UpdatedAt) > a.ttl {
		a.abandon(ctx, owner)
		return job.Conversation{}, false, nil
	}
	return conv, true, nil
}

func (a *Assistant) abandon(ctx context.Context, owner string) {
	if err := a.convs.DeleteConversation(ctx, owner); err != nil && !errors.Is(err, job.ErrNotFound) {
		a.log.Warn("drop conversation failed", logx.String("owner", owner), logx.Err(err))
	}
}

func (a *Assistant) start(ctx context.Context, req Request, n Natural) Outcome {
	if !n.Understood {
		return Outcome{Kind: OutcomeNotUnderstood, Stage: StageParse}
	}
	if n.Phrase.InvalidClock() {
		return Outcome{Kind: OutcomeInvalidHour, Stage: StageDateTime}
	}
	if n.Missing != "" {
		now := a.h.reference(req)
		conv := job.Conversation{
			OwnerID:        req.OwnerID,
			Recipient:      n.Phone,
			PartialContent: n.Content,
			Missing:        n.Missing,
			OriginalInput:  req.Text,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := a.convs.SaveConversation(ctx, conv); err != nil {
			return a.h.internal("save conversation", req.OwnerID, err)
		}
		return missingOutcome(n.Missing, false)
	}
	return a.complete(ctx, req, n, false)
}

func (a *Assistant) followUp(ctx context.Context, req Request, conv job.Conversation, n Natural) Outcome {
	now := a.h.reference(req)
	var combined string
	switch conv.Missing {
	case job.MissingPhone:
		if n.Phone == "" {
			conv.UpdatedAt = now
			if err := a.convs.SaveConversation(ctx, conv); err != nil {
				return a.h.internal("save conversation", req.OwnerID, err)
			}
			return missingOutcome(job.MissingPhone, true)
		}
		combined = n.Phone + " " + conv.OriginalInput
	case job.MissingTime:
		if bare := strings.TrimSpace(req.Text); datetime.Scan(bare).HasTime() && !strings.Contains(strings.ToLower(bare), "las") {
			combined = conv.OriginalInput + " a las " + bare
		} else {
			combined = conv.OriginalInput + " " + bare
		}
	default:
		combined = conv.OriginalInput + " " + strings.TrimSpace(req.Text)
	}

	merged := ParseNatural(combined)
	if merged.Complete() {
		o := a.complete(ctx, req, merged, true)
		if o.OK() {
			a.abandon(ctx, req.OwnerID)
		}
		return o
	}

	conv.OriginalInput = combined
	if merged.Phone != "" {
		conv.Recipient = merged.Phone
	}
	conv.PartialContent = merged.Content
	if merged.Missing != "" {
		conv.Missing = merged.Missing
	}
	conv.UpdatedAt = now
	if err := a.convs.SaveConversation(ctx, conv); err != nil {
		return a.h.internal("save conversation", req.OwnerID, err)
	}
	return missingOutcome(conv.Missing, true)
}

// complete pushes a full natural-language request through the same
// recipient, date/time, content and limit checks as a command.
func (a *Assistant) complete(ctx context.Context, req Request, n Natural, followUp bool) Outcome {
	rcpt, err := ResolveRecipient(n.Phone)
	if err != nil {
		return recipientOutcome(err)
	}
	when, err := datetime.Resolve(n.Phrase.Matched(), a.h.reference(req), a.h.offset)
	if err != nil {
		return dateTimeOutcome(err)
	}
	if strings.TrimSpace(n.Content) == "" {
		return Outcome{Kind: OutcomeMissingMessage, Stage: StageContent}
	}
	o := a.h.create(ctx, req.OwnerID, rcpt, when, n.Content)
	o.FollowUp = followUp
	return o
}

func missingOutcome(m job.MissingField, followUp bool) Outcome {
	o := Outcome{Stage: StagePending, FollowUp: followUp}
	switch m {
	case job.MissingTime:
		o.Kind = OutcomeNeedTime
	case job.MissingDate:
		o.Kind = OutcomeNeedDate
	default:
		o.Kind = OutcomeNeedPhone
	}
	return o
}
