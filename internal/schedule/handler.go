package schedule

import (
	"context"
	"errors"
	"strings"
	"time"

	"schedbot/internal/datetime"
	"schedbot/internal/eventbus"
	"schedbot/internal/job"
	"schedbot/pkg/logx"
)

// Store is the part of the scheduling store the handler writes to.
type Store interface {
	CountPending(ctx context.Context, ownerID string) (int, error)
	Create(ctx context.Context, in job.NewJob) (job.Job, error)
}

// Request is one inbound scheduling utterance.
type Request struct {
	OwnerID    string
	Text       string
	ReceivedAt time.Time
}

type Options struct {
	Keyword          string
	UTCOffsetMinutes int
	MaxPending       int
	Now              func() time.Time
	Bus              eventbus.Bus
}

// Handler runs parse, recipient, date/time, content and limit checks in that
// order and stores the job when all pass.
type Handler struct {
	store      Store
	parser     Parser
	offset     int
	maxPending int
	now        func() time.Time
	bus        eventbus.Bus
	log        logx.Logger
}

func NewHandler(store Store, opts Options, log logx.Logger) *Handler {
	if opts.MaxPending <= 0 {
		opts.MaxPending = job.MaxPending
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Bus == nil {
		opts.Bus = eventbus.Nop()
	}
	return &Handler{
		store:      store,
		parser:     NewParser(opts.Keyword),
		offset:     opts.UTCOffsetMinutes,
		maxPending: opts.MaxPending,
		now:        opts.Now,
		bus:        opts.Bus,
		log:        log.With(logx.Component("schedule")),
	}
}

// IsCommand reports whether text is a delimited scheduling command.
func (h *Handler) IsCommand(text string) bool { return h.parser.Matches(text) }

// Offset is the issuer zone offset in minutes east of UTC.
func (h *Handler) Offset() int { return h.offset }

func (h *Handler) Handle(ctx context.Context, req Request) Outcome {
	cmd, err := h.parser.Parse(req.Text)
	if err != nil {
		return parseOutcome(err)
	}
	rcpt, err := ResolveRecipient(cmd.Recipient)
	if err != nil {
		return recipientOutcome(err)
	}
	when, err := datetime.Resolve(cmd.DateTime, h.reference(req), h.offset)
	if err != nil {
		return dateTimeOutcome(err)
	}
	return h.create(ctx, req.OwnerID, rcpt, when, cmd.Content)
}

func (h *Handler) reference(req Request) time.Time {
	if req.ReceivedAt.IsZero() {
		return h.now()
	}
	return req.ReceivedAt
}

// create runs the content and limit checks and stores the job.
func (h *Handler) create(ctx context.Context, owner string, rcpt Recipient, when datetime.Resolved, content string) Outcome {
	if !ValidContent(content) {
		return Outcome{Kind: OutcomeInvalidMessage, Stage: StageContent}
	}

	n, err := h.store.CountPending(ctx, owner)
	if err != nil {
		return h.internal("count pending", owner, err)
	}
	if n >= h.maxPending {
		return Outcome{Kind: OutcomeLimitReached, Stage: StageLimit, Current: n, Max: h.maxPending}
	}

	j, err := h.store.Create(ctx, job.NewJob{
		OwnerID:          owner,
		Recipient:        rcpt.Phone,
		RecipientInput:   rcpt.Input,
		Content:          strings.TrimSpace(content),
		ScheduledAt:      when.UTC,
		DateTimeInput:    when.Original,
		UTCOffsetMinutes: when.OffsetMinutes,
	})
	if le, ok := job.IsLimit(err); ok {
		return Outcome{Kind: OutcomeLimitReached, Stage: StageLimit, Current: le.Current, Max: le.Max}
	}
	if err != nil {
		return h.internal("create job", owner, err)
	}

	h.log.Info("job scheduled",
		logx.String("job", j.ID),
		logx.String("owner", owner),
		logx.Time("at", j.ScheduledAt),
	)
	h.bus.Publish(eventbus.Event{Type: eventbus.JobCreated, Data: j})
	return Outcome{Kind: OutcomeCreated, Stage: StageCreated, Job: &j}
}

func (h *Handler) internal(op, owner string, err error) Outcome {
	h.log.Error("scheduling failed", logx.String("op", op), logx.String("owner", owner), logx.Err(err))
	return Outcome{Kind: OutcomeInternal, Stage: StageInternal, Err: err}
}

func parseOutcome(err error) Outcome {
	var pe *ParseError
	if !errors.As(err, &pe) {
		return Outcome{Kind: OutcomeInternal, Stage: StageInternal, Err: err}
	}
	o := Outcome{Stage: StageParse, Err: err}
	switch pe.Kind {
	case ParseMissingRecipient:
		o.Kind = OutcomeMissingRecipient
	case ParseMissingDateTime:
		o.Kind = OutcomeMissingDateTime
	case ParseMissingMessage:
		o.Kind = OutcomeMissingMessage
	default:
		o.Kind = OutcomeInvalidFormat
	}
	return o
}

func recipientOutcome(err error) Outcome {
	var re *RecipientError
	if !errors.As(err, &re) {
		return Outcome{Kind: OutcomeInternal, Stage: StageInternal, Err: err}
	}
	o := Outcome{Stage: StageRecipient, Input: re.Input, Err: err}
	if re.Kind == RecipientContactNotFound {
		o.Kind = OutcomeContactNotFound
	} else {
		o.Kind = OutcomeInvalidPhone
	}
	return o
}

func dateTimeOutcome(err error) Outcome {
	var de *datetime.Error
	if !errors.As(err, &de) {
		return Outcome{Kind: OutcomeInternal, Stage: StageInternal, Err: err}
	}
	o := Outcome{Stage: StageDateTime, Err: err}
	switch de.Kind {
	case datetime.KindPastDate:
		o.Kind = OutcomePastDateTime
	case datetime.KindInvalidHour:
		o.Kind = OutcomeInvalidHour
	default:
		o.Kind = OutcomeInvalidDateTime
	}
	return o
}
