package view

import (
	"context"
	"errors"
	"time"

	"schedbot/internal/job"
	"schedbot/pkg/logx"
)

// StatsStore persists per-owner paging position.
type StatsStore interface {
	GetViewStats(ctx context.Context, ownerID string) (job.ViewStats, error)
	RecordView(ctx context.Context, ownerID string, offset int, at time.Time) (job.ViewStats, error)
}

type ResultKind string

const (
	ResultShow       ResultKind = "SHOW_MESSAGES"
	ResultNoMessages ResultKind = "NO_MESSAGES"
	ResultNoMore     ResultKind = "NO_MORE_MESSAGES"
	ResultInvalid    ResultKind = "INVALID_VIEW_REQUEST"
	ResultError      ResultKind = "ERROR_FETCHING_MESSAGES"
)

type Result struct {
	Kind   ResultKind
	More   bool
	Page   Page
	Offset int // issuer zone offset used when rendering
	Err    error
}

// Service classifies a view utterance, picks the offset and pages.
type Service struct {
	pages    *Paginator
	stats    StatsStore
	pageSize int
	offset   int
	now      func() time.Time
	log      logx.Logger
}

type Options struct {
	PageSize         int
	UTCOffsetMinutes int
	Now              func() time.Time
}

func NewService(store Store, stats StatsStore, opts Options, log logx.Logger) *Service {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		pages:    NewPaginator(store),
		stats:    stats,
		pageSize: opts.PageSize,
		offset:   opts.UTCOffsetMinutes,
		now:      opts.Now,
		log:      log.With(logx.Component("view")),
	}
}

// Handle answers one view request. A "more" request continues after the
// owner's last recorded page; a list request starts from the top.
func (s *Service) Handle(ctx context.Context, owner, text string) Result {
	in := Classify(text)
	if !in.Valid {
		return Result{Kind: ResultInvalid, Err: in.Err}
	}
	more := in.More && !in.List

	start := 0
	if more {
		start = s.nextOffset(ctx, owner)
	}
	page, err := s.pages.Page(ctx, owner, start, s.pageSize)
	if err != nil {
		s.log.Error("page pending jobs failed", logx.String("owner", owner), logx.Int("offset", start), logx.Err(err))
		return Result{Kind: ResultError, More: more, Err: err}
	}
	s.record(ctx, owner, start)

	r := Result{Kind: ResultShow, More: more, Page: page, Offset: s.offset}
	switch {
	case page.Total == 0:
		r.Kind = ResultNoMessages
	case more && len(page.Items) == 0:
		r.Kind = ResultNoMore
	}
	return r
}

// Page reads one page at an explicit offset and records it as the owner's
// last view.
func (s *Service) Page(ctx context.Context, owner string, offset, size int) (Page, error) {
	if size <= 0 {
		size = s.pageSize
	}
	page, err := s.pages.Page(ctx, owner, offset, size)
	if err != nil {
		return Page{}, err
	}
	s.record(ctx, owner, page.Offset)
	return page, nil
}

func (s *Service) nextOffset(ctx context.Context, owner string) int {
	if s.stats == nil {
		return 0
	}
	st, err := s.stats.GetViewStats(ctx, owner)
	if errors.Is(err, job.ErrNotFound) {
		return 0
	}
	if err != nil {
		s.log.Warn("read view stats failed", logx.String("owner", owner), logx.Err(err))
		return 0
	}
	return st.LastOffset + s.pageSize
}

// record is best-effort; a failure never fails the read.
func (s *Service) record(ctx context.Context, owner string, offset int) {
	if s.stats == nil {
		return
	}
	if _, err := s.stats.RecordView(ctx, owner, offset, s.now()); err != nil {
		s.log.Warn("record view stats failed", logx.String("owner", owner), logx.Err(err))
	}
}
