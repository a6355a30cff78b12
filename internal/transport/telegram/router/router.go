// Package router turns inbound chat updates into scheduling, listing and
// help replies.
package router

import (
	"context"
	"hash/fnv"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	rtsup "schedbot/internal/runtime/supervisor"
	"schedbot/internal/schedule"
	kit "schedbot/internal/transport"
	"schedbot/internal/view"
	"schedbot/pkg/logx"
)

// Scheduler is the scheduling entry point (delimited commands and natural
// language).
type Scheduler interface {
	IsCommand(text string) bool
	Handle(ctx context.Context, req schedule.Request) schedule.Outcome
}

// Viewer answers listing requests.
type Viewer interface {
	Handle(ctx context.Context, owner, text string) view.Result
}

type Config struct {
	// AllowedUserIDs restricts who may talk to the bot; empty allows everyone.
	AllowedUserIDs []int64
	// Keyword is the scheduling command, shown in help and menus.
	Keyword   string
	ZoneLabel string
	// Timeout bounds a single request.
	Timeout time.Duration
	Workers int
}

type Router struct {
	log       logx.Logger
	adapter   kit.Adapter
	scheduler Scheduler
	viewer    Viewer

	mu      sync.RWMutex
	cfg     Config
	allowed map[int64]bool

	runMu sync.Mutex
	sup   *rtsup.Supervisor
	// lanes shard requests by owner so one user's messages are handled in
	// arrival order.
	lanes []chan func()
}

func New(cfg Config, adapter kit.Adapter, scheduler Scheduler, viewer Viewer, log logx.Logger) *Router {
	r := &Router{
		log:       log.With(logx.Component("telegram.router")),
		adapter:   adapter,
		scheduler: scheduler,
		viewer:    viewer,
	}
	r.Apply(cfg)
	return r
}

// Apply swaps the allowlist and labels. Safe to call during hot reload.
func (r *Router) Apply(cfg Config) {
	if strings.TrimSpace(cfg.Keyword) == "" {
		cfg.Keyword = schedule.DefaultKeyword
	}
	if cfg.ZoneLabel == "" {
		cfg.ZoneLabel = schedule.DefaultZoneLabel
	}
	allowed := make(map[int64]bool, len(cfg.AllowedUserIDs))
	for _, id := range cfg.AllowedUserIDs {
		allowed[id] = true
	}
	r.mu.Lock()
	r.cfg = cfg
	r.allowed = allowed
	r.mu.Unlock()
}

func (r *Router) config() (Config, map[int64]bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg, r.allowed
}

// Supervisor returns the worker pool supervisor (nil if not running).
func (r *Router) Supervisor() *rtsup.Supervisor {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	return r.sup
}

// DispatchLoop consumes updates until ctx is cancelled or updates closes.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	cfg, _ := r.config()
	workers := cfg.Workers
	if workers <= 0 {
		workers = max(runtime.NumCPU(), 2)
	}

	sup := rtsup.New(ctx, rtsup.WithLogger(r.log))
	lanes := make([]chan func(), workers)
	for i := range lanes {
		lane := make(chan func(), 64)
		lanes[i] = lane
		sup.GoRestart("router.worker."+strconv.Itoa(i), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-lane:
					job()
				}
			}
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}
	r.runMu.Lock()
	r.sup = sup
	r.lanes = lanes
	r.runMu.Unlock()
	r.log.Info("dispatcher started", logx.Int("workers", workers))

	defer func() {
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Stop(wctx)
		cancel()
		r.runMu.Lock()
		r.sup = nil
		r.lanes = nil
		r.runMu.Unlock()
		r.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.route(ctx, up, lanes)
		}
	}
}

func (r *Router) route(ctx context.Context, up kit.Update, lanes []chan func()) {
	msg := up.Message
	if msg == nil || strings.TrimSpace(msg.Text) == "" {
		return
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID}
	cfg, allowed := r.config()
	if len(allowed) > 0 && !allowed[msg.FromID] {
		r.log.Debug("message from unauthorized user ignored", logx.Int64("from_id", msg.FromID))
		r.reply(ctx, chat, "No autorizado.", nil)
		return
	}

	req := r.newRequest(up)
	h := Chain(r.Handle, recoverPanics(), logOutcome(750*time.Millisecond), withDeadline(cfg.Timeout))
	job := func() {
		if err := h(ctx, req); err != nil {
			r.reply(ctx, chat, "Ocurrió un error procesando tu mensaje. Intenta nuevamente.", nil)
		}
	}

	lane := lanes[laneFor(req.OwnerID, len(lanes))]
	select {
	case lane <- job:
	default:
		r.reply(ctx, chat, "Estoy ocupado, intenta en unos segundos.", nil)
	}
}

func laneFor(owner string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(owner))
	return int(h.Sum32() % uint32(n))
}

func (r *Router) newRequest(up kit.Update) *Request {
	msg := up.Message
	rid := uuid.NewString()[:8]
	owner := strconv.FormatInt(msg.FromID, 10)
	return &Request{
		Update:  up,
		Chat:    kit.ChatTarget{ChatID: msg.ChatID},
		FromID:  msg.FromID,
		OwnerID: owner,
		Text:    strings.TrimSpace(msg.Text),
		ReqID:   rid,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.String("owner", owner),
		),
	}
}

// Handle classifies one message and sends the reply. Help first, then the
// scheduling command, then listing requests, then natural language.
func (r *Router) Handle(ctx context.Context, req *Request) error {
	cfg, _ := r.config()
	text := req.Text

	switch word := commandWord(text); {
	case word == "start" || word == "help" || word == "ayuda":
		req.Route = "help"
		return r.reply(ctx, req.Chat, helpText(cfg), &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
	case r.scheduler.IsCommand(text):
		req.Route = "schedule"
		return r.schedule(ctx, req, cfg)
	}

	if intent := view.Classify(text); intent.Valid || intent.Suspicious {
		req.Route = "view"
		res := r.viewer.Handle(ctx, req.OwnerID, text)
		if res.Err != nil {
			req.Logger.Warn("listing failed", logx.Err(res.Err))
		}
		return r.reply(ctx, req.Chat, view.Reply(res), nil)
	}

	if strings.HasPrefix(text, "/") {
		req.Route = "unknown"
		return r.reply(ctx, req.Chat, unknownCommandText, nil)
	}
	req.Route = "natural"
	return r.schedule(ctx, req, cfg)
}

func (r *Router) schedule(ctx context.Context, req *Request, cfg Config) error {
	received := req.Update.Message.Time
	if received.IsZero() {
		received = time.Now()
	}
	o := r.scheduler.Handle(ctx, schedule.Request{OwnerID: req.OwnerID, Text: req.Text, ReceivedAt: received})
	req.Outcome = string(o.Kind)
	if o.Kind == schedule.OutcomeInternal {
		req.Logger.Error("scheduling failed", logx.String("stage", string(o.Stage)), logx.Err(o.Err))
	}
	return r.reply(ctx, req.Chat, schedule.Catalog{ZoneLabel: cfg.ZoneLabel}.Reply(o), nil)
}

func (r *Router) reply(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) error {
	if err := r.adapter.SendText(ctx, to, text, opt); err != nil {
		r.log.Warn("reply failed", logx.Int64("chat_id", to.ChatID), logx.Err(err))
	}
	return nil
}

// commandWord returns the lower-cased slash command without the bot
// suffix, or "" when text is not a slash command.
func commandWord(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	word, _, _ := strings.Cut(strings.Fields(text)[0][1:], "@")
	return strings.ToLower(word)
}
