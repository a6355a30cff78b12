// Package app wires the scheduling bot together and owns its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"schedbot/internal/config"
	"schedbot/internal/conversation"
	"schedbot/internal/dispatch"
	"schedbot/internal/eventbus"
	"schedbot/internal/httpapi"
	rtsup "schedbot/internal/runtime/supervisor"
	"schedbot/internal/schedule"
	"schedbot/internal/storage"
	"schedbot/internal/task/scheduler"
	kit "schedbot/internal/transport"
	"schedbot/internal/transport/logsender"
	telegram "schedbot/internal/transport/telegram/adapter"
	"schedbot/internal/transport/telegram/router"
	"schedbot/internal/view"
	"schedbot/pkg/logx"
)

const dispatchSchedule = "dispatch"

type App struct {
	cfgm *config.Manager
	boot config.Settings

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus
	sup  *rtsup.Supervisor

	store storage.Store
	redis *conversation.Redis

	assistant *schedule.Assistant
	viewer    *view.Service

	adapter *telegram.Adapter
	sender  dispatch.Sender
	router  *router.Router

	worker      *dispatch.Worker
	sched       *scheduler.Service
	dispatching atomic.Bool

	http     http.Handler
	httpSrv  *http.Server
	httpAddr atomic.Value // string

	updates chan kit.Update

	mu      sync.Mutex
	applied config.Settings
}

// New builds every component from the manager's current settings. Nothing
// runs until Start.
func New(ctx context.Context, cfgm *config.Manager) (*App, error) {
	s := cfgm.Current()
	a := &App{cfgm: cfgm, boot: s, applied: s, bus: eventbus.New(), updates: make(chan kit.Update, 256)}
	a.httpAddr.Store("")

	a.logs, a.log = logx.New(mapLogging(s, false), nil)
	cfgm.SetLogger(a.log)
	a.log = a.log.With(logx.Component("app"))

	st, err := storage.Open(ctx, mapStorage(s), a.logs.Logger())
	if err != nil {
		a.logs.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.store = st

	var convs schedule.ConversationStore = st
	if s.Conversation.Driver == "redis" {
		a.redis = conversation.NewRedis(mapRedis(s))
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := a.redis.Ping(pctx)
		cancel()
		if err != nil {
			a.closeEarly()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		convs = a.redis
	}

	opts := mapSchedule(s)
	opts.Bus = a.bus
	handler := schedule.NewHandler(st, opts, a.logs.Logger())
	a.assistant = schedule.NewAssistant(handler, convs, s.Conversation.TTL, a.logs.Logger())
	a.viewer = view.NewService(st, st, mapView(s), a.logs.Logger())

	if s.Telegram.Token != "" {
		ad, err := telegram.New(mapAdapter(s), a.logs.Logger())
		if err != nil {
			a.closeEarly()
			return nil, fmt.Errorf("telegram: %w", err)
		}
		a.adapter = ad
		a.logs.SetNotifier(ad)
		a.logs.Apply(mapLogging(s, true))
		a.router = router.New(mapRouter(s), ad, a.assistant, a.viewer, a.logs.Logger())
	}

	if s.Transport.Driver == "telegram" && a.adapter != nil {
		a.sender = a.adapter
	} else {
		a.sender = logsender.New(a.logs.Logger(), 100)
	}

	a.worker = dispatch.NewWorker(st, a.sender, mapDispatch(s), a.bus, a.logs.Logger())
	if _, shared := st.(storage.DispatchLocker); !shared && a.redis != nil {
		a.worker.SetLocker(a.redis)
	}

	a.sched = scheduler.New(mapScheduler(s), a.logs.Logger())
	if s.Dispatch.Enabled {
		if _, err := a.sched.Add(dispatchSchedule, s.Dispatch.Schedule, s.Dispatch.Timeout, a.scheduledTick); err != nil {
			a.closeEarly()
			return nil, fmt.Errorf("dispatch.schedule: %w", err)
		}
	}

	a.http = httpapi.NewRouter(httpapi.Deps{
		Scheduler:   a.assistant,
		Pager:       a.viewer,
		RunDispatch: a.manualTick,
		Health:      a.Health,
		ZoneLabel:   s.Scheduling.ZoneLabel,
		PageSize:    s.Scheduling.PageSize,
		CORSOrigins: s.HTTP.CORSOrigins,
		Profiler:    s.HTTP.Pprof,
		Log:         a.logs.Logger(),
	})

	a.log.Info("app built",
		logx.String("storage", s.Storage.Driver),
		logx.String("conversation", s.Conversation.Driver),
		logx.String("transport", s.Transport.Driver),
		logx.Bool("telegram", a.adapter != nil),
		logx.Bool("http", s.HTTP.Enabled),
	)
	return a, nil
}

func (a *App) closeEarly() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	a.logs.Close()
}

// Handler is the HTTP surface, usable without Start in tests.
func (a *App) Handler() http.Handler { return a.http }

// HTTPAddr is the bound listener address once Start has run.
func (a *App) HTTPAddr() string { return a.httpAddr.Load().(string) }

// Done is closed when the app context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	run := a.sup.Context()

	if a.s().HTTP.Enabled {
		ln, err := net.Listen("tcp", a.boot.HTTP.Addr)
		if err != nil {
			return fmt.Errorf("http listen: %w", err)
		}
		a.httpAddr.Store(ln.Addr().String())
		a.httpSrv = &http.Server{Handler: a.http, ReadHeaderTimeout: 5 * time.Second}
		a.sup.Go("http.serve", func(context.Context) error {
			if err := a.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		a.log.Info("http listening", logx.String("addr", a.HTTPAddr()))
	}

	if a.adapter != nil {
		if err := a.adapter.Start(run, a.updates); err != nil {
			return err
		}
		a.sup.Go("router.dispatch", func(c context.Context) error {
			return a.router.DispatchLoop(c, a.updates)
		})
		a.sup.Go("router.menu", func(c context.Context) error {
			mctx, cancel := context.WithTimeout(c, 15*time.Second)
			defer cancel()
			if err := a.router.PublishMenu(mctx); err != nil {
				a.log.Warn("menu publish failed", logx.Err(err))
			}
			return nil
		})
	}

	a.sched.Start(run)
	a.watchEvents()

	sub := a.cfgm.Subscribe(4)
	a.sup.Go("config.apply", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return nil
			case next, ok := <-sub:
				if !ok {
					return nil
				}
				a.apply(next)
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error { return a.cfgm.Watch(c) })

	a.log.Info("app started")
	return nil
}

// watchEvents logs bus traffic and tells the operator about failed
// deliveries.
func (a *App) watchEvents() {
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
				if e.Type != eventbus.DispatchFailed || a.adapter == nil {
					continue
				}
				if ev, ok := e.Data.(dispatch.SentEvent); ok {
					a.notifyFailure(c, ev)
				}
			}
		}
	})
}

func (a *App) notifyFailure(ctx context.Context, ev dispatch.SentEvent) {
	reason := ev.Err
	if reason == "" {
		reason = "desconocido"
	}
	text := fmt.Sprintf("Mensaje %s para %s no enviado tras %d intentos: %s", ev.JobID, ev.Recipient, ev.Attempts, reason)
	nctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := a.adapter.NotifyOperator(nctx, text); err != nil {
		a.log.Debug("operator notice failed", logx.Err(err))
	}
}

// tick runs one dispatch pass. Scheduled and manual runs share the guard
// so batches never overlap within a process.
func (a *App) tick(ctx context.Context) (dispatch.Report, error) {
	if !a.dispatching.CompareAndSwap(false, true) {
		return dispatch.Report{}, httpapi.ErrDispatchBusy
	}
	defer a.dispatching.Store(false)
	return a.worker.Tick(ctx)
}

func (a *App) scheduledTick(ctx context.Context) error {
	rep, err := a.tick(ctx)
	if errors.Is(err, httpapi.ErrDispatchBusy) {
		a.log.Debug("dispatch tick skipped; manual run in flight")
		return nil
	}
	if err != nil {
		return err
	}
	if rep.Fetched > 0 {
		a.log.Info("dispatch tick",
			logx.Int("fetched", rep.Fetched),
			logx.Int("sent", rep.Sent),
			logx.Int("failed", rep.Failed),
			logx.Int("store_errors", len(rep.Errors)),
		)
	}
	return nil
}

// manualTick serves the HTTP trigger. It runs under the app context, not
// the request, so a disconnecting client does not cut a batch short.
func (a *App) manualTick(ctx context.Context) (dispatch.Report, error) {
	parent := ctx
	if a.sup != nil {
		parent = a.sup.Context()
	}
	c, cancel := context.WithTimeout(parent, a.s().Dispatch.Timeout)
	defer cancel()
	return a.tick(c)
}

// s returns the last applied settings.
func (a *App) s() config.Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.applied
}

// Health is the JSON document served on /health.
func (a *App) Health() any {
	status := "ok"
	doc := map[string]any{
		"storage":   a.boot.Storage.Driver,
		"transport": a.boot.Transport.Driver,
		"scheduler": a.sched.Snapshot(),
		"time":      time.Now().UTC(),
	}
	if a.sup != nil {
		doc["app"] = a.sup.Snapshot()
		if err := a.sup.Err(); err != nil {
			status = "degraded"
			doc["error"] = err.Error()
		}
	}
	if a.adapter != nil {
		if sup := a.adapter.Supervisor(); sup != nil {
			doc["telegram"] = sup.Snapshot()
		}
	}
	if a.router != nil {
		if sup := a.router.Supervisor(); sup != nil {
			doc["router"] = sup.Snapshot()
		}
	}
	doc["status"] = status
	return doc
}
