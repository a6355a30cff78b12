package app

import (
	"strings"

	"schedbot/internal/config"
	"schedbot/internal/eventbus"
	"schedbot/pkg/logx"
)

// apply fans a reloaded configuration out to the components that support
// live changes. Engines, listeners, credentials and the scheduling grammar
// keep their boot values until restart.
func (a *App) apply(next config.Settings) {
	a.mu.Lock()
	prev := a.applied
	a.applied = next
	a.mu.Unlock()

	if r := config.RequiresRestart(a.boot, next); len(r) > 0 {
		a.log.Warn("config changes need a restart", logx.String("sections", strings.Join(r, ",")))
	}

	a.logs.Apply(mapLogging(next, a.adapter != nil))

	if a.adapter != nil {
		a.adapter.SetRecipients(next.Telegram.Recipients)
	}
	if a.router != nil {
		rc := mapRouter(next)
		rc.Keyword = a.boot.Scheduling.Keyword
		rc.ZoneLabel = a.boot.Scheduling.ZoneLabel
		a.router.Apply(rc)
	}

	a.worker.Apply(mapDispatch(next))
	if a.redis != nil {
		a.redis.SetDispatchTimeout(next.Dispatch.Timeout)
	}
	a.sched.Apply(mapScheduler(next))

	pd, nd := prev.Dispatch, next.Dispatch
	switch {
	case pd.Enabled && !nd.Enabled:
		a.sched.Remove(dispatchSchedule)
		a.log.Info("dispatch disabled via config")
	case nd.Enabled && (!pd.Enabled || pd.Schedule != nd.Schedule || pd.Timeout != nd.Timeout):
		if _, err := a.sched.Add(dispatchSchedule, nd.Schedule, nd.Timeout, a.scheduledTick); err != nil {
			a.log.Warn("dispatch schedule rejected; keeping previous", logx.String("schedule", nd.Schedule), logx.Err(err))
			break
		}
		a.log.Info("dispatch schedule applied", logx.String("schedule", nd.Schedule))
	}

	a.bus.Publish(eventbus.Event{Type: eventbus.ConfigReloaded})
}
