package app

import (
	"context"
	"strings"

	"stockalert/internal/config"
	logx "stockalert/pkg/logx"
)

// validateReload rejects a config that parses but cannot be applied live.
func validateReload(cfg *config.Config) error {
	if _, err := mapIntervals(cfg); err != nil {
		return err
	}
	if _, err := mapNotifierConfig(cfg); err != nil {
		return err
	}
	if _, err := mapEngineConfig(cfg); err != nil {
		return err
	}
	if _, err := mapFeedClientConfig(cfg); err != nil {
		return err
	}
	_, err := mapStorageConfig(cfg)
	return err
}

func (a *App) reloadLoop(c context.Context) {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)

	last := a.cfgm.Get()
	for {
		select {
		case <-c.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts; only the newest config is applied.
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					drained = true
				}
			}
			a.apply(c, last, next)
			last = next
		}
	}
}

// apply pushes the live-reloadable parts of next into the running services.
func (a *App) apply(c context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if restart := config.RequiresRestart(sections); len(restart) > 0 {
		a.log.Warn("config sections changed that apply after restart", logx.Strings("sections", restart))
	}

	a.logs.Apply(mapLogConfig(next))
	a.cmdm.SetAdmins(next.Telegram.AdminUserIDs)

	if ncfg, err := mapNotifierConfig(next); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(ncfg)
	}

	oldEng, _ := mapEngineConfig(prev)
	newEng, _ := mapEngineConfig(next)
	if oldEng != newEng {
		a.log.Warn("task engine settings apply after restart")
	}
	a.sched.Apply(mapSchedulerConfig(next))

	a.svc.Dispatcher().SetColdStartCap(next.Alerts.ColdStartCap)
	if iv, err := mapIntervals(next); err != nil {
		a.log.Warn("invalid alert intervals; keeping previous", logx.Err(err))
	} else if err := registerJobs(a.sched, a.svc, iv, a.log); err != nil {
		a.log.Warn("reschedule failed", logx.Err(err))
	}

	a.ops.Reconfigure(c, mapHTTPConfig(next))

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config applied", fields...)
}
