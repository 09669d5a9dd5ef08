// Package app wires configuration, transport, storage, feeds and the alert
// engine into one process and owns its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"stockalert/internal/alert"
	"stockalert/internal/bot"
	"stockalert/internal/config"
	"stockalert/internal/eventbus"
	"stockalert/internal/feed"
	"stockalert/internal/notifier"
	"stockalert/internal/observability/httpserver"
	"stockalert/internal/runtime/supervisor"
	"stockalert/internal/storage"
	"stockalert/internal/task/engine"
	"stockalert/internal/task/scheduler"
	kit "stockalert/internal/transport"
	telegram "stockalert/internal/transport/telegram/adapter"
	"stockalert/internal/transport/telegram/router"
	logx "stockalert/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter *telegram.Adapter
	notif   *notifier.Service
	engine  *engine.Service
	sched   *scheduler.Service
	ops     *httpserver.Service

	svc  *alert.Service
	cmdm *router.CommandManager
	bot  *bot.Bot

	updates   chan kit.Update
	startedAt time.Time
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, logx.NewConsole(cfg.Logging.Level).With(logx.Component("telegram")))
	if err != nil {
		return nil, err
	}

	logSvc, root := logx.New(mapLogConfig(cfg), func(ctx context.Context, chatID int64, text string) error {
		_, err := ad.SendText(ctx, kit.ChatTarget{ChatID: chatID}, text, nil)
		return err
	})
	log := root.With(logx.Component("app"))

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, root.With(logx.Component("storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", sc.Driver), logx.String("path", sc.Path))

	bus := eventbus.New()

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	notif := notifier.New(ncfg, ad, root.With(logx.Component("notifier")), bus)

	fcc, err := mapFeedClientConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	feedLog := root.With(logx.Component("feed"))
	sources, quotes := buildFeeds(cfg, feed.NewClient(fcc, feedLog), feedLog)

	svc := alert.New(alert.Deps{
		Store:   store,
		Sources: sources,
		Quotes:  quotes,
		Out:     notif,
		Bus:     bus,
		Log:     root,
	}, alert.Config{
		ColdStartCap: cfg.Alerts.ColdStartCap,
		Location:     cfg.Location(),
	})

	ecfg, err := mapEngineConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	eng := engine.New(ecfg, root.With(logx.Component("taskengine")), bus)
	sched := scheduler.New(mapSchedulerConfig(cfg), eng, root.With(logx.Component("scheduler")))

	a := &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		adapter: ad,
		notif:   notif,
		engine:  eng,
		sched:   sched,
		svc:     svc,
		cmdm:    router.NewCommandManager(root.With(logx.Component("commands")), ad, cfg.Telegram.AdminUserIDs, 4),
		bot:     bot.New(svc, root),
		updates: make(chan kit.Update, 256),
	}
	a.ops = httpserver.New(mapHTTPConfig(cfg), root, a.status, a.health)
	return a, nil
}

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
	a.startedAt = time.Now()
	a.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	run := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.Component("config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return validateReload(cfg) })

	if err := a.svc.Load(run); err != nil {
		return fmt.Errorf("load subscriptions: %w", err)
	}

	cfg := a.cfgm.Get()
	iv, err := mapIntervals(cfg)
	if err != nil {
		return err
	}

	a.engine.Start(run)
	if err := registerJobs(a.sched, a.svc, iv, a.log); err != nil {
		return err
	}
	a.sched.Start()

	if err := a.adapter.Start(run, a.updates); err != nil {
		return err
	}
	a.cmdm.SetRegistry(run, a.bot.Commands(), a.bot.Callbacks())
	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})
	a.sup.GoRestart("status.board", func(c context.Context) error {
		return a.svc.Board().Run(c, a.bus)
	})

	a.ops.Start(run)

	a.sup.Go0("config.reload", a.reloadLoop)
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go("systemd.watchdog", func(c context.Context) error {
		return watchdog(c, a.log, func() bool { return a.health(c) == nil })
	})

	// First cycle runs now instead of one poll interval after start.
	if err := a.sched.RunNow(jobDispatch); err != nil {
		a.log.Debug("initial dispatch not queued", logx.Err(err))
	}

	sdNotify(a.log, daemon.SdNotifyReady)
	a.log.Info("app started",
		logx.Strings("sources", a.svc.Dispatcher().Sources()),
		logx.Bool("threshold_alerts", a.svc.HasQuotes()),
		logx.Duration("poll", iv.poll),
		logx.String("digest_at", iv.digestAt),
	)
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	sdNotify(a.log, daemon.SdNotifyStopping)
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	a.step(ctx, "scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.step(ctx, "taskengine", 5*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	a.step(ctx, "ops", 1*time.Second, func(c context.Context) error { a.ops.Stop(c); return nil })
	a.step(ctx, "adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	a.step(ctx, "supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	a.step(ctx, "storage", 1*time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}

// step runs one shutdown step bounded by max and the caller's deadline.
// A step that overruns is logged and left behind.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Duration("elapsed", time.Since(start)),
		)
	}
}

// opsStatus is the GET /status body.
type opsStatus struct {
	StartedAt time.Time          `json:"started_at"`
	Uptime    string             `json:"uptime"`
	Alerts    alert.Status       `json:"alerts"`
	Scheduler scheduler.Snapshot `json:"scheduler"`
	Notifier  notifier.Stats     `json:"notifier"`
	Sources   []string           `json:"sources"`
}

func (a *App) status(context.Context) any {
	return opsStatus{
		StartedAt: a.startedAt,
		Uptime:    time.Since(a.startedAt).Truncate(time.Second).String(),
		Alerts:    a.svc.Board().Snapshot(),
		Scheduler: a.sched.Snapshot(),
		Notifier:  a.notif.Stats(),
		Sources:   a.svc.Dispatcher().Sources(),
	}
}

func (a *App) health(context.Context) error {
	if a.sup == nil {
		return errors.New("not started")
	}
	if err := a.sup.Err(); err != nil {
		return err
	}
	if a.sup.Context().Err() != nil {
		return errors.New("stopping")
	}
	return nil
}
