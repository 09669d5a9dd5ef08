package app

import (
	"testing"
	"time"

	"stockalert/internal/alert"
	"stockalert/internal/config"
	"stockalert/internal/storage"
	"stockalert/internal/task/engine"
	"stockalert/internal/task/scheduler"
	logx "stockalert/pkg/logx"
)

func defaults(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{Telegram: config.TelegramConfig{Token: "x"}}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestMapIntervalsAppliesFloor(t *testing.T) {
	t.Parallel()

	cfg := defaults(t)
	cfg.Alerts.PollInterval = "2s"
	iv, err := mapIntervals(cfg)
	if err != nil {
		t.Fatalf("mapIntervals: %v", err)
	}
	if !iv.floored || iv.poll != config.MinPollInterval {
		t.Fatalf("poll=%v floored=%v", iv.poll, iv.floored)
	}
	if iv.price != time.Minute || iv.indicator != 15*time.Minute || iv.digestAt != "18:00" {
		t.Fatalf("iv=%+v", iv)
	}

	cfg.Alerts.DigestAt = "25:00"
	if _, err := mapIntervals(cfg); err == nil {
		t.Fatalf("expected digest_at error")
	}
}

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()

	cfg := defaults(t)
	sc, err := mapStorageConfig(cfg)
	if err != nil || sc.Driver != "sqlite" || sc.BusyTimeout != 5*time.Second {
		t.Fatalf("sc=%+v err=%v", sc, err)
	}
	cfg.Storage.Path = ""
	if _, err := mapStorageConfig(cfg); err == nil {
		t.Fatalf("expected missing path error")
	}
	cfg.Storage.Driver = "postgres"
	if _, err := mapStorageConfig(cfg); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestMapLogConfigNeedsAdminChat(t *testing.T) {
	t.Parallel()

	cfg := defaults(t)
	cfg.Logging.Admin.Enabled = true
	if mapLogConfig(cfg).Admin.Enabled {
		t.Fatalf("admin sink enabled without chat id")
	}
	cfg.Telegram.AdminChatID = -100
	if lc := mapLogConfig(cfg); !lc.Admin.Enabled || lc.Admin.ChatID != -100 {
		t.Fatalf("admin=%+v", lc.Admin)
	}
}

func TestBuildFeedsSkipsMissingKeys(t *testing.T) {
	t.Parallel()

	cfg := defaults(t)
	cfg.Feeds.Filings.Enabled = true
	cfg.Feeds.News.Enabled = true
	sources, quotes := buildFeeds(cfg, nil, logx.Nop())
	if len(sources) != 1 || sources[0].ID() != "filings" {
		t.Fatalf("sources=%v", sources)
	}
	if quotes != nil {
		t.Fatalf("quotes enabled without key")
	}

	cfg.Feeds.News.APIKey = "k"
	cfg.Feeds.News.Query = "NSE"
	cfg.Feeds.Quotes.APIKey = "k"
	sources, quotes = buildFeeds(cfg, nil, logx.Nop())
	if len(sources) != 2 || quotes == nil {
		t.Fatalf("sources=%d quotes=%v", len(sources), quotes)
	}
}

func TestRegisterJobs(t *testing.T) {
	t.Parallel()

	eng := engine.New(engine.Config{}, logx.Nop(), nil)
	sched := scheduler.New(scheduler.Config{}, eng, logx.Nop())
	svc := alert.New(alert.Deps{Store: storage.NewMemory()}, alert.Config{})

	iv := intervals{poll: 15 * time.Second, price: time.Minute, indicator: 15 * time.Minute, digestAt: "18:00"}
	if err := registerJobs(sched, svc, iv, logx.Nop()); err != nil {
		t.Fatalf("registerJobs: %v", err)
	}
	names := map[string]bool{}
	for _, s := range sched.Snapshot().Schedules {
		names[s.Name] = true
	}
	if !names[jobDispatch] || !names[jobDigest] || names[jobPrice] || names[jobIndicator] {
		t.Fatalf("schedules=%v", names)
	}
}

func TestValidateReload(t *testing.T) {
	t.Parallel()

	cfg := defaults(t)
	if err := validateReload(cfg); err != nil {
		t.Fatalf("defaults rejected: %v", err)
	}
	cfg.Notifier.SendTimeout = "soon"
	if err := validateReload(cfg); err == nil {
		t.Fatalf("expected bad duration error")
	}
}

func TestCycleTimeout(t *testing.T) {
	t.Parallel()

	for every, want := range map[time.Duration]time.Duration{
		5 * time.Second:  30 * time.Second,
		time.Minute:      3 * time.Minute,
		15 * time.Minute: 10 * time.Minute,
	} {
		if got := cycleTimeout(every); got != want {
			t.Fatalf("cycleTimeout(%v)=%v want %v", every, got, want)
		}
	}
}
