package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"stockalert/internal/config"
	"stockalert/internal/feed"
	"stockalert/internal/notifier"
	"stockalert/internal/observability/httpserver"
	"stockalert/internal/storage"
	"stockalert/internal/task/engine"
	"stockalert/internal/task/scheduler"
	logx "stockalert/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled:    cfg.Logging.File.Enabled,
			Path:       cfg.Logging.File.Path,
			MaxSizeMB:  cfg.Logging.File.MaxSizeMB,
			MaxBackups: cfg.Logging.File.MaxBackups,
			MaxAgeDays: cfg.Logging.File.MaxAgeDays,
			Compress:   cfg.Logging.File.Compress,
		},
		Admin: logx.AdminConfig{
			Enabled:    cfg.Logging.Admin.Enabled && cfg.Telegram.AdminChatID != 0,
			ChatID:     cfg.Telegram.AdminChatID,
			MinLevel:   cfg.Logging.Admin.MinLevel,
			RatePerSec: cfg.Logging.Admin.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	switch driver {
	case "memory":
		return storage.Config{Driver: driver}, nil
	case "sqlite", "sqlite3":
		path := strings.TrimSpace(cfg.Storage.Path)
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	}
	return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", cfg.Storage.Driver)
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	timeout, err := config.ParseDurationOrDefault("notifier.send_timeout", cfg.Notifier.SendTimeout, 10*time.Second)
	if err != nil {
		return notifier.Config{}, err
	}
	if cfg.Notifier.RatePerSec < 0 {
		return notifier.Config{}, fmt.Errorf("notifier.rate_per_sec must be >= 0")
	}
	return notifier.Config{
		RatePerSec:  cfg.Notifier.RatePerSec,
		Burst:       cfg.Notifier.Burst,
		SendTimeout: timeout,
	}, nil
}

func mapEngineConfig(cfg *config.Config) (engine.Config, error) {
	timeout, err := config.ParseDurationOrDefault("scheduler.default_timeout", cfg.Scheduler.DefaultTimeout, 2*time.Minute)
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		Workers:        cfg.Scheduler.Workers,
		QueueSize:      cfg.Scheduler.QueueSize,
		DefaultTimeout: timeout,
		HistorySize:    cfg.Scheduler.HistorySize,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	spread, err := config.ParseDurationField("scheduler.startup_spread", cfg.Scheduler.StartupSpread)
	return scheduler.Config{
		Timezone:      cfg.Scheduler.Timezone,
		StartupSpread: err == nil && spread > 0,
	}
}

func mapHTTPConfig(cfg *config.Config) httpserver.Config {
	return httpserver.Config{
		Enabled:      cfg.HTTP.Enabled,
		Addr:         cfg.HTTP.Addr,
		Token:        cfg.HTTP.Token,
		Pprof:        cfg.HTTP.Pprof,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}
}

func mapFeedClientConfig(cfg *config.Config) (feed.ClientConfig, error) {
	timeout, err := config.ParseDurationOrDefault("feeds.http_timeout", cfg.Feeds.HTTPTimeout, 10*time.Second)
	if err != nil {
		return feed.ClientConfig{}, err
	}
	backoff, err := config.ParseDurationOrDefault("feeds.rate_limit_backoff", cfg.Feeds.RateLimitBackoff, 2*time.Second)
	if err != nil {
		return feed.ClientConfig{}, err
	}
	return feed.ClientConfig{
		Timeout:          timeout,
		RateLimitRetries: lo.FromPtrOr(cfg.Feeds.RateLimitRetries, config.DefaultFeedRetries),
		RateLimitBackoff: backoff,
	}, nil
}

// buildFeeds constructs the enabled announcement sources and the quote
// source. A provider without its key is skipped with a log line.
func buildFeeds(cfg *config.Config, client *feed.Client, log logx.Logger) ([]feed.Source, feed.QuoteSource) {
	var sources []feed.Source
	if cfg.Feeds.Filings.Enabled {
		sources = append(sources, feed.NewFilings(feed.FilingsConfig{
			URL:       cfg.Feeds.Filings.URL,
			UserAgent: cfg.Feeds.Filings.UserAgent,
			Referer:   cfg.Feeds.Filings.Referer,
			Location:  cfg.Location(),
		}, client, log))
	}
	if cfg.Feeds.News.Enabled {
		n, err := feed.NewNews(feed.NewsConfig{
			BaseURL:  cfg.Feeds.News.BaseURL,
			APIKey:   cfg.Feeds.News.APIKey,
			Query:    cfg.Feeds.News.Query,
			Language: cfg.Feeds.News.Language,
			PageSize: cfg.Feeds.News.PageSize,
		}, client, log)
		if err != nil {
			log.Info("news feed disabled", logx.Err(err))
		} else {
			sources = append(sources, n)
		}
	}

	var quotes feed.QuoteSource
	av, err := feed.NewAlphaVantage(feed.QuotesConfig{
		BaseURL:   cfg.Feeds.Quotes.BaseURL,
		APIKey:    cfg.Feeds.Quotes.APIKey,
		RSIPeriod: cfg.Feeds.Quotes.RSIPeriod,
	}, client, log)
	if err != nil {
		log.Info("threshold alerts disabled", logx.Err(err))
	} else {
		quotes = av
	}
	return sources, quotes
}

// intervals holds the parsed trigger periods.
type intervals struct {
	poll      time.Duration
	floored   bool
	price     time.Duration
	indicator time.Duration
	digestAt  string
}

func mapIntervals(cfg *config.Config) (intervals, error) {
	var iv intervals
	iv.poll, iv.floored = cfg.PollInterval()
	var err error
	if iv.price, err = config.ParseDurationOrDefault("alerts.price_interval", cfg.Alerts.PriceInterval, time.Minute); err != nil {
		return iv, err
	}
	if iv.indicator, err = config.ParseDurationOrDefault("alerts.indicator_interval", cfg.Alerts.IndicatorInterval, 15*time.Minute); err != nil {
		return iv, err
	}
	iv.digestAt = strings.TrimSpace(cfg.Alerts.DigestAt)
	if _, _, err := config.ParseClock("alerts.digest_at", iv.digestAt); err != nil {
		return iv, err
	}
	return iv, nil
}
