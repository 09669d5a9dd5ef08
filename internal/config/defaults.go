package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
)

const (
	DefaultFilingsURL  = "https://www.nseindia.com/api/corporate-announcements?index=equities"
	DefaultNewsBaseURL = "https://newsapi.org"
	DefaultQuotesURL   = "https://www.alphavantage.co"

	// MinPollInterval is the floor for feed polling.
	MinPollInterval = 10 * time.Second

	DefaultFeedRetries = 2
)

// ApplyEnv overlays environment variables. Env wins over the file so secrets
// can stay out of it.
//
//	TG_TOKEN, ALPHAVANTAGE_KEY, NEWSAPI_KEY, POLL_INTERVAL, DIGEST_AT
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if v := strings.TrimSpace(getenv("TG_TOKEN")); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(getenv("ALPHAVANTAGE_KEY")); v != "" {
		cfg.Feeds.Quotes.APIKey = v
	}
	if v := strings.TrimSpace(getenv("NEWSAPI_KEY")); v != "" {
		cfg.Feeds.News.APIKey = v
	}
	if v := strings.TrimSpace(getenv("POLL_INTERVAL")); v != "" {
		cfg.Alerts.PollInterval = v
	}
	if v := strings.TrimSpace(getenv("DIGEST_AT")); v != "" {
		cfg.Alerts.DigestAt = v
	}
}

// ApplyDefaults fills zero values.
func ApplyDefaults(cfg *Config) {
	setStr := func(p *string, def string) {
		if strings.TrimSpace(*p) == "" {
			*p = def
		}
	}
	setInt := func(p *int, def int) {
		if *p <= 0 {
			*p = def
		}
	}

	setStr(&cfg.Telegram.PollTimeout, "10s")
	setStr(&cfg.Logging.Level, "info")

	setStr(&cfg.Storage.Driver, "sqlite")
	setStr(&cfg.Storage.Path, "./alertbot.db")

	setInt(&cfg.Scheduler.Workers, 4)
	setInt(&cfg.Scheduler.QueueSize, 64)
	setInt(&cfg.Scheduler.HistorySize, 100)
	setStr(&cfg.Scheduler.DefaultTimeout, "2m")

	setInt(&cfg.Notifier.RatePerSec, 25)
	setStr(&cfg.Notifier.SendTimeout, "10s")

	setStr(&cfg.Feeds.HTTPTimeout, "10s")
	setStr(&cfg.Feeds.RateLimitBackoff, "2s")
	if cfg.Feeds.RateLimitRetries == nil {
		cfg.Feeds.RateLimitRetries = lo.ToPtr(DefaultFeedRetries)
	}
	setStr(&cfg.Feeds.Filings.URL, DefaultFilingsURL)
	setStr(&cfg.Feeds.Filings.UserAgent, "Mozilla/5.0")
	setStr(&cfg.Feeds.Filings.Referer, "https://www.nseindia.com")
	setStr(&cfg.Feeds.News.BaseURL, DefaultNewsBaseURL)
	setStr(&cfg.Feeds.News.Language, "en")
	setInt(&cfg.Feeds.News.PageSize, 50)
	setStr(&cfg.Feeds.Quotes.BaseURL, DefaultQuotesURL)
	setInt(&cfg.Feeds.Quotes.RSIPeriod, 14)

	setStr(&cfg.Alerts.PollInterval, "15s")
	setStr(&cfg.Alerts.PriceInterval, "1m")
	setStr(&cfg.Alerts.IndicatorInterval, "15m")
	setInt(&cfg.Alerts.ColdStartCap, 20)
	setStr(&cfg.Alerts.DigestAt, "18:00")

	setStr(&cfg.HTTP.Addr, "127.0.0.1:8080")
}

// Validate reports configuration that cannot run. A missing bot token is the
// only fatal omission; provider keys are optional.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token is required (or set TG_TOKEN)"))
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}
	durations := []struct{ path, raw string }{
		{"telegram.poll_timeout", cfg.Telegram.PollTimeout},
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
		{"scheduler.default_timeout", cfg.Scheduler.DefaultTimeout},
		{"scheduler.startup_spread", cfg.Scheduler.StartupSpread},
		{"notifier.send_timeout", cfg.Notifier.SendTimeout},
		{"feeds.http_timeout", cfg.Feeds.HTTPTimeout},
		{"feeds.rate_limit_backoff", cfg.Feeds.RateLimitBackoff},
		{"alerts.poll_interval", cfg.Alerts.PollInterval},
		{"alerts.price_interval", cfg.Alerts.PriceInterval},
		{"alerts.indicator_interval", cfg.Alerts.IndicatorInterval},
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			errs = append(errs, err)
		}
	}
	if _, _, err := ParseClock("alerts.digest_at", cfg.Alerts.DigestAt); err != nil {
		errs = append(errs, err)
	}
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
		}
	}
	if n := cfg.Feeds.RateLimitRetries; n != nil && *n < 0 {
		errs = append(errs, errors.New("feeds.rate_limit_retries must be >= 0"))
	}
	return errors.Join(errs...)
}

// PollInterval returns alerts.poll_interval raised to MinPollInterval.
// The second result reports whether the floor was applied.
func (c *Config) PollInterval() (time.Duration, bool) {
	d, err := ParseDurationOrDefault("alerts.poll_interval", c.Alerts.PollInterval, 15*time.Second)
	if err != nil || d < MinPollInterval {
		return MinPollInterval, true
	}
	return d, false
}

// Location returns the scheduler timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	tz := strings.TrimSpace(c.Scheduler.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Local
	}
	return loc
}
