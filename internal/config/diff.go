package config

import (
	"reflect"

	logx "stockalert/pkg/logx"
)

// SummarizeConfigChange lists changed top-level sections and safe log fields.
// Secrets (tokens, API keys) are reported only as set/unset.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	var changed []string
	var attrs []logx.Field

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
			logx.Bool("logging.admin", newCfg.Logging.Admin.Enabled),
		)
	}
	if !reflect.DeepEqual(oldCfg.Alerts, newCfg.Alerts) {
		changed = append(changed, "alerts")
		attrs = append(attrs,
			logx.String("alerts.poll_interval", newCfg.Alerts.PollInterval),
			logx.String("alerts.price_interval", newCfg.Alerts.PriceInterval),
			logx.String("alerts.digest_at", newCfg.Alerts.DigestAt),
		)
	}
	if !reflect.DeepEqual(oldCfg.Feeds, newCfg.Feeds) {
		changed = append(changed, "feeds")
		attrs = append(attrs,
			logx.Bool("feeds.filings", newCfg.Feeds.Filings.Enabled),
			logx.Bool("feeds.news", newCfg.Feeds.News.Enabled),
			logx.Bool("feeds.news_key_set", newCfg.Feeds.News.APIKey != ""),
			logx.Bool("feeds.quotes_key_set", newCfg.Feeds.Quotes.APIKey != ""),
		)
	}
	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		changed = append(changed, "scheduler")
		attrs = append(attrs, logx.String("scheduler.timezone", newCfg.Scheduler.Timezone))
	}
	if !reflect.DeepEqual(oldCfg.Notifier, newCfg.Notifier) {
		changed = append(changed, "notifier")
		attrs = append(attrs, logx.Int("notifier.rate_per_sec", newCfg.Notifier.RatePerSec))
	}
	if oldCfg.Telegram.Token != newCfg.Telegram.Token || oldCfg.Telegram.PollTimeout != newCfg.Telegram.PollTimeout {
		changed = append(changed, "telegram")
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
	}
	if !reflect.DeepEqual(oldCfg.HTTP, newCfg.HTTP) {
		changed = append(changed, "http")
		attrs = append(attrs, logx.Bool("http.enabled", newCfg.HTTP.Enabled), logx.String("http.addr", newCfg.HTTP.Addr))
	}
	return changed, attrs
}

// RequiresRestart reports sections that are read only at startup.
func RequiresRestart(changed []string) []string {
	var out []string
	for _, s := range changed {
		switch s {
		case "telegram", "storage", "feeds":
			out = append(out, s)
		}
	}
	return out
}
