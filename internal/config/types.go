package config

// Config is the on-disk configuration (JSON, or YAML coerced to JSON).
//
// All durations are Go duration strings ("15s", "1m"). Secrets may also be
// supplied through the environment, see ApplyEnv.
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Notifier  NotifierConfig  `json:"notifier"`
	Feeds     FeedsConfig     `json:"feeds"`
	Alerts    AlertsConfig    `json:"alerts"`
	HTTP      HTTPConfig      `json:"http"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is the long-polling timeout, e.g. "10s".
	PollTimeout string `json:"poll_timeout"`
	// AdminUserIDs may run /status. Empty means everyone.
	AdminUserIDs []int64 `json:"admin_user_ids,omitempty"`
	// AdminChatID receives forwarded warning logs when logging.admin is enabled.
	AdminChatID int64 `json:"admin_chat_id,omitempty"`
}

type LoggingConfig struct {
	Level   string       `json:"level"`
	Console bool         `json:"console"`
	File    LoggingFile  `json:"file"`
	Admin   LoggingAdmin `json:"admin"`
}

type LoggingFile struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
	Compress   bool   `json:"compress,omitempty"`
}

type LoggingAdmin struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the persistence driver.
//
//	"storage": { "driver": "sqlite", "path": "./alertbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// SchedulerConfig controls triggers and the task engine that runs them.
type SchedulerConfig struct {
	// Timezone is used for daily triggers such as the digest. Empty means local.
	Timezone       string `json:"timezone,omitempty"`
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
	// StartupSpread delays the first run of interval tasks by up to this much.
	StartupSpread string `json:"startup_spread,omitempty"`
}

type NotifierConfig struct {
	RatePerSec  int    `json:"rate_per_sec"`
	Burst       int    `json:"burst,omitempty"`
	SendTimeout string `json:"send_timeout"`
}

type FeedsConfig struct {
	HTTPTimeout string `json:"http_timeout"`

	// RateLimitRetries bounds retries of transient feed failures. Unset
	// means DefaultFeedRetries; an explicit 0 disables retries.
	RateLimitRetries *int   `json:"rate_limit_retries,omitempty"`
	RateLimitBackoff string `json:"rate_limit_backoff"`

	Filings FilingsFeedConfig `json:"filings"`
	News    NewsFeedConfig    `json:"news"`
	Quotes  QuotesFeedConfig  `json:"quotes"`
}

type FilingsFeedConfig struct {
	Enabled   bool   `json:"enabled"`
	URL       string `json:"url,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Referer   string `json:"referer,omitempty"`
}

type NewsFeedConfig struct {
	Enabled  bool   `json:"enabled"`
	BaseURL  string `json:"base_url,omitempty"`
	Query    string `json:"query"`
	Language string `json:"language,omitempty"`
	PageSize int    `json:"page_size,omitempty"`
	APIKey   string `json:"api_key,omitempty"`
}

type QuotesFeedConfig struct {
	BaseURL   string `json:"base_url,omitempty"`
	APIKey    string `json:"api_key,omitempty"`
	RSIPeriod int    `json:"rsi_period,omitempty"`
}

type AlertsConfig struct {
	// PollInterval drives the filing and news dispatch cycle.
	PollInterval      string `json:"poll_interval"`
	PriceInterval     string `json:"price_interval"`
	IndicatorInterval string `json:"indicator_interval"`
	// ColdStartCap bounds fresh items per source when no cursor is stored.
	ColdStartCap int `json:"cold_start_cap"`
	// DigestAt is the daily digest time, "HH:MM" in scheduler.timezone.
	DigestAt string `json:"digest_at"`
}

// HTTPConfig controls the operations endpoint (/healthz, /status, pprof).
type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	Pprof   bool   `json:"pprof,omitempty"`
	// Token, when set, is required as a bearer token on every request.
	Token string `json:"token,omitempty"`
}
