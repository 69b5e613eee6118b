package config

import (
	"time"

	logx "funnelbot/pkg/logx"
)

// Config is the process configuration. Durations are Go duration strings
// (e.g. "500ms", "10s", "1m"); empty values fall back to the defaults
// applied by Normalize.
//
// Every leaf can be overridden from the environment (see env tags).
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Broadcast BroadcastConfig `json:"broadcast"`
	Tenants   TenantsConfig   `json:"tenants"`
	Delivery  DeliveryConfig  `json:"delivery"`
	HTTP      HTTPConfig      `json:"http"`

	resolved Settings
}

type TelegramConfig struct {
	PollTimeout string `json:"poll_timeout" env:"FUNNELBOT_TELEGRAM_POLL_TIMEOUT"`
}

type LoggingConfig struct {
	Level   string        `json:"level" env:"FUNNELBOT_LOG_LEVEL"`
	Console bool          `json:"console" env:"FUNNELBOT_LOG_CONSOLE"`
	File    LoggingFile   `json:"file"`
	Alerts  LoggingAlerts `json:"alerts"`
}

// LoggingAlerts forwards tenant-scoped log events to that tenant's admin
// chat.
//
// Example:
//
//	"alerts": { "enabled": true, "min_level": "error", "rate_per_sec": 1 }
type LoggingAlerts struct {
	Enabled    bool   `json:"enabled" env:"FUNNELBOT_LOG_ALERTS_ENABLED"`
	MinLevel   string `json:"min_level,omitempty" env:"FUNNELBOT_LOG_ALERTS_MIN_LEVEL"`
	RatePerSec int    `json:"rate_per_sec,omitempty" env:"FUNNELBOT_LOG_ALERTS_RATE"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled" env:"FUNNELBOT_LOG_FILE_ENABLED"`
	Path    string `json:"path" env:"FUNNELBOT_LOG_FILE_PATH"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/funnelbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver" env:"FUNNELBOT_STORAGE_DRIVER"`
	Path        string `json:"path" env:"FUNNELBOT_STORAGE_PATH"`
	BusyTimeout string `json:"busy_timeout,omitempty" env:"FUNNELBOT_STORAGE_BUSY_TIMEOUT"`
}

// SchedulerConfig controls the funnel tick.
type SchedulerConfig struct {
	Interval string `json:"interval" env:"FUNNELBOT_SCHEDULER_INTERVAL"`
}

// BroadcastConfig paces broadcast runs. RatePerSec <= 0 disables pacing.
type BroadcastConfig struct {
	RatePerSec int `json:"rate_per_sec" env:"FUNNELBOT_BROADCAST_RATE_PER_SEC"`
	Burst      int `json:"burst,omitempty" env:"FUNNELBOT_BROADCAST_BURST"`
}

// TenantsConfig controls how often the tenant table is re-read.
type TenantsConfig struct {
	PollInterval string `json:"poll_interval" env:"FUNNELBOT_TENANTS_POLL_INTERVAL"`
}

// DeliveryConfig controls how content is rendered.
//
// MediaDir is the root that asset storage paths are resolved against.
// AlbumKeyboardPrompt is the text of the trailing message that carries an
// album's keyboard.
type DeliveryConfig struct {
	MediaDir            string `json:"media_dir" env:"FUNNELBOT_MEDIA_DIR"`
	ParseMode           string `json:"parse_mode,omitempty" env:"FUNNELBOT_PARSE_MODE"`
	AlbumKeyboardPrompt string `json:"album_keyboard_prompt,omitempty" env:"FUNNELBOT_ALBUM_KEYBOARD_PROMPT"`
}

// HTTPConfig controls the trigger API.
//
// Security note: prefer binding to localhost; set Token when the listener is
// reachable from other hosts.
type HTTPConfig struct {
	Addr         string `json:"addr" env:"FUNNELBOT_HTTP_ADDR"`
	Token        string `json:"token,omitempty" env:"FUNNELBOT_HTTP_TOKEN"`
	ReadTimeout  string `json:"read_timeout,omitempty" env:"FUNNELBOT_HTTP_READ_TIMEOUT"`
	WriteTimeout string `json:"write_timeout,omitempty" env:"FUNNELBOT_HTTP_WRITE_TIMEOUT"`
	Pprof        bool   `json:"pprof,omitempty" env:"FUNNELBOT_HTTP_PPROF"`
}

const (
	DefaultStoragePath         = "./data/funnelbot.db"
	DefaultMediaDir            = "./media"
	DefaultAlbumKeyboardPrompt = "⬇️ Выберите действие:"
	DefaultHTTPAddr            = "127.0.0.1:8080"

	DefaultSchedulerInterval = 5 * time.Second
	DefaultTenantsPoll       = 10 * time.Second
	DefaultPollTimeout       = 10 * time.Second
	DefaultBusyTimeout       = 5 * time.Second
	DefaultBroadcastRate     = 20
)

// Resolved returns the values computed by the last successful Normalize.
func (c *Config) Resolved() Settings { return c.resolved }

// LogConfig maps the logging section onto the logx service config.
func (c *Config) LogConfig() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File:    logx.FileConfig{Enabled: c.Logging.File.Enabled, Path: c.Logging.File.Path},
		Alerts: logx.AlertConfig{
			Enabled:    c.Logging.Alerts.Enabled,
			MinLevel:   c.Logging.Alerts.MinLevel,
			RatePerSec: c.Logging.Alerts.RatePerSec,
		},
	}
}
