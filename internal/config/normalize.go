package config

import (
	"errors"
	"strings"
	"time"
)

// Settings are the resolved runtime values derived from Config.
type Settings struct {
	PollTimeout       time.Duration
	BusyTimeout       time.Duration
	SchedulerInterval time.Duration
	TenantsPoll       time.Duration
	HTTPReadTimeout   time.Duration
	HTTPWriteTimeout  time.Duration
}

// Normalize fills defaults in place and validates every duration field.
func (c *Config) Normalize() (Settings, error) {
	var s Settings
	if c == nil {
		return s, errors.New("config is nil")
	}

	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if strings.TrimSpace(c.Storage.Driver) == "" {
		c.Storage.Driver = "sqlite"
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		c.Storage.Path = DefaultStoragePath
	}
	if strings.TrimSpace(c.Delivery.MediaDir) == "" {
		c.Delivery.MediaDir = DefaultMediaDir
	}
	if strings.TrimSpace(c.Delivery.ParseMode) == "" {
		c.Delivery.ParseMode = "HTML"
	}
	if c.Delivery.AlbumKeyboardPrompt == "" {
		c.Delivery.AlbumKeyboardPrompt = DefaultAlbumKeyboardPrompt
	}
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		c.HTTP.Addr = DefaultHTTPAddr
	}
	if c.Broadcast.RatePerSec == 0 {
		c.Broadcast.RatePerSec = DefaultBroadcastRate
	}
	if c.Broadcast.Burst <= 0 {
		c.Broadcast.Burst = 1
	}

	var err error
	if s.PollTimeout, err = ParseDuration("telegram.poll_timeout", c.Telegram.PollTimeout, DefaultPollTimeout); err != nil {
		return s, err
	}
	if s.BusyTimeout, err = ParseDuration("storage.busy_timeout", c.Storage.BusyTimeout, DefaultBusyTimeout); err != nil {
		return s, err
	}
	if s.SchedulerInterval, err = ParseDuration("scheduler.interval", c.Scheduler.Interval, DefaultSchedulerInterval); err != nil {
		return s, err
	}
	if s.TenantsPoll, err = ParseDuration("tenants.poll_interval", c.Tenants.PollInterval, DefaultTenantsPoll); err != nil {
		return s, err
	}
	if s.HTTPReadTimeout, err = ParseDuration("http.read_timeout", c.HTTP.ReadTimeout, 10*time.Second); err != nil {
		return s, err
	}
	if s.HTTPWriteTimeout, err = ParseDuration("http.write_timeout", c.HTTP.WriteTimeout, 10*time.Second); err != nil {
		return s, err
	}
	c.resolved = s
	return s, nil
}
