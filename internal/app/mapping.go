package app

import (
	"funnelbot/internal/config"
	"funnelbot/internal/httpapi"
	"funnelbot/internal/model"
	"funnelbot/internal/services/broadcast"
	"funnelbot/internal/services/content"
	"funnelbot/internal/storage"
	"funnelbot/internal/tenant"
	kit "funnelbot/internal/transport"
	telegram "funnelbot/internal/transport/telegram/adapter"
	logx "funnelbot/pkg/logx"
)

func mapStorageConfig(cfg *config.Config) storage.Config {
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: cfg.Resolved().BusyTimeout,
	}
}

func mapDeliveryOptions(cfg *config.Config) content.Options {
	return content.Options{
		MediaDir:            cfg.Delivery.MediaDir,
		ParseMode:           cfg.Delivery.ParseMode,
		AlbumKeyboardPrompt: cfg.Delivery.AlbumKeyboardPrompt,
	}
}

func mapBroadcastConfig(cfg *config.Config) broadcast.Config {
	return broadcast.Config{RatePerSec: cfg.Broadcast.RatePerSec, Burst: cfg.Broadcast.Burst}
}

func mapHTTPConfig(cfg *config.Config) httpapi.Config {
	s := cfg.Resolved()
	return httpapi.Config{
		Addr:         cfg.HTTP.Addr,
		Token:        cfg.HTTP.Token,
		ReadTimeout:  s.HTTPReadTimeout,
		WriteTimeout: s.HTTPWriteTimeout,
		Pprof:        cfg.HTTP.Pprof,
	}
}

// telegramFactory builds a long-poll Telegram adapter per tenant token.
func telegramFactory(cfg *config.Config, log logx.Logger) tenant.AdapterFactory {
	poll := cfg.Resolved().PollTimeout
	return func(t model.Tenant) (kit.Adapter, error) {
		return telegram.New(telegram.Config{Token: t.BotToken, PollTimeout: poll},
			log.With(logx.String("comp", "telegram"), logx.Int64("tenant_id", t.ID)))
	}
}

// restartSections lists config sections whose changes only take effect
// after a restart.
func restartSections(prev, next *config.Config) []string {
	if prev == nil || next == nil {
		return nil
	}
	var out []string
	if prev.Storage != next.Storage {
		out = append(out, "storage")
	}
	if prev.HTTP != next.HTTP {
		out = append(out, "http")
	}
	if prev.Telegram != next.Telegram {
		out = append(out, "telegram")
	}
	if prev.Scheduler != next.Scheduler {
		out = append(out, "scheduler")
	}
	if prev.Tenants != next.Tenants {
		out = append(out, "tenants")
	}
	if prev.Delivery != next.Delivery {
		out = append(out, "delivery")
	}
	return out
}
