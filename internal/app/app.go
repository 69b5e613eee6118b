// Package app wires storage, tenant sessions, the broadcast dispatcher and
// the trigger API into one process.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"funnelbot/internal/config"
	"funnelbot/internal/httpapi"
	rtsup "funnelbot/internal/runtime/supervisor"
	"funnelbot/internal/services/broadcast"
	"funnelbot/internal/services/content"
	"funnelbot/internal/storage"
	"funnelbot/internal/tenant"
	logx "funnelbot/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service

	store   storage.Store
	reg     *tenant.Registry
	tenants *tenant.Manager
	bc      *broadcast.Service
	http    *httpapi.Server
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(cfg.LogConfig())
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	store, err := storage.Open(mapStorageConfig(cfg), log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	log.Info("storage opened", logx.String("driver", cfg.Storage.Driver), logx.String("path", cfg.Storage.Path))

	s := cfg.Resolved()
	reg := tenant.NewRegistry()
	logSvc.SetAlertRoute(reg.NotifyAdmin)
	deps := tenant.Deps{
		Store:             store,
		Cache:             content.NewCache(store, log.With(logx.String("comp", "media_cache"))),
		Delivery:          mapDeliveryOptions(cfg),
		SchedulerInterval: s.SchedulerInterval,
	}
	tenants := tenant.NewManager(store, reg, telegramFactory(cfg, log), deps, s.TenantsPoll, log)
	bc := broadcast.New(store, reg, mapBroadcastConfig(cfg), log)
	api := httpapi.New(mapHTTPConfig(cfg), bc, store, reg, log)

	return &App{
		cfgm:    cfgm,
		log:     log.With(logx.String("comp", "app")),
		logs:    logSvc,
		store:   store,
		reg:     reg,
		tenants: tenants,
		bc:      bc,
		http:    api,
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	if err := a.http.Start(a.sup.Context()); err != nil {
		a.sup.Cancel()
		return fmt.Errorf("http api: %w", err)
	}

	a.sup.Go("tenants", a.tenants.Run)

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
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
				a.applyConfig(last, next)
				last = next
			}
		}
	})

	a.sup.Go("config.watch", a.cfgm.Watch)

	a.log.Info("app started")
	return nil
}

// applyConfig hot-applies the sections that support it: logging and
// broadcast pacing.
func (a *App) applyConfig(prev, next *config.Config) {
	a.logs.Apply(next.LogConfig())
	a.bc.Apply(mapBroadcastConfig(next))

	if secs := restartSections(prev, next); len(secs) > 0 {
		a.log.Warn("config changed in sections that need a restart", logx.String("sections", strings.Join(secs, ",")))
	}
	a.log.Info("config reloaded",
		logx.String("log_level", next.Logging.Level),
		logx.Int("broadcast_rate", next.Broadcast.RatePerSec),
	)
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
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

	step("http", 2*time.Second, a.http.Stop)
	step("broadcast", 3*time.Second, a.bc.Stop)
	// tenants.Run stops every session on cancel; waiting on the app
	// supervisor covers it.
	step("supervisor", 6*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}
