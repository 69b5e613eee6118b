package tenant

import (
	"context"
	"errors"
	"strings"
	"time"

	"funnelbot/internal/model"
	kit "funnelbot/internal/transport"
	logx "funnelbot/pkg/logx"
)

const (
	DefaultPollInterval = 10 * time.Second
	stopTimeout         = 5 * time.Second
)

type TenantSource interface {
	Tenants(ctx context.Context) ([]model.Tenant, error)
}

// AdapterFactory builds the platform adapter for a tenant's bot token.
type AdapterFactory func(t model.Tenant) (kit.Adapter, error)

// Manager keeps the registry in step with the tenants table: sessions are
// started for new tenants, restarted when the token changes and stopped when
// the tenant disappears.
type Manager struct {
	src      TenantSource
	reg      *Registry
	factory  AdapterFactory
	deps     Deps
	interval time.Duration
	log      logx.Logger
}

func NewManager(src TenantSource, reg *Registry, factory AdapterFactory, deps Deps, interval time.Duration, log logx.Logger) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Manager{
		src:      src,
		reg:      reg,
		factory:  factory,
		deps:     deps,
		interval: interval,
		log:      log.With(logx.String("comp", "tenants")),
	}
}

// Run syncs immediately and then on every poll interval. On ctx cancel it
// stops every session before returning.
func (m *Manager) Run(ctx context.Context) error {
	m.log.Info("tenant manager started", logx.Duration("interval", m.interval))
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
		defer cancel()
		m.StopAll(sctx)
		m.log.Info("tenant manager stopped")
	}()

	if err := m.Sync(ctx); err != nil && ctx.Err() == nil {
		m.log.Error("tenant sync failed", logx.Err(err))
	}
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := m.Sync(ctx); err != nil && ctx.Err() == nil {
				m.log.Error("tenant sync failed", logx.Err(err))
			}
		}
	}
}

// Sync performs one reconciliation pass. A tenant whose session cannot be
// built is logged and retried on the next pass.
func (m *Manager) Sync(ctx context.Context) error {
	tenants, err := m.src.Tenants(ctx)
	if err != nil {
		return err
	}

	seen := make(map[int64]struct{}, len(tenants))
	for _, t := range tenants {
		if strings.TrimSpace(t.BotToken) == "" {
			m.log.Warn("tenant has no bot token", logx.Int64("tenant_id", t.ID))
			continue
		}
		seen[t.ID] = struct{}{}

		if cur, ok := m.reg.Get(t.ID); ok {
			if cur.Tenant().BotToken == t.BotToken {
				continue
			}
			m.log.Info("tenant token changed, restarting session", logx.Int64("tenant_id", t.ID))
			m.stop(ctx, t.ID)
		}
		if err := m.start(ctx, t); err != nil {
			m.log.Error("start session failed", logx.Int64("tenant_id", t.ID), logx.String("tenant", t.Name), logx.Err(err))
		}
	}

	for _, id := range m.reg.IDs() {
		if _, ok := seen[id]; !ok {
			m.log.Warn("tenant removed, stopping session", logx.Int64("tenant_id", id))
			m.stop(ctx, id)
		}
	}
	return nil
}

func (m *Manager) start(ctx context.Context, t model.Tenant) error {
	if m.factory == nil {
		return errors.New("tenant: no adapter factory")
	}
	a, err := m.factory(t)
	if err != nil {
		return err
	}
	s := NewSession(t, a, m.deps, m.log)
	if err := s.Start(ctx); err != nil {
		return err
	}
	m.reg.Put(t.ID, s)
	return nil
}

func (m *Manager) stop(ctx context.Context, tenantID int64) {
	s := m.reg.Remove(tenantID)
	if s == nil {
		return
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()
	if err := s.Stop(sctx); err != nil {
		m.log.Warn("session stop", logx.Int64("tenant_id", tenantID), logx.Err(err))
	}
}

// StopAll stops and unregisters every session.
func (m *Manager) StopAll(ctx context.Context) {
	for _, id := range m.reg.IDs() {
		m.stop(ctx, id)
	}
}
