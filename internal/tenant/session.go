// Package tenant runs one bot session per tenant and keeps the set of live
// sessions in step with the tenants table.
package tenant

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"funnelbot/internal/model"
	rtsup "funnelbot/internal/runtime/supervisor"
	"funnelbot/internal/services/content"
	"funnelbot/internal/services/funnel"
	"funnelbot/internal/storage"
	kit "funnelbot/internal/transport"
	logx "funnelbot/pkg/logx"
)

const (
	defaultWorkers   = 4
	updatesQueueSize = 256
)

// Deps are the shared pieces every session is built from.
type Deps struct {
	Store             storage.Store
	Cache             *content.Cache
	Delivery          content.Options
	SchedulerInterval time.Duration
	// Workers is the number of update handlers per session.
	Workers int
}

// Session is one tenant's running bot: adapter, update router and funnel
// scheduler under one supervisor.
type Session struct {
	tenant  model.Tenant
	adapter kit.Adapter
	sender  *content.Sender
	router  *Router
	sched   *funnel.Scheduler
	workers int
	log     logx.Logger

	mu  sync.Mutex
	sup *rtsup.Supervisor
}

func NewSession(t model.Tenant, adapter kit.Adapter, deps Deps, log logx.Logger) *Session {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.Int64("tenant_id", t.ID), logx.String("tenant", t.Name))

	kb := content.NewKeyboards(deps.Store, log)
	sender := content.NewSender(adapter, deps.Cache, kb, deps.Delivery, log)
	workers := deps.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Session{
		tenant:  t,
		adapter: adapter,
		sender:  sender,
		router:  NewRouter(t.ID, deps.Store, kb, adapter, deps.Delivery.ParseMode, log),
		sched:   funnel.New(t.ID, deps.Store, sender, log, funnel.WithInterval(deps.SchedulerInterval)),
		workers: workers,
		log:     log.With(logx.String("comp", "session")),
	}
}

func (s *Session) Tenant() model.Tenant { return s.tenant }

// NotifyAdmin sends text to the tenant's admin chat through the adapter
// directly, bypassing the content sender and its logging. A tenant without
// an admin is a no-op.
func (s *Session) NotifyAdmin(ctx context.Context, text string) error {
	if s.tenant.AdminID == 0 {
		return nil
	}
	_, err := s.adapter.SendText(ctx, kit.ChatTarget{ChatID: s.tenant.AdminID}, text, &kit.SendOptions{DisablePreview: true})
	return err
}

// Send delivers content to r through this session's bot.
func (s *Session) Send(ctx context.Context, r model.Recipient, c model.Content) bool {
	return s.sender.Send(ctx, r, c)
}

// Start launches polling, the update workers and the scheduler. Calling
// Start on a running session is a no-op.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return nil
	}

	sup := rtsup.New(ctx, rtsup.WithLogger(s.log))
	updates := make(chan kit.Update, updatesQueueSize)
	if err := s.adapter.Start(sup.Context(), updates); err != nil {
		sup.Cancel()
		return err
	}

	for i := 0; i < s.workers; i++ {
		sup.GoRestart("router.worker."+strconv.Itoa(i), func(c context.Context) error {
			return s.router.Serve(c, updates)
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithStopOnCleanExit(true),
		)
	}
	sup.GoRestart("funnel.scheduler", s.sched.Run,
		rtsup.WithRestartBackoff(time.Second, 30*time.Second),
		rtsup.WithStopOnCleanExit(true),
	)

	s.sup = sup
	s.log.Info("session started", logx.Int("workers", s.workers))
	return nil
}

// Stop shuts the adapter down first so no new updates arrive, then cancels
// the workers and the scheduler and waits for them.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.mu.Unlock()
	if sup == nil {
		return nil
	}

	if err := s.adapter.Stop(ctx); err != nil {
		s.log.Warn("adapter stop failed", logx.Err(err))
	}
	err := sup.Stop(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		s.log.Warn("session stop timed out")
	}
	s.log.Info("session stopped")
	return err
}
