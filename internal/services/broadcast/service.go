package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"funnelbot/internal/model"
	rtsup "funnelbot/internal/runtime/supervisor"
	logx "funnelbot/pkg/logx"
)

var (
	// ErrNoTargets means the recipient snapshot was empty; nothing was changed.
	ErrNoTargets = errors.New("broadcast: no matching recipients")
	// ErrNoSession means the tenant has no live bot session; the campaign is marked failed.
	ErrNoSession = errors.New("broadcast: no live session for tenant")
	// ErrJobRunning means a run for the campaign is already in progress.
	ErrJobRunning = errors.New("broadcast: already running")
)

type Store interface {
	Broadcast(ctx context.Context, id int64) (model.Broadcast, error)
	Recipients(ctx context.Context, tenantID int64, target model.BroadcastTarget) ([]model.Recipient, error)
	SetBroadcastState(ctx context.Context, id int64, st model.BroadcastStatus, sent int) error
	SetBroadcastStatus(ctx context.Context, id int64, st model.BroadcastStatus) error
	IncrementBroadcastSent(ctx context.Context, id int64) error
}

// Deliverer sends content and reports whether the platform confirmed it.
type Deliverer interface {
	Send(ctx context.Context, r model.Recipient, c model.Content) bool
}

// Sessions finds the live deliverer for a tenant.
type Sessions interface {
	Deliverer(tenantID int64) (Deliverer, bool)
}

type Config struct {
	// RatePerSec caps sends per second for each tenant's bot; <= 0 disables
	// pacing.
	RatePerSec int
	Burst      int
}

// persistTimeout bounds bookkeeping writes after a confirmed send. They run
// detached from the run context so a stop keeps the counter accurate.
const persistTimeout = 5 * time.Second

type Service struct {
	store    Store
	sessions Sessions
	log      logx.Logger
	sup      *rtsup.Supervisor

	mu       sync.Mutex
	cfg      Config
	limiters map[int64]*rate.Limiter // tenant id -> pacing for that bot
	running  map[int64]string        // broadcast id -> run id

	statusMu  sync.RWMutex
	status    map[int64]*RunStatus
	statusMax int
	statusTTL time.Duration
}

func New(store Store, sessions Sessions, cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "broadcast"))
	s := &Service{
		store:    store,
		sessions: sessions,
		log:      log,
		sup:      rtsup.New(context.Background(), rtsup.WithLogger(log)),
		running:  map[int64]string{},
		limiters: map[int64]*rate.Limiter{},
		status:   map[int64]*RunStatus{},
	}
	s.Apply(cfg)
	return s
}

// Apply swaps the pacing config; in-flight runs pick it up on their next send.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	clear(s.limiters)
}

// limiterFor returns the tenant's limiter, creating it from the current
// config. Nil means pacing is off.
func (s *Service) limiterFor(tenantID int64) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.RatePerSec <= 0 {
		return nil
	}
	if lim, ok := s.limiters[tenantID]; ok {
		return lim
	}
	lim := rate.NewLimiter(rate.Limit(s.cfg.RatePerSec), max(s.cfg.Burst, 1))
	s.limiters[tenantID] = lim
	return lim
}

// Start launches a run of the campaign against a fresh recipient snapshot.
func (s *Service) Start(ctx context.Context, id int64) (RunStatus, error) {
	return s.launch(ctx, id, "start")
}

// Resend repeats Start: new snapshot, status re-armed, counter reset.
func (s *Service) Resend(ctx context.Context, id int64) (RunStatus, error) {
	return s.launch(ctx, id, "resend")
}

func (s *Service) launch(ctx context.Context, id int64, op string) (RunStatus, error) {
	b, err := s.store.Broadcast(ctx, id)
	if err != nil {
		return RunStatus{}, fmt.Errorf("load broadcast %d: %w", id, err)
	}
	if err := b.Content.Validate(); err != nil {
		return RunStatus{}, err
	}
	// Campaigns carry no keyboard.
	b.Content.Buttons = nil
	b.Content.StepID = 0

	targets, err := s.store.Recipients(ctx, b.TenantID, b.Target)
	if err != nil {
		return RunStatus{}, fmt.Errorf("snapshot recipients: %w", err)
	}
	if len(targets) == 0 {
		return RunStatus{}, ErrNoTargets
	}

	runID := uuid.NewString()
	s.mu.Lock()
	if _, busy := s.running[id]; busy {
		s.mu.Unlock()
		return RunStatus{}, ErrJobRunning
	}
	s.running[id] = runID
	s.mu.Unlock()

	release := func() {
		s.mu.Lock()
		if s.running[id] == runID {
			delete(s.running, id)
		}
		s.mu.Unlock()
	}

	d, ok := s.sessions.Deliverer(b.TenantID)
	if !ok {
		release()
		if err := s.store.SetBroadcastStatus(ctx, id, model.BroadcastFailed); err != nil {
			s.log.Error("mark broadcast failed", logx.Int64("broadcast_id", id), logx.Err(err))
		}
		return RunStatus{}, ErrNoSession
	}
	if err := s.store.SetBroadcastState(ctx, id, model.BroadcastSending, 0); err != nil {
		release()
		return RunStatus{}, fmt.Errorf("arm broadcast %d: %w", id, err)
	}

	st := s.newStatus(runID, b, len(targets))
	s.log.Info("broadcast run started",
		logx.String("op", op),
		logx.String("run_id", runID),
		logx.Int64("broadcast_id", id),
		logx.Int64("tenant_id", b.TenantID),
		logx.Int("total", len(targets)),
	)

	s.sup.Go("broadcast."+runID, func(ctx context.Context) error {
		defer release()
		s.run(ctx, runID, b, targets, d)
		return nil
	})
	return st, nil
}

func (s *Service) run(ctx context.Context, runID string, b model.Broadcast, targets []model.Recipient, d Deliverer) {
	start := time.Now()
	log := s.log.With(logx.String("run_id", runID), logx.Int64("broadcast_id", b.ID), logx.Int64("tenant_id", b.TenantID))
	persist := context.WithoutCancel(ctx)

	for _, r := range targets {
		if err := s.wait(ctx, b.TenantID); err != nil {
			log.Warn("broadcast run interrupted", logx.Err(err), logx.Int("sent", s.sentSoFar(b.ID)))
			s.finish(b.ID, runID, false)
			return
		}
		if !d.Send(ctx, r, b.Content) {
			s.markFail(b.ID, runID, r.ChatID)
			continue
		}
		// Persist per success so readers see progress and a stop keeps the count.
		pctx, cancel := context.WithTimeout(persist, persistTimeout)
		err := s.store.IncrementBroadcastSent(pctx, b.ID)
		cancel()
		if err != nil {
			log.Error("persist sent counter", logx.Int64("recipient_id", r.ID), logx.Err(err))
		}
		s.markSent(b.ID, runID)
	}

	pctx, cancel := context.WithTimeout(persist, persistTimeout)
	err := s.store.SetBroadcastStatus(pctx, b.ID, model.BroadcastCompleted)
	cancel()
	if err != nil {
		log.Error("mark broadcast completed", logx.Err(err))
	}
	s.finish(b.ID, runID, true)

	st, _ := s.Status(b.ID)
	// Alert() sends the summary to the tenant admin when alerts are enabled.
	fields := []logx.Field{
		logx.Alert(),
		logx.Int("total", st.Total),
		logx.Int("sent", st.Sent),
		logx.Int("failed", st.Failed),
		logx.Duration("dur", time.Since(start)),
	}
	if st.Failed > 0 {
		log.Warn("broadcast run finished with failures", fields...)
	} else {
		log.Info("broadcast run finished", fields...)
	}
}

func (s *Service) wait(ctx context.Context, tenantID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lim := s.limiterFor(tenantID)
	if lim == nil {
		return nil
	}
	return lim.Wait(ctx)
}

// Running reports whether a run for the campaign is in progress.
func (s *Service) Running(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[id]
	return ok
}

// Stop cancels in-flight runs and waits for them to exit.
func (s *Service) Stop(ctx context.Context) error {
	err := s.sup.Stop(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		s.log.Warn("broadcast stop timed out")
	}
	return err
}

// Supervisor exposes the run supervisor for health output.
func (s *Service) Supervisor() *rtsup.Supervisor { return s.sup }
