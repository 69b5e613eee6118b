// Package funnel advances subscribers through a tenant's timed step sequence.
package funnel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"funnelbot/internal/model"
	"funnelbot/internal/storage"
	logx "funnelbot/pkg/logx"
)

const DefaultInterval = 5 * time.Second

// commitTimeout bounds the progress write after a confirmed send. The write
// outlives ctx so a shutdown landing mid-send still records the delivery.
const commitTimeout = 5 * time.Second

type Store interface {
	ActiveRecipients(ctx context.Context, tenantID int64) ([]model.Recipient, error)
	StepByIndex(ctx context.Context, tenantID int64, index int) (model.Step, error)
	CommitProgress(ctx context.Context, recipientID int64, cursor int, at time.Time) (bool, error)
}

// Deliverer sends content and reports whether the platform confirmed it.
type Deliverer interface {
	Send(ctx context.Context, r model.Recipient, c model.Content) bool
}

type Scheduler struct {
	tenantID int64
	store    Store
	sender   Deliverer
	interval time.Duration
	now      func() time.Time
	log      logx.Logger
}

type Option func(*Scheduler)

func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

func New(tenantID int64, store Store, sender Deliverer, log logx.Logger, opts ...Option) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Scheduler{
		tenantID: tenantID,
		store:    store,
		sender:   sender,
		interval: DefaultInterval,
		now:      time.Now,
		log:      log.With(logx.String("comp", "funnel"), logx.Int64("tenant_id", tenantID)),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// TickStats summarizes one pass.
type TickStats struct {
	Recipients int
	Sent       int
	Failed     int
	NotDue     int
	NoStep     int
}

// Tick makes one pass over the tenant's active recipients, sending each the
// next step once its delay has elapsed. Per-recipient failures are logged
// and skipped; only a failed recipient load is returned.
func (s *Scheduler) Tick(ctx context.Context) (TickStats, error) {
	var st TickStats
	rs, err := s.store.ActiveRecipients(ctx, s.tenantID)
	if err != nil {
		return st, fmt.Errorf("load recipients: %w", err)
	}
	st.Recipients = len(rs)
	for _, r := range rs {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		s.advance(ctx, r, &st)
	}
	if st.Sent > 0 || st.Failed > 0 {
		s.log.Info("tick done",
			logx.Int("recipients", st.Recipients),
			logx.Int("sent", st.Sent),
			logx.Int("failed", st.Failed),
		)
	}
	return st, nil
}

func (s *Scheduler) advance(ctx context.Context, r model.Recipient, st *TickStats) {
	target := r.Cursor + 1
	step, err := s.store.StepByIndex(ctx, s.tenantID, target)
	if errors.Is(err, storage.ErrNotFound) {
		st.NoStep++
		return
	}
	if err != nil {
		st.Failed++
		s.log.Warn("step lookup failed", logx.Int64("recipient_id", r.ID), logx.Int("step_index", target), logx.Err(err))
		return
	}

	ref := r.EnrolledAt
	if r.Cursor > 0 && r.LastAdvance != nil {
		ref = *r.LastAdvance
	}
	now := s.now()
	if now.Sub(ref) < step.Delay {
		st.NotDue++
		return
	}

	if !s.sender.Send(ctx, r, step.Content) {
		st.Failed++
		return
	}

	// At-least-once: a crash before this commit re-sends the step.
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	advanced, err := s.store.CommitProgress(cctx, r.ID, target, now)
	cancel()
	if err != nil {
		st.Failed++
		s.log.Error("commit progress failed", logx.Int64("recipient_id", r.ID), logx.Int("cursor", target), logx.Err(err))
		return
	}
	st.Sent++
	if !advanced {
		s.log.Debug("cursor already advanced", logx.Int64("recipient_id", r.ID), logx.Int("cursor", target))
	}
}

// Run ticks every interval until ctx is done. Ticks never overlap; a slow
// tick makes the next one skip.
func (s *Scheduler) Run(ctx context.Context) error {
	cl := cronLogger{log: s.log}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	_, err := c.AddFunc("@every "+s.interval.String(), func() {
		if _, err := s.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Warn("tick failed", logx.Err(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule tick: %w", err)
	}

	s.log.Info("scheduler started", logx.Duration("interval", s.interval))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	s.log.Info("scheduler stopped")
	return nil
}
