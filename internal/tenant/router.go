package tenant

import (
	"context"
	"errors"
	"strings"
	"time"

	"funnelbot/internal/model"
	"funnelbot/internal/services/content"
	"funnelbot/internal/storage"
	kit "funnelbot/internal/transport"
	logx "funnelbot/pkg/logx"
)

const (
	textWelcome     = "🎉 Добро пожаловать! Вы успешно подписались."
	textWelcomeBack = "👋 С возвращением!"
	textUnblocked   = "🔓 Ваш аккаунт был разблокирован!"
	textHint        = "🤖 Я получил ваше сообщение!\n\nИспользуйте /start для начала работы с ботом."

	answerNotFound = "[X] Button not found"
	answerError    = "[X] Error"

	defaultUpdateTimeout = 30 * time.Second
)

type Enroller interface {
	Enroll(ctx context.Context, tenantID int64, p storage.Profile, at time.Time) (model.Recipient, storage.EnrollOutcome, error)
}

type ButtonResolver interface {
	Resolve(ctx context.Context, tenantID int64, token string) (model.Button, error)
}

// Router handles inbound updates for one tenant: /start enrollment and
// inline button taps.
type Router struct {
	tenantID  int64
	enroll    Enroller
	buttons   ButtonResolver
	tx        kit.Sender
	parseMode string
	now       func() time.Time
	log       logx.Logger

	handle HandlerFunc
}

func NewRouter(tenantID int64, enroll Enroller, buttons ButtonResolver, tx kit.Sender, parseMode string, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{
		tenantID:  tenantID,
		enroll:    enroll,
		buttons:   buttons,
		tx:        tx,
		parseMode: parseMode,
		now:       time.Now,
		log:       log.With(logx.String("comp", "router")),
	}
	r.handle = Chain(r.route,
		MWPanicRecover(r.log),
		MWRequestLog(r.log),
		MWTimeout(defaultUpdateTimeout),
	)
	return r
}

// Serve handles updates until ctx is done or the channel is closed.
func (r *Router) Serve(ctx context.Context, updates <-chan kit.Update) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			_ = r.Handle(ctx, up)
		}
	}
}

// Handle routes one update through the middleware chain.
func (r *Router) Handle(ctx context.Context, up kit.Update) error {
	return r.handle(ctx, up)
}

func (r *Router) route(ctx context.Context, up kit.Update) error {
	switch up.Kind {
	case kit.UpdateMessage:
		if up.Message != nil {
			return r.onMessage(ctx, up.Message)
		}
	case kit.UpdateCallback:
		if up.Callback != nil {
			return r.onCallback(ctx, up.Callback)
		}
	}
	return nil
}

func (r *Router) onMessage(ctx context.Context, m *kit.Message) error {
	if m.IsGroup {
		return nil
	}
	if isStart(m.Text) {
		return r.onStart(ctx, m)
	}
	_, err := r.tx.SendText(ctx, kit.ChatTarget{ChatID: m.ChatID}, textHint, nil)
	return err
}

// isStart matches "/start", "/start payload" and "/start@botname".
func isStart(text string) bool {
	cmd, _, _ := strings.Cut(strings.TrimSpace(text), " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	return strings.EqualFold(cmd, "/start")
}

func (r *Router) onStart(ctx context.Context, m *kit.Message) error {
	rec, outcome, err := r.enroll.Enroll(ctx, r.tenantID, storage.Profile{
		ChatID:    m.ChatID,
		Username:  m.FromUsername,
		FirstName: m.FromFirstName,
		LastName:  m.FromLastName,
	}, r.now())
	if err != nil {
		return err
	}

	reply := textWelcomeBack
	switch outcome {
	case storage.EnrollCreated:
		reply = textWelcome
		r.log.Info("recipient enrolled", logx.Int64("recipient_id", rec.ID), logx.Int64("chat_id", rec.ChatID))
	case storage.EnrollReactivated:
		reply = textUnblocked
		r.log.Info("recipient reactivated", logx.Int64("recipient_id", rec.ID), logx.Int64("chat_id", rec.ChatID))
	}
	_, err = r.tx.SendText(ctx, kit.ChatTarget{ChatID: m.ChatID}, reply, nil)
	return err
}

func (r *Router) onCallback(ctx context.Context, cb *kit.Callback) error {
	if !content.IsToken(cb.Data) {
		return r.tx.AnswerCallback(ctx, cb.ID, "")
	}

	b, err := r.buttons.Resolve(ctx, r.tenantID, cb.Data)
	if err != nil {
		text := answerError
		if errors.Is(err, content.ErrButtonNotFound) {
			text = answerNotFound
		}
		if aerr := r.tx.AnswerCallback(ctx, cb.ID, text); aerr != nil {
			r.log.Debug("answer callback failed", logx.Err(aerr))
		}
		if errors.Is(err, content.ErrButtonNotFound) {
			return nil
		}
		return err
	}

	if b.Action == model.ActionCallback {
		opt := &kit.SendOptions{ParseMode: r.parseMode}
		if _, err := r.tx.SendText(ctx, kit.ChatTarget{ChatID: cb.ChatID}, b.Value, opt); err != nil {
			_ = r.tx.AnswerCallback(ctx, cb.ID, "")
			return err
		}
	}
	r.log.Debug("button pressed",
		logx.String("label", b.Label),
		logx.String("action", string(b.Action)),
		logx.Int64("from_id", cb.FromID),
	)
	return r.tx.AnswerCallback(ctx, cb.ID, "")
}
