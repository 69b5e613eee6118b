package tenant

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	kit "funnelbot/internal/transport"
	logx "funnelbot/pkg/logx"
)

type HandlerFunc func(ctx context.Context, up kit.Update) error

type Middleware func(next HandlerFunc) HandlerFunc

func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, up kit.Update) error {
			if d <= 0 {
				return next(ctx, up)
			}
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, up)
		}
	}
}

func MWPanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, up kit.Update) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("panic recovered",
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())),
					)
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(ctx, up)
		}
	}
}

func MWRequestLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, up kit.Update) error {
			start := time.Now()
			err := next(ctx, up)
			d := time.Since(start)

			chatID, fromID := updateChat(up)
			fields := []logx.Field{
				logx.String("kind", string(up.Kind)),
				logx.Int64("chat_id", chatID),
				logx.Int64("from_id", fromID),
				logx.Duration("dur", d),
			}
			if err != nil {
				log.Warn("update failed", append(fields, logx.Err(err))...)
				return err
			}
			// Keep INFO useful: short successful updates go to DEBUG.
			if d >= 750*time.Millisecond {
				log.Info("update ok", fields...)
			} else {
				log.Debug("update ok", fields...)
			}
			return nil
		}
	}
}

func updateChat(up kit.Update) (chatID, fromID int64) {
	switch {
	case up.Message != nil:
		return up.Message.ChatID, up.Message.FromID
	case up.Callback != nil:
		return up.Callback.ChatID, up.Callback.FromID
	}
	return 0, 0
}
