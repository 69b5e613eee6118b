package adapter

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "funnelbot/internal/runtime/supervisor"
	kit "funnelbot/internal/transport"
	"funnelbot/pkg/logx"
	"funnelbot/pkg/tgui"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

// Adapter is one bot session: a long-poll loop feeding updates into a
// channel and the outbound send calls used by the delivery engine.
type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	out     atomic.Value // stores (chan<- kit.Update)
	runMu   sync.Mutex
	running bool

	sup *rtsup.Supervisor

	// droppedUpdates counts updates dropped because the consumer lagged.
	droppedUpdates uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log, bot: b}
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

// Supervisor returns the adapter's internal supervisor (nil if not started).
func (a *Adapter) Supervisor() *rtsup.Supervisor {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	return a.sup
}

func (a *Adapter) registerHandlers() {
	// Handlers forward to the CURRENT output channel. Start() may swap it.
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Chat == nil {
			return nil
		}
		msg := &kit.Message{
			ID:      m.ID,
			ChatID:  m.Chat.ID,
			Text:    m.Text,
			IsGroup: m.Chat.Type == tele.ChatGroup || m.Chat.Type == tele.ChatSuperGroup,
		}
		if m.Sender != nil {
			msg.FromID = m.Sender.ID
			msg.FromUsername = m.Sender.Username
			msg.FromFirstName = m.Sender.FirstName
			msg.FromLastName = m.Sender.LastName
		}
		a.sendUpdate(kit.Update{Kind: kit.UpdateMessage, Message: msg})
		return nil
	})

	a.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		cb := c.Callback()
		m := c.Message()
		if cb == nil || m == nil || m.Chat == nil {
			return nil
		}
		up := &kit.Callback{
			ID:        cb.ID,
			ChatID:    m.Chat.ID,
			MessageID: m.ID,
			Data:      strings.TrimSpace(cb.Data),
		}
		if cb.Sender != nil {
			up.FromID = cb.Sender.ID
		}
		a.sendUpdate(kit.Update{Kind: kit.UpdateCallback, Callback: up})
		return nil
	})
}

func (a *Adapter) sendUpdate(up kit.Update) {
	out, _ := a.out.Load().(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log.With(logx.String("comp", "telegram.adapter"))))
	sup := a.sup
	a.runMu.Unlock()

	sup.Go0("updates.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		report := func() {
			if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
				a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", cap(out)))
			}
		}
		for {
			select {
			case <-c.Done():
				report()
				return
			case <-ticker.C:
				report()
			}
		}
	})

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})

	// telebot's Start blocks until Stop; restart it if it returns early.
	sup.GoRestart0("telebot.poll", func(c context.Context) {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithPublishFirstError(true),
		rtsup.WithStopOnCleanExit(false),
	)
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning || sup == nil {
		return nil
	}
	sup.Cancel()

	// Keep shutdown snappy even if getUpdates is still waiting.
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		a.log.Debug("telegram stopped with supervisor error", logx.Err(err))
	}
	return nil
}

const telegramTextLimit = 4000

// splitTelegramText splits long messages, preferring newline boundaries and
// avoiding cuts inside HTML tags.
func splitTelegramText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}
		if strings.EqualFold(parseMode, tele.ModeHTML) && end < len(rs) {
			lastOpen, lastClose := -1, -1
			for i := start; i < end; i++ {
				switch rs[i] {
				case '<':
					lastOpen = i
				case '>':
					lastClose = i
				}
			}
			if lastOpen > lastClose && lastOpen > start+1 {
				end = lastOpen
			}
		}

		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}

func sendOptions(opt *kit.SendOptions) *tele.SendOptions {
	so := &tele.SendOptions{}
	if opt == nil {
		return so
	}
	so.ParseMode = opt.ParseMode
	so.DisableWebPagePreview = opt.DisablePreview
	if rm := tgui.FromKeyboard(opt.Keyboard); rm != nil {
		so.ReplyMarkup = rm
	}
	return so
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	parseMode := ""
	if opt != nil {
		parseMode = opt.ParseMode
	}
	chunks := splitTelegramText(text, telegramTextLimit, parseMode)
	chat := &tele.Chat{ID: to.ChatID}

	var first kit.MessageRef
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		so := sendOptions(opt)
		// The keyboard goes on the last chunk so it sits under the full text.
		if i != len(chunks)-1 {
			so.ReplyMarkup = nil
		}
		msg, err := a.bot.Send(chat, chunk, so)
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}
		}
	}
	return first, nil
}

func teleFile(f kit.InputFile) tele.File {
	if f.Ref != "" {
		return tele.File{FileID: f.Ref}
	}
	return tele.FromDisk(f.Path)
}

func (a *Adapter) SendPhoto(ctx context.Context, to kit.ChatTarget, file kit.InputFile, caption string, opt *kit.SendOptions) (kit.MediaRef, error) {
	if err := ctx.Err(); err != nil {
		return kit.MediaRef{}, err
	}
	msg, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, &tele.Photo{File: teleFile(file), Caption: caption}, sendOptions(opt))
	if err != nil {
		return kit.MediaRef{}, err
	}
	return mediaRef(to, msg), nil
}

func (a *Adapter) SendVideo(ctx context.Context, to kit.ChatTarget, file kit.InputFile, caption string, opt *kit.SendOptions) (kit.MediaRef, error) {
	if err := ctx.Err(); err != nil {
		return kit.MediaRef{}, err
	}
	msg, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, &tele.Video{File: teleFile(file), Caption: caption}, sendOptions(opt))
	if err != nil {
		return kit.MediaRef{}, err
	}
	return mediaRef(to, msg), nil
}

func (a *Adapter) SendMediaGroup(ctx context.Context, to kit.ChatTarget, items []kit.MediaItem, opt *kit.SendOptions) ([]kit.MediaRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	album := make(tele.Album, 0, len(items))
	for _, it := range items {
		switch it.Kind {
		case kit.MediaVideo:
			album = append(album, &tele.Video{File: teleFile(it.File), Caption: it.Caption})
		default:
			album = append(album, &tele.Photo{File: teleFile(it.File), Caption: it.Caption})
		}
	}
	so := sendOptions(opt)
	so.ReplyMarkup = nil
	msgs, err := a.bot.SendAlbum(&tele.Chat{ID: to.ChatID}, album, so)
	if err != nil {
		return nil, err
	}
	refs := make([]kit.MediaRef, 0, len(msgs))
	for i := range msgs {
		refs = append(refs, mediaRef(to, &msgs[i]))
	}
	return refs, nil
}

func mediaRef(to kit.ChatTarget, msg *tele.Message) kit.MediaRef {
	ref := kit.MediaRef{MessageRef: kit.MessageRef{ChatID: to.ChatID}}
	if msg == nil {
		return ref
	}
	ref.MessageID = msg.ID
	switch {
	case msg.Photo != nil:
		ref.FileID = msg.Photo.FileID
	case msg.Video != nil:
		ref.FileID = msg.Video.FileID
	}
	return ref
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text})
}

var _ kit.Adapter = (*Adapter)(nil)
