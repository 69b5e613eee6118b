package tenant

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"funnelbot/internal/model"
	"funnelbot/internal/storage"
	kit "funnelbot/internal/transport"
	logx "funnelbot/pkg/logx"
)

type sentText struct {
	chatID int64
	text   string
}

type fakeAdapter struct {
	mu      sync.Mutex
	texts   []sentText
	answers map[string]string
	started bool
	stopped bool
	out     chan<- kit.Update
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{answers: map[string]string{}}
}

func (f *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, sentText{chatID: to.ChatID, text: text})
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.texts)}, nil
}

func (f *fakeAdapter) SendPhoto(ctx context.Context, to kit.ChatTarget, file kit.InputFile, caption string, opt *kit.SendOptions) (kit.MediaRef, error) {
	return kit.MediaRef{FileID: "photo"}, nil
}

func (f *fakeAdapter) SendVideo(ctx context.Context, to kit.ChatTarget, file kit.InputFile, caption string, opt *kit.SendOptions) (kit.MediaRef, error) {
	return kit.MediaRef{FileID: "video"}, nil
}

func (f *fakeAdapter) SendMediaGroup(ctx context.Context, to kit.ChatTarget, items []kit.MediaItem, opt *kit.SendOptions) ([]kit.MediaRef, error) {
	return make([]kit.MediaRef, len(items)), nil
}

func (f *fakeAdapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers[callbackID] = text
	return nil
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started, f.out = true, out
	return nil
}

func (f *fakeAdapter) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	return nil
}

func (f *fakeAdapter) sent() []sentText {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentText(nil), f.texts...)
}

func (f *fakeAdapter) answer(id string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.answers[id]
	return a, ok
}

func openTestStore(t *testing.T) storage.Store {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "tenant.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seedTenant(t *testing.T, st storage.Store, name string) model.Tenant {
	t.Helper()
	tn := model.Tenant{Name: name, BotToken: name + ":token", AdminID: 1}
	id, err := st.CreateTenant(context.Background(), tn)
	if err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	tn.ID = id
	return tn
}
