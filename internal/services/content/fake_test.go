package content

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"funnelbot/internal/model"
	"funnelbot/internal/storage"
	kit "funnelbot/internal/transport"
)

type call struct {
	Method   string
	ChatID   int64
	Text     string
	Files    []kit.InputFile
	Captions  []string
	Keyboard  *kit.Keyboard
	ParseMode string
}

// fakeTx records outbound calls and hands out sequential file ids.
type fakeTx struct {
	mu     sync.Mutex
	calls  []call
	nextID int
	fail   map[string]error
}

func (f *fakeTx) failOn(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail == nil {
		f.fail = map[string]error{}
	}
	f.fail[method] = err
}

func (f *fakeTx) record(c call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[c.Method]; err != nil {
		return err
	}
	f.calls = append(f.calls, c)
	return nil
}

func (f *fakeTx) fileID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return fmt.Sprintf("file-%d", f.nextID)
}

func (f *fakeTx) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeTx) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	c := call{Method: "text", ChatID: to.ChatID, Text: text}
	if opt != nil {
		c.Keyboard = opt.Keyboard
		c.ParseMode = opt.ParseMode
	}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: 1}, f.record(c)
}

func (f *fakeTx) sendMedia(method string, to kit.ChatTarget, file kit.InputFile, caption string, opt *kit.SendOptions) (kit.MediaRef, error) {
	c := call{Method: method, ChatID: to.ChatID, Files: []kit.InputFile{file}, Captions: []string{caption}}
	if opt != nil {
		c.Keyboard = opt.Keyboard
		c.ParseMode = opt.ParseMode
	}
	if err := f.record(c); err != nil {
		return kit.MediaRef{}, err
	}
	id := file.Ref
	if id == "" {
		id = f.fileID()
	}
	return kit.MediaRef{MessageRef: kit.MessageRef{ChatID: to.ChatID, MessageID: 1}, FileID: id}, nil
}

func (f *fakeTx) SendPhoto(ctx context.Context, to kit.ChatTarget, file kit.InputFile, caption string, opt *kit.SendOptions) (kit.MediaRef, error) {
	return f.sendMedia("photo", to, file, caption, opt)
}

func (f *fakeTx) SendVideo(ctx context.Context, to kit.ChatTarget, file kit.InputFile, caption string, opt *kit.SendOptions) (kit.MediaRef, error) {
	return f.sendMedia("video", to, file, caption, opt)
}

func (f *fakeTx) SendMediaGroup(ctx context.Context, to kit.ChatTarget, items []kit.MediaItem, opt *kit.SendOptions) ([]kit.MediaRef, error) {
	c := call{Method: "group", ChatID: to.ChatID}
	if opt != nil {
		c.Keyboard = opt.Keyboard
		c.ParseMode = opt.ParseMode
	}
	for _, it := range items {
		c.Files = append(c.Files, it.File)
		c.Captions = append(c.Captions, it.Caption)
	}
	if err := f.record(c); err != nil {
		return nil, err
	}
	refs := make([]kit.MediaRef, len(items))
	for i, it := range items {
		id := it.File.Ref
		if id == "" {
			id = f.fileID()
		}
		refs[i] = kit.MediaRef{MessageRef: kit.MessageRef{ChatID: to.ChatID, MessageID: i + 1}, FileID: id}
	}
	return refs, nil
}

func (f *fakeTx) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	return f.record(call{Method: "answer", Text: text})
}

// memStore is an in-memory RefStore and StepSource.
type memStore struct {
	mu    sync.Mutex
	refs  map[int64]string
	steps map[int64]model.Step
	err   error
}

func newMemStore() *memStore {
	return &memStore{refs: map[int64]string{}, steps: map[int64]model.Step{}}
}

func (m *memStore) AssetRef(ctx context.Context, id int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	ref, ok := m.refs[id]
	if !ok {
		return "", storage.ErrNotFound
	}
	return ref, nil
}

func (m *memStore) SetAssetRef(ctx context.Context, id int64, ref string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if m.refs[id] != "" {
		return false, nil
	}
	m.refs[id] = ref
	return true, nil
}

func (m *memStore) Step(ctx context.Context, id int64) (model.Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.steps[id]
	if !ok {
		return model.Step{}, storage.ErrNotFound
	}
	return st, nil
}

var errPlatform = errors.New("platform down")
