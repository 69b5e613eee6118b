package content

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"funnelbot/internal/model"
	kit "funnelbot/internal/transport"
	logx "funnelbot/pkg/logx"
)

type senderFixture struct {
	tx    *fakeTx
	store *memStore
	dir   string
	s     *Sender
}

func newFixture(t *testing.T) *senderFixture {
	t.Helper()
	f := &senderFixture{tx: &fakeTx{}, store: newMemStore(), dir: t.TempDir()}
	f.s = NewSender(f.tx, NewCache(f.store, logx.Nop()), NewKeyboards(f.store, logx.Nop()),
		Options{MediaDir: f.dir, AlbumKeyboardPrompt: "choose:"}, logx.Nop())
	return f
}

// blob creates a media file and registers an uncached asset for it.
func (f *senderFixture) blob(t *testing.T, id int64, name string, kind model.MediaKind) model.MediaAsset {
	t.Helper()
	if err := os.WriteFile(filepath.Join(f.dir, name), []byte("data"), 0o644); err != nil {
		t.Fatalf("write blob: %v", err)
	}
	f.store.refs[id] = ""
	return model.MediaAsset{ID: id, StoragePath: name, Kind: kind}
}

var alice = model.Recipient{ID: 1, ChatID: 100}

func TestSendText(t *testing.T) {
	f := newFixture(t)
	c := model.Content{
		Kind:    model.KindText,
		Text:    "hello",
		StepID:  3,
		Buttons: []model.Button{{Label: "go", Action: model.ActionCallback, Value: "x"}},
	}
	if !f.s.Send(context.Background(), alice, c) {
		t.Fatal("Send returned false")
	}
	calls := f.tx.Calls()
	if len(calls) != 1 || calls[0].Method != "text" || calls[0].Text != "hello" || calls[0].ChatID != 100 {
		t.Fatalf("unexpected calls: %+v", calls)
	}
	if calls[0].Keyboard.Empty() {
		t.Fatal("keyboard should be attached to text")
	}
}

func TestSendTextEmptyFails(t *testing.T) {
	f := newFixture(t)
	if f.s.Send(context.Background(), alice, model.Content{Kind: model.KindText, Text: "  "}) {
		t.Fatal("empty text must fail")
	}
	if len(f.tx.Calls()) != 0 {
		t.Fatal("nothing should be sent")
	}
}

func TestSendPlatformErrorReportsFalse(t *testing.T) {
	f := newFixture(t)
	f.tx.failOn("text", errPlatform)
	if f.s.Send(context.Background(), alice, model.Content{Kind: model.KindText, Text: "hi"}) {
		t.Fatal("platform error must report false")
	}
}

func TestSendPhotoUploadsOnceThenReuses(t *testing.T) {
	f := newFixture(t)
	a := f.blob(t, 7, "a.jpg", model.MediaPhoto)
	c := model.Content{Kind: model.KindPhoto, Text: "cap", Assets: []model.MediaAsset{a}}

	if !f.s.Send(context.Background(), alice, c) {
		t.Fatal("first send failed")
	}
	if !f.s.Send(context.Background(), alice, c) {
		t.Fatal("second send failed")
	}

	calls := f.tx.Calls()
	if len(calls) != 2 {
		t.Fatalf("calls = %d", len(calls))
	}
	if !calls[0].Files[0].IsUpload() {
		t.Fatal("first send should upload")
	}
	if calls[1].Files[0].Ref != "file-1" {
		t.Fatalf("second send should reuse reference, got %+v", calls[1].Files[0])
	}
	if f.store.refs[7] != "file-1" {
		t.Fatalf("stored ref = %q", f.store.refs[7])
	}
}

func TestSendVideoByCachedReference(t *testing.T) {
	f := newFixture(t)
	c := model.Content{Kind: model.KindVideo, Assets: []model.MediaAsset{{ID: 9, Kind: model.MediaVideo, RemoteRef: "vid"}}}
	if !f.s.Send(context.Background(), alice, c) {
		t.Fatal("send failed")
	}
	calls := f.tx.Calls()
	if len(calls) != 1 || calls[0].Method != "video" || calls[0].Files[0].Ref != "vid" {
		t.Fatalf("unexpected calls: %+v", calls)
	}
}

func TestSendPhotoMissingBlob(t *testing.T) {
	tests := []struct {
		name    string
		caption string
		want    bool
		method  string
	}{
		{name: "caption fallback", caption: "just text", want: true, method: "text"},
		{name: "no caption fails", caption: "", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			c := model.Content{Kind: model.KindPhoto, Text: tt.caption, Assets: []model.MediaAsset{{ID: 1, StoragePath: "gone.jpg"}}}
			if got := f.s.Send(context.Background(), alice, c); got != tt.want {
				t.Fatalf("Send = %v, want %v", got, tt.want)
			}
			calls := f.tx.Calls()
			if tt.method == "" {
				if len(calls) != 0 {
					t.Fatalf("unexpected calls: %+v", calls)
				}
				return
			}
			if len(calls) != 1 || calls[0].Method != tt.method || calls[0].Text != tt.caption {
				t.Fatalf("unexpected calls: %+v", calls)
			}
		})
	}
}

func TestSendAlbumCachesOnlyUncached(t *testing.T) {
	f := newFixture(t)
	cached := model.MediaAsset{ID: 1, Kind: model.MediaPhoto, RemoteRef: "pre"}
	f.store.refs[1] = "pre"
	fresh := f.blob(t, 2, "b.mp4", model.MediaVideo)

	c := model.Content{
		Kind:    model.KindAlbum,
		Text:    "caption",
		StepID:  5,
		Assets:  []model.MediaAsset{cached, fresh},
		Buttons: []model.Button{{Label: "site", Action: model.ActionURL, Value: "https://example.com"}},
	}
	if !f.s.Send(context.Background(), alice, c) {
		t.Fatal("album send failed")
	}

	calls := f.tx.Calls()
	if len(calls) != 2 {
		t.Fatalf("calls = %+v", calls)
	}
	group := calls[0]
	if group.Method != "group" || len(group.Files) != 2 {
		t.Fatalf("unexpected group: %+v", group)
	}
	if group.Captions[0] != "caption" || group.Captions[1] != "" {
		t.Fatalf("caption must be on the first item only: %q", group.Captions)
	}
	if group.Files[0].Ref != "pre" || !group.Files[1].IsUpload() {
		t.Fatalf("files: %+v", group.Files)
	}
	if f.store.refs[1] != "pre" {
		t.Fatalf("pre-cached ref changed: %q", f.store.refs[1])
	}
	if f.store.refs[2] == "" {
		t.Fatal("uncached asset should gain a reference")
	}

	trailing := calls[1]
	if trailing.Method != "text" || trailing.Text != "choose:" || trailing.Keyboard.Empty() {
		t.Fatalf("keyboard should follow in a trailing message: %+v", trailing)
	}
}

func TestSendAlbumSkipsMissingAndDegrades(t *testing.T) {
	f := newFixture(t)
	ok := f.blob(t, 1, "a.jpg", model.MediaPhoto)
	c := model.Content{
		Kind:   model.KindAlbum,
		Text:   "cap",
		StepID: 5,
		Assets: []model.MediaAsset{ok, {ID: 2, StoragePath: "missing.jpg"}},
		Buttons: []model.Button{
			{Label: "more", Action: model.ActionCallback, Value: "info"},
		},
	}
	if !f.s.Send(context.Background(), alice, c) {
		t.Fatal("send failed")
	}
	calls := f.tx.Calls()
	if len(calls) != 1 || calls[0].Method != "photo" || calls[0].Captions[0] != "cap" {
		t.Fatalf("single resolved item should go as a photo: %+v", calls)
	}
	if calls[0].Keyboard.Empty() {
		t.Fatal("single photo carries the keyboard directly")
	}
}

func TestSendAlbumChunks(t *testing.T) {
	f := newFixture(t)
	var assets []model.MediaAsset
	for i := int64(1); i <= 12; i++ {
		assets = append(assets, model.MediaAsset{ID: i, Kind: model.MediaPhoto, RemoteRef: "r"})
	}
	if !f.s.Send(context.Background(), alice, model.Content{Kind: model.KindAlbum, Text: "cap", Assets: assets}) {
		t.Fatal("send failed")
	}
	calls := f.tx.Calls()
	if len(calls) != 2 || len(calls[0].Files) != 10 || len(calls[1].Files) != 2 {
		t.Fatalf("expected 10+2 chunks: %+v", calls)
	}
	if calls[1].Captions[0] != "" {
		t.Fatal("caption belongs to the very first item only")
	}
}

func TestSendAlbumUsesConfiguredParseMode(t *testing.T) {
	tx := &fakeTx{}
	store := newMemStore()
	s := NewSender(tx, NewCache(store, logx.Nop()), NewKeyboards(store, logx.Nop()),
		Options{ParseMode: "MarkdownV2", AlbumKeyboardPrompt: "choose:"}, logx.Nop())
	c := model.Content{
		Kind:    model.KindAlbum,
		Text:    "*cap*",
		Assets:  []model.MediaAsset{{ID: 1, RemoteRef: "a"}, {ID: 2, RemoteRef: "b"}},
		Buttons: []model.Button{{Label: "go", Action: model.ActionURL, Value: "https://x"}},
	}
	if !s.Send(context.Background(), alice, c) {
		t.Fatal("send failed")
	}
	calls := tx.Calls()
	if len(calls) != 2 || calls[0].Method != "group" {
		t.Fatalf("calls = %+v", calls)
	}
	if calls[0].ParseMode != "MarkdownV2" || calls[0].Keyboard != nil {
		t.Fatalf("group opts: parse=%q keyboard=%v", calls[0].ParseMode, calls[0].Keyboard)
	}
	if calls[1].Keyboard == nil {
		t.Fatal("keyboard belongs on the trailing message")
	}
}

func TestSendAlbumAllMissing(t *testing.T) {
	f := newFixture(t)
	c := model.Content{Kind: model.KindAlbum, Assets: []model.MediaAsset{{ID: 1, StoragePath: "x"}, {ID: 2, StoragePath: "y"}}}
	if f.s.Send(context.Background(), alice, c) {
		t.Fatal("album without blobs or caption must fail")
	}
}

func TestSendUnknownKind(t *testing.T) {
	f := newFixture(t)
	if f.s.Send(context.Background(), alice, model.Content{Kind: "sticker", Text: "x"}) {
		t.Fatal("unknown kind must fail")
	}
	var _ kit.Sender = f.tx
}
