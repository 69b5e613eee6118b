package tenant

import (
	"context"
	"errors"
	"testing"
	"time"

	"funnelbot/internal/model"
	"funnelbot/internal/services/content"
	"funnelbot/internal/storage"
	kit "funnelbot/internal/transport"
	logx "funnelbot/pkg/logx"
)

type fakeEnroller struct {
	outcome storage.EnrollOutcome
	err     error
	got     []storage.Profile
}

func (f *fakeEnroller) Enroll(ctx context.Context, tenantID int64, p storage.Profile, at time.Time) (model.Recipient, storage.EnrollOutcome, error) {
	f.got = append(f.got, p)
	if f.err != nil {
		return model.Recipient{}, 0, f.err
	}
	return model.Recipient{ID: 1, TenantID: tenantID, ChatID: p.ChatID}, f.outcome, nil
}

type fakeResolver struct {
	button model.Button
	err    error
}

func (f fakeResolver) Resolve(ctx context.Context, tenantID int64, token string) (model.Button, error) {
	return f.button, f.err
}

func startMsg(text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: 5, FromID: 5, FromUsername: "ann", Text: text}}
}

func TestIsStart(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want bool
	}{
		{"/start", true},
		{"  /start  ", true},
		{"/start promo42", true},
		{"/start@funnel_bot", true},
		{"/START", true},
		{"/started", false},
		{"start", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isStart(tt.in); got != tt.want {
			t.Fatalf("isStart(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRouterStartReplies(t *testing.T) {
	t.Parallel()
	tests := []struct {
		outcome storage.EnrollOutcome
		want    string
	}{
		{storage.EnrollCreated, textWelcome},
		{storage.EnrollReturned, textWelcomeBack},
		{storage.EnrollReactivated, textUnblocked},
	}
	for _, tt := range tests {
		a := newFakeAdapter()
		en := &fakeEnroller{outcome: tt.outcome}
		r := NewRouter(1, en, fakeResolver{}, a, "HTML", logx.Nop())
		if err := r.Handle(context.Background(), startMsg("/start")); err != nil {
			t.Fatalf("Handle: %v", err)
		}
		sent := a.sent()
		if len(sent) != 1 || sent[0].text != tt.want || sent[0].chatID != 5 {
			t.Fatalf("outcome %v: sent %+v", tt.outcome, sent)
		}
		if len(en.got) != 1 || en.got[0].Username != "ann" {
			t.Fatalf("profile not passed: %+v", en.got)
		}
	}
}

func TestRouterStartEnrollErrorSendsNothing(t *testing.T) {
	t.Parallel()
	a := newFakeAdapter()
	r := NewRouter(1, &fakeEnroller{err: errors.New("locked")}, fakeResolver{}, a, "", logx.Nop())
	if err := r.Handle(context.Background(), startMsg("/start")); err == nil {
		t.Fatal("expected enroll error")
	}
	if len(a.sent()) != 0 {
		t.Fatalf("nothing should be sent: %+v", a.sent())
	}
}

func TestRouterMessages(t *testing.T) {
	t.Parallel()
	a := newFakeAdapter()
	en := &fakeEnroller{outcome: storage.EnrollCreated}
	r := NewRouter(1, en, fakeResolver{}, a, "", logx.Nop())

	group := startMsg("/start")
	group.Message.IsGroup = true
	_ = r.Handle(context.Background(), group)
	if len(en.got) != 0 || len(a.sent()) != 0 {
		t.Fatal("group messages must be ignored")
	}

	_ = r.Handle(context.Background(), startMsg("hello"))
	sent := a.sent()
	if len(sent) != 1 || sent[0].text != textHint {
		t.Fatalf("expected hint reply, got %+v", sent)
	}
}

func TestRouterCallbacks(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		data     string
		resolver fakeResolver
		answer   string
		wantText string
	}{
		{name: "foreign data", data: "menu:x", answer: ""},
		{name: "not found", data: "btn:1:0:0", resolver: fakeResolver{err: content.ErrButtonNotFound}, answer: answerNotFound},
		{name: "lookup error", data: "btn:1:0:0", resolver: fakeResolver{err: errors.New("db")}, answer: answerError},
		{name: "callback", data: "btn:1:0:0", resolver: fakeResolver{button: model.Button{Label: "Info", Action: model.ActionCallback, Value: "details"}}, wantText: "details"},
		{name: "url", data: "btn:1:0:1", resolver: fakeResolver{button: model.Button{Label: "Site", Action: model.ActionURL, Value: "https://example.com"}}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := newFakeAdapter()
			r := NewRouter(1, &fakeEnroller{}, tt.resolver, a, "HTML", logx.Nop())
			_ = r.Handle(context.Background(), kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "cb", ChatID: 9, Data: tt.data}})

			got, ok := a.answer("cb")
			if !ok || got != tt.answer {
				t.Fatalf("answer = %q (answered=%v), want %q", got, ok, tt.answer)
			}
			sent := a.sent()
			if tt.wantText == "" {
				if len(sent) != 0 {
					t.Fatalf("nothing should be sent: %+v", sent)
				}
				return
			}
			if len(sent) != 1 || sent[0].text != tt.wantText || sent[0].chatID != 9 {
				t.Fatalf("sent %+v, want %q to chat 9", sent, tt.wantText)
			}
		})
	}
}

func TestRouterResolvesLiveStep(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openTestStore(t)
	tn := seedTenant(t, st, "shop")
	other := seedTenant(t, st, "other")

	stepID, err := st.CreateStep(ctx, model.Step{
		TenantID: tn.ID,
		Index:    1,
		Content: model.Content{
			Kind: model.KindText,
			Text: "hi",
			Buttons: []model.Button{
				{Label: "A", Action: model.ActionCallback, Value: "first", Row: 1},
				{Label: "B", Action: model.ActionCallback, Value: "second", Row: 0},
			},
		},
	})
	if err != nil {
		t.Fatalf("create step: %v", err)
	}
	token, err := content.Token(stepID, 1, 0)
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	kb := content.NewKeyboards(st, logx.Nop())
	a := newFakeAdapter()
	r := NewRouter(tn.ID, st, kb, a, "", logx.Nop())
	_ = r.Handle(ctx, kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "own", ChatID: 3, Data: token}})
	if sent := a.sent(); len(sent) != 1 || sent[0].text != "first" {
		t.Fatalf("sent %+v, want the row 1 button value", sent)
	}

	foreign := NewRouter(other.ID, st, kb, a, "", logx.Nop())
	_ = foreign.Handle(ctx, kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "foreign", ChatID: 3, Data: token}})
	if got, _ := a.answer("foreign"); got != answerNotFound {
		t.Fatalf("another tenant's step must not resolve, answer=%q", got)
	}
}

func TestRouterStartEnrollsInStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openTestStore(t)
	tn := seedTenant(t, st, "shop")
	a := newFakeAdapter()
	r := NewRouter(tn.ID, st, content.NewKeyboards(st, logx.Nop()), a, "", logx.Nop())

	_ = r.Handle(ctx, startMsg("/start"))
	_ = r.Handle(ctx, startMsg("/start"))

	rs, err := st.ActiveRecipients(ctx, tn.ID)
	if err != nil || len(rs) != 1 || rs[0].ChatID != 5 || rs[0].Cursor != 0 {
		t.Fatalf("recipients=%+v err=%v", rs, err)
	}
	sent := a.sent()
	if len(sent) != 2 || sent[0].text != textWelcome || sent[1].text != textWelcomeBack {
		t.Fatalf("replies: %+v", sent)
	}
}
