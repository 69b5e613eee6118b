package content

import (
	"context"
	"errors"
	"strings"
	"testing"

	"funnelbot/internal/model"
	logx "funnelbot/pkg/logx"
)

func TestBuildGroupsRows(t *testing.T) {
	t.Parallel()
	kb := NewKeyboards(newMemStore(), logx.Nop())
	buttons := []model.Button{
		{Label: "A", Action: model.ActionURL, Value: "https://a", Row: 0},
		{Label: "B", Action: model.ActionCallback, Value: "b", Row: 1},
		{Label: "C", Action: model.ActionCallback, Value: "c", Row: 0},
	}
	got := kb.Build(buttons, 42)
	if got == nil || len(got.Rows) != 2 {
		t.Fatalf("rows = %+v", got)
	}
	if got.Rows[0][0].Text != "A" || got.Rows[0][1].Text != "C" || got.Rows[1][0].Text != "B" {
		t.Fatalf("unexpected layout: %+v", got.Rows)
	}
	if got.Rows[0][0].URL != "https://a" || got.Rows[0][0].Data != "" {
		t.Fatalf("url button: %+v", got.Rows[0][0])
	}
	if got.Rows[0][1].Data != "btn:42:0:1" {
		t.Fatalf("token = %q", got.Rows[0][1].Data)
	}
}

func TestBuildEmpty(t *testing.T) {
	t.Parallel()
	kb := NewKeyboards(newMemStore(), logx.Nop())
	if kb.Build(nil, 1) != nil {
		t.Fatal("no buttons should build no keyboard")
	}
	// callback buttons need a step to resolve against
	if kb.Build([]model.Button{{Label: "x", Action: model.ActionCallback, Value: "v"}}, 0) != nil {
		t.Fatal("stepless callback buttons should be dropped")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	t.Parallel()
	tok, err := Token(123456789, 3, 7)
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	step, row, idx, ok := ParseToken(tok)
	if !ok || step != 123456789 || row != 3 || idx != 7 {
		t.Fatalf("ParseToken(%q) = %d %d %d %v", tok, step, row, idx, ok)
	}
	if len(tok) > 64 {
		t.Fatalf("token exceeds callback limit: %d", len(tok))
	}
}

func TestParseTokenRejects(t *testing.T) {
	t.Parallel()
	for _, tok := range []string{"", "btn", "btn:x:0:0", "btn:1:0", "menu:1:0:0", "btn:1:-1:0", "btn:0:0:0", strings.Repeat("9", 80)} {
		if _, _, _, ok := ParseToken(tok); ok {
			t.Fatalf("ParseToken(%q) should fail", tok)
		}
	}
}

func TestIsToken(t *testing.T) {
	t.Parallel()
	tests := []struct {
		data string
		want bool
	}{
		{"btn:1:0:0", true},
		{" btn:x ", true},
		{"btn", false},
		{"menu:1", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsToken(tt.data); got != tt.want {
			t.Fatalf("IsToken(%q) = %v, want %v", tt.data, got, tt.want)
		}
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	store.steps[5] = model.Step{ID: 5, TenantID: 1, Content: model.Content{Buttons: []model.Button{
		{Label: "A", Action: model.ActionURL, Value: "https://a", Row: 0},
		{Label: "B", Action: model.ActionCallback, Value: "hello", Row: 1},
	}}}
	kb := NewKeyboards(store, logx.Nop())

	tests := []struct {
		name     string
		tenantID int64
		token    string
		want     string
		err      error
	}{
		{name: "callback", tenantID: 1, token: "btn:5:1:0", want: "hello"},
		{name: "url", tenantID: 1, token: "btn:5:0:0", want: "https://a"},
		{name: "deleted step", tenantID: 1, token: "btn:6:0:0", err: ErrButtonNotFound},
		{name: "other tenant", tenantID: 2, token: "btn:5:1:0", err: ErrButtonNotFound},
		{name: "position gone", tenantID: 1, token: "btn:5:1:3", err: ErrButtonNotFound},
		{name: "malformed", tenantID: 1, token: "garbage", err: ErrButtonNotFound},
	}
	for _, tt := range tests {
		got, err := kb.Resolve(context.Background(), tt.tenantID, tt.token)
		if tt.err != nil {
			if !errors.Is(err, tt.err) {
				t.Fatalf("%s: err = %v, want %v", tt.name, err, tt.err)
			}
			continue
		}
		if err != nil || got.Value != tt.want {
			t.Fatalf("%s: got %+v, %v", tt.name, got, err)
		}
	}
}

func TestResolveFollowsLiveStep(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	store.steps[5] = model.Step{ID: 5, TenantID: 1, Content: model.Content{Buttons: []model.Button{
		{Label: "B", Action: model.ActionCallback, Value: "old"},
	}}}
	kb := NewKeyboards(store, logx.Nop())
	tok := kb.Build(store.steps[5].Content.Buttons, 5).Rows[0][0].Data

	store.steps[5] = model.Step{ID: 5, TenantID: 1, Content: model.Content{Buttons: []model.Button{
		{Label: "B", Action: model.ActionCallback, Value: "new"},
	}}}
	got, err := kb.Resolve(context.Background(), 1, tok)
	if err != nil || got.Value != "new" {
		t.Fatalf("tap should resolve against the edited step: %+v %v", got, err)
	}
}
