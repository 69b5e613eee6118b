// Package model holds the tenant-scoped records shared by storage, the
// delivery engine and the tenant runtime.
package model

import (
	"strings"
	"time"
)

type Tenant struct {
	ID       int64
	Name     string
	BotToken string
	AdminID  int64
}

type RecipientStatus string

const (
	RecipientActive  RecipientStatus = "active"
	RecipientBlocked RecipientStatus = "blocked"
)

// Recipient is a subscriber enrolled in a tenant's funnel.
//
// Cursor is the index of the last step confirmed as delivered (0 = none yet).
// LastAdvance is nil until the first confirmed step.
type Recipient struct {
	ID          int64
	TenantID    int64
	ChatID      int64
	Username    string
	FirstName   string
	LastName    string
	Cursor      int
	LastAdvance *time.Time
	EnrolledAt  time.Time
	Status      RecipientStatus
}

type ContentKind string

const (
	KindText  ContentKind = "text"
	KindPhoto ContentKind = "photo"
	KindVideo ContentKind = "video"
	KindAlbum ContentKind = "album"
)

type MediaKind string

const (
	MediaPhoto MediaKind = "photo"
	MediaVideo MediaKind = "video"
)

// MediaAsset is a stored blob. RemoteRef is the platform upload reference;
// once set it never changes.
type MediaAsset struct {
	ID          int64
	TenantID    int64
	StoragePath string
	Kind        MediaKind
	RemoteRef   string
}

type ButtonAction string

const (
	ActionURL      ButtonAction = "url"
	ActionCallback ButtonAction = "callback"
)

type Button struct {
	Label  string       `json:"text"`
	Action ButtonAction `json:"action"`
	Value  string       `json:"value"`
	Row    int          `json:"row"`
}

// Content is what ContentSender renders: a step body or a broadcast snapshot.
type Content struct {
	Kind    ContentKind
	Text    string
	Assets  []MediaAsset
	Buttons []Button
	// StepID is the owning step (0 for broadcasts); used for callback tokens.
	StepID int64
}

type Step struct {
	ID       int64
	TenantID int64
	Index    int
	Delay    time.Duration
	Content  Content
}

type BroadcastTarget string

const (
	TargetAll    BroadcastTarget = "all"
	TargetActive BroadcastTarget = "active"
)

type BroadcastStatus string

const (
	BroadcastDraft     BroadcastStatus = "draft"
	BroadcastSending   BroadcastStatus = "sending"
	BroadcastCompleted BroadcastStatus = "completed"
	BroadcastFailed    BroadcastStatus = "failed"
)

type Broadcast struct {
	ID        int64
	TenantID  int64
	Name      string
	Content   Content
	Target    BroadcastTarget
	Status    BroadcastStatus
	SentCount int
	CreatedAt time.Time
}

// NormalizeTarget maps unknown target values to TargetAll, matching how the
// recipient snapshot treats them.
func NormalizeTarget(t BroadcastTarget) BroadcastTarget {
	if strings.EqualFold(string(t), string(TargetActive)) {
		return TargetActive
	}
	return TargetAll
}
