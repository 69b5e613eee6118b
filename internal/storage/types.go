package storage

import (
	"context"
	"errors"
	"time"

	"funnelbot/internal/model"
)

var ErrNotFound = errors.New("storage: not found")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Profile is the subscriber data captured on enrollment.
type Profile struct {
	ChatID    int64
	Username  string
	FirstName string
	LastName  string
}

// EnrollOutcome tells how an enrollment changed the recipient set.
type EnrollOutcome int

const (
	EnrollCreated     EnrollOutcome = iota + 1 // new recipient
	EnrollReturned                             // already enrolled and active
	EnrollReactivated                          // was blocked, now active again
)

// Store is the persistence API used by the engine and the tenant runtime.
// Create* methods exist for the CRUD layer (and tests); the engine itself only
// reads definitions and mutates progress, upload references and broadcast state.
type Store interface {
	Tenants(ctx context.Context) ([]model.Tenant, error)
	CreateTenant(ctx context.Context, t model.Tenant) (int64, error)

	Recipients(ctx context.Context, tenantID int64, target model.BroadcastTarget) ([]model.Recipient, error)
	ActiveRecipients(ctx context.Context, tenantID int64) ([]model.Recipient, error)
	// Enroll upserts a recipient: profile refreshed, status set active,
	// cursor and enrollment time kept.
	Enroll(ctx context.Context, tenantID int64, p Profile, at time.Time) (model.Recipient, EnrollOutcome, error)
	SetRecipientStatus(ctx context.Context, recipientID int64, st model.RecipientStatus) error
	// CommitProgress advances a cursor; it is a no-op (ok=false) when the
	// stored cursor is already >= cursor.
	CommitProgress(ctx context.Context, recipientID int64, cursor int, at time.Time) (bool, error)

	Step(ctx context.Context, stepID int64) (model.Step, error)
	StepByIndex(ctx context.Context, tenantID int64, index int) (model.Step, error)
	CreateStep(ctx context.Context, s model.Step) (int64, error)
	DeleteStep(ctx context.Context, stepID int64) error

	CreateAsset(ctx context.Context, a model.MediaAsset) (int64, error)
	AssetRef(ctx context.Context, assetID int64) (string, error)
	// SetAssetRef stores ref only when none is set yet (first writer wins).
	SetAssetRef(ctx context.Context, assetID int64, ref string) (bool, error)

	Broadcast(ctx context.Context, id int64) (model.Broadcast, error)
	CreateBroadcast(ctx context.Context, b model.Broadcast) (int64, error)
	SetBroadcastState(ctx context.Context, id int64, st model.BroadcastStatus, sent int) error
	SetBroadcastStatus(ctx context.Context, id int64, st model.BroadcastStatus) error
	IncrementBroadcastSent(ctx context.Context, id int64) error

	Close() error
}
