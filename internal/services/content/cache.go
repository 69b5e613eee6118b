package content

import (
	"context"
	"errors"
	"strings"
	"sync"

	"funnelbot/internal/storage"
	logx "funnelbot/pkg/logx"
)

// RefStore persists upload references. SetAssetRef must only write when no
// reference is stored yet.
type RefStore interface {
	AssetRef(ctx context.Context, assetID int64) (string, error)
	SetAssetRef(ctx context.Context, assetID int64, ref string) (bool, error)
}

// Cache maps media assets to platform upload references. A reference is
// write-once: the first stored value wins for the lifetime of the asset.
type Cache struct {
	store RefStore
	log   logx.Logger
	memo  sync.Map // int64 -> string
}

func NewCache(store RefStore, log logx.Logger) *Cache {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Cache{store: store, log: log}
}

// Read returns the stored reference for assetID. ok is false when none is
// stored or the asset does not exist.
func (c *Cache) Read(ctx context.Context, assetID int64) (string, bool, error) {
	if v, ok := c.memo.Load(assetID); ok {
		return v.(string), true, nil
	}
	ref, err := c.store.AssetRef(ctx, assetID)
	if errors.Is(err, storage.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if ref == "" {
		return "", false, nil
	}
	c.memo.Store(assetID, ref)
	return ref, true, nil
}

// Write records ref for assetID unless one is already stored. Losing the
// race is not an error; the memo then holds the winner.
func (c *Cache) Write(ctx context.Context, assetID int64, ref string) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil
	}
	if _, ok := c.memo.Load(assetID); ok {
		return nil
	}
	won, err := c.store.SetAssetRef(ctx, assetID, ref)
	if err != nil {
		return err
	}
	if won {
		c.memo.Store(assetID, ref)
		c.log.Debug("upload reference cached", logx.Int64("asset_id", assetID))
		return nil
	}
	stored, err := c.store.AssetRef(ctx, assetID)
	if err != nil {
		return err
	}
	if stored != "" {
		c.memo.Store(assetID, stored)
	}
	return nil
}
