package content

import (
	"context"
	"errors"
	"testing"

	logx "funnelbot/pkg/logx"
)

func TestCacheWriteOnce(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	store.refs[1] = ""
	c := NewCache(store, logx.Nop())
	ctx := context.Background()

	if _, ok, _ := c.Read(ctx, 1); ok {
		t.Fatal("fresh asset should be uncached")
	}
	if err := c.Write(ctx, 1, "first"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := c.Write(ctx, 1, "second"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	ref, ok, err := c.Read(ctx, 1)
	if err != nil || !ok || ref != "first" {
		t.Fatalf("Read = %q %v %v", ref, ok, err)
	}
	if store.refs[1] != "first" {
		t.Fatalf("stored = %q", store.refs[1])
	}
}

func TestCacheLosesRaceToStoredValue(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	store.refs[1] = "other-process"
	c := NewCache(store, logx.Nop())

	if err := c.Write(context.Background(), 1, "mine"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	ref, _, _ := c.Read(context.Background(), 1)
	if ref != "other-process" {
		t.Fatalf("ref = %q, want the stored winner", ref)
	}
}

func TestCacheReadErrors(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	c := NewCache(store, logx.Nop())
	if _, ok, err := c.Read(context.Background(), 99); ok || err != nil {
		t.Fatalf("unknown asset: ok=%v err=%v", ok, err)
	}
	store.err = errPlatform
	if _, _, err := c.Read(context.Background(), 99); !errors.Is(err, errPlatform) {
		t.Fatalf("err = %v", err)
	}
	if err := c.Write(context.Background(), 1, ""); err != nil {
		t.Fatal("empty ref is a no-op")
	}
}
