package cache

import (
	"context"
	"testing"
	"time"
)

func TestTTLCacheExpires(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewTTLCache()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	if err := c.SetBytes(ctx, "k", []byte("v"), time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	b, ok, err := c.GetBytes(ctx, "k")
	if err != nil || !ok || string(b) != "v" {
		t.Fatalf("got %q %v %v", b, ok, err)
	}

	now = now.Add(2 * time.Second)
	if _, ok, _ := c.GetBytes(ctx, "k"); ok {
		t.Fatalf("expected expiry")
	}
}

func TestTTLCacheZeroTTLKeeps(t *testing.T) {
	c := NewTTLCache()
	ctx := context.Background()
	_ = c.SetBytes(ctx, "k", []byte("v"), 0)
	if _, ok, _ := c.GetBytes(ctx, "k"); !ok {
		t.Fatalf("expected hit")
	}
	if _, ok, _ := c.GetBytes(ctx, "missing"); ok {
		t.Fatalf("expected miss")
	}
}
