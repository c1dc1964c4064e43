package reports

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/Carnacky79/energy-optimizer-v2/internal/blob"
	"github.com/google/uuid"
)

func TestGuestStoreRoundTripStripsExpiry(t *testing.T) {
	ctx := context.Background()
	blobs := blob.NewMemoryStore()
	g := NewGuestStore(blobs, time.Hour)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	reports := []Report{{ID: uuid.New(), Title: "x", CreatedAt: now, UpdatedAt: now}}
	expiry, err := g.Save(ctx, "tok", reports, now)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !expiry.Equal(now.Add(time.Hour)) {
		t.Fatalf("expiry=%v", expiry)
	}

	raw, err := blobs.Get(ctx, reportsKey("tok"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(raw) == 0 || bytes.Contains(raw, []byte("expires_at")) {
		t.Fatalf("stored reports must not carry expires_at: %s", raw)
	}

	loaded, exp, err := g.Load(ctx, "tok", now.Add(time.Hour))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 1 || exp == nil || loaded[0].ExpiresAt == nil {
		t.Fatalf("expected live report at exactly the expiry instant: %+v", loaded)
	}

	loaded, _, err = g.Load(ctx, "tok", now.Add(time.Hour+time.Nanosecond))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("expected discard after expiry, got %d", len(loaded))
	}
	if _, err := blobs.Get(ctx, expiryKey("tok")); err != blob.ErrNotFound {
		t.Fatalf("expiry slot must be removed, got %v", err)
	}
}

func TestGuestStoreCorruptExpiryIsExpired(t *testing.T) {
	ctx := context.Background()
	blobs := blob.NewMemoryStore()
	g := NewGuestStore(blobs, 0)
	if g.TTL() != 24*time.Hour {
		t.Fatalf("default ttl=%v", g.TTL())
	}

	blobs.Put(ctx, reportsKey("tok"), []byte(`[]`))
	blobs.Put(ctx, expiryKey("tok"), []byte("tomorrow"))

	loaded, exp, err := g.Load(ctx, "tok", time.Now())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded != nil || exp != nil {
		t.Fatalf("corrupt expiry must be treated as expired")
	}
}
