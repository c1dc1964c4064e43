package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Carnacky79/energy-optimizer-v2/internal/blob"
)

// GuestStore keeps a guest's reports in two blob slots: the report list and
// one shared expiry instant (RFC 3339) refreshed on every write.
type GuestStore struct {
	blobs blob.Store
	ttl   time.Duration
}

func NewGuestStore(blobs blob.Store, ttl time.Duration) *GuestStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &GuestStore{blobs: blobs, ttl: ttl}
}

func (g *GuestStore) TTL() time.Duration {
	return g.ttl
}

func reportsKey(token string) string { return "guest/" + token + "/reports" }
func expiryKey(token string) string  { return "guest/" + token + "/expiry" }

// Load returns the guest's live reports and their shared expiry.
// Expired or half-written sets are discarded and reported as empty.
func (g *GuestStore) Load(ctx context.Context, token string, now time.Time) ([]Report, *time.Time, error) {
	raw, err := g.blobs.Get(ctx, reportsKey(token))
	if errors.Is(err, blob.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	expRaw, err := g.blobs.Get(ctx, expiryKey(token))
	if err != nil && !errors.Is(err, blob.ErrNotFound) {
		return nil, nil, err
	}
	// нет слота expiry: считаем набор просроченным
	if errors.Is(err, blob.ErrNotFound) {
		return nil, nil, g.Clear(ctx, token)
	}

	expiry, err := time.Parse(time.RFC3339Nano, string(expRaw))
	if err != nil || now.After(expiry) {
		return nil, nil, g.Clear(ctx, token)
	}

	var reports []Report
	if err := json.Unmarshal(raw, &reports); err != nil {
		return nil, nil, fmt.Errorf("decode guest reports: %w", err)
	}
	for i := range reports {
		exp := expiry
		reports[i].ExpiresAt = &exp
	}
	return reports, &expiry, nil
}

// Save overwrites the report list and pushes the shared expiry to now+ttl.
func (g *GuestStore) Save(ctx context.Context, token string, reports []Report, now time.Time) (time.Time, error) {
	expiry := now.UTC().Add(g.ttl)

	stored := make([]Report, len(reports))
	for i, r := range reports {
		r.ExpiresAt = nil
		stored[i] = r
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		return time.Time{}, fmt.Errorf("encode guest reports: %w", err)
	}

	if err := g.blobs.Put(ctx, reportsKey(token), raw); err != nil {
		return time.Time{}, err
	}
	if err := g.blobs.Put(ctx, expiryKey(token), []byte(expiry.Format(time.RFC3339Nano))); err != nil {
		return time.Time{}, err
	}

	for i := range reports {
		exp := expiry
		reports[i].ExpiresAt = &exp
	}
	return expiry, nil
}

// Clear removes both slots of a guest.
func (g *GuestStore) Clear(ctx context.Context, token string) error {
	if err := g.blobs.Delete(ctx, reportsKey(token)); err != nil {
		return err
	}
	return g.blobs.Delete(ctx, expiryKey(token))
}
