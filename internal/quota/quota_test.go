package quota

import (
	"context"
	"testing"

	"github.com/Carnacky79/energy-optimizer-v2/internal/config"
	"github.com/Carnacky79/energy-optimizer-v2/internal/storage"
	"github.com/Carnacky79/energy-optimizer-v2/internal/storage/memory"
	"github.com/Carnacky79/energy-optimizer-v2/internal/userctx"
)

func TestPlanCheckerLimits(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	free := &storage.Account{Email: "free@example.com"}
	premium := &storage.Account{Email: "premium@example.com"}
	_ = store.CreateAccount(ctx, free)
	_ = store.CreateAccount(ctx, premium)
	_ = store.SetPlan(premium.ID, storage.PlanPremium)

	checker := NewPlanChecker(store, config.QuotaConfig{GuestReports: 1, FreeReports: 3, PremiumReports: 0})

	tests := []struct {
		name    string
		owner   userctx.Owner
		current int
		want    bool
	}{
		{"guest under limit", userctx.GuestOwner("g"), 0, true},
		{"guest at limit", userctx.GuestOwner("g"), 1, false},
		{"free under limit", userctx.AccountOwner(free.ID.String()), 2, true},
		{"free at limit", userctx.AccountOwner(free.ID.String()), 3, false},
		{"premium unlimited", userctx.AccountOwner(premium.ID.String()), 10000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := checker.Allow(ctx, tt.owner, tt.current)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("Allow=%v want %v", got, tt.want)
			}
		})
	}
}

func TestPlanCheckerUnknownAccount(t *testing.T) {
	checker := NewPlanChecker(memory.New(), config.QuotaConfig{FreeReports: 3})
	if _, err := checker.Allow(context.Background(), userctx.AccountOwner("not-a-uuid"), 0); err == nil {
		t.Fatal("expected error for malformed account id")
	}
}
