package quota

import (
	"context"
	"fmt"

	"github.com/Carnacky79/energy-optimizer-v2/internal/config"
	"github.com/Carnacky79/energy-optimizer-v2/internal/storage"
	"github.com/Carnacky79/energy-optimizer-v2/internal/userctx"
	"github.com/google/uuid"
)

// Checker decides whether an owner may create one more report.
type Checker interface {
	Allow(ctx context.Context, owner userctx.Owner, current int) (bool, error)
}

// PlanReader: минимальный доступ к тарифу аккаунта
type PlanReader interface {
	GetAccount(ctx context.Context, id uuid.UUID) (*storage.Account, error)
}

// PlanChecker applies per-plan limits; a limit of 0 means unlimited.
type PlanChecker struct {
	accounts PlanReader
	limits   config.QuotaConfig
}

func NewPlanChecker(accounts PlanReader, limits config.QuotaConfig) *PlanChecker {
	return &PlanChecker{accounts: accounts, limits: limits}
}

// Limit returns the report limit for an owner (0 = unlimited) and the plan name.
func (c *PlanChecker) Limit(ctx context.Context, owner userctx.Owner) (int, string, error) {
	if owner.IsGuest() {
		return c.limits.GuestReports, "guest", nil
	}

	accountID, err := uuid.Parse(owner.ID)
	if err != nil {
		return 0, "", fmt.Errorf("invalid account id: %w", err)
	}
	account, err := c.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return 0, "", fmt.Errorf("resolve plan: %w", err)
	}

	switch account.Plan {
	case storage.PlanPremium:
		return c.limits.PremiumReports, storage.PlanPremium, nil
	default:
		return c.limits.FreeReports, storage.PlanFree, nil
	}
}

func (c *PlanChecker) Allow(ctx context.Context, owner userctx.Owner, current int) (bool, error) {
	limit, _, err := c.Limit(ctx, owner)
	if err != nil {
		return false, err
	}
	if limit == 0 {
		return true, nil
	}
	return current < limit, nil
}

// Unlimited allows everything; used by the CLI and tests.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, userctx.Owner, int) (bool, error) { return true, nil }
