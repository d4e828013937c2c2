package scenario

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/kuitang/vaults-e2e/internal/browser"
	"github.com/kuitang/vaults-e2e/internal/errs"
	"github.com/kuitang/vaults-e2e/internal/pages"
)

// Positions deposits into the first vault and expects a matching position.
func Positions(ctx context.Context, s *browser.Session) error {
	detail, err := openFirstVaultConnected(ctx, s)
	if err != nil {
		return err
	}

	var vaultName string
	if err := s.SoftStep(ctx, "read vault name", func(ctx context.Context) error {
		name, err := detail.Name(ctx)
		vaultName = name
		return err
	}); err != nil {
		return err
	}

	if err := transact(ctx, s, "deposit", func(ctx context.Context) (pages.Outcome, error) {
		return detail.Deposit(ctx, DepositAmount)
	}); err != nil {
		return err
	}

	positions := pages.NewPositionsPage(s)
	if err := s.Step(ctx, "open positions", positions.Open); err != nil {
		return err
	}

	return s.Step(ctx, "position listed", func(ctx context.Context) error {
		if positions.IsEmpty(ctx) {
			return errs.New(errs.AssertionFailed, "positions list is empty after a deposit")
		}
		list, err := positions.Positions(ctx)
		if err != nil {
			return err
		}
		return expectPosition(list, vaultName, decimal.RequireFromString(DepositAmount))
	})
}

// expectPosition looks for a position in vault holding at least min. An empty
// vault name matches any position.
func expectPosition(list []pages.Position, vault string, min decimal.Decimal) error {
	want := strings.ToLower(strings.TrimSpace(vault))
	for _, p := range list {
		if want != "" && !strings.Contains(strings.ToLower(p.Vault), want) {
			continue
		}
		if p.Amount.GreaterThanOrEqual(min) {
			return nil
		}
		return errs.Newf(errs.AssertionFailed, "position in %q holds %s, want at least %s", p.Vault, p.Amount, min)
	}
	return errs.Newf(errs.AssertionFailed, "no position for %q among %d", vault, len(list))
}
