package pages

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kuitang/vaults-e2e/internal/browser"
	"github.com/kuitang/vaults-e2e/internal/display"
	"github.com/kuitang/vaults-e2e/internal/errs"
	"github.com/kuitang/vaults-e2e/internal/selectors"
)

// Position is one row of the positions list.
type Position struct {
	Vault  string
	Amount decimal.Decimal
	Raw    string
}

// PositionsPage lists the connected wallet's vault positions.
type PositionsPage struct {
	s *browser.Session
}

// NewPositionsPage wraps s.
func NewPositionsPage(s *browser.Session) *PositionsPage {
	return &PositionsPage{s: s}
}

// Open navigates to the positions list and waits for rows or the empty state.
func (p *PositionsPage) Open(ctx context.Context) error {
	if err := p.s.Goto(ctx, PositionsPath); err != nil {
		return err
	}
	if err := p.s.WaitIdle(ctx); err != nil {
		return err
	}
	deadline := time.Now().Add(p.s.Config().Timeout)
	for {
		n, err := p.s.Count(ctx, selectors.PositionRow)
		if err != nil {
			return err
		}
		if n > 0 || p.IsEmpty(ctx) {
			return nil
		}
		if time.Now().After(deadline) {
			return errs.New(errs.ElementNotFound, "positions: neither rows nor empty state appeared")
		}
		if err := p.s.Pause(ctx, outcomePoll); err != nil {
			return errs.Wrap(errs.Timeout, "positions", err)
		}
	}
}

// IsEmpty reports whether the empty state is showing.
func (p *PositionsPage) IsEmpty(ctx context.Context) bool {
	return p.s.Visible(ctx, selectors.PositionsEmpty)
}

// Positions returns the listed positions.
func (p *PositionsPage) Positions(ctx context.Context) ([]Position, error) {
	n, err := p.s.Count(ctx, selectors.PositionRow)
	if err != nil || n == 0 {
		return nil, err
	}
	vaults, err := p.s.Texts(ctx, selectors.PositionVault)
	if err != nil {
		return nil, err
	}
	amounts, err := p.s.Texts(ctx, selectors.PositionAmount)
	if err != nil {
		return nil, err
	}
	if len(vaults) != len(amounts) {
		return nil, errs.Newf(errs.AssertionFailed, "positions: %d vault cells but %d amount cells", len(vaults), len(amounts))
	}
	out := make([]Position, 0, len(vaults))
	for i := range vaults {
		amount, err := display.ParseAmount(amounts[i])
		if err != nil {
			return nil, errs.Wrap(errs.AssertionFailed, "position amount "+amounts[i], err)
		}
		out = append(out, Position{Vault: vaults[i], Amount: amount, Raw: amounts[i]})
	}
	return out, nil
}
