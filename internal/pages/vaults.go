// Package pages wraps a browser session in page objects for the vaults
// application: the vault list, a vault's detail view, the wallet bar, the
// create-vault form and the positions list.
package pages

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/shopspring/decimal"

	"github.com/kuitang/vaults-e2e/internal/browser"
	"github.com/kuitang/vaults-e2e/internal/display"
	"github.com/kuitang/vaults-e2e/internal/errs"
	"github.com/kuitang/vaults-e2e/internal/selectors"
)

// Application paths.
const (
	VaultsPath    = "/vaults"
	NewVaultPath  = "/vaults/new"
	PositionsPath = "/positions"
)

// SortSettle is the pause between the two header clicks and after sorting.
const SortSettle = 500 * time.Millisecond

// VaultsPage is the vault listing.
type VaultsPage struct {
	s *browser.Session
}

// NewVaultsPage wraps s.
func NewVaultsPage(s *browser.Session) *VaultsPage {
	return &VaultsPage{s: s}
}

// Open navigates to the listing and waits for at least one vault row.
func (p *VaultsPage) Open(ctx context.Context) error {
	if err := p.s.Goto(ctx, VaultsPath); err != nil {
		return err
	}
	if err := p.s.WaitIdle(ctx); err != nil {
		return err
	}
	_, _, err := p.s.FindAll(ctx, selectors.VaultRow)
	return err
}

// VaultCount returns the number of listed vaults.
func (p *VaultsPage) VaultCount(ctx context.Context) (int, error) {
	_, n, err := p.s.FindAll(ctx, selectors.VaultRow)
	return n, err
}

// VaultNames returns the listed vault names in display order.
func (p *VaultsPage) VaultNames(ctx context.Context) ([]string, error) {
	return p.s.Texts(ctx, selectors.VaultName)
}

// APRs returns the parsed APR column in display order. Placeholder cells
// are skipped.
func (p *VaultsPage) APRs(ctx context.Context) ([]decimal.Decimal, error) {
	texts, err := p.s.Texts(ctx, selectors.VaultAPRCell)
	if err != nil {
		return nil, err
	}
	values, _, err := display.ParseAll(texts, display.ParseAPR)
	if err != nil {
		return nil, errs.Wrap(errs.AssertionFailed, "APR column", err)
	}
	return values, nil
}

// TVLs returns the parsed TVL column in display order.
func (p *VaultsPage) TVLs(ctx context.Context) ([]decimal.Decimal, error) {
	texts, err := p.s.Texts(ctx, selectors.VaultTVLCell)
	if err != nil {
		return nil, err
	}
	values, _, err := display.ParseAll(texts, display.ParseAmount)
	if err != nil {
		return nil, errs.Wrap(errs.AssertionFailed, "TVL column", err)
	}
	return values, nil
}

// SortByAPR clicks the APR header twice and waits for the table to settle.
// Most tables sort ascending on the first click and descending on the second.
func (p *VaultsPage) SortByAPR(ctx context.Context) error {
	if err := p.s.ClickTimes(ctx, selectors.VaultAPRHeader, 2, SortSettle); err != nil {
		return err
	}
	if err := p.s.WaitIdle(ctx); err != nil {
		return err
	}
	return p.s.Pause(ctx, SortSettle)
}

// SortDirection reads the aria-sort state of the APR header. ok is false
// when the page exposes no sort state.
func (p *VaultsPage) SortDirection(ctx context.Context) (dir display.Order, ok bool) {
	if !p.s.Visible(ctx, selectors.VaultSortState) {
		return display.Unordered, false
	}
	v, err := p.s.Attr(ctx, selectors.VaultSortState, "aria-sort")
	if err != nil {
		return display.Unordered, false
	}
	return ParseAriaSort(v)
}

// ParseAriaSort maps an aria-sort attribute value to an Order. "none",
// "other" and unknown values are not a direction.
func ParseAriaSort(v string) (display.Order, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "ascending":
		return display.Ascending, true
	case "descending":
		return display.Descending, true
	default:
		return display.Unordered, false
	}
}

// OpenVault clicks the i-th vault row (zero based) and returns its detail page.
func (p *VaultsPage) OpenVault(ctx context.Context, i int) (*VaultDetailPage, error) {
	what := fmt.Sprintf("open vault %d", i)
	from := p.s.URL()
	err := p.s.Retry(ctx, what, func() error {
		rows, n, err := p.s.FindAll(ctx, selectors.VaultRow)
		if err != nil {
			return err
		}
		if i < 0 || i >= n {
			return errs.Newf(errs.InvalidArgument, "%s: only %d vaults listed", what, n)
		}
		return errs.FromPlaywright(rows.Nth(i).Click(), what)
	})
	if err != nil {
		return nil, err
	}
	if err := p.s.WaitNavigatedFrom(ctx, from); err != nil {
		return nil, err
	}
	detail := NewVaultDetailPage(p.s)
	if err := detail.WaitLoaded(ctx); err != nil {
		return nil, err
	}
	return detail, nil
}

// OpenVaultByName opens the first vault row whose text contains name,
// ignoring case.
func (p *VaultsPage) OpenVaultByName(ctx context.Context, name string) (*VaultDetailPage, error) {
	want := strings.TrimSpace(name)
	if want == "" {
		return nil, errs.New(errs.InvalidArgument, "open vault by name: empty name")
	}
	what := fmt.Sprintf("open vault %q", want)
	from := p.s.URL()
	err := p.s.Retry(ctx, what, func() error {
		rows, n, err := p.s.FindAll(ctx, selectors.VaultRow)
		if err != nil {
			return err
		}
		match := rows.Filter(playwright.LocatorFilterOptions{HasText: want})
		count, err := match.Count()
		if err != nil {
			return errs.FromPlaywright(err, what)
		}
		if count == 0 {
			return errs.Newf(errs.ElementNotFound, "no vault named %q among %d listed", want, n)
		}
		return errs.FromPlaywright(match.First().Click(), what)
	})
	if err != nil {
		return nil, err
	}
	if err := p.s.WaitNavigatedFrom(ctx, from); err != nil {
		return nil, err
	}
	detail := NewVaultDetailPage(p.s)
	if err := detail.WaitLoaded(ctx); err != nil {
		return nil, err
	}
	return detail, nil
}
