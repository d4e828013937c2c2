package pages

import (
	"context"
	"strings"

	"github.com/kuitang/vaults-e2e/internal/browser"
	"github.com/kuitang/vaults-e2e/internal/errs"
	"github.com/kuitang/vaults-e2e/internal/selectors"
)

// VaultForm is the input to the create-vault form. Empty fields are left
// untouched.
type VaultForm struct {
	Name       string
	Symbol     string
	Asset      string
	Strategy   string
	FeePercent string
	MinDeposit string
}

// CreateVaultPage is the create-vault form.
type CreateVaultPage struct {
	s *browser.Session
}

// NewCreateVaultPage wraps s.
func NewCreateVaultPage(s *browser.Session) *CreateVaultPage {
	return &CreateVaultPage{s: s}
}

// Open reaches the form through the create button on the listing, falling
// back to the form's own URL when no button is shown.
func (p *CreateVaultPage) Open(ctx context.Context) error {
	if err := p.s.Goto(ctx, VaultsPath); err != nil {
		return err
	}
	if err := p.s.WaitIdle(ctx); err != nil {
		return err
	}
	if p.s.Visible(ctx, selectors.CreateOpen) {
		from := p.s.URL()
		if err := p.s.Click(ctx, selectors.CreateOpen); err != nil {
			return err
		}
		if err := p.s.WaitNavigatedFrom(ctx, from); err != nil {
			return err
		}
	} else if err := p.s.Goto(ctx, NewVaultPath); err != nil {
		return err
	}
	_, err := p.s.Find(ctx, selectors.CreateName)
	return err
}

// Fill enters every non-empty field of form.
func (p *CreateVaultPage) Fill(ctx context.Context, form VaultForm) error {
	fields := []struct {
		chain  string
		value  string
		choose bool
	}{
		{selectors.CreateName, form.Name, false},
		{selectors.CreateSymbol, form.Symbol, false},
		{selectors.CreateAsset, form.Asset, true},
		{selectors.CreateStrategy, form.Strategy, true},
		{selectors.CreateFee, form.FeePercent, false},
		{selectors.CreateMinDeposit, form.MinDeposit, false},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		var err error
		if f.choose {
			err = p.s.Select(ctx, f.chain, f.value)
		} else {
			err = p.s.Fill(ctx, f.chain, f.value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Submit clicks the form's submit button.
func (p *CreateVaultPage) Submit(ctx context.Context) error {
	return p.s.Click(ctx, selectors.CreateSubmit)
}

// ValidationErrors returns the validation messages currently shown.
func (p *CreateVaultPage) ValidationErrors(ctx context.Context) ([]string, error) {
	n, err := p.s.Count(ctx, selectors.CreateValidationError)
	if err != nil || n == 0 {
		return nil, err
	}
	texts, err := p.s.Texts(ctx, selectors.CreateValidationError)
	if err != nil {
		return nil, err
	}
	out := texts[:0]
	for _, t := range texts {
		if t != "" {
			out = append(out, t)
		}
	}
	return out, nil
}

// Create fills and submits the form, waits for the new vault's page and
// returns the title it shows. A form that stays put reports its validation
// messages.
func (p *CreateVaultPage) Create(ctx context.Context, form VaultForm) (string, error) {
	if err := p.Fill(ctx, form); err != nil {
		return "", err
	}
	from := p.s.URL()
	if err := p.Submit(ctx); err != nil {
		return "", err
	}
	if err := p.s.WaitNavigatedFrom(ctx, from); err != nil {
		if !errs.Is(err, errs.Timeout) {
			return "", err
		}
		if msgs, verr := p.ValidationErrors(ctx); verr == nil && len(msgs) > 0 {
			return "", errs.Newf(errs.AssertionFailed, "vault form rejected: %s", strings.Join(msgs, "; "))
		}
		return "", err
	}
	detail := NewVaultDetailPage(p.s)
	if err := detail.WaitLoaded(ctx); err != nil {
		return "", err
	}
	return detail.Name(ctx)
}
