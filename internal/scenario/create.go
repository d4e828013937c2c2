package scenario

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/kuitang/vaults-e2e/internal/browser"
	"github.com/kuitang/vaults-e2e/internal/errs"
	"github.com/kuitang/vaults-e2e/internal/pages"
)

// NewVaultForm returns a valid form with a name unique to this run.
func NewVaultForm() pages.VaultForm {
	suffix := strings.ToUpper(uuid.NewString()[:6])
	return pages.VaultForm{
		Name:       "E2E Vault " + suffix,
		Symbol:     "E2E" + suffix[:3],
		Asset:      "USDC",
		Strategy:   "lending",
		FeePercent: "2",
		MinDeposit: "10",
	}
}

// CreateVault fills the create form and checks the new vault's page.
func CreateVault(ctx context.Context, s *browser.Session) error {
	form := pages.NewCreateVaultPage(s)
	if err := s.Step(ctx, "open create form", form.Open); err != nil {
		return err
	}
	if err := connect(ctx, s); err != nil {
		return err
	}
	input := NewVaultForm()
	return s.Step(ctx, "create vault", func(ctx context.Context) error {
		title, err := form.Create(ctx, input)
		if err != nil {
			return err
		}
		return expectContains(title, input.Name, "new vault title")
	})
}

// CreateVaultValidation submits an empty form and then an out-of-range fee and
// expects field errors both times.
func CreateVaultValidation(ctx context.Context, s *browser.Session) error {
	form := pages.NewCreateVaultPage(s)
	if err := s.Step(ctx, "open create form", form.Open); err != nil {
		return err
	}

	if err := s.Step(ctx, "empty form rejected", func(ctx context.Context) error {
		if err := form.Submit(ctx); err != nil {
			return err
		}
		return expectValidationErrors(ctx, form)
	}); err != nil {
		return err
	}

	return s.SoftStep(ctx, "fee over 100% rejected", func(ctx context.Context) error {
		bad := NewVaultForm()
		bad.FeePercent = "150"
		if err := form.Fill(ctx, bad); err != nil {
			return err
		}
		if err := form.Submit(ctx); err != nil {
			return err
		}
		if err := expectValidationErrors(ctx, form); err != nil {
			return err
		}
		if !strings.HasSuffix(strings.TrimRight(s.URL(), "/"), pages.NewVaultPath) {
			return errs.Newf(errs.AssertionFailed, "left the form for %s", s.URL())
		}
		return nil
	})
}

func expectValidationErrors(ctx context.Context, form *pages.CreateVaultPage) error {
	msgs, err := form.ValidationErrors(ctx)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return errs.New(errs.AssertionFailed, "form submitted without validation errors")
	}
	return nil
}
