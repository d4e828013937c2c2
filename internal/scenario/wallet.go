package scenario

import (
	"context"

	"github.com/kuitang/vaults-e2e/internal/browser"
	"github.com/kuitang/vaults-e2e/internal/display"
	"github.com/kuitang/vaults-e2e/internal/errs"
	"github.com/kuitang/vaults-e2e/internal/pages"
	"github.com/kuitang/vaults-e2e/internal/selectors"
)

// Amounts entered by the transaction scenarios.
const (
	DepositAmount  = "1.5"
	WithdrawAmount = "0.5"
)

// ConnectWallet connects the mock wallet and checks the UI shows its address.
func ConnectWallet(ctx context.Context, s *browser.Session) error {
	list := pages.NewVaultsPage(s)
	if err := s.Step(ctx, "open vaults", list.Open); err != nil {
		return err
	}
	if err := connect(ctx, s); err != nil {
		return err
	}
	return s.SoftStep(ctx, "wallet asked for accounts", func(ctx context.Context) error {
		if s.Wallet().CallCount("eth_requestAccounts") == 0 && s.Wallet().CallCount("eth_accounts") == 0 {
			return errs.New(errs.AssertionFailed, "page never asked the wallet for accounts")
		}
		return nil
	})
}

// connect runs the connect and address-check steps shared by every
// wallet scenario.
func connect(ctx context.Context, s *browser.Session) error {
	bar := pages.NewWalletBar(s)
	if err := s.Step(ctx, "connect wallet", bar.Connect); err != nil {
		return err
	}
	return s.Step(ctx, "address shown", func(ctx context.Context) error {
		shown, err := bar.ConnectedAddress(ctx)
		if err != nil {
			return err
		}
		addr := s.Wallet().Account().Hex()
		if !display.MatchesAddress(shown, addr) {
			return errs.Newf(errs.AssertionFailed, "wallet bar shows %q, want %s", shown, display.ShortAddress(addr))
		}
		return nil
	})
}

// openFirstVaultConnected opens the listing, connects the wallet and opens
// the first vault.
func openFirstVaultConnected(ctx context.Context, s *browser.Session) (*pages.VaultDetailPage, error) {
	list := pages.NewVaultsPage(s)
	if err := s.Step(ctx, "open vaults", list.Open); err != nil {
		return nil, err
	}
	if err := connect(ctx, s); err != nil {
		return nil, err
	}
	var detail *pages.VaultDetailPage
	err := s.Step(ctx, "open first vault", func(ctx context.Context) error {
		var err error
		detail, err = list.OpenVault(ctx, 0)
		return err
	})
	return detail, err
}

// transact runs a deposit or withdrawal and asserts the UI reported success
// and the wallet signed exactly one new transaction.
func transact(ctx context.Context, s *browser.Session, name string, do func(context.Context) (pages.Outcome, error)) error {
	before := len(s.Wallet().Transactions())
	if err := s.Step(ctx, name, func(ctx context.Context) error {
		out, err := do(ctx)
		if err != nil {
			return err
		}
		if !out.Success {
			return errs.Newf(errs.AssertionFailed, "%s reported an error: %s", name, out.Message)
		}
		return nil
	}); err != nil {
		return err
	}
	return s.SoftStep(ctx, name+" signed", func(ctx context.Context) error {
		txs := s.Wallet().Transactions()
		if got := len(txs) - before; got != 1 {
			return errs.Newf(errs.AssertionFailed, "wallet sent %d transactions, want 1", got)
		}
		if from := txs[len(txs)-1].From; from != s.Wallet().Account().Address {
			return errs.Newf(errs.AssertionFailed, "transaction sent from %s", from.Hex())
		}
		return nil
	})
}

// Deposit deposits into the first vault.
func Deposit(ctx context.Context, s *browser.Session) error {
	detail, err := openFirstVaultConnected(ctx, s)
	if err != nil {
		return err
	}
	return transact(ctx, s, "deposit", func(ctx context.Context) (pages.Outcome, error) {
		return detail.Deposit(ctx, DepositAmount)
	})
}

// Withdraw deposits into the first vault and then withdraws part of it.
func Withdraw(ctx context.Context, s *browser.Session) error {
	detail, err := openFirstVaultConnected(ctx, s)
	if err != nil {
		return err
	}
	if err := transact(ctx, s, "deposit", func(ctx context.Context) (pages.Outcome, error) {
		return detail.Deposit(ctx, DepositAmount)
	}); err != nil {
		return err
	}
	if err := s.SoftStep(ctx, "withdraw max filled", func(ctx context.Context) error {
		v, err := detail.UseMax(ctx, selectors.DetailWithdrawTab)
		if err != nil {
			return err
		}
		if _, err := display.ParseAmount(v); err != nil {
			return errs.Wrap(errs.AssertionFailed, "max amount "+v, err)
		}
		return nil
	}); err != nil {
		return err
	}
	return transact(ctx, s, "withdraw", func(ctx context.Context) (pages.Outcome, error) {
		return detail.Withdraw(ctx, WithdrawAmount)
	})
}

// DepositRejected makes the wallet refuse to sign and asserts the UI shows an
// error without any transaction being sent.
func DepositRejected(ctx context.Context, s *browser.Session) error {
	detail, err := openFirstVaultConnected(ctx, s)
	if err != nil {
		return err
	}
	s.Wallet().SetRejecting(true)
	defer s.Wallet().SetRejecting(false)

	before := len(s.Wallet().Transactions())
	return s.Step(ctx, "deposit rejected", func(ctx context.Context) error {
		out, err := detail.Deposit(ctx, DepositAmount)
		if err != nil {
			return err
		}
		if out.Success {
			return errs.Newf(errs.AssertionFailed, "deposit succeeded despite rejection: %s", out.Message)
		}
		if after := len(s.Wallet().Transactions()); after != before {
			return errs.Newf(errs.AssertionFailed, "wallet recorded %d transactions after rejecting", after-before)
		}
		return nil
	})
}
