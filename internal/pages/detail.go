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

const outcomePoll = 100 * time.Millisecond

// Outcome is what the UI reported after a deposit or withdrawal.
type Outcome struct {
	Success bool
	Message string
}

// VaultDetailPage is a single vault's page with its deposit and withdraw
// panel.
type VaultDetailPage struct {
	s *browser.Session
}

// NewVaultDetailPage wraps s.
func NewVaultDetailPage(s *browser.Session) *VaultDetailPage {
	return &VaultDetailPage{s: s}
}

// WaitLoaded waits for the vault title.
func (p *VaultDetailPage) WaitLoaded(ctx context.Context) error {
	_, err := p.s.Find(ctx, selectors.DetailTitle)
	return err
}

// Name returns the vault title.
func (p *VaultDetailPage) Name(ctx context.Context) (string, error) {
	return p.s.Text(ctx, selectors.DetailTitle)
}

// APR returns the vault's parsed APR.
func (p *VaultDetailPage) APR(ctx context.Context) (decimal.Decimal, error) {
	text, err := p.s.Text(ctx, selectors.DetailAPR)
	if err != nil {
		return decimal.Zero, err
	}
	v, err := display.ParseAPR(text)
	if err != nil {
		return decimal.Zero, errs.Wrap(errs.AssertionFailed, "detail APR", err)
	}
	return v, nil
}

// TVL returns the vault's parsed total value locked.
func (p *VaultDetailPage) TVL(ctx context.Context) (decimal.Decimal, error) {
	text, err := p.s.Text(ctx, selectors.DetailTVL)
	if err != nil {
		return decimal.Zero, err
	}
	v, err := display.ParseAmount(text)
	if err != nil {
		return decimal.Zero, errs.Wrap(errs.AssertionFailed, "detail TVL", err)
	}
	return v, nil
}

// Deposit switches to the deposit tab, enters amount, submits and waits for
// the UI to report an outcome.
func (p *VaultDetailPage) Deposit(ctx context.Context, amount string) (Outcome, error) {
	return p.submit(ctx, selectors.DetailDepositTab, amount)
}

// Withdraw is Deposit for the withdraw tab.
func (p *VaultDetailPage) Withdraw(ctx context.Context, amount string) (Outcome, error) {
	return p.submit(ctx, selectors.DetailWithdrawTab, amount)
}

func (p *VaultDetailPage) submit(ctx context.Context, tab, amount string) (Outcome, error) {
	if err := p.s.Click(ctx, tab); err != nil {
		return Outcome{}, err
	}
	if err := p.s.Fill(ctx, selectors.DetailAmountInput, amount); err != nil {
		return Outcome{}, err
	}
	prev, shown, err := p.currentOutcome(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if err := p.s.Click(ctx, selectors.DetailSubmit); err != nil {
		return Outcome{}, err
	}
	return p.waitOutcome(ctx, newOutcomeWatcher(prev, shown))
}

// UseMax clicks the max button on the current tab and returns the amount it
// filled in.
func (p *VaultDetailPage) UseMax(ctx context.Context, tab string) (string, error) {
	if err := p.s.Click(ctx, tab); err != nil {
		return "", err
	}
	deadline := time.Now().Add(p.s.Config().Timeout)
	for {
		if err := p.s.Click(ctx, selectors.DetailMaxButton); err != nil {
			return "", err
		}
		v, err := p.s.InputValue(ctx, selectors.DetailAmountInput)
		if err != nil || v != "" {
			return v, err
		}
		// Balances may still be loading.
		if time.Now().After(deadline) {
			return "", errs.New(errs.AssertionFailed, "max button left the amount empty")
		}
		if err := p.s.Pause(ctx, outcomePoll); err != nil {
			return "", errs.Wrap(errs.Timeout, "max amount", err)
		}
	}
}

// WaitOutcome polls for a success toast or an error message.
func (p *VaultDetailPage) WaitOutcome(ctx context.Context) (Outcome, error) {
	return p.waitOutcome(ctx, newOutcomeWatcher(Outcome{}, false))
}

func (p *VaultDetailPage) waitOutcome(ctx context.Context, w *outcomeWatcher) (Outcome, error) {
	deadline := time.Now().Add(p.s.Config().Timeout)
	for {
		if p.s.Closed() {
			return Outcome{}, errs.New(errs.PageClosed, "waiting for transaction outcome")
		}
		out, shown, err := p.currentOutcome(ctx)
		if err != nil {
			return Outcome{}, err
		}
		if w.accept(out, shown) {
			return out, nil
		}
		if time.Now().After(deadline) {
			if w.stale() {
				return Outcome{}, errs.Newf(errs.Timeout, "only the previous message %q stayed on screen for %s", w.prev.Message, p.s.Config().Timeout)
			}
			return Outcome{}, errs.Newf(errs.Timeout, "no success or error message within %s", p.s.Config().Timeout)
		}
		if err := p.s.Pause(ctx, outcomePoll); err != nil {
			return Outcome{}, errs.Wrap(errs.Timeout, "waiting for transaction outcome", err)
		}
	}
}

// currentOutcome reads whichever outcome is on screen now. A message that
// vanishes while being read counts as none shown.
func (p *VaultDetailPage) currentOutcome(ctx context.Context) (Outcome, bool, error) {
	for _, c := range []struct {
		chain   string
		success bool
	}{
		{selectors.DetailToast, true},
		{selectors.DetailError, false},
	} {
		if !p.s.Visible(ctx, c.chain) {
			continue
		}
		msg, err := p.s.Text(ctx, c.chain)
		if err != nil {
			if errs.Recoverable(err) {
				return Outcome{}, false, nil
			}
			return Outcome{}, false, err
		}
		return Outcome{Success: c.success, Message: msg}, true, nil
	}
	return Outcome{}, false, nil
}

// outcomeWatcher accepts an outcome only once it differs from the one on
// screen before the action, or after that one has gone away.
type outcomeWatcher struct {
	prev    Outcome
	cleared bool
}

func newOutcomeWatcher(prev Outcome, shown bool) *outcomeWatcher {
	return &outcomeWatcher{prev: prev, cleared: !shown}
}

func (w *outcomeWatcher) accept(cur Outcome, shown bool) bool {
	if !shown {
		w.cleared = true
		return false
	}
	return w.cleared || cur != w.prev
}

func (w *outcomeWatcher) stale() bool { return !w.cleared }

// Message returns whichever outcome message is showing, or "".
func (p *VaultDetailPage) Message(ctx context.Context) string {
	for _, name := range []string{selectors.DetailToast, selectors.DetailError} {
		if p.s.Visible(ctx, name) {
			if msg, err := p.s.Text(ctx, name); err == nil {
				return msg
			}
		}
	}
	return ""
}
