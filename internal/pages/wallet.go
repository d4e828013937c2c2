package pages

import (
	"context"

	"github.com/kuitang/vaults-e2e/internal/browser"
	"github.com/kuitang/vaults-e2e/internal/selectors"
)

// WalletBar is the connect-wallet control present on every page.
type WalletBar struct {
	s *browser.Session
}

// NewWalletBar wraps s.
func NewWalletBar(s *browser.Session) *WalletBar {
	return &WalletBar{s: s}
}

// Connect clicks connect unless already connected, then waits for the
// connected address to show. Pages that read eth_accounts on load may
// connect on their own while the click is pending; that counts as connected.
func (w *WalletBar) Connect(ctx context.Context) error {
	if w.IsConnected(ctx) {
		return nil
	}
	if err := w.s.Click(ctx, selectors.WalletConnect); err != nil {
		if w.IsConnected(ctx) {
			return nil
		}
		return err
	}
	_, err := w.s.Find(ctx, selectors.WalletAddress)
	return err
}

// ConnectedAddress returns the address text the UI shows.
func (w *WalletBar) ConnectedAddress(ctx context.Context) (string, error) {
	return w.s.Text(ctx, selectors.WalletAddress)
}

// IsConnected reports whether an address is showing.
func (w *WalletBar) IsConnected(ctx context.Context) bool {
	return w.s.Visible(ctx, selectors.WalletAddress)
}
