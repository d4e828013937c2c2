// Package browser drives one Playwright page per test: navigation, fallback
// selector lookups, retries, soft steps and per-step screenshots.
package browser

import (
	"context"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/vaults-e2e/internal/capture"
	"github.com/kuitang/vaults-e2e/internal/config"
	"github.com/kuitang/vaults-e2e/internal/errs"
	"github.com/kuitang/vaults-e2e/internal/obs"
	"github.com/kuitang/vaults-e2e/internal/ratelimit"
	"github.com/kuitang/vaults-e2e/internal/report"
	"github.com/kuitang/vaults-e2e/internal/selectors"
	"github.com/kuitang/vaults-e2e/internal/wallet"
)

// Options carry the run-wide collaborators shared by every session.
type Options struct {
	RunID    string
	Catalog  *selectors.Catalog
	Report   *report.Report
	Uploader capture.Uploader
}

// Runner owns the Playwright driver and one launched browser.
type Runner struct {
	cfg     *config.Config
	opts    Options
	account wallet.Account
	pacer   *ratelimit.Limiter

	pw      *playwright.Playwright
	browser playwright.Browser
}

// Start launches the configured browser. A missing Playwright installation is
// reported as errs.Unavailable so callers can skip instead of fail.
func Start(cfg *config.Config, opts Options) (*Runner, error) {
	account, err := wallet.NewAccount(cfg.WalletPrivateKey)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, "wallet key", err)
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.Catalog == nil {
		opts.Catalog, err = selectors.LoadFile(cfg.SelectorsFile)
		if err != nil {
			return nil, errs.Wrap(errs.InvalidArgument, "selector catalog", err)
		}
	}
	if opts.Report == nil {
		opts.Report = report.New(opts.RunID, cfg.Env, cfg.BaseURL)
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "playwright not available", err)
	}

	var bt playwright.BrowserType
	switch cfg.Browser {
	case "firefox":
		bt = pw.Firefox
	case "webkit":
		bt = pw.WebKit
	default:
		bt = pw.Chromium
	}
	browser, err := bt.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
		SlowMo:   playwright.Float(float64(cfg.SlowMo.Milliseconds())),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, errs.Wrap(errs.Unavailable, fmt.Sprintf("could not launch %s", cfg.Browser), err)
	}

	obs.Pkg("browser").Info("browser_started",
		"run_id", opts.RunID, "browser", cfg.Browser, "headless", cfg.Headless, "base_url", cfg.BaseURL)

	return &Runner{
		cfg:     cfg,
		opts:    opts,
		account: account,
		pacer:   ratelimit.New(ratelimit.Config{RPS: cfg.ActionsPerSecond, Burst: 1}),
		pw:      pw,
		browser: browser,
	}, nil
}

// RunID returns the run identifier.
func (r *Runner) RunID() string {
	return r.opts.RunID
}

// Report returns the run report.
func (r *Runner) Report() *report.Report {
	return r.opts.Report
}

// Config returns the configuration the runner was started with.
func (r *Runner) Config() *config.Config {
	return r.cfg
}

// NewSession opens a fresh browser context with the wallet mock installed and
// one page, for the test named test.
func (r *Runner) NewSession(ctx context.Context, test string) (*Session, error) {
	bctx, err := r.browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: r.cfg.ViewportWidth, Height: r.cfg.ViewportHeight},
	})
	if err != nil {
		return nil, errs.FromPlaywright(err, "new browser context")
	}
	bctx.SetDefaultTimeout(r.cfg.TimeoutMS())
	bctx.SetDefaultNavigationTimeout(r.cfg.NavigationTimeoutMS())

	provider := wallet.NewProvider(r.account, wallet.Options{ChainID: r.cfg.ChainID, Balance: r.cfg.WalletBalanceWei})
	if err := provider.Install(bctx); err != nil {
		_ = bctx.Close()
		return nil, errs.Wrap(errs.Internal, "install wallet", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, errs.FromPlaywright(err, "new page")
	}

	shooter := capture.New(capture.Options{
		Mode:     r.cfg.Screenshots,
		Dir:      r.cfg.ArtifactsDir,
		RunID:    r.opts.RunID,
		Test:     test,
		Uploader: r.opts.Uploader,
	})

	r.opts.Report.BeginTest(test)
	s := newSession(sessionDeps{
		cfg:      r.cfg,
		test:     test,
		bctx:     bctx,
		page:     page,
		wallet:   provider,
		catalog:  r.opts.Catalog,
		shooter:  shooter,
		report:   r.opts.Report,
		pacer:    r.pacer,
		pacerKey: hostOf(r.cfg.BaseURL),
		ctx:      obs.WithCorrelation(ctx, obs.Correlation{RunID: r.opts.RunID, Test: test}),
	})
	return s, nil
}

// Close shuts the browser and the Playwright driver down.
func (r *Runner) Close() error {
	r.pacer.Stop()
	var firstErr error
	if r.browser != nil {
		if err := r.browser.Close(); err != nil {
			firstErr = err
		}
	}
	if r.pw != nil {
		if err := r.pw.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Host
}
