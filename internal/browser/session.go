package browser

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/vaults-e2e/internal/capture"
	"github.com/kuitang/vaults-e2e/internal/config"
	"github.com/kuitang/vaults-e2e/internal/errs"
	"github.com/kuitang/vaults-e2e/internal/logutil"
	"github.com/kuitang/vaults-e2e/internal/obs"
	"github.com/kuitang/vaults-e2e/internal/ratelimit"
	"github.com/kuitang/vaults-e2e/internal/report"
	"github.com/kuitang/vaults-e2e/internal/selectors"
	"github.com/kuitang/vaults-e2e/internal/urlutil"
	"github.com/kuitang/vaults-e2e/internal/wallet"
)

const (
	pollInterval       = 100 * time.Millisecond
	contentPreviewSize = 500
)

type sessionDeps struct {
	cfg      *config.Config
	test     string
	bctx     playwright.BrowserContext
	page     playwright.Page
	wallet   *wallet.Provider
	catalog  *selectors.Catalog
	shooter  *capture.Shooter
	report   *report.Report
	pacer    *ratelimit.Limiter
	pacerKey string
	ctx      context.Context
}

// Session is one test's browser context and page. Methods are meant to be
// called from a single goroutine; the page is driven sequentially.
type Session struct {
	sessionDeps

	mu            sync.Mutex
	closed        bool
	failures      int
	warnings      int
	consoleErrors []string
}

func newSession(d sessionDeps) *Session {
	s := &Session{sessionDeps: d}
	d.page.OnConsole(func(msg playwright.ConsoleMessage) {
		if msg.Type() != "error" {
			return
		}
		s.noteConsoleError(msg.Text())
	})
	d.page.OnPageError(func(err error) {
		s.noteConsoleError("uncaught: " + err.Error())
	})
	d.page.OnClose(func(playwright.Page) {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
	})
	return s
}

func (s *Session) noteConsoleError(text string) {
	s.mu.Lock()
	s.consoleErrors = append(s.consoleErrors, text)
	s.mu.Unlock()
	obs.From(s.ctx).Warn("page_console_error", "text", logutil.TruncateForLog(text, contentPreviewSize))
}

// Context returns the session's base context, carrying run and test
// correlation fields.
func (s *Session) Context() context.Context { return s.ctx }

// Test returns the test name.
func (s *Session) Test() string { return s.test }

// Page returns the underlying Playwright page.
func (s *Session) Page() playwright.Page { return s.page }

// Wallet returns the mock provider installed in this session.
func (s *Session) Wallet() *wallet.Provider { return s.wallet }

// Config returns the suite configuration.
func (s *Session) Config() *config.Config { return s.cfg }

// Catalog returns the selector catalog.
func (s *Session) Catalog() *selectors.Catalog { return s.catalog }

// Report returns the run report.
func (s *Session) Report() *report.Report { return s.report }

// ConsoleErrors returns console errors seen on the page so far.
func (s *Session) ConsoleErrors() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.consoleErrors...)
}

// Failed reports whether any step of this session failed.
func (s *Session) Failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures > 0
}

// Warnings returns the number of soft failures recorded.
func (s *Session) Warnings() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.warnings
}

// Closed is the page-closed guard.
func (s *Session) Closed() bool {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	return closed || s.page == nil || s.page.IsClosed()
}

func (s *Session) logger(ctx context.Context) *slog.Logger {
	return obs.From(ctx).With("pkg", "browser")
}

func (s *Session) pace(ctx context.Context) error {
	if s.pacer == nil {
		return nil
	}
	if err := s.pacer.Wait(ctx, s.pacerKey); err != nil {
		return errs.Wrap(errs.Timeout, "action pacing", err)
	}
	return nil
}

func pageClosedErr(what string) error {
	return errs.New(errs.PageClosed, what+": page is closed")
}

// Goto navigates to path relative to the base URL and waits for
// DOMContentLoaded.
func (s *Session) Goto(ctx context.Context, path string) error {
	target := urlutil.BuildAbsolute(s.cfg.BaseURL, path)
	if s.Closed() {
		return pageClosedErr("goto " + target)
	}
	if err := s.pace(ctx); err != nil {
		return err
	}
	_, err := s.page.Goto(target, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(s.cfg.NavigationTimeoutMS()),
	})
	if err != nil {
		s.dumpPage(ctx, "navigation failed")
		return errs.FromPlaywright(err, "goto "+target)
	}
	s.logger(ctx).Debug("navigated", "url", target)
	return nil
}

// WaitIdle waits for network idle. A timeout is logged and ignored since
// pages with polling never go idle.
func (s *Session) WaitIdle(ctx context.Context) error {
	if s.Closed() {
		return pageClosedErr("wait for network idle")
	}
	err := s.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(s.cfg.TimeoutMS()),
	})
	if err == nil {
		return nil
	}
	err = errs.FromPlaywright(err, "wait for network idle")
	if errs.Is(err, errs.Timeout) {
		s.logger(ctx).Debug("network_idle_timeout", "url", s.page.URL())
		return nil
	}
	return err
}

// Pause waits for d, capped at the action timeout.
func (s *Session) Pause(ctx context.Context, d time.Duration) error {
	if d > s.cfg.Timeout {
		d = s.cfg.Timeout
	}
	return sleepCtx(ctx, d)
}

// URL returns the current page URL.
func (s *Session) URL() string {
	if s.Closed() {
		return ""
	}
	return s.page.URL()
}

// WaitNavigatedFrom waits until the page has left from and the new document
// reached DOMContentLoaded. Call it after an action that navigates so lookups
// do not match elements of the page being left.
func (s *Session) WaitNavigatedFrom(ctx context.Context, from string) error {
	if s.Closed() {
		return pageClosedErr("wait for navigation")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(errs.Timeout, "wait for navigation", err)
	}
	err := s.page.WaitForURL(func(u string) bool { return u != from }, playwright.PageWaitForURLOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(s.cfg.NavigationTimeoutMS()),
	})
	if err != nil {
		s.dumpPage(ctx, "navigation did not happen")
		return errs.FromPlaywright(err, "wait for navigation away from "+from)
	}
	s.logger(ctx).Debug("navigated", "from", from, "url", s.page.URL())
	return nil
}

func (s *Session) chain(name string) (selectors.Chain, error) {
	chain, err := s.catalog.Get(name)
	if err != nil {
		return selectors.Chain{}, errs.Wrap(errs.InvalidArgument, "selector lookup", err)
	}
	return chain, nil
}

// Find returns the first visible element matched by the named chain.
func (s *Session) Find(ctx context.Context, name string) (playwright.Locator, error) {
	chain, err := s.chain(name)
	if err != nil {
		return nil, err
	}
	return s.FindChain(ctx, chain)
}

// FindChain is Find for an explicit chain, e.g. one scoped to a row.
func (s *Session) FindChain(ctx context.Context, chain selectors.Chain) (playwright.Locator, error) {
	if s.Closed() {
		return nil, pageClosedErr("find " + chain.Name)
	}

	// Cheap pass first: the page is usually already rendered.
	if loc, idx, ok := s.visibleNow(chain); ok {
		s.noteCandidate(ctx, chain, idx)
		return loc, nil
	}

	per := probeBudget(s.cfg.Timeout, len(chain.Candidates))
	var found playwright.Locator
	idx, err := firstMatch(chain, func(sel string) error {
		loc := s.page.Locator(sel).First()
		werr := loc.WaitFor(playwright.LocatorWaitForOptions{
			State:   playwright.WaitForSelectorStateVisible,
			Timeout: playwright.Float(float64(per.Milliseconds())),
		})
		if werr != nil {
			return s.classifyProbe(werr, sel)
		}
		found = loc
		return nil
	})
	if err != nil {
		if errs.Is(err, errs.ElementNotFound) {
			s.dumpPage(ctx, "element not found")
		}
		return nil, err
	}
	s.noteCandidate(ctx, chain, idx)
	return found, nil
}

// visibleNow checks each candidate once without waiting.
func (s *Session) visibleNow(chain selectors.Chain) (playwright.Locator, int, bool) {
	var found playwright.Locator
	idx, err := firstMatch(chain, func(sel string) error {
		loc := s.page.Locator(sel).First()
		ok, verr := loc.IsVisible()
		if verr != nil {
			return s.classifyProbe(verr, sel)
		}
		if !ok {
			return errs.New(errs.ElementNotFound, sel)
		}
		found = loc
		return nil
	})
	return found, idx, err == nil
}

// classifyProbe maps a failed probe to a recoverable miss unless the page
// went away. Invalid selectors in an override file count as misses too.
func (s *Session) classifyProbe(err error, sel string) error {
	coded := errs.FromPlaywright(err, sel)
	if errs.Is(coded, errs.PageClosed) || s.Closed() {
		return pageClosedErr("probe " + sel)
	}
	if errs.Is(coded, errs.Timeout) {
		return coded
	}
	return errs.Wrap(errs.ElementNotFound, "selector "+sel, err)
}

func (s *Session) noteCandidate(ctx context.Context, chain selectors.Chain, idx int) {
	if idx > 0 {
		s.logger(ctx).Info("selector_fallback_used", "chain", chain.Name, "index", idx, "selector", chain.Candidates[idx])
	}
}

// FindAll waits until some candidate of the named chain matches at least one
// element and returns a locator for all of its matches with their count.
func (s *Session) FindAll(ctx context.Context, name string) (playwright.Locator, int, error) {
	chain, err := s.chain(name)
	if err != nil {
		return nil, 0, err
	}
	deadline := time.Now().Add(s.cfg.Timeout)
	for {
		loc, n, err := s.countNow(chain)
		if err != nil {
			return nil, 0, err
		}
		if n > 0 {
			return loc, n, nil
		}
		if time.Now().After(deadline) {
			s.dumpPage(ctx, "no elements")
			return nil, 0, errs.Newf(errs.ElementNotFound, "%s: no candidate matched any element within %s", chain.Name, s.cfg.Timeout)
		}
		if err := sleepCtx(ctx, pollInterval); err != nil {
			return nil, 0, errs.Wrap(errs.Timeout, "find all "+chain.Name, err)
		}
	}
}

// Count returns how many elements the first matching candidate selects,
// without waiting. Zero means no candidate matched.
func (s *Session) Count(ctx context.Context, name string) (int, error) {
	chain, err := s.chain(name)
	if err != nil {
		return 0, err
	}
	_, n, err := s.countNow(chain)
	return n, err
}

func (s *Session) countNow(chain selectors.Chain) (playwright.Locator, int, error) {
	if s.Closed() {
		return nil, 0, pageClosedErr("count " + chain.Name)
	}
	var (
		found playwright.Locator
		count int
	)
	_, err := firstMatch(chain, func(sel string) error {
		loc := s.page.Locator(sel)
		n, cerr := loc.Count()
		if cerr != nil {
			return s.classifyProbe(cerr, sel)
		}
		if n == 0 {
			return errs.New(errs.ElementNotFound, sel)
		}
		found, count = loc, n
		return nil
	})
	if errs.Is(err, errs.ElementNotFound) {
		return nil, 0, nil
	}
	return found, count, err
}

// Visible reports whether any candidate of the named chain is visible now.
func (s *Session) Visible(ctx context.Context, name string) bool {
	chain, err := s.chain(name)
	if err != nil || s.Closed() {
		return false
	}
	_, _, ok := s.visibleNow(chain)
	return ok
}

// Retry runs fn until it succeeds, fails with a non-retryable error, or the
// configured retries are used up. Backoff grows linearly.
func (s *Session) Retry(ctx context.Context, what string, fn func() error) error {
	policy := retryPolicy{
		retries: s.cfg.Retries,
		backoff: s.cfg.RetryBackoff,
		closed:  s.Closed,
		onRetry: func(attempt int, err error) {
			s.logger(ctx).Info("retrying", "what", what, "attempt", attempt, "error", err)
		},
	}
	return policy.do(ctx, what, fn)
}

// Click clicks the first visible element of the named chain.
func (s *Session) Click(ctx context.Context, name string) error {
	what := "click " + name
	return s.Retry(ctx, what, func() error {
		if err := s.pace(ctx); err != nil {
			return err
		}
		loc, err := s.Find(ctx, name)
		if err != nil {
			return err
		}
		return errs.FromPlaywright(loc.Click(playwright.LocatorClickOptions{
			Timeout: playwright.Float(s.cfg.TimeoutMS()),
		}), what)
	})
}

// ClickTimes clicks the named element n times with pause in between.
func (s *Session) ClickTimes(ctx context.Context, name string, n int, pause time.Duration) error {
	for i := 0; i < n; i++ {
		if i > 0 {
			if err := s.Pause(ctx, pause); err != nil {
				return errs.Wrap(errs.Timeout, "pause between clicks", err)
			}
		}
		if err := s.Click(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// Fill replaces the value of the named input.
func (s *Session) Fill(ctx context.Context, name, value string) error {
	what := "fill " + name
	return s.Retry(ctx, what, func() error {
		if err := s.pace(ctx); err != nil {
			return err
		}
		loc, err := s.Find(ctx, name)
		if err != nil {
			return err
		}
		return errs.FromPlaywright(loc.Fill(value, playwright.LocatorFillOptions{
			Timeout: playwright.Float(s.cfg.TimeoutMS()),
		}), what)
	})
}

// Select picks an option by value or label in the named select element.
func (s *Session) Select(ctx context.Context, name, value string) error {
	what := "select " + name
	return s.Retry(ctx, what, func() error {
		if err := s.pace(ctx); err != nil {
			return err
		}
		loc, err := s.Find(ctx, name)
		if err != nil {
			return err
		}
		values := []string{value}
		_, err = loc.SelectOption(playwright.SelectOptionValues{Values: &values}, playwright.LocatorSelectOptionOptions{
			Timeout: playwright.Float(s.cfg.TimeoutMS()),
		})
		if err == nil {
			return nil
		}
		labels := []string{value}
		_, err = loc.SelectOption(playwright.SelectOptionValues{Labels: &labels}, playwright.LocatorSelectOptionOptions{
			Timeout: playwright.Float(s.cfg.TimeoutMS()),
		})
		return errs.FromPlaywright(err, what)
	})
}

// Text returns the trimmed inner text of the named element.
func (s *Session) Text(ctx context.Context, name string) (string, error) {
	loc, err := s.Find(ctx, name)
	if err != nil {
		return "", err
	}
	text, err := loc.InnerText()
	if err != nil {
		return "", errs.FromPlaywright(err, "text of "+name)
	}
	return strings.TrimSpace(text), nil
}

// Texts returns the trimmed inner text of every element the named chain
// matches.
func (s *Session) Texts(ctx context.Context, name string) ([]string, error) {
	loc, _, err := s.FindAll(ctx, name)
	if err != nil {
		return nil, err
	}
	texts, err := loc.AllInnerTexts()
	if err != nil {
		return nil, errs.FromPlaywright(err, "texts of "+name)
	}
	for i := range texts {
		texts[i] = strings.TrimSpace(texts[i])
	}
	return texts, nil
}

// Attr returns an attribute of the named element.
func (s *Session) Attr(ctx context.Context, name, attr string) (string, error) {
	loc, err := s.Find(ctx, name)
	if err != nil {
		return "", err
	}
	v, err := loc.GetAttribute(attr)
	if err != nil {
		return "", errs.FromPlaywright(err, attr+" of "+name)
	}
	return v, nil
}

// InputValue returns the current value of the named input.
func (s *Session) InputValue(ctx context.Context, name string) (string, error) {
	loc, err := s.Find(ctx, name)
	if err != nil {
		return "", err
	}
	v, err := loc.InputValue()
	if err != nil {
		return "", errs.FromPlaywright(err, "value of "+name)
	}
	return v, nil
}

// Eval evaluates a JavaScript expression in the page.
func (s *Session) Eval(ctx context.Context, expr string) (any, error) {
	if s.Closed() {
		return nil, pageClosedErr("evaluate")
	}
	v, err := s.page.Evaluate(expr)
	if err != nil {
		return nil, errs.FromPlaywright(err, "evaluate")
	}
	return v, nil
}

// dumpPage logs where the page is, to make lookup failures debuggable.
func (s *Session) dumpPage(ctx context.Context, reason string) {
	if s.Closed() {
		return
	}
	title, _ := s.page.Title()
	content, _ := s.page.Content()
	s.logger(ctx).Info("page_state",
		"reason", reason,
		"url", s.page.URL(),
		"title", title,
		"content_preview", logutil.TruncateForLog(content, contentPreviewSize),
	)
}

// Close closes the browser context. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	already := s.closed && s.bctx == nil
	s.closed = true
	bctx := s.bctx
	s.bctx = nil
	s.mu.Unlock()
	if already || bctx == nil {
		return nil
	}
	if err := bctx.Close(); err != nil {
		return errs.FromPlaywright(err, "close context")
	}
	return nil
}
