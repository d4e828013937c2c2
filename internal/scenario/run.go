package scenario

import (
	"context"
	"strings"

	"github.com/kuitang/vaults-e2e/internal/browser"
	"github.com/kuitang/vaults-e2e/internal/errs"
	"github.com/kuitang/vaults-e2e/internal/obs"
	"github.com/kuitang/vaults-e2e/internal/report"
)

// SessionFactory opens a session for a named test. *browser.Runner is one.
type SessionFactory interface {
	NewSession(ctx context.Context, test string) (*browser.Session, error)
	Report() *report.Report
}

// Run executes sc in a fresh session and closes it afterwards. A session that
// cannot be opened is recorded as a failed setup step.
func Run(ctx context.Context, f SessionFactory, sc Scenario) error {
	log := obs.From(ctx).With("test", sc.Name)

	s, err := f.NewSession(ctx, sc.Name)
	if err != nil {
		f.Report().Add(report.Step{
			Test:    sc.Name,
			Name:    "setup",
			Status:  report.Fail,
			Message: err.Error(),
			Code:    string(errs.CodeOf(err)),
		})
		log.Error("session_setup_failed", "error", err)
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			log.Warn("session_close_failed", "error", cerr)
		}
	}()

	log.Info("scenario_started")
	err = sc.Run(s.Context(), s)
	if err != nil && !s.Failed() {
		// The body returned an error outside of any step.
		s.Fail(s.Context(), "scenario", err)
	}
	if consoleErrs := s.ConsoleErrors(); len(consoleErrs) > 0 {
		log.Warn("console_errors", "count", len(consoleErrs), "first", consoleErrs[0])
	}
	if err != nil {
		log.Error("scenario_failed", "error", err, "warnings", s.Warnings())
		return err
	}
	log.Info("scenario_passed", "warnings", s.Warnings())
	return nil
}

// RunAll runs scenarios sequentially and returns the names of those that
// failed. It stops early when ctx is cancelled.
func RunAll(ctx context.Context, f SessionFactory, scenarios []Scenario) []string {
	var failed []string
	for i, sc := range scenarios {
		if ctx.Err() != nil {
			obs.From(ctx).Warn("run_cancelled", "remaining", len(scenarios)-i)
			break
		}
		if err := Run(ctx, f, sc); err != nil {
			failed = append(failed, sc.Name)
		}
	}
	return failed
}

// Describe renders the registry for -list.
func Describe(r *Registry) string {
	var b strings.Builder
	width := 0
	for _, name := range r.Names() {
		if len(name) > width {
			width = len(name)
		}
	}
	for _, sc := range r.All() {
		b.WriteString(sc.Name)
		b.WriteString(strings.Repeat(" ", width-len(sc.Name)+2))
		b.WriteString(sc.Description)
		b.WriteByte('\n')
	}
	return b.String()
}
