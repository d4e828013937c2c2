package browser

import (
	"context"
	"time"

	"github.com/kuitang/vaults-e2e/internal/capture"
	"github.com/kuitang/vaults-e2e/internal/errs"
	"github.com/kuitang/vaults-e2e/internal/obs"
	"github.com/kuitang/vaults-e2e/internal/report"
)

// StepFunc is the body of a step. Its context carries the step name.
type StepFunc func(ctx context.Context) error

// Step runs fn and records the outcome. A failure is returned to the caller,
// which should stop the scenario. On a closed page the step is skipped.
func (s *Session) Step(ctx context.Context, name string, fn StepFunc) error {
	return s.runStep(ctx, name, fn, false)
}

// SoftStep runs fn like Step, but a recoverable failure is logged, recorded
// as a warning and swallowed so the scenario can continue. In strict mode it
// behaves exactly like Step.
func (s *Session) SoftStep(ctx context.Context, name string, fn StepFunc) error {
	return s.runStep(ctx, name, fn, !s.cfg.Strict)
}

func (s *Session) runStep(ctx context.Context, name string, fn StepFunc, soft bool) error {
	ctx = obs.WithStep(ctx, name)
	log := s.logger(ctx)

	if s.Closed() {
		s.record(report.Step{Test: s.test, Name: name, Status: report.Skip, Message: "page is closed", Code: string(errs.PageClosed)})
		log.Info("step_skipped", "reason", "page closed")
		return pageClosedErr(name)
	}

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	if err == nil {
		step := report.Step{Test: s.test, Name: name, Status: report.Pass, Duration: elapsed}
		s.attachShot(ctx, &step, false)
		s.record(step)
		log.Info("step_passed", "duration_ms", elapsed.Milliseconds())
		return nil
	}

	if s.Closed() && !errs.Is(err, errs.PageClosed) {
		err = errs.Wrap(errs.PageClosed, name, err)
	}
	step := report.Step{
		Test:     s.test,
		Name:     name,
		Message:  err.Error(),
		Code:     string(errs.CodeOf(err)),
		Duration: elapsed,
	}

	if soft && errs.Recoverable(err) {
		step.Status = report.Warn
		s.attachShot(ctx, &step, true)
		s.record(step)
		s.mu.Lock()
		s.warnings++
		s.mu.Unlock()
		log.Warn("soft_step_failed", "error", err, "code", step.Code, "duration_ms", elapsed.Milliseconds())
		return nil
	}

	step.Status = report.Fail
	s.attachShot(ctx, &step, true)
	s.record(step)
	s.mu.Lock()
	s.failures++
	s.mu.Unlock()
	log.Error("step_failed", "error", err, "code", step.Code, "duration_ms", elapsed.Milliseconds())
	return err
}

// Fail records a failure outside any step, for setup errors.
func (s *Session) Fail(ctx context.Context, name string, err error) {
	s.record(report.Step{Test: s.test, Name: name, Status: report.Fail, Message: err.Error(), Code: string(errs.CodeOf(err))})
	s.mu.Lock()
	s.failures++
	s.mu.Unlock()
	s.logger(ctx).Error("test_failed", "step", name, "error", err)
}

func (s *Session) record(step report.Step) {
	if s.report != nil {
		s.report.Add(step)
	}
}

func (s *Session) attachShot(ctx context.Context, step *report.Step, failed bool) {
	if s.shooter == nil || s.Closed() {
		return
	}
	var (
		shot capture.Shot
		ok   bool
		err  error
	)
	if failed {
		shot, ok, err = s.shooter.CaptureFailure(ctx, s.page, step.Name)
	} else {
		shot, ok, err = s.shooter.Capture(ctx, s.page, step.Name)
	}
	if err != nil {
		s.logger(ctx).Warn("screenshot_failed", "error", err)
		return
	}
	if ok {
		step.Screenshot = shot.Path
		step.ScreenshotURL = shot.URL
	}
}
