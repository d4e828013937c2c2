// Package capture writes per-step screenshots and optionally uploads them.
package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/vaults-e2e/internal/config"
	"github.com/kuitang/vaults-e2e/internal/obs"
)

// Target is the part of playwright.Page a Shooter needs.
type Target interface {
	Screenshot(options ...playwright.PageScreenshotOptions) ([]byte, error)
}

// Uploader stores a local file under key and returns its public URL.
// *s3client.Client satisfies it.
type Uploader interface {
	PutFile(ctx context.Context, key, localPath string) (string, error)
}

// Shot is one captured screenshot.
type Shot struct {
	Step string `json:"step"`
	Path string `json:"path"`
	URL  string `json:"url,omitempty"`
}

// Options configure a Shooter.
type Options struct {
	Mode     string
	Dir      string
	RunID    string
	Test     string
	Uploader Uploader
}

// Shooter numbers and stores screenshots for one test.
type Shooter struct {
	opts Options

	mu    sync.Mutex
	seq   int
	shots []Shot
}

// New creates a Shooter. An empty mode behaves as off.
func New(opts Options) *Shooter {
	if opts.Mode == "" {
		opts.Mode = config.ScreenshotsOff
	}
	return &Shooter{opts: opts}
}

// Mode returns the configured screenshot mode.
func (s *Shooter) Mode() string {
	return s.opts.Mode
}

// Capture takes a screenshot for a completed step. It does nothing unless
// the mode is "step". ok reports whether a screenshot was written.
func (s *Shooter) Capture(ctx context.Context, target Target, step string) (shot Shot, ok bool, err error) {
	if s.opts.Mode != config.ScreenshotsStep {
		return Shot{}, false, nil
	}
	return s.take(ctx, target, step)
}

// CaptureFailure takes a screenshot for a failed step in "failure" and
// "step" modes.
func (s *Shooter) CaptureFailure(ctx context.Context, target Target, step string) (Shot, bool, error) {
	if s.opts.Mode == config.ScreenshotsOff {
		return Shot{}, false, nil
	}
	return s.take(ctx, target, step+"-failed")
}

// Shots returns the screenshots taken so far.
func (s *Shooter) Shots() []Shot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Shot, len(s.shots))
	copy(out, s.shots)
	return out
}

// Dir returns the directory screenshots for this test are written to.
func (s *Shooter) Dir() string {
	return filepath.Join(s.opts.Dir, Sanitize(s.opts.RunID), Sanitize(s.opts.Test))
}

func (s *Shooter) take(ctx context.Context, target Target, step string) (Shot, bool, error) {
	if target == nil {
		return Shot{}, false, fmt.Errorf("capture: no page for step %q", step)
	}

	s.mu.Lock()
	s.seq++
	name := fmt.Sprintf("%02d-%s.png", s.seq, Sanitize(step))
	s.mu.Unlock()

	png, err := target.Screenshot(playwright.PageScreenshotOptions{FullPage: playwright.Bool(true)})
	if err != nil {
		return Shot{}, false, fmt.Errorf("capture: screenshot %q: %w", step, err)
	}

	dir := s.Dir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Shot{}, false, fmt.Errorf("capture: create %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return Shot{}, false, fmt.Errorf("capture: write %s: %w", path, err)
	}

	shot := Shot{Step: step, Path: path}
	if s.opts.Uploader != nil {
		key := strings.Join([]string{Sanitize(s.opts.RunID), Sanitize(s.opts.Test), name}, "/")
		url, err := s.opts.Uploader.PutFile(ctx, key, path)
		if err != nil {
			// The local file is still useful; keep going.
			obs.From(ctx).Warn("screenshot_upload_failed", "path", path, "error", err)
		} else {
			shot.URL = url
		}
	}

	s.mu.Lock()
	s.shots = append(s.shots, shot)
	s.mu.Unlock()

	obs.From(ctx).Debug("screenshot_taken", "path", path, "url", shot.URL)
	return shot, true, nil
}

var unsafeChars = regexp.MustCompile(`[^a-z0-9]+`)

// Sanitize turns a step or test name into a lowercase file-name fragment.
func Sanitize(name string) string {
	s := unsafeChars.ReplaceAllString(strings.ToLower(name), "-")
	s = strings.Trim(s, "-")
	if len(s) > 60 {
		s = strings.TrimRight(s[:60], "-")
	}
	if s == "" {
		return "unnamed"
	}
	return s
}
