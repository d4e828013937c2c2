package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/vaults-e2e/internal/config"
	"github.com/kuitang/vaults-e2e/internal/s3client"
)

type fakePage struct {
	calls int
	err   error
}

func (f *fakePage) Screenshot(options ...playwright.PageScreenshotOptions) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []byte("png"), nil
}

func TestCapture_StepModeNumbersFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s := New(Options{Mode: config.ScreenshotsStep, Dir: dir, RunID: "run-1", Test: "Sort APR"})
	page := &fakePage{}
	ctx := context.Background()

	first, ok, err := s.Capture(ctx, page, "Open vaults")
	require.NoError(t, err)
	require.True(t, ok)
	second, _, err := s.CaptureFailure(ctx, page, "Click header")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "run-1", "sort-apr", "01-open-vaults.png"), first.Path)
	assert.Equal(t, filepath.Join(dir, "run-1", "sort-apr", "02-click-header-failed.png"), second.Path)
	raw, err := os.ReadFile(first.Path)
	require.NoError(t, err)
	assert.Equal(t, "png", string(raw))
	assert.Len(t, s.Shots(), 2)
}

func TestCapture_Modes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	off := New(Options{Mode: config.ScreenshotsOff, Dir: t.TempDir()})
	page := &fakePage{}
	_, ok, err := off.Capture(ctx, page, "a")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, _ = off.CaptureFailure(ctx, page, "a")
	assert.False(t, ok)
	assert.Zero(t, page.calls)

	failure := New(Options{Mode: config.ScreenshotsFailure, Dir: t.TempDir(), RunID: "r", Test: "t"})
	_, ok, _ = failure.Capture(ctx, page, "a")
	assert.False(t, ok)
	_, ok, err = failure.CaptureFailure(ctx, page, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, page.calls)
}

func TestCapture_ScreenshotError(t *testing.T) {
	t.Parallel()
	s := New(Options{Mode: config.ScreenshotsStep, Dir: t.TempDir(), RunID: "r", Test: "t"})
	_, ok, err := s.Capture(context.Background(), &fakePage{err: errors.New("target closed")}, "a")
	assert.Error(t, err)
	assert.False(t, ok)

	_, _, err = s.Capture(context.Background(), nil, "a")
	assert.Error(t, err)
}

func TestCapture_UploadsToS3(t *testing.T) {
	store := s3client.TestClient(t, "shots")
	s := New(Options{Mode: config.ScreenshotsStep, Dir: t.TempDir(), RunID: "run-9", Test: "deposit", Uploader: store})

	shot, ok, err := s.Capture(context.Background(), &fakePage{}, "submit")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, store.GetPublicURL("run-9/deposit/01-submit.png"), shot.URL)

	raw, err := store.GetObject(context.Background(), "run-9/deposit/01-submit.png")
	require.NoError(t, err)
	assert.Equal(t, "png", string(raw))
}

func TestSanitize(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "deposit-100-usdc", Sanitize("Deposit 100 USDC!"))
	assert.Equal(t, "unnamed", Sanitize("///"))
	assert.Equal(t, 60, len(Sanitize(strings.Repeat("a", 100))))
}

func TestSanitize_IsPathSafe(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		name := rapid.String().Draw(t, "name")
		got := Sanitize(name)
		if got == "" || len(got) > 60 {
			t.Fatalf("Sanitize(%q) = %q", name, got)
		}
		if strings.ContainsAny(got, `/\. `) || strings.HasPrefix(got, "-") || strings.HasSuffix(got, "-") {
			t.Fatalf("Sanitize(%q) = %q is not path safe", name, got)
		}
	})
}
