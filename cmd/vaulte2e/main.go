// Command vaulte2e drives the vaults web application through a real browser
// with a mocked wallet, recording a step-by-step report with screenshots.
//
// Usage:
//
//	vaulte2e [-env local|staging] [-base-url URL] [-run pattern,...] [-list] [-headed] [-strict] [-fixture]
//
// Run against the built-in fixture site:
//
//	go run ./cmd/vaulte2e -fixture
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/kuitang/vaults-e2e/internal/browser"
	"github.com/kuitang/vaults-e2e/internal/config"
	"github.com/kuitang/vaults-e2e/internal/errs"
	"github.com/kuitang/vaults-e2e/internal/fixtureapp"
	"github.com/kuitang/vaults-e2e/internal/notify"
	"github.com/kuitang/vaults-e2e/internal/obs"
	"github.com/kuitang/vaults-e2e/internal/report"
	"github.com/kuitang/vaults-e2e/internal/s3client"
	"github.com/kuitang/vaults-e2e/internal/scenario"
)

// Exit codes.
const (
	exitOK          = 0
	exitFailed      = 1
	exitUsage       = 2
	exitUnavailable = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags, err := config.ParseFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	obs.Init()
	registry := scenario.Default()
	if flags.List {
		fmt.Print(scenario.Describe(registry))
		return exitOK
	}

	selected, err := registry.Select(scenario.SplitPatterns(flags.Run))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var fixture *fixtureapp.Running
	if flags.Fixture {
		fixture, err = fixtureapp.Start("127.0.0.1:0", fixtureapp.DefaultOptions)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fixture site: %v\n", err)
			return exitFailed
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = fixture.Shutdown(shutdownCtx)
		}()
		flags.BaseURL = fixture.URL
		flags.Env = config.EnvCustom
	}

	cfg, err := config.LoadConfig(flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}
	obs.SetLevel(obs.ParseLevel(cfg.LogLevel))
	cfg.Summary(os.Stdout)

	runID := uuid.NewString()
	ctx = obs.WithCorrelation(ctx, obs.Correlation{RunID: runID})
	log := obs.From(ctx)

	var uploader *s3client.Client
	if cfg.UploadEnabled() {
		uploader, err = s3client.New(ctx, s3client.Config{
			Endpoint:        cfg.AWSEndpointS3,
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			BucketName:      cfg.AWSBucketName,
			Prefix:          "e2e",
			PublicURL:       cfg.AWSPublicURL,
			UsePathStyle:    cfg.AWSEndpointS3 != "",
		})
		if err != nil {
			log.Warn("artifact_upload_disabled", "error", err)
			uploader = nil
		}
	}

	opts := browser.Options{RunID: runID}
	if uploader != nil {
		opts.Uploader = uploader
	}
	runner, err := browser.Start(cfg, opts)
	if err != nil {
		if errs.Is(err, errs.Unavailable) {
			fmt.Fprintf(os.Stderr, "browser unavailable: %v\nInstall with: go run github.com/playwright-community/playwright-go/cmd/playwright install --with-deps\n", err)
			return exitUnavailable
		}
		fmt.Fprintln(os.Stderr, err)
		return exitFailed
	}
	defer func() {
		if err := runner.Close(); err != nil {
			log.Warn("browser_close_failed", "error", err)
		}
	}()

	log.Info("run_started", "scenarios", len(selected), "base_url", cfg.BaseURL)
	failed := scenario.RunAll(ctx, runner, selected)

	rep := runner.Report()
	rep.Finish()
	summary := publish(ctx, cfg, rep, uploader)

	var notifier notify.Notifier
	switch {
	case cfg.NotifyEnabled():
		notifier = notify.NewResendNotifier(cfg.ResendAPIKey, cfg.ResendFromEmail, cfg.NotifyEmails)
	case fixture != nil:
		notifier = notify.NewMockNotifier(filepath.Join(cfg.ArtifactsDir, runID, "outbox"))
	}
	if notifier != nil {
		if err := notifier.Send(ctx, notify.Message{Summary: summary, HTML: rep.HTML()}); err != nil {
			log.Warn("notify_failed", "error", err)
		}
	}

	fmt.Println()
	fmt.Println(summary.Title())
	fmt.Printf("  steps: %d pass, %d warn, %d fail, %d skip\n", summary.Pass, summary.Warn, summary.Fail, summary.Skip)
	if summary.ReportURL != "" {
		fmt.Printf("  report: %s\n", summary.ReportURL)
	}
	if len(failed) > 0 || !summary.OK() {
		return exitFailed
	}
	return exitOK
}

// publish writes the report files and uploads them when an uploader is set.
func publish(ctx context.Context, cfg *config.Config, rep *report.Report, uploader *s3client.Client) report.Summary {
	log := obs.From(ctx)
	dir := filepath.Join(cfg.ArtifactsDir, rep.RunID)
	paths, err := rep.WriteFiles(dir)
	if err != nil {
		log.Error("report_write_failed", "dir", dir, "error", err)
	} else {
		fmt.Printf("Report written to %s\n", dir)
	}

	summary := rep.Summary()
	if uploader == nil || len(paths) == 0 {
		return summary
	}
	url, err := rep.Upload(ctx, uploader, paths)
	if err != nil {
		log.Warn("report_upload_failed", "error", err)
		return summary
	}
	summary.ReportURL = url
	return summary
}
