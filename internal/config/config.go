// Package config is the single source of tunables for the vaults E2E suite.
// Values come from CLI flags, environment variables and an optional .env file,
// in that order of precedence.
package config

import (
	"bufio"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/big"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/kuitang/vaults-e2e/internal/logutil"
	"github.com/kuitang/vaults-e2e/internal/urlutil"
)

// Environments the suite knows how to target.
const (
	EnvLocal   = "local"
	EnvStaging = "staging"
	EnvCustom  = "custom"
)

// Screenshot modes.
const (
	ScreenshotsOff     = "off"
	ScreenshotsFailure = "failure"
	ScreenshotsStep    = "step"
)

const (
	defaultLocalURL = "http://localhost:3000"

	// DefaultWalletPrivateKey is the first Hardhat/Anvil development account.
	// It holds no real funds on any public network.
	DefaultWalletPrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
)

var defaultBalanceWei = new(big.Int).Mul(big.NewInt(10), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

// Config holds all suite configuration.
type Config struct {
	// Target
	Env        string
	LocalURL   string
	StagingURL string
	BaseURL    string

	// Timing
	Timeout           time.Duration
	NavigationTimeout time.Duration
	Retries           int
	RetryBackoff      time.Duration
	ActionsPerSecond  float64

	// Browser
	Browser        string
	Headless       bool
	SlowMo         time.Duration
	ViewportWidth  int
	ViewportHeight int

	// Artifacts
	Screenshots   string
	ArtifactsDir  string
	Strict        bool
	SelectorsFile string
	LogLevel      string

	// Wallet mock
	WalletPrivateKey string
	ChainID          int64
	WalletBalanceWei *big.Int

	// Artifact upload (uses AWS_ env vars)
	AWSEndpointS3      string
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSBucketName      string
	AWSPublicURL       string

	// Run notification
	ResendAPIKey    string
	ResendFromEmail string
	NotifyEmails    []string
}

// Flags are the CLI overrides accepted by the runner.
type Flags struct {
	Env      string
	BaseURL  string
	Run      string
	List     bool
	Headed   bool
	Strict   bool
	Fixture  bool
	EnvFile  string
	LogLevel string
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// ParseFlags parses runner flags from args (without the program name).
func ParseFlags(args []string) (Flags, error) {
	var f Flags
	fs := flag.NewFlagSet("vaulte2e", flag.ContinueOnError)
	fs.StringVar(&f.Env, "env", "", "Target environment: local, staging or custom (overrides E2E_ENV)")
	fs.StringVar(&f.BaseURL, "base-url", "", "Explicit base URL (overrides BASE_URL and -env)")
	fs.StringVar(&f.Run, "run", "", "Comma-separated scenario names or glob patterns to run (default: all)")
	fs.BoolVar(&f.List, "list", false, "List scenarios and exit")
	fs.BoolVar(&f.Headed, "headed", false, "Show the browser window (same as HEADLESS=false)")
	fs.BoolVar(&f.Strict, "strict", false, "Treat soft-step warnings as failures")
	fs.BoolVar(&f.Fixture, "fixture", false, "Serve the built-in fixture site and run against it")
	fs.StringVar(&f.EnvFile, "env-file", ".env", "Optional KEY=VALUE file loaded before reading the environment")
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	return f, nil
}

// LoadConfig loads configuration from environment variables and flag values.
func LoadConfig(f Flags) (*Config, error) {
	if f.EnvFile != "" {
		if err := LoadDotEnv(f.EnvFile); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = strings.ToLower(getEnvOrDefault("E2E_ENV", EnvLocal))
	if f.Env != "" {
		cfg.Env = strings.ToLower(f.Env)
	}
	cfg.LocalURL = urlutil.NormalizeBaseURL(getEnvOrDefault("LOCAL_BASE_URL", defaultLocalURL))
	cfg.StagingURL = urlutil.NormalizeBaseURL(os.Getenv("STAGING_BASE_URL"))
	cfg.BaseURL = urlutil.NormalizeBaseURL(os.Getenv("BASE_URL"))
	if f.BaseURL != "" {
		cfg.BaseURL = urlutil.NormalizeBaseURL(f.BaseURL)
	}
	if cfg.BaseURL != "" && f.Env == "" && os.Getenv("E2E_ENV") == "" {
		cfg.Env = EnvCustom
	}
	cfg.BaseURL = cfg.ResolveBaseURL()

	cfg.Timeout = parseMillisOrDefault("E2E_TIMEOUT_MS", 30*time.Second)
	cfg.NavigationTimeout = parseMillisOrDefault("E2E_NAV_TIMEOUT_MS", 60*time.Second)
	cfg.Retries = parseIntOrDefault("E2E_RETRIES", 2)
	cfg.RetryBackoff = parseDurationOrDefault("E2E_RETRY_BACKOFF", 500*time.Millisecond)
	cfg.ActionsPerSecond = parseFloat64OrDefault("E2E_ACTIONS_PER_SECOND", 0)

	cfg.Browser = strings.ToLower(getEnvOrDefault("E2E_BROWSER", "chromium"))
	cfg.Headless = os.Getenv("HEADLESS") != "false"
	if f.Headed {
		cfg.Headless = false
	}
	cfg.SlowMo = parseMillisOrDefault("E2E_SLOWMO_MS", 0)
	cfg.ViewportWidth, cfg.ViewportHeight = parseViewportOrDefault("E2E_VIEWPORT", 1280, 720)

	cfg.Screenshots = strings.ToLower(getEnvOrDefault("E2E_SCREENSHOTS", ScreenshotsStep))
	cfg.ArtifactsDir = getEnvOrDefault("E2E_ARTIFACTS_DIR", "./test-results")
	cfg.Strict = parseBoolOrDefault("E2E_STRICT", false) || f.Strict
	cfg.SelectorsFile = getEnvOrDefault("E2E_SELECTORS_FILE", "")
	cfg.LogLevel = getEnvOrDefault("E2E_LOG_LEVEL", "info")
	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}

	cfg.WalletPrivateKey = strings.TrimPrefix(getEnvOrDefault("E2E_WALLET_PRIVATE_KEY", DefaultWalletPrivateKey), "0x")
	cfg.ChainID = int64(parseIntOrDefault("E2E_CHAIN_ID", 1))
	cfg.WalletBalanceWei = parseBigOrDefault("E2E_WALLET_BALANCE_WEI", defaultBalanceWei)

	cfg.AWSEndpointS3 = getEnvOrDefault("AWS_ENDPOINT_URL_S3", "")
	cfg.AWSRegion = getEnvOrDefault("AWS_REGION", "auto")
	cfg.AWSAccessKeyID = getEnvOrDefault("AWS_ACCESS_KEY_ID", "")
	cfg.AWSSecretAccessKey = getEnvOrDefault("AWS_SECRET_ACCESS_KEY", "")
	cfg.AWSBucketName = getEnvOrDefault("BUCKET_NAME", "")
	cfg.AWSPublicURL = getEnvOrDefault("S3_PUBLIC_URL", "")
	if cfg.AWSPublicURL == "" && cfg.AWSEndpointS3 != "" && cfg.AWSBucketName != "" {
		cfg.AWSPublicURL = strings.TrimRight(cfg.AWSEndpointS3, "/") + "/" + cfg.AWSBucketName
	}

	cfg.ResendAPIKey = getEnvOrDefault("RESEND_API_KEY", "")
	cfg.ResendFromEmail = getEnvOrDefault("RESEND_FROM_EMAIL", "")
	cfg.NotifyEmails = splitList(os.Getenv("E2E_NOTIFY_EMAILS"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a validated configuration for the local environment with
// no environment variables consulted. Tests start from it.
func Default() *Config {
	return &Config{
		Env:               EnvLocal,
		LocalURL:          defaultLocalURL,
		BaseURL:           defaultLocalURL,
		Timeout:           30 * time.Second,
		NavigationTimeout: 60 * time.Second,
		Retries:           2,
		RetryBackoff:      500 * time.Millisecond,
		Browser:           "chromium",
		Headless:          true,
		ViewportWidth:     1280,
		ViewportHeight:    720,
		Screenshots:       ScreenshotsStep,
		ArtifactsDir:      "./test-results",
		LogLevel:          "info",
		WalletPrivateKey:  DefaultWalletPrivateKey,
		ChainID:           1,
		WalletBalanceWei:  new(big.Int).Set(defaultBalanceWei),
		AWSRegion:         "auto",
	}
}

// ResolveBaseURL returns the base URL for the configured environment.
// An explicit BaseURL always wins.
func (c *Config) ResolveBaseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	switch c.Env {
	case EnvStaging:
		return c.StagingURL
	case EnvLocal:
		return c.LocalURL
	default:
		return ""
	}
}

// Validate checks that all required configuration is present and valid.
func (c *Config) Validate() error {
	var errs []string

	switch c.Env {
	case EnvLocal, EnvStaging, EnvCustom:
	default:
		errs = append(errs, fmt.Sprintf("E2E_ENV must be one of local, staging, custom (got %q)", c.Env))
	}
	if c.BaseURL == "" {
		if c.Env == EnvStaging {
			errs = append(errs, "STAGING_BASE_URL is required when E2E_ENV=staging")
		} else {
			errs = append(errs, "BASE_URL is required")
		}
	} else if !urlutil.IsHTTPURL(c.BaseURL) {
		errs = append(errs, fmt.Sprintf("BASE_URL must be an absolute http(s) URL (got %q)", c.BaseURL))
	}

	if c.Timeout <= 0 {
		errs = append(errs, "E2E_TIMEOUT_MS must be positive")
	}
	if c.NavigationTimeout <= 0 {
		errs = append(errs, "E2E_NAV_TIMEOUT_MS must be positive")
	}
	if c.Retries < 0 || c.Retries > 10 {
		errs = append(errs, "E2E_RETRIES must be between 0 and 10")
	}
	if c.RetryBackoff < 0 {
		errs = append(errs, "E2E_RETRY_BACKOFF must not be negative")
	}
	if c.ActionsPerSecond < 0 {
		errs = append(errs, "E2E_ACTIONS_PER_SECOND must not be negative")
	}

	switch c.Browser {
	case "chromium", "firefox", "webkit":
	default:
		errs = append(errs, fmt.Sprintf("E2E_BROWSER must be chromium, firefox or webkit (got %q)", c.Browser))
	}
	if c.ViewportWidth <= 0 || c.ViewportHeight <= 0 {
		errs = append(errs, "E2E_VIEWPORT must be WIDTHxHEIGHT with positive values")
	}
	if c.SlowMo < 0 {
		errs = append(errs, "E2E_SLOWMO_MS must not be negative")
	}

	switch c.Screenshots {
	case ScreenshotsOff, ScreenshotsFailure, ScreenshotsStep:
	default:
		errs = append(errs, fmt.Sprintf("E2E_SCREENSHOTS must be off, failure or step (got %q)", c.Screenshots))
	}
	if c.Screenshots != ScreenshotsOff && strings.TrimSpace(c.ArtifactsDir) == "" {
		errs = append(errs, "E2E_ARTIFACTS_DIR is required when screenshots are enabled")
	}

	if len(c.WalletPrivateKey) != 64 {
		errs = append(errs, "E2E_WALLET_PRIVATE_KEY must be 64 hex characters (32 bytes)")
	} else if _, err := hex.DecodeString(c.WalletPrivateKey); err != nil {
		errs = append(errs, "E2E_WALLET_PRIVATE_KEY must be hex encoded")
	}
	if c.ChainID <= 0 {
		errs = append(errs, "E2E_CHAIN_ID must be positive")
	}
	if c.WalletBalanceWei == nil || c.WalletBalanceWei.Sign() < 0 {
		errs = append(errs, "E2E_WALLET_BALANCE_WEI must be a non-negative integer")
	}

	// Upload: all or nothing
	s3Fields := map[string]string{
		"AWS_ENDPOINT_URL_S3":   c.AWSEndpointS3,
		"BUCKET_NAME":           c.AWSBucketName,
		"AWS_ACCESS_KEY_ID":     c.AWSAccessKeyID,
		"AWS_SECRET_ACCESS_KEY": c.AWSSecretAccessKey,
	}
	if missing := partiallySet(s3Fields); len(missing) > 0 {
		for _, name := range missing {
			errs = append(errs, name+" is required when artifact upload is configured")
		}
	}

	// Notification: all or nothing
	if c.ResendAPIKey != "" || c.ResendFromEmail != "" || len(c.NotifyEmails) > 0 {
		if c.ResendAPIKey == "" {
			errs = append(errs, "RESEND_API_KEY is required when notifications are configured")
		}
		if c.ResendFromEmail == "" {
			errs = append(errs, "RESEND_FROM_EMAIL is required when notifications are configured")
		}
		if len(c.NotifyEmails) == 0 {
			errs = append(errs, "E2E_NOTIFY_EMAILS is required when notifications are configured")
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// UploadEnabled reports whether artifacts should be uploaded to S3.
func (c *Config) UploadEnabled() bool {
	return c.AWSEndpointS3 != "" && c.AWSBucketName != ""
}

// NotifyEnabled reports whether run summaries should be emailed.
func (c *Config) NotifyEnabled() bool {
	return c.ResendAPIKey != "" && len(c.NotifyEmails) > 0
}

// WalletAddress returns the checksummed address of the configured test key,
// or an empty string when the key is invalid.
func (c *Config) WalletAddress() string {
	key, err := crypto.HexToECDSA(c.WalletPrivateKey)
	if err != nil {
		return ""
	}
	return crypto.PubkeyToAddress(key.PublicKey).Hex()
}

// TimeoutMS is Timeout in the float milliseconds Playwright expects.
func (c *Config) TimeoutMS() float64 {
	return float64(c.Timeout.Milliseconds())
}

// NavigationTimeoutMS is NavigationTimeout in float milliseconds.
func (c *Config) NavigationTimeoutMS() float64 {
	return float64(c.NavigationTimeout.Milliseconds())
}

// Summary prints a human-readable summary with secrets redacted.
func (c *Config) Summary(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "vaults-e2e configuration")
	fmt.Fprintf(w, "  Env:        %s\n", c.Env)
	fmt.Fprintf(w, "  Base URL:   %s\n", c.BaseURL)
	fmt.Fprintf(w, "  Browser:    %s (headless=%t, viewport=%dx%d, slowmo=%s)\n",
		c.Browser, c.Headless, c.ViewportWidth, c.ViewportHeight, c.SlowMo)
	fmt.Fprintf(w, "  Timeouts:   action=%s navigation=%s\n", c.Timeout, c.NavigationTimeout)
	fmt.Fprintf(w, "  Retries:    %d (backoff %s)\n", c.Retries, c.RetryBackoff)
	fmt.Fprintf(w, "  Shots:      %s -> %s\n", c.Screenshots, c.ArtifactsDir)
	fmt.Fprintf(w, "  Strict:     %t\n", c.Strict)
	fmt.Fprintf(w, "  Wallet:     %s key=%s (chain %d)\n", c.WalletAddress(),
		logutil.RedactValue("E2E_WALLET_PRIVATE_KEY", c.WalletPrivateKey), c.ChainID)
	if c.UploadEnabled() {
		fmt.Fprintf(w, "  Upload:     s3 %s/%s (secret %s)\n", c.AWSEndpointS3, c.AWSBucketName,
			logutil.RedactValue("AWS_SECRET_ACCESS_KEY", c.AWSSecretAccessKey))
	} else {
		fmt.Fprintln(w, "  Upload:     disabled")
	}
	if c.NotifyEnabled() {
		fmt.Fprintf(w, "  Notify:     %s\n", strings.Join(c.NotifyEmails, ", "))
	} else {
		fmt.Fprintln(w, "  Notify:     disabled")
	}
	fmt.Fprintln(w, "")
}

// LoadDotEnv loads simple KEY=VALUE lines from path if it exists.
// Existing environment variables take precedence and are not overwritten.
func LoadDotEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open env file %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		i := strings.Index(line, "=")
		if i <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:i])
		val := strings.TrimSpace(line[i+1:])
		if len(val) >= 2 && ((val[0] == '"' && val[len(val)-1] == '"') || (val[0] == '\'' && val[len(val)-1] == '\'')) {
			val = val[1 : len(val)-1]
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if err := os.Setenv(key, val); err != nil {
			return fmt.Errorf("set %s from %s: %w", key, path, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read env file %s: %w", path, err)
	}
	return nil
}

// Helper functions for parsing environment variables

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func parseIntOrDefault(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseFloat64OrDefault(key string, defaultValue float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// parseMillisOrDefault reads an integer millisecond count.
func parseMillisOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return time.Duration(parsed) * time.Millisecond
}

func parseViewportOrDefault(key string, defaultWidth, defaultHeight int) (int, int) {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return defaultWidth, defaultHeight
	}
	w, h, ok := strings.Cut(value, "x")
	if !ok {
		return defaultWidth, defaultHeight
	}
	width, errW := strconv.Atoi(strings.TrimSpace(w))
	height, errH := strconv.Atoi(strings.TrimSpace(h))
	if errW != nil || errH != nil {
		return defaultWidth, defaultHeight
	}
	return width, height
}

func parseBigOrDefault(key string, defaultValue *big.Int) *big.Int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return new(big.Int).Set(defaultValue)
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return new(big.Int).Set(defaultValue)
	}
	return parsed
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// partiallySet returns the names of empty fields when at least one field is set.
func partiallySet(fields map[string]string) []string {
	var set, missing []string
	for name, value := range fields {
		if value == "" {
			missing = append(missing, name)
		} else {
			set = append(set, name)
		}
	}
	if len(set) == 0 {
		return nil
	}
	sort.Strings(missing)
	return missing
}
