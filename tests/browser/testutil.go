// Package browser runs the suite's scenarios against the built-in fixture
// site in a real browser. All tests use BrowserTestEnv via
// SetupBrowserTestEnv(t) and skip when Playwright is not installed.
package browser

import (
	"context"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"

	suite "github.com/kuitang/vaults-e2e/internal/browser"
	"github.com/kuitang/vaults-e2e/internal/config"
	"github.com/kuitang/vaults-e2e/internal/fixtureapp"
	"github.com/kuitang/vaults-e2e/internal/s3client"
	"github.com/kuitang/vaults-e2e/internal/selectors"
)

const (
	browserTestBucketName = "browser-test-bucket"

	// Always use these timeout constants for browser tests. Never introduce
	// a larger timeout value anywhere in tests/browser.
	browserMaxTimeoutMS = 5000
	browserMaxTimeout   = 5 * time.Second
)

var browserFixtureMu sync.Mutex
var browserSharedFixture *BrowserTestEnv

// BrowserTestEnv is the shared environment for browser tests: the fixture
// site, an in-memory S3 for artifacts and, once InitBrowser ran, a runner.
type BrowserTestEnv struct {
	Server   *httptest.Server
	Fixture  *fixtureapp.Server
	BaseURL  string
	S3Client *s3client.Client
	TempDir  string

	runners   map[string]*suite.Runner
	browserMu sync.Mutex

	fakeS3Server *httptest.Server
}

// SetupBrowserTestEnv returns the shared environment, creating it on first use.
func SetupBrowserTestEnv(t *testing.T) *BrowserTestEnv {
	t.Helper()

	browserFixtureMu.Lock()
	defer browserFixtureMu.Unlock()

	if browserSharedFixture != nil {
		return browserSharedFixture
	}

	tempDir, err := os.MkdirTemp("", "vaults-browser-*")
	if err != nil {
		t.Fatalf("Failed to create shared browser fixture temp dir: %v", err)
	}

	fixture, err := fixtureapp.New(fixtureapp.DefaultOptions)
	if err != nil {
		t.Fatalf("Failed to build fixture site: %v", err)
	}
	server := httptest.NewServer(fixture.Handler())
	s3Client, s3Server := createMockS3(t, browserTestBucketName)

	browserSharedFixture = &BrowserTestEnv{
		Server:       server,
		Fixture:      fixture,
		BaseURL:      server.URL,
		S3Client:     s3Client,
		TempDir:      tempDir,
		runners:      make(map[string]*suite.Runner),
		fakeS3Server: s3Server,
	}
	return browserSharedFixture
}

func cleanupSharedBrowserTestEnv() {
	browserFixtureMu.Lock()
	defer browserFixtureMu.Unlock()

	env := browserSharedFixture
	if env == nil {
		return
	}
	for _, r := range env.runners {
		_ = r.Close()
	}
	env.Server.Close()
	env.Fixture.Close()
	env.fakeS3Server.Close()
	_ = os.RemoveAll(env.TempDir)
	browserSharedFixture = nil
}

func TestMain(m *testing.M) {
	code := m.Run()
	cleanupSharedBrowserTestEnv()
	os.Exit(code)
}

func createMockS3(t *testing.T, bucketName string) (*s3client.Client, *httptest.Server) {
	t.Helper()

	backend := s3mem.New()
	faker := gofakes3.New(backend)
	ts := httptest.NewServer(faker.Server())

	ctx := context.Background()
	sdkConfig, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("us-east-1"),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("test-key", "test-secret", ""),
		),
	)
	if err != nil {
		t.Fatalf("Failed to load AWS config: %v", err)
	}

	s3SDK := s3.NewFromConfig(sdkConfig, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(ts.URL)
		o.UsePathStyle = true
	})

	_, err = s3SDK.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(bucketName),
	})
	if err != nil {
		t.Fatalf("Failed to create mock S3 bucket: %v", err)
	}

	client := s3client.NewFromS3Client(s3SDK, bucketName, ts.URL+"/"+bucketName)
	return client, ts
}

// Config returns suite configuration pointed at the fixture site with the
// browser test timeouts.
func (env *BrowserTestEnv) Config() *config.Config {
	cfg := config.Default()
	cfg.Env = config.EnvCustom
	cfg.BaseURL = env.BaseURL
	cfg.Timeout = browserMaxTimeout
	cfg.NavigationTimeout = browserMaxTimeout
	cfg.Retries = 1
	cfg.RetryBackoff = 100 * time.Millisecond
	cfg.ArtifactsDir = env.TempDir
	cfg.Screenshots = config.ScreenshotsStep
	return cfg
}

// InitBrowser starts (or reuses) the default runner. Skips the test if
// Playwright is not available.
func (env *BrowserTestEnv) InitBrowser(t *testing.T) *suite.Runner {
	t.Helper()
	return env.runner(t, "default", env.Config(), nil)
}

// InitStrictBrowser is InitBrowser with soft steps turned into hard ones.
func (env *BrowserTestEnv) InitStrictBrowser(t *testing.T) *suite.Runner {
	t.Helper()
	cfg := env.Config()
	cfg.Strict = true
	return env.runner(t, "strict", cfg, nil)
}

// InitBrowserWithCatalog starts a runner whose selector catalog is cat.
func (env *BrowserTestEnv) InitBrowserWithCatalog(t *testing.T, key string, cat *selectors.Catalog) *suite.Runner {
	t.Helper()
	return env.runner(t, "catalog:"+key, env.Config(), cat)
}

// InitStrictBrowserWithCatalog combines InitStrictBrowser and
// InitBrowserWithCatalog.
func (env *BrowserTestEnv) InitStrictBrowserWithCatalog(t *testing.T, key string, cat *selectors.Catalog) *suite.Runner {
	t.Helper()
	cfg := env.Config()
	cfg.Strict = true
	return env.runner(t, "strict-catalog:"+key, cfg, cat)
}

func (env *BrowserTestEnv) runner(t *testing.T, key string, cfg *config.Config, cat *selectors.Catalog) *suite.Runner {
	t.Helper()

	env.browserMu.Lock()
	defer env.browserMu.Unlock()

	if r, ok := env.runners[key]; ok {
		return r
	}
	r, err := suite.Start(cfg, suite.Options{Catalog: cat, Uploader: env.S3Client})
	if err != nil {
		t.Skip("Playwright not available:", err)
	}
	env.runners[key] = r
	return r
}

// NewSession opens a session on r for test and closes it when t ends.
func NewSession(t *testing.T, r *suite.Runner) *suite.Session {
	t.Helper()

	s, err := r.NewSession(context.Background(), t.Name())
	if err != nil {
		t.Fatalf("could not open session: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// DumpOnFailure logs where the page was when t failed.
func DumpOnFailure(t *testing.T, s *suite.Session) {
	t.Helper()
	t.Cleanup(func() {
		if !t.Failed() || s.Closed() {
			return
		}
		title, _ := s.Page().Title()
		content, _ := s.Page().Content()
		if len(content) > 500 {
			content = content[:500] + "..."
		}
		t.Logf("Current URL: %s", s.URL())
		t.Logf("Current title: %s", title)
		t.Logf("Content preview: %s", content)
	})
}
