// Package report collects step outcomes for a run and renders them as
// Markdown, sanitized HTML and JSON.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

// Status is the outcome of a step.
type Status string

const (
	Pass Status = "pass"
	Warn Status = "warn"
	Fail Status = "fail"
	Skip Status = "skip"
)

// File names written by WriteFiles.
const (
	MarkdownFile = "report.md"
	HTMLFile     = "report.html"
	JSONFile     = "report.json"
)

// Step is one recorded step.
type Step struct {
	Test          string        `json:"test"`
	Name          string        `json:"name"`
	Status        Status        `json:"status"`
	Message       string        `json:"message,omitempty"`
	Code          string        `json:"code,omitempty"`
	Screenshot    string        `json:"screenshot,omitempty"`
	ScreenshotURL string        `json:"screenshot_url,omitempty"`
	Duration      time.Duration `json:"duration"`
}

// Summary counts steps and tests by outcome.
type Summary struct {
	RunID    string        `json:"run_id"`
	Env      string        `json:"env"`
	BaseURL  string        `json:"base_url"`
	Tests    int           `json:"tests"`
	Failed   []string      `json:"failed_tests,omitempty"`
	Pass     int           `json:"pass"`
	Warn     int           `json:"warn"`
	Fail     int           `json:"fail"`
	Skip     int           `json:"skip"`
	Duration time.Duration `json:"duration"`
	// ReportURL is set after a successful upload.
	ReportURL string `json:"report_url,omitempty"`
}

// OK reports whether no step failed.
func (s Summary) OK() bool {
	return s.Fail == 0
}

// Title is a one-line headline for notifications.
func (s Summary) Title() string {
	verdict := "passed"
	if !s.OK() {
		verdict = fmt.Sprintf("FAILED (%d failing)", len(s.Failed))
	}
	return fmt.Sprintf("vaults-e2e %s on %s: %s", s.RunID, s.Env, verdict)
}

// Report is a mutex-guarded list of steps for one run.
type Report struct {
	RunID    string
	Env      string
	BaseURL  string
	Started  time.Time
	Finished time.Time

	mu    sync.Mutex
	steps []Step
	tests []string
}

// New starts a report.
func New(runID, env, baseURL string) *Report {
	return &Report{RunID: runID, Env: env, BaseURL: baseURL, Started: time.Now()}
}

// Add appends a step.
func (r *Report) Add(step Step) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.noteTest(step.Test)
	r.steps = append(r.steps, step)
}

// BeginTest registers a test so it is counted even if it records no steps.
func (r *Report) BeginTest(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.noteTest(name)
}

func (r *Report) noteTest(name string) {
	for _, t := range r.tests {
		if t == name {
			return
		}
	}
	r.tests = append(r.tests, name)
}

// Finish stamps the end time.
func (r *Report) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Finished = time.Now()
}

// Steps returns a copy of the recorded steps.
func (r *Report) Steps() []Step {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Step, len(r.steps))
	copy(out, r.steps)
	return out
}

// TestSteps returns the steps recorded for test.
func (r *Report) TestSteps(test string) []Step {
	var out []Step
	for _, s := range r.Steps() {
		if s.Test == test {
			out = append(out, s)
		}
	}
	return out
}

// Summary counts the recorded steps.
func (r *Report) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Summary{RunID: r.RunID, Env: r.Env, BaseURL: r.BaseURL, Tests: len(r.tests)}
	failed := map[string]bool{}
	for _, step := range r.steps {
		switch step.Status {
		case Pass:
			s.Pass++
		case Warn:
			s.Warn++
		case Fail:
			s.Fail++
			if !failed[step.Test] {
				failed[step.Test] = true
				s.Failed = append(s.Failed, step.Test)
			}
		case Skip:
			s.Skip++
		}
	}
	end := r.Finished
	if end.IsZero() {
		end = time.Now()
	}
	s.Duration = end.Sub(r.Started).Round(time.Millisecond)
	return s
}

// Failed reports whether any step failed.
func (r *Report) Failed() bool {
	return !r.Summary().OK()
}

// TestFailed reports whether any step of test failed.
func (r *Report) TestFailed(test string) bool {
	for _, s := range r.TestSteps(test) {
		if s.Status == Fail {
			return true
		}
	}
	return false
}

var statusIcon = map[Status]string{
	Pass: "✅ pass",
	Warn: "⚠️ warn",
	Fail: "❌ fail",
	Skip: "⏭ skip",
}

// Markdown renders the report as a Markdown document with one table per test.
func (r *Report) Markdown() string {
	sum := r.Summary()
	steps := r.Steps()

	r.mu.Lock()
	tests := append([]string(nil), r.tests...)
	r.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "# vaults-e2e run %s\n\n", sum.RunID)
	fmt.Fprintf(&b, "- Environment: %s\n", sum.Env)
	fmt.Fprintf(&b, "- Base URL: %s\n", sum.BaseURL)
	fmt.Fprintf(&b, "- Started: %s\n", r.Started.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- Duration: %s\n", sum.Duration)
	fmt.Fprintf(&b, "- Result: **%d pass, %d warn, %d fail, %d skip** across %d tests\n\n",
		sum.Pass, sum.Warn, sum.Fail, sum.Skip, sum.Tests)

	for _, test := range tests {
		fmt.Fprintf(&b, "## %s\n\n", test)
		fmt.Fprintln(&b, "| # | Step | Status | Duration | Details |")
		fmt.Fprintln(&b, "|---|---|---|---|---|")
		n := 0
		for _, s := range steps {
			if s.Test != test {
				continue
			}
			n++
			details := cell(s.Message)
			if s.Code != "" {
				details = "`" + s.Code + "` " + details
			}
			if link := s.ScreenshotURL; link != "" {
				details += " [screenshot](" + link + ")"
			} else if s.Screenshot != "" {
				details += " `" + cell(s.Screenshot) + "`"
			}
			fmt.Fprintf(&b, "| %d | %s | %s | %s | %s |\n", n, cell(s.Name), statusIcon[s.Status],
				s.Duration.Round(time.Millisecond), strings.TrimSpace(details))
		}
		if n == 0 {
			fmt.Fprintln(&b, "| - | (no steps) | | | |")
		}
		fmt.Fprintln(&b)
	}
	return b.String()
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}

// HTML renders the Markdown report to sanitized HTML.
func (r *Report) HTML() []byte {
	extensions := parser.CommonExtensions | parser.AutoHeadingIDs | parser.NoEmptyLineBeforeBlock
	doc := parser.NewWithExtensions(extensions).Parse([]byte(r.Markdown()))

	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.HrefTargetBlank,
	})
	out := markdown.Render(doc, renderer)

	policy := bluemonday.UGCPolicy()
	policy.AllowElements("table", "thead", "tbody", "tr", "th", "td", "code")
	policy.AllowAttrs("align").OnElements("th", "td")
	return policy.SanitizeBytes(out)
}

// JSON renders the summary and steps.
func (r *Report) JSON() ([]byte, error) {
	doc := struct {
		Summary Summary `json:"summary"`
		Steps   []Step  `json:"steps"`
	}{r.Summary(), r.Steps()}
	return json.MarshalIndent(doc, "", "  ")
}

// WriteFiles writes the Markdown, HTML and JSON renderings into dir and
// returns their paths.
func (r *Report) WriteFiles(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("report: create %s: %w", dir, err)
	}
	js, err := r.JSON()
	if err != nil {
		return nil, fmt.Errorf("report: encode json: %w", err)
	}
	files := []struct {
		name string
		body []byte
	}{
		{MarkdownFile, []byte(r.Markdown())},
		{HTMLFile, r.HTML()},
		{JSONFile, js},
	}
	paths := make([]string, 0, len(files))
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := os.WriteFile(path, f.body, 0o644); err != nil {
			return nil, fmt.Errorf("report: write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// Uploader stores a local file under key and returns its public URL.
type Uploader interface {
	PutFile(ctx context.Context, key, localPath string) (string, error)
}

// Upload sends the files written by WriteFiles under "<run-id>/" and returns
// the public URL of the HTML report.
func (r *Report) Upload(ctx context.Context, up Uploader, paths []string) (string, error) {
	var htmlURL string
	for _, path := range paths {
		url, err := up.PutFile(ctx, r.RunID+"/"+filepath.Base(path), path)
		if err != nil {
			return "", fmt.Errorf("report: upload %s: %w", path, err)
		}
		if filepath.Base(path) == HTMLFile {
			htmlURL = url
		}
	}
	return htmlURL, nil
}
