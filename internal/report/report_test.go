package report

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/vaults-e2e/internal/s3client"
)

func sampleReport() *Report {
	r := New("run-1", "local", "http://localhost:3000")
	r.Add(Step{Test: "vault-list", Name: "open vaults", Status: Pass, Duration: 120 * time.Millisecond})
	r.Add(Step{Test: "vault-list", Name: "count rows", Status: Warn, Message: "selector a|b missed", Code: "element_not_found"})
	r.Add(Step{Test: "sort-apr", Name: "sort", Status: Fail, Message: "APR column not sorted", ScreenshotURL: "https://cdn/x.png"})
	r.Add(Step{Test: "sort-apr", Name: "after sort", Status: Skip})
	r.BeginTest("positions")
	return r
}

func TestSummary_Counts(t *testing.T) {
	t.Parallel()
	r := sampleReport()
	r.Finish()
	s := r.Summary()
	assert.Equal(t, 3, s.Tests)
	assert.Equal(t, 1, s.Pass)
	assert.Equal(t, 1, s.Warn)
	assert.Equal(t, 1, s.Fail)
	assert.Equal(t, 1, s.Skip)
	assert.Equal(t, []string{"sort-apr"}, s.Failed)
	assert.False(t, s.OK())
	assert.True(t, r.Failed())
	assert.True(t, r.TestFailed("sort-apr"))
	assert.False(t, r.TestFailed("vault-list"))
	assert.Contains(t, s.Title(), "FAILED")
}

func TestMarkdown_Tables(t *testing.T) {
	t.Parallel()
	md := sampleReport().Markdown()
	assert.Contains(t, md, "# vaults-e2e run run-1")
	assert.Contains(t, md, "## vault-list")
	assert.Contains(t, md, "| 2 | count rows | ⚠️ warn |")
	assert.Contains(t, md, `selector a\|b missed`)
	assert.Contains(t, md, "[screenshot](https://cdn/x.png)")
	assert.Contains(t, md, "## positions")
	assert.Contains(t, md, "(no steps)")
}

func TestHTML_IsSanitized(t *testing.T) {
	t.Parallel()
	r := New("run-2", "staging", "https://staging.example")
	r.Add(Step{Test: "xss", Name: "<script>alert(1)</script>", Status: Fail})
	out := string(r.HTML())
	assert.Contains(t, out, "<table>")
	assert.NotContains(t, out, "<script>")
}

func TestWriteFilesAndUpload(t *testing.T) {
	r := sampleReport()
	dir := t.TempDir()
	paths, err := r.WriteFiles(dir)
	require.NoError(t, err)
	require.Len(t, paths, 3)

	raw, err := os.ReadFile(filepath.Join(dir, JSONFile))
	require.NoError(t, err)
	var doc struct {
		Summary Summary `json:"summary"`
		Steps   []Step  `json:"steps"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Len(t, doc.Steps, 4)
	assert.Equal(t, "run-1", doc.Summary.RunID)

	store := s3client.TestClient(t, "reports")
	url, err := r.Upload(context.Background(), store, paths)
	require.NoError(t, err)
	assert.Equal(t, store.GetPublicURL("run-1/report.html"), url)

	md, err := store.GetObject(context.Background(), "run-1/report.md")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(md), "# vaults-e2e run run-1"))
}

func TestAdd_Concurrent(t *testing.T) {
	t.Parallel()
	r := New("run-3", "local", "")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Add(Step{Test: "t", Name: "s", Status: Pass})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, r.Summary().Pass)
	assert.Equal(t, 1, r.Summary().Tests)
}
