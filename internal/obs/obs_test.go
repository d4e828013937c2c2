package obs

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestFrom_IncludesCorrelationFields(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutputForTests(&buf)
	defer restore()

	ctx := WithCorrelation(context.Background(), Correlation{RunID: "run-1", Test: "sort-apr"})
	ctx = WithStep(ctx, "click header")
	From(ctx).Info("hello")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "run-1", lines[0]["run_id"])
	assert.Equal(t, "sort-apr", lines[0]["test"])
	assert.Equal(t, "click header", lines[0]["step"])
	assert.NotContains(t, lines[0], "page")
}

func TestWithCorrelation_MergesNonEmpty(t *testing.T) {
	ctx := WithCorrelation(context.Background(), Correlation{RunID: "a", Page: "vaults"})
	ctx = WithCorrelation(ctx, Correlation{Test: "t"})

	corr := CorrelationFromContext(ctx)
	assert.Equal(t, Correlation{RunID: "a", Test: "t", Page: "vaults"}, corr)
	assert.Equal(t, Correlation{}, CorrelationFromContext(nil))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestAccessLogMiddleware_RecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutputForTests(&buf)
	defer restore()
	SetLevel(slog.LevelDebug)
	defer SetLevel(slog.LevelInfo)

	h := AccessLogMiddleware("fixture", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/vaults", nil))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "http_access", lines[0]["msg"])
	assert.Equal(t, float64(http.StatusTeapot), lines[0]["status"])
	assert.Equal(t, float64(len("short and stout")), lines[0]["resp_bytes"])
	assert.Equal(t, "/vaults", lines[0]["page"])
	assert.Equal(t, "WARN", lines[0]["level"])
}
