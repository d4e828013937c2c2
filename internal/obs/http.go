package obs

import (
	"log/slog"
	"net/http"
	"time"
)

// statusWriter remembers the status code and body size of a response.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
	sent   bool
}

func (w *statusWriter) WriteHeader(code int) {
	if w.sent {
		return
	}
	w.status = code
	w.sent = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if !w.sent {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += int64(n)
	return n, err
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// AccessLogMiddleware logs one event per request served by pkg. The request
// path is attached as the page correlation field so fixture requests line up
// with the browser steps that caused them. Client and server errors log at
// warn, everything else at debug.
func AccessLogMiddleware(pkg string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		ctx := WithCorrelation(r.Context(), Correlation{Page: r.URL.Path})
		next.ServeHTTP(sw, r.WithContext(ctx))

		level := slog.LevelDebug
		if sw.status >= http.StatusBadRequest {
			level = slog.LevelWarn
		}
		From(ctx).With("pkg", pkg).Log(ctx, level, "http_access",
			"method", r.Method,
			"status", sw.status,
			"dur_ms", float64(time.Since(start).Microseconds())/1000.0,
			"resp_bytes", sw.bytes,
		)
	})
}
