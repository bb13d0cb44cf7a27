package middleware

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += int64(n)
	return n, err
}

// Logger writes one access line per request. Requests to quiet paths (polled
// endpoints such as /health and /metrics) are logged at debug level unless
// they fail.
func Logger(log zerolog.Logger, quiet ...string) func(next http.Handler) http.Handler {
	skip := make(map[string]bool, len(quiet))
	for _, p := range quiet {
		skip[p] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			var evt *zerolog.Event
			switch {
			case rec.status >= 500:
				evt = log.Error()
			case rec.status >= 400:
				evt = log.Warn()
			case skip[r.URL.Path]:
				evt = log.Debug()
			default:
				evt = log.Info()
			}

			evt.
				Str("request_id", RequestIDFrom(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rec.status).
				Int64("bytes", rec.bytes).
				Dur("latency", time.Since(start)).
				Msg("api request")
		})
	}
}
