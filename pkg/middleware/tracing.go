package middleware

import (
	"math/rand"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/tracing"
)

// Tracing returns middleware that opens a root span for a sampled
// fraction of requests. The request ID doubles as the trace ID, so span
// records correlate with the request logs. sampleRate is clamped to
// [0, 1]; handlers deeper in the stack attach child spans through the
// request context.
func Tracing(sampleRate float64) func(http.Handler) http.Handler {
	if sampleRate < 0 {
		sampleRate = 0
	}
	if sampleRate > 1 {
		sampleRate = 1
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rand.Float64() >= sampleRate {
				next.ServeHTTP(w, r)
				return
			}

			ctx, span := tracing.StartSpan(r.Context(), "http_request", GetRequestID(r.Context()))
			span.SetAttr("method", r.Method)
			span.SetAttr("path", r.URL.Path)

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r.WithContext(ctx))

			span.SetAttr("status", sw.status)
			span.EndAndLog()
		})
	}
}
