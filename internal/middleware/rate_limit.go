package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/hive402/backend/internal/cache"
	"github.com/hive402/backend/internal/telemetry"
)

const maxIngestBody = 1 << 20

// IngestRateLimit applies a sliding window to ingestion attempts per client
// IP and claimed identity. The address in the body is unauthenticated at this
// point, so it only narrows the IP's window and never spends another
// client's quota. The body is restored for the handler. Limiter failures are
// logged and the request is let through.
func IngestRateLimit(limiter cache.RateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxIngestBody))
			r.Body.Close()
			if err != nil {
				http.Error(w, `{"error":"failed to read body"}`, http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			key := ingestKey(r, body)
			allowed, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.Warn("rate limiter unavailable", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				telemetry.IngestRateLimited.Inc()
				http.Error(w, `{"error":"too many ingestion attempts","reason":"rate_limited"}`, http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func ingestKey(r *http.Request, body []byte) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	key := "ip:" + host
	var peek struct {
		Address string `json:"address"`
	}
	if json.Unmarshal(body, &peek) == nil && peek.Address != "" {
		key += "|id:" + peek.Address
	}
	return key
}
