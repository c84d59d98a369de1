package ratelimit

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"

	"github.com/activationfn/watchtower/internal/model"
)

// KeyFunc extracts the limiter key from a request.
type KeyFunc func(r *http.Request) string

// AgentKey keys the limiter by the agent_id path value, falling back to the
// client IP for routes that carry no agent identity. Registration posts the
// agent_id in the body, so a brand-new agent is limited by IP until its
// first path-addressed call.
func AgentKey(r *http.Request) string {
	if id := r.PathValue("agent_id"); id != "" {
		return "agent:" + id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// Middleware enforces the limiter on the wrapped handler. A limiter failure
// fails open: a broken throttle must not take down status reporting.
func Middleware(limiter Limiter, keyFunc KeyFunc, logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := keyFunc(r)
		allowed, err := limiter.Allow(r.Context(), key)
		if err != nil {
			logger.Warn("rate limiter error, allowing request", "key", key, "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(model.ErrorResponse{
				Status: "error",
				Error:  "rate limit exceeded",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
