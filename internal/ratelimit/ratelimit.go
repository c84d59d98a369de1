// Package ratelimit throttles callers of the HTTP surface.
//
// The registry is built for chatty heartbeat traffic, but a misbehaving
// orchestration loop can still hammer a single agent_id hard enough to
// starve Redis round-trips for everyone else. The limiter caps per-key
// request rates ahead of the handlers; it is disabled unless configured.
package ratelimit

import "context"

// Limiter decides whether a request identified by key should be allowed.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Allow returns true if the request should proceed. Keys are opaque;
	// the middleware builds them from the request (e.g. "agent:a1").
	// Errors signal a limiter malfunction and are treated as fail-open.
	Allow(ctx context.Context, key string) (bool, error)

	// Close releases resources (cleanup goroutines).
	Close() error
}

// NoopLimiter permits every request. Used when rate limiting is disabled.
type NoopLimiter struct{}

// Allow always returns true.
func (NoopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }

// Close is a no-op.
func (NoopLimiter) Close() error { return nil }
