package watchtower

import (
	"log/slog"

	"github.com/activationfn/watchtower/internal/ratelimit"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	port      int
	redisURL  string
	keyPrefix string
	dbPath    string
	logger    *slog.Logger
	version   string
	limiter   ratelimit.Limiter
}

// WithPort overrides the TCP port from config (WATCHTOWER_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithRedisURL overrides the registry's Redis URL (REDIS_URL env var).
func WithRedisURL(url string) Option {
	return func(o *resolvedOptions) { o.redisURL = url }
}

// WithKeyPrefix overrides the Redis key namespace (WATCHTOWER_KEY_PREFIX).
func WithKeyPrefix(prefix string) Option {
	return func(o *resolvedOptions) { o.keyPrefix = prefix }
}

// WithDBPath overrides the audit log's SQLite path (WATCHTOWER_DB_PATH).
func WithDBPath(path string) Option {
	return func(o *resolvedOptions) { o.dbPath = path }
}

// WithLogger supplies the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version reported by the service descriptor and the
// MCP handshake. Defaults to "dev".
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithLimiter replaces the config-driven rate limiter. The App does not
// close a caller-supplied limiter.
func WithLimiter(limiter ratelimit.Limiter) Option {
	return func(o *resolvedOptions) { o.limiter = limiter }
}
