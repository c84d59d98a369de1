// Package watchtower is the public API for embedding the agent run-registry
// and audit-log server.
//
// Orchestration platforms that already have a process supervisor import this
// package to run the server in-process instead of shipping the binary:
//
//	app, err := watchtower.New(ctx,
//	    watchtower.WithVersion(version),
//	    watchtower.WithLogger(logger),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: watchtower (root) imports
// internal/*, but internal/* never imports watchtower (root).
package watchtower

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/activationfn/watchtower/internal/auditlog"
	"github.com/activationfn/watchtower/internal/config"
	"github.com/activationfn/watchtower/internal/mcp"
	"github.com/activationfn/watchtower/internal/ratelimit"
	"github.com/activationfn/watchtower/internal/registry"
	"github.com/activationfn/watchtower/internal/server"
	"github.com/activationfn/watchtower/internal/telemetry"
)

// App is the Watchtower server lifecycle. Construct with New(), run with
// Run(). App has no public fields — use New() options to configure it.
type App struct {
	cfg          config.Config
	redisClient  *redis.Client
	tracker      *registry.Tracker
	audit        *auditlog.Log
	srv          *server.Server
	otelShutdown telemetry.Shutdown
	ownedLimiter *ratelimit.MemoryLimiter
}

// New loads configuration, connects both stores, and assembles the HTTP and
// MCP surfaces. It fails fast: an unreachable Redis or an unwritable SQLite
// path is an error here, not at first request.
func New(ctx context.Context, opts ...Option) (*App, error) {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("watchtower: load config: %w", err)
	}

	var o resolvedOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.redisURL != "" {
		cfg.RedisURL = o.redisURL
	}
	if o.keyPrefix != "" {
		cfg.KeyPrefix = o.keyPrefix
	}
	if o.dbPath != "" {
		cfg.DBPath = o.dbPath
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("watchtower: telemetry: %w", err)
	}

	app := &App{cfg: cfg, otelShutdown: otelShutdown}

	// Ephemeral store: one shared client for the life of the process.
	// go-redis dials lazily, so the ping is what actually verifies the URL.
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		app.closePartial(ctx)
		return nil, fmt.Errorf("watchtower: parse redis url: %w", err)
	}
	app.redisClient = redis.NewClient(redisOpts)

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := app.redisClient.Ping(pingCtx).Err(); err != nil {
		app.closePartial(ctx)
		return nil, fmt.Errorf("watchtower: ping redis: %w", err)
	}

	app.tracker = registry.New(app.redisClient, cfg.KeyPrefix, logger)

	// Durable store: opened once; connections are leased per statement.
	app.audit, err = auditlog.Open(ctx, cfg.DBPath, logger)
	if err != nil {
		app.closePartial(ctx)
		return nil, fmt.Errorf("watchtower: auditlog: %w", err)
	}

	limiter := o.limiter
	if limiter == nil {
		limiter = ratelimit.Limiter(ratelimit.NoopLimiter{})
		if cfg.RateLimitPerSecond > 0 {
			ml := ratelimit.NewMemoryLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst)
			app.ownedLimiter = ml
			limiter = ml
		}
	}

	mcpSrv := mcp.New(app.tracker, logger, version)

	app.srv = server.New(server.ServerConfig{
		Tracker:             app.tracker,
		Audit:               app.audit,
		Logger:              logger,
		Limiter:             limiter,
		MCPServer:           mcpSrv.MCPServer(),
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	return app, nil
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully and
// releases every resource New acquired. Run returns once shutdown completes.
func (a *App) Run(ctx context.Context) error {
	defer a.closePartial(context.Background())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("watchtower: http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Handler returns the root HTTP handler, for embedders that mount the
// service under their own server instead of calling Run.
func (a *App) Handler() http.Handler {
	return a.srv.Handler()
}

// closePartial releases whatever New managed to acquire. Safe on a
// half-constructed App.
func (a *App) closePartial(ctx context.Context) {
	if a.ownedLimiter != nil {
		_ = a.ownedLimiter.Close()
	}
	if a.audit != nil {
		_ = a.audit.Close()
	}
	if a.redisClient != nil {
		_ = a.redisClient.Close()
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(ctx)
	}
}
