package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nopaper/gateway/internal/audit"
	"github.com/nopaper/gateway/internal/blacklist"
	"github.com/nopaper/gateway/internal/cache"
	"github.com/nopaper/gateway/internal/circuitbreaker"
	"github.com/nopaper/gateway/internal/config"
	"github.com/nopaper/gateway/internal/gateway"
	"github.com/nopaper/gateway/internal/middleware"
	"github.com/nopaper/gateway/internal/observability"
	"github.com/nopaper/gateway/internal/proxy"
	"github.com/nopaper/gateway/internal/ratelimit"
	"github.com/nopaper/gateway/internal/routing"
	"github.com/nopaper/gateway/internal/store"
)

// blacklistSweepInterval is how often expired blacklist rows are purged.
const blacklistSweepInterval = 10 * time.Minute

// app holds the wired gateway components.
type app struct {
	cfg        *config.GatewayConfig
	configPath string
	logger     observability.Logger

	sqlStore *store.SQLStore
	shared   cache.Cache
	routes   *routing.Cache
	recorder *audit.Recorder
	server   *http.Server
}

// newApp wires all gateway components from configuration.
func newApp(cfg *config.GatewayConfig, configPath string, logger observability.Logger) (*app, error) {
	sqlStore, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	shared, limiter, err := buildCacheAndLimiter(cfg, logger)
	if err != nil {
		_ = sqlStore.Close()
		return nil, err
	}

	routes := routing.NewCache(sqlStore, shared, cfg.RouteCache.TTL.Duration(),
		routing.WithLogger(logger))

	var guard *blacklist.Guard
	if cfg.Blacklist.Enabled {
		guard = blacklist.NewGuard(sqlStore, shared, cfg.Blacklist.CacheTTL.Duration(),
			blacklist.WithLogger(logger),
			blacklist.WithBreaker(circuitbreaker.New("blacklist", 5, 30*time.Second,
				circuitbreaker.WithLogger(logger))),
		)
	}

	var recorder *audit.Recorder
	if cfg.Audit.Enabled {
		recorder = audit.NewRecorder(sqlStore, cfg.Audit.QueueSize, cfg.Audit.Workers,
			audit.WithLogger(logger))
	}

	upstream := proxy.New(
		proxy.WithLogger(logger),
		proxy.WithUpstreamTimeout(cfg.Server.UpstreamTimeout.Duration()),
	)

	handler := gateway.New(gateway.Options{
		Logger:             logger,
		Routes:             routes,
		Guard:              guard,
		Limiter:            limiter,
		KeyFunc:            ratelimit.CompositeKeyFunc(middleware.ClientIP, nil),
		Recorder:           recorder,
		Upstream:           upstream,
		AuditRequestBody:   cfg.Audit.LogRequestBody,
		AuditResponseBody:  cfg.Audit.LogResponseBody,
		TemplatingEnabled:  cfg.Templating.Enabled,
		TemplatingMaxBytes: cfg.Templating.MaxBufferBytes,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/", handler)

	server := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &app{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		sqlStore:   sqlStore,
		shared:     shared,
		routes:     routes,
		recorder:   recorder,
		server:     server,
	}, nil
}

// buildCacheAndLimiter creates the shared cache and the limiter over it.
// Without a Redis address the gateway runs single-instance: an in-memory
// cache and per-instance token buckets.
func buildCacheAndLimiter(
	cfg *config.GatewayConfig,
	logger observability.Logger,
) (cache.Cache, ratelimit.Limiter, error) {
	if cfg.Redis.Address == "" {
		logger.Warn("no redis address configured, rate limits apply per instance")
		return cache.NewMemoryCache(), ratelimit.NewLocalLimiter(), nil
	}

	shared, err := cache.NewRedisCache(&cfg.Redis, logger)
	if err != nil {
		return nil, nil, err
	}

	limiter := ratelimit.NewCacheLimiter(shared,
		ratelimit.WithLogger(logger),
		ratelimit.WithBreaker(circuitbreaker.New("ratelimit", 5, 30*time.Second,
			circuitbreaker.WithLogger(logger))),
	)
	return shared, limiter, nil
}

// Run starts the gateway and blocks until shutdown completes.
func (a *app) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watcher := a.startConfigWatcher(ctx)
	go a.sweepBlacklist(ctx)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("listening",
			observability.String("address", a.cfg.Server.Address),
		)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.shutdown(watcher)
		return err
	}

	a.shutdown(watcher)
	return nil
}

// startConfigWatcher watches the config file and invalidates the route
// cache on changes. A failed watcher start is logged and the gateway
// keeps running with the boot-time configuration.
func (a *app) startConfigWatcher(ctx context.Context) *config.Watcher {
	watcher, err := config.NewWatcher(a.configPath, func(_ *config.GatewayConfig) {
		a.logger.Info("configuration changed, invalidating route table")
		a.routes.Invalidate(context.Background())
	}, config.WithLogger(a.logger))
	if err != nil {
		a.logger.Warn("config watcher unavailable", observability.Error(err))
		return nil
	}
	if err := watcher.Start(ctx); err != nil {
		a.logger.Warn("config watcher failed to start", observability.Error(err))
		return nil
	}
	return watcher
}

// sweepBlacklist periodically purges expired blacklist rows.
func (a *app) sweepBlacklist(ctx context.Context) {
	ticker := time.NewTicker(blacklistSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := a.sqlStore.DeleteExpired(ctx, time.Now())
			if err != nil {
				a.logger.Warn("blacklist sweep failed", observability.Error(err))
				continue
			}
			if deleted > 0 {
				a.logger.Info("purged expired blacklist entries",
					observability.Int64("deleted", deleted),
				)
			}
		}
	}
}

// shutdown drains the server, audit queue, and backing connections.
func (a *app) shutdown(watcher *config.Watcher) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("server shutdown incomplete", observability.Error(err))
	}

	if watcher != nil {
		_ = watcher.Stop()
	}

	if a.recorder != nil {
		a.recorder.Close()
	}

	if err := a.shared.Close(); err != nil {
		a.logger.Warn("cache close failed", observability.Error(err))
	}
	if err := a.sqlStore.Close(); err != nil {
		a.logger.Warn("store close failed", observability.Error(err))
	}

	a.logger.Info("gateway stopped")
}
