package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/patrickwarner/inappserve/internal/analytics"
	"github.com/patrickwarner/inappserve/internal/api"
	"github.com/patrickwarner/inappserve/internal/center"
	"github.com/patrickwarner/inappserve/internal/config"
	"github.com/patrickwarner/inappserve/internal/db"
	"github.com/patrickwarner/inappserve/internal/geoip"
	"github.com/patrickwarner/inappserve/internal/logic/ratelimit"
	"github.com/patrickwarner/inappserve/internal/macros"
	"github.com/patrickwarner/inappserve/internal/models"
	"github.com/patrickwarner/inappserve/internal/observability"
	"github.com/patrickwarner/inappserve/internal/remote"
)

func main() {
	cfg := config.Load()

	logger, err := observability.InitLoggerWithService(cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	defer func() {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
		}
	}()

	if err := run(logger, cfg); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracing(ctx, logger, cfg.ServiceName, cfg.TempoEndpoint, cfg.TracingSampleRate)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer shutdown()
	}

	fallback, err := center.ParseJITFallback(cfg.JITFallback)
	if err != nil {
		return err
	}

	store, err := db.InitRedis(cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("failed to connect redis: %w", err)
	}
	defer store.Close()

	metricsRegistry := observability.NewPrometheusRegistry()
	attrs := db.NewRedisAttributeStore(store, cfg.CustomUserID)

	deps := center.Dependencies{
		Tracker:    db.NewRedisViewTracker(store, cfg.CustomUserID).WithLogRetention(cfg.ViewLogRetention),
		Output:     center.NewLogOutput(logger),
		Attributes: attrs,
		Macros:     macros.NewExpander(logger, prometheus.DefaultRegisterer),
		Metrics:    metricsRegistry,
		Logger:     logger,
	}

	switch cfg.PayloadCache {
	case "redis":
		deps.Cache = db.NewRedisPayloadCache(store)
	case "postgres":
		pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
		if err != nil {
			return fmt.Errorf("failed to connect postgres: %w", err)
		}
		defer pg.Close()
		deps.Cache = db.NewPostgresPayloadCache(pg, db.DefaultPayloadSlot)
	case "none":
	default:
		return fmt.Errorf("unknown PAYLOAD_CACHE %q", cfg.PayloadCache)
	}

	if cfg.AnalyticsEnabled {
		analyticsSvc, err := analytics.InitClickHouse(cfg.ClickHouseDSN)
		if err != nil {
			return fmt.Errorf("failed to connect clickhouse: %w", err)
		}
		defer analyticsSvc.Close()
		deps.Analytics = analyticsSvc
	}

	var geoSvc *geoip.GeoIP
	if cfg.GeoIPDB != "" {
		geoSvc, err = geoip.Init(cfg.GeoIPDB)
		if err != nil {
			return fmt.Errorf("failed to load geoip db: %w", err)
		}
		defer func() { _ = geoSvc.Close() }()
	}

	var remoteClient *remote.Client
	if cfg.CampaignsURL != "" {
		limiter := ratelimit.NewLimiter(ratelimit.Config{
			Capacity:   cfg.JITRateCapacity,
			RefillRate: cfg.JITRateRefill,
			Enabled:    cfg.JITRateCapacity > 0,
		}, metricsRegistry)
		remoteClient = remote.NewClient(cfg.CampaignsURL, cfg.RemoteTimeout, cfg.JITCacheTTL, limiter, logger, metricsRegistry)
		if cfg.JITCacheTTL > 0 {
			remoteClient.StartCacheCleanup(ctx, cfg.JITCacheTTL)
		}
		deps.Remote = remoteClient
		logger.Info("campaign server configured",
			zap.String("url", cfg.CampaignsURL),
			zap.Duration("timeout", cfg.RemoteTimeout),
			zap.Duration("jit_cache_ttl", cfg.JITCacheTTL))
	}

	trackingEnabled := cfg.TrackingEnabled
	engine := center.New(center.Options{
		APILevel:        cfg.APILevel,
		Location:        cfg.Location(),
		CustomUserID:    cfg.CustomUserID,
		JITFallback:     fallback,
		JITTimeout:      cfg.JITTimeout,
		TrackingAllowed: func() bool { return trackingEnabled },
		DebugTrace:      cfg.DebugTrace,
	}, deps)
	if remoteClient != nil {
		engine.AddLoadedListener(func([]*models.Campaign) { remoteClient.ClearCache() })
	}
	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("start campaigns center: %w", err)
	}
	defer engine.Stop()

	srvDeps := api.NewServer(logger, engine, attrs, geoSvc, metricsRegistry, cfg.APILevel, cfg.DebugTrace)
	if remoteClient != nil {
		srvDeps.Remote = remoteClient
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      srvDeps.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	logger.Info("campaign engine running", zap.String("addr", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	if remoteClient != nil && cfg.RefreshInterval > 0 {
		go refreshLoop(ctx, logger, engine, cfg.RefreshInterval)
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// refreshLoop downloads the payload right away and then every interval. A
// server asking to retry later postpones the next attempt accordingly.
func refreshLoop(ctx context.Context, logger *zap.Logger, engine *center.Center, interval time.Duration) {
	wait := time.Duration(0)
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		wait = interval
		report, err := engine.Refresh(ctx)
		switch {
		case err == nil:
			logger.Info("campaigns refreshed", zap.Int("dropped", len(report.Dropped)))
		case errors.Is(err, context.Canceled):
			return
		default:
			if delay, ok := remote.RetryAfter(err); ok && delay > wait {
				wait = delay
			}
			logger.Error("campaign refresh failed", zap.Error(err), zap.Duration("next_attempt", wait))
		}
	}
}
