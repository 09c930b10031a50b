package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ehr/appointments/internal/config"
	"github.com/ehr/appointments/internal/domain/scheduling"
	"github.com/ehr/appointments/internal/platform/auth"
	"github.com/ehr/appointments/internal/platform/db"
	"github.com/ehr/appointments/internal/platform/directory"
	"github.com/ehr/appointments/internal/platform/events"
	"github.com/ehr/appointments/internal/platform/metrics"
	"github.com/ehr/appointments/internal/platform/middleware"
	"github.com/ehr/appointments/internal/platform/telemetry"
)

const shutdownTimeout = 10 * time.Second

func runServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}
	if cfg.ResolvedAuthMode() == "development" {
		logger.Warn().Msg("development auth is active: requests without a token act as admin; do not use in production")
	}

	// Tracing
	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:        cfg.OTelEnabled,
		ServiceName:    "appointments",
		ServiceVersion: version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTelEndpoint,
		SampleRatio:    cfg.OTelSamplingRatio,
	}, logger)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// Store
	var (
		pool *pgxpool.Pool
		repo scheduling.AppointmentRepository
	)
	switch cfg.Store {
	case "memory":
		repo = scheduling.NewAppointmentRepoMemory()
		logger.Warn().Msg("using in-memory appointment store; data is lost on restart")
	default:
		pool, err = db.NewPool(ctx, db.PoolConfig{
			URL:      cfg.DatabaseURL,
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
		})
		if err != nil {
			logger.Error().Err(err).Msg("failed to connect to database")
			return err
		}
		defer pool.Close()
		repo = scheduling.NewAppointmentRepoPG(pool)
		logger.Info().Msg("connected to database")
	}

	// Directory verification, optionally cached in redis
	var verifier directory.EntityVerifier = directory.NewHTTPVerifier(cfg.DirectoryURL, cfg.DirectoryTimeout, m, logger)
	if cfg.VerifyCacheEnabled() {
		client, err := newRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error().Err(err).Msg("failed to connect to redis")
			return err
		}
		defer client.Close()
		verifier = directory.NewCachingVerifier(verifier, directory.NewRedisStore(client), cfg.VerifyCacheTTL, logger)
		logger.Info().Dur("ttl", cfg.VerifyCacheTTL).Msg("directory verification cache enabled")
	}

	// Lifecycle events
	var publisher events.Publisher = events.Nop{}
	if brokers := events.SplitBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		publisher = events.NewKafkaPublisher(brokers, cfg.KafkaTopic, logger)
		logger.Info().Strs("brokers", brokers).Str("topic", cfg.KafkaTopic).Msg("publishing lifecycle events")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn().Err(err).Msg("event publisher close failed")
		}
	}()

	svc := scheduling.NewService(repo, verifier, publisher, m, logger)
	e := newEcho(cfg, logger, pool, reg)
	scheduling.NewHandler(svc, logger).RegisterRoutes(e.Group("/api/v1", apiMiddleware(cfg)))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(e, "appointments"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("store", cfg.Store).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("server error")
			return err
		}
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newEcho(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool, reg *prometheus.Registry) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit("64K"))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	// Health and metrics stay outside authentication.
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	return e
}

// apiMiddleware chains authentication and rate limiting for the API group so
// buckets can key on the authenticated subject.
func apiMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	jwtCfg := auth.JWTConfig{
		SigningKey: []byte(cfg.AuthSigningKey),
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
	}
	authn := auth.JWTMiddleware(jwtCfg)
	if cfg.ResolvedAuthMode() == "development" {
		authn = auth.DevAuthMiddleware(jwtCfg)
	}

	rlCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		IdleTTL:           10 * time.Minute,
	}
	if rlCfg.RequestsPerSecond <= 0 {
		rlCfg = middleware.DefaultRateLimitConfig()
	}
	limiter := middleware.RateLimit(rlCfg)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return authn(limiter(next))
	}
}

func newRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}
