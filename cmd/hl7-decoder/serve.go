package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/hl7readable/internal/config"
	"github.com/ehr/hl7readable/internal/platform/archive"
	"github.com/ehr/hl7readable/internal/platform/auth"
	"github.com/ehr/hl7readable/internal/platform/db"
	"github.com/ehr/hl7readable/internal/platform/hl7v2"
	"github.com/ehr/hl7readable/internal/platform/middleware"
	"github.com/ehr/hl7readable/internal/platform/openapi"
	"github.com/ehr/hl7readable/internal/platform/telemetry"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HL7 v2 decode API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	level, err := cfg.Level()
	if err != nil {
		level = zerolog.InfoLevel
	}
	if cfg.IsDev() {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// deps are the optional backing services of the server.
type deps struct {
	pool  *pgxpool.Pool
	store archive.Store
}

func openDeps(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (deps, error) {
	var d deps
	switch cfg.ArchiveBackend {
	case config.ArchivePostgres:
		pool, err := db.NewPool(ctx, db.PoolConfig{
			URL:      cfg.DatabaseURL,
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
			Schema:   cfg.ArchiveSchema,
		})
		if err != nil {
			return d, err
		}
		d.pool = pool
		d.store = archive.NewPGStoreFromPool(pool)
		logger.Info().Str("schema", cfg.ArchiveSchema).Msg("archiving decoded messages to postgres")
	case config.ArchiveMemory:
		d.store = archive.NewMemoryStore(cfg.ArchiveMemoryMax)
		logger.Info().Int("max", cfg.ArchiveMemoryMax).Msg("archiving decoded messages in memory")
	default:
		logger.Info().Msg("archive disabled")
	}

	if d.store != nil {
		enc, err := cfg.ArchiveEncryptor()
		if err != nil {
			return d, err
		}
		if enc != nil {
			d.store = archive.NewEncryptedStore(d.store, enc)
			logger.Info().Msg("raw messages are encrypted at rest")
		}
	}
	return d, nil
}

func newServer(cfg *config.Config, logger zerolog.Logger, d deps) (*echo.Echo, error) {
	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	var metrics *telemetry.Metrics
	if cfg.MetricsEnabled {
		metrics = telemetry.NewMetrics()
	}

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	if metrics != nil {
		e.Use(metrics.Middleware())
	}
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost},
		AllowHeaders:  []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.MaxBodySize))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	decoder := hl7v2.NewDecoder(
		hl7v2.WithSingletonPolicy(policy),
		hl7v2.WithLogger(logger),
	)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":   "ok",
			"version":  version,
			"policy":   policy.String(),
			"segments": decoder.Registry().Tags(),
			"archive":  cfg.ArchiveBackend,
		})
	})

	var pinger db.Pinger
	var stats db.StatsFunc
	if d.pool != nil {
		pinger = d.pool
		stats = db.PoolStatsFunc(d.pool)
	}
	e.GET("/health/db", db.HealthHandler(pinger, stats))
	if metrics != nil {
		e.GET("/metrics", metrics.Handler())
	}

	apiV1 := e.Group("/api/v1")
	if cfg.AuthEnabled() {
		apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
			Skipper:    auth.AuthSkipper,
		}))
	}
	apiV1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))

	docs := openapi.NewGenerator(decoder.Registry(), version, "")
	hl7Handler := hl7v2.NewHandler(decoder, logger)
	if metrics != nil {
		hl7Handler.WithObserver(metrics)
	}
	if d.store != nil {
		svc := archive.NewService(d.store)
		hl7Handler.WithArchiver(svc)
		archive.NewHandler(svc).RegisterRoutes(apiV1, auth.RequireScope(auth.ScopeArchiveRead))
		docs.WithArchive()
	}
	hl7Handler.RegisterRoutes(apiV1, auth.RequireScope(auth.ScopeDecode))
	docs.RegisterRoutes(apiV1)

	return e, nil
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stdout)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}
	if !cfg.AuthEnabled() {
		logger.Warn().Msg("AUTH_SIGNING_KEY is not set; the API accepts unauthenticated requests")
	}

	ctx := context.Background()
	d, err := openDeps(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open archive")
		return err
	}
	if d.pool != nil {
		defer d.pool.Close()
	}

	e, err := newServer(cfg, logger, d)
	if err != nil {
		return err
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
