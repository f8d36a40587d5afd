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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ddx/ddx/internal/config"
	"github.com/ddx/ddx/internal/domain/diagnosis"
	"github.com/ddx/ddx/internal/domain/knowledge"
	"github.com/ddx/ddx/internal/platform/auth"
	"github.com/ddx/ddx/internal/platform/db"
	"github.com/ddx/ddx/internal/platform/extractor"
	"github.com/ddx/ddx/internal/platform/middleware"
	"github.com/ddx/ddx/internal/platform/openapi"
	"github.com/ddx/ddx/internal/platform/prolog"
	"github.com/ddx/ddx/internal/platform/scheduling"
	"github.com/ddx/ddx/internal/platform/tabular"
)

const version = "0.1.0"

// reloadTimeout bounds one scheduled knowledge base reload.
const reloadTimeout = 2 * time.Minute

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "ddx-server",
		Short:        "Abductive differential diagnosis server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(diagnoseCmd())
	rootCmd.AddCommand(replCmd())
	rootCmd.AddCommand(kbCmd())
	rootCmd.AddCommand(migrateCmd())
	return rootCmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the diagnosis API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

// serviceOptions maps configuration onto the diagnosis service.
func serviceOptions(cfg *config.Config, logger zerolog.Logger) diagnosis.Options {
	opts := diagnosis.Options{
		ShowCode:    cfg.ShowCode,
		MaxDistance: cfg.ResolverMaxDistance,
		CacheTTL:    cfg.CacheTTL,
		Extractor: func(kb *knowledge.KnowledgeBase) diagnosis.MentionExtractor {
			return extractor.NewDictionary(kb)
		},
	}
	if cfg.QueryEngine == config.EngineProlog {
		opts.Explainer = func(kb *knowledge.KnowledgeBase) (diagnosis.Explainer, error) {
			return prolog.NewEngine(kb, logger)
		}
	}
	return opts
}

// openService opens the configured relation source and loads the first
// knowledge base generation. The caller closes the returned source.
func openService(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*diagnosis.Service, tabular.Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	src, err := tabular.Open(ctx, cfg.Source(), tabular.Options{
		Sheet:    cfg.KBSheet,
		Table:    cfg.KBTable,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	svc := diagnosis.NewService(src, logger, serviceOptions(cfg, logger))
	if _, err := svc.Reload(ctx); err != nil {
		src.Close()
		return nil, nil, fmt.Errorf("load knowledge base: %w", err)
	}
	return svc, src, nil
}

// serverDeps are the collaborators wired into the HTTP server.
type serverDeps struct {
	cfg      *config.Config
	svc      *diagnosis.Service
	pool     *pgxpool.Pool
	reloader *scheduling.Reloader
	logger   zerolog.Logger
}

func newServer(d serverDeps) (*echo.Echo, error) {
	cfg, logger := d.cfg, d.logger
	bodyLimit, err := cfg.BodyLimitBytes()
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.Sanitize())
	e.Use(middleware.BodyLimit(bodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader, "If-None-Match"},
	}))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(auth.AuthSkipper))
	} else {
		key, err := cfg.SigningKey()
		if err != nil {
			return nil, err
		}
		if len(key) == 0 {
			return nil, errors.New("AUTH_SIGNING_KEY is required outside development")
		}
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: key,
			Skipper:    auth.AuthSkipper,
		}))
	}

	e.Use(middleware.Audit(logger))

	// Health check
	e.GET("/health", healthHandler(d.svc, d.reloader))
	if d.pool != nil {
		e.GET("/health/db", db.HealthHandler(d.pool))
	}

	// API documentation
	openapi.NewGenerator(version, "/").RegisterRoutes(e.Group("/api"))

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))
	apiV1.Use(middleware.ETag(middleware.ETagConfig{
		MaxAge:  time.Minute,
		Exclude: []string{"/api/v1/kb/stats"},
	}))

	diagnosis.NewHandler(d.svc).RegisterRoutes(apiV1)
	return e, nil
}

func healthHandler(svc *diagnosis.Service, reloader *scheduling.Reloader) echo.HandlerFunc {
	return func(c echo.Context) error {
		resp := map[string]interface{}{
			"status":  "ok",
			"version": version,
		}
		st, err := svc.Stats()
		if err != nil {
			resp["status"] = "unavailable"
			resp["error"] = err.Error()
			return c.JSON(http.StatusServiceUnavailable, resp)
		}
		resp["kb_generation"] = st.Generation
		resp["facts"] = st.Facts
		if reloader != nil {
			resp["reload"] = reloader.Status()
		}
		return c.JSON(http.StatusOK, resp)
	}
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)

	ctx := context.Background()
	svc, src, err := openService(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to start")
		return err
	}
	defer src.Close()

	// Database, when configured, backs /health/db.
	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns}, logger)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var reloader *scheduling.Reloader
	if cfg.ReloadSchedule != "" {
		reloader, err = scheduling.NewReloader(cfg.ReloadSchedule, svc, reloadTimeout, logger)
		if err != nil {
			return err
		}
		reloader.Start()
	}

	e, err := newServer(serverDeps{cfg: cfg, svc: svc, pool: pool, reloader: reloader, logger: logger})
	if err != nil {
		return err
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("source", src.Name()).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if reloader != nil {
		reloader.Stop(shutdownCtx)
	}
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
