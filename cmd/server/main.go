package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/usagepulse/internal/analysis"
	"github.com/ZanzyTHEbar/usagepulse/internal/cache"
	"github.com/ZanzyTHEbar/usagepulse/internal/config"
	"github.com/ZanzyTHEbar/usagepulse/internal/dataset"
	"github.com/ZanzyTHEbar/usagepulse/internal/middleware"
	"github.com/ZanzyTHEbar/usagepulse/internal/monitoring"
	"github.com/ZanzyTHEbar/usagepulse/internal/ratelimit"
	"github.com/ZanzyTHEbar/usagepulse/internal/render"
	"github.com/ZanzyTHEbar/usagepulse/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Structured logging setup
	logger := monitoring.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger.Logger)
	gin.SetMode(cfg.Server.GinMode)

	telemetry, err := monitoring.InitTelemetry(monitoring.TelemetryConfig{
		ServiceName:    "usagepulse",
		ServiceVersion: version,
		TraceExporter:  cfg.Telemetry.TraceExporter,
		MetricExporter: cfg.Telemetry.MetricExporter,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize telemetry", "error", err)
		os.Exit(1)
	}

	appMetrics := monitoring.NewMetrics()

	var responses *cache.Cache
	if cfg.Cache.ResponseTTL > 0 {
		responses = cache.NewCache(cfg.Cache.ResponseTTL)
		defer responses.Close()
	}

	analyzer := analysis.NewAnalyzer(analysis.Options{
		Source:    cfg.Data.Source,
		Loader:    cfg.LoaderOptions(),
		Responses: responses,
		Telemetry: telemetry,
		Metrics:   appMetrics,
		Logger:    logger,
	})

	// the dataset must load before the server accepts requests
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), cfg.Server.RequestTimeout)
	ds, err := analyzer.Dataset(startupCtx)
	cancelStartup()
	if err != nil {
		logStartupFailure(logger, err)
		os.Exit(1)
	}
	logger.SystemLogger("dataset_ready", cfg.Data.Source)
	logger.Info("Dataset loaded", "source", cfg.Data.Source, "rows", ds.Len(), "columns", len(ds.Columns()))

	var limiter *ratelimit.RateLimiter
	if cfg.RateLimit.Enabled {
		redisClient, err := ratelimit.NewRedisClient(context.Background(), ratelimit.RedisConfig{
			Addr:     cfg.RateLimit.RedisAddr,
			Password: cfg.RateLimit.RedisPassword,
			DB:       cfg.RateLimit.RedisDB,
		}, logger)
		if err != nil {
			logger.Warn("Redis unavailable, using in-memory rate limits", "error", err)
		}
		defer redisClient.Close()

		rlConfig := ratelimit.DefaultConfig()
		rlConfig.PerMinute = cfg.RateLimit.PerMinute
		rlConfig.BurstMultiplier = cfg.RateLimit.BurstMultiplier
		limiter = ratelimit.NewRateLimiter(redisClient, rlConfig, appMetrics, logger)
		defer limiter.Close()
	}

	secConfig := security.DefaultSecurityConfig()
	secConfig.AllowedOrigins = cfg.Security.AllowedOrigins
	secConfig.MaxValueLength = cfg.Security.MaxValueLength
	secConfig.RequestTimeout = cfg.Server.RequestTimeout
	secConfig.EnableHSTS = cfg.Security.EnableHSTS
	secConfig.CSPReportURI = cfg.Security.CSPReportURI

	s := &server{
		cfg:         cfg,
		analyzer:    analyzer,
		renderer:    render.NewRenderer(telemetry, appMetrics),
		responses:   responses,
		limiter:     limiter,
		compression: middleware.NewCompressionMiddleware(middleware.DefaultCompressionConfig()),
		security:    security.NewSecurityMiddleware(secConfig),
		telemetry:   telemetry,
		metrics:     appMetrics,
		logger:      logger,
	}

	r, err := s.setupRouter()
	if err != nil {
		slog.Error("Failed to set up router", "error", err)
		os.Exit(1)
	}

	// Start server with graceful shutdown
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("Starting server", "addr", srv.Addr, "source", cfg.Data.Source)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	if err := telemetry.Shutdown(ctx); err != nil {
		slog.Warn("Telemetry shutdown incomplete", "error", err)
	}

	slog.Info("Server exited", "uptime", time.Since(appMetrics.StartTime).Round(time.Second).String())
}

// logStartupFailure names the missing file or columns that stopped the load.
func logStartupFailure(logger *monitoring.Logger, err error) {
	var (
		notFound *dataset.SourceNotFoundError
		schema   *dataset.SchemaError
	)
	switch {
	case errors.As(err, &notFound):
		logger.Error("Dataset source not found", "source", notFound.Source, "error", notFound.Err)
	case errors.As(err, &schema):
		logger.Error("Dataset schema is invalid", "source", schema.Source,
			"missing_columns", schema.Missing, "collisions", schema.Collisions)
	default:
		logger.Error("Failed to load dataset", "error", err)
	}
}
