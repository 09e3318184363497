package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"slotnik/internal/api"
	"slotnik/internal/clock"
	"slotnik/internal/config"
	"slotnik/internal/database"
	"slotnik/internal/domain"
	"slotnik/internal/events"
	"slotnik/internal/export"
	"slotnik/internal/logging"
	"slotnik/internal/metrics"
	"slotnik/internal/models"
	"slotnik/internal/repository"
	"slotnik/internal/schedule"
	"slotnik/internal/service"
	"slotnik/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	db, err := initDatabase(cfg, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, sessions := initSessions(ctx, cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	clk := clock.NewSystem()
	index := schedule.NewIndex()
	locks := schedule.NewLockTable()
	tracker := schedule.NewCapacityTracker()
	eventBus := events.NewEventBus()
	checker := service.NewConflictChecker(db, index, clk)

	availability := service.NewAvailabilityService(db, index, locks, tracker, clk, &logger)
	if err := availability.Rebuild(ctx); err != nil {
		logger.Error().Err(err).Msg("schedule rebuild failed")
		return err
	}
	seedWindows(ctx, cfg, availability, index, &logger)

	retryPolicy := worker.RetryPolicy{MaxRetries: 5, InitialDelay: 50 * time.Millisecond, MaxDelay: 2 * time.Second, BackoffFactor: 2}

	holdService := service.NewHoldService(db, sessions, checker, index, locks, tracker, eventBus, clk,
		service.HoldServiceConfig{
			DefaultTTL:     cfg.Booking.HoldTTL(),
			MaxAdvanceDays: cfg.Booking.MaxAdvanceDays,
			RateLimit:      cfg.Booking.HoldRateLimit,
			RateWindow:     cfg.Booking.HoldRateWindow(),
			Retry:          retryPolicy,
		}, &logger)
	bookingService := service.NewBookingService(db, sessions, checker, index, locks, tracker, eventBus, clk, retryPolicy, &logger)

	reaper := worker.NewReaper(db, index, locks, tracker, eventBus, clk,
		cfg.Booking.ReaperInterval(), cfg.Booking.ReaperBatchSize, &logger)
	go reaper.Run(ctx)

	var exporter *export.Exporter
	if cfg.Exports.Path != "" {
		exporter = export.NewExporter(db, cfg.Exports.Path, &logger)
	}

	startMetrics(ctx, cfg, &logger)

	httpServer := api.NewHTTPServer(cfg.API, holdService, bookingService, availability, db, exporter, &logger)
	return startServer(ctx, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func initDatabase(cfg *config.Config, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	db.SetServices(cfg.Services)
	return db, nil
}

func initSessions(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*redis.Client, domain.SessionRepository) {
	sessionTTL := cfg.Booking.SessionTTL()
	fallback := repository.NewMemorySessionRepository(sessionTTL)

	if !cfg.Redis.Enabled || cfg.Redis.Address == "" {
		return nil, fallback
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable")
	}

	primary := repository.NewRedisSessionRepository(redisClient, sessionTTL)
	return redisClient, repository.NewFailoverSessionRepository(primary, fallback, logger)
}

// seedWindows creates the configured windows on an empty schedule. Once the
// store holds any window the seeds are ignored and admin CRUD takes over.
func seedWindows(ctx context.Context, cfg *config.Config, availability *service.AvailabilityService, index *schedule.Index, logger *zerolog.Logger) {
	if index.Len() > 0 || len(cfg.Windows) == 0 {
		return
	}

	for _, seed := range cfg.Windows {
		w := &models.AvailabilityWindow{
			ServiceType:  seed.ServiceType,
			LocationType: seed.LocationType,
			Range:        models.NewTimeRange(seed.Start, seed.End),
			Capacity:     seed.Capacity,
			IsOpen:       seed.IsOpen,
		}
		if err := availability.AddWindow(ctx, w); err != nil {
			logger.Error().Err(err).
				Str("service_type", seed.ServiceType).
				Time("start", seed.Start).
				Msg("window seed failed")
		}
	}
	logger.Info().Int("windows", index.Len()).Msg("schedule seeded from config")
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServer(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
