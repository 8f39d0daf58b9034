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

	"staybook/internal/config"
	"staybook/internal/database"
	"staybook/internal/domain"
	"staybook/internal/logging"
	"staybook/internal/metrics"
	"staybook/internal/repository"
	"staybook/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
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

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startMetrics(ctx, cfg, &logger)

	markers := initMarkerStore(ctx, cfg, &logger)

	retry := worker.RetryPolicy{
		MaxRetries:    cfg.Dispatcher.MaxRetries,
		InitialDelay:  2 * time.Second,
		MaxDelay:      time.Minute,
		BackoffFactor: 2,
	}
	opts := worker.DispatcherOptions{
		PollInterval: time.Duration(cfg.Dispatcher.PollIntervalSeconds) * time.Second,
		BatchSize:    cfg.Dispatcher.BatchSize,
		Lease:        time.Duration(cfg.Dispatcher.LeaseSeconds) * time.Second,
		DeliveryRPS:  cfg.Dispatcher.DeliveryRPS,
	}

	dispatcher := worker.NewDispatcher(db, markers, retry, opts, &logger)

	audit := worker.NewAuditLogHandler(&logger)
	for _, factType := range []string{
		domain.FactBookingReserved,
		domain.FactBookingConfirmed,
		domain.FactBookingRejected,
		domain.FactBookingCompleted,
		domain.FactBookingCancelled,
	} {
		dispatcher.Register(factType, audit)
	}

	dispatcher.Start(ctx)

	logger.Info().Msg("dispatcher stopped")
	return nil
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
	logger := baseLogger.With().Str("component", "dispatcher-main").Logger()

	return cfg, logger, closer, nil
}

// initMarkerStore wires the delivery idempotency markers: redis when
// configured and reachable, with an in-process fallback so a redis outage
// never stalls the outbox.
func initMarkerStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) domain.MarkerStore {
	memory := repository.NewMemoryMarkerStore()

	if cfg.Redis.Address == "" {
		logger.Info().Msg("redis not configured, using in-memory delivery markers")
		return memory
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing with in-memory delivery markers")
	} else {
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	}

	return repository.NewFailoverMarkerStore(repository.NewRedisMarkerStore(client), memory, logger)
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
