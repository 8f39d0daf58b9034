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

	"staybook/internal/api"
	"staybook/internal/config"
	"staybook/internal/database"
	"staybook/internal/domain"
	"staybook/internal/logging"
	"staybook/internal/metrics"
	"staybook/internal/service"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
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

	units, users, err := loadCatalog(&logger)
	if err != nil {
		return err
	}

	db, err := initDatabase(cfg, units, users, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startMetrics(ctx, cfg, &logger)
	startBackups(ctx, cfg, &logger)

	svc := service.NewReservationService(db, service.SystemClock{}, &logger)
	httpServer := api.NewHTTPServer(&cfg.API, cfg.Exports, svc, &logger)

	return serve(ctx, httpServer, &logger)
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

type catalogUnit struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	NightlyPrice int64  `yaml:"nightly_price"`
	CleaningFee  int64  `yaml:"cleaning_fee"`
	Currency     string `yaml:"currency"`
	Amenities    []struct {
		Name     string `yaml:"name"`
		UpCharge int64  `yaml:"up_charge"`
	} `yaml:"amenities"`
}

type catalogUser struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

// loadCatalog reads the unit catalog and seed users from configs/catalog.yaml.
// Prices are minor units (cents) in the unit's currency.
func loadCatalog(logger *zerolog.Logger) ([]*domain.Unit, []*domain.User, error) {
	catalogPath := os.Getenv("CATALOG_PATH")
	if catalogPath == "" {
		catalogPath = "configs/catalog.yaml"
	}
	data, err := os.ReadFile(catalogPath)
	if err != nil {
		logger.Error().Err(err).Str("catalog_path", catalogPath).Msg("read catalog")
		return nil, nil, err
	}

	var catalog struct {
		Units []catalogUnit `yaml:"units"`
		Users []catalogUser `yaml:"users"`
	}
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		logger.Error().Err(err).Str("catalog_path", catalogPath).Msg("parse catalog")
		return nil, nil, err
	}

	units := make([]*domain.Unit, 0, len(catalog.Units))
	for _, cu := range catalog.Units {
		id, err := uuid.Parse(cu.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("catalog unit %q: invalid id: %w", cu.Name, err)
		}
		unit := &domain.Unit{
			ID:           id,
			Name:         cu.Name,
			NightlyPrice: domain.NewMoney(cu.NightlyPrice, cu.Currency),
			CleaningFee:  domain.NewMoney(cu.CleaningFee, cu.Currency),
		}
		for _, a := range cu.Amenities {
			unit.Amenities = append(unit.Amenities, domain.AmenityUpCharge{
				Name:     a.Name,
				UpCharge: domain.NewMoney(a.UpCharge, cu.Currency),
			})
		}
		units = append(units, unit)
	}

	users := make([]*domain.User, 0, len(catalog.Users))
	for _, cu := range catalog.Users {
		id, err := uuid.Parse(cu.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("catalog user %q: invalid id: %w", cu.Email, err)
		}
		users = append(users, &domain.User{ID: id, Name: cu.Name, Email: cu.Email})
	}

	return units, users, nil
}

func initDatabase(cfg *config.Config, units []*domain.Unit, users []*domain.User, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.SyncUnits(ctx, units); err != nil {
		db.Close()
		return nil, fmt.Errorf("sync units: %w", err)
	}
	for _, user := range users {
		if err := db.CreateUser(ctx, user); err != nil {
			db.Close()
			return nil, fmt.Errorf("seed user %s: %w", user.Email, err)
		}
	}

	logger.Info().Int("units", len(units)).Int("users", len(users)).Msg("catalog synced")
	return db, nil
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

func startBackups(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Backup.Enabled {
		return
	}
	backup := database.NewBackupService(cfg.Database.Path, cfg.Backup, logger)
	go backup.Start(ctx)
}

func serve(ctx context.Context, httpServer *api.HTTPServer, logger *zerolog.Logger) error {
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Msg("API server started")

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
