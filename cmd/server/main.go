// Command server runs the PDF question-answering service: an ingestion and
// query API on the service port, health and Prometheus metrics on the ops
// port.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/paperquery/paperquery/internal/api"
	"github.com/paperquery/paperquery/internal/config"
	"github.com/paperquery/paperquery/internal/embedding"
	"github.com/paperquery/paperquery/internal/generation"
	"github.com/paperquery/paperquery/internal/metrics"
	"github.com/paperquery/paperquery/internal/migrations"
	"github.com/paperquery/paperquery/internal/observability"
	"github.com/paperquery/paperquery/internal/repository"
	"github.com/paperquery/paperquery/internal/service"
	"github.com/paperquery/paperquery/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewStandardLoggerWithLevel("server", cfg.Service.LogLevel)
	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server exited", map[string]interface{}{"error": err.Error()})
	}
}

func run(cfg *config.Config, logger observability.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := connectDB(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := runMigrations(db, logger); err != nil {
		return err
	}

	blobs, err := storage.NewS3BlobStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to create blob store: %w", err)
	}

	embedder, err := embedding.NewBedrockClient(ctx, cfg.Bedrock, cfg.Processing.EmbedThrottle, logger)
	if err != nil {
		return fmt.Errorf("failed to create embedding client: %w", err)
	}

	generator, err := generation.NewBedrockClient(ctx, cfg.Bedrock, logger)
	if err != nil {
		return fmt.Errorf("failed to create generation client: %w", err)
	}

	repo := repository.NewDocumentRepository(db)
	m := metrics.New(prometheus.DefaultRegisterer)

	ingestion := service.NewIngestionService(blobs, embedder, repo, cfg.Processing, m, logger)
	query := service.NewQueryService(embedder, repo, generator, cfg.Bedrock.ChatModel, cfg.Query, m, logger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	api.NewHandler(ingestion, query, repo, logger).Register(router)

	apiServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Service.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	opsMux := http.NewServeMux()
	opsMux.Handle("/metrics", promhttp.Handler())
	opsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Service.OpsPort),
		Handler:           opsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("API server listening", map[string]interface{}{"port": cfg.Service.Port})
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()
	go func() {
		logger.Info("Ops server listening", map[string]interface{}{"port": cfg.Service.OpsPort})
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("ops server: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down", map[string]interface{}{
		"timeout": cfg.Service.ShutdownTimeout.String(),
	})
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
	defer cancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server shutdown failed", map[string]interface{}{"error": err.Error()})
	}
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Ops server shutdown failed", map[string]interface{}{"error": err.Error()})
	}
	return nil
}

// connectDB opens the database with a bounded retry loop so the service
// survives starting before Postgres during orchestrated deployments.
func connectDB(ctx context.Context, cfg config.DatabaseConfig, logger observability.Logger) (*sqlx.DB, error) {
	const attempts = 10

	var lastErr error
	for i := 1; i <= attempts; i++ {
		db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
		if err == nil {
			db.SetMaxOpenConns(cfg.MaxConns)
			db.SetMaxIdleConns(cfg.MaxIdleConns)
			db.SetConnMaxLifetime(5 * time.Minute)
			return db, nil
		}
		lastErr = err
		logger.Warn("Database not ready, retrying", map[string]interface{}{
			"attempt": i,
			"error":   err.Error(),
		})
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", attempts, lastErr)
}

func runMigrations(db *sqlx.DB, logger observability.Logger) error {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := migratepg.WithInstance(db.DB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	migrator, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("Migrations applied", nil)
	return nil
}
