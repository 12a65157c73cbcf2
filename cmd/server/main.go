package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/Moof29/batchly/internal/api"
	"github.com/Moof29/batchly/internal/breaker"
	"github.com/Moof29/batchly/internal/config"
	"github.com/Moof29/batchly/internal/db"
	"github.com/Moof29/batchly/internal/engine"
	"github.com/Moof29/batchly/internal/journal"
	"github.com/Moof29/batchly/internal/ledger"
	"github.com/Moof29/batchly/internal/metrics"

	_ "github.com/Moof29/batchly/docs"
)

// @title Batchly Sync API
// @version 1.0
// @description API for synchronizing business records with a remote accounting ledger
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
// @host localhost:8080
// @BasePath /api/v1
func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})
	logger.SetOutput(os.Stdout)

	// Load configuration with defaults
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate minimum required config
	if cfg.DBConnectionString == "" {
		logger.Fatal("Missing required configuration (DB_CONNECTION_STRING must be set)")
	}

	// Initialize database
	dbStore, err := db.NewPostgresStore(cfg.DBConnectionString)
	if err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}

	// Run migrations with retry logic
	if err := retry(3, 5*time.Second, func() error {
		return dbStore.Migrate()
	}); err != nil {
		logger.Fatalf("Failed to run migrations after retries: %v", err)
	}

	// Initialize services
	breakers := breaker.NewRegistry(cfg.Breaker, logger)
	tokens := ledger.NewTokenManager(dbStore, cfg.Ledger, breakers, logger)
	ledgerClient := ledger.NewClient(cfg.Ledger, tokens, logger)

	jnl := journal.NewJournal(dbStore, cfg.Journal, logger)
	jnl.Start()
	collector := metrics.NewCollector(dbStore, cfg.Metrics, logger)
	collector.Start()
	txm := journal.NewTxManager(dbStore, jnl, logger)

	mappings := engine.NewMappingService(dbStore)
	processor := engine.NewProcessor(dbStore, ledgerClient, breakers, mappings, collector, jnl, cfg.Sync, logger)
	syncService := engine.NewService(dbStore, processor, mappings, txm, cfg.Sync, logger)
	reporter := engine.NewReporter(dbStore, cfg.Sync, logger)

	apiHandler := api.NewHandler(syncService, reporter, dbStore, breakers, logger)
	router := api.SetupRouter(apiHandler)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	// Background drain loop over every active connection
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go drainLoop(ctx, dbStore, syncService, cfg.DrainInterval, logger)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}
	if err := jnl.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Journal shutdown failed: %v", err)
	}
	if err := collector.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Metrics collector shutdown failed: %v", err)
	}
	logger.Info("Server exited properly")
}

// drainLoop periodically drains pending sync operations for every organization
// with an active ledger connection. In-flight operations finish on shutdown;
// unstarted ones stay pending for the next run.
func drainLoop(ctx context.Context, store db.Store, svc *engine.Service, interval time.Duration, logger *logrus.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		conns, err := store.ListActiveConnections(ctx)
		if err != nil {
			logger.WithError(err).Error("Failed to list active connections")
			continue
		}

		for _, conn := range conns {
			if _, err := svc.ProcessPending(ctx, conn.OrganizationID); err != nil {
				logger.WithError(err).WithField("organization", conn.OrganizationID).Error("Scheduled drain failed")
			}
		}
	}
}

// retry retries a function up to a certain number of attempts with a delay between attempts
func retry(attempts int, sleep time.Duration, fn func() error) error {
	if err := fn(); err != nil {
		if attempts--; attempts > 0 {
			time.Sleep(sleep)
			return retry(attempts, sleep, fn)
		}
		return err
	}
	return nil
}
