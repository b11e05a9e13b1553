/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the dose engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Build the zap logger
  3. Initialize SQLite store
  4. Build metrics, reminder platform (behind a circuit breaker), tracker
  5. Configure HTTP router and start the refill scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080, env PORT)
  -db      SQLite database path (default: doses.db, env DB_PATH)
           Use ":memory:" for in-memory database
  -tz      IANA timezone for calendar days (default: Local, env TZ_NAME)

ENVIRONMENT:
  DOSES_PER_DAY, REFILL_CHECK_INTERVAL, REMINDER_BREAKER_TIMEOUT,
  CORS_ORIGINS, LOG_LEVEL, LOG_FORMAT. See config/config.go.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the refill scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  ./server -db="./data/doses.db" -tz="Europe/Paris"
  ./server -db=":memory:"

SEE ALSO:
  - api/server.go: Router configuration
  - tracker/tracker.go: Write sequencing
  - store/sqlite/sqlite.go: Database implementation
*/
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
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/warp/dose-engine/api"
	"github.com/warp/dose-engine/config"
	"github.com/warp/dose-engine/engine"
	"github.com/warp/dose-engine/logging"
	"github.com/warp/dose-engine/metrics"
	"github.com/warp/dose-engine/reminder"
	"github.com/warp/dose-engine/store/sqlite"
	"github.com/warp/dose-engine/tracker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logger.Sync()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	meds, err := store.Count(context.Background(), engine.CollectionMedications)
	if err != nil {
		return fmt.Errorf("failed to read database: %w", err)
	}
	doses, err := store.Count(context.Background(), engine.CollectionDoses)
	if err != nil {
		return fmt.Errorf("failed to read database: %w", err)
	}
	logger.Info("database opened",
		zap.String("path", cfg.DBPath),
		zap.Int("medications", meds),
		zap.Int("doses", doses))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	breaker := reminder.DefaultBreakerConfig()
	breaker.Timeout = cfg.ReminderBreakerTimeout
	reminders := reminder.NewGuarded(reminder.NewLogging(logger.Named("reminders")), breaker, logger)

	clock := engine.SystemClock{}
	t := tracker.New(store, tracker.Config{
		Location:    loc,
		DosesPerDay: cfg.DosesPerDay,
		Clock:       clock,
		Reminders:   reminders,
		Logger:      logger.Named("tracker"),
		Metrics:     m,
	})

	handler := api.NewHandler(t, clock, logger.Named("api"))
	router := api.NewRouter(handler, api.RouterOptions{
		CORSOrigins: cfg.CORSOrigins,
		Metrics:     metrics.Handler(reg),
		Logger:      logger.Named("http"),
	})

	refills := api.NewRefillScheduler(t, logger)
	refills.CheckInterval = cfg.RefillCheckInterval
	refills.Start()
	defer refills.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.Int("port", cfg.Port),
			zap.String("db", cfg.DBPath),
			zap.String("timezone", loc.String()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
