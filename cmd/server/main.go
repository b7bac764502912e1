/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the labor ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (defaults, config.yml, .env, LABOR_* env, flags)
  2. Build the zap logger
  3. Open the SQL store and run migrations
  4. Pick the time entry lock (Redis when configured, in-process otherwise)
  5. Create API handler and router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Explicit config file (default: search for config.yml)
  -port    HTTP server port (overrides http.port)
  -db      Database DSN (overrides db.dsn)
           Use ":memory:" for an in-memory SQLite database
  -scenario  Load a demo scenario at startup

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database and Redis connections
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/labor.db"

  # Run against Postgres with a shared lock
  LABOR_DB_DRIVER=postgres LABOR_DB_DSN=postgres://... LABOR_REDIS_ADDR=localhost:6379 ./server

  # Demo mode
  ./server -db=":memory:" -scenario=edit-history

SEE ALSO:
  - config/config.go: Configuration keys
  - api/server.go: Router configuration
  - store/sqlstore/sqlstore.go: Database implementation
*/
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/warp/labor-ledger/api"
	"github.com/warp/labor-ledger/config"
	"github.com/warp/labor-ledger/lock"
	"github.com/warp/labor-ledger/logger"
	"github.com/warp/labor-ledger/metrics"
	"github.com/warp/labor-ledger/store/sqlstore"
)

func main() {
	// Flags
	configFile := flag.String("config", "", "Config file path")
	port := flag.Int("port", 0, "HTTP server port")
	dsn := flag.String("db", "", "Database DSN")
	scenario := flag.String("scenario", "", "Demo scenario to load at startup")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.HTTP.Port = *port
	}
	if *dsn != "" {
		cfg.DB.DSN = *dsn
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.Must(logger.New(cfg.Log.Level, cfg.Log.Format))
	defer log.Sync()

	if err := run(cfg, *scenario, log); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg config.Config, scenario string, log *zap.Logger) error {
	ctx := context.Background()

	// Initialize store
	driver, err := sqlstore.ParseDriver(cfg.DB.Driver)
	if err != nil {
		return err
	}
	store, err := sqlstore.Open(ctx, driver, cfg.DB.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()
	log.Info("database ready", zap.String("driver", string(driver)))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	locker, closeLocker, err := newLocker(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeLocker()

	// Initialize handler
	handler := api.NewHandler(store, api.Options{
		Locker:      locker,
		Metrics:     metrics.New(reg),
		Logger:      log,
		MaxAttempts: cfg.Reconciler.MaxAttempts,
	})
	if scenario != "" {
		if err := handler.Load(ctx, scenario); err != nil {
			return err
		}
	}

	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Logger:         log,
		Gatherer:       reg,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.Int("port", cfg.HTTP.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errc:
		return err
	case <-quit:
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}

// newLocker returns the Redis lock when redis.addr is set so that several
// server instances can share one database.
func newLocker(ctx context.Context, cfg config.Config, log *zap.Logger) (lock.Locker, func(), error) {
	if cfg.Redis.Addr == "" {
		log.Info("using in-process time entry locks")
		return lock.NewKeyed(), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("redis %s: %w", cfg.Redis.Addr, err)
	}
	log.Info("using redis time entry locks", zap.String("addr", cfg.Redis.Addr))
	return lock.NewRedis(rdb, "labor:", cfg.Reconciler.LockTTL), func() { rdb.Close() }, nil
}
