/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the calendar event engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags, load (or create) the YAML config
  2. Open the SQLite-backed event store
  3. Seed a demo scenario into an empty store, if configured
  4. Start the ICS backup scheduler
  5. Configure HTTP router and serve until SIGINT/SIGTERM

COMMAND-LINE FLAGS:
  -config  YAML config path (default: ./data/config.yaml)
  -listen  Override listen address
  -db      Override SQLite database path (":memory:" for in-memory)
  -seed    Demo scenario loaded when the store is empty (workweek, conflicts, empty)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the backup scheduler
  4. Close the store (stream clients receive a close frame)

EXAMPLES:
  ./server -config=./data/config.yaml
  ./server -db=":memory:" -seed=workweek -listen=:3000

SEE ALSO:
  - api/server.go: Router configuration
  - internal/config/config.go: Config file format
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/warp/calendar-engine/api"
	"github.com/warp/calendar-engine/internal/config"
	"github.com/warp/calendar-engine/internal/log"
	"github.com/warp/calendar-engine/schedule"
	"github.com/warp/calendar-engine/store/sqlite"
)

func main() {
	configPath := flag.String("config", "./data/config.yaml", "YAML config path")
	listen := flag.String("listen", "", "HTTP listen address (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	seed := flag.String("seed", "", "demo scenario to load into an empty store (overrides config)")
	flag.Parse()

	if err := run(*configPath, *listen, *dbPath, *seed); err != nil {
		log.Error("server failed", err)
		os.Exit(1)
	}
}

func run(configPath, listen, dbPath, seed string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		if cfg == nil {
			return err
		}
		log.Warn("could not write default config", "path", configPath, "err", err)
	}
	if listen != "" {
		cfg.Listen = listen
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if seed != "" {
		cfg.SeedScenario = seed
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log.SetLevel(log.ParseLevel(cfg.LogLevel))

	// Initialize store
	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
			return err
		}
	}
	store := schedule.NewStore(sqlite.New(cfg.DBPath), schedule.Options{Location: cfg.Location()})
	openCtx, cancelOpen := context.WithTimeout(context.Background(), 30*time.Second)
	err = store.Open(openCtx)
	cancelOpen()
	if err != nil {
		return err
	}
	defer store.Close()

	// Initialize handler
	handler := api.NewHandler(store)
	handler.AllowedOrigins = cfg.CORSOrigins

	switch {
	case cfg.SeedScenario == "":
	case store.Len() > 0:
		log.Info("store not empty, skipping seed", "scenario", cfg.SeedScenario, "events", store.Len())
	default:
		if _, err := handler.SeedScenario(context.Background(), cfg.SeedScenario); err != nil {
			return err
		}
	}

	backup := api.NewBackupScheduler(store, cfg.Backup)
	if err := backup.Start(); err != nil {
		return err
	}
	defer backup.Stop()
	handler.Backup = backup

	server := &http.Server{
		Addr:         cfg.Listen,
		Handler:      api.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("server starting", "listen", cfg.Listen, "db", cfg.DBPath, "tz", cfg.Timezone)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errc:
		return err
	}

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return err
	}

	log.Info("server stopped")
	return nil
}
