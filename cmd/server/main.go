/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the batch ledger server.
  Handles configuration, store selection, seeding and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (config.env, environment, then flags)
  2. Initialize logger
  3. Open the store (memory, sqlite or postgres)
  4. Build the engine and apply the seed file, if any
  5. Start the expiry sweeper
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS (override the environment):
  -port    HTTP server port
  -driver  Store backend: memory, sqlite, postgres
  -db      SQLite database path; ":memory:" for a throwaway database
  -seed    YAML seed file (items, recipes, opening stock)
  -demo    Built-in demo catalog to load at startup (e.g. bakery)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the expiry sweeper
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  ./server -driver=memory -demo=bakery
  DB_DRIVER=postgres DATABASE_URL=postgres://... ./server
  ./server -db=./data/ledger.db -seed=./catalog.yaml

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - engine/engine.go: Service wiring
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
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/batch-ledger/api"
	"github.com/warp/batch-ledger/catalog"
	"github.com/warp/batch-ledger/config"
	"github.com/warp/batch-ledger/engine"
	"github.com/warp/batch-ledger/ledger"
	"github.com/warp/batch-ledger/ledger/store"
	"github.com/warp/batch-ledger/logger"
	"github.com/warp/batch-ledger/store/postgres"
	"github.com/warp/batch-ledger/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Flags
	port := flag.Int("port", cfg.HTTP.Port, "HTTP server port")
	driver := flag.String("driver", string(cfg.DB.Driver), "store backend: memory, sqlite, postgres")
	dbPath := flag.String("db", cfg.DB.Path, "SQLite database path")
	seedFile := flag.String("seed", cfg.SeedFile, "YAML seed file")
	demo := flag.String("demo", "", "built-in demo catalog to load")
	flag.Parse()

	cfg.HTTP.Port = *port
	cfg.DB.Driver = config.Driver(strings.ToLower(*driver))
	cfg.DB.Path = *dbPath
	cfg.SeedFile = *seedFile
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid flags: %v\n", err)
		os.Exit(2)
	}

	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level})

	ctx := context.Background()

	// Initialize store
	st, closeStore, err := openStore(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Str("driver", string(cfg.DB.Driver)).Msg("failed to initialize database")
	}
	defer closeStore()

	e := engine.New(st, engine.Options{
		Logger:         &log,
		LockTimeout:    cfg.LockTimeout,
		LowStock:       cfg.LowStockThreshold,
		ExpiryInterval: cfg.ExpirySweepInterval,
	})

	if err := seed(ctx, log, e, cfg.SeedFile, *demo); err != nil {
		log.Fatal().Err(err).Msg("failed to seed catalog")
	}

	e.Expiry.Start()

	// Create server
	server := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      api.NewRouter(api.NewHandler(e, log)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("driver", string(cfg.DB.Driver)).
			Dur("expiry_sweep", cfg.ExpirySweepInterval).
			Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	e.Expiry.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	log.Info().Msg("server stopped")
}

// openStore returns the configured backend and its close function.
func openStore(ctx context.Context, cfg config.DBConfig) (ledger.TxStore, func(), error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return store.NewMemory(), func() {}, nil
	case config.DriverSQLite:
		s, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	case config.DriverPostgres:
		s, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown driver %q", cfg.Driver)
	}
}

// seed applies the seed file, then the named demo catalog.
func seed(ctx context.Context, log zerolog.Logger, e *engine.Engine, path, demo string) error {
	var seeds []*catalog.Seed
	if path != "" {
		s, err := catalog.Load(path)
		if err != nil {
			return err
		}
		seeds = append(seeds, s)
	}
	if demo != "" {
		s, err := catalog.Demo(demo)
		if err != nil {
			return err
		}
		seeds = append(seeds, s)
	}

	for _, s := range seeds {
		if err := s.Apply(ctx, e.Store, e.Recipes, e.Invoices); err != nil {
			return err
		}
		log.Info().Str("name", s.Name).Int("items", len(s.Items)).Int("invoices", len(s.Stock)).Msg("seed applied")
	}
	return nil
}
