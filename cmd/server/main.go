/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the balance ledger engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load environment (.env honored in development)
  2. Open the SQLite store
  3. Load policy/category config (optional JSON file)
  4. Start the recompute worker
  5. Start the HTTP server with graceful shutdown

CONFIGURATION (environment):
  PORT           HTTP server port (default: 8080)
  DB_PATH        SQLite database path (default: ledger.db, ":memory:" works)
  POLICY_CONFIG  Path to a JSON policy/category config (optional)
  LOG_LEVEL      zerolog level: debug, info, warn, error (default: info)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the recompute worker (drains the in-flight task)
  4. Close the database

SEE ALSO:
  - api/server.go: Router configuration
  - worker/recompute.go: Background recompute loop
*/
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/avincentLoyco/yalty-backend-sub001/api"
	"github.com/avincentLoyco/yalty-backend-sub001/engine"
	"github.com/avincentLoyco/yalty-backend-sub001/factory"
	"github.com/avincentLoyco/yalty-backend-sub001/store/sqlite"
	"github.com/avincentLoyco/yalty-backend-sub001/worker"
)

type config struct {
	Port         string `env:"PORT" envDefault:"8080"`
	DBPath       string `env:"DB_PATH" envDefault:"ledger.db"`
	PolicyConfig string `env:"POLICY_CONFIG"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
}

func main() {
	_ = godotenv.Load()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		println("failed to parse config:", err.Error())
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer store.Close()

	if cfg.PolicyConfig != "" {
		policyCfg, err := factory.ParseConfigFile(cfg.PolicyConfig)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.PolicyConfig).Msg("failed to load policy config")
		}
		if err := factory.Load(context.Background(), store, policyCfg); err != nil {
			log.Fatal().Err(err).Msg("failed to store policy config")
		}
		log.Info().Int("policies", len(policyCfg.Policies)).Msg("policy config loaded")
	}

	removals := engine.NewRemovalCalculator(nil)
	recompute := engine.NewRecomputeOrchestrator(removals)
	entryFactory := engine.NewEntryFactory(removals)

	recomputeWorker := worker.New(store, recompute, log)
	recomputeWorker.Start()

	lifecycle := engine.NewLifecycleManager(store, recomputeWorker, entryFactory, recompute)
	contracts := engine.NewContractHandler(store, recomputeWorker, entryFactory, recompute)
	overview := engine.NewOverviewAggregator(store, nil)

	handler := api.NewHandler(store, lifecycle, contracts, entryFactory, overview, recompute, recomputeWorker)
	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.NewRouter(handler),
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	recomputeWorker.Stop()
	log.Info().Msg("stopped")
}
