package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"listingfix/internal/adapter/repo"
	"listingfix/internal/engine"
	"listingfix/internal/infra"
	"listingfix/internal/infra/credentials"
	"listingfix/internal/storage"
	"listingfix/internal/worker"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)
	if err := cfg.RequireDatabase(); err != nil {
		logger.Fatal().Err(err).Msg("worker: invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)
	if cfg.AutoMigrate {
		if err := repo.Migrate(ctx, runner); err != nil {
			logger.Fatal().Err(err).Msg("worker: migration failed")
		}
	}

	store, err := storage.New(storage.FromConfig(cfg))
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	eng, err := engine.Build(ctx, cfg, logger, engine.Options{Credentials: credentials.NewStore(runner)})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to build refinement engine")
	}

	assets := repo.NewAssetRepository(runner, store)
	w := worker.New(repo.NewJobRepository(runner), assets, eng.NewBatch(assets, assets), logger, cfg.WorkerPollInterval)
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}
