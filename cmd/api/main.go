package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"listingfix/internal/adapter/repo"
	"listingfix/internal/engine"
	"listingfix/internal/http/handlers"
	httpapi "listingfix/internal/http/httpapi"
	"listingfix/internal/infra"
	"listingfix/internal/infra/credentials"
	"listingfix/internal/storage"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)
	if err := cfg.RequireDatabase(); err != nil {
		logger.Fatal().Err(err).Msg("api: invalid configuration")
	}

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()
	runner := infra.NewSQLRunner(dbpool, logger)

	if cfg.AutoMigrate {
		if err := repo.Migrate(ctx, runner); err != nil {
			logger.Fatal().Err(err).Msg("api: migration failed")
		}
	}

	store, err := storage.New(storage.FromConfig(cfg))
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure storage")
	}

	eng, err := engine.Build(ctx, cfg, logger, engine.Options{Credentials: credentials.NewStore(runner)})
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to build refinement engine")
	}

	assets := repo.NewAssetRepository(runner, store)
	app := &handlers.App{
		Config: cfg,
		Logger: logger,
		Assets: assets,
		Jobs:   repo.NewJobRepository(runner),
		Batch:  eng.NewBatch(assets, assets),
	}

	server := infra.NewHTTPServer(cfg, httpapi.NewRouter(app))

	go func() {
		logger.Info().
			Str("generation", cfg.GenerationBackend).
			Str("verification", cfg.VerificationBackend).
			Str("storage", cfg.StorageDriver).
			Msgf("API listening on %s", server.Addr())
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
