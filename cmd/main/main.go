package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"marketlink-service/internal/catalog/importer"
	"marketlink-service/internal/config"
	linking "marketlink-service/internal/linking/service"
	recommend "marketlink-service/internal/recommend/service"
	"marketlink-service/internal/storage"
	serverhttp "marketlink-service/server/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	logger := config.SetupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if dir := filepath.Dir(cfg.Storage.Path); dir != "." {
		_ = os.MkdirAll(dir, 0o755)
	}
	store, err := storage.Open(ctx, cfg.Storage.Path, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("storage")
	}
	defer store.Close()

	runner := recommend.NewRunner(
		recommend.NewProcessor(store, store, logger),
		recommend.ConfigSource(config.RunConfigSource()),
		logger,
	)
	r := serverhttp.NewRouter(cfg, logger, serverhttp.Deps{
		DB:       store,
		Runs:     runner,
		Active:   runner.Active,
		Recs:     store,
		Linker:   linking.NewLinker(store, store, cfg.Linking.TitleThreshold, logger),
		History:  store,
		Importer: importer.New(store, logger),
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info().Str("addr", cfg.Addr()).Str("db", cfg.Storage.Path).Msg("server starting")

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("listen")
		}
	}()

	// graceful shutdown
	<-ctx.Done()
	logger.Info().Msg("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := runner.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("active run did not stop in time")
	}
	_ = srv.Shutdown(shutdownCtx)
	logger.Info().Msg("bye")
}
