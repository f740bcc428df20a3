package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/gavelinrobert-beep/Hearth/internal/adapters/engine"
	router "github.com/gavelinrobert-beep/Hearth/internal/adapters/http"
	"github.com/gavelinrobert-beep/Hearth/internal/adapters/membership"
	sig "github.com/gavelinrobert-beep/Hearth/internal/adapters/signal"
	"github.com/gavelinrobert-beep/Hearth/internal/app/media"
	"github.com/gavelinrobert-beep/Hearth/internal/config"
	"github.com/gavelinrobert-beep/Hearth/internal/core"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	facade := media.NewFacade(engine.New(cfg), nil)
	if err := facade.Init(ctx, cfg.WorkerCount); err != nil {
		log.Fatal().Err(err).Msg("failed to start media workers")
	}

	registry := core.NewRegistry(facade)
	directory := membership.NewMemory()
	gateway := sig.NewGateway(cfg, registry, facade, directory)

	r := router.SetupRouter(cfg, gateway, directory, registry)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("voice server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server forced to shutdown")
		}
		registry.CloseAll()
		facade.Close()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
	log.Info().Msg("server exited gracefully")
}
