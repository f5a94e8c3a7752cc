package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/atrium/internal/adapters/http"
	wssignal "github.com/dkeye/atrium/internal/adapters/signal"
	"github.com/dkeye/atrium/internal/app"
	"github.com/dkeye/atrium/internal/config"
	"github.com/dkeye/atrium/internal/core"
	"github.com/dkeye/atrium/internal/turn"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	aggregator := app.NewAggregator(prometheus.DefaultRegisterer)
	venues := core.NewVenueRegistry(cfg.Venue.ChatBuffer, aggregator)
	registry := app.NewRegistry()
	coordinator := &app.Coordinator{
		Registry:        registry,
		Venues:          venues,
		DefaultCapacity: cfg.Venue.DefaultCapacity,
	}
	relay := app.NewRelay(registry, prometheus.DefaultRegisterer)
	controller := wssignal.NewController(coordinator, relay, registry, cfg)

	var turnServer *turn.Server
	if cfg.Turn.Enabled {
		turnServer, err = turn.NewServer(cfg.Turn)
		if err != nil {
			log.Error().Err(err).Msg("failed to start TURN server")
		}
	}

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Controller: controller,
		Aggregator: aggregator,
		Venues:     venues,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Atrium server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if turnServer != nil {
		turnServer.Close()
	}
	log.Info().Msg("Server exited gracefully")
}
