package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/SteelMorgan/evtc-log-uploader/internal/api"
	"github.com/SteelMorgan/evtc-log-uploader/internal/config"
	"github.com/SteelMorgan/evtc-log-uploader/internal/observability"
	"github.com/SteelMorgan/evtc-log-uploader/internal/service"
)

var version = "0.1.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logCloser := observability.InitLogger(cfg.LogLevel, cfg.LogFile)
	defer logCloser.Close()

	log.Info().
		Str("version", version).
		Str("watch_dir", cfg.WatchDir).
		Msg("Starting EVTC log uploader")

	shutdownTracer, err := observability.InitTracer(observability.TracerConfig{
		ServiceVersion: version,
		Endpoint:       cfg.TracingEndpoint,
		Protocol:       cfg.TracingProtocol,
		Enabled:        cfg.TracingEnabled,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize tracer")
	} else {
		defer shutdownTracer(context.Background())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	uploaderSvc, err := service.NewFromConfig(ctx, cfg, version)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create uploader service")
	}
	apiServer := api.NewServer(cfg.HTTPPort, uploaderSvc)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 2)
	go func() {
		if err := uploaderSvc.Start(ctx); err != nil && ctx.Err() == nil {
			errChan <- err
		}
	}()
	go func() {
		if err := apiServer.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	log.Info().Int("port", cfg.HTTPPort).Msg("Uploader started successfully")

	// Wait for shutdown signal or error
	select {
	case <-sigChan:
		log.Info().Msg("Received shutdown signal")
	case err := <-errChan:
		log.Error().Err(err).Msg("Uploader error")
	}

	log.Info().Msg("Shutting down gracefully...")
	cancel()

	if err := apiServer.Stop(); err != nil {
		log.Error().Err(err).Msg("Error stopping HTTP API")
	}
	if err := uploaderSvc.Stop(); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
	}

	log.Info().Msg("Uploader stopped")
}
