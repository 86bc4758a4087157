package service

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/SteelMorgan/evtc-log-uploader/internal/analyzer"
	"github.com/SteelMorgan/evtc-log-uploader/internal/config"
	"github.com/SteelMorgan/evtc-log-uploader/internal/dpsreport"
	"github.com/SteelMorgan/evtc-log-uploader/internal/history"
	"github.com/SteelMorgan/evtc-log-uploader/internal/netop"
	"github.com/SteelMorgan/evtc-log-uploader/internal/observability"
	"github.com/SteelMorgan/evtc-log-uploader/internal/settings"
	"github.com/SteelMorgan/evtc-log-uploader/internal/sink"
	"github.com/SteelMorgan/evtc-log-uploader/internal/wingman"
)

// NewFromConfig builds the service and every collaborator from process configuration.
// Optional subsystems that fail to initialize are logged and left out.
func NewFromConfig(ctx context.Context, cfg *config.Config, version string) (*UploaderService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := settings.Load(cfg.SettingsPath)
	if err != nil {
		return nil, err
	}

	opts := Options{
		WatchDir:        cfg.WatchDir,
		Settings:        store,
		WingmanDisabled: !cfg.WingmanEnabled,
	}

	eliteInsights := analyzer.New(analyzer.Config{
		ExecutablePath: cfg.AnalyzerPath,
		OutputDir:      cfg.AnalyzerOutputDir(),
		Timeout:        cfg.AnalyzerTimeout,
	})
	if err := eliteInsights.Provision(); err != nil {
		log.Error().Err(err).Msg("Failed to provision Elite Insights")
	} else {
		opts.Analyzer = eliteInsights
	}

	userAgent := observability.ServiceName + "/" + version
	opts.DPSReport = dpsreport.New(netop.NewClient(cfg.DPSReportTimeout, userAgent), cfg.DPSReportURL, store)
	opts.Wingman = wingman.New(netop.NewClient(cfg.WingmanTimeout, userAgent), wingman.Options{BaseURL: cfg.WingmanURL})

	ledger, err := history.Open(cfg.HistoryDBPath)
	if err != nil {
		log.Warn().Err(err).Msg("Upload history disabled")
	} else {
		opts.History = ledger
	}

	if cfg.ClickHouseEnabled {
		ch, err := sink.Connect(ctx, sink.ClickHouseConfig{
			Host:     cfg.ClickHouseHost,
			Port:     cfg.ClickHousePort,
			Database: cfg.ClickHouseDB,
		})
		if err != nil {
			log.Error().Err(err).Msg("Encounter sink disabled")
		} else {
			opts.Sink = sink.New(ch, sink.DefaultBatchConfig())
			opts.Closers = append(opts.Closers, ch.Close)
		}
	}

	return New(opts)
}
