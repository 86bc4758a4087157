package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/SteelMorgan/evtc-log-uploader/internal/domain"
	"github.com/SteelMorgan/evtc-log-uploader/internal/history"
	"github.com/SteelMorgan/evtc-log-uploader/internal/pipeline"
	"github.com/SteelMorgan/evtc-log-uploader/internal/registry"
	"github.com/SteelMorgan/evtc-log-uploader/internal/settings"
	"github.com/SteelMorgan/evtc-log-uploader/internal/sink"
	"github.com/SteelMorgan/evtc-log-uploader/internal/watcher"
)

// ErrUnknownService is returned for an upload destination that does not exist
var ErrUnknownService = errors.New("unknown upload service")

// Options carries the collaborators of the uploader service
type Options struct {
	WatchDir string
	Settings *settings.Store

	// Analyzer may be nil when Elite Insights could not be provisioned;
	// the parse pipeline then never starts.
	Analyzer  pipeline.Analyzer
	DPSReport pipeline.Strategy
	Wingman   pipeline.Strategy

	WingmanDisabled bool

	// Optional
	History *history.Store
	Sink    *sink.Sink

	// Closers run last on Stop, in order
	Closers []func() error

	WatchOptions watcher.Options
}

// UploaderService wires the registry, the three pipelines and the directory watcher
type UploaderService struct {
	opts Options

	registry *registry.Registry
	parse    *pipeline.ParsePipeline
	uploads  map[domain.Service]*pipeline.UploadPipeline
	watcher  *watcher.Watcher

	stopOnce sync.Once
}

// New creates the service. Nothing runs until Start.
func New(opts Options) (*UploaderService, error) {
	if opts.Settings == nil {
		return nil, fmt.Errorf("settings store is required")
	}
	if opts.DPSReport == nil || opts.Wingman == nil {
		return nil, fmt.Errorf("both upload strategies are required")
	}

	s := &UploaderService{
		opts:    opts,
		uploads: make(map[domain.Service]*pipeline.UploadPipeline, 2),
	}

	s.registry = registry.New(registry.Options{
		WatchRoot:          opts.WatchDir,
		WingmanUnavailable: opts.WingmanDisabled,
	})
	s.registry.AddIngestHook(s.onIngest)

	s.parse = pipeline.NewParsePipeline(s.registry, opts.Analyzer, s.onParsed)
	for _, strategy := range []pipeline.Strategy{opts.DPSReport, opts.Wingman} {
		s.uploads[strategy.Service()] = pipeline.NewUploadPipeline(s.registry, strategy, opts.Settings, s.onUploaded)
	}

	s.watcher = watcher.New(opts.WatchDir, func(path string) { s.Ingest(path) }, opts.WatchOptions)
	return s, nil
}

// Start starts the pipelines and watches the log directory until ctx is done
// or Stop is called. A missing watch directory leaves the service running
// without file discovery.
func (s *UploaderService) Start(ctx context.Context) error {
	if s.opts.Sink != nil {
		s.opts.Sink.Start()
	}

	if s.opts.Analyzer != nil {
		s.parse.Start()
	} else {
		log.Error().Msg("Analyzer unavailable, logs will not be parsed")
	}

	s.uploads[domain.ServiceDPSReport].Start()
	if !s.opts.WingmanDisabled {
		s.uploads[domain.ServiceWingman].Start()
	}

	log.Info().
		Str("watch_dir", s.opts.WatchDir).
		Bool("parser", s.parse.Running()).
		Bool("wingman", !s.opts.WingmanDisabled).
		Msg("Uploader service started")

	err := s.watcher.Start(ctx)
	if err == nil || errors.Is(err, context.Canceled) {
		return err
	}

	log.Error().Err(err).Str("watch_dir", s.opts.WatchDir).Msg("Directory watcher stopped, new logs will not be detected")
	<-ctx.Done()
	return ctx.Err()
}

// Stop shuts the service down. Queued work is discarded; uploads in flight
// finish within their request timeouts.
func (s *UploaderService) Stop() error {
	var errs []error
	s.stopOnce.Do(func() {
		log.Info().Msg("Uploader service stopping...")

		s.watcher.Stop()
		s.parse.Shutdown()
		for _, p := range s.uploads {
			p.Shutdown()
		}

		if s.opts.Sink != nil {
			errs = append(errs, s.opts.Sink.Close())
		}
		errs = append(errs, s.registry.Close())
		if s.opts.History != nil {
			errs = append(errs, s.opts.History.Close())
		}
		for _, closeFn := range s.opts.Closers {
			errs = append(errs, closeFn())
		}
	})
	return errors.Join(errs...)
}

// Ingest adds the log at path. It reports the record id when the file was accepted.
func (s *UploaderService) Ingest(path string) (string, bool) {
	rec, ok := s.registry.Create(path)
	if !ok {
		return "", false
	}
	return rec.ID(), true
}

// EnqueueParse queues a log for the analyzer
func (s *UploaderService) EnqueueParse(id string) error {
	return s.parse.Enqueue(id)
}

// EnqueueUpload queues a log for upload to svc
func (s *UploaderService) EnqueueUpload(svc domain.Service, id string) error {
	p, ok := s.uploads[svc]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownService, svc)
	}
	return p.Enqueue(id)
}

// EnqueueDPSReport queues a log for dps.report
func (s *UploaderService) EnqueueDPSReport(id string) error {
	return s.EnqueueUpload(domain.ServiceDPSReport, id)
}

// EnqueueWingman queues a log for GW2 Wingman
func (s *UploaderService) EnqueueWingman(id string) error {
	return s.EnqueueUpload(domain.ServiceWingman, id)
}

// ProcessAutoUpload applies the auto-upload rules of both services to a log
func (s *UploaderService) ProcessAutoUpload(id string) {
	s.uploads[domain.ServiceDPSReport].ProcessAutoUpload(id)
	s.uploads[domain.ServiceWingman].ProcessAutoUpload(id)
}

// Lookup returns the current state of a log
func (s *UploaderService) Lookup(id string) (domain.LogData, bool) {
	rec, ok := s.registry.Lookup(id)
	if !ok {
		return domain.LogData{}, false
	}
	return rec.Snapshot(), true
}

// Snapshots returns every log, newest first
func (s *UploaderService) Snapshots() []domain.LogData {
	return s.registry.SnapshotAll()
}

// SnapshotsSince returns the logs changed after version since and the
// version to pass next time
func (s *UploaderService) SnapshotsSince(since uint64) ([]domain.LogData, uint64) {
	return s.registry.SnapshotsSince(since)
}

// Settings returns the user settings store
func (s *UploaderService) Settings() *settings.Store {
	return s.opts.Settings
}

// History lists finished uploads, newest first. It is empty without a ledger.
func (s *UploaderService) History(ctx context.Context) ([]history.Entry, error) {
	if s.opts.History == nil {
		return nil, nil
	}
	return s.opts.History.List(ctx)
}

// HistoryEntry returns the last finished upload of one log to svc
func (s *UploaderService) HistoryEntry(ctx context.Context, svc domain.Service, id string) (history.Entry, bool, error) {
	if s.opts.History == nil {
		return history.Entry{}, false, nil
	}
	return s.opts.History.Get(ctx, svc, id)
}

// ForgetHistory drops the ledger entry of one log and service
func (s *UploaderService) ForgetHistory(ctx context.Context, svc domain.Service, id string) error {
	if s.opts.History == nil {
		return nil
	}
	return s.opts.History.Delete(ctx, svc, id)
}

// Status summarizes the pipelines for health checks
func (s *UploaderService) Status() map[string]any {
	return map[string]any{
		"logs":               s.registry.Len(),
		"parser_running":     s.parse.Running(),
		"parse_pending":      s.parse.Pending(),
		"dps_report_pending": s.uploads[domain.ServiceDPSReport].Pending(),
		"wingman_running":    s.uploads[domain.ServiceWingman].Running(),
		"wingman_pending":    s.uploads[domain.ServiceWingman].Pending(),
	}
}

func (s *UploaderService) onIngest(rec *domain.Record) {
	id := rec.ID()
	s.ProcessAutoUpload(id)

	if s.opts.Settings.Read().Parser.AutoParse && s.parse.Running() {
		if err := s.parse.Enqueue(id); err != nil {
			log.Debug().Err(err).Str("log_id", id).Msg("Auto-parse skipped")
		}
	}
}

func (s *UploaderService) onParsed(d domain.LogData) {
	s.ProcessAutoUpload(d.ID)
	if s.opts.Sink != nil {
		s.opts.Sink.Record(d)
	}
}

func (s *UploaderService) onUploaded(d domain.LogData, svc domain.Service) {
	if s.opts.History == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.opts.History.Put(ctx, history.EntryFromLog(d, svc)); err != nil {
		log.Warn().Err(err).Str("log_id", d.ID).Str("service", string(svc)).Msg("Failed to record upload history")
	}
}
