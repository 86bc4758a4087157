package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/SteelMorgan/evtc-log-uploader/internal/domain"
	"github.com/SteelMorgan/evtc-log-uploader/internal/evtc"
	"github.com/SteelMorgan/evtc-log-uploader/internal/observability"
)

// IngestHook runs after a record was added, outside the collection lock
type IngestHook func(rec *domain.Record)

// Options configure a registry
type Options struct {
	// WatchRoot is the directory record ids are derived from
	WatchRoot string

	// Services that are disabled start their upload state as UNAVAILABLE
	DPSReportUnavailable bool
	WingmanUnavailable   bool
}

// Registry owns every log record of the process, newest first
type Registry struct {
	opts  Options
	clock domain.Clock

	mu      sync.RWMutex
	records []*domain.Record
	byID    map[string]*domain.Record
	hooks   []IngestHook
}

// New creates an empty registry
func New(opts Options) *Registry {
	return &Registry{
		opts: opts,
		byID: make(map[string]*domain.Record),
	}
}

// AddIngestHook registers fn to run for every new record
func (r *Registry) AddIngestHook(fn IngestHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, fn)
}

// Create validates the file at path and adds a record for it.
// Invalid files and already known ids are rejected with a warning.
func (r *Registry) Create(path string) (*domain.Record, bool) {
	header, err := evtc.ReadHeader(path)
	if err != nil {
		observability.LogsIngested.WithLabelValues("invalid").Inc()
		log.Warn().Err(err).Str("path", path).Msg("Rejected invalid log file")
		return nil, false
	}

	id := LogID(r.opts.WatchRoot, path)
	rec := domain.NewRecord(domain.RecordOptions{
		ID:                   id,
		TriggerID:            header.TriggerID,
		SourcePath:           path,
		SourceTime:           header.FileTime,
		DPSReportUnavailable: r.opts.DPSReportUnavailable,
		WingmanUnavailable:   r.opts.WingmanUnavailable,
	}, &r.clock)

	r.mu.Lock()
	if _, exists := r.byID[id]; exists {
		r.mu.Unlock()
		observability.LogsIngested.WithLabelValues("duplicate").Inc()
		log.Warn().Str("log_id", id).Str("path", path).Msg("Log already tracked, ignoring")
		return nil, false
	}
	r.records = append([]*domain.Record{rec}, r.records...)
	r.byID[id] = rec
	// restamp while the record is visible so no poll sees the version without it
	rec.Write(func(*domain.LogData) bool { return true })
	hooks := r.hooks
	total := len(r.records)
	r.mu.Unlock()

	observability.LogsIngested.WithLabelValues("created").Inc()
	observability.LogsTracked.Set(float64(total))
	log.Info().
		Str("log_id", id).
		Uint16("trigger_id", uint16(header.TriggerID)).
		Str("encounter", domain.EncounterName(header.TriggerID)).
		Msg("New log")

	for _, hook := range hooks {
		hook(rec)
	}

	return rec, true
}

// Lookup resolves a record by id
func (r *Registry) Lookup(id string) (*domain.Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byID[id]
	return rec, ok
}

// Len returns the number of records
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Version returns the highest version stamped on any record so far
func (r *Registry) Version() uint64 {
	return r.clock.Current()
}

// SnapshotAll returns value copies of every record, newest first
func (r *Registry) SnapshotAll() []domain.LogData {
	snapshots, _ := r.SnapshotsSince(0)
	return snapshots
}

// SnapshotsSince returns the records changed after version since, newest first,
// and the version to pass on the next call.
func (r *Registry) SnapshotsSince(since uint64) ([]domain.LogData, uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	current := r.clock.Current()

	snapshots := make([]domain.LogData, 0, len(r.records))
	for _, rec := range r.records {
		d := rec.Snapshot()
		if d.Version > since {
			snapshots = append(snapshots, d)
		}
	}
	return snapshots, current
}

// Close removes the analyzer artifacts of every parsed log
func (r *Registry) Close() error {
	r.mu.RLock()
	records := make([]*domain.Record, len(r.records))
	copy(records, r.records)
	r.mu.RUnlock()

	var errs []error
	removed := 0
	for _, rec := range records {
		d := rec.Snapshot()
		if d.Parse.Status != domain.ParseParsed {
			continue
		}
		for _, artifact := range []string{d.Parse.HTMLPath, d.Parse.JSONPath} {
			if artifact == "" {
				continue
			}
			if err := os.Remove(artifact); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, fmt.Errorf("failed to remove %s: %w", artifact, err))
				continue
			}
			removed++
		}
	}

	log.Info().Int("removed", removed).Msg("Cleaned up analyzer artifacts")
	return errors.Join(errs...)
}

// LogID derives the stable record id of a log file from its path.
// Files under a sub-directory of root are "<first dir>/<file>", files directly
// in root are "<file>" and anything outside root keeps its full slash path.
func LogID(root, path string) string {
	name := filepath.Base(path)
	if root == "" {
		return filepath.ToSlash(path)
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return filepath.ToSlash(path)
	}

	parts := strings.Split(rel, "/")
	if len(parts) == 1 {
		return name
	}
	return parts[0] + "/" + name
}
