package sink

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/SteelMorgan/evtc-log-uploader/internal/domain"
	"github.com/SteelMorgan/evtc-log-uploader/internal/observability"
)

// ClickHouse DateTime64 valid range: 1925-01-01 to 2283-11-11
var (
	minDateTime = time.Date(1925, 1, 1, 0, 0, 0, 0, time.UTC)
	maxDateTime = time.Date(2283, 11, 11, 23, 59, 59, 999999999, time.UTC)
)

func validDateTime(t time.Time) time.Time {
	if t.IsZero() || t.Before(minDateTime) || t.After(maxDateTime) {
		return minDateTime
	}
	return t
}

// EncounterRow is one parsed fight as stored in the analytics table
type EncounterRow struct {
	LogID               string
	TriggerID           uint16
	Encounter           string
	Account             string
	Success             bool
	Difficulty          string
	DurationMS          uint32
	HealthPercentBurned float64
	StartTime           time.Time
	EndTime             time.Time
	ParsedAt            time.Time
}

// RowFromLog builds the row for a parsed record snapshot
func RowFromLog(d domain.LogData) EncounterRow {
	enc := d.Parse.Encounter
	duration := enc.DurationMS
	if duration < 0 {
		duration = 0
	}
	return EncounterRow{
		LogID:               d.ID,
		TriggerID:           uint16(d.TriggerID),
		Encounter:           d.DisplayName(),
		Account:             enc.Account,
		Success:             enc.Success,
		Difficulty:          enc.Difficulty.String(),
		DurationMS:          uint32(duration),
		HealthPercentBurned: enc.HealthPercentBurned,
		StartTime:           validDateTime(enc.StartTime),
		EndTime:             validDateTime(enc.EndTime),
		ParsedAt:            time.Now().UTC(),
	}
}

// Inserter writes a batch of rows
type Inserter interface {
	Insert(ctx context.Context, rows []EncounterRow) error
}

// BatchConfig configures batch behavior
type BatchConfig struct {
	MaxSize       int           // Maximum rows per batch
	FlushInterval time.Duration // Maximum wait before a partial batch is sent
	Buffer        int           // Rows held while the writer is busy; extra rows are dropped
}

// DefaultBatchConfig suits the rate at which fights are recorded
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		MaxSize:       100,
		FlushInterval: 5 * time.Second,
		Buffer:        1000,
	}
}

// Sink batches parsed encounters on a background goroutine
type Sink struct {
	inserter Inserter
	cfg      BatchConfig

	mu     sync.Mutex
	closed bool
	rows   chan EncounterRow
	done   chan struct{}
}

// New creates a sink. Start must be called before rows are written out.
func New(inserter Inserter, cfg BatchConfig) *Sink {
	def := DefaultBatchConfig()
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = def.MaxSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = def.Buffer
	}
	return &Sink{
		inserter: inserter,
		cfg:      cfg,
		rows:     make(chan EncounterRow, cfg.Buffer),
		done:     make(chan struct{}),
	}
}

// Start launches the batching goroutine
func (s *Sink) Start() {
	go s.run()
}

// Record queues a parsed log. It never blocks the caller.
func (s *Sink) Record(d domain.LogData) {
	if d.Parse.Status != domain.ParseParsed {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	select {
	case s.rows <- RowFromLog(d):
	default:
		observability.SinkRows.WithLabelValues("dropped").Inc()
		log.Warn().Str("log_id", d.ID).Msg("Encounter sink buffer full, dropping row")
	}
}

// Close stops accepting rows and waits for the pending batch to be written
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.rows)
	s.mu.Unlock()

	<-s.done
	return nil
}

func (s *Sink) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]EncounterRow, 0, s.cfg.MaxSize)
	for {
		select {
		case row, ok := <-s.rows:
			if !ok {
				s.flush(batch)
				return
			}
			batch = append(batch, row)
			if len(batch) >= s.cfg.MaxSize {
				s.flush(batch)
				batch = make([]EncounterRow, 0, s.cfg.MaxSize)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(batch)
				batch = make([]EncounterRow, 0, s.cfg.MaxSize)
			}
		}
	}
}

func (s *Sink) flush(batch []EncounterRow) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	if err := s.inserter.Insert(ctx, batch); err != nil {
		observability.SinkRows.WithLabelValues("failed").Add(float64(len(batch)))
		log.Error().
			Err(err).
			Int("batch_size", len(batch)).
			Msg("Failed to write encounter batch")
		return
	}

	observability.SinkRows.WithLabelValues("written").Add(float64(len(batch)))
	log.Debug().
		Int("batch_size", len(batch)).
		Dur("elapsed", time.Since(start)).
		Msg("Encounter batch written")
}
