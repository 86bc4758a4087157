package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/SteelMorgan/evtc-log-uploader/internal/domain"
	"github.com/SteelMorgan/evtc-log-uploader/internal/observability"
	"github.com/SteelMorgan/evtc-log-uploader/internal/settings"
)

// Outcome is the result of a finished upload attempt.
// Status is UPLOADED or SKIPPED; failures are returned as errors.
type Outcome struct {
	Status   domain.UploadStatus
	Message  string
	URL      string
	RemoteID string
}

// Strategy is the service-specific half of an upload pipeline
type Strategy interface {
	Service() domain.Service
	// Precondition reports why d cannot be uploaded, or nil.
	// It is called under the record lock and must not block.
	Precondition(d *domain.LogData) error
	// Upload transfers the log. It is called without any lock held.
	Upload(ctx context.Context, d domain.LogData) (Outcome, error)
}

// RuleSource supplies the current auto-upload rule of a service
type RuleSource interface {
	Rule(svc domain.Service) settings.AutoUploadRule
}

// UploadHook is called on the worker after an attempt wrote its final state
type UploadHook func(d domain.LogData, svc domain.Service)

// UploadPipeline moves logs through one upload service, one at a time
type UploadPipeline struct {
	records  Records
	strategy Strategy
	rules    RuleSource
	hooks    []UploadHook
	queue    *workQueue
	name     string
}

// NewUploadPipeline creates an upload pipeline for the strategy's service
func NewUploadPipeline(records Records, strategy Strategy, rules RuleSource, hooks ...UploadHook) *UploadPipeline {
	name := string(strategy.Service())
	return &UploadPipeline{
		records:  records,
		strategy: strategy,
		rules:    rules,
		hooks:    hooks,
		queue:    newWorkQueue(name),
		name:     name,
	}
}

// Service returns the destination served by this pipeline
func (p *UploadPipeline) Service() domain.Service {
	return p.strategy.Service()
}

// Start launches the worker
func (p *UploadPipeline) Start() {
	if p.queue.start(p.process) {
		log.Info().Str("pipeline", p.name).Msg("Pipeline started")
	}
}

// Running reports whether Enqueue is accepted
func (p *UploadPipeline) Running() bool {
	return p.queue.isRunning()
}

// Pending returns the number of queued logs
func (p *UploadPipeline) Pending() int {
	return p.queue.pending()
}

// Enqueue queues a log for upload. Available and failed logs are accepted.
func (p *UploadPipeline) Enqueue(id string) error {
	rec, ok := p.records.Lookup(id)
	if !ok {
		return p.reject(id, "unknown", ErrUnknownLog)
	}

	svc := p.strategy.Service()
	var err error
	rec.Write(func(d *domain.LogData) bool {
		state := d.Upload(svc)
		if perr := p.strategy.Precondition(d); perr != nil {
			err = fmt.Errorf("%w: %v", ErrPrecondition, perr)
			return false
		}
		if !state.Status.Enqueueable() {
			err = fmt.Errorf("%w: upload status is %s", ErrPrecondition, state.Status)
			return false
		}
		if err = p.queue.push(id); err != nil {
			return false
		}
		if err = state.Transition(domain.UploadQueued); err != nil {
			return false
		}
		state.Error = ""
		return true
	})
	if err != nil {
		reason := "precondition"
		if errors.Is(err, ErrNotRunning) {
			reason = "not_running"
		}
		return p.reject(id, reason, err)
	}

	log.Debug().Str("log_id", id).Str("service", p.name).Msg("Log queued for upload")
	return nil
}

func (p *UploadPipeline) reject(id, reason string, err error) error {
	observability.RejectedEnqueues.WithLabelValues(p.name, reason).Inc()
	log.Warn().Err(err).Str("log_id", id).Str("service", p.name).Msg("Log unavailable for upload")
	return err
}

// ProcessAutoUpload enqueues the log when the auto-upload rule selects it.
// It reports whether the log was queued.
func (p *UploadPipeline) ProcessAutoUpload(id string) bool {
	rec, ok := p.records.Lookup(id)
	if !ok {
		return false
	}

	svc := p.strategy.Service()
	rule := p.rules.Rule(svc)

	selected := false
	rec.Read(func(d *domain.LogData) {
		if !ShouldAutoUpload(rule, *d, svc) {
			return
		}
		if err := p.strategy.Precondition(d); err != nil {
			log.Debug().Err(err).Str("log_id", id).Str("service", p.name).Msg("Auto-upload precondition not met")
			return
		}
		selected = true
	})
	if !selected {
		return false
	}

	log.Info().Str("log_id", id).Str("service", p.name).Msg("Auto-uploading log")
	return p.Enqueue(id) == nil
}

func (p *UploadPipeline) process(id string) {
	rec, ok := p.records.Lookup(id)
	if !ok {
		return
	}

	svc := p.strategy.Service()
	var snapshot domain.LogData
	var invalid error
	started := rec.Write(func(d *domain.LogData) bool {
		state := d.Upload(svc)
		if state.Status != domain.UploadQueued {
			invalid = fmt.Errorf("upload status is %s", state.Status)
		} else {
			invalid = p.strategy.Precondition(d)
		}
		if invalid != nil {
			if !state.Status.CanTransition(domain.UploadFailed) {
				return false
			}
			state.Error = "unavailable for upload"
			return state.Transition(domain.UploadFailed) == nil
		}
		if err := state.Transition(domain.UploadUploading); err != nil {
			return false
		}
		snapshot = *d
		return true
	})
	if invalid != nil {
		if started {
			observability.JobsTotal.WithLabelValues(p.name, string(domain.UploadFailed)).Inc()
		}
		log.Warn().Err(invalid).Str("log_id", id).Str("service", p.name).Msg("Log unavailable for upload")
		return
	}
	if !started {
		log.Debug().Str("log_id", id).Str("service", p.name).Msg("Dequeued log is no longer queued, skipping")
		return
	}

	attemptID := uuid.NewString()
	finished := false
	defer func() {
		if !finished {
			p.finish(rec, attemptID, Outcome{}, errors.New("upload crashed"))
		}
	}()

	ctx := observability.WithAttemptID(context.Background(), attemptID)
	ctx, span := observability.StartSpan(ctx, p.name, "upload_log",
		attribute.String("log.id", id),
		attribute.String("upload.attempt_id", attemptID),
	)
	start := time.Now()
	outcome, err := p.strategy.Upload(ctx, snapshot)
	observability.JobDuration.WithLabelValues(p.name).Observe(time.Since(start).Seconds())
	observability.EndSpan(span, err)

	finished = true
	p.finish(rec, attemptID, outcome, err)
}

func (p *UploadPipeline) finish(rec *domain.Record, attemptID string, outcome Outcome, uploadErr error) {
	svc := p.strategy.Service()

	if uploadErr == nil && outcome.Status != domain.UploadUploaded && outcome.Status != domain.UploadSkipped {
		uploadErr = fmt.Errorf("upload finished with unexpected status %q", outcome.Status)
	}

	var final domain.UploadStatus
	rec.Write(func(d *domain.LogData) bool {
		state := d.Upload(svc)
		if uploadErr != nil {
			final = domain.UploadFailed
			state.Error = uploadErr.Error()
		} else {
			final = outcome.Status
			state.Error = outcome.Message
			state.URL = outcome.URL
			state.RemoteID = outcome.RemoteID
		}
		return state.Transition(final) == nil
	})

	observability.JobsTotal.WithLabelValues(p.name, string(final)).Inc()

	event := log.Info()
	if uploadErr != nil {
		event = log.Warn().Err(uploadErr)
	}
	event.
		Str("log_id", rec.ID()).
		Str("service", p.name).
		Str("attempt_id", attemptID).
		Str("status", string(final)).
		Str("url", outcome.URL).
		Msg("Upload finished")

	snapshot := rec.Snapshot()
	for _, hook := range p.hooks {
		hook(snapshot, svc)
	}
}

// Shutdown stops the worker. Queued logs stay QUEUED; a running upload is
// waited for.
func (p *UploadPipeline) Shutdown() {
	drained := p.queue.shutdown()
	log.Info().
		Str("pipeline", p.name).
		Int("discarded", len(drained)).
		Msg("Pipeline stopped")
}
