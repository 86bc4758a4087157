package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/SteelMorgan/evtc-log-uploader/internal/domain"
	"github.com/SteelMorgan/evtc-log-uploader/internal/observability"
)

const parsePipelineName = "parse"

// Records resolves record handles by id
type Records interface {
	Lookup(id string) (*domain.Record, bool)
}

// Analyzer turns a combat log into a parse result.
// It enforces its own timeout.
type Analyzer interface {
	Run(ctx context.Context, path string) (domain.ParseResult, error)
}

// ParsedHook is called on the worker after a log reached PARSED
type ParsedHook func(d domain.LogData)

// ParsePipeline runs the analyzer over queued logs one at a time
type ParsePipeline struct {
	records  Records
	analyzer Analyzer
	hooks    []ParsedHook
	queue    *workQueue
}

// NewParsePipeline creates a parse pipeline. It accepts work only after Start.
func NewParsePipeline(records Records, analyzer Analyzer, hooks ...ParsedHook) *ParsePipeline {
	return &ParsePipeline{
		records:  records,
		analyzer: analyzer,
		hooks:    hooks,
		queue:    newWorkQueue(parsePipelineName),
	}
}

// Start launches the worker
func (p *ParsePipeline) Start() {
	if p.queue.start(p.process) {
		log.Info().Str("pipeline", parsePipelineName).Msg("Pipeline started")
	}
}

// Running reports whether Enqueue is accepted
func (p *ParsePipeline) Running() bool {
	return p.queue.isRunning()
}

// Pending returns the number of queued logs
func (p *ParsePipeline) Pending() int {
	return p.queue.pending()
}

// Enqueue queues an unparsed log for analysis
func (p *ParsePipeline) Enqueue(id string) error {
	rec, ok := p.records.Lookup(id)
	if !ok {
		return p.reject(id, "unknown", ErrUnknownLog)
	}

	var err error
	rec.Write(func(d *domain.LogData) bool {
		if !d.Parse.Status.CanTransition(domain.ParseQueued) {
			err = fmt.Errorf("%w: parse status is %s", ErrPrecondition, d.Parse.Status)
			return false
		}
		if err = p.queue.push(id); err != nil {
			return false
		}
		err = d.Parse.Transition(domain.ParseQueued)
		return err == nil
	})
	if err != nil {
		reason := "precondition"
		if errors.Is(err, ErrNotRunning) {
			reason = "not_running"
		}
		return p.reject(id, reason, err)
	}

	log.Debug().Str("log_id", id).Msg("Log queued for parsing")
	return nil
}

func (p *ParsePipeline) reject(id, reason string, err error) error {
	observability.RejectedEnqueues.WithLabelValues(parsePipelineName, reason).Inc()
	log.Warn().Err(err).Str("log_id", id).Msg("Log unavailable for parsing")
	return err
}

func (p *ParsePipeline) process(id string) {
	rec, ok := p.records.Lookup(id)
	if !ok {
		return
	}

	var path string
	started := rec.Write(func(d *domain.LogData) bool {
		if d.Parse.Status != domain.ParseQueued {
			return false
		}
		path = d.SourcePath
		return d.Parse.Transition(domain.ParseParsing) == nil
	})
	if !started {
		log.Debug().Str("log_id", id).Msg("Dequeued log is no longer queued, skipping")
		return
	}

	finished := false
	defer func() {
		if !finished {
			p.finish(rec, domain.ParseResult{}, errors.New("analyzer crashed"))
		}
	}()

	ctx, span := observability.StartSpan(context.Background(), parsePipelineName, "parse_log",
		attribute.String("log.id", id),
		attribute.String("log.path", path),
	)
	start := time.Now()
	result, err := p.analyzer.Run(ctx, path)
	observability.JobDuration.WithLabelValues(parsePipelineName).Observe(time.Since(start).Seconds())
	observability.EndSpan(span, err)

	finished = true
	p.finish(rec, result, err)
}

func (p *ParsePipeline) finish(rec *domain.Record, result domain.ParseResult, runErr error) {
	rec.Write(func(d *domain.LogData) bool {
		if runErr != nil {
			d.Parse.Error = runErr.Error()
			return d.Parse.Transition(domain.ParseFailed) == nil
		}
		result.Status = d.Parse.Status
		result.Error = ""
		d.Parse = result
		return d.Parse.Transition(domain.ParseParsed) == nil
	})

	if runErr != nil {
		observability.JobsTotal.WithLabelValues(parsePipelineName, string(domain.ParseFailed)).Inc()
		log.Warn().Err(runErr).Str("log_id", rec.ID()).Msg("Failed to parse log")
		return
	}

	observability.JobsTotal.WithLabelValues(parsePipelineName, string(domain.ParseParsed)).Inc()
	snapshot := rec.Snapshot()
	log.Info().
		Str("log_id", snapshot.ID).
		Str("encounter", snapshot.Parse.Encounter.Name).
		Bool("success", snapshot.Parse.Encounter.Success).
		Msg("Log parsed")

	for _, hook := range p.hooks {
		hook(snapshot)
	}
}

// Shutdown stops the worker. Queued logs stay QUEUED; a running analyzer is
// waited for.
func (p *ParsePipeline) Shutdown() {
	drained := p.queue.shutdown()
	log.Info().
		Str("pipeline", parsePipelineName).
		Int("discarded", len(drained)).
		Msg("Pipeline stopped")
}
