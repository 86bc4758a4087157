package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SteelMorgan/evtc-log-uploader/internal/domain"
)

func dhuumResult() domain.ParseResult {
	return domain.ParseResult{
		Encounter: domain.Encounter{
			Name:       "Dhuum",
			Account:    ":Some.1234",
			DurationMS: 421337,
			Success:    true,
			HasBoss:    true,
		},
	}
}

func TestParsePipeline_Parses(t *testing.T) {
	records := newFakeRecords()
	rec := records.add("a.zevtc", domain.TriggerDhuum)
	analyzer := &fakeAnalyzer{result: dhuumResult()}

	parsed := make(chan domain.LogData, 1)
	p := NewParsePipeline(records, analyzer, func(d domain.LogData) { parsed <- d })
	p.Start()
	defer p.Shutdown()

	require.NoError(t, p.Enqueue("a.zevtc"))

	select {
	case d := <-parsed:
		assert.Equal(t, domain.ParseParsed, d.Parse.Status)
		assert.Equal(t, "Dhuum", d.Parse.Encounter.Name)
		assert.Equal(t, "/logs/a.zevtc.json", d.Parse.JSONPath)
		assert.Equal(t, "/logs/a.zevtc.html", d.Parse.HTMLPath)
	case <-time.After(waitTimeout):
		t.Fatal("parsed hook was not called")
	}

	assert.ErrorIs(t, p.Enqueue("a.zevtc"), ErrPrecondition, "parsed logs are terminal")
	assert.Equal(t, domain.ParseParsed, rec.Snapshot().Parse.Status)
}

func TestParsePipeline_EnqueuePreconditions(t *testing.T) {
	tests := []struct {
		name    string
		status  domain.ParseStatus
		wantErr error
	}{
		{name: "unparsed", status: domain.ParseUnparsed},
		{name: "queued", status: domain.ParseQueued, wantErr: ErrPrecondition},
		{name: "parsing", status: domain.ParseParsing, wantErr: ErrPrecondition},
		{name: "parsed", status: domain.ParseParsed, wantErr: ErrPrecondition},
		{name: "failed", status: domain.ParseFailed, wantErr: ErrPrecondition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := newFakeRecords()
			rec := records.add("a.zevtc", domain.TriggerDhuum)
			rec.Write(func(d *domain.LogData) bool {
				d.Parse.Status = tt.status
				return true
			})

			// the worker is never started so queued logs stay queued
			p := NewParsePipeline(records, &fakeAnalyzer{})
			p.queue.mu.Lock()
			p.queue.running = true
			p.queue.mu.Unlock()

			err := p.Enqueue("a.zevtc")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, tt.status, rec.Snapshot().Parse.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, domain.ParseQueued, rec.Snapshot().Parse.Status)
			assert.Equal(t, 1, p.Pending())
		})
	}
}

func TestParsePipeline_InertWithoutStart(t *testing.T) {
	records := newFakeRecords()
	rec := records.add("a.zevtc", domain.TriggerDhuum)
	p := NewParsePipeline(records, &fakeAnalyzer{})

	assert.False(t, p.Running())
	assert.ErrorIs(t, p.Enqueue("a.zevtc"), ErrNotRunning)
	assert.Equal(t, domain.ParseUnparsed, rec.Snapshot().Parse.Status)
}

func TestParsePipeline_AnalyzerTimeout(t *testing.T) {
	records := newFakeRecords()
	rec := records.add("a.zevtc", domain.TriggerDhuum)
	analyzer := &fakeAnalyzer{err: fmt.Errorf("analyzer timed out after 3m0s: %w", context.DeadlineExceeded)}

	hookCalled := make(chan struct{}, 1)
	p := NewParsePipeline(records, analyzer, func(domain.LogData) { hookCalled <- struct{}{} })
	p.Start()
	defer p.Shutdown()

	require.NoError(t, p.Enqueue("a.zevtc"))
	waitForStatus(t, rec, parseStatus, string(domain.ParseFailed))

	got := rec.Snapshot()
	assert.Contains(t, got.Parse.Error, "timed out")
	assert.Equal(t, domain.UploadAvailable, got.DPSReport.Status)
	assert.Equal(t, domain.UploadAvailable, got.Wingman.Status)
	assert.Len(t, hookCalled, 0, "no auto-trigger after a failed parse")

	assert.ErrorIs(t, p.Enqueue("a.zevtc"), ErrPrecondition, "failed parse is terminal")
}

func TestParsePipeline_AnalyzerPanicMarksFailed(t *testing.T) {
	records := newFakeRecords()
	rec := records.add("a.zevtc", domain.TriggerDhuum)
	p := NewParsePipeline(records, &fakeAnalyzer{panics: true})
	p.Start()
	defer p.Shutdown()

	require.NoError(t, p.Enqueue("a.zevtc"))
	waitForStatus(t, rec, parseStatus, string(domain.ParseFailed))
	assert.Equal(t, "analyzer crashed", rec.Snapshot().Parse.Error)

	// the worker survives
	next := records.add("b.zevtc", domain.TriggerDhuum)
	require.NoError(t, p.Enqueue("b.zevtc"))
	waitForStatus(t, next, parseStatus, string(domain.ParseFailed))
}

func TestParsePipeline_DhuumEndToEnd(t *testing.T) {
	records := newFakeRecords()
	rec := records.add("Dhuum/20240612-201512.zevtc", domain.TriggerDhuum)
	assert.Equal(t, domain.ParseUnparsed, rec.Snapshot().Parse.Status)

	rules := staticRules{domain.ServiceDPSReport: {
		Enabled:    true,
		Encounters: []domain.TriggerID{domain.TriggerDhuum},
	}}
	strategy := newFakeStrategy(domain.ServiceDPSReport)
	upload := NewUploadPipeline(records, strategy, rules)
	upload.Start()
	defer upload.Shutdown()

	parse := NewParsePipeline(records, &fakeAnalyzer{result: dhuumResult()}, func(d domain.LogData) {
		upload.ProcessAutoUpload(d.ID)
	})
	parse.Start()
	defer parse.Shutdown()

	require.NoError(t, parse.Enqueue(rec.ID()))
	waitForStatus(t, rec, dpsReportStatus, string(domain.UploadUploaded))

	got := rec.Snapshot()
	assert.Equal(t, domain.ParseParsed, got.Parse.Status)
	assert.Equal(t, "Dhuum", got.Parse.Encounter.Name)
	assert.True(t, got.Parse.Encounter.Success)
	assert.NotEmpty(t, got.DPSReport.URL)
	assert.Equal(t, "Dhuum", got.DisplayName())
}

func TestParsePipeline_ShutdownKeepsQueuedLogs(t *testing.T) {
	records := newFakeRecords()
	rec := records.add("a.zevtc", domain.TriggerDhuum)

	p := NewParsePipeline(records, &fakeAnalyzer{result: dhuumResult()})
	p.Start()
	p.Shutdown()
	p.Shutdown()

	assert.ErrorIs(t, p.Enqueue("a.zevtc"), ErrNotRunning)
	assert.Equal(t, domain.ParseUnparsed, rec.Snapshot().Parse.Status)
}

func gatedAnalyzer() *fakeAnalyzer {
	return &fakeAnalyzer{
		result:  dhuumResult(),
		gate:    make(chan struct{}),
		started: make(chan string, 8),
	}
}

func TestParsePipeline_ConcurrentEnqueueQueuesOnce(t *testing.T) {
	records := newFakeRecords()
	rec := records.add("a.zevtc", domain.TriggerDhuum)
	analyzer := gatedAnalyzer()

	p := NewParsePipeline(records, analyzer)
	p.Start()
	defer p.Shutdown()

	const callers = 50
	var wg sync.WaitGroup
	var accepted, refused atomic.Int32
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := p.Enqueue("a.zevtc")
			switch {
			case err == nil:
				accepted.Add(1)
			case errors.Is(err, ErrPrecondition):
				refused.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), accepted.Load())
	assert.Equal(t, int32(callers-1), refused.Load())

	<-analyzer.started
	close(analyzer.gate)
	waitForStatus(t, rec, parseStatus, string(domain.ParseParsed))
	assert.Equal(t, int32(1), analyzer.calls.Load())
}

func TestParsePipeline_ShutdownDiscardsQueuedLogs(t *testing.T) {
	records := newFakeRecords()
	busy := records.add("a.zevtc", domain.TriggerDhuum)
	waiting := records.add("b.zevtc", domain.TriggerDhuum)
	analyzer := gatedAnalyzer()

	p := NewParsePipeline(records, analyzer)
	p.Start()

	require.NoError(t, p.Enqueue("a.zevtc"))
	assert.Equal(t, "/logs/a.zevtc", <-analyzer.started)
	require.NoError(t, p.Enqueue("b.zevtc"))
	assert.Equal(t, 1, p.Pending())

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Shutdown()
	}()
	require.Eventually(t, func() bool { return !p.Running() }, waitTimeout, time.Millisecond)

	close(analyzer.gate)
	<-done

	assert.Equal(t, domain.ParseParsed, busy.Snapshot().Parse.Status, "the running analysis completes")
	assert.Equal(t, domain.ParseQueued, waiting.Snapshot().Parse.Status)
	assert.Equal(t, int32(1), analyzer.calls.Load())
	assert.ErrorIs(t, p.Enqueue("b.zevtc"), ErrPrecondition)
}
