package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/SteelMorgan/evtc-log-uploader/internal/domain"
	"github.com/SteelMorgan/evtc-log-uploader/internal/settings"
)

const waitTimeout = 2 * time.Second

type fakeRecords struct {
	mu      sync.Mutex
	clock   domain.Clock
	records map[string]*domain.Record
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{records: make(map[string]*domain.Record)}
}

func (f *fakeRecords) add(id string, trigger domain.TriggerID) *domain.Record {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec := domain.NewRecord(domain.RecordOptions{
		ID:         id,
		TriggerID:  trigger,
		SourcePath: "/logs/" + id,
		SourceTime: time.Now(),
	}, &f.clock)
	f.records[id] = rec
	return rec
}

func (f *fakeRecords) Lookup(id string) (*domain.Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	return rec, ok
}

// fakeAnalyzer returns result immediately unless gate is set, in which case
// each run reports its path on started and waits for gate.
type fakeAnalyzer struct {
	result  domain.ParseResult
	err     error
	calls   atomic.Int32
	panics  bool
	gate    chan struct{}
	started chan string
}

func (a *fakeAnalyzer) Run(_ context.Context, path string) (domain.ParseResult, error) {
	a.calls.Add(1)
	if a.gate != nil {
		a.started <- path
		<-a.gate
	}
	if a.panics {
		panic("analyzer exploded")
	}
	if a.err != nil {
		return domain.ParseResult{}, a.err
	}
	result := a.result
	result.HTMLPath = path + ".html"
	result.JSONPath = path + ".json"
	return result, nil
}

// fakeStrategy uploads instantly unless gate is set, in which case each
// upload waits for a value on gate.
type fakeStrategy struct {
	service     domain.Service
	needsParsed bool
	blocked     atomic.Bool
	gate        chan struct{}
	started     chan string
	outcome     Outcome
	err         error
	calls       atomic.Int32
}

func newFakeStrategy(svc domain.Service) *fakeStrategy {
	return &fakeStrategy{
		service: svc,
		started: make(chan string, 64),
		outcome: Outcome{
			Status:   domain.UploadUploaded,
			URL:      "https://dps.report/abcd-20240612-201512_dhuum",
			RemoteID: "abcd",
		},
	}
}

func (s *fakeStrategy) Service() domain.Service { return s.service }

func (s *fakeStrategy) Precondition(d *domain.LogData) error {
	if s.blocked.Load() {
		return errors.New("blocked by test")
	}
	if s.needsParsed && d.Parse.Status != domain.ParseParsed {
		return errors.New("log is not parsed")
	}
	return nil
}

func (s *fakeStrategy) Upload(ctx context.Context, d domain.LogData) (Outcome, error) {
	s.calls.Add(1)
	s.started <- d.ID
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		}
	}
	return s.outcome, s.err
}

type staticRules map[domain.Service]settings.AutoUploadRule

func (r staticRules) Rule(svc domain.Service) settings.AutoUploadRule {
	return r[svc]
}

func waitForStatus(t *testing.T, rec *domain.Record, get func(d domain.LogData) string, want string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return get(rec.Snapshot()) == want
	}, waitTimeout, 5*time.Millisecond, "status never became %s", want)
}

func parseStatus(d domain.LogData) string     { return string(d.Parse.Status) }
func dpsReportStatus(d domain.LogData) string { return string(d.DPSReport.Status) }
func wingmanStatus(d domain.LogData) string   { return string(d.Wingman.Status) }
