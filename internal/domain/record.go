package domain

import (
	"sync"
	"sync/atomic"
	"time"
)

// Clock hands out monotonically increasing versions shared by all records of a registry
type Clock struct {
	v atomic.Uint64
}

// Next advances the clock
func (c *Clock) Next() uint64 {
	return c.v.Add(1)
}

// Current returns the last version handed out
func (c *Clock) Current() uint64 {
	return c.v.Load()
}

// Record is a log entry shared by the registry and all pipelines.
// Every field of data is guarded by mu; id is immutable.
type Record struct {
	id    string
	clock *Clock

	mu   sync.RWMutex
	data LogData
}

// RecordOptions carries the initial state of a new record
type RecordOptions struct {
	ID         string
	TriggerID  TriggerID
	SourcePath string
	SourceTime time.Time

	// Upload state for services that cannot accept this log
	DPSReportUnavailable bool
	WingmanUnavailable   bool
}

// NewRecord creates an unparsed record
func NewRecord(opts RecordOptions, clock *Clock) *Record {
	if clock == nil {
		clock = &Clock{}
	}

	dpsStatus, wingmanStatus := UploadAvailable, UploadAvailable
	if opts.DPSReportUnavailable {
		dpsStatus = UploadUnavailable
	}
	if opts.WingmanUnavailable {
		wingmanStatus = UploadUnavailable
	}

	return &Record{
		id:    opts.ID,
		clock: clock,
		data: LogData{
			ID:         opts.ID,
			TriggerID:  opts.TriggerID,
			SourcePath: opts.SourcePath,
			SourceTime: opts.SourceTime,
			Parse:      ParseResult{Status: ParseUnparsed},
			DPSReport:  UploadState{Status: dpsStatus},
			Wingman:    UploadState{Status: wingmanStatus},
			Version:    clock.Next(),
		},
	}
}

// ID returns the immutable record identifier
func (r *Record) ID() string {
	return r.id
}

// Snapshot returns a copy of the record under a shared lock
func (r *Record) Snapshot() LogData {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data
}

// Read runs fn under a shared lock. fn must not modify d or retain it.
func (r *Record) Read(fn func(d *LogData)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn(&r.data)
}

// Write runs fn under the exclusive lock. When fn reports a change the record
// is stamped with a new version.
func (r *Record) Write(fn func(d *LogData) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := fn(&r.data)
	if changed {
		r.data.Version = r.clock.Next()
	}
	return changed
}
