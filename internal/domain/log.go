package domain

import (
	"fmt"
	"time"
)

// ParseStatus is the state of a log in the parse pipeline
type ParseStatus string

const (
	ParseUnparsed ParseStatus = "unparsed"
	ParseQueued   ParseStatus = "queued"
	ParseParsing  ParseStatus = "parsing"
	ParseParsed   ParseStatus = "parsed"
	ParseFailed   ParseStatus = "failed"
)

var parseEdges = map[ParseStatus][]ParseStatus{
	ParseUnparsed: {ParseQueued},
	ParseQueued:   {ParseParsing},
	ParseParsing:  {ParseParsed, ParseFailed},
}

// CanTransition reports whether the parse state machine has an edge from s to next
func (s ParseStatus) CanTransition(next ParseStatus) bool {
	for _, to := range parseEdges[s] {
		if to == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further parse transitions are possible
func (s ParseStatus) IsTerminal() bool {
	return s == ParseParsed || s == ParseFailed
}

// UploadStatus is the state of a log in one upload pipeline
type UploadStatus string

const (
	UploadUnavailable UploadStatus = "unavailable"
	UploadAvailable   UploadStatus = "available"
	UploadQueued      UploadStatus = "queued"
	UploadUploading   UploadStatus = "uploading"
	UploadUploaded    UploadStatus = "uploaded"
	UploadSkipped     UploadStatus = "skipped"
	UploadFailed      UploadStatus = "failed"
)

var uploadEdges = map[UploadStatus][]UploadStatus{
	UploadUnavailable: {UploadQueued},
	UploadAvailable:   {UploadQueued},
	UploadFailed:      {UploadQueued},
	UploadQueued:      {UploadUploading, UploadFailed},
	UploadUploading:   {UploadUploaded, UploadFailed, UploadSkipped},
}

// CanTransition reports whether the upload state machine has an edge from s to next
func (s UploadStatus) CanTransition(next UploadStatus) bool {
	for _, to := range uploadEdges[s] {
		if to == next {
			return true
		}
	}
	return false
}

// Enqueueable reports whether a log in this state may be queued for upload.
// Failed uploads can be retried manually.
func (s UploadStatus) Enqueueable() bool {
	return s == UploadAvailable || s == UploadFailed
}

// Service identifies an upload destination
type Service string

const (
	ServiceDPSReport Service = "dps_report"
	ServiceWingman   Service = "wingman"
)

// Difficulty of the recorded encounter
type Difficulty int

const (
	DifficultyNormal Difficulty = iota
	DifficultyChallenge
	DifficultyLegendaryChallenge
	DifficultyEmboldened
	DifficultyEmboldened2
	DifficultyEmboldened3
	DifficultyEmboldened4
	DifficultyEmboldened5
)

func (d Difficulty) String() string {
	switch d {
	case DifficultyNormal:
		return "NM"
	case DifficultyChallenge:
		return "CM"
	case DifficultyLegendaryChallenge:
		return "LCM"
	case DifficultyEmboldened, DifficultyEmboldened2, DifficultyEmboldened3, DifficultyEmboldened4, DifficultyEmboldened5:
		return fmt.Sprintf("EM%d", int(d-DifficultyEmboldened)+1)
	default:
		return "Unknown"
	}
}

// Encounter is the analyzer's summary of a single fight
type Encounter struct {
	Name                string     `json:"name" msgpack:"name"`
	Account             string     `json:"account" msgpack:"account"`
	DurationMS          int        `json:"duration_ms" msgpack:"duration_ms"`
	Success             bool       `json:"success" msgpack:"success"`
	HasBoss             bool       `json:"has_boss" msgpack:"has_boss"`
	HealthPercentBurned float64    `json:"health_percent_burned" msgpack:"health_percent_burned"`
	Difficulty          Difficulty `json:"difficulty" msgpack:"difficulty"`
	StartTime           time.Time  `json:"start_time" msgpack:"start_time"`
	EndTime             time.Time  `json:"end_time" msgpack:"end_time"`
}

// ParseResult holds the parse state and, once parsed or failed, its outcome
type ParseResult struct {
	Status    ParseStatus `json:"status" msgpack:"status"`
	HTMLPath  string      `json:"html_path,omitempty" msgpack:"html_path,omitempty"`
	JSONPath  string      `json:"json_path,omitempty" msgpack:"json_path,omitempty"`
	Error     string      `json:"error,omitempty" msgpack:"error,omitempty"`
	Encounter Encounter   `json:"encounter" msgpack:"encounter"`
}

// Successful reports a parsed log whose encounter was a success
func (p ParseResult) Successful() bool {
	return p.Status == ParseParsed && p.Encounter.Success
}

// Transition moves the parse state along a legal edge
func (p *ParseResult) Transition(next ParseStatus) error {
	if !p.Status.CanTransition(next) {
		return fmt.Errorf("illegal parse transition %s -> %s", p.Status, next)
	}
	p.Status = next
	return nil
}

// UploadState is the per-service upload sub-record.
// URL and RemoteID are only filled by services that return a permalink.
type UploadState struct {
	Status   UploadStatus `json:"status" msgpack:"status"`
	Error    string       `json:"error,omitempty" msgpack:"error,omitempty"`
	URL      string       `json:"url,omitempty" msgpack:"url,omitempty"`
	RemoteID string       `json:"remote_id,omitempty" msgpack:"remote_id,omitempty"`
}

// Transition moves the upload state along a legal edge
func (u *UploadState) Transition(next UploadStatus) error {
	if !u.Status.CanTransition(next) {
		return fmt.Errorf("illegal upload transition %s -> %s", u.Status, next)
	}
	u.Status = next
	return nil
}

// LogData is a value snapshot of a log record
type LogData struct {
	ID         string      `json:"id" msgpack:"id"`
	TriggerID  TriggerID   `json:"trigger_id" msgpack:"trigger_id"`
	SourcePath string      `json:"source_path" msgpack:"source_path"`
	SourceTime time.Time   `json:"source_time" msgpack:"source_time"`
	Parse      ParseResult `json:"parse" msgpack:"parse"`
	DPSReport  UploadState `json:"dps_report" msgpack:"dps_report"`
	Wingman    UploadState `json:"wingman" msgpack:"wingman"`
	Version    uint64      `json:"version" msgpack:"version"`
}

// Upload returns the sub-record owned by the given service
func (d *LogData) Upload(s Service) *UploadState {
	switch s {
	case ServiceDPSReport:
		return &d.DPSReport
	case ServiceWingman:
		return &d.Wingman
	default:
		return nil
	}
}

// DisplayName prefers the analyzer's fight name and falls back to the trigger table
func (d LogData) DisplayName() string {
	if d.Parse.Status == ParseParsed && d.Parse.Encounter.Name != "" {
		return d.Parse.Encounter.Name
	}
	return EncounterName(d.TriggerID)
}
