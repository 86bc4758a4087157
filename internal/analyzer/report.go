package analyzer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/SteelMorgan/evtc-log-uploader/internal/domain"
)

var (
	jsonOutputRe     = regexp.MustCompile(`Generated:\s*(.+\.json)\s*`)
	htmlOutputRe     = regexp.MustCompile(`Generated:\s*(.+\.html)\s*`)
	failureMessageRe = regexp.MustCompile(`Parsing Failure - .*?: .*?: (.+)`)
)

const (
	successMarker = "Parsing Successful"
	failureMarker = "Parsing Failure"

	// timeStartStd / timeEndStd, e.g. "2024-06-12 20:15:12 +02:00"
	reportTimeLayout = "2006-01-02 15:04:05 -07:00"
)

// ErrNoReport is returned when the analyzer neither succeeded nor explained its failure
var ErrNoReport = errors.New("analyzer produced no report")

// output is what the CLI printed for one log
type output struct {
	JSONPath string
	HTMLPath string
	Success  bool
	Failure  string
}

func parseOutput(raw string) output {
	var out output

	if m := jsonOutputRe.FindStringSubmatch(raw); len(m) > 1 {
		out.JSONPath = strings.TrimSpace(m[1])
	}
	if m := htmlOutputRe.FindStringSubmatch(raw); len(m) > 1 {
		out.HTMLPath = strings.TrimSpace(m[1])
	}

	failed := strings.Contains(raw, failureMarker)
	out.Success = strings.Contains(raw, successMarker) && !failed
	if failed {
		if m := failureMessageRe.FindStringSubmatch(raw); len(m) > 1 {
			out.Failure = strings.TrimSpace(m[1])
		}
	}

	return out
}

// report is the subset of the Elite Insights JSON the uploader reads
type report struct {
	TriggerID         int            `json:"triggerID"`
	FightName         string         `json:"fightName"`
	RecordedAccountBy string         `json:"recordedAccountBy"`
	DurationMS        int            `json:"durationMS"`
	Success           bool           `json:"success"`
	IsCM              bool           `json:"isCM"`
	IsLegendaryCM     bool           `json:"isLegendaryCM"`
	TimeStartStd      string         `json:"timeStartStd"`
	TimeEndStd        string         `json:"timeEndStd"`
	Targets           []reportTarget `json:"targets"`
}

type reportTarget struct {
	ID                  int     `json:"id"`
	HealthPercentBurned float64 `json:"healthPercentBurned"`
}

func readEncounter(path string) (domain.Encounter, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.Encounter{}, fmt.Errorf("failed to open json file: %w", err)
	}
	return decodeEncounter(raw)
}

func decodeEncounter(raw []byte) (domain.Encounter, error) {
	var r report
	if err := json.Unmarshal(raw, &r); err != nil {
		return domain.Encounter{}, fmt.Errorf("failed to decode json report: %w", err)
	}

	enc := domain.Encounter{
		Name:       r.FightName,
		Account:    r.RecordedAccountBy,
		DurationMS: r.DurationMS,
		Success:    r.Success,
		StartTime:  parseReportTime(r.TimeStartStd),
		EndTime:    parseReportTime(r.TimeEndStd),
	}

	switch {
	case r.IsCM:
		enc.Difficulty = domain.DifficultyChallenge
	case r.IsLegendaryCM:
		enc.Difficulty = domain.DifficultyLegendaryChallenge
	default:
		enc.Difficulty = domain.DifficultyNormal
	}

	if r.TriggerID != 0 {
		for _, target := range r.Targets {
			if target.ID == r.TriggerID {
				enc.HasBoss = true
				enc.HealthPercentBurned = target.HealthPercentBurned
				break
			}
		}
	}

	return enc, nil
}

func parseReportTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{reportTimeLayout, "2006-01-02 15:04:05 -0700"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}
