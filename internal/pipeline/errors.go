package pipeline

import "errors"

var (
	// ErrNotRunning is returned by Enqueue on a stopped or never started pipeline
	ErrNotRunning = errors.New("pipeline is not running")
	// ErrUnknownLog is returned when no record exists for an id
	ErrUnknownLog = errors.New("log not found")
	// ErrPrecondition is returned when a record is not in a state the pipeline accepts
	ErrPrecondition = errors.New("log unavailable for this pipeline")
)
