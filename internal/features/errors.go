package features

import "errors"

// Error kinds reported by the pipeline. Callers match them with errors.Is.
var (
	// ErrInput marks malformed input: bad JSON, missing columns, unparseable timestamps or an empty batch.
	ErrInput = errors.New("invalid input")
	// ErrInsufficientData marks a batch with fewer usable rows than the lag features need.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrSchema marks drift between the feature list and what the scorer expects.
	ErrSchema = errors.New("feature schema mismatch")
)
