// Package models defines the core domain entities: readings, alerts and risk assessments.
package models

import (
	"errors"
	"math"
	"time"

	"github.com/rewired-gh/motorguard/internal/features"
)

// Reading is one stored motor temperature sample.
type Reading struct {
	ID          int64     `json:"id"`
	Temperature float64   `json:"temperature"`
	Timestamp   time.Time `json:"timestamp"`
}

// Validate checks reading field constraints.
func (r *Reading) Validate() error {
	if math.IsNaN(r.Temperature) || math.IsInf(r.Temperature, 0) {
		return errors.New("temperature must be a finite number")
	}
	if r.Timestamp.IsZero() {
		return errors.New("timestamp must be set")
	}
	return nil
}

// RawRecord converts the reading to the pipeline's input shape.
func (r Reading) RawRecord() features.RawRecord {
	return features.RawRecord{
		"timestamp":   r.Timestamp.UTC().Format(time.RFC3339Nano),
		"temperature": r.Temperature,
	}
}

// RawRecords converts readings in order.
func RawRecords(readings []Reading) []features.RawRecord {
	out := make([]features.RawRecord, len(readings))
	for i, r := range readings {
		out[i] = r.RawRecord()
	}
	return out
}

// Stats summarizes readings over a period. Nil fields mean no data.
type Stats struct {
	Current *float64 `json:"current"`
	Average *float64 `json:"average"`
	Highest *float64 `json:"highest"`
	Lowest  *float64 `json:"lowest"`
	Count   int      `json:"count"`
}
