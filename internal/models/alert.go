package models

import (
	"errors"
	"time"
)

// AlertKind distinguishes what raised an alert.
type AlertKind string

const (
	AlertHighTemperature AlertKind = "high_temperature"
	AlertFailureRisk     AlertKind = "failure_risk"
)

// Alert is a persisted notification-worthy event.
type Alert struct {
	ID          string    `json:"id"`
	Kind        AlertKind `json:"kind"`
	Temperature float64   `json:"temperature"`
	Probability *float64  `json:"probability,omitempty"`
	Threshold   float64   `json:"threshold"`
	Message     string    `json:"message"`
	DetectedAt  time.Time `json:"timestamp"`
	Notified    bool      `json:"notified"`
}

// Validate checks alert field constraints.
func (a *Alert) Validate() error {
	if a.ID == "" {
		return errors.New("alert ID must not be empty")
	}
	switch a.Kind {
	case AlertHighTemperature:
	case AlertFailureRisk:
		if a.Probability == nil {
			return errors.New("failure risk alert needs a probability")
		}
		if *a.Probability < 0 || *a.Probability > 1 {
			return errors.New("probability must be between 0.0 and 1.0")
		}
	default:
		return errors.New("unknown alert kind")
	}
	if a.DetectedAt.IsZero() {
		return errors.New("detected at must be set")
	}
	return nil
}

// Risk levels of the temperature heuristic.
const (
	RiskUnknown = "Unknown"
	RiskLow     = "Low"
	RiskMedium  = "Medium"
	RiskHigh    = "High"
)

// RiskAssessment is the heuristic failure estimate from the latest reading.
// FailureProbability is a percentage in [0, 100], nil when unknown.
type RiskAssessment struct {
	RiskLevel          string   `json:"riskLevel"`
	FailureProbability *float64 `json:"failureProbability"`
}
