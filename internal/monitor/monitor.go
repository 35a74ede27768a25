// Package monitor raises alerts from readings and model predictions and
// computes the heuristic failure risk of the latest reading.
package monitor

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/motorguard/internal/logger"
	"github.com/rewired-gh/motorguard/internal/models"
)

type Config struct {
	HighTempThreshold   float64
	MediumTempThreshold float64
	RiskThreshold       float64
	Cooldown            time.Duration
}

func DefaultConfig() Config {
	return Config{
		HighTempThreshold:   60,
		MediumTempThreshold: 50,
		RiskThreshold:       0.7,
		Cooldown:            time.Minute,
	}
}

// Store persists raised alerts.
type Store interface {
	AddAlert(alert *models.Alert) error
	MarkAlertNotified(id string) error
	LastAlertTimes() (map[models.AlertKind]time.Time, error)
}

// Notifier delivers alerts to operators.
type Notifier interface {
	SendAlert(alert models.Alert) error
}

type Monitor struct {
	mu       sync.Mutex
	store    Store
	notifier Notifier
	config   Config
	lastSent map[models.AlertKind]time.Time
	now      func() time.Time
}

// New creates a Monitor. A nil notifier disables delivery; alerts are still
// persisted. Cooldowns resume from the newest stored alert of each kind.
func New(store Store, notifier Notifier, config Config) *Monitor {
	m := &Monitor{
		store:    store,
		notifier: notifier,
		config:   config,
		lastSent: make(map[models.AlertKind]time.Time),
		now:      time.Now,
	}

	persisted, err := store.LastAlertTimes()
	if err != nil {
		logger.Warn("Failed to load last alert times: %v", err)
	} else {
		m.lastSent = persisted
		logger.Debug("Loaded last alert times for %d alert kinds", len(persisted))
	}

	return m
}

func (m *Monitor) Config() Config {
	return m.config
}

// ProcessReading raises a high temperature alert when r exceeds the high
// threshold outside the cooldown. It returns nil when no alert was raised.
func (m *Monitor) ProcessReading(r models.Reading) (*models.Alert, error) {
	if r.Temperature <= m.config.HighTempThreshold {
		return nil, nil
	}
	alert := &models.Alert{
		Kind:        models.AlertHighTemperature,
		Temperature: r.Temperature,
		Threshold:   m.config.HighTempThreshold,
		Message: fmt.Sprintf("Temperature %.1f°C exceeded threshold %.1f°C",
			r.Temperature, m.config.HighTempThreshold),
	}
	return m.raise(alert)
}

// ProcessPrediction raises a failure risk alert when probability reaches the
// risk threshold outside the cooldown. latest is the newest reading the
// prediction was computed from.
func (m *Monitor) ProcessPrediction(probability float64, latest models.Reading) (*models.Alert, error) {
	if probability < m.config.RiskThreshold {
		return nil, nil
	}
	p := probability
	alert := &models.Alert{
		Kind:        models.AlertFailureRisk,
		Temperature: latest.Temperature,
		Probability: &p,
		Threshold:   m.config.RiskThreshold,
		Message: fmt.Sprintf("Predicted failure probability %.1f%% reached threshold %.1f%%",
			probability*100, m.config.RiskThreshold*100),
	}
	return m.raise(alert)
}

func (m *Monitor) raise(alert *models.Alert) (*models.Alert, error) {
	m.mu.Lock()
	now := m.now()
	if last, ok := m.lastSent[alert.Kind]; ok && now.Sub(last) <= m.config.Cooldown {
		m.mu.Unlock()
		logger.Info("%s alert suppressed, within cooldown: %s", alert.Kind, alert.Message)
		return nil, nil
	}
	m.lastSent[alert.Kind] = now
	m.mu.Unlock()

	alert.ID = uuid.New().String()
	alert.DetectedAt = now
	if err := m.store.AddAlert(alert); err != nil {
		return nil, fmt.Errorf("failed to store alert: %w", err)
	}
	logger.Info("Raised %s alert %s: %s", alert.Kind, alert.ID, alert.Message)

	if m.notifier == nil {
		return alert, nil
	}
	if err := m.notifier.SendAlert(*alert); err != nil {
		logger.Error("Failed to send alert %s: %v", alert.ID, err)
		return alert, nil
	}
	if err := m.store.MarkAlertNotified(alert.ID); err != nil {
		logger.Warn("Failed to mark alert %s notified: %v", alert.ID, err)
	} else {
		alert.Notified = true
	}
	return alert, nil
}

// AssessRisk maps the latest temperature to a risk level and a failure
// percentage. A nil temperature yields RiskUnknown.
func (m *Monitor) AssessRisk(temperature *float64) models.RiskAssessment {
	if temperature == nil {
		return models.RiskAssessment{RiskLevel: models.RiskUnknown}
	}
	t := *temperature
	high, medium := m.config.HighTempThreshold, m.config.MediumTempThreshold

	var level string
	var p float64
	switch {
	case t >= high:
		level = models.RiskHigh
		p = (t - high) / 20 * 100
	case t >= medium:
		level = models.RiskMedium
		p = (t - medium) / (high - medium) * 100
	default:
		level = models.RiskLow
		p = t / medium * 100
	}
	p = math.Round(math.Max(0, math.Min(100, p)))
	return models.RiskAssessment{RiskLevel: level, FailureProbability: &p}
}
