// Package scheduler periodically scores the stored reading history and
// raises failure risk alerts.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rewired-gh/motorguard/internal/features"
	"github.com/rewired-gh/motorguard/internal/logger"
	"github.com/rewired-gh/motorguard/internal/models"
	"github.com/rewired-gh/motorguard/internal/observability"
	"github.com/rewired-gh/motorguard/internal/predictor"
)

type Config struct {
	Interval     time.Duration
	HistoryLimit int
	MinHistory   int
	Timeout      time.Duration
}

// ReadingSource supplies history and trims it after each check.
type ReadingSource interface {
	RecentReadings(limit int) ([]models.Reading, error)
	RotateReadings() error
}

type Predictor interface {
	PredictReadings(ctx context.Context, readings []models.Reading, minHistory int) (predictor.Result, error)
}

type AlertRaiser interface {
	ProcessPrediction(probability float64, latest models.Reading) (*models.Alert, error)
}

// StatusNotifier reports the first failure of a streak and the recovery.
type StatusNotifier interface {
	SendError(err error) error
	SendRecovery(failureCount int) error
}

// Status is a snapshot of the most recent check.
type Status struct {
	LastRun             time.Time
	LastProbability     *float64
	LastError           string
	ConsecutiveFailures int
}

type Scheduler struct {
	scheduler *gocron.Scheduler
	config    Config
	source    ReadingSource
	predictor Predictor
	raiser    AlertRaiser
	notifier  StatusNotifier
	metrics   *observability.Metrics
	onAlert   func(models.Alert)

	mu     sync.Mutex
	status Status
}

// New creates a Scheduler. notifier and metrics may be nil.
func New(config Config, source ReadingSource, pred Predictor, raiser AlertRaiser,
	notifier StatusNotifier, metrics *observability.Metrics) *Scheduler {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		config:    config,
		source:    source,
		predictor: pred,
		raiser:    raiser,
		notifier:  notifier,
		metrics:   metrics,
	}
}

// OnAlert registers a callback invoked for every raised alert.
func (s *Scheduler) OnAlert(fn func(models.Alert)) {
	s.onAlert = fn
}

// Start schedules the periodic check and starts the underlying scheduler.
// The first check runs immediately.
func (s *Scheduler) Start() error {
	if s.config.Interval <= 0 {
		return fmt.Errorf("check interval must be positive, got %v", s.config.Interval)
	}

	_, err := s.scheduler.Every(s.config.Interval).SingletonMode().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
		defer cancel()
		s.handleCheckResult(s.RunCheck(ctx))
	})
	if err != nil {
		return fmt.Errorf("failed to schedule risk check: %w", err)
	}

	s.scheduler.StartAsync()
	logger.Info("Risk check scheduled every %v (history %d, min %d)",
		s.config.Interval, s.config.HistoryLimit, s.config.MinHistory)
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

// RunCheck scores the latest history once. Too short a history is skipped
// without error.
func (s *Scheduler) RunCheck(ctx context.Context) error {
	startTime := time.Now()
	logger.Debug("Starting risk check")

	readings, err := s.source.RecentReadings(s.config.HistoryLimit)
	if err != nil {
		return fmt.Errorf("failed to load readings: %w", err)
	}

	result, err := s.predictor.PredictReadings(ctx, readings, s.config.MinHistory)
	s.metrics.RecordPrediction(result.Probability, err, time.Since(startTime))
	if errors.Is(err, features.ErrInsufficientData) {
		logger.Info("Skipping risk check: %v", err)
		s.metrics.RecordRiskCheck("skipped")
		s.record(nil, nil)
		return nil
	}
	if err != nil {
		return fmt.Errorf("prediction failed: %w", err)
	}
	logger.Info("Risk check probability: %.4f over %d readings", result.Probability, len(readings))

	latest := readings[len(readings)-1]
	alert, err := s.raiser.ProcessPrediction(result.Probability, latest)
	if err != nil {
		return fmt.Errorf("failed to raise alert: %w", err)
	}
	if alert != nil {
		s.metrics.RecordAlert(string(alert.Kind))
		if s.onAlert != nil {
			s.onAlert(*alert)
		}
	}

	if err := s.source.RotateReadings(); err != nil {
		logger.Warn("Failed to rotate readings: %v", err)
	}

	p := result.Probability
	s.record(&p, nil)
	s.metrics.RecordRiskCheck("ok")
	logger.Debug("Risk check completed in %v", time.Since(startTime))
	return nil
}

func (s *Scheduler) handleCheckResult(err error) {
	s.mu.Lock()
	if err != nil {
		s.status.ConsecutiveFailures++
	}
	failures := s.status.ConsecutiveFailures
	if err == nil {
		s.status.ConsecutiveFailures = 0
	}
	s.mu.Unlock()

	if err != nil {
		logger.Error("Risk check failed: %v", err)
		s.metrics.RecordRiskCheck("error")
		s.record(nil, err)
		if failures == 1 && s.notifier != nil {
			if sendErr := s.notifier.SendError(err); sendErr != nil {
				logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
			}
		}
		return
	}
	if failures > 0 && s.notifier != nil {
		if sendErr := s.notifier.SendRecovery(failures); sendErr != nil {
			logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
		}
	}
}

func (s *Scheduler) record(probability *float64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.LastRun = time.Now()
	if err != nil {
		s.status.LastError = err.Error()
		return
	}
	s.status.LastError = ""
	if probability != nil {
		s.status.LastProbability = probability
	}
}

// Status returns a copy of the latest check status.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	if st.LastProbability != nil {
		p := *st.LastProbability
		st.LastProbability = &p
	}
	return st
}
