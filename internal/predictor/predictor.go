// Package predictor turns a batch of raw temperature records into a failure
// probability: loader, cleaner, engine and selector followed by the scoring adapter.
package predictor

import (
	"context"
	"fmt"

	"github.com/rewired-gh/motorguard/internal/features"
	"github.com/rewired-gh/motorguard/internal/logger"
	"github.com/rewired-gh/motorguard/internal/models"
	"github.com/rewired-gh/motorguard/internal/scoring"
)

// Result is the success payload of one prediction.
type Result struct {
	Probability float64 `json:"ml_prediction_probability"`
}

type Predictor struct {
	pipeline *features.Pipeline
	adapter  *scoring.Adapter
}

func New(pipeline *features.Pipeline, scorer scoring.Scorer) *Predictor {
	return &Predictor{
		pipeline: pipeline,
		adapter:  scoring.NewAdapter(scorer),
	}
}

// Predict scores the most recent record of the batch. Nothing is returned
// unless every stage succeeded.
func (p *Predictor) Predict(ctx context.Context, records []features.RawRecord) (Result, error) {
	vec, err := p.pipeline.Vector(records)
	if err != nil {
		return Result{}, err
	}
	prob, err := p.adapter.Score(ctx, p.pipeline.Columns(), vec)
	if err != nil {
		return Result{}, err
	}
	logger.Debug("Prediction over %d records: %.4f", len(records), prob)
	return Result{Probability: prob}, nil
}

// PredictJSON parses a JSON array of records and scores it.
func (p *Predictor) PredictJSON(ctx context.Context, data []byte) (Result, error) {
	records, err := features.ParseRecords(data)
	if err != nil {
		return Result{}, err
	}
	return p.Predict(ctx, records)
}

// PredictReadings scores stored readings. Fewer than minHistory readings is
// reported as insufficient data before the pipeline runs.
func (p *Predictor) PredictReadings(ctx context.Context, readings []models.Reading, minHistory int) (Result, error) {
	if len(readings) < minHistory {
		return Result{}, fmt.Errorf("%w: need at least %d readings for prediction, have %d",
			features.ErrInsufficientData, minHistory, len(readings))
	}
	return p.Predict(ctx, models.RawRecords(readings))
}
