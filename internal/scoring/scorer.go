// Package scoring wraps the trained failure model behind a small
// interface and enforces the feature vector contract before scoring.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rewired-gh/motorguard/internal/features"
	"github.com/rewired-gh/motorguard/internal/logger"
)

// ErrStartup marks a model that could not be loaded. It is fatal at process start.
var ErrStartup = errors.New("model unavailable")

// Scorer returns the positive-class probability for one feature vector.
type Scorer interface {
	PredictProba(ctx context.Context, x []float64) (float64, error)
}

// FeatureCounter is implemented by scorers that know their input length.
type FeatureCounter interface {
	ExpectedFeatures() (int, bool)
}

// FeatureNamer is implemented by scorers that know their input column order.
type FeatureNamer interface {
	FeatureNames() []string
}

// Adapter checks vectors against the scorer's expectations and scores them.
// It is read-only after construction and may be shared across goroutines.
type Adapter struct {
	scorer Scorer
}

// NewAdapter wraps s.
func NewAdapter(s Scorer) *Adapter {
	return &Adapter{scorer: s}
}

// Score validates vec against the model and returns its failure probability.
func (a *Adapter) Score(ctx context.Context, columns []string, vec features.Vector) (float64, error) {
	if len(columns) != len(vec) {
		return 0, fmt.Errorf("%w: %d column names for %d feature values", features.ErrSchema, len(columns), len(vec))
	}

	if fc, ok := a.scorer.(FeatureCounter); ok {
		if n, known := fc.ExpectedFeatures(); known {
			if len(vec) != n {
				return 0, fmt.Errorf("%w: incorrect number of final features, model expects %d but pipeline generated %d",
					features.ErrSchema, n, len(vec))
			}
		} else {
			logger.Warn("Model does not expose an expected feature count; skipping length validation")
		}
	} else {
		logger.Warn("Model does not expose an expected feature count; skipping length validation")
	}

	if fn, ok := a.scorer.(FeatureNamer); ok {
		if names := fn.FeatureNames(); len(names) > 0 {
			if err := compareColumns(names, columns); err != nil {
				return 0, err
			}
		}
	}

	p, err := a.scorer.PredictProba(ctx, vec)
	if err != nil {
		return 0, fmt.Errorf("failed to score features: %w", err)
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, fmt.Errorf("model returned probability %v outside [0, 1]", p)
	}
	logger.Debug("Predicted probability: %v", p)
	return p, nil
}

func compareColumns(model, pipeline []string) error {
	if len(model) != len(pipeline) {
		return fmt.Errorf("%w: model was trained on %d columns, pipeline produces %d",
			features.ErrSchema, len(model), len(pipeline))
	}
	for i := range model {
		if model[i] != pipeline[i] {
			return fmt.Errorf("%w: column %d is %q in the model but %q in the pipeline",
				features.ErrSchema, i, model[i], pipeline[i])
		}
	}
	return nil
}
