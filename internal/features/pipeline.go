package features

import (
	"fmt"
	"time"

	"github.com/rewired-gh/motorguard/internal/logger"
)

// Pipeline runs loader, cleaner, engine and selector over one batch.
// It holds no per-batch state and is safe for concurrent use.
type Pipeline struct {
	engine  *Engine
	columns []string
}

// NewPipeline builds a pipeline with the given rolling window and column
// order. A nil columns slice selects the default order.
func NewPipeline(window time.Duration, columns []string) (*Pipeline, error) {
	engine, err := NewEngine(window)
	if err != nil {
		return nil, err
	}
	if columns == nil {
		columns = Columns()
	}
	for _, name := range columns {
		if _, ok := rowFields[name]; !ok {
			return nil, fmt.Errorf("%w: unknown feature column %q", ErrSchema, name)
		}
	}
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Pipeline{engine: engine, columns: cols}, nil
}

// Columns returns the column order of produced vectors.
func (p *Pipeline) Columns() []string {
	out := make([]string, len(p.columns))
	copy(out, p.columns)
	return out
}

// Rows loads, cleans and engineers the batch without selecting.
func (p *Pipeline) Rows(records []RawRecord) ([]Row, error) {
	series, err := LoadSeries(records)
	if err != nil {
		return nil, err
	}
	clean := Clean(series)
	logger.Debug("Engineering features for %d rows (window %v)", clean.Len(), p.engine.Window())
	return p.engine.Engineer(clean), nil
}

// Vector produces the feature vector of the most recent record.
func (p *Pipeline) Vector(records []RawRecord) (Vector, error) {
	rows, err := p.Rows(records)
	if err != nil {
		return nil, err
	}
	vec, err := Select(rows, p.columns)
	if err != nil {
		return nil, err
	}
	logger.Debug("Final features for prediction (count: %d): %v", len(vec), vec)
	return vec, nil
}
