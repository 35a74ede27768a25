package features

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// CleanSeries holds the base columns with every temperature defined.
type CleanSeries struct {
	Timestamps  []time.Time
	Temperature []float64
}

// Len returns the number of rows.
func (c CleanSeries) Len() int {
	return len(c.Timestamps)
}

// Clean coerces temperatures to float64, forward-fills gaps and zero-fills
// whatever is still missing at the head of the series.
func Clean(series Series) CleanSeries {
	out := CleanSeries{
		Timestamps:  make([]time.Time, len(series)),
		Temperature: make([]float64, len(series)),
	}
	for i, s := range series {
		out.Timestamps[i] = s.Timestamp
		out.Temperature[i] = toFloat(s.RawTemperature)
	}
	forwardFill(out.Temperature)
	fillMissing(out.Temperature, 0)
	return out
}

// toFloat returns NaN for anything that is not a finite number or a
// numeric string.
func toFloat(v any) float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return math.NaN()
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return math.NaN()
		}
		f = parsed
	default:
		return math.NaN()
	}
	if math.IsInf(f, 0) {
		return math.NaN()
	}
	return f
}

func isMissing(v float64) bool {
	return math.IsNaN(v)
}

// forwardFill carries the last defined value over later gaps.
func forwardFill(col []float64) {
	last := math.NaN()
	for i, v := range col {
		if isMissing(v) {
			col[i] = last
			continue
		}
		last = v
	}
}

func fillMissing(col []float64, value float64) {
	for i, v := range col {
		if isMissing(v) {
			col[i] = value
		}
	}
}
