package features

import (
	"math"
	"time"
)

// welford accumulates a running mean and M2 for one window.
type welford struct {
	count int
	mean  float64
	m2    float64
}

func (w *welford) add(x float64) {
	w.count++
	delta := x - w.mean
	w.mean += delta / float64(w.count)
	delta2 := x - w.mean
	w.m2 += delta * delta2
}

func (w *welford) Mean() float64 {
	if w.count == 0 {
		return math.NaN()
	}
	return w.mean
}

// Std is the sample standard deviation; undefined below two values.
func (w *welford) Std() float64 {
	if w.count < 2 {
		return math.NaN()
	}
	variance := w.m2 / float64(w.count-1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// rollingStats computes the mean and sample std of values over a trailing
// time window ending at each row. The window is (t-window, t]: a row
// exactly one window older than the current row is excluded. Rows sharing
// the current timestamp but positioned later are not included.
func rollingStats(timestamps []time.Time, values []float64, window time.Duration) (mean, std []float64) {
	n := len(values)
	mean = make([]float64, n)
	std = make([]float64, n)

	start := 0
	for i := 0; i < n; i++ {
		for start < i && timestamps[i].Sub(timestamps[start]) >= window {
			start++
		}

		var acc welford
		for j := start; j <= i; j++ {
			if !isMissing(values[j]) {
				acc.add(values[j])
			}
		}
		mean[i] = acc.Mean()
		std[i] = acc.Std()
	}
	return mean, std
}

// shift returns values moved back by k rows; the first k rows are undefined.
func shift(values []float64, k int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		if i < k {
			out[i] = math.NaN()
			continue
		}
		out[i] = values[i-k]
	}
	return out
}
