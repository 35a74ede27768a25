package features

import (
	"fmt"
	"math"
	"time"
)

// DefaultRollingWindow is the trailing span of the rolling statistics.
const DefaultRollingWindow = 15 * time.Minute

// Row is one engineered position of the series.
type Row struct {
	Timestamp time.Time

	Temperature float64
	TempChange  float64
	DayOfWeek   int
	HourOfDay   int

	TemperatureRollingMean float64
	TemperatureRollingStd  float64
	TempChangeRollingMean  float64
	TempChangeRollingStd   float64

	TemperatureLag1 float64
	TemperatureLag2 float64
	TemperatureLag3 float64
	TempChangeLag1  float64
	TempChangeLag2  float64
	TempChangeLag3  float64

	TempChangeXTemp float64
}

// Engine derives feature rows from a cleaned series.
type Engine struct {
	window time.Duration
}

// NewEngine returns an engine using the given rolling window.
func NewEngine(window time.Duration) (*Engine, error) {
	if window <= 0 {
		return nil, fmt.Errorf("rolling window must be positive, got %v", window)
	}
	return &Engine{window: window}, nil
}

// Window returns the rolling window in use.
func (e *Engine) Window() time.Duration {
	return e.window
}

// Engineer computes every derived column and applies the imputation
// policy. It does not modify the input.
func (e *Engine) Engineer(cs CleanSeries) []Row {
	n := cs.Len()
	if n == 0 {
		return nil
	}

	temp := make([]float64, n)
	copy(temp, cs.Temperature)

	change := make([]float64, n)
	change[0] = math.NaN()
	for i := 1; i < n; i++ {
		change[i] = temp[i] - temp[i-1]
	}
	fillMissing(change, 0)

	tempMean, tempStd := rollingStats(cs.Timestamps, temp, e.window)
	changeMean, changeStd := rollingStats(cs.Timestamps, change, e.window)

	tempLags := [3][]float64{shift(temp, 1), shift(temp, 2), shift(temp, 3)}
	changeLags := [3][]float64{shift(change, 1), shift(change, 2), shift(change, 3)}

	interaction := make([]float64, n)
	for i := range interaction {
		interaction[i] = change[i] * temp[i]
	}

	// Order matters: forward fill first, then the per-column fallbacks.
	engineered := [][]float64{change, tempMean, tempStd, changeMean, changeStd, interaction}
	for k := range tempLags {
		engineered = append(engineered, tempLags[k], changeLags[k])
	}
	for _, col := range engineered {
		forwardFill(col)
	}

	fillMissing(tempStd, 0)
	fillMissing(changeStd, 0)

	firstTemp := temp[0]
	fillMissing(tempMean, firstTemp)
	for _, col := range tempLags {
		fillMissing(col, firstTemp)
	}

	firstChange := change[0]
	fillMissing(changeMean, firstChange)
	for _, col := range changeLags {
		fillMissing(col, firstChange)
	}

	fillMissing(interaction, 0)

	rows := make([]Row, n)
	for i := range rows {
		ts := cs.Timestamps[i]
		rows[i] = Row{
			Timestamp:              ts,
			Temperature:            temp[i],
			TempChange:             change[i],
			DayOfWeek:              dayOfWeek(ts),
			HourOfDay:              ts.Hour(),
			TemperatureRollingMean: tempMean[i],
			TemperatureRollingStd:  tempStd[i],
			TempChangeRollingMean:  changeMean[i],
			TempChangeRollingStd:   changeStd[i],
			TemperatureLag1:        tempLags[0][i],
			TemperatureLag2:        tempLags[1][i],
			TemperatureLag3:        tempLags[2][i],
			TempChangeLag1:         changeLags[0][i],
			TempChangeLag2:         changeLags[1][i],
			TempChangeLag3:         changeLags[2][i],
			TempChangeXTemp:        interaction[i],
		}
	}
	return rows
}

// dayOfWeek numbers days Monday=0 through Sunday=6.
func dayOfWeek(ts time.Time) int {
	return (int(ts.Weekday()) + 6) % 7
}
