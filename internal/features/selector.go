package features

import (
	"fmt"

	"github.com/rewired-gh/motorguard/internal/logger"
)

// MinRows is the smallest batch that yields a lag-3 value from real data.
const MinRows = 4

// Column names in the order the model was trained on.
const (
	ColTemperature            = "temperature"
	ColTempChange             = "Temp_Change"
	ColDayOfWeek              = "DayOfWeek"
	ColHourOfDay              = "HourOfDay"
	ColTemperatureRollingMean = "temperature_RollingMean"
	ColTemperatureRollingStd  = "temperature_RollingStd"
	ColTempChangeRollingMean  = "Temp_Change_RollingMean"
	ColTempChangeRollingStd   = "Temp_Change_RollingStd"
	ColTemperatureLag1        = "temperature_Lag1"
	ColTemperatureLag2        = "temperature_Lag2"
	ColTemperatureLag3        = "temperature_Lag3"
	ColTempChangeLag1         = "Temp_Change_Lag1"
	ColTempChangeLag2         = "Temp_Change_Lag2"
	ColTempChangeLag3         = "Temp_Change_Lag3"
	ColTempChangeXTemp        = "Temp_Change_x_Temp"
)

var defaultColumns = []string{
	ColTemperature, ColTempChange, ColDayOfWeek, ColHourOfDay,
	ColTemperatureRollingMean, ColTemperatureRollingStd,
	ColTempChangeRollingMean, ColTempChangeRollingStd,
	ColTemperatureLag1, ColTemperatureLag2, ColTemperatureLag3,
	ColTempChangeLag1, ColTempChangeLag2, ColTempChangeLag3,
	ColTempChangeXTemp,
}

var rowFields = map[string]func(Row) float64{
	ColTemperature:            func(r Row) float64 { return r.Temperature },
	ColTempChange:             func(r Row) float64 { return r.TempChange },
	ColDayOfWeek:              func(r Row) float64 { return float64(r.DayOfWeek) },
	ColHourOfDay:              func(r Row) float64 { return float64(r.HourOfDay) },
	ColTemperatureRollingMean: func(r Row) float64 { return r.TemperatureRollingMean },
	ColTemperatureRollingStd:  func(r Row) float64 { return r.TemperatureRollingStd },
	ColTempChangeRollingMean:  func(r Row) float64 { return r.TempChangeRollingMean },
	ColTempChangeRollingStd:   func(r Row) float64 { return r.TempChangeRollingStd },
	ColTemperatureLag1:        func(r Row) float64 { return r.TemperatureLag1 },
	ColTemperatureLag2:        func(r Row) float64 { return r.TemperatureLag2 },
	ColTemperatureLag3:        func(r Row) float64 { return r.TemperatureLag3 },
	ColTempChangeLag1:         func(r Row) float64 { return r.TempChangeLag1 },
	ColTempChangeLag2:         func(r Row) float64 { return r.TempChangeLag2 },
	ColTempChangeLag3:         func(r Row) float64 { return r.TempChangeLag3 },
	ColTempChangeXTemp:        func(r Row) float64 { return r.TempChangeXTemp },
}

// Columns returns a copy of the default feature order.
func Columns() []string {
	out := make([]string, len(defaultColumns))
	copy(out, defaultColumns)
	return out
}

// Vector is the ordered feature values handed to the scorer.
type Vector []float64

// Field returns the named value of the row.
func (r Row) Field(name string) (float64, bool) {
	get, ok := rowFields[name]
	if !ok {
		return 0, false
	}
	return get(r), true
}

// Select takes the most recent row and assembles its values in the order
// of columns. Undefined values left by the engine become 0.
func Select(rows []Row, columns []string) (Vector, error) {
	if len(rows) < MinRows {
		return nil, fmt.Errorf("%w: not enough data rows (%d) to generate all required features, need at least %d",
			ErrInsufficientData, len(rows), MinRows)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: no feature columns configured", ErrSchema)
	}

	last := rows[len(rows)-1]
	var missing []string
	vec := make(Vector, 0, len(columns))
	for _, name := range columns {
		v, ok := last.Field(name)
		if !ok {
			missing = append(missing, name)
			continue
		}
		if isMissing(v) {
			logger.Warn("Feature %s undefined in last row, using 0", name)
			v = 0
		}
		vec = append(vec, v)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: unknown feature columns %v", ErrSchema, missing)
	}
	return vec, nil
}
