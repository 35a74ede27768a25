// Package features turns raw time-stamped temperature records into the
// fixed-order feature vector consumed by the failure model.
package features

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// TemperatureField is the canonical temperature field of a raw record.
const TemperatureField = "temperature"

// RawRecord is one decoded input object. Unrecognized fields are ignored.
type RawRecord map[string]any

// Sample is one loaded observation. The temperature is still raw; the
// cleaner coerces it.
type Sample struct {
	Timestamp      time.Time
	RawTemperature any
}

// Series is a batch of samples sorted ascending by timestamp.
type Series []Sample

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999-0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999-0700",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseRecords decodes a JSON array of objects.
func ParseRecords(data []byte) ([]RawRecord, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, fmt.Errorf("%w: no input data provided", ErrInput)
	}

	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("%w: failed to decode JSON: %v", ErrInput, err)
	}

	items, ok := decoded.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: input is not a list of records", ErrInput)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: input list is empty", ErrInput)
	}

	records := make([]RawRecord, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: record %d is not an object", ErrInput, i)
		}
		records[i] = obj
	}
	return records, nil
}

// LoadSeries validates the batch and returns it sorted by timestamp.
// A single bad timestamp rejects the whole batch.
func LoadSeries(records []RawRecord) (Series, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: input list is empty", ErrInput)
	}

	if !hasField(records, TemperatureField) {
		return nil, fmt.Errorf("%w: missing required column %q", ErrInput, TemperatureField)
	}

	tsField, ok := timestampField(records)
	if !ok {
		return nil, fmt.Errorf("%w: missing required column %q", ErrInput, "timestamp")
	}

	series := make(Series, len(records))
	for i, rec := range records {
		ts, err := parseTimestamp(rec[tsField])
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrInput, i, err)
		}
		series[i] = Sample{Timestamp: ts, RawTemperature: rec[TemperatureField]}
	}

	sort.SliceStable(series, func(i, j int) bool {
		return series[i].Timestamp.Before(series[j].Timestamp)
	})
	return series, nil
}

func hasField(records []RawRecord, name string) bool {
	for _, rec := range records {
		if _, ok := rec[name]; ok {
			return true
		}
	}
	return false
}

// timestampField resolves the timestamp column. "Timestamp" wins over
// "timestamp", and any other case variant is accepted last.
func timestampField(records []RawRecord) (string, bool) {
	for _, name := range []string{"Timestamp", "timestamp"} {
		if hasField(records, name) {
			return name, true
		}
	}

	var variants []string
	for _, rec := range records {
		for key := range rec {
			if strings.EqualFold(key, "timestamp") {
				variants = append(variants, key)
			}
		}
	}
	if len(variants) == 0 {
		return "", false
	}
	sort.Strings(variants)
	return variants[0], true
}

func parseTimestamp(v any) (time.Time, error) {
	s, ok := v.(string)
	if !ok {
		if v == nil {
			return time.Time{}, fmt.Errorf("missing timestamp")
		}
		return time.Time{}, fmt.Errorf("timestamp %v is not a string", v)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}
