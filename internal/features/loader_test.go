package features

import (
	"errors"
	"testing"
	"time"
)

func TestParseRecords_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"whitespace", "   \n"},
		{"malformed json", `[{"timestamp": "2024-01-01T00:00:00Z",`},
		{"object not list", `{"timestamp": "2024-01-01T00:00:00Z", "temperature": 20}`},
		{"empty list", `[]`},
		{"non-object element", `[{"timestamp": "2024-01-01T00:00:00Z", "temperature": 20}, 5]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRecords([]byte(tt.input))
			if !errors.Is(err, ErrInput) {
				t.Errorf("ParseRecords(%q) error = %v, want ErrInput", tt.input, err)
			}
		})
	}
}

func TestParseRecords_Valid(t *testing.T) {
	records, err := ParseRecords([]byte(`[
		{"timestamp": "2024-01-01T00:00:00Z", "temperature": 20.5, "_id": "abc"},
		{"timestamp": "2024-01-01T00:05:00Z", "temperature": "21"}
	]`))
	if err != nil {
		t.Fatalf("ParseRecords: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0]["temperature"] != 20.5 {
		t.Errorf("temperature = %v, want 20.5", records[0]["temperature"])
	}
}

func TestLoadSeries_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		records []RawRecord
	}{
		{
			name:    "empty batch",
			records: nil,
		},
		{
			name: "missing temperature column",
			records: []RawRecord{
				{"timestamp": "2024-01-01T00:00:00Z", "temp": 20},
				{"timestamp": "2024-01-01T00:01:00Z", "temp": 21},
			},
		},
		{
			name: "missing timestamp column",
			records: []RawRecord{
				{"time": "2024-01-01T00:00:00Z", "temperature": 20},
			},
		},
		{
			name: "unparseable timestamp in last row",
			records: []RawRecord{
				{"timestamp": "2024-01-01T00:00:00Z", "temperature": 20},
				{"timestamp": "2024-01-01T00:01:00Z", "temperature": 21},
				{"timestamp": "yesterday-ish", "temperature": 22},
			},
		},
		{
			name: "null timestamp",
			records: []RawRecord{
				{"timestamp": "2024-01-01T00:00:00Z", "temperature": 20},
				{"timestamp": nil, "temperature": 21},
			},
		},
		{
			name: "record without timestamp",
			records: []RawRecord{
				{"timestamp": "2024-01-01T00:00:00Z", "temperature": 20},
				{"temperature": 21},
			},
		},
		{
			name: "numeric timestamp",
			records: []RawRecord{
				{"timestamp": 1704067200.0, "temperature": 20},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			series, err := LoadSeries(tt.records)
			if !errors.Is(err, ErrInput) {
				t.Errorf("LoadSeries() error = %v, want ErrInput", err)
			}
			if series != nil {
				t.Errorf("expected no partial series, got %d samples", len(series))
			}
		})
	}
}

func TestLoadSeries_TimestampVariants(t *testing.T) {
	tests := []struct {
		name  string
		field string
		value string
		want  time.Time
	}{
		{"lower case utc", "timestamp", "2024-03-05T10:15:00Z", time.Date(2024, 3, 5, 10, 15, 0, 0, time.UTC)},
		{"title case", "Timestamp", "2024-03-05T10:15:00.123Z", time.Date(2024, 3, 5, 10, 15, 0, 123000000, time.UTC)},
		{"upper case", "TIMESTAMP", "2024-03-05 10:15:00", time.Date(2024, 3, 5, 10, 15, 0, 0, time.UTC)},
		{"naive iso", "timestamp", "2024-03-05T10:15:00", time.Date(2024, 3, 5, 10, 15, 0, 0, time.UTC)},
		{"date only", "timestamp", "2024-03-05", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			series, err := LoadSeries([]RawRecord{{tt.field: tt.value, "temperature": 20}})
			if err != nil {
				t.Fatalf("LoadSeries: %v", err)
			}
			if !series[0].Timestamp.Equal(tt.want) {
				t.Errorf("timestamp = %v, want %v", series[0].Timestamp, tt.want)
			}
		})
	}
}

func TestLoadSeries_OffsetKeepsLocalClock(t *testing.T) {
	series, err := LoadSeries([]RawRecord{{"timestamp": "2024-03-05T10:15:00+02:00", "temperature": 20}})
	if err != nil {
		t.Fatalf("LoadSeries: %v", err)
	}
	if series[0].Timestamp.Hour() != 10 {
		t.Errorf("hour = %d, want 10", series[0].Timestamp.Hour())
	}
	if !series[0].Timestamp.Equal(time.Date(2024, 3, 5, 8, 15, 0, 0, time.UTC)) {
		t.Errorf("instant = %v, want 08:15 UTC", series[0].Timestamp.UTC())
	}
}

func TestLoadSeries_SortsStable(t *testing.T) {
	records := []RawRecord{
		{"timestamp": "2024-01-01T00:10:00Z", "temperature": 3},
		{"timestamp": "2024-01-01T00:00:00Z", "temperature": 1},
		{"timestamp": "2024-01-01T00:05:00Z", "temperature": "2a"},
		{"timestamp": "2024-01-01T00:05:00Z", "temperature": "2b"},
	}
	series, err := LoadSeries(records)
	if err != nil {
		t.Fatalf("LoadSeries: %v", err)
	}

	want := []any{1, "2a", "2b", 3}
	for i, s := range series {
		if s.RawTemperature != want[i] {
			t.Errorf("series[%d] temperature = %v, want %v", i, s.RawTemperature, want[i])
		}
	}
	for i := 1; i < len(series); i++ {
		if series[i].Timestamp.Before(series[i-1].Timestamp) {
			t.Errorf("series not sorted at %d", i)
		}
	}
}

func TestLoadSeries_TemperatureMissingInSomeRecords(t *testing.T) {
	series, err := LoadSeries([]RawRecord{
		{"timestamp": "2024-01-01T00:00:00Z", "temperature": 20},
		{"timestamp": "2024-01-01T00:01:00Z"},
	})
	if err != nil {
		t.Fatalf("LoadSeries: %v", err)
	}
	if series[1].RawTemperature != nil {
		t.Errorf("expected nil raw temperature, got %v", series[1].RawTemperature)
	}
}
