package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rewired-gh/motorguard/internal/features"
	"github.com/rewired-gh/motorguard/internal/scheduler"
	"github.com/rewired-gh/motorguard/internal/scoring"
	"github.com/rewired-gh/motorguard/internal/storage"
)

// Logistic model that scores 0.5 for any input.
const neutralModel = `{"kind": "logistic_regression", "n_features_in": 15,
	"coef": [0,0,0,0,0,0,0,0,0,0,0,0,0,0,0], "intercept": 0}`

const batch = `[
	{"timestamp": "2024-01-02T09:00:00Z", "temperature": 10},
	{"timestamp": "2024-01-02T09:05:00Z", "temperature": 12},
	{"timestamp": "2024-01-02T09:10:00Z", "temperature": 11},
	{"timestamp": "2024-01-02T09:15:00Z", "temperature": 15}
]`

func writeModel(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunPredict(t *testing.T) {
	chdir(t, t.TempDir())
	model := writeModel(t, neutralModel)

	tests := []struct {
		name  string
		args  []string
		stdin string
	}{
		{"argument", []string{"-model", model, batch}, ""},
		{"stdin", []string{"-model", model}, batch},
		{"dash reads stdin", []string{"-model", model, "-"}, batch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			if err := runPredict(tt.args, strings.NewReader(tt.stdin), &out); err != nil {
				t.Fatalf("runPredict: %v", err)
			}
			var got map[string]float64
			if err := json.Unmarshal(out.Bytes(), &got); err != nil {
				t.Fatalf("stdout is not JSON: %q", out.String())
			}
			if p, ok := got["ml_prediction_probability"]; !ok || p != 0.5 {
				t.Errorf("unexpected output %q", out.String())
			}
		})
	}
}

func TestRunPredict_InputFile(t *testing.T) {
	chdir(t, t.TempDir())
	model := writeModel(t, neutralModel)
	input := filepath.Join(t.TempDir(), "batch.json")
	if err := os.WriteFile(input, []byte(batch), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := runPredict([]string{"-model", model, "-input", input}, strings.NewReader(""), &out); err != nil {
		t.Fatalf("runPredict: %v", err)
	}
	if !strings.Contains(out.String(), `"ml_prediction_probability":0.5`) {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestRunPredict_FailuresWriteNothing(t *testing.T) {
	chdir(t, t.TempDir())
	model := writeModel(t, neutralModel)

	tests := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{"missing model", []string{"-model", filepath.Join(t.TempDir(), "none.json"), batch}, scoring.ErrStartup},
		{"corrupt model", []string{"-model", writeModel(t, `{"kind":`), batch}, scoring.ErrStartup},
		{"malformed json", []string{"-model", model, `[{"timestamp":`}, features.ErrInput},
		{"empty batch", []string{"-model", model, `[]`}, features.ErrInput},
		{"too few rows", []string{"-model", model, `[
			{"timestamp": "2024-01-02T09:00:00Z", "temperature": 10},
			{"timestamp": "2024-01-02T09:05:00Z", "temperature": 12}
		]`}, features.ErrInsufficientData},
		{"model length drift", []string{"-model", writeModel(t, `{"kind": "logistic_regression",
			"n_features_in": 3, "coef": [0,0,0], "intercept": 0}`), batch}, features.ErrSchema},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := runPredict(tt.args, strings.NewReader(""), &out)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if out.Len() != 0 {
				t.Errorf("stdout must stay empty on failure, got %q", out.String())
			}
		})
	}
}

func TestReadInput_Precedence(t *testing.T) {
	got, err := readInput("", []string{"[1]"}, strings.NewReader("[2]"))
	if err != nil || string(got) != "[1]" {
		t.Errorf("argument should win over stdin: %q, %v", got, err)
	}
	got, err = readInput("", nil, strings.NewReader("[2]"))
	if err != nil || string(got) != "[2]" {
		t.Errorf("stdin fallback: %q, %v", got, err)
	}
	if _, err := readInput(filepath.Join(t.TempDir(), "missing.json"), nil, nil); !errors.Is(err, features.ErrInput) {
		t.Errorf("missing input file error = %v, want ErrInput", err)
	}
}

func TestStatusText(t *testing.T) {
	store, err := storage.New(10, ":memory:")
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	defer store.Close()

	got := statusText(store, scheduler.Status{})
	if !strings.Contains(got, "latest reading: none") || !strings.Contains(got, "not run yet") {
		t.Errorf("unexpected empty status:\n%s", got)
	}

	p := 0.25
	got = statusText(store, scheduler.Status{LastRun: time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC), LastProbability: &p})
	if !strings.Contains(got, "failure probability: 25.0%") {
		t.Errorf("unexpected status:\n%s", got)
	}
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
