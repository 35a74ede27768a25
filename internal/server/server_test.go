package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rewired-gh/motorguard/internal/features"
	"github.com/rewired-gh/motorguard/internal/models"
	"github.com/rewired-gh/motorguard/internal/monitor"
	"github.com/rewired-gh/motorguard/internal/observability"
	"github.com/rewired-gh/motorguard/internal/predictor"
	"github.com/rewired-gh/motorguard/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type constScorer struct {
	p float64
	n int
}

func (s constScorer) PredictProba(context.Context, []float64) (float64, error) { return s.p, nil }
func (s constScorer) ExpectedFeatures() (int, bool)                           { return s.n, true }

type testEnv struct {
	srv   *Server
	store *storage.Storage
	clock time.Time
}

func newTestEnv(t *testing.T, scorer constScorer) *testEnv {
	t.Helper()
	store, err := storage.New(1000, ":memory:")
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	pipeline, err := features.NewPipeline(features.DefaultRollingWindow, nil)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	mon := monitor.New(store, nil, monitor.DefaultConfig())
	srv := New(Config{HistoryLimit: 100, MinHistory: 15}, store, mon,
		predictor.New(pipeline, scorer), observability.NewMetrics("test"))

	env := &testEnv{srv: srv, store: store, clock: time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)}
	srv.now = func() time.Time { return env.clock }
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.srv.Router().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) post(t *testing.T, temp float64) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/temperature", `{"temperature":`+strconvFloat(temp)+`}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST temperature %v: status %d body %s", temp, rec.Code, rec.Body.String())
	}
	e.clock = e.clock.Add(time.Minute)
}

func strconvFloat(f float64) string {
	b, _ := json.Marshal(f)
	return string(b)
}

func TestRoot(t *testing.T) {
	env := newTestEnv(t, constScorer{p: 0.5, n: 15})
	rec := env.do(t, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Running") {
		t.Errorf("unexpected root response %d %q", rec.Code, rec.Body.String())
	}
}

func TestPostReading(t *testing.T) {
	env := newTestEnv(t, constScorer{p: 0.5, n: 15})

	rec := env.do(t, http.MethodPost, "/api/temperature", `{"temperature": 42.5}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	var got models.Reading
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID == 0 || got.Temperature != 42.5 || !got.Timestamp.Equal(env.clock) {
		t.Errorf("unexpected reading %+v", got)
	}
}

func TestPostReading_Invalid(t *testing.T) {
	env := newTestEnv(t, constScorer{p: 0.5, n: 15})
	for _, body := range []string{`{}`, `{"temperature": "hot"}`, `not json`, `{"temperature": null}`} {
		rec := env.do(t, http.MethodPost, "/api/temperature", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestPostReading_HighTemperatureAlert(t *testing.T) {
	env := newTestEnv(t, constScorer{p: 0.5, n: 15})
	env.post(t, 75)

	rec := env.do(t, http.MethodGet, "/api/temperature/alerts/history", "")
	var alerts []models.Alert
	if err := json.Unmarshal(rec.Body.Bytes(), &alerts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Kind != models.AlertHighTemperature || alerts[0].Temperature != 75 {
		t.Errorf("unexpected alerts %+v", alerts)
	}
}

func TestGetLatest(t *testing.T) {
	env := newTestEnv(t, constScorer{p: 0.5, n: 15})

	rec := env.do(t, http.MethodGet, "/api/temperature/latest", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "{}" {
		t.Errorf("empty latest: %d %q", rec.Code, rec.Body.String())
	}

	env.post(t, 30)
	env.post(t, 31)
	rec = env.do(t, http.MethodGet, "/api/temperature/latest", "")
	var got models.Reading
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Temperature != 31 {
		t.Errorf("latest temperature = %v, want 31", got.Temperature)
	}
}

func TestGetStats(t *testing.T) {
	env := newTestEnv(t, constScorer{p: 0.5, n: 15})
	env.post(t, 20)
	env.post(t, 30)

	rec := env.do(t, http.MethodGet, "/api/temperature/stats", "")
	var stats models.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Current == nil || *stats.Current != 30 || *stats.Average != 25 || *stats.Highest != 30 || *stats.Lowest != 20 {
		t.Errorf("unexpected stats %s", rec.Body.String())
	}
}

func TestGetHistory(t *testing.T) {
	env := newTestEnv(t, constScorer{p: 0.5, n: 15})
	for _, temp := range []float64{1, 2, 3, 4} {
		env.post(t, temp)
	}

	rec := env.do(t, http.MethodGet, "/api/temperature/history?limit=2", "")
	var got []models.Reading
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if len(got) != 2 || got[0].Temperature != 3 || got[1].Temperature != 4 {
		t.Errorf("unexpected history %s", rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/api/temperature/history?limit=abc", "")
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if len(got) != 4 {
		t.Errorf("invalid limit should use default, got %d readings", len(got))
	}
}

func TestGetRisk(t *testing.T) {
	env := newTestEnv(t, constScorer{p: 0.5, n: 15})

	rec := env.do(t, http.MethodGet, "/api/temperature/predict", "")
	if !strings.Contains(rec.Body.String(), `"riskLevel":"Unknown"`) ||
		!strings.Contains(rec.Body.String(), `"failureProbability":null`) {
		t.Errorf("unexpected empty risk %s", rec.Body.String())
	}

	env.post(t, 55)
	rec = env.do(t, http.MethodGet, "/api/temperature/predict", "")
	var got models.RiskAssessment
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if got.RiskLevel != models.RiskMedium || got.FailureProbability == nil || *got.FailureProbability != 50 {
		t.Errorf("unexpected risk %s", rec.Body.String())
	}
}

func TestGetMLPrediction(t *testing.T) {
	env := newTestEnv(t, constScorer{p: 0.33, n: 15})

	rec := env.do(t, http.MethodGet, "/api/temperature/ml-predict", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("short history status = %d, want 400", rec.Code)
	}

	for i := 0; i < 15; i++ {
		env.post(t, float64(40+i%3))
	}
	rec = env.do(t, http.MethodGet, "/api/temperature/ml-predict", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	var got predictor.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Probability != 0.33 {
		t.Errorf("probability = %v, want 0.33", got.Probability)
	}
}

func TestGetMLPrediction_SchemaDrift(t *testing.T) {
	env := newTestEnv(t, constScorer{p: 0.33, n: 12})
	for i := 0; i < 15; i++ {
		env.post(t, 40)
	}
	rec := env.do(t, http.MethodGet, "/api/temperature/ml-predict", "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, constScorer{p: 0.5, n: 15})
	env.post(t, 20)
	rec := env.do(t, http.MethodGet, "/metrics", "")
	if !strings.Contains(rec.Body.String(), "test_ingestion_readings_ingested_total 1") {
		t.Errorf("metrics missing reading counter")
	}
}

func TestLiveFeed(t *testing.T) {
	env := newTestEnv(t, constScorer{p: 0.5, n: 15})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go env.srv.Hub().Run(ctx)

	ts := httptest.NewServer(env.srv.Router())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.srv.Hub().ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	env.post(t, 21.5)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev struct {
		Event string         `json:"event"`
		Data  models.Reading `json:"data"`
	}
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Event != EventNewTemperature || ev.Data.Temperature != 21.5 {
		t.Errorf("unexpected event %+v", ev)
	}
}
