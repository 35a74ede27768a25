// Package server exposes the reading ingestion API, read endpoints, the live
// websocket feed and Prometheus metrics over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rewired-gh/motorguard/internal/features"
	"github.com/rewired-gh/motorguard/internal/logger"
	"github.com/rewired-gh/motorguard/internal/models"
	"github.com/rewired-gh/motorguard/internal/observability"
	"github.com/rewired-gh/motorguard/internal/predictor"
)

const (
	defaultHistoryLimit = 50
	defaultAlertLimit   = 20
	maxQueryLimit       = 1000
	statsPeriod         = 24 * time.Hour
)

type Store interface {
	AddReading(r *models.Reading) error
	LatestReading() (*models.Reading, error)
	ReadingStats(since time.Time) (models.Stats, error)
	RecentReadings(limit int) ([]models.Reading, error)
	RecentAlerts(limit int) ([]models.Alert, error)
}

type Monitor interface {
	ProcessReading(r models.Reading) (*models.Alert, error)
	AssessRisk(temperature *float64) models.RiskAssessment
}

type Predictor interface {
	PredictReadings(ctx context.Context, readings []models.Reading, minHistory int) (predictor.Result, error)
}

type Config struct {
	AllowedOrigins []string
	HistoryLimit   int
	MinHistory     int
}

// Server represents the HTTP API server.
type Server struct {
	router    *gin.Engine
	hub       *Hub
	config    Config
	store     Store
	monitor   Monitor
	predictor Predictor
	metrics   *observability.Metrics
	now       func() time.Time
}

// New creates a server with its routes registered. metrics may be nil.
func New(config Config, store Store, mon Monitor, pred Predictor, metrics *observability.Metrics) *Server {
	s := &Server{
		hub:       NewHub(config.AllowedOrigins),
		config:    config,
		store:     store,
		monitor:   mon,
		predictor: pred,
		metrics:   metrics,
		now:       time.Now,
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(config.AllowedOrigins) == 0 || slices.Contains(config.AllowedOrigins, "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = config.AllowedOrigins
	}
	router.Use(cors.New(corsConfig))

	s.router = router
	s.registerRoutes()
	return s
}

// Router returns the internal Gin engine for testing purposes.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Hub returns the live feed hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// BroadcastAlert publishes an alert to live feed clients.
func (s *Server) BroadcastAlert(alert models.Alert) {
	s.hub.Publish(EventNewAlert, alert)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting API server on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.Info("Shutting down API server")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Motor Maintenance Backend Running!")
	})
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	s.router.GET("/ws", func(c *gin.Context) {
		s.hub.ServeWS(c.Writer, c.Request)
	})

	temp := s.router.Group("/api/temperature")
	{
		temp.POST("", s.postReading)
		temp.GET("/latest", s.getLatest)
		temp.GET("/stats", s.getStats)
		temp.GET("/history", s.getHistory)
		temp.GET("/predict", s.getRisk)
		temp.GET("/ml-predict", s.getMLPrediction)
		temp.GET("/alerts/history", s.getAlertHistory)
	}
}

type readingRequest struct {
	Temperature *float64 `json:"temperature"`
}

func (s *Server) postReading(c *gin.Context) {
	var req readingRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Temperature == nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid temperature data"})
		return
	}

	reading := &models.Reading{Temperature: *req.Temperature, Timestamp: s.now().UTC()}
	if err := reading.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid temperature data"})
		return
	}
	if err := s.store.AddReading(reading); err != nil {
		logger.Error("Failed to store reading: %v", err)
		s.hub.Publish("error", gin.H{"message": "Error saving temperature data on server."})
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Error saving temperature data", "error": err.Error()})
		return
	}
	s.metrics.RecordReading(reading.Temperature)
	s.hub.Publish(EventNewTemperature, reading)

	alert, err := s.monitor.ProcessReading(*reading)
	if err != nil {
		logger.Error("Failed to process reading alert: %v", err)
	} else if alert != nil {
		s.metrics.RecordAlert(string(alert.Kind))
		s.BroadcastAlert(*alert)
	}

	c.JSON(http.StatusCreated, reading)
}

func (s *Server) getLatest(c *gin.Context) {
	latest, err := s.store.LatestReading()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Error fetching latest temperature", "error": err.Error()})
		return
	}
	if latest == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, latest)
}

func (s *Server) getStats(c *gin.Context) {
	stats, err := s.store.ReadingStats(s.now().Add(-statsPeriod))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Error fetching temperature stats", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) getHistory(c *gin.Context) {
	readings, err := s.store.RecentReadings(queryLimit(c, defaultHistoryLimit))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Error fetching temperature history", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, readings)
}

func (s *Server) getAlertHistory(c *gin.Context) {
	alerts, err := s.store.RecentAlerts(queryLimit(c, defaultAlertLimit))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Error fetching alert history", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, alerts)
}

func (s *Server) getRisk(c *gin.Context) {
	latest, err := s.store.LatestReading()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Error fetching prediction", "error": err.Error()})
		return
	}
	var temp *float64
	if latest != nil {
		temp = &latest.Temperature
	}
	c.JSON(http.StatusOK, s.monitor.AssessRisk(temp))
}

func (s *Server) getMLPrediction(c *gin.Context) {
	start := time.Now()
	readings, err := s.store.RecentReadings(s.config.HistoryLimit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Error loading temperature history", "error": err.Error()})
		return
	}

	result, err := s.predictor.PredictReadings(c.Request.Context(), readings, s.config.MinHistory)
	s.metrics.RecordPrediction(result.Probability, err, time.Since(start))
	if err != nil {
		logger.Warn("ML prediction failed: %v", err)
		c.JSON(statusForError(err), gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// statusForError maps pipeline error kinds to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, features.ErrInput), errors.Is(err, features.ErrInsufficientData):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func queryLimit(c *gin.Context, def int) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil || n <= 0 {
		return def
	}
	if n > maxQueryLimit {
		return maxQueryLimit
	}
	return n
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("%s %s -> %d (%v)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
