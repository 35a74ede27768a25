// Package storage provides SQLite-backed persistence for readings and alerts.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rewired-gh/motorguard/internal/models"
	_ "modernc.org/sqlite"
)

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db          *sql.DB
	maxReadings int
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/motorguard/data.db.
func New(maxReadings int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "motorguard", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db, maxReadings: maxReadings}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS readings (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			temperature REAL NOT NULL,
			timestamp   INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_readings_timestamp ON readings(timestamp)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id          TEXT PRIMARY KEY,
			kind        TEXT NOT NULL,
			temperature REAL NOT NULL,
			probability REAL,
			threshold   REAL NOT NULL,
			message     TEXT NOT NULL,
			detected_at INTEGER NOT NULL,
			notified    INTEGER DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_detected_at ON alerts(detected_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// AddReading stores r, sets its ID and enforces the reading cap.
func (s *Storage) AddReading(r *models.Reading) error {
	return s.AddReadings([]*models.Reading{r})
}

// AddReadings stores a batch in one transaction.
func (s *Storage) AddReadings(readings []*models.Reading) error {
	for _, r := range readings {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("invalid reading: %w", err)
		}
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, r := range readings {
		res, err := tx.Exec(`INSERT INTO readings (temperature, timestamp) VALUES (?, ?)`,
			r.Temperature, r.Timestamp.UnixNano())
		if err != nil {
			return fmt.Errorf("failed to insert reading: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read reading ID: %w", err)
		}
		r.ID = id
	}

	if s.maxReadings > 0 {
		if _, err := tx.Exec(rotateReadingsSQL, s.maxReadings); err != nil {
			return fmt.Errorf("failed to enforce reading cap: %w", err)
		}
	}

	return tx.Commit()
}

// LatestReading returns the newest reading, or nil when there is none.
func (s *Storage) LatestReading() (*models.Reading, error) {
	row := s.db.QueryRow(`SELECT ` + readingCols + ` FROM readings ORDER BY timestamp DESC, id DESC LIMIT 1`)
	r, err := scanReading(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest reading: %w", err)
	}
	return r, nil
}

// RecentReadings returns up to limit newest readings, oldest first.
func (s *Storage) RecentReadings(limit int) ([]models.Reading, error) {
	rows, err := s.db.Query(`
		SELECT `+readingCols+` FROM (
			SELECT `+readingCols+` FROM readings ORDER BY timestamp DESC, id DESC LIMIT ?
		) ORDER BY timestamp ASC, id ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	readings := []models.Reading{}
	for rows.Next() {
		r, err := scanReading(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		readings = append(readings, *r)
	}
	return readings, rows.Err()
}

// ReadingStats summarizes readings since the given time. Current is the
// newest reading overall.
func (s *Storage) ReadingStats(since time.Time) (models.Stats, error) {
	var stats models.Stats
	var avg, hi, lo sql.NullFloat64
	err := s.db.QueryRow(`
		SELECT AVG(temperature), MAX(temperature), MIN(temperature), COUNT(*)
		FROM readings WHERE timestamp >= ?`, since.UnixNano()).Scan(&avg, &hi, &lo, &stats.Count)
	if err != nil {
		return stats, fmt.Errorf("failed to aggregate readings: %w", err)
	}
	stats.Average = nullable(avg)
	stats.Highest = nullable(hi)
	stats.Lowest = nullable(lo)

	latest, err := s.LatestReading()
	if err != nil {
		return stats, err
	}
	if latest != nil {
		current := latest.Temperature
		stats.Current = &current
	}
	return stats, nil
}

// RotateReadings keeps at most maxReadings newest readings.
func (s *Storage) RotateReadings() error {
	if s.maxReadings <= 0 {
		return nil
	}
	if _, err := s.db.Exec(rotateReadingsSQL, s.maxReadings); err != nil {
		return fmt.Errorf("failed to rotate readings: %w", err)
	}
	return nil
}

func (s *Storage) AddAlert(alert *models.Alert) error {
	if err := alert.Validate(); err != nil {
		return fmt.Errorf("invalid alert: %w", err)
	}
	var prob sql.NullFloat64
	if alert.Probability != nil {
		prob = sql.NullFloat64{Float64: *alert.Probability, Valid: true}
	}
	_, err := s.db.Exec(`
		INSERT INTO alerts
			(id, kind, temperature, probability, threshold, message, detected_at, notified)
		VALUES (?,?,?,?,?,?,?,?)`,
		alert.ID, string(alert.Kind), alert.Temperature, prob, alert.Threshold, alert.Message,
		alert.DetectedAt.UnixNano(), boolToInt(alert.Notified),
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

func (s *Storage) MarkAlertNotified(id string) error {
	res, err := s.db.Exec(`UPDATE alerts SET notified = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to update alert: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("alert not found: %s", id)
	}
	return nil
}

// RecentAlerts returns up to limit alerts, newest first.
func (s *Storage) RecentAlerts(limit int) ([]models.Alert, error) {
	rows, err := s.db.Query(`SELECT `+alertCols+` FROM alerts ORDER BY detected_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []models.Alert{}
	for rows.Next() {
		a, err := scanAlert(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

// LastAlertTimes returns the newest detection time per alert kind.
func (s *Storage) LastAlertTimes() (map[models.AlertKind]time.Time, error) {
	rows, err := s.db.Query(`SELECT kind, MAX(detected_at) FROM alerts GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert times: %w", err)
	}
	defer rows.Close()

	times := make(map[models.AlertKind]time.Time)
	for rows.Next() {
		var kind string
		var nano int64
		if err := rows.Scan(&kind, &nano); err != nil {
			return nil, fmt.Errorf("failed to scan alert time: %w", err)
		}
		times[models.AlertKind(kind)] = time.Unix(0, nano).UTC()
	}
	return times, rows.Err()
}

const rotateReadingsSQL = `
	DELETE FROM readings WHERE id NOT IN (
		SELECT id FROM readings ORDER BY timestamp DESC, id DESC LIMIT ?
	)`

const readingCols = `id, temperature, timestamp`

const alertCols = `id, kind, temperature, probability, threshold, message, detected_at, notified`

func scanReading(scan func(...any) error) (*models.Reading, error) {
	var r models.Reading
	var tsNano int64
	if err := scan(&r.ID, &r.Temperature, &tsNano); err != nil {
		return nil, err
	}
	r.Timestamp = time.Unix(0, tsNano).UTC()
	return &r, nil
}

func scanAlert(scan func(...any) error) (*models.Alert, error) {
	var a models.Alert
	var kind string
	var prob sql.NullFloat64
	var detectedAtNano int64
	var notified int
	err := scan(&a.ID, &kind, &a.Temperature, &prob, &a.Threshold, &a.Message, &detectedAtNano, &notified)
	if err != nil {
		return nil, err
	}
	a.Kind = models.AlertKind(kind)
	a.Probability = nullable(prob)
	a.DetectedAt = time.Unix(0, detectedAtNano).UTC()
	a.Notified = notified != 0
	return &a, nil
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
