// Package store provides storage backends for FocusLoop.
//
// This file implements an SQLite-backed store for interactions, trace
// events, detections, and working-memory items.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/BTreeMap/FocusLoop/internal/models"
	"github.com/BTreeMap/FocusLoop/internal/util"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// AddInteraction stores an interaction row.
func (s *SQLiteStore) AddInteraction(i models.Interaction) error {
	if err := i.Validate(); err != nil {
		return err
	}
	normalizeInteraction(&i)
	_, err := s.db.Exec(`INSERT INTO interactions
		(id, user_id, message, session_duration_minutes, response_delay_minutes,
		 task_switches, tasks_completed, tasks_started, energy_level, stress_level,
		 cognitive_load, estimated_minutes, actual_minutes, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		i.ID, i.UserID, i.Message, i.SessionDurationMinutes, i.ResponseDelayMinutes,
		i.TaskSwitches, i.TasksCompleted, i.TasksStarted, i.EnergyLevel, i.StressLevel,
		i.CognitiveLoad, i.EstimatedMinutes, i.ActualMinutes, i.Timestamp)
	if err != nil {
		slog.Error("SQLiteStore AddInteraction failed", "error", err, "userID", i.UserID)
		return fmt.Errorf("failed to insert interaction for %s: %w", i.UserID, err)
	}
	slog.Debug("SQLiteStore AddInteraction succeeded", "userID", i.UserID, "id", i.ID)
	return nil
}

// GetRecentInteractions returns up to limit interactions, newest first.
func (s *SQLiteStore) GetRecentInteractions(userID string, limit int) ([]models.Interaction, error) {
	rows, err := s.db.Query(`SELECT id, user_id, message, session_duration_minutes,
		response_delay_minutes, task_switches, tasks_completed, tasks_started,
		energy_level, stress_level, cognitive_load, estimated_minutes, actual_minutes, timestamp
		FROM interactions WHERE user_id = ? ORDER BY timestamp DESC LIMIT ?`,
		userID, normalizeLimit(limit))
	if err != nil {
		slog.Error("SQLiteStore GetRecentInteractions query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}
	defer rows.Close()
	return scanInteractions(rows)
}

// AddTraceEvent appends a trace event row.
func (s *SQLiteStore) AddTraceEvent(e models.TraceEvent) error {
	if err := e.Validate(); err != nil {
		return err
	}
	normalizeTraceEvent(&e)
	_, err := s.db.Exec(`INSERT INTO trace_events
		(id, user_id, event_type, event_data, confidence, source, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.EventType, e.EventData, e.Confidence, e.Source, e.Timestamp)
	if err != nil {
		slog.Error("SQLiteStore AddTraceEvent failed", "error", err, "userID", e.UserID, "eventType", e.EventType)
		return fmt.Errorf("failed to insert trace event for %s: %w", e.UserID, err)
	}
	slog.Debug("SQLiteStore AddTraceEvent succeeded", "userID", e.UserID, "eventType", e.EventType)
	return nil
}

// GetTraceEvents returns up to limit events of the given type, newest first.
// An empty eventType matches all types.
func (s *SQLiteStore) GetTraceEvents(userID, eventType string, limit int) ([]models.TraceEvent, error) {
	query := `SELECT id, user_id, event_type, event_data, confidence, source, timestamp
		FROM trace_events WHERE user_id = ?`
	args := []any{userID}
	if eventType != "" {
		query += ` AND event_type = ?`
		args = append(args, eventType)
	}
	query += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, normalizeLimit(limit))

	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("SQLiteStore GetTraceEvents query failed", "error", err, "userID", userID, "eventType", eventType)
		return nil, fmt.Errorf("failed to query trace events: %w", err)
	}
	defer rows.Close()
	return scanTraceEvents(rows)
}

// LatestTraceEvent returns the most recent event of the given type, or nil.
func (s *SQLiteStore) LatestTraceEvent(userID, eventType string) (*models.TraceEvent, error) {
	events, err := s.GetTraceEvents(userID, eventType, 1)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		slog.Debug("SQLiteStore LatestTraceEvent not found", "userID", userID, "eventType", eventType)
		return nil, nil
	}
	return &events[0], nil
}

// AddDetection stores a pattern detection row.
func (s *SQLiteStore) AddDetection(d models.PatternDetection) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if d.ID == "" {
		d.ID = util.GenerateDetectionID()
	}
	evidenceJSON, err := marshalEvidence(d.Evidence)
	if err != nil {
		slog.Error("SQLiteStore AddDetection evidence marshal failed", "error", err, "userID", d.UserID)
		return err
	}
	_, err = s.db.Exec(`INSERT INTO detections
		(id, user_id, pattern_type, severity, confidence, evidence, intervene, urgency, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.UserID, d.PatternType, d.Severity, d.Confidence, evidenceJSON, d.Intervene, d.Urgency, d.Timestamp)
	if err != nil {
		slog.Error("SQLiteStore AddDetection failed", "error", err, "userID", d.UserID, "patternType", d.PatternType)
		return fmt.Errorf("failed to insert detection for %s: %w", d.UserID, err)
	}
	slog.Debug("SQLiteStore AddDetection succeeded", "userID", d.UserID, "patternType", d.PatternType, "severity", d.Severity)
	return nil
}

// GetDetections returns up to limit detections, newest first.
func (s *SQLiteStore) GetDetections(userID string, limit int) ([]models.PatternDetection, error) {
	rows, err := s.db.Query(`SELECT id, user_id, pattern_type, severity, confidence, evidence, intervene, urgency, timestamp
		FROM detections WHERE user_id = ? ORDER BY timestamp DESC LIMIT ?`,
		userID, normalizeLimit(limit))
	if err != nil {
		slog.Error("SQLiteStore GetDetections query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}
	defer rows.Close()
	return scanDetections(rows)
}

// SaveMemoryItem stores or replaces a working-memory item.
func (s *SQLiteStore) SaveMemoryItem(item models.MemoryItem) error {
	if item.UserID == "" {
		return models.ErrEmptyUserID
	}
	if item.Content == "" {
		return models.ErrEmptyContent
	}
	keywordsJSON, err := marshalKeywords(item.Keywords)
	if err != nil {
		slog.Error("SQLiteStore SaveMemoryItem keywords marshal failed", "error", err, "userID", item.UserID)
		return err
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO memory_items
		(id, user_id, content, item_type, task_tag, keywords, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.UserID, item.Content, item.ItemType, item.TaskTag, keywordsJSON, item.CreatedAt, item.ExpiresAt)
	if err != nil {
		slog.Error("SQLiteStore SaveMemoryItem failed", "error", err, "userID", item.UserID)
		return fmt.Errorf("failed to save memory item for %s: %w", item.UserID, err)
	}
	slog.Debug("SQLiteStore SaveMemoryItem succeeded", "userID", item.UserID, "id", item.ID)
	return nil
}

// GetMemoryItems returns all stored working-memory items for a user.
func (s *SQLiteStore) GetMemoryItems(userID string) ([]models.MemoryItem, error) {
	rows, err := s.db.Query(`SELECT id, user_id, content, item_type, task_tag, keywords, created_at, expires_at
		FROM memory_items WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		slog.Error("SQLiteStore GetMemoryItems query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query memory items: %w", err)
	}
	defer rows.Close()
	return scanMemoryItems(rows)
}

// DeleteMemoryItem removes a working-memory item by ID.
func (s *SQLiteStore) DeleteMemoryItem(id string) error {
	_, err := s.db.Exec(`DELETE FROM memory_items WHERE id = ?`, id)
	if err != nil {
		slog.Error("SQLiteStore DeleteMemoryItem failed", "error", err, "id", id)
		return fmt.Errorf("failed to delete memory item %s: %w", id, err)
	}
	slog.Debug("SQLiteStore DeleteMemoryItem succeeded", "id", id)
	return nil
}

// MemoryUserIDs returns every user with at least one stored memory item.
func (s *SQLiteStore) MemoryUserIDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT user_id FROM memory_items ORDER BY user_id`)
	if err != nil {
		slog.Error("SQLiteStore MemoryUserIDs query failed", "error", err)
		return nil, fmt.Errorf("failed to query memory item users: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("failed to scan memory item user: %w", err)
		}
		out = append(out, userID)
	}
	return out, rows.Err()
}

// ProfileUserIDs returns every user with at least one persisted profile.
func (s *SQLiteStore) ProfileUserIDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT user_id FROM trace_events WHERE event_type = ? ORDER BY user_id`, models.TraceEventProfileUpdate)
	if err != nil {
		slog.Error("SQLiteStore ProfileUserIDs query failed", "error", err)
		return nil, fmt.Errorf("failed to query profile users: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("failed to scan profile user: %w", err)
		}
		out = append(out, userID)
	}
	return out, rows.Err()
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
