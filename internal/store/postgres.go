// Package store provides storage backends for FocusLoop.
//
// This file implements a PostgreSQL-backed store for interactions, trace
// events, detections, and working-memory items.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/FocusLoop/internal/models"
	"github.com/BTreeMap/FocusLoop/internal/util"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

// AddInteraction stores an interaction row.
func (s *PostgresStore) AddInteraction(i models.Interaction) error {
	if err := i.Validate(); err != nil {
		return err
	}
	normalizeInteraction(&i)
	_, err := s.db.Exec(`INSERT INTO interactions
		(id, user_id, message, session_duration_minutes, response_delay_minutes,
		 task_switches, tasks_completed, tasks_started, energy_level, stress_level,
		 cognitive_load, estimated_minutes, actual_minutes, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		i.ID, i.UserID, i.Message, i.SessionDurationMinutes, i.ResponseDelayMinutes,
		i.TaskSwitches, i.TasksCompleted, i.TasksStarted, i.EnergyLevel, i.StressLevel,
		i.CognitiveLoad, i.EstimatedMinutes, i.ActualMinutes, i.Timestamp)
	if err != nil {
		slog.Error("PostgresStore AddInteraction failed", "error", err, "userID", i.UserID)
		return fmt.Errorf("failed to insert interaction for %s: %w", i.UserID, err)
	}
	slog.Debug("PostgresStore AddInteraction succeeded", "userID", i.UserID, "id", i.ID)
	return nil
}

// GetRecentInteractions returns up to limit interactions, newest first.
func (s *PostgresStore) GetRecentInteractions(userID string, limit int) ([]models.Interaction, error) {
	rows, err := s.db.Query(`SELECT id, user_id, message, session_duration_minutes,
		response_delay_minutes, task_switches, tasks_completed, tasks_started,
		energy_level, stress_level, cognitive_load, estimated_minutes, actual_minutes, timestamp
		FROM interactions WHERE user_id = $1 ORDER BY timestamp DESC LIMIT $2`,
		userID, normalizeLimit(limit))
	if err != nil {
		slog.Error("PostgresStore GetRecentInteractions query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}
	defer rows.Close()
	return scanInteractions(rows)
}

// AddTraceEvent appends a trace event row.
func (s *PostgresStore) AddTraceEvent(e models.TraceEvent) error {
	if err := e.Validate(); err != nil {
		return err
	}
	normalizeTraceEvent(&e)
	_, err := s.db.Exec(`INSERT INTO trace_events
		(id, user_id, event_type, event_data, confidence, source, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.UserID, e.EventType, e.EventData, e.Confidence, e.Source, e.Timestamp)
	if err != nil {
		slog.Error("PostgresStore AddTraceEvent failed", "error", err, "userID", e.UserID, "eventType", e.EventType)
		return fmt.Errorf("failed to insert trace event for %s: %w", e.UserID, err)
	}
	slog.Debug("PostgresStore AddTraceEvent succeeded", "userID", e.UserID, "eventType", e.EventType)
	return nil
}

// GetTraceEvents returns up to limit events of the given type, newest first.
// An empty eventType matches all types.
func (s *PostgresStore) GetTraceEvents(userID, eventType string, limit int) ([]models.TraceEvent, error) {
	query := `SELECT id, user_id, event_type, event_data, confidence, source, timestamp
		FROM trace_events WHERE user_id = $1`
	args := []any{userID}
	if eventType != "" {
		query += ` AND event_type = $2 ORDER BY timestamp DESC LIMIT $3`
		args = append(args, eventType, normalizeLimit(limit))
	} else {
		query += ` ORDER BY timestamp DESC LIMIT $2`
		args = append(args, normalizeLimit(limit))
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("PostgresStore GetTraceEvents query failed", "error", err, "userID", userID, "eventType", eventType)
		return nil, fmt.Errorf("failed to query trace events: %w", err)
	}
	defer rows.Close()
	return scanTraceEvents(rows)
}

// LatestTraceEvent returns the most recent event of the given type, or nil.
func (s *PostgresStore) LatestTraceEvent(userID, eventType string) (*models.TraceEvent, error) {
	events, err := s.GetTraceEvents(userID, eventType, 1)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		slog.Debug("PostgresStore LatestTraceEvent not found", "userID", userID, "eventType", eventType)
		return nil, nil
	}
	return &events[0], nil
}

// AddDetection stores a pattern detection row.
func (s *PostgresStore) AddDetection(d models.PatternDetection) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if d.ID == "" {
		d.ID = util.GenerateDetectionID()
	}
	evidenceJSON, err := marshalEvidence(d.Evidence)
	if err != nil {
		slog.Error("PostgresStore AddDetection evidence marshal failed", "error", err, "userID", d.UserID)
		return err
	}
	_, err = s.db.Exec(`INSERT INTO detections
		(id, user_id, pattern_type, severity, confidence, evidence, intervene, urgency, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.ID, d.UserID, d.PatternType, d.Severity, d.Confidence, evidenceJSON, d.Intervene, d.Urgency, d.Timestamp)
	if err != nil {
		slog.Error("PostgresStore AddDetection failed", "error", err, "userID", d.UserID, "patternType", d.PatternType)
		return fmt.Errorf("failed to insert detection for %s: %w", d.UserID, err)
	}
	slog.Debug("PostgresStore AddDetection succeeded", "userID", d.UserID, "patternType", d.PatternType, "severity", d.Severity)
	return nil
}

// GetDetections returns up to limit detections, newest first.
func (s *PostgresStore) GetDetections(userID string, limit int) ([]models.PatternDetection, error) {
	rows, err := s.db.Query(`SELECT id, user_id, pattern_type, severity, confidence, evidence, intervene, urgency, timestamp
		FROM detections WHERE user_id = $1 ORDER BY timestamp DESC LIMIT $2`,
		userID, normalizeLimit(limit))
	if err != nil {
		slog.Error("PostgresStore GetDetections query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}
	defer rows.Close()
	return scanDetections(rows)
}

// SaveMemoryItem stores or replaces a working-memory item.
func (s *PostgresStore) SaveMemoryItem(item models.MemoryItem) error {
	if item.UserID == "" {
		return models.ErrEmptyUserID
	}
	if item.Content == "" {
		return models.ErrEmptyContent
	}
	keywordsJSON, err := marshalKeywords(item.Keywords)
	if err != nil {
		slog.Error("PostgresStore SaveMemoryItem keywords marshal failed", "error", err, "userID", item.UserID)
		return err
	}
	_, err = s.db.Exec(`INSERT INTO memory_items
		(id, user_id, content, item_type, task_tag, keywords, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content, item_type = EXCLUDED.item_type,
			task_tag = EXCLUDED.task_tag, keywords = EXCLUDED.keywords,
			expires_at = EXCLUDED.expires_at`,
		item.ID, item.UserID, item.Content, item.ItemType, item.TaskTag, keywordsJSON, item.CreatedAt, item.ExpiresAt)
	if err != nil {
		slog.Error("PostgresStore SaveMemoryItem failed", "error", err, "userID", item.UserID)
		return fmt.Errorf("failed to save memory item for %s: %w", item.UserID, err)
	}
	slog.Debug("PostgresStore SaveMemoryItem succeeded", "userID", item.UserID, "id", item.ID)
	return nil
}

// GetMemoryItems returns all stored working-memory items for a user.
func (s *PostgresStore) GetMemoryItems(userID string) ([]models.MemoryItem, error) {
	rows, err := s.db.Query(`SELECT id, user_id, content, item_type, task_tag, keywords, created_at, expires_at
		FROM memory_items WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		slog.Error("PostgresStore GetMemoryItems query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query memory items: %w", err)
	}
	defer rows.Close()
	return scanMemoryItems(rows)
}

// DeleteMemoryItem removes a working-memory item by ID.
func (s *PostgresStore) DeleteMemoryItem(id string) error {
	_, err := s.db.Exec(`DELETE FROM memory_items WHERE id = $1`, id)
	if err != nil {
		slog.Error("PostgresStore DeleteMemoryItem failed", "error", err, "id", id)
		return fmt.Errorf("failed to delete memory item %s: %w", id, err)
	}
	slog.Debug("PostgresStore DeleteMemoryItem succeeded", "id", id)
	return nil
}

// MemoryUserIDs returns every user with at least one stored memory item.
func (s *PostgresStore) MemoryUserIDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT user_id FROM memory_items ORDER BY user_id`)
	if err != nil {
		slog.Error("PostgresStore MemoryUserIDs query failed", "error", err)
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
func (s *PostgresStore) ProfileUserIDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT user_id FROM trace_events WHERE event_type = $1 ORDER BY user_id`, models.TraceEventProfileUpdate)
	if err != nil {
		slog.Error("PostgresStore ProfileUserIDs query failed", "error", err)
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

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close Postgres database", "error", err)
	}
	return err
}
