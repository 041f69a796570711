package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BTreeMap/FocusLoop/internal/models"
	"github.com/BTreeMap/FocusLoop/internal/util"
)

// normalizeLimit maps non-positive limits to a large default so SQL LIMIT
// clauses stay simple.
func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 10000
	}
	return limit
}

func normalizeInteraction(i *models.Interaction) {
	if i.ID == "" {
		i.ID = util.GenerateInteractionID()
	}
	if i.Timestamp.IsZero() {
		i.Timestamp = time.Now().UTC()
	}
}

func normalizeTraceEvent(e *models.TraceEvent) {
	if e.ID == "" {
		e.ID = util.GenerateTraceID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
}

func marshalEvidence(evidence map[string]any) (string, error) {
	if len(evidence) == 0 {
		return "", nil
	}
	b, err := json.Marshal(evidence)
	if err != nil {
		return "", fmt.Errorf("failed to marshal evidence: %w", err)
	}
	return string(b), nil
}

func marshalKeywords(keywords []string) (string, error) {
	if len(keywords) == 0 {
		return "", nil
	}
	b, err := json.Marshal(keywords)
	if err != nil {
		return "", fmt.Errorf("failed to marshal keywords: %w", err)
	}
	return string(b), nil
}

// scanInteractions scans interaction rows.
func scanInteractions(rows *sql.Rows) ([]models.Interaction, error) {
	var out []models.Interaction
	for rows.Next() {
		var i models.Interaction
		var message sql.NullString
		if err := rows.Scan(&i.ID, &i.UserID, &message, &i.SessionDurationMinutes,
			&i.ResponseDelayMinutes, &i.TaskSwitches, &i.TasksCompleted, &i.TasksStarted,
			&i.EnergyLevel, &i.StressLevel, &i.CognitiveLoad, &i.EstimatedMinutes,
			&i.ActualMinutes, &i.Timestamp); err != nil {
			return nil, fmt.Errorf("scan interaction failed: %w", err)
		}
		i.Message = message.String
		out = append(out, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate interaction rows: %w", err)
	}
	return out, nil
}

// scanTraceEvents scans trace event rows.
func scanTraceEvents(rows *sql.Rows) ([]models.TraceEvent, error) {
	var out []models.TraceEvent
	for rows.Next() {
		var e models.TraceEvent
		var eventData, source sql.NullString
		if err := rows.Scan(&e.ID, &e.UserID, &e.EventType, &eventData, &e.Confidence, &source, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan trace event failed: %w", err)
		}
		e.EventData = eventData.String
		e.Source = source.String
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trace event rows: %w", err)
	}
	return out, nil
}

// scanDetections scans detection rows, decoding the evidence JSON blob.
func scanDetections(rows *sql.Rows) ([]models.PatternDetection, error) {
	var out []models.PatternDetection
	for rows.Next() {
		var d models.PatternDetection
		var evidenceJSON sql.NullString
		if err := rows.Scan(&d.ID, &d.UserID, &d.PatternType, &d.Severity, &d.Confidence,
			&evidenceJSON, &d.Intervene, &d.Urgency, &d.Timestamp); err != nil {
			return nil, fmt.Errorf("scan detection failed: %w", err)
		}
		if evidenceJSON.String != "" {
			d.Evidence = make(map[string]any)
			if err := json.Unmarshal([]byte(evidenceJSON.String), &d.Evidence); err != nil {
				// Evidence is advisory; keep the detection without it.
				d.Evidence = nil
			}
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate detection rows: %w", err)
	}
	return out, nil
}

// scanMemoryItems scans working-memory item rows.
func scanMemoryItems(rows *sql.Rows) ([]models.MemoryItem, error) {
	var out []models.MemoryItem
	for rows.Next() {
		var m models.MemoryItem
		var itemType, taskTag, keywordsJSON sql.NullString
		var expiresAt sql.NullTime
		if err := rows.Scan(&m.ID, &m.UserID, &m.Content, &itemType, &taskTag, &keywordsJSON, &m.CreatedAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("scan memory item failed: %w", err)
		}
		m.ItemType = itemType.String
		m.TaskTag = taskTag.String
		if keywordsJSON.String != "" {
			if err := json.Unmarshal([]byte(keywordsJSON.String), &m.Keywords); err != nil {
				m.Keywords = nil
			}
		}
		if expiresAt.Valid {
			m.ExpiresAt = expiresAt.Time
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memory item rows: %w", err)
	}
	return out, nil
}
