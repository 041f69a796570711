// Package store provides storage backends for FocusLoop.
//
// It defines the Store interface over interactions, trace events, pattern
// detections, and working-memory items, with in-memory, SQLite, and
// PostgreSQL implementations.
package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/FocusLoop/internal/models"
)

// Store is the persistence boundary the engines depend on. The trace event
// log is append-only; profile state is reconstructed from the most recent
// profile_update event.
type Store interface {
	AddInteraction(i models.Interaction) error
	GetRecentInteractions(userID string, limit int) ([]models.Interaction, error)

	AddTraceEvent(e models.TraceEvent) error
	GetTraceEvents(userID, eventType string, limit int) ([]models.TraceEvent, error)
	LatestTraceEvent(userID, eventType string) (*models.TraceEvent, error)

	AddDetection(d models.PatternDetection) error
	GetDetections(userID string, limit int) ([]models.PatternDetection, error)

	SaveMemoryItem(item models.MemoryItem) error
	GetMemoryItems(userID string) ([]models.MemoryItem, error)
	DeleteMemoryItem(id string) error
	MemoryUserIDs() ([]string, error)
	ProfileUserIDs() ([]string, error)

	Close() error
}

// Opts holds configuration for store construction.
type Opts struct {
	DSN string
}

// Option configures store construction.
type Option func(*Opts)

// WithSQLiteDSN sets a SQLite file path as the store DSN.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets a PostgreSQL connection string as the store DSN.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType returns "postgres" for PostgreSQL connection strings and
// "sqlite" for anything else (file paths).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// InMemoryStore is a mutex-guarded in-memory store, used when no DSN is
// configured and throughout the test suites.
type InMemoryStore struct {
	mu           sync.RWMutex
	interactions map[string][]models.Interaction
	traces       map[string][]models.TraceEvent
	detections   map[string][]models.PatternDetection
	memoryItems  map[string][]models.MemoryItem
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		interactions: make(map[string][]models.Interaction),
		traces:       make(map[string][]models.TraceEvent),
		detections:   make(map[string][]models.PatternDetection),
		memoryItems:  make(map[string][]models.MemoryItem),
	}
}

// AddInteraction appends an interaction to the user's history.
func (s *InMemoryStore) AddInteraction(i models.Interaction) error {
	if err := i.Validate(); err != nil {
		return err
	}
	if i.Timestamp.IsZero() {
		i.Timestamp = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interactions[i.UserID] = append(s.interactions[i.UserID], i)
	return nil
}

// GetRecentInteractions returns up to limit interactions, newest first.
func (s *InMemoryStore) GetRecentInteractions(userID string, limit int) ([]models.Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.interactions[userID]
	out := make([]models.Interaction, len(all))
	copy(out, all)
	sort.SliceStable(out, func(a, b int) bool { return out[a].Timestamp.After(out[b].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// AddTraceEvent appends a trace event.
func (s *InMemoryStore) AddTraceEvent(e models.TraceEvent) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.traces[e.UserID] = append(s.traces[e.UserID], e)
	return nil
}

// GetTraceEvents returns up to limit events of the given type, newest first.
// An empty eventType matches all types.
func (s *InMemoryStore) GetTraceEvents(userID, eventType string, limit int) ([]models.TraceEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.TraceEvent
	for _, e := range s.traces[userID] {
		if eventType == "" || e.EventType == eventType {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Timestamp.After(out[b].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// LatestTraceEvent returns the most recent event of the given type, or nil.
func (s *InMemoryStore) LatestTraceEvent(userID, eventType string) (*models.TraceEvent, error) {
	events, err := s.GetTraceEvents(userID, eventType, 1)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

// AddDetection appends a pattern detection.
func (s *InMemoryStore) AddDetection(d models.PatternDetection) error {
	if err := d.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detections[d.UserID] = append(s.detections[d.UserID], d)
	return nil
}

// GetDetections returns up to limit detections, newest first.
func (s *InMemoryStore) GetDetections(userID string, limit int) ([]models.PatternDetection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.detections[userID]
	out := make([]models.PatternDetection, len(all))
	copy(out, all)
	sort.SliceStable(out, func(a, b int) bool { return out[a].Timestamp.After(out[b].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SaveMemoryItem stores or replaces a working-memory item by ID.
func (s *InMemoryStore) SaveMemoryItem(item models.MemoryItem) error {
	if item.UserID == "" {
		return models.ErrEmptyUserID
	}
	if item.Content == "" {
		return models.ErrEmptyContent
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.memoryItems[item.UserID]
	for n, existing := range items {
		if existing.ID == item.ID {
			items[n] = item
			return nil
		}
	}
	s.memoryItems[item.UserID] = append(items, item)
	return nil
}

// GetMemoryItems returns all stored working-memory items for a user,
// including expired ones; expiry filtering is the caller's concern.
func (s *InMemoryStore) GetMemoryItems(userID string) ([]models.MemoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.memoryItems[userID]
	out := make([]models.MemoryItem, len(all))
	copy(out, all)
	return out, nil
}

// DeleteMemoryItem removes a working-memory item by ID.
func (s *InMemoryStore) DeleteMemoryItem(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for userID, items := range s.memoryItems {
		for n, item := range items {
			if item.ID == id {
				s.memoryItems[userID] = append(items[:n], items[n+1:]...)
				return nil
			}
		}
	}
	return nil
}

// MemoryUserIDs returns every user with at least one stored memory item.
func (s *InMemoryStore) MemoryUserIDs() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.memoryItems))
	for userID, items := range s.memoryItems {
		if len(items) > 0 {
			out = append(out, userID)
		}
	}
	sort.Strings(out)
	return out, nil
}

// ProfileUserIDs returns every user with at least one persisted profile.
func (s *InMemoryStore) ProfileUserIDs() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for userID, events := range s.traces {
		for _, e := range events {
			if e.EventType == models.TraceEventProfileUpdate {
				out = append(out, userID)
				break
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }
