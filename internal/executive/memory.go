package executive

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/BTreeMap/FocusLoop/internal/models"
	"github.com/BTreeMap/FocusLoop/internal/store"
	"github.com/BTreeMap/FocusLoop/internal/util"
)

// DefaultMemoryTTL is how long a working-memory item lives when the caller
// does not give one.
const DefaultMemoryTTL = 24 * time.Hour

// retrievalThreshold is the minimum relevance score for an item to be
// returned by a query.
const retrievalThreshold = 0.3

// Relevance weights for retrieval scoring.
const (
	keywordWeight = 0.5
	typeWeight    = 0.25
	taskWeight    = 0.25
)

// WorkingMemory is the external working-memory prosthetic: TTL'd notes a
// user parks so they can stop holding them in their head. Items persist in
// the store so they survive restarts; expiry is lazy, checked on every
// retrieval so an expired item is never returned.
type WorkingMemory struct {
	st store.Store
}

// NewWorkingMemory creates a working memory backed by the given store.
func NewWorkingMemory(st store.Store) *WorkingMemory {
	return &WorkingMemory{st: st}
}

// Save stores one item. A zero TTL uses the default; keywords are derived
// from the content when none are given.
func (w *WorkingMemory) Save(ctx context.Context, userID, content, itemType, taskTag string, ttl time.Duration) (*models.MemoryItem, error) {
	if userID == "" {
		return nil, models.ErrEmptyUserID
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, models.ErrEmptyContent
	}
	if ttl <= 0 {
		ttl = DefaultMemoryTTL
	}

	now := time.Now().UTC()
	item := models.MemoryItem{
		ID:        util.GenerateMemoryItemID(),
		UserID:    userID,
		Content:   content,
		ItemType:  itemType,
		TaskTag:   taskTag,
		Keywords:  deriveKeywords(content),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := w.st.SaveMemoryItem(item); err != nil {
		return nil, fmt.Errorf("failed to save memory item for %s: %w", userID, err)
	}
	slog.Debug("WorkingMemory.Save: item stored", "userID", userID, "itemID", item.ID, "expires_at", item.ExpiresAt)
	return &item, nil
}

// Retrieve returns the user's unexpired items relevant to the query, scored
// by keyword overlap, item type match, and task tag match, best first.
// An empty query returns all unexpired items newest first.
func (w *WorkingMemory) Retrieve(ctx context.Context, userID, query, itemType, taskTag string) ([]models.MemoryItem, error) {
	if userID == "" {
		return nil, models.ErrEmptyUserID
	}
	items, err := w.st.GetMemoryItems(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load memory items for %s: %w", userID, err)
	}

	now := time.Now().UTC()
	live := items[:0]
	for _, item := range items {
		if item.Expired(now) {
			// Lazy expiry: drop from the store on first sight.
			if err := w.st.DeleteMemoryItem(item.ID); err != nil {
				slog.Warn("WorkingMemory.Retrieve: failed to delete expired item", "error", err, "itemID", item.ID)
			}
			continue
		}
		live = append(live, item)
	}

	if query == "" && itemType == "" && taskTag == "" {
		return live, nil
	}

	queryKeywords := deriveKeywords(query)
	type scored struct {
		item  models.MemoryItem
		score float64
	}
	var matches []scored
	for _, item := range live {
		score := keywordWeight * keywordOverlap(queryKeywords, item.Keywords)
		if itemType != "" && strings.EqualFold(item.ItemType, itemType) {
			score += typeWeight
		}
		if taskTag != "" && strings.EqualFold(item.TaskTag, taskTag) {
			score += taskWeight
		}
		if score >= retrievalThreshold {
			matches = append(matches, scored{item, score})
		}
	}
	sort.SliceStable(matches, func(a, b int) bool {
		return matches[a].score > matches[b].score
	})

	out := make([]models.MemoryItem, len(matches))
	for n, m := range matches {
		out[n] = m.item
	}
	slog.Debug("WorkingMemory.Retrieve: query served", "userID", userID, "candidates", len(live), "matches", len(out))
	return out, nil
}

// stopwords excluded from derived keywords.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "to": true, "of": true, "in": true,
	"on": true, "at": true, "for": true, "and": true, "or": true, "is": true,
	"it": true, "my": true, "i": true, "that": true, "this": true, "with": true,
}

// deriveKeywords lowercases, strips stopwords and short tokens.
func deriveKeywords(text string) []string {
	var out []string
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?:;\"'()")
		if len(word) < 3 || stopwords[word] {
			continue
		}
		out = append(out, word)
	}
	return out
}

// keywordOverlap returns the fraction of query keywords present in the
// item's keywords.
func keywordOverlap(query, item []string) float64 {
	if len(query) == 0 {
		return 0
	}
	set := make(map[string]bool, len(item))
	for _, kw := range item {
		set[kw] = true
	}
	var hits int
	for _, kw := range query {
		if set[kw] {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}
