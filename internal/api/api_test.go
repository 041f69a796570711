package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BTreeMap/FocusLoop/internal/models"
	"github.com/BTreeMap/FocusLoop/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := NewServer(store.NewInMemoryStore(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return s
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v, body: %s", err, rec.Body.String())
	}
	return resp
}

func TestHealthHandler(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.healthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Status != string(models.APIStatusOK) {
		t.Errorf("expected ok status, got %s", resp.Status)
	}
}

func TestChatHandlerRoundTrip(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(chatRequest{UserID: "u1", Message: "help me start the report"})
	rec := httptest.NewRecorder()
	s.chatHandler(rec, httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	if resp.Status != string(models.APIStatusOK) {
		t.Errorf("expected ok status, got %s", resp.Status)
	}
	result, ok := resp.Result.(map[string]any)
	if !ok {
		t.Fatalf("expected result object, got %T", resp.Result)
	}
	if result["response"] == "" {
		t.Error("expected non-empty response text")
	}
}

func TestChatHandlerRejectsBadInput(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.chatHandler(rec, httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader([]byte("{not json"))))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid JSON should 400, got %d", rec.Code)
	}

	body, _ := json.Marshal(chatRequest{Message: "hi"})
	rec = httptest.NewRecorder()
	s.chatHandler(rec, httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(body)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing user_id should 400, got %d", rec.Code)
	}
}

func TestChatHandlerMethodGuard(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.chatHandler(rec, httptest.NewRequest(http.MethodGet, "/chat", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
	if rec.Header().Get("Allow") != http.MethodPost {
		t.Errorf("expected Allow: POST, got %q", rec.Header().Get("Allow"))
	}
}

func TestProfileHandlerGetAndPut(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.profileHandler(rec, httptest.NewRequest(http.MethodGet, "/profile/u1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET expected 200, got %d", rec.Code)
	}

	prof := models.NewUserProfile("u1")
	prof.Style = models.StyleDirect
	body, _ := json.Marshal(prof)
	rec = httptest.NewRecorder()
	s.profileHandler(rec, httptest.NewRequest(http.MethodPut, "/profile/u1", bytes.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	s.profileHandler(rec, httptest.NewRequest(http.MethodGet, "/profile/u1", nil))
	resp := decodeResponse(t, rec)
	result, ok := resp.Result.(map[string]any)
	if !ok {
		t.Fatalf("expected result object, got %T", resp.Result)
	}
	if result["interaction_style"] != string(models.StyleDirect) {
		t.Errorf("PUT did not persist style: %v", result["interaction_style"])
	}
}

func TestProfileHandlerMethodGuard(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.profileHandler(rec, httptest.NewRequest(http.MethodDelete, "/profile/u1", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
	if rec.Header().Get("Allow") == "" {
		t.Error("expected Allow header")
	}
}

func TestBreakdownHandler(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(breakdownRequest{UserID: "u1", Task: "write the quarterly report for finance"})
	rec := httptest.NewRecorder()
	s.breakdownHandler(rec, httptest.NewRequest(http.MethodPost, "/tasks/breakdown", bytes.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	result, ok := resp.Result.(map[string]any)
	if !ok {
		t.Fatalf("expected result object, got %T", resp.Result)
	}
	subtasks, ok := result["subtasks"].([]any)
	if !ok || len(subtasks) == 0 {
		t.Errorf("expected subtasks, got %v", result["subtasks"])
	}
}

func TestMemoryHandlerSaveAndRetrieve(t *testing.T) {
	s := newTestServer(t)

	body, _ := json.Marshal(memorySaveRequest{Content: "call the pharmacy before 5pm", ItemType: "reminder"})
	rec := httptest.NewRecorder()
	s.memoryHandler(rec, httptest.NewRequest(http.MethodPost, "/memory/u1", bytes.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("POST expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	s.memoryHandler(rec, httptest.NewRequest(http.MethodGet, "/memory/u1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET expected 200, got %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	items, ok := resp.Result.([]any)
	if !ok || len(items) != 1 {
		t.Errorf("expected one stored item, got %v", resp.Result)
	}
}

func TestProcrastinationHandler(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(assessRequest{UserID: "u1", Task: "it must be perfect before I send it", Urgency: 5})
	rec := httptest.NewRecorder()
	s.procrastinationHandler(rec, httptest.NewRequest(http.MethodPost, "/procrastination/assess", bytes.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	result, ok := resp.Result.(map[string]any)
	if !ok {
		t.Fatalf("expected result object, got %T", resp.Result)
	}
	risk, _ := result["risk_score"].(float64)
	if risk < 0.3 {
		t.Errorf("expected risk >= 0.3, got %v", risk)
	}
}

func TestTracesHandlerRequiresUserID(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.tracesHandler(rec, httptest.NewRequest(http.MethodGet, "/traces/", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing user id, got %d", rec.Code)
	}
}

func TestStatsHandler(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.statsHandler(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	result, ok := resp.Result.(map[string]any)
	if !ok {
		t.Fatalf("expected result object, got %T", resp.Result)
	}
	if _, ok := result["pattern_config_version"]; !ok {
		t.Error("expected pattern_config_version in stats")
	}
}

func TestUserIDFromPath(t *testing.T) {
	cases := []struct{ path, prefix, want string }{
		{"/patterns/u1", "/patterns/", "u1"},
		{"/patterns/u1/", "/patterns/", "u1"},
		{"/patterns/", "/patterns/", ""},
	}
	for _, c := range cases {
		if got := userIDFromPath(c.path, c.prefix); got != c.want {
			t.Errorf("userIDFromPath(%q) = %q, want %q", c.path, got, c.want)
		}
	}
}
