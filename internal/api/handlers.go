// Package api provides HTTP handlers for FocusLoop endpoints.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/FocusLoop/internal/models"
)

// userIDFromPath extracts the trailing path segment after the prefix.
func userIDFromPath(path, prefix string) string {
	return strings.Trim(strings.TrimPrefix(path, prefix), "/")
}

// chatRequest is the POST /chat body.
type chatRequest struct {
	UserID      string             `json:"user_id"`
	Message     string             `json:"message"`
	Interaction models.Interaction `json:"interaction"`
	Frame       models.Frame       `json:"frame"`
}

func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.chatHandler: processing chat request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.chatHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.chatHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.UserID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrEmptyUserID.Error()))
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrEmptyMessage.Error()))
		return
	}

	result, err := s.loop.HandleMessage(r.Context(), req.UserID, req.Message, req.Interaction, req.Frame)
	if err != nil {
		// The loop degrades internally; the caller still gets a usable
		// response body even when the pipeline reported errors.
		slog.Error("Server.chatHandler: pipeline reported errors", "error", err, "userID", req.UserID, "fallback", result.Fallback)
	}
	slog.Info("Server.chatHandler: chat handled", "userID", req.UserID, "detections", len(result.Detections))
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

func (s *Server) patternsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.patternsHandler: processing patterns request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("Server.patternsHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	userID := userIDFromPath(r.URL.Path, "/patterns/")
	if userID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrEmptyUserID.Error()))
		return
	}
	limit := queryInt(r, "limit", 50)
	detections, err := s.st.GetDetections(userID, limit)
	if err != nil {
		slog.Error("Server.patternsHandler: failed to load detections", "error", err, "userID", userID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load detections"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(detections))
}

func (s *Server) profileHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.profileHandler: processing profile request", "method", r.Method, "path", r.URL.Path)
	userID := userIDFromPath(r.URL.Path, "/profile/")
	if userID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrEmptyUserID.Error()))
		return
	}

	switch r.Method {
	case http.MethodGet:
		prof, err := s.profiles.GetOrCreate(r.Context(), userID)
		if err != nil {
			slog.Error("Server.profileHandler: failed to load profile", "error", err, "userID", userID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load profile"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(prof))

	case http.MethodPut:
		var prof models.UserProfile
		if err := json.NewDecoder(r.Body).Decode(&prof); err != nil {
			slog.Warn("Server.profileHandler: failed to decode JSON", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		prof.UserID = userID
		saved, err := s.profiles.Put(r.Context(), &prof)
		if err != nil {
			slog.Error("Server.profileHandler: failed to save profile", "error", err, "userID", userID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save profile"))
			return
		}
		slog.Info("Server.profileHandler: profile updated", "userID", userID, "version", saved.Version)
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Profile updated", saved))

	default:
		w.Header().Set("Allow", http.MethodGet+", "+http.MethodPut)
		slog.Warn("Server.profileHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// breakdownRequest is the POST /tasks/breakdown body.
type breakdownRequest struct {
	UserID string `json:"user_id"`
	Task   string `json:"task"`
}

func (s *Server) breakdownHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.breakdownHandler: processing breakdown request", "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.breakdownHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req breakdownRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.breakdownHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	prof, err := s.profiles.GetOrCreate(r.Context(), req.UserID)
	if err != nil {
		slog.Warn("Server.breakdownHandler: profile unavailable, using defaults", "error", err, "userID", req.UserID)
		prof = nil
	}
	plan, err := s.breakdown.BreakDown(req.UserID, req.Task, prof)
	if err != nil {
		slog.Warn("Server.breakdownHandler: breakdown failed", "error", err, "userID", req.UserID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(plan))
}

// switchPlanRequest is the POST /switch/plan body.
type switchPlanRequest struct {
	UserID string `json:"user_id"`
	From   string `json:"from"`
	To     string `json:"to"`
}

func (s *Server) switchPlanHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.switchPlanHandler: processing switch plan request", "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.switchPlanHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req switchPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.switchPlanHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	prof, err := s.profiles.GetOrCreate(r.Context(), req.UserID)
	if err != nil {
		prof = nil
	}
	plan, err := s.switcher.PlanSwitch(req.UserID, req.From, req.To, prof)
	if err != nil {
		slog.Warn("Server.switchPlanHandler: plan failed", "error", err, "userID", req.UserID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(plan))
}

// memorySaveRequest is the POST /memory/{user_id} body.
type memorySaveRequest struct {
	Content    string `json:"content"`
	ItemType   string `json:"item_type,omitempty"`
	TaskTag    string `json:"task_tag,omitempty"`
	TTLMinutes int    `json:"ttl_minutes,omitempty"`
}

func (s *Server) memoryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.memoryHandler: processing memory request", "method", r.Method, "path", r.URL.Path)
	userID := userIDFromPath(r.URL.Path, "/memory/")
	if userID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrEmptyUserID.Error()))
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req memorySaveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			slog.Warn("Server.memoryHandler: failed to decode JSON", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		ttl := time.Duration(req.TTLMinutes) * time.Minute
		item, err := s.memory.Save(r.Context(), userID, req.Content, req.ItemType, req.TaskTag, ttl)
		if err != nil {
			slog.Warn("Server.memoryHandler: save failed", "error", err, "userID", userID)
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Memory item saved", item))

	case http.MethodGet:
		q := r.URL.Query()
		items, err := s.memory.Retrieve(r.Context(), userID, q.Get("query"), q.Get("item_type"), q.Get("task_tag"))
		if err != nil {
			slog.Error("Server.memoryHandler: retrieve failed", "error", err, "userID", userID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to retrieve memory items"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(items))

	default:
		w.Header().Set("Allow", http.MethodGet+", "+http.MethodPost)
		slog.Warn("Server.memoryHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// assessRequest is the POST /procrastination/assess body.
type assessRequest struct {
	UserID  string `json:"user_id"`
	Task    string `json:"task"`
	Urgency int    `json:"urgency"`
}

func (s *Server) procrastinationHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.procrastinationHandler: processing assess request", "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.procrastinationHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req assessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.procrastinationHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	prof, err := s.profiles.GetOrCreate(r.Context(), req.UserID)
	if err != nil {
		prof = nil
	}
	history, err := s.st.GetDetections(req.UserID, 50)
	if err != nil {
		slog.Warn("Server.procrastinationHandler: detection history unavailable", "error", err, "userID", req.UserID)
		history = nil
	}
	plan, err := s.intervene.Assess(req.UserID, req.Task, req.Urgency, prof, history)
	if err != nil {
		slog.Warn("Server.procrastinationHandler: assess failed", "error", err, "userID", req.UserID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(plan))
}

func (s *Server) tracesHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.tracesHandler: processing traces request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("Server.tracesHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	userID := userIDFromPath(r.URL.Path, "/traces/")
	if userID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrEmptyUserID.Error()))
		return
	}
	events, err := s.st.GetTraceEvents(userID, r.URL.Query().Get("event_type"), queryInt(r, "limit", 100))
	if err != nil {
		slog.Error("Server.tracesHandler: failed to load trace events", "error", err, "userID", userID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load trace events"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(events))
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.statsHandler: processing stats request", "method", r.Method)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("Server.statsHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	stats := map[string]any{
		"uptime_seconds":           int(time.Since(s.started).Seconds()),
		"classifier_training_size": s.clf.TrainingSize(),
		"pattern_config_version":   s.patterns.Config().Version,
	}
	writeJSONResponse(w, http.StatusOK, models.Success(stats))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("healthy", nil))
}

// queryInt parses an integer query parameter with a default.
func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
