package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"gazette/internal/core"
	"gazette/internal/persistence"
)

// HealthResponse is the /health payload.
type HealthResponse struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime"`
	Checks map[string]string `json:"checks"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := http.StatusOK
	health := "ok"

	if err := s.db.Ping(r.Context()); err != nil {
		checks["database"] = "error"
		status = http.StatusServiceUnavailable
		health = "unhealthy"
	} else {
		checks["database"] = "ok"
	}

	s.respondJSON(w, status, HealthResponse{
		Status: health,
		Uptime: timeSinceStart(),
		Checks: checks,
	})
}

// respondJSON writes a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("Failed to encode JSON response", "error", err)
	}
}

// respondError writes an error response.
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]any{
		"error": map[string]any{
			"status":  status,
			"message": message,
		},
	})
}

// respondStoreError maps persistence sentinels to HTTP statuses.
func (s *Server) respondStoreError(w http.ResponseWriter, err error, action string) {
	if errors.Is(err, persistence.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "not found")
		return
	}
	s.log.Error("Storage operation failed", "action", action, "error", err)
	s.respondError(w, http.StatusInternalServerError, action+" failed")
}

// decode parses a JSON request body.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func withUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

func currentUser(ctx context.Context) string {
	if user, ok := ctx.Value(userContextKey).(string); ok {
		return user
	}
	return "system"
}

// recordActivity writes an audit row. Failures are logged, never surfaced.
func (s *Server) recordActivity(ctx context.Context, campaignID, action, detail string) {
	activity := &core.UserActivity{
		ID:         uuid.NewString(),
		CampaignID: campaignID,
		User:       currentUser(ctx),
		Action:     action,
		Detail:     detail,
	}
	if err := s.db.Activities().Record(ctx, activity); err != nil {
		s.log.Warn("Failed to record activity", "campaign_id", campaignID, "action", action, "error", err)
	}
}

func timeSinceStart() string {
	return time.Since(serverStartTime).Round(time.Second).String()
}

func parsePositive(v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.New("must be non-negative")
	}
	return n, nil
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
