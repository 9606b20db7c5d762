package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/terra-clan/koi-prep/internal/editor"
	"github.com/terra-clan/koi-prep/internal/models"
	"github.com/terra-clan/koi-prep/internal/runner"
	"github.com/terra-clan/koi-prep/internal/session"
	"github.com/terra-clan/koi-prep/internal/storage"
)

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// respondSessionError maps session, runner and editor errors to responses
func respondSessionError(w http.ResponseWriter, r *http.Request, err error, action string) {
	switch {
	case errors.Is(err, models.ErrInvalidConfig),
		errors.Is(err, runner.ErrProblemOutOfRange),
		errors.Is(err, editor.ErrUnsupportedKey):
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, session.ErrNotFound):
		respondError(w, http.StatusNotFound, "not_found", "session not found")
	case errors.Is(err, session.ErrBusy):
		respondError(w, http.StatusConflict, "busy", err.Error())
	case errors.Is(err, session.ErrInvalidTransition):
		respondError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, runner.ErrRunInProgress):
		respondError(w, http.StatusConflict, "run_in_progress", err.Error())
	case errors.Is(err, runner.ErrProblemLocked):
		respondError(w, http.StatusConflict, "problem_locked", err.Error())
	case errors.Is(err, session.ErrNotComplete):
		respondError(w, http.StatusConflict, "not_complete", err.Error())
	case errors.Is(err, session.ErrExportInProgress):
		respondError(w, http.StatusConflict, "export_in_progress", err.Error())
	default:
		slog.Error("failed to "+action, "error", err, "path", r.URL.Path)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to "+action)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "healthy",
		"time":     time.Now().UTC().Format(time.RFC3339),
		"sessions": s.sessions.Len(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	results := s.services.HealthCheckAll(r.Context())

	checks := make(map[string]string, len(results))
	ready := true
	for name, err := range results {
		if err != nil {
			slog.Warn("dependency not ready", "service", name, "error", err)
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	if !ready {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		if err := json.NewEncoder(w).Encode(apiResponse{
			Success: false,
			Data:    map[string]interface{}{"status": "not_ready", "checks": checks},
			Error:   &apiError{Code: "not_ready", Message: "service not ready"},
		}); err != nil {
			slog.Error("failed to encode error response", "error", err)
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ready",
		"checks": checks,
	})
}

// Gateway ledger handlers

func (s *Server) handleListGatewayCalls(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		respondError(w, http.StatusServiceUnavailable, "ledger_disabled", "gateway call ledger is not configured")
		return
	}

	q := r.URL.Query()
	filter := storage.CallFilter{
		Operation: models.GatewayOperation(q.Get("operation")),
		Limit:     storage.DefaultListLimit,
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			filter.Limit = limit
		}
	}

	if offsetStr := q.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}

	if failedStr := q.Get("failed"); failedStr != "" {
		failed, err := strconv.ParseBool(failedStr)
		if err != nil {
			respondError(w, http.StatusBadRequest, "validation_error", "failed must be a boolean")
			return
		}
		filter.Failed = &failed
	}

	calls, err := s.ledger.ListCalls(r.Context(), filter)
	if err != nil {
		slog.Error("failed to list gateway calls", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to list gateway calls")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"calls": calls,
		"total": len(calls),
	})
}

func (s *Server) handleGatewayStats(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		respondError(w, http.StatusServiceUnavailable, "ledger_disabled", "gateway call ledger is not configured")
		return
	}

	stats, err := s.ledger.CallStats(r.Context())
	if err != nil {
		slog.Error("failed to aggregate gateway calls", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to aggregate gateway calls")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"operations": stats,
	})
}
