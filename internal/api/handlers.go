package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/nerrad567/gray-logic-housekeeper/internal/history"
	"github.com/nerrad567/gray-logic-housekeeper/internal/housekeeper"
	"github.com/nerrad567/gray-logic-housekeeper/internal/registry"
)

// handleHealth reports registry reachability and persisted-state presence.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.engine.Health(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       status.Status,
		"registry_url": status.RegistryURL,
		"has_plan":     status.HasPlan,
		"has_rollback": status.HasRollback,
		"checked_at":   status.CheckedAt,
		"version":      s.version,
	})
}

// handleAudit runs a read-only audit against a fresh snapshot.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.Audit(r.Context())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// planRequest is the body of POST /api/plan. The body is optional;
// fallback placement defaults to off.
type planRequest struct {
	FallbackEnabled bool `json:"fallback_enabled"`
}

// handleCreatePlan runs the planning pipeline and persists the result.
func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	plan, err := s.engine.Plan(r.Context(), req.FallbackEnabled)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// handleGetPlan returns the persisted current plan.
func (s *Server) handleGetPlan(w http.ResponseWriter, _ *http.Request) {
	plan, err := s.engine.GetPlan()
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// applyRequest is the body of POST /api/apply.
type applyRequest struct {
	ApprovedIDs []string `json:"approved_ids"`
}

// handleApply replays the persisted plan, executing approved actions.
func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	result, err := s.engine.Apply(r.Context(), req.ApprovedIDs)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleRollback undoes the most recent apply run.
func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.Rollback(r.Context())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleGetRollback returns the persisted rollback record.
func (s *Server) handleGetRollback(w http.ResponseWriter, _ *http.Request) {
	record, err := s.engine.GetRollback()
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// ignoreRequest is the body of POST and DELETE /api/ignore.
type ignoreRequest struct {
	Fingerprints []string `json:"fingerprints"`
}

// handleListIgnored returns the sorted ignore set.
func (s *Server) handleListIgnored(w http.ResponseWriter, _ *http.Request) {
	fingerprints, err := s.engine.Ignored()
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fingerprints": fingerprints})
}

// handleIgnore adds fingerprints to the ignore set.
func (s *Server) handleIgnore(w http.ResponseWriter, r *http.Request) {
	var req ignoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.Fingerprints) == 0 {
		writeBadRequest(w, "fingerprints is required")
		return
	}

	updated, err := s.engine.Ignore(req.Fingerprints)
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fingerprints": updated})
}

// handleUnignore removes fingerprints from the ignore set.
func (s *Server) handleUnignore(w http.ResponseWriter, r *http.Request) {
	var req ignoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.Fingerprints) == 0 {
		writeBadRequest(w, "fingerprints is required")
		return
	}

	updated, err := s.engine.Unignore(req.Fingerprints)
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fingerprints": updated})
}

// handleClearIgnored empties the ignore set.
func (s *Server) handleClearIgnored(w http.ResponseWriter, _ *http.Request) {
	if err := s.engine.ClearIgnored(); err != nil {
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fingerprints": []string{}})
}

// handleHistory lists persisted runs, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusOK, &history.ListResult{Runs: []history.Run{}})
		return
	}

	filter := history.Filter{
		Operation: r.URL.Query().Get("operation"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "limit must be an integer")
			return
		}
		filter.Limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "offset must be an integer")
			return
		}
		filter.Offset = n
	}

	result, err := s.history.List(r.Context(), filter)
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// writeEngineError maps engine errors to HTTP status codes: missing
// plan/rollback to 404, registry transport failures to 502, everything
// else to 500.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, housekeeper.ErrNoPlan), errors.Is(err, housekeeper.ErrNoRollback):
		writeNotFound(w, err.Error())
	case errors.Is(err, registry.ErrTransport), errors.Is(err, registry.ErrAuthFailed), errors.Is(err, registry.ErrNoToken):
		writeUpstreamError(w, err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}

// decodeOptionalBody decodes a JSON body into v, treating an empty body
// as all-defaults.
func decodeOptionalBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return errors.New("invalid JSON body")
}
