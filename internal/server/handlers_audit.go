package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/resume-screener/internal/db"
)

// handleListAuditLogs lists audit entries, newest first.
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, err := parsePositiveInt(q.Get("page"), 1)
	if err != nil {
		s.handlerError(w, &ErrValidation{Field: "page", Message: "must be a positive integer"})
		return
	}
	limit, err := parsePositiveInt(q.Get("limit"), 50)
	if err != nil {
		s.handlerError(w, &ErrValidation{Field: "limit", Message: "must be a positive integer"})
		return
	}

	entries, pagination, err := s.audit.GetAuditLogs(r.Context(), db.AuditLogFilters{
		JobID:       q.Get("jobId"),
		CandidateID: q.Get("candidateId"),
		EntityType:  q.Get("entityType"),
		Action:      q.Get("action"),
		UserID:      q.Get("userId"),
	}, page, limit)
	if err != nil {
		s.handlerError(w, err)
		return
	}
	if entries == nil {
		entries = []db.AuditLogEntry{}
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"logs":       entries,
		"pagination": pagination,
	})
}

// handleActivitySummary reports audit entry counts per action over a recent
// window, default seven days.
func (s *Server) handleActivitySummary(w http.ResponseWriter, r *http.Request) {
	days, err := parsePositiveInt(r.URL.Query().Get("days"), 7)
	if err != nil {
		s.handlerError(w, &ErrValidation{Field: "days", Message: "must be a positive integer"})
		return
	}

	since := time.Now().AddDate(0, 0, -days)
	summary, err := s.audit.ActivitySummary(r.Context(), since)
	if err != nil {
		s.handlerError(w, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"since":   since,
		"days":    days,
		"summary": summary,
	})
}

// handleListErrorLogs lists error entries, newest first.
func (s *Server) handleListErrorLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, err := parsePositiveInt(q.Get("page"), 1)
	if err != nil {
		s.handlerError(w, &ErrValidation{Field: "page", Message: "must be a positive integer"})
		return
	}
	limit, err := parsePositiveInt(q.Get("limit"), 50)
	if err != nil {
		s.handlerError(w, &ErrValidation{Field: "limit", Message: "must be a positive integer"})
		return
	}

	filters := db.ErrorLogFilters{
		RequirementID: q.Get("requirementId"),
		Severity:      q.Get("severity"),
		Search:        q.Get("search"),
	}
	if raw := q.Get("resolved"); raw != "" {
		switch raw {
		case "true":
			v := true
			filters.Resolved = &v
		case "false":
			v := false
			filters.Resolved = &v
		default:
			s.handlerError(w, &ErrValidation{Field: "resolved", Message: "must be true or false"})
			return
		}
	}

	entries, pagination, err := s.audit.GetErrorLogs(r.Context(), filters, page, limit)
	if err != nil {
		s.handlerError(w, err)
		return
	}
	if entries == nil {
		entries = []db.ErrorLogEntry{}
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"errors":     entries,
		"pagination": pagination,
	})
}

// handleResolveError marks one error entry resolved.
func (s *Server) handleResolveError(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.handlerError(w, &ErrValidation{Field: "id", Message: "must be a UUID"})
		return
	}

	resolved, err := s.audit.ResolveError(r.Context(), id, r.URL.Query().Get("userId"))
	if err != nil {
		s.handlerError(w, err)
		return
	}
	if !resolved {
		s.handlerError(w, &ErrNotFound{Resource: "unresolved error", ID: id.String()})
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"errorId":  id,
		"resolved": true,
	})
}
