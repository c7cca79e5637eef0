package server

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/resume-screener/internal/db"
	"github.com/jonathan/resume-screener/internal/types"
)

// handleCreateInterview schedules an interview for an evaluated candidate.
func (s *Server) handleCreateInterview(w http.ResponseWriter, r *http.Request) {
	var req types.ScheduleInterviewRequest
	if err := decodeJSON(r, &req); err != nil {
		s.handlerError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.handlerError(w, &ErrValidation{Message: err.Error()})
		return
	}

	interview, err := s.interviews.CreateInterview(r.Context(), db.NewInterview{
		JobID:            req.JobID,
		CandidateID:      req.CandidateID,
		ScheduledAt:      req.ScheduledAt.UTC().Format(time.RFC3339),
		DurationMinutes:  req.DurationMinutes,
		InterviewType:    req.InterviewType,
		InterviewerEmail: req.InterviewerEmail,
		MeetingLink:      req.MeetingLink,
		Notes:            req.Notes,
	})
	if err != nil {
		s.handlerError(w, err)
		return
	}

	s.audit.LogInterviewActivity(r.Context(), db.ActionInterviewScheduled,
		interview.InterviewID, interview.JobID, interview.CandidateID, "", map[string]any{
			"scheduled_at":   interview.ScheduledAt,
			"interview_type": interview.InterviewType,
		})

	s.jsonResponse(w, http.StatusCreated, interview)
}

// handleGetInterview returns one interview with candidate, job, evaluation,
// feedback, and history context.
func (s *Server) handleGetInterview(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.handlerError(w, &ErrValidation{Field: "id", Message: "must be a UUID"})
		return
	}

	detail, err := s.interviews.GetInterview(r.Context(), id)
	if err != nil {
		s.handlerError(w, err)
		return
	}
	if detail == nil {
		s.handlerError(w, &ErrNotFound{Resource: "interview", ID: id.String()})
		return
	}

	s.jsonResponse(w, http.StatusOK, detail)
}

// handleUpdateInterview applies a partial update. Only allow-listed fields
// are applied; completing an interview with a feedback score also records a
// feedback entry, best-effort.
func (s *Server) handleUpdateInterview(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.handlerError(w, &ErrValidation{Field: "id", Message: "must be a UUID"})
		return
	}

	var req types.UpdateInterviewRequest
	if err := decodeJSON(r, &req); err != nil {
		s.handlerError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.handlerError(w, &ErrValidation{Message: err.Error()})
		return
	}

	interview, priorStatus, err := s.interviews.UpdateInterview(r.Context(), id, req.Updates())
	if err != nil {
		s.handlerError(w, err)
		return
	}
	if interview == nil {
		s.handlerError(w, &ErrNotFound{Resource: "interview", ID: id.String()})
		return
	}

	// status diff is always recorded, even when status was not among the
	// updated fields
	s.audit.LogInterviewActivity(r.Context(), db.ActionInterviewUpdated,
		interview.InterviewID, interview.JobID, interview.CandidateID, "",
		map[string]any{
			"fields":          updatedFieldNames(req.Updates()),
			"previous_status": priorStatus,
			"new_status":      interview.Status,
		})

	// a completed interview with a score also gets a feedback record; the
	// update has already succeeded, so a feedback failure is logged only
	if interview.Status == db.InterviewStatusCompleted && req.FeedbackScore != nil {
		notes := ""
		if req.Notes != nil {
			notes = *req.Notes
		}
		if _, err := s.interviews.CreateFeedback(r.Context(), db.NewFeedback{
			InterviewID:      interview.InterviewID,
			Score:            *req.FeedbackScore,
			Notes:            notes,
			InterviewerEmail: interview.InterviewerEmail,
		}); err != nil {
			log.Printf("failed to record feedback for interview %s: %v", interview.InterviewID, err)
		}
	}

	s.jsonResponse(w, http.StatusOK, interview)
}

// handleDeleteInterview cancels an interview. The row survives with status
// cancelled; completed interviews cannot be cancelled.
func (s *Server) handleDeleteInterview(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.handlerError(w, &ErrValidation{Field: "id", Message: "must be a UUID"})
		return
	}

	// the body is optional and carries only a cancellation reason
	var cancelReq struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&cancelReq)
	if cancelReq.Reason == "" {
		cancelReq.Reason = "No reason provided"
	}

	prior, err := s.interviews.CancelInterview(r.Context(), id)
	if err != nil {
		s.handlerError(w, err)
		return
	}
	if prior == nil {
		s.handlerError(w, &ErrNotFound{Resource: "interview", ID: id.String()})
		return
	}
	if prior.Status == db.InterviewStatusCompleted {
		s.handlerError(w, &ErrConflict{Message: "completed interviews cannot be cancelled"})
		return
	}

	s.audit.LogInterviewActivity(r.Context(), db.ActionInterviewCancelled,
		id, prior.JobID, prior.CandidateID, "", map[string]any{
			"reason":                  cancelReq.Reason,
			"previous_status":         prior.Status,
			"previous_scheduled_time": prior.ScheduledAt,
		})

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"interviewId": id,
		"status":      db.InterviewStatusCancelled,
	})
}

// handleListInterviews lists interviews, optionally filtered by job,
// candidate, or status.
func (s *Server) handleListInterviews(w http.ResponseWriter, r *http.Request) {
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

	var statuses []string
	if raw := q.Get("status"); raw != "" {
		statuses = strings.Split(raw, ",")
	}

	interviews, pagination, err := s.interviews.ListInterviews(r.Context(), db.InterviewFilters{
		JobID:       q.Get("jobId"),
		CandidateID: q.Get("candidateId"),
		Statuses:    statuses,
	}, page, limit)
	if err != nil {
		s.handlerError(w, err)
		return
	}
	if interviews == nil {
		interviews = []db.InterviewDetail{}
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"interviews": interviews,
		"pagination": pagination,
	})
}

func updatedFieldNames(updates map[string]any) []string {
	names := make([]string, 0, len(updates))
	for name := range updates {
		names = append(names, name)
	}
	return names
}
