package server

import (
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonathan/resume-screener/internal/db"
	"github.com/jonathan/resume-screener/internal/types"
	"github.com/jonathan/resume-screener/internal/webhook"
)

// defaultEstimatedTime is the submission-time estimate returned to the
// caller; the workflow updates the stored estimate as it progresses.
const defaultEstimatedTime = "3-5 minutes"

// handleStartAnalysis validates a screening request and hands it to the
// evaluation workflow. The workflow owns the job row from here on; this
// endpoint only confirms the submission.
func (s *Server) handleStartAnalysis(w http.ResponseWriter, r *http.Request) {
	var req types.StartAnalysisRequest
	if err := decodeJSON(r, &req); err != nil {
		s.handlerError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.handlerError(w, &ErrValidation{Message: err.Error()})
		return
	}

	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		userID = "anonymous"
	}

	trackingID := webhook.NewTrackingID()
	payload := webhook.SubmissionPayload{
		RequirementID:   trackingID,
		JobTitle:        req.JobTitle,
		JobDescription:  req.JobDescription,
		InputType:       req.InputType,
		ExperienceLevel: req.ExperienceLevel,
		UserID:          userID,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	}

	if err := s.dispatcher.Dispatch(r.Context(), payload); err != nil {
		s.audit.LogError(r.Context(), db.ErrorRecord{
			RequirementID: trackingID,
			ErrorType:     "webhook_dispatch",
			Message:       err.Error(),
			WorkflowStep:  "submission",
			UserMessage:   "Failed to submit analysis to processing queue",
		})
		s.handlerError(w, &ErrUpstream{Message: "failed to submit analysis", Cause: err})
		return
	}

	s.audit.LogAnalysisActivity(r.Context(), db.ActionAnalysisStarted, trackingID, userID, map[string]any{
		"job_title":        req.JobTitle,
		"experience_level": req.ExperienceLevel,
	})

	s.jsonResponse(w, http.StatusAccepted, map[string]any{
		"requirementId": trackingID,
		"status":        db.JobStatusSubmitted,
		"estimatedTime": defaultEstimatedTime,
	})
}

// handleAnalysisStatus reports job progress with derived metadata. Progress
// is normalized at read time; canRetry and isStale are advisory flags for
// the caller, never enforced here.
func (s *Server) handleAnalysisStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	job, err := s.analysis.GetAnalysisJob(r.Context(), id)
	if err != nil {
		s.handlerError(w, err)
		return
	}
	if job == nil {
		s.handlerError(w, &ErrNotFound{Resource: "analysis", ID: id})
		return
	}

	resp := map[string]any{
		"requirementId":       job.RequirementID,
		"jobTitle":            job.JobTitle,
		"experienceLevel":     job.ExperienceLevel,
		"status":              job.Status,
		"progress":            job.EffectiveProgress(),
		"currentStep":         job.CurrentStep,
		"totalCandidates":     job.TotalCandidates,
		"evaluatedCandidates": job.EvaluatedCandidates,
		"skippedCandidates":   job.SkippedCandidates,
		"estimatedTime":       job.EstimatedTime,
		"retryAttempts":       job.RetryAttempts,
		"canRetry":            job.CanRetry(),
		"isStale":             job.IsStale(time.Now()),
		"submittedAt":         job.SubmittedAt,
		"updatedAt":           job.UpdatedAt,
	}
	if job.CompletedAt != nil {
		resp["completedAt"] = job.CompletedAt
	}

	if job.Status == db.JobStatusCompleted {
		summary, err := s.analysis.GetSummary(r.Context(), id)
		if err != nil {
			s.handlerError(w, err)
			return
		}
		if summary != nil {
			resp["summary"] = summary
		}
	}

	if job.Status == db.JobStatusError {
		if job.ErrorMessage != nil {
			resp["errorMessage"] = *job.ErrorMessage
		}
		recent, err := s.analysis.GetLatestError(r.Context(), id)
		if err != nil {
			s.handlerError(w, err)
			return
		}
		if recent != nil {
			resp["recentError"] = recent
		}
	}

	s.jsonResponse(w, http.StatusOK, resp)
}

// handleAnalysisResults serves the aggregated candidate results for a
// finished job (completed or error). Requirements and summary are independent
// reads and fetched concurrently.
func (s *Server) handleAnalysisResults(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	job, err := s.analysis.GetAnalysisJob(r.Context(), id)
	if err != nil {
		s.handlerError(w, err)
		return
	}
	if job == nil {
		s.handlerError(w, &ErrNotFound{Resource: "analysis", ID: id})
		return
	}
	if job.Status != db.JobStatusCompleted && job.Status != db.JobStatusError {
		s.handlerError(w, &ErrNotReady{
			RequirementID: id,
			Status:        job.Status,
			Progress:      job.EffectiveProgress(),
		})
		return
	}

	filters, sortKey, page, limit, err := parseResultsQuery(r)
	if err != nil {
		s.handlerError(w, err)
		return
	}

	var summary *db.AnalysisSummary
	var requirements *db.JobRequirements
	g, gctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		summary, err = s.analysis.GetSummary(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		requirements, err = s.analysis.GetRequirements(gctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		s.handlerError(w, err)
		return
	}

	results, pagination, err := s.analysis.ListEvaluations(r.Context(), id, filters, sortKey, page, limit)
	if err != nil {
		s.handlerError(w, err)
		return
	}
	if results == nil {
		results = []db.CandidateResult{}
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"requirementId": job.RequirementID,
		"jobTitle":      job.JobTitle,
		"status":        job.Status,
		"summary":       summary,
		"requirements":  requirements,
		"candidates":    results,
		"pagination":    pagination,
	})
}

// handleGetCandidate returns one candidate with every evaluation on record.
func (s *Server) handleGetCandidate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	candidate, err := s.analysis.GetCandidate(r.Context(), id)
	if err != nil {
		s.handlerError(w, err)
		return
	}
	if candidate == nil {
		s.handlerError(w, &ErrNotFound{Resource: "candidate", ID: id})
		return
	}

	evaluations, err := s.analysis.ListEvaluationsForCandidate(r.Context(), id)
	if err != nil {
		s.handlerError(w, err)
		return
	}
	if evaluations == nil {
		evaluations = []db.CandidateResult{}
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"candidate":   candidate,
		"evaluations": evaluations,
	})
}

// parseResultsQuery extracts filter, sort, and pagination parameters.
func parseResultsQuery(r *http.Request) (db.EvaluationFilters, string, int, int, error) {
	q := r.URL.Query()
	var filters db.EvaluationFilters

	if raw := q.Get("minScore"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 || v > 100 {
			return filters, "", 0, 0, &ErrValidation{Field: "minScore", Message: "must be an integer between 0 and 100"}
		}
		filters.MinScore = &v
	}
	filters.Recommendation = q.Get("recommendation")
	filters.Search = q.Get("search")

	sortKey := q.Get("sort")
	if sortKey == "" {
		sortKey = db.SortScoreDesc
	}
	switch sortKey {
	case db.SortScoreDesc, db.SortScoreAsc, db.SortName, db.SortRecent:
	default:
		return filters, "", 0, 0, &ErrValidation{Field: "sort", Message: "must be one of score_desc, score_asc, name, recent"}
	}

	page, err := parsePositiveInt(q.Get("page"), 1)
	if err != nil {
		return filters, "", 0, 0, &ErrValidation{Field: "page", Message: "must be a positive integer"}
	}
	limit, err := parsePositiveInt(q.Get("limit"), 50)
	if err != nil {
		return filters, "", 0, 0, &ErrValidation{Field: "limit", Message: "must be a positive integer"}
	}
	if limit > 100 {
		limit = 100
	}

	return filters, sortKey, page, limit, nil
}

func parsePositiveInt(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, &ErrValidation{Message: "must be a positive integer"}
	}
	return v, nil
}
