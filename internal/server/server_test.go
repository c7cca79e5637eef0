package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/resume-screener/internal/db"
	"github.com/jonathan/resume-screener/internal/webhook"
)

// auditCall captures one audit write so tests can assert its content.
type auditCall struct {
	action      string
	jobID       string
	candidateID string
	userID      string
	details     map[string]any
}

// fakeStore implements the store interfaces in memory for handler tests.
type fakeStore struct {
	jobs            map[string]*db.AnalysisJob
	summaries       map[string]*db.AnalysisSummary
	requirements    map[string]*db.JobRequirements
	latestErrors    map[string]*db.ErrorLogEntry
	evaluations     map[string][]db.CandidateResult
	candidates      map[string]*db.Candidate
	interviews      map[uuid.UUID]*db.InterviewDetail
	feedback        []db.NewFeedback
	audits          []auditCall
	errorRecords    []db.ErrorRecord
	lastErrorFilter db.ErrorLogFilters
	failFeedback    bool
	auditListErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs:         make(map[string]*db.AnalysisJob),
		summaries:    make(map[string]*db.AnalysisSummary),
		requirements: make(map[string]*db.JobRequirements),
		latestErrors: make(map[string]*db.ErrorLogEntry),
		evaluations:  make(map[string][]db.CandidateResult),
		candidates:   make(map[string]*db.Candidate),
		interviews:   make(map[uuid.UUID]*db.InterviewDetail),
	}
}

func (f *fakeStore) GetAnalysisJob(_ context.Context, id string) (*db.AnalysisJob, error) {
	return f.jobs[id], nil
}

func (f *fakeStore) GetSummary(_ context.Context, id string) (*db.AnalysisSummary, error) {
	return f.summaries[id], nil
}

func (f *fakeStore) GetRequirements(_ context.Context, id string) (*db.JobRequirements, error) {
	return f.requirements[id], nil
}

func (f *fakeStore) GetLatestError(_ context.Context, id string) (*db.ErrorLogEntry, error) {
	return f.latestErrors[id], nil
}

func (f *fakeStore) ListEvaluations(_ context.Context, jobID string, filters db.EvaluationFilters, _ string, page, limit int) ([]db.CandidateResult, db.Pagination, error) {
	var out []db.CandidateResult
	for _, r := range f.evaluations[jobID] {
		if filters.MinScore != nil && r.OverallScore < *filters.MinScore {
			continue
		}
		out = append(out, r)
	}
	return out, db.NewPagination(page, limit, len(out)), nil
}

func (f *fakeStore) GetCandidate(_ context.Context, id string) (*db.Candidate, error) {
	return f.candidates[id], nil
}

func (f *fakeStore) ListEvaluationsForCandidate(_ context.Context, id string) ([]db.CandidateResult, error) {
	var out []db.CandidateResult
	for _, results := range f.evaluations {
		for _, r := range results {
			if r.CandidateID == id {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func (f *fakeStore) CreateInterview(_ context.Context, in db.NewInterview) (*db.InterviewSchedule, error) {
	scheduledAt, _ := time.Parse(time.RFC3339, in.ScheduledAt)
	s := db.InterviewSchedule{
		InterviewID:      uuid.New(),
		JobID:            in.JobID,
		CandidateID:      in.CandidateID,
		ScheduledAt:      scheduledAt,
		DurationMinutes:  in.DurationMinutes,
		InterviewType:    in.InterviewType,
		InterviewerEmail: in.InterviewerEmail,
		Status:           db.InterviewStatusScheduled,
		CreatedAt:        time.Now(),
	}
	f.interviews[s.InterviewID] = &db.InterviewDetail{InterviewSchedule: s}
	return &s, nil
}

func (f *fakeStore) GetInterview(_ context.Context, id uuid.UUID) (*db.InterviewDetail, error) {
	return f.interviews[id], nil
}

func (f *fakeStore) UpdateInterview(_ context.Context, id uuid.UUID, updates map[string]any) (*db.InterviewSchedule, string, error) {
	d, ok := f.interviews[id]
	if !ok {
		return nil, "", nil
	}
	prior := d.Status
	if status, ok := updates["status"].(string); ok {
		d.Status = status
	}
	if score, ok := updates["feedback_score"].(int); ok {
		d.FeedbackScore = &score
	}
	s := d.InterviewSchedule
	return &s, prior, nil
}

func (f *fakeStore) CancelInterview(_ context.Context, id uuid.UUID) (*db.InterviewSchedule, error) {
	d, ok := f.interviews[id]
	if !ok {
		return nil, nil
	}
	prior := d.InterviewSchedule
	if prior.Status != db.InterviewStatusCompleted {
		d.Status = db.InterviewStatusCancelled
	}
	return &prior, nil
}

func (f *fakeStore) ListInterviews(_ context.Context, filters db.InterviewFilters, page, limit int) ([]db.InterviewDetail, db.Pagination, error) {
	var out []db.InterviewDetail
	for _, d := range f.interviews {
		if len(filters.Statuses) > 0 {
			match := false
			for _, s := range filters.Statuses {
				if d.Status == s {
					match = true
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, *d)
	}
	return out, db.NewPagination(page, limit, len(out)), nil
}

func (f *fakeStore) CreateFeedback(_ context.Context, fb db.NewFeedback) (*db.InterviewFeedback, error) {
	if f.failFeedback {
		return nil, fmt.Errorf("feedback table unavailable")
	}
	f.feedback = append(f.feedback, fb)
	return &db.InterviewFeedback{
		FeedbackID:  uuid.New(),
		InterviewID: fb.InterviewID,
		Score:       fb.Score,
	}, nil
}

func (f *fakeStore) LogAnalysisActivity(_ context.Context, action, requirementID, userID string, details map[string]any) {
	f.audits = append(f.audits, auditCall{action: action, jobID: requirementID, userID: userID, details: details})
}

func (f *fakeStore) LogInterviewActivity(_ context.Context, action string, _ uuid.UUID, jobID, candidateID, userID string, details map[string]any) {
	f.audits = append(f.audits, auditCall{action: action, jobID: jobID, candidateID: candidateID, userID: userID, details: details})
}

func (f *fakeStore) LogError(_ context.Context, rec db.ErrorRecord) uuid.UUID {
	f.errorRecords = append(f.errorRecords, rec)
	return uuid.New()
}

func (f *fakeStore) GetAuditLogs(_ context.Context, _ db.AuditLogFilters, page, limit int) ([]db.AuditLogEntry, db.Pagination, error) {
	if f.auditListErr != nil {
		return nil, db.Pagination{}, f.auditListErr
	}
	return []db.AuditLogEntry{{Action: "analysis_started"}}, db.NewPagination(page, limit, 1), nil
}

func (f *fakeStore) GetErrorLogs(_ context.Context, filters db.ErrorLogFilters, page, limit int) ([]db.ErrorLogEntry, db.Pagination, error) {
	f.lastErrorFilter = filters
	return nil, db.NewPagination(page, limit, 0), nil
}

func (f *fakeStore) ResolveError(_ context.Context, id uuid.UUID, _ string) (bool, error) {
	return id.String() != "00000000-0000-0000-0000-000000000000", nil
}

func (f *fakeStore) ActivitySummary(_ context.Context, _ time.Time) (map[string]int, error) {
	counts := make(map[string]int)
	for _, a := range f.audits {
		counts[a.action]++
	}
	return counts, nil
}

// fakeDispatcher records submissions and optionally fails.
type fakeDispatcher struct {
	payloads []webhook.SubmissionPayload
	err      error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, payload webhook.SubmissionPayload) error {
	if f.err != nil {
		return f.err
	}
	f.payloads = append(f.payloads, payload)
	return nil
}

func newTestServer(t *testing.T, store *fakeStore, dispatcher *fakeDispatcher) *Server {
	t.Helper()
	s := newServer(Config{Port: 0}, nil, store, store, store, dispatcher)
	t.Cleanup(s.rateLimiter.Stop)
	return s
}

func doRequest(s *Server, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "127.0.0.1:12345"
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t, newFakeStore(), &fakeDispatcher{})
	rec := doRequest(s, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestStartAnalysis_Success(t *testing.T) {
	store := newFakeStore()
	dispatcher := &fakeDispatcher{}
	s := newTestServer(t, store, dispatcher)

	rec := doRequest(s, http.MethodPost, "/api/analysis/start", map[string]any{
		"jobTitle":        "Backend Engineer",
		"experienceLevel": "senior",
	})

	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "submitted", body["status"])
	assert.Equal(t, "3-5 minutes", body["estimatedTime"])
	assert.Regexp(t, `^REQ-\d+-[a-z0-9]{9}$`, body["requirementId"])

	require.Len(t, dispatcher.payloads, 1)
	assert.Equal(t, "Backend Engineer", dispatcher.payloads[0].JobTitle)
	assert.Equal(t, "senior", dispatcher.payloads[0].ExperienceLevel)
	require.Len(t, store.audits, 1)
	assert.Equal(t, "analysis_started", store.audits[0].action)
}

func TestStartAnalysis_TrimsInputAndReadsCallerHeader(t *testing.T) {
	store := newFakeStore()
	dispatcher := &fakeDispatcher{}
	s := newTestServer(t, store, dispatcher)

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(map[string]any{
		"jobTitle":       "  Senior Backend Engineer  ",
		"jobDescription": "  builds services  ",
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/analysis/start", &buf)
	req.RemoteAddr = "127.0.0.1:12345"
	req.Header.Set("X-User-Id", "recruiter-7")
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, dispatcher.payloads, 1)
	assert.Equal(t, "Senior Backend Engineer", dispatcher.payloads[0].JobTitle)
	assert.Equal(t, "builds services", dispatcher.payloads[0].JobDescription)
	assert.Equal(t, "recruiter-7", dispatcher.payloads[0].UserID)
	require.Len(t, store.audits, 1)
	assert.Equal(t, "recruiter-7", store.audits[0].userID)
}

func TestStartAnalysis_AnonymousWithoutCallerHeader(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	s := newTestServer(t, newFakeStore(), dispatcher)

	rec := doRequest(s, http.MethodPost, "/api/analysis/start", map[string]any{
		"jobTitle": "Backend Engineer",
	})

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, dispatcher.payloads, 1)
	assert.Equal(t, "anonymous", dispatcher.payloads[0].UserID)
}

func TestStartAnalysis_ValidationError(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	s := newTestServer(t, newFakeStore(), dispatcher)

	rec := doRequest(s, http.MethodPost, "/api/analysis/start", map[string]any{
		"jobTitle": "Go",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, dispatcher.payloads)
}

func TestStartAnalysis_MalformedJSON(t *testing.T) {
	s := newTestServer(t, newFakeStore(), &fakeDispatcher{})

	req := httptest.NewRequest(http.MethodPost, "/api/analysis/start", bytes.NewBufferString("{not json"))
	req.RemoteAddr = "127.0.0.1:12345"
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartAnalysis_DispatchFailure(t *testing.T) {
	store := newFakeStore()
	dispatcher := &fakeDispatcher{err: fmt.Errorf("workflow unreachable")}
	s := newTestServer(t, store, dispatcher)

	rec := doRequest(s, http.MethodPost, "/api/analysis/start", map[string]any{
		"jobTitle": "Backend Engineer",
	})

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	// the failure lands in the error log, not the audit trail
	require.Len(t, store.errorRecords, 1)
	assert.Equal(t, "webhook_dispatch", store.errorRecords[0].ErrorType)
	assert.Contains(t, store.errorRecords[0].Message, "workflow unreachable")
	assert.Empty(t, store.audits)
}

func TestAnalysisStatus_NotFound(t *testing.T) {
	s := newTestServer(t, newFakeStore(), &fakeDispatcher{})
	rec := doRequest(s, http.MethodGet, "/api/analysis/status/REQ-1-abcdefghi", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnalysisStatus_CompletedNormalizesProgress(t *testing.T) {
	store := newFakeStore()
	store.jobs["REQ-1-abcdefghi"] = &db.AnalysisJob{
		RequirementID: "REQ-1-abcdefghi",
		JobTitle:      "Backend Engineer",
		Status:        db.JobStatusCompleted,
		Progress:      80, // stale write left behind by the workflow
	}
	store.summaries["REQ-1-abcdefghi"] = &db.AnalysisSummary{TopScore: 91}
	s := newTestServer(t, store, &fakeDispatcher{})

	rec := doRequest(s, http.MethodGet, "/api/analysis/status/REQ-1-abcdefghi", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(100), body["progress"])
	assert.NotNil(t, body["summary"])
	assert.Equal(t, false, body["canRetry"])
}

func TestAnalysisStatus_ErrorIncludesRetryAndRecentError(t *testing.T) {
	msg := "workflow timeout"
	store := newFakeStore()
	store.jobs["REQ-2-abcdefghi"] = &db.AnalysisJob{
		RequirementID: "REQ-2-abcdefghi",
		Status:        db.JobStatusError,
		ErrorMessage:  &msg,
		RetryAttempts: 2,
	}
	store.latestErrors["REQ-2-abcdefghi"] = &db.ErrorLogEntry{ErrorType: "timeout"}
	s := newTestServer(t, store, &fakeDispatcher{})

	rec := doRequest(s, http.MethodGet, "/api/analysis/status/REQ-2-abcdefghi", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["canRetry"])
	assert.Equal(t, "workflow timeout", body["errorMessage"])
	assert.NotNil(t, body["recentError"])
}

func TestAnalysisStatus_StaleProcessing(t *testing.T) {
	store := newFakeStore()
	store.jobs["REQ-3-abcdefghi"] = &db.AnalysisJob{
		RequirementID: "REQ-3-abcdefghi",
		Status:        db.JobStatusProcessing,
		Progress:      40,
		UpdatedAt:     time.Now().Add(-30 * time.Minute),
	}
	s := newTestServer(t, store, &fakeDispatcher{})

	rec := doRequest(s, http.MethodGet, "/api/analysis/status/REQ-3-abcdefghi", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["isStale"])
	assert.Equal(t, float64(40), body["progress"])
}

func TestAnalysisResults_NotReady(t *testing.T) {
	store := newFakeStore()
	store.jobs["REQ-4-abcdefghi"] = &db.AnalysisJob{
		RequirementID: "REQ-4-abcdefghi",
		Status:        db.JobStatusProcessing,
	}
	s := newTestServer(t, store, &fakeDispatcher{})

	rec := doRequest(s, http.MethodGet, "/api/analysis/results/REQ-4-abcdefghi", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalysisResults_Success(t *testing.T) {
	store := newFakeStore()
	store.jobs["REQ-5-abcdefghi"] = &db.AnalysisJob{
		RequirementID: "REQ-5-abcdefghi",
		JobTitle:      "Backend Engineer",
		Status:        db.JobStatusCompleted,
	}
	store.summaries["REQ-5-abcdefghi"] = &db.AnalysisSummary{TotalCandidates: 2}
	store.evaluations["REQ-5-abcdefghi"] = []db.CandidateResult{
		{CandidateID: "c1", CandidateName: "Dana", OverallScore: 88},
		{CandidateID: "c2", CandidateName: "Sam", OverallScore: 55},
	}
	s := newTestServer(t, store, &fakeDispatcher{})

	rec := doRequest(s, http.MethodGet, "/api/analysis/results/REQ-5-abcdefghi?minScore=70", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	candidates := body["candidates"].([]any)
	require.Len(t, candidates, 1)
	assert.NotNil(t, body["summary"])
	assert.NotNil(t, body["pagination"])
}

func TestAnalysisResults_BadQueryParams(t *testing.T) {
	store := newFakeStore()
	store.jobs["REQ-6-abcdefghi"] = &db.AnalysisJob{
		RequirementID: "REQ-6-abcdefghi",
		Status:        db.JobStatusCompleted,
	}
	s := newTestServer(t, store, &fakeDispatcher{})

	for _, path := range []string{
		"/api/analysis/results/REQ-6-abcdefghi?minScore=200",
		"/api/analysis/results/REQ-6-abcdefghi?minScore=abc",
		"/api/analysis/results/REQ-6-abcdefghi?sort=sneaky",
		"/api/analysis/results/REQ-6-abcdefghi?page=0",
	} {
		rec := doRequest(s, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestGetCandidate(t *testing.T) {
	store := newFakeStore()
	store.candidates["c1"] = &db.Candidate{CandidateID: "c1", Name: "Dana"}
	store.evaluations["job-1"] = []db.CandidateResult{{CandidateID: "c1", OverallScore: 80}}
	s := newTestServer(t, store, &fakeDispatcher{})

	rec := doRequest(s, http.MethodGet, "/api/candidates/c1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.NotNil(t, body["candidate"])
	assert.Len(t, body["evaluations"].([]any), 1)

	rec = doRequest(s, http.MethodGet, "/api/candidates/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func scheduleBody() map[string]any {
	return map[string]any{
		"job_id":            "job-1",
		"candidate_id":      "c1",
		"scheduled_at":      time.Now().Add(24 * time.Hour).Format(time.RFC3339),
		"interviewer_email": "interviewer@example.com",
	}
}

func TestCreateInterview_Success(t *testing.T) {
	store := newFakeStore()
	s := newTestServer(t, store, &fakeDispatcher{})

	rec := doRequest(s, http.MethodPost, "/api/interviews", scheduleBody())
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "scheduled", body["status"])
	assert.Equal(t, float64(60), body["duration_minutes"])
	assert.Equal(t, "technical", body["interview_type"])
	require.Len(t, store.audits, 1)
	assert.Equal(t, "interview_scheduled", store.audits[0].action)
}

func TestCreateInterview_PastTimeRejected(t *testing.T) {
	s := newTestServer(t, newFakeStore(), &fakeDispatcher{})

	body := scheduleBody()
	body["scheduled_at"] = time.Now().Add(-time.Hour).Format(time.RFC3339)
	rec := doRequest(s, http.MethodPost, "/api/interviews", body)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateInterview_CompletionCreatesFeedback(t *testing.T) {
	store := newFakeStore()
	s := newTestServer(t, store, &fakeDispatcher{})

	created, err := store.CreateInterview(context.Background(), db.NewInterview{
		JobID: "job-1", CandidateID: "c1",
		ScheduledAt:      time.Now().Add(time.Hour).Format(time.RFC3339),
		InterviewerEmail: "interviewer@example.com",
	})
	require.NoError(t, err)

	rec := doRequest(s, http.MethodPut, "/api/interviews/"+created.InterviewID.String(), map[string]any{
		"status":         "completed",
		"feedback_score": 8,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, store.feedback, 1)
	assert.Equal(t, 8, store.feedback[0].Score)
}

func TestUpdateInterview_AuditsStatusDiff(t *testing.T) {
	store := newFakeStore()
	s := newTestServer(t, store, &fakeDispatcher{})

	created, err := store.CreateInterview(context.Background(), db.NewInterview{
		JobID: "job-1", CandidateID: "c1",
		ScheduledAt:      time.Now().Add(time.Hour).Format(time.RFC3339),
		InterviewerEmail: "interviewer@example.com",
	})
	require.NoError(t, err)

	rec := doRequest(s, http.MethodPut, "/api/interviews/"+created.InterviewID.String(), map[string]any{
		"status":         "completed",
		"feedback_score": 9,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, store.audits, 1)
	audit := store.audits[0]
	assert.Equal(t, "interview_updated", audit.action)
	assert.Equal(t, db.InterviewStatusScheduled, audit.details["previous_status"])
	assert.Equal(t, db.InterviewStatusCompleted, audit.details["new_status"])
	assert.ElementsMatch(t, []string{"status", "feedback_score"}, audit.details["fields"])
}

func TestUpdateInterview_FeedbackFailureDoesNotFailUpdate(t *testing.T) {
	store := newFakeStore()
	store.failFeedback = true
	s := newTestServer(t, store, &fakeDispatcher{})

	created, err := store.CreateInterview(context.Background(), db.NewInterview{
		JobID: "job-1", CandidateID: "c1",
		ScheduledAt:      time.Now().Add(time.Hour).Format(time.RFC3339),
		InterviewerEmail: "interviewer@example.com",
	})
	require.NoError(t, err)

	rec := doRequest(s, http.MethodPut, "/api/interviews/"+created.InterviewID.String(), map[string]any{
		"status":         "completed",
		"feedback_score": 7,
	})

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUpdateInterview_EmptyBodyRejected(t *testing.T) {
	s := newTestServer(t, newFakeStore(), &fakeDispatcher{})

	rec := doRequest(s, http.MethodPut, "/api/interviews/"+uuid.NewString(), map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteInterview_SoftCancel(t *testing.T) {
	store := newFakeStore()
	s := newTestServer(t, store, &fakeDispatcher{})

	created, err := store.CreateInterview(context.Background(), db.NewInterview{
		JobID: "job-1", CandidateID: "c1",
		ScheduledAt:      time.Now().Add(time.Hour).Format(time.RFC3339),
		InterviewerEmail: "interviewer@example.com",
	})
	require.NoError(t, err)

	rec := doRequest(s, http.MethodDelete, "/api/interviews/"+created.InterviewID.String(), map[string]any{
		"reason": "candidate withdrew",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	// row survives with cancelled status
	detail := store.interviews[created.InterviewID]
	assert.Equal(t, db.InterviewStatusCancelled, detail.Status)

	// the audit entry keeps the cancellation context
	require.Len(t, store.audits, 1)
	audit := store.audits[0]
	assert.Equal(t, "interview_cancelled", audit.action)
	assert.Equal(t, "job-1", audit.jobID)
	assert.Equal(t, "c1", audit.candidateID)
	assert.Equal(t, "candidate withdrew", audit.details["reason"])
	assert.Equal(t, db.InterviewStatusScheduled, audit.details["previous_status"])
	assert.NotNil(t, audit.details["previous_scheduled_time"])
}

func TestDeleteInterview_DefaultReason(t *testing.T) {
	store := newFakeStore()
	s := newTestServer(t, store, &fakeDispatcher{})

	created, err := store.CreateInterview(context.Background(), db.NewInterview{
		JobID: "job-1", CandidateID: "c1",
		ScheduledAt:      time.Now().Add(time.Hour).Format(time.RFC3339),
		InterviewerEmail: "interviewer@example.com",
	})
	require.NoError(t, err)

	rec := doRequest(s, http.MethodDelete, "/api/interviews/"+created.InterviewID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, store.audits, 1)
	assert.Equal(t, "No reason provided", store.audits[0].details["reason"])
}

func TestDeleteInterview_CompletedConflict(t *testing.T) {
	store := newFakeStore()
	s := newTestServer(t, store, &fakeDispatcher{})

	created, err := store.CreateInterview(context.Background(), db.NewInterview{
		JobID: "job-1", CandidateID: "c1",
		ScheduledAt:      time.Now().Add(time.Hour).Format(time.RFC3339),
		InterviewerEmail: "interviewer@example.com",
	})
	require.NoError(t, err)
	store.interviews[created.InterviewID].Status = db.InterviewStatusCompleted

	rec := doRequest(s, http.MethodDelete, "/api/interviews/"+created.InterviewID.String(), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, db.InterviewStatusCompleted, store.interviews[created.InterviewID].Status)
}

func TestDeleteInterview_NotFound(t *testing.T) {
	s := newTestServer(t, newFakeStore(), &fakeDispatcher{})

	rec := doRequest(s, http.MethodDelete, "/api/interviews/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(s, http.MethodDelete, "/api/interviews/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListInterviews(t *testing.T) {
	store := newFakeStore()
	s := newTestServer(t, store, &fakeDispatcher{})

	_, err := store.CreateInterview(context.Background(), db.NewInterview{
		JobID: "job-1", CandidateID: "c1",
		ScheduledAt:      time.Now().Add(time.Hour).Format(time.RFC3339),
		InterviewerEmail: "interviewer@example.com",
	})
	require.NoError(t, err)

	rec := doRequest(s, http.MethodGet, "/api/interviews?status=scheduled", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Len(t, body["interviews"].([]any), 1)

	// comma-separated statuses widen the filter
	rec = doRequest(s, http.MethodGet, "/api/interviews?status=scheduled,cancelled", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["interviews"].([]any), 1)

	rec = doRequest(s, http.MethodGet, "/api/interviews?status=cancelled", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["interviews"].([]any), 0)
}

func TestListAuditLogs(t *testing.T) {
	s := newTestServer(t, newFakeStore(), &fakeDispatcher{})

	rec := doRequest(s, http.MethodGet, "/api/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Len(t, body["logs"].([]any), 1)
}

func TestListAuditLogs_InternalErrorDetailOutsideProduction(t *testing.T) {
	store := newFakeStore()
	store.auditListErr = fmt.Errorf("connection reset by peer")
	s := newTestServer(t, store, &fakeDispatcher{})

	rec := doRequest(s, http.MethodGet, "/api/audit", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	// APP_ENV is unset in tests, so the underlying cause reaches the body
	assert.Contains(t, decodeBody(t, rec)["message"], "connection reset by peer")
}

func TestActivitySummary(t *testing.T) {
	store := newFakeStore()
	s := newTestServer(t, store, &fakeDispatcher{})
	store.LogAnalysisActivity(context.Background(), "analysis_started", "REQ-1-abcdefghi", "system", nil)

	rec := doRequest(s, http.MethodGet, "/api/audit/summary?days=30", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(30), body["days"])
	summary := body["summary"].(map[string]any)
	assert.Equal(t, float64(1), summary["analysis_started"])

	rec = doRequest(s, http.MethodGet, "/api/audit/summary?days=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListErrorLogs_SearchFilterPassedThrough(t *testing.T) {
	store := newFakeStore()
	s := newTestServer(t, store, &fakeDispatcher{})

	rec := doRequest(s, http.MethodGet, "/api/errors?search=timeout", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "timeout", store.lastErrorFilter.Search)
}

func TestListErrorLogs_BadResolvedParam(t *testing.T) {
	s := newTestServer(t, newFakeStore(), &fakeDispatcher{})

	rec := doRequest(s, http.MethodGet, "/api/errors?resolved=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(s, http.MethodGet, "/api/errors?resolved=true", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestResolveError(t *testing.T) {
	s := newTestServer(t, newFakeStore(), &fakeDispatcher{})

	rec := doRequest(s, http.MethodPost, "/api/errors/"+uuid.NewString()+"/resolve", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["resolved"])

	// zero UUID signals "already resolved" in the fake
	rec = doRequest(s, http.MethodPost, "/api/errors/00000000-0000-0000-0000-000000000000/resolve", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSPreflights(t *testing.T) {
	s := newTestServer(t, newFakeStore(), &fakeDispatcher{})

	req := httptest.NewRequest(http.MethodOptions, "/api/interviews", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
