package db

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Analysis job status values. Status is mutated only by the external
// evaluator; this layer reads it.
const (
	JobStatusSubmitted  = "submitted"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusError      = "error"
)

// Interview status values.
const (
	InterviewStatusScheduled = "scheduled"
	InterviewStatusCompleted = "completed"
	InterviewStatusCancelled = "cancelled"
	InterviewStatusNoShow    = "no_show"
)

// maxRetryAttempts caps retry eligibility surfaced by the status endpoint.
const maxRetryAttempts = 3

// staleProcessingAfter marks a processing job as stale when no update has
// arrived for this long. Surfaced as metadata only; the caller decides.
const staleProcessingAfter = 15 * time.Minute

// AnalysisJob is one resume-screening request, tracked by requirement_id.
type AnalysisJob struct {
	RequirementID       string     `json:"requirement_id"`
	JobTitle            string     `json:"job_title"`
	JobDescription      string     `json:"job_description,omitempty"`
	InputType           string     `json:"input_type,omitempty"`
	ExperienceLevel     string     `json:"experience_level"`
	Status              string     `json:"status"`
	Progress            int        `json:"progress"`
	CurrentStep         string     `json:"current_step,omitempty"`
	TotalCandidates     int        `json:"total_candidates"`
	EvaluatedCandidates int        `json:"evaluated_candidates"`
	SkippedCandidates   int        `json:"skipped_candidates"`
	EstimatedTime       string     `json:"estimated_time,omitempty"`
	RetryAttempts       int        `json:"retry_attempts"`
	ErrorMessage        *string    `json:"error_message,omitempty"`
	LastErrorID         *uuid.UUID `json:"last_error_id,omitempty"`
	CreatedBy           string     `json:"created_by,omitempty"`
	SubmittedAt         time.Time  `json:"submitted_at"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// EffectiveProgress forces 100 for completed jobs regardless of the stored
// value. Normalization against stale writes happens at read time; the stored
// row is never corrected.
func (j *AnalysisJob) EffectiveProgress() int {
	if j.Status == JobStatusCompleted {
		return 100
	}
	return j.Progress
}

// CanRetry reports retry eligibility. Enforcement of the ceiling belongs to
// whoever triggers the retry, not this layer.
func (j *AnalysisJob) CanRetry() bool {
	return j.Status == JobStatusError && j.RetryAttempts < maxRetryAttempts
}

// IsStale reports whether a processing job has gone quiet for over 15 minutes.
func (j *AnalysisJob) IsStale(now time.Time) bool {
	return j.Status == JobStatusProcessing && now.Sub(j.UpdatedAt) > staleProcessingAfter
}

// Candidate is a person evaluated against one or more jobs. Rows are created
// by the external evaluator; read-only here.
type Candidate struct {
	CandidateID string    `json:"candidate_id"`
	Name        string    `json:"candidate_name"`
	Email       *string   `json:"email,omitempty"`
	Phone       *string   `json:"phone,omitempty"`
	CurrentRole *string   `json:"current_role,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// CandidateResult joins a candidate with its evaluation for one job, with
// every nested JSON field normalized to structured form.
type CandidateResult struct {
	CandidateID     string  `json:"candidate_id"`
	CandidateName   string  `json:"candidate_name"`
	Email           *string `json:"email,omitempty"`
	Phone           *string `json:"phone,omitempty"`
	CurrentRole     *string `json:"current_role,omitempty"`
	EvaluationID    int64   `json:"evaluation_id"`
	OverallScore    int     `json:"overall_score"`
	TechnicalScore  int     `json:"technical_score"`
	ExperienceScore int     `json:"experience_score"`
	SoftSkillsScore int     `json:"soft_skills_score"`
	CulturalFit     int     `json:"cultural_fit_score"`
	Recommendation  string  `json:"recommendation"`
	Justification   string  `json:"score_justification,omitempty"`

	Strengths       StringList `json:"strengths"`
	Concerns        StringList `json:"concerns"`
	InterviewFocus  StringList `json:"interview_focus"`
	PersonaAnalysis JSONMap    `json:"candidate_persona_analysis,omitempty"`
	TechAssessment  JSONMap    `json:"technical_assessment,omitempty"`

	// RiskLevel comes from persona risk_profile.level, defaulting to
	// "medium" when the path is absent.
	RiskLevel string `json:"risk_level"`
	// KeyStrengths holds the top 3 strengths for summary display.
	KeyStrengths []string `json:"key_strengths"`

	HRRecommendation *string   `json:"hr_recommendation,omitempty"`
	DevPotential     *string   `json:"development_potential,omitempty"`
	EvaluatedAt      time.Time `json:"evaluated_at"`
}

// EvaluationUpsert carries the writable columns of one evaluation. The
// (job, candidate) pair is the conflict key; a second write replaces scores.
type EvaluationUpsert struct {
	JobID           string
	CandidateID     string
	OverallScore    int
	TechnicalScore  int
	ExperienceScore int
	SoftSkillsScore int
	CulturalFit     int
	Recommendation  string
	Justification   string
	Strengths       []string
	Concerns        []string
	InterviewFocus  []string
	PersonaAnalysis map[string]any
	TechAssessment  map[string]any
}

// AnalysisSummary is the aggregate statistics row the evaluator writes per job.
type AnalysisSummary struct {
	SummaryID        int64      `json:"summary_id"`
	JobID            string     `json:"job_id"`
	TotalCandidates  int        `json:"total_candidates"`
	AverageScore     float64    `json:"average_score"`
	TopScore         int        `json:"top_score"`
	RecommendedCount int        `json:"recommended_count"`
	SummaryText      *string    `json:"summary_text,omitempty"`
	Distribution     JSONMap    `json:"score_distribution,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`
}

// JobRequirements is the evaluator's parsed view of the role's requirements.
type JobRequirements struct {
	RequirementRowID int64      `json:"requirement_row_id"`
	JobID            string     `json:"job_id"`
	Technical        StringList `json:"technical_requirements"`
	SoftSkills       StringList `json:"soft_skills"`
	IdealPersonas    JSONMap    `json:"ideal_candidate_personas,omitempty"`
	ScoringWeights   JSONMap    `json:"scoring_weights,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// InterviewSchedule is one scheduled interview for a candidate within a job.
type InterviewSchedule struct {
	InterviewID      uuid.UUID  `json:"interview_id"`
	JobID            string     `json:"job_id"`
	CandidateID      string     `json:"candidate_id"`
	ScheduledAt      time.Time  `json:"scheduled_at"`
	DurationMinutes  int        `json:"duration_minutes"`
	InterviewType    string     `json:"interview_type"`
	InterviewerEmail string     `json:"interviewer_email"`
	MeetingLink      *string    `json:"meeting_link,omitempty"`
	Status           string     `json:"status"`
	Notes            *string    `json:"notes,omitempty"`
	FeedbackScore    *int       `json:"feedback_score,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`
}

// InterviewDetail is an interview joined with candidate, job, and evaluation
// context for the GET endpoint.
type InterviewDetail struct {
	InterviewSchedule
	CandidateName        *string            `json:"candidate_name,omitempty"`
	CandidateEmail       *string            `json:"candidate_email,omitempty"`
	CandidatePhone       *string            `json:"candidate_phone,omitempty"`
	CandidateCurrentRole *string            `json:"candidate_current_role,omitempty"`
	JobTitle             *string            `json:"job_title,omitempty"`
	JobStatus            *string            `json:"job_status,omitempty"`
	ExperienceLevel      *string            `json:"experience_level,omitempty"`
	OverallScore         *int               `json:"overall_score,omitempty"`
	Recommendation       *string            `json:"recommendation,omitempty"`
	Feedback             *InterviewFeedback `json:"feedback,omitempty"`
	History              []AuditLogEntry    `json:"history,omitempty"`
}

// InterviewFeedback is the record created when an interview completes with a
// feedback score.
type InterviewFeedback struct {
	FeedbackID       uuid.UUID  `json:"feedback_id"`
	InterviewID      uuid.UUID  `json:"interview_id"`
	Score            int        `json:"score"`
	Strengths        StringList `json:"strengths"`
	Weaknesses       StringList `json:"weaknesses"`
	Recommendation   *string    `json:"recommendation,omitempty"`
	Notes            *string    `json:"notes,omitempty"`
	InterviewerEmail string     `json:"interviewer_email"`
	CreatedAt        time.Time  `json:"created_at"`
}

// AuditLogEntry is one append-only record of a state-changing action.
type AuditLogEntry struct {
	LogID         int64     `json:"log_id"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	JobID         *string   `json:"job_id,omitempty"`
	CandidateID   *string   `json:"candidate_id,omitempty"`
	UserID        string    `json:"user_id"`
	IPAddress     *string   `json:"ip_address,omitempty"`
	UserAgent     *string   `json:"user_agent,omitempty"`
	Details       JSONMap   `json:"details,omitempty"`
	CandidateName *string   `json:"candidate_name,omitempty"`
	JobTitle      *string   `json:"job_title,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// ErrorLogEntry is one structured failure record, resolvable after the fact.
type ErrorLogEntry struct {
	ErrorID       uuid.UUID  `json:"error_id"`
	RequirementID *string    `json:"requirement_id,omitempty"`
	CandidateID   *string    `json:"candidate_id,omitempty"`
	ErrorType     string     `json:"error_type"`
	ErrorSeverity string     `json:"error_severity"`
	ErrorMessage  string     `json:"error_message"`
	ErrorDetails  JSONMap    `json:"error_details,omitempty"`
	WorkflowStep  *string    `json:"workflow_step,omitempty"`
	NodeName      *string    `json:"node_name,omitempty"`
	UserMessage   *string    `json:"user_message,omitempty"`
	Resolved      bool       `json:"resolved"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	JobTitle      *string    `json:"job_title,omitempty"`
	CandidateName *string    `json:"candidate_name,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// StringList normalizes the "maybe text, maybe structured" JSONB shapes the
// evaluator writes for list fields. Accepted encodings:
//   - a JSON array of strings
//   - an object with a "list" key holding the array
//   - a JSON string containing either of the above
//   - a bare string (becomes a single-element list)
//
// Every representation decodes to a plain []string; unknown shapes decode to
// an empty list rather than failing the whole row.
type StringList []string

// UnmarshalJSON implements the tagged-union decode at the storage boundary.
func (s *StringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = nil
		return nil
	}

	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		*s = arr
		return nil
	}

	var wrapped struct {
		List []string `json:"list"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.List != nil {
		*s = wrapped.List
		return nil
	}

	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		inner := StringList{}
		if err := inner.UnmarshalJSON([]byte(text)); err == nil && len(inner) > 0 {
			*s = inner
			return nil
		}
		if text != "" {
			*s = StringList{text}
			return nil
		}
	}

	*s = StringList{}
	return nil
}

// MarshalJSON always emits a JSON array, never null.
func (s StringList) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(s))
}

// Top returns at most n leading entries.
func (s StringList) Top(n int) []string {
	if len(s) <= n {
		return []string(s)
	}
	return []string(s[:n])
}

// JSONMap normalizes object-valued JSONB fields that may arrive either as
// structured data or as a JSON-encoded string.
type JSONMap map[string]any

// UnmarshalJSON decodes either representation into a map; unknown shapes
// decode to nil rather than failing the row.
func (m *JSONMap) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*m = nil
		return nil
	}

	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err == nil {
		*m = obj
		return nil
	}

	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		var inner map[string]any
		if err := json.Unmarshal([]byte(text), &inner); err == nil {
			*m = inner
			return nil
		}
	}

	*m = nil
	return nil
}

// String digs a nested string value out of the map, or returns fallback.
func (m JSONMap) String(fallback string, path ...string) string {
	cur := any(map[string]any(m))
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return fallback
		}
		cur, ok = obj[key]
		if !ok {
			return fallback
		}
	}
	if s, ok := cur.(string); ok && s != "" {
		return s
	}
	return fallback
}
