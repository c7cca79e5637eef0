// Package types provides request and response definitions shared by the
// resume-screener API handlers.
package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Experience levels accepted for an analysis request.
const (
	ExperienceEntry     = "entry"
	ExperienceMid       = "mid"
	ExperienceSenior    = "senior"
	ExperienceLead      = "lead"
	ExperienceExecutive = "executive"
)

// DefaultExperienceLevel applies when a request omits the level.
const DefaultExperienceLevel = ExperienceMid

// StartAnalysisRequest represents the request to start a resume screening run.
// With input_type "description" the title may be omitted and the description
// carries the role; otherwise the title is required. Caller identity travels
// in the X-User-Id header, not the body.
type StartAnalysisRequest struct {
	JobTitle        string `json:"jobTitle" validate:"omitempty,min=3,max=200"`
	JobDescription  string `json:"jobDescription" validate:"omitempty,max=20000"`
	InputType       string `json:"inputType" validate:"omitempty,oneof=title description"`
	ExperienceLevel string `json:"experienceLevel" validate:"omitempty,oneof=entry mid senior lead executive"`
}

// Validate normalizes the StartAnalysisRequest and applies defaults. Title and
// description are trimmed before the length rules run, so padded input cannot
// sneak past the minimums or reach the dispatched payload.
func (r *StartAnalysisRequest) Validate() error {
	r.JobTitle = strings.TrimSpace(r.JobTitle)
	r.JobDescription = strings.TrimSpace(r.JobDescription)
	if r.ExperienceLevel == "" {
		r.ExperienceLevel = DefaultExperienceLevel
	}
	if r.InputType == "description" {
		if len(r.JobDescription) < 50 {
			return fmt.Errorf("jobDescription must be at least 50 characters when inputType is description")
		}
	} else if len(r.JobTitle) < 3 {
		return fmt.Errorf("jobTitle is required and must be at least 3 characters")
	}
	validate := validator.New()
	return validate.Struct(r)
}

// Interview types accepted by the scheduler.
const (
	InterviewTypeTechnical  = "technical"
	InterviewTypeBehavioral = "behavioral"
	InterviewTypeVideo      = "video"
	InterviewTypePhone      = "phone"
	InterviewTypeHR         = "hr"
	InterviewTypeFinal      = "final"
)

// Interview scheduling bounds.
const (
	MinInterviewMinutes     = 15
	MaxInterviewMinutes     = 480
	DefaultInterviewMinutes = 60
)

// ScheduleInterviewRequest represents the request to schedule an interview.
type ScheduleInterviewRequest struct {
	JobID            string    `json:"job_id" validate:"required"`
	CandidateID      string    `json:"candidate_id" validate:"required"`
	ScheduledAt      time.Time `json:"scheduled_at" validate:"required"`
	DurationMinutes  int       `json:"duration_minutes" validate:"omitempty,min=15,max=480"`
	InterviewType    string    `json:"interview_type" validate:"omitempty,oneof=technical behavioral video phone hr final"`
	InterviewerEmail string    `json:"interviewer_email" validate:"required,email"`
	MeetingLink      string    `json:"meeting_link" validate:"omitempty,url"`
	Notes            string    `json:"notes" validate:"omitempty,max=1000"`
}

// Validate validates the ScheduleInterviewRequest and applies defaults. The
// scheduled time must be strictly in the future; a timestamp equal to now is
// rejected.
func (r *ScheduleInterviewRequest) Validate() error {
	if r.DurationMinutes == 0 {
		r.DurationMinutes = DefaultInterviewMinutes
	}
	if r.InterviewType == "" {
		r.InterviewType = InterviewTypeTechnical
	}
	validate := validator.New()
	if err := validate.Struct(r); err != nil {
		return err
	}
	if !r.ScheduledAt.After(time.Now()) {
		return fmt.Errorf("scheduled_at must be in the future")
	}
	return nil
}

// UpdateInterviewRequest represents a partial interview update. Every field
// is optional; only the provided ones are applied.
type UpdateInterviewRequest struct {
	ScheduledAt      *time.Time `json:"scheduled_at,omitempty"`
	DurationMinutes  *int       `json:"duration_minutes,omitempty" validate:"omitempty,min=15,max=480"`
	InterviewType    *string    `json:"interview_type,omitempty" validate:"omitempty,oneof=technical behavioral video phone hr final"`
	InterviewerEmail *string    `json:"interviewer_email,omitempty" validate:"omitempty,email"`
	MeetingLink      *string    `json:"meeting_link,omitempty" validate:"omitempty,url"`
	Status           *string    `json:"status,omitempty" validate:"omitempty,oneof=scheduled completed cancelled no_show"`
	Notes            *string    `json:"notes,omitempty" validate:"omitempty,max=1000"`
	FeedbackScore    *int       `json:"feedback_score,omitempty" validate:"omitempty,min=1,max=10"`
}

// Validate validates the UpdateInterviewRequest.
func (r *UpdateInterviewRequest) Validate() error {
	validate := validator.New()
	if err := validate.Struct(r); err != nil {
		return err
	}
	if r.ScheduledAt == nil && r.DurationMinutes == nil && r.InterviewType == nil &&
		r.InterviewerEmail == nil && r.MeetingLink == nil && r.Status == nil &&
		r.Notes == nil && r.FeedbackScore == nil {
		return fmt.Errorf("at least one field must be provided")
	}
	return nil
}

// Updates flattens the set fields into a column map for the store layer.
func (r *UpdateInterviewRequest) Updates() map[string]any {
	u := make(map[string]any)
	if r.ScheduledAt != nil {
		u["scheduled_at"] = *r.ScheduledAt
	}
	if r.DurationMinutes != nil {
		u["duration_minutes"] = *r.DurationMinutes
	}
	if r.InterviewType != nil {
		u["interview_type"] = *r.InterviewType
	}
	if r.InterviewerEmail != nil {
		u["interviewer_email"] = *r.InterviewerEmail
	}
	if r.MeetingLink != nil {
		u["meeting_link"] = *r.MeetingLink
	}
	if r.Status != nil {
		u["status"] = *r.Status
	}
	if r.Notes != nil {
		u["notes"] = *r.Notes
	}
	if r.FeedbackScore != nil {
		u["feedback_score"] = *r.FeedbackScore
	}
	return u
}
