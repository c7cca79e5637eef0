package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartAnalysisRequest_TitleMode(t *testing.T) {
	r := StartAnalysisRequest{JobTitle: "Backend Engineer"}
	require.NoError(t, r.Validate())
	assert.Equal(t, DefaultExperienceLevel, r.ExperienceLevel)
}

func TestStartAnalysisRequest_TrimsTitleAndDescription(t *testing.T) {
	r := StartAnalysisRequest{JobTitle: "  Backend Engineer  ", JobDescription: "  ships Go services  "}
	require.NoError(t, r.Validate())
	assert.Equal(t, "Backend Engineer", r.JobTitle)
	assert.Equal(t, "ships Go services", r.JobDescription)

	// padding cannot carry a too-short title past the minimum
	r = StartAnalysisRequest{JobTitle: "  Go  "}
	assert.Error(t, r.Validate())
}

func TestStartAnalysisRequest_TitleTooShort(t *testing.T) {
	r := StartAnalysisRequest{JobTitle: "Go"}
	assert.Error(t, r.Validate())
}

func TestStartAnalysisRequest_TitleRequired(t *testing.T) {
	r := StartAnalysisRequest{}
	assert.Error(t, r.Validate())
}

func TestStartAnalysisRequest_DescriptionMode(t *testing.T) {
	longDesc := "We are hiring a backend engineer with strong Go and PostgreSQL experience to build our screening platform."

	r := StartAnalysisRequest{InputType: "description", JobDescription: longDesc}
	assert.NoError(t, r.Validate())

	// description mode needs at least 50 characters
	r = StartAnalysisRequest{InputType: "description", JobDescription: "too short"}
	assert.Error(t, r.Validate())
}

func TestStartAnalysisRequest_ExperienceLevel(t *testing.T) {
	r := StartAnalysisRequest{JobTitle: "Backend Engineer", ExperienceLevel: "senior"}
	assert.NoError(t, r.Validate())

	r = StartAnalysisRequest{JobTitle: "Backend Engineer", ExperienceLevel: "principal"}
	assert.Error(t, r.Validate())
}

func validScheduleRequest() ScheduleInterviewRequest {
	return ScheduleInterviewRequest{
		JobID:            "job-1",
		CandidateID:      "cand-1",
		ScheduledAt:      time.Now().Add(24 * time.Hour),
		InterviewerEmail: "interviewer@example.com",
	}
}

func TestScheduleInterviewRequest_Defaults(t *testing.T) {
	r := validScheduleRequest()
	require.NoError(t, r.Validate())
	assert.Equal(t, DefaultInterviewMinutes, r.DurationMinutes)
	assert.Equal(t, InterviewTypeTechnical, r.InterviewType)
}

func TestScheduleInterviewRequest_RejectsPastAndPresent(t *testing.T) {
	r := validScheduleRequest()
	r.ScheduledAt = time.Now().Add(-time.Hour)
	assert.Error(t, r.Validate())

	r = validScheduleRequest()
	r.ScheduledAt = time.Now().Add(-time.Nanosecond)
	assert.Error(t, r.Validate())
}

func TestScheduleInterviewRequest_RequiredFields(t *testing.T) {
	r := validScheduleRequest()
	r.JobID = ""
	assert.Error(t, r.Validate())

	r = validScheduleRequest()
	r.CandidateID = ""
	assert.Error(t, r.Validate())

	r = validScheduleRequest()
	r.InterviewerEmail = "not-an-email"
	assert.Error(t, r.Validate())
}

func TestScheduleInterviewRequest_DurationBounds(t *testing.T) {
	r := validScheduleRequest()
	r.DurationMinutes = 14
	assert.Error(t, r.Validate())

	r = validScheduleRequest()
	r.DurationMinutes = 15
	assert.NoError(t, r.Validate())

	r = validScheduleRequest()
	r.DurationMinutes = 480
	assert.NoError(t, r.Validate())

	r = validScheduleRequest()
	r.DurationMinutes = 481
	assert.Error(t, r.Validate())
}

func TestScheduleInterviewRequest_TypeAndLink(t *testing.T) {
	r := validScheduleRequest()
	r.InterviewType = "trial_day"
	assert.Error(t, r.Validate())

	r = validScheduleRequest()
	r.MeetingLink = "not a url"
	assert.Error(t, r.Validate())

	r = validScheduleRequest()
	r.MeetingLink = "https://meet.example.com/abc"
	assert.NoError(t, r.Validate())
}

func TestUpdateInterviewRequest_RequiresAField(t *testing.T) {
	r := UpdateInterviewRequest{}
	assert.Error(t, r.Validate())
}

func TestUpdateInterviewRequest_FeedbackScoreBounds(t *testing.T) {
	zero, eleven, five := 0, 11, 5

	r := UpdateInterviewRequest{FeedbackScore: &five}
	assert.NoError(t, r.Validate())

	r = UpdateInterviewRequest{FeedbackScore: &zero}
	assert.Error(t, r.Validate())

	r = UpdateInterviewRequest{FeedbackScore: &eleven}
	assert.Error(t, r.Validate())
}

func TestUpdateInterviewRequest_StatusEnum(t *testing.T) {
	good := "cancelled"
	bad := "paused"

	r := UpdateInterviewRequest{Status: &good}
	assert.NoError(t, r.Validate())

	r = UpdateInterviewRequest{Status: &bad}
	assert.Error(t, r.Validate())
}

func TestUpdateInterviewRequest_Updates(t *testing.T) {
	score := 8
	status := "completed"
	r := UpdateInterviewRequest{Status: &status, FeedbackScore: &score}

	u := r.Updates()
	assert.Equal(t, map[string]any{"status": "completed", "feedback_score": 8}, u)
}
