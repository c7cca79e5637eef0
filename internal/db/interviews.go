package db

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// interviewUpdateColumns is the allow-list for PATCH-style updates. Anything
// outside this set is silently dropped, so callers can pass request maps
// straight through.
var interviewUpdateColumns = map[string]bool{
	"scheduled_at":      true,
	"duration_minutes":  true,
	"interview_type":    true,
	"interviewer_email": true,
	"meeting_link":      true,
	"status":            true,
	"notes":             true,
	"feedback_score":    true,
}

const interviewHistoryLimit = 10

// NewInterview carries the fields for scheduling one interview.
type NewInterview struct {
	JobID            string
	CandidateID      string
	ScheduledAt      string // RFC 3339; validated upstream
	DurationMinutes  int
	InterviewType    string
	InterviewerEmail string
	MeetingLink      string
	Notes            string
}

// CreateInterview schedules an interview and returns the stored row.
func (db *DB) CreateInterview(ctx context.Context, in NewInterview) (*InterviewSchedule, error) {
	row := db.QueryRow(ctx,
		`INSERT INTO interview_schedules
		   (interview_id, job_id, candidate_id, scheduled_at, duration_minutes,
		    interview_type, interviewer_email, meeting_link, status, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, NULLIF($10, ''))
		 RETURNING interview_id, job_id, candidate_id, scheduled_at,
		           duration_minutes, interview_type, interviewer_email,
		           meeting_link, status, notes, feedback_score, created_at,
		           updated_at`,
		uuid.New(), in.JobID, in.CandidateID, in.ScheduledAt,
		in.DurationMinutes, in.InterviewType, in.InterviewerEmail,
		in.MeetingLink, InterviewStatusScheduled, in.Notes)
	s, err := scanInterview(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create interview: %w", err)
	}
	return s, nil
}

func scanInterview(row interface{ Scan(...any) error }) (*InterviewSchedule, error) {
	var s InterviewSchedule
	err := row.Scan(&s.InterviewID, &s.JobID, &s.CandidateID, &s.ScheduledAt,
		&s.DurationMinutes, &s.InterviewType, &s.InterviewerEmail,
		&s.MeetingLink, &s.Status, &s.Notes, &s.FeedbackScore, &s.CreatedAt,
		&s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetInterview retrieves one interview joined with candidate, job, and
// evaluation context. Completed interviews with a feedback score also carry
// the feedback record and the recent audit history. Returns nil when no
// interview matches.
func (db *DB) GetInterview(ctx context.Context, interviewID uuid.UUID) (*InterviewDetail, error) {
	var d InterviewDetail
	err := db.QueryRow(ctx,
		`SELECT i.interview_id, i.job_id, i.candidate_id, i.scheduled_at,
		        i.duration_minutes, i.interview_type, i.interviewer_email,
		        i.meeting_link, i.status, i.notes, i.feedback_score,
		        i.created_at, i.updated_at,
		        c.candidate_name, c.email, c.phone, c.current_role,
		        aj.job_title, aj.status, aj.experience_level,
		        ce.overall_score, ce.recommendation
		 FROM interview_schedules i
		 LEFT JOIN candidates c ON i.candidate_id = c.candidate_id
		 LEFT JOIN analysis_jobs aj ON i.job_id = aj.requirement_id
		 LEFT JOIN candidate_evaluations ce
		   ON i.job_id = ce.job_id AND i.candidate_id = ce.candidate_id
		 WHERE i.interview_id = $1`,
		interviewID,
	).Scan(&d.InterviewID, &d.JobID, &d.CandidateID, &d.ScheduledAt,
		&d.DurationMinutes, &d.InterviewType, &d.InterviewerEmail,
		&d.MeetingLink, &d.Status, &d.Notes, &d.FeedbackScore,
		&d.CreatedAt, &d.UpdatedAt,
		&d.CandidateName, &d.CandidateEmail, &d.CandidatePhone,
		&d.CandidateCurrentRole, &d.JobTitle, &d.JobStatus,
		&d.ExperienceLevel, &d.OverallScore, &d.Recommendation)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get interview: %w", err)
	}

	if d.Status == InterviewStatusCompleted && d.FeedbackScore != nil {
		fb, err := db.getInterviewFeedback(ctx, interviewID)
		if err != nil {
			return nil, err
		}
		d.Feedback = fb
	}

	history, err := db.GetInterviewHistory(ctx, interviewID, interviewHistoryLimit)
	if err != nil {
		return nil, err
	}
	d.History = history

	return &d, nil
}

func (db *DB) getInterviewFeedback(ctx context.Context, interviewID uuid.UUID) (*InterviewFeedback, error) {
	var fb InterviewFeedback
	var strengthsJSON, weaknessesJSON []byte
	err := db.QueryRow(ctx,
		`SELECT feedback_id, interview_id, score, strengths, weaknesses,
		        recommendation, notes, interviewer_email, created_at
		 FROM interview_feedback
		 WHERE interview_id = $1
		 ORDER BY created_at DESC
		 LIMIT 1`,
		interviewID,
	).Scan(&fb.FeedbackID, &fb.InterviewID, &fb.Score, &strengthsJSON,
		&weaknessesJSON, &fb.Recommendation, &fb.Notes,
		&fb.InterviewerEmail, &fb.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get interview feedback: %w", err)
	}
	_ = fb.Strengths.UnmarshalJSON(strengthsJSON)
	_ = fb.Weaknesses.UnmarshalJSON(weaknessesJSON)
	return &fb, nil
}

// UpdateInterview applies the allow-listed fields in updates and returns the
// updated row along with the status it had before the update, or nil when the
// interview does not exist. Unknown keys are dropped; an update with no
// recognized field is rejected. The prior status feeds the audit diff.
func (db *DB) UpdateInterview(ctx context.Context, interviewID uuid.UUID, updates map[string]any) (*InterviewSchedule, string, error) {
	cols := make([]string, 0, len(updates))
	for col := range updates {
		if interviewUpdateColumns[col] {
			cols = append(cols, col)
		}
	}
	if len(cols) == 0 {
		return nil, "", fmt.Errorf("no updatable fields provided")
	}
	sort.Strings(cols)

	var priorStatus string
	err := db.QueryRow(ctx,
		`SELECT status FROM interview_schedules WHERE interview_id = $1`,
		interviewID).Scan(&priorStatus)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("failed to get interview status: %w", err)
	}

	setClauses := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols)+1)
	for i, col := range cols {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", col, i+1))
		args = append(args, updates[col])
	}
	setClauses = append(setClauses, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, interviewID)

	row := db.QueryRow(ctx, fmt.Sprintf(
		`UPDATE interview_schedules SET %s
		 WHERE interview_id = $%d
		 RETURNING interview_id, job_id, candidate_id, scheduled_at,
		           duration_minutes, interview_type, interviewer_email,
		           meeting_link, status, notes, feedback_score, created_at,
		           updated_at`,
		strings.Join(setClauses, ", "), len(cols)+1), args...)
	s, err := scanInterview(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("failed to update interview: %w", err)
	}
	return s, priorStatus, nil
}

// CancelInterview soft-deletes by flipping status to cancelled. Returns the
// row as it stood before the cancel (nil when no interview matches) so
// callers can reject cancelling a completed one and audit what was dropped;
// the row itself is never removed. A completed interview is returned
// untouched.
func (db *DB) CancelInterview(ctx context.Context, interviewID uuid.UUID) (*InterviewSchedule, error) {
	row := db.QueryRow(ctx,
		`SELECT interview_id, job_id, candidate_id, scheduled_at,
		        duration_minutes, interview_type, interviewer_email,
		        meeting_link, status, notes, feedback_score, created_at,
		        updated_at
		 FROM interview_schedules
		 WHERE interview_id = $1`,
		interviewID)
	prior, err := scanInterview(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get interview: %w", err)
	}
	if prior.Status == InterviewStatusCompleted {
		return prior, nil
	}

	_, err = db.Exec(ctx,
		`UPDATE interview_schedules
		 SET status = $1, updated_at = CURRENT_TIMESTAMP
		 WHERE interview_id = $2`,
		InterviewStatusCancelled, interviewID)
	if err != nil {
		return prior, fmt.Errorf("failed to cancel interview: %w", err)
	}
	return prior, nil
}

// InterviewFilters narrow the interview listing. Statuses with more than one
// entry turns into an IN filter so callers can ask for, say, everything still
// actionable in one request.
type InterviewFilters struct {
	JobID       string
	CandidateID string
	Statuses    []string
}

// ListInterviews lists interviews soonest first, joined with candidate names.
func (db *DB) ListInterviews(ctx context.Context, f InterviewFilters, page, limit int) ([]InterviewDetail, Pagination, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	var conds []Cond
	if f.JobID != "" {
		conds = append(conds, Eq("i.job_id", f.JobID))
	}
	if f.CandidateID != "" {
		conds = append(conds, Eq("i.candidate_id", f.CandidateID))
	}
	if len(f.Statuses) == 1 {
		conds = append(conds, Eq("i.status", f.Statuses[0]))
	} else if len(f.Statuses) > 1 {
		values := make([]any, len(f.Statuses))
		for i, s := range f.Statuses {
			values[i] = s
		}
		conds = append(conds, In("i.status", values...))
	}
	where, err := BuildWhere(conds, map[string]bool{
		"i.job_id": true, "i.candidate_id": true, "i.status": true,
	}, 1)
	if err != nil {
		return nil, Pagination{}, err
	}

	const fromJoin = `FROM interview_schedules i
	 LEFT JOIN candidates c ON i.candidate_id = c.candidate_id
	 LEFT JOIN analysis_jobs aj ON i.job_id = aj.requirement_id`

	countSQL := "SELECT COUNT(*) " + fromJoin
	if where.SQL != "" {
		countSQL += " " + where.SQL
	}
	var total int
	if err := db.QueryRow(ctx, countSQL, where.Args...).Scan(&total); err != nil {
		return nil, Pagination{}, fmt.Errorf("failed to count interviews: %w", err)
	}

	dataSQL := `SELECT i.interview_id, i.job_id, i.candidate_id, i.scheduled_at,
	        i.duration_minutes, i.interview_type, i.interviewer_email,
	        i.meeting_link, i.status, i.notes, i.feedback_score, i.created_at,
	        i.updated_at, c.candidate_name, aj.job_title
	 ` + fromJoin
	if where.SQL != "" {
		dataSQL += " " + where.SQL
	}
	dataSQL += fmt.Sprintf(" ORDER BY i.scheduled_at ASC LIMIT $%d OFFSET $%d",
		where.NextIndex, where.NextIndex+1)
	args := append(where.Args, limit, (page-1)*limit)

	rows, err := db.Query(ctx, dataSQL, args...)
	if err != nil {
		return nil, Pagination{}, err
	}
	defer rows.Close()

	var out []InterviewDetail
	for rows.Next() {
		var d InterviewDetail
		if err := rows.Scan(&d.InterviewID, &d.JobID, &d.CandidateID,
			&d.ScheduledAt, &d.DurationMinutes, &d.InterviewType,
			&d.InterviewerEmail, &d.MeetingLink, &d.Status, &d.Notes,
			&d.FeedbackScore, &d.CreatedAt, &d.UpdatedAt, &d.CandidateName,
			&d.JobTitle); err != nil {
			return nil, Pagination{}, fmt.Errorf("failed to scan interview: %w", err)
		}
		out = append(out, d)
	}

	return out, NewPagination(page, limit, total), nil
}

// NewFeedback carries the fields for one interview feedback record.
type NewFeedback struct {
	InterviewID      uuid.UUID
	Score            int
	Strengths        []string
	Weaknesses       []string
	Recommendation   string
	Notes            string
	InterviewerEmail string
}

// CreateFeedback stores an interview feedback record. Best-effort in the
// completion flow: callers log and continue when it fails.
func (db *DB) CreateFeedback(ctx context.Context, fb NewFeedback) (*InterviewFeedback, error) {
	strengthsJSON, err := json.Marshal(StringList(fb.Strengths))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal strengths: %w", err)
	}
	weaknessesJSON, err := json.Marshal(StringList(fb.Weaknesses))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal weaknesses: %w", err)
	}

	var out InterviewFeedback
	var sJSON, wJSON []byte
	err = db.QueryRow(ctx,
		`INSERT INTO interview_feedback
		   (feedback_id, interview_id, score, strengths, weaknesses,
		    recommendation, notes, interviewer_email)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8)
		 RETURNING feedback_id, interview_id, score, strengths, weaknesses,
		           recommendation, notes, interviewer_email, created_at`,
		uuid.New(), fb.InterviewID, fb.Score, strengthsJSON, weaknessesJSON,
		fb.Recommendation, fb.Notes, fb.InterviewerEmail,
	).Scan(&out.FeedbackID, &out.InterviewID, &out.Score, &sJSON, &wJSON,
		&out.Recommendation, &out.Notes, &out.InterviewerEmail, &out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create interview feedback: %w", err)
	}
	_ = out.Strengths.UnmarshalJSON(sJSON)
	_ = out.Weaknesses.UnmarshalJSON(wJSON)
	return &out, nil
}
