package db

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// Audit action and entity vocabulary.
const (
	ActionAnalysisStarted    = "analysis_started"
	ActionAnalysisRetried    = "analysis_retried"
	ActionInterviewScheduled = "interview_scheduled"
	ActionInterviewUpdated   = "interview_updated"
	ActionInterviewCancelled = "interview_cancelled"
	ActionErrorOccurred      = "error_occurred"
	ActionErrorResolved      = "error_resolved"
	ActionAuditCleanup       = "audit_cleanup"

	EntityAnalysisJob = "analysis_job"
	EntityCandidate   = "candidate"
	EntityInterview   = "interview"
	EntityError       = "error"
	EntitySystem      = "system"
)

// ActivityRecord is the input for one audit entry.
type ActivityRecord struct {
	Action      string
	EntityType  string
	EntityID    string
	JobID       string
	CandidateID string
	UserID      string
	IPAddress   string
	UserAgent   string
	Details     map[string]any
}

// LogActivity appends one audit entry. Failures are logged and swallowed: a
// broken audit trail must never fail the operation being audited.
func (db *DB) LogActivity(ctx context.Context, rec ActivityRecord) {
	if rec.UserID == "" {
		rec.UserID = "system"
	}
	var detailsJSON []byte
	if rec.Details != nil {
		detailsJSON, _ = json.Marshal(rec.Details)
	}
	_, err := db.Exec(ctx,
		`INSERT INTO audit_log
		   (action, entity_type, entity_id, job_id, candidate_id, user_id,
		    ip_address, user_agent, details)
		 VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6,
		         NULLIF($7, ''), NULLIF($8, ''), $9)`,
		rec.Action, rec.EntityType, rec.EntityID, rec.JobID, rec.CandidateID,
		rec.UserID, rec.IPAddress, rec.UserAgent, detailsJSON)
	if err != nil {
		log.Printf("[audit] failed to record %s on %s/%s: %v",
			rec.Action, rec.EntityType, rec.EntityID, err)
	}
}

// LogAnalysisActivity records an action on an analysis job.
func (db *DB) LogAnalysisActivity(ctx context.Context, action, requirementID, userID string, details map[string]any) {
	db.LogActivity(ctx, ActivityRecord{
		Action:     action,
		EntityType: EntityAnalysisJob,
		EntityID:   requirementID,
		JobID:      requirementID,
		UserID:     userID,
		Details:    details,
	})
}

// LogCandidateActivity records an action on a candidate within a job.
func (db *DB) LogCandidateActivity(ctx context.Context, action, candidateID, jobID, userID string, details map[string]any) {
	db.LogActivity(ctx, ActivityRecord{
		Action:      action,
		EntityType:  EntityCandidate,
		EntityID:    candidateID,
		JobID:       jobID,
		CandidateID: candidateID,
		UserID:      userID,
		Details:     details,
	})
}

// LogInterviewActivity records an action on an interview.
func (db *DB) LogInterviewActivity(ctx context.Context, action string, interviewID uuid.UUID, jobID, candidateID, userID string, details map[string]any) {
	db.LogActivity(ctx, ActivityRecord{
		Action:      action,
		EntityType:  EntityInterview,
		EntityID:    interviewID.String(),
		JobID:       jobID,
		CandidateID: candidateID,
		UserID:      userID,
		Details:     details,
	})
}

// ErrorRecord is the input for one error-log entry.
type ErrorRecord struct {
	RequirementID string
	CandidateID   string
	ErrorType     string
	Severity      string
	Message       string
	Details       map[string]any
	WorkflowStep  string
	NodeName      string
	UserMessage   string
}

// LogError records a structured failure and cross-posts an error_occurred
// audit entry. Both writes are best-effort; the generated error ID is
// returned either way so callers can reference it.
func (db *DB) LogError(ctx context.Context, rec ErrorRecord) uuid.UUID {
	errorID := uuid.New()
	if rec.Severity == "" {
		rec.Severity = "error"
	}
	var detailsJSON []byte
	if rec.Details != nil {
		detailsJSON, _ = json.Marshal(rec.Details)
	}
	_, err := db.Exec(ctx,
		`INSERT INTO error_logs
		   (error_id, requirement_id, candidate_id, error_type, error_severity,
		    error_message, error_details, workflow_step, node_name, user_message)
		 VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6, $7,
		         NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''))`,
		errorID, rec.RequirementID, rec.CandidateID, rec.ErrorType,
		rec.Severity, rec.Message, detailsJSON, rec.WorkflowStep,
		rec.NodeName, rec.UserMessage)
	if err != nil {
		log.Printf("[audit] failed to record error %s (%s): %v",
			rec.ErrorType, rec.Message, err)
		return errorID
	}

	db.LogActivity(ctx, ActivityRecord{
		Action:      ActionErrorOccurred,
		EntityType:  EntityError,
		EntityID:    errorID.String(),
		JobID:       rec.RequirementID,
		CandidateID: rec.CandidateID,
		Details: map[string]any{
			"error_type": rec.ErrorType,
			"severity":   rec.Severity,
		},
	})
	return errorID
}

// AuditLogFilters narrow the audit listing. Zero values mean "no filter".
type AuditLogFilters struct {
	JobID       string
	CandidateID string
	EntityType  string
	Action      string
	UserID      string
	Since       *time.Time
	Until       *time.Time
}

// auditFilterConds translates the filter struct into allow-listed conditions.
func auditFilterConds(f AuditLogFilters) []Cond {
	var conds []Cond
	if f.JobID != "" {
		conds = append(conds, Eq("al.job_id", f.JobID))
	}
	if f.CandidateID != "" {
		conds = append(conds, Eq("al.candidate_id", f.CandidateID))
	}
	if f.EntityType != "" {
		conds = append(conds, Eq("al.entity_type", f.EntityType))
	}
	if f.Action != "" {
		conds = append(conds, Eq("al.action", f.Action))
	}
	if f.UserID != "" {
		conds = append(conds, Eq("al.user_id", f.UserID))
	}
	if f.Since != nil {
		conds = append(conds, Cond{Column: "al.created_at", Op: OpGte, Value: *f.Since})
	}
	if f.Until != nil {
		conds = append(conds, Cond{Column: "al.created_at", Op: OpLte, Value: *f.Until})
	}
	return conds
}

var auditFilterColumns = map[string]bool{
	"al.job_id": true, "al.candidate_id": true, "al.entity_type": true,
	"al.action": true, "al.user_id": true, "al.created_at": true,
}

// GetAuditLogs lists audit entries newest first, joined with candidate and
// job names for display.
func (db *DB) GetAuditLogs(ctx context.Context, f AuditLogFilters, page, limit int) ([]AuditLogEntry, Pagination, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	where, err := BuildWhere(auditFilterConds(f), auditFilterColumns, 1)
	if err != nil {
		return nil, Pagination{}, err
	}

	const fromJoin = `FROM audit_log al
	 LEFT JOIN candidates c ON al.candidate_id = c.candidate_id
	 LEFT JOIN analysis_jobs aj ON al.job_id = aj.requirement_id`

	countSQL := "SELECT COUNT(*) " + fromJoin
	if where.SQL != "" {
		countSQL += " " + where.SQL
	}
	var total int
	if err := db.QueryRow(ctx, countSQL, where.Args...).Scan(&total); err != nil {
		return nil, Pagination{}, fmt.Errorf("failed to count audit logs: %w", err)
	}

	dataSQL := `SELECT al.log_id, al.action, al.entity_type, al.entity_id,
	        al.job_id, al.candidate_id, al.user_id, al.ip_address,
	        al.user_agent, al.details, c.candidate_name, aj.job_title,
	        al.created_at
	 ` + fromJoin
	if where.SQL != "" {
		dataSQL += " " + where.SQL
	}
	dataSQL += fmt.Sprintf(" ORDER BY al.created_at DESC LIMIT $%d OFFSET $%d",
		where.NextIndex, where.NextIndex+1)
	args := append(where.Args, limit, (page-1)*limit)

	rows, err := db.Query(ctx, dataSQL, args...)
	if err != nil {
		return nil, Pagination{}, err
	}
	defer rows.Close()

	var entries []AuditLogEntry
	for rows.Next() {
		var e AuditLogEntry
		var detailsJSON []byte
		if err := rows.Scan(&e.LogID, &e.Action, &e.EntityType, &e.EntityID,
			&e.JobID, &e.CandidateID, &e.UserID, &e.IPAddress, &e.UserAgent,
			&detailsJSON, &e.CandidateName, &e.JobTitle, &e.CreatedAt); err != nil {
			return nil, Pagination{}, fmt.Errorf("failed to scan audit log: %w", err)
		}
		_ = e.Details.UnmarshalJSON(detailsJSON)
		entries = append(entries, e)
	}

	return entries, NewPagination(page, limit, total), nil
}

// GetInterviewHistory returns the most recent audit entries for one
// interview, capped at limit.
func (db *DB) GetInterviewHistory(ctx context.Context, interviewID uuid.UUID, limit int) ([]AuditLogEntry, error) {
	if limit < 1 {
		limit = 10
	}
	rows, err := db.Query(ctx,
		`SELECT log_id, action, entity_type, entity_id, job_id, candidate_id,
		        user_id, ip_address, user_agent, details, created_at
		 FROM audit_log
		 WHERE entity_type = $1 AND entity_id = $2
		 ORDER BY created_at DESC
		 LIMIT $3`,
		EntityInterview, interviewID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []AuditLogEntry
	for rows.Next() {
		var e AuditLogEntry
		var detailsJSON []byte
		if err := rows.Scan(&e.LogID, &e.Action, &e.EntityType, &e.EntityID,
			&e.JobID, &e.CandidateID, &e.UserID, &e.IPAddress, &e.UserAgent,
			&detailsJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		_ = e.Details.UnmarshalJSON(detailsJSON)
		entries = append(entries, e)
	}
	return entries, nil
}

// ErrorLogFilters narrow the error listing. Search matches a substring of the
// stored error message.
type ErrorLogFilters struct {
	RequirementID string
	Severity      string
	Resolved      *bool
	Search        string
}

// scanErrorLogEntry reads one error_logs row. With withNames set, the query
// is expected to include the joined job_title and candidate_name columns.
func scanErrorLogEntry(row interface{ Scan(...any) error }, withNames bool) (*ErrorLogEntry, error) {
	var e ErrorLogEntry
	var detailsJSON []byte
	dest := []any{&e.ErrorID, &e.RequirementID, &e.CandidateID, &e.ErrorType,
		&e.ErrorSeverity, &e.ErrorMessage, &detailsJSON, &e.WorkflowStep,
		&e.NodeName, &e.UserMessage, &e.Resolved, &e.ResolvedAt, &e.CreatedAt}
	if withNames {
		dest = append(dest, &e.JobTitle, &e.CandidateName)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	_ = e.ErrorDetails.UnmarshalJSON(detailsJSON)
	return &e, nil
}

// GetErrorLogs lists error entries newest first, joined with job and
// candidate names.
func (db *DB) GetErrorLogs(ctx context.Context, f ErrorLogFilters, page, limit int) ([]ErrorLogEntry, Pagination, error) {
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
	if f.RequirementID != "" {
		conds = append(conds, Eq("el.requirement_id", f.RequirementID))
	}
	if f.Severity != "" {
		conds = append(conds, Eq("el.error_severity", f.Severity))
	}
	if f.Resolved != nil {
		conds = append(conds, Eq("el.resolved", *f.Resolved))
	}
	if f.Search != "" {
		conds = append(conds, Like("el.error_message", f.Search))
	}
	where, err := BuildWhere(conds, map[string]bool{
		"el.requirement_id": true, "el.error_severity": true, "el.resolved": true,
		"el.error_message": true,
	}, 1)
	if err != nil {
		return nil, Pagination{}, err
	}

	const fromJoin = `FROM error_logs el
	 LEFT JOIN analysis_jobs aj ON el.requirement_id = aj.requirement_id
	 LEFT JOIN candidates c ON el.candidate_id = c.candidate_id`

	countSQL := "SELECT COUNT(*) " + fromJoin
	if where.SQL != "" {
		countSQL += " " + where.SQL
	}
	var total int
	if err := db.QueryRow(ctx, countSQL, where.Args...).Scan(&total); err != nil {
		return nil, Pagination{}, fmt.Errorf("failed to count error logs: %w", err)
	}

	dataSQL := `SELECT el.error_id, el.requirement_id, el.candidate_id,
	        el.error_type, el.error_severity, el.error_message,
	        el.error_details, el.workflow_step, el.node_name, el.user_message,
	        COALESCE(el.resolved, false), el.resolved_at, el.created_at,
	        aj.job_title, c.candidate_name
	 ` + fromJoin
	if where.SQL != "" {
		dataSQL += " " + where.SQL
	}
	dataSQL += fmt.Sprintf(" ORDER BY el.created_at DESC LIMIT $%d OFFSET $%d",
		where.NextIndex, where.NextIndex+1)
	args := append(where.Args, limit, (page-1)*limit)

	rows, err := db.Query(ctx, dataSQL, args...)
	if err != nil {
		return nil, Pagination{}, err
	}
	defer rows.Close()

	var entries []ErrorLogEntry
	for rows.Next() {
		e, err := scanErrorLogEntry(rows, true)
		if err != nil {
			return nil, Pagination{}, fmt.Errorf("failed to scan error log: %w", err)
		}
		entries = append(entries, *e)
	}

	return entries, NewPagination(page, limit, total), nil
}

// ResolveError marks one error resolved and audits the resolution. Returns
// false when the error does not exist or was already resolved.
func (db *DB) ResolveError(ctx context.Context, errorID uuid.UUID, userID string) (bool, error) {
	tag, err := db.Exec(ctx,
		`UPDATE error_logs
		 SET resolved = true, resolved_at = CURRENT_TIMESTAMP
		 WHERE error_id = $1 AND COALESCE(resolved, false) = false`,
		errorID)
	if err != nil {
		return false, fmt.Errorf("failed to resolve error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	db.LogActivity(ctx, ActivityRecord{
		Action:     ActionErrorResolved,
		EntityType: EntityError,
		EntityID:   errorID.String(),
		UserID:     userID,
	})
	return true, nil
}

// ActivitySummary counts audit entries per action over a recent window.
func (db *DB) ActivitySummary(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := db.Query(ctx,
		`SELECT action, COUNT(*)
		 FROM audit_log
		 WHERE created_at >= $1
		 GROUP BY action`,
		since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summary := make(map[string]int)
	for rows.Next() {
		var action string
		var count int
		if err := rows.Scan(&action, &count); err != nil {
			return nil, fmt.Errorf("failed to scan activity summary: %w", err)
		}
		summary[action] = count
	}
	return summary, nil
}

// CleanupAuditLogs deletes audit entries older than the retention window and
// reports how many were removed. The cleanup itself leaves an audit entry.
func (db *DB) CleanupAuditLogs(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := db.Exec(ctx,
		`DELETE FROM audit_log WHERE created_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up audit logs: %w", err)
	}

	db.LogActivity(ctx, ActivityRecord{
		Action:     ActionAuditCleanup,
		EntityType: EntitySystem,
		EntityID:   "audit_log",
		Details: map[string]any{
			"deleted_count": tag.RowsAffected(),
			"cutoff_date":   olderThan.Format(time.RFC3339),
		},
	})
	return tag.RowsAffected(), nil
}
