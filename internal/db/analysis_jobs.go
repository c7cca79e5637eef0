package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// GetAnalysisJob retrieves one job row with derived candidate counts:
// evaluated = distinct candidates holding an evaluation for the job, skipped =
// distinct queue entries marked skipped. Returns nil when no job matches.
func (db *DB) GetAnalysisJob(ctx context.Context, requirementID string) (*AnalysisJob, error) {
	var j AnalysisJob
	err := db.QueryRow(ctx,
		`SELECT aj.requirement_id, aj.job_title, COALESCE(aj.job_description, ''),
		        COALESCE(aj.input_type, ''), aj.experience_level, aj.status,
		        COALESCE(aj.progress, 0), COALESCE(aj.current_step, ''),
		        COALESCE(aj.total_candidates, 0),
		        COUNT(DISTINCT ce.candidate_id),
		        COUNT(DISTINCT pq.queue_id) FILTER (WHERE pq.status = 'skipped'),
		        COALESCE(aj.estimated_time, ''), COALESCE(aj.retry_attempts, 0),
		        aj.error_message, aj.last_error_id, COALESCE(aj.created_by, ''),
		        aj.submitted_at, aj.completed_at, aj.updated_at
		 FROM analysis_jobs aj
		 LEFT JOIN candidate_evaluations ce ON aj.requirement_id = ce.job_id
		 LEFT JOIN processing_queue pq ON aj.requirement_id = pq.requirement_id
		 WHERE aj.requirement_id = $1
		 GROUP BY aj.requirement_id`,
		requirementID,
	).Scan(&j.RequirementID, &j.JobTitle, &j.JobDescription, &j.InputType,
		&j.ExperienceLevel, &j.Status, &j.Progress, &j.CurrentStep,
		&j.TotalCandidates, &j.EvaluatedCandidates, &j.SkippedCandidates,
		&j.EstimatedTime, &j.RetryAttempts, &j.ErrorMessage, &j.LastErrorID,
		&j.CreatedBy, &j.SubmittedAt, &j.CompletedAt, &j.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get analysis job: %w", err)
	}
	return &j, nil
}

// GetSummary retrieves the aggregate statistics row for a job, or nil.
func (db *DB) GetSummary(ctx context.Context, jobID string) (*AnalysisSummary, error) {
	var s AnalysisSummary
	var distJSON []byte
	err := db.QueryRow(ctx,
		`SELECT summary_id, job_id, COALESCE(total_candidates, 0),
		        COALESCE(average_score, 0), COALESCE(top_score, 0),
		        COALESCE(recommended_count, 0), summary_text, score_distribution,
		        created_at, updated_at
		 FROM analysis_summaries
		 WHERE job_id = $1
		 ORDER BY created_at DESC
		 LIMIT 1`,
		jobID,
	).Scan(&s.SummaryID, &s.JobID, &s.TotalCandidates, &s.AverageScore,
		&s.TopScore, &s.RecommendedCount, &s.SummaryText, &distJSON,
		&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get analysis summary: %w", err)
	}
	if distJSON != nil {
		_ = json.Unmarshal(distJSON, &s.Distribution)
	}
	return &s, nil
}

// GetRequirements retrieves the evaluator-recorded requirements row, or nil.
func (db *DB) GetRequirements(ctx context.Context, jobID string) (*JobRequirements, error) {
	var r JobRequirements
	var technicalJSON, softJSON, personasJSON, weightsJSON []byte
	err := db.QueryRow(ctx,
		`SELECT requirement_row_id, job_id, technical_requirements, soft_skills,
		        ideal_candidate_personas, scoring_weights, created_at
		 FROM job_requirements
		 WHERE job_id = $1
		 LIMIT 1`,
		jobID,
	).Scan(&r.RequirementRowID, &r.JobID, &technicalJSON, &softJSON,
		&personasJSON, &weightsJSON, &r.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job requirements: %w", err)
	}
	if technicalJSON != nil {
		_ = json.Unmarshal(technicalJSON, &r.Technical)
	}
	if softJSON != nil {
		_ = json.Unmarshal(softJSON, &r.SoftSkills)
	}
	if personasJSON != nil {
		_ = json.Unmarshal(personasJSON, &r.IdealPersonas)
	}
	if weightsJSON != nil {
		_ = json.Unmarshal(weightsJSON, &r.ScoringWeights)
	}
	return &r, nil
}

// GetLatestError retrieves the most recent error-log entry for a job, or nil.
func (db *DB) GetLatestError(ctx context.Context, requirementID string) (*ErrorLogEntry, error) {
	row := db.QueryRow(ctx,
		`SELECT error_id, requirement_id, candidate_id, error_type,
		        error_severity, error_message, error_details, workflow_step,
		        node_name, user_message, COALESCE(resolved, false), resolved_at,
		        created_at
		 FROM error_logs
		 WHERE requirement_id = $1
		 ORDER BY created_at DESC
		 LIMIT 1`,
		requirementID,
	)
	entry, err := scanErrorLogEntry(row, false)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest error: %w", err)
	}
	return entry, nil
}
