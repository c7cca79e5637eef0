package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// keyStrengthsShown caps the summary strengths list on each result row.
const keyStrengthsShown = 3

// Sort keys accepted by the results endpoint.
const (
	SortScoreDesc = "score_desc"
	SortScoreAsc  = "score_asc"
	SortName      = "name"
	SortRecent    = "recent"
)

// EvaluationFilters are the optional, AND-combined result filters.
type EvaluationFilters struct {
	MinScore       *int   // overall_score >=
	Recommendation string // exact match
	Search         string // case-insensitive substring over name/email/current role
}

// evaluationOrderBy maps the public sort keys onto ORDER BY clauses. Every
// key carries candidate_id as a deterministic tie-break; the columns are
// fixed strings, so user input never reaches the clause text.
var evaluationOrderBy = map[string]string{
	SortScoreDesc: "ce.overall_score DESC, c.candidate_id ASC",
	SortScoreAsc:  "ce.overall_score ASC, c.candidate_id ASC",
	SortName:      "c.candidate_name ASC, c.candidate_id ASC",
	SortRecent:    "ce.evaluated_at DESC, c.candidate_id ASC",
}

// buildEvaluationQuery renders the data and count statements for one job's
// results. Both share the WHERE fragment and arguments; the data statement
// appends LIMIT/OFFSET.
func buildEvaluationQuery(jobID string, f EvaluationFilters, sortKey string, page, limit int) (dataSQL, countSQL string, args []any, err error) {
	where := "ce.job_id = $1"
	args = []any{jobID}
	idx := 2

	if f.MinScore != nil {
		where += fmt.Sprintf(" AND ce.overall_score >= $%d", idx)
		args = append(args, *f.MinScore)
		idx++
	}
	if f.Recommendation != "" {
		where += fmt.Sprintf(" AND ce.recommendation = $%d", idx)
		args = append(args, f.Recommendation)
		idx++
	}
	if f.Search != "" {
		where += fmt.Sprintf(" AND (c.candidate_name ILIKE $%d OR c.email ILIKE $%d OR c.current_role ILIKE $%d)", idx, idx, idx)
		args = append(args, "%"+f.Search+"%")
		idx++
	}

	orderBy, ok := evaluationOrderBy[sortKey]
	if !ok {
		return "", "", nil, fmt.Errorf("unsupported sort key: %s", sortKey)
	}

	const fromJoin = `FROM candidate_evaluations ce
	 INNER JOIN candidates c ON ce.candidate_id = c.candidate_id`

	countSQL = fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", fromJoin, where)

	dataSQL = fmt.Sprintf(
		`SELECT c.candidate_id, c.candidate_name, c.email, c.phone, c.current_role,
		        ce.evaluation_id, ce.overall_score, ce.technical_score,
		        ce.experience_score, ce.soft_skills_score, ce.cultural_fit_score,
		        ce.recommendation, COALESCE(ce.score_justification, ''),
		        ce.strengths, ce.concerns, ce.interview_focus,
		        ce.candidate_persona_analysis, ce.technical_assessment,
		        COALESCE(ce.candidate_persona_analysis->'risk_profile'->>'level', 'medium'),
		        ce.hr_recommendation, ce.development_potential, ce.evaluated_at
		 %s
		 WHERE %s
		 ORDER BY %s
		 LIMIT $%d OFFSET $%d`,
		fromJoin, where, orderBy, idx, idx+1)

	if page < 1 {
		page = 1
	}
	args = append(args, limit, (page-1)*limit)
	return dataSQL, countSQL, args, nil
}

// ListEvaluations returns the paginated, filtered results for one job. The
// total is computed by a COUNT sharing the same predicate, so
// pagination.Total always equals the unlimited match count. Nested JSON
// fields are normalized to structured form regardless of how the evaluator
// stored them.
func (db *DB) ListEvaluations(ctx context.Context, jobID string, f EvaluationFilters, sortKey string, page, limit int) ([]CandidateResult, Pagination, error) {
	if sortKey == "" {
		sortKey = SortScoreDesc
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	dataSQL, countSQL, args, err := buildEvaluationQuery(jobID, f, sortKey, page, limit)
	if err != nil {
		return nil, Pagination{}, err
	}

	countArgs := args[:len(args)-2]
	var total int
	if err := db.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, Pagination{}, fmt.Errorf("failed to count evaluations: %w", err)
	}

	rows, err := db.Query(ctx, dataSQL, args...)
	if err != nil {
		return nil, Pagination{}, err
	}
	defer rows.Close()

	var results []CandidateResult
	for rows.Next() {
		r, err := scanCandidateResult(rows)
		if err != nil {
			return nil, Pagination{}, err
		}
		results = append(results, *r)
	}

	return results, NewPagination(page, limit, total), nil
}

func scanCandidateResult(rows pgx.Rows) (*CandidateResult, error) {
	var r CandidateResult
	var strengthsJSON, concernsJSON, focusJSON, personaJSON, techJSON []byte
	err := rows.Scan(&r.CandidateID, &r.CandidateName, &r.Email, &r.Phone,
		&r.CurrentRole, &r.EvaluationID, &r.OverallScore, &r.TechnicalScore,
		&r.ExperienceScore, &r.SoftSkillsScore, &r.CulturalFit,
		&r.Recommendation, &r.Justification, &strengthsJSON, &concernsJSON,
		&focusJSON, &personaJSON, &techJSON, &r.RiskLevel,
		&r.HRRecommendation, &r.DevPotential, &r.EvaluatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan candidate result: %w", err)
	}
	r.normalize(strengthsJSON, concernsJSON, focusJSON, personaJSON, techJSON)
	return &r, nil
}

// normalize decodes the raw JSONB payloads through the tagged-union types and
// derives the summary fields.
func (r *CandidateResult) normalize(strengths, concerns, focus, persona, tech []byte) {
	_ = r.Strengths.UnmarshalJSON(strengths)
	_ = r.Concerns.UnmarshalJSON(concerns)
	_ = r.InterviewFocus.UnmarshalJSON(focus)
	_ = r.PersonaAnalysis.UnmarshalJSON(persona)
	_ = r.TechAssessment.UnmarshalJSON(tech)

	if r.RiskLevel == "" {
		r.RiskLevel = r.PersonaAnalysis.String("medium", "risk_profile", "level")
	}
	r.KeyStrengths = r.Strengths.Top(keyStrengthsShown)
	if r.KeyStrengths == nil {
		r.KeyStrengths = []string{}
	}
}

// evaluationColumns is the allow-list for evaluation upserts.
var evaluationColumns = map[string]bool{
	"job_id": true, "candidate_id": true, "overall_score": true,
	"technical_score": true, "experience_score": true,
	"soft_skills_score": true, "cultural_fit_score": true,
	"recommendation": true, "score_justification": true, "strengths": true,
	"concerns": true, "interview_focus": true,
	"candidate_persona_analysis": true, "technical_assessment": true,
	"evaluated_at": true,
}

// UpsertEvaluation inserts or replaces the evaluation for one (job,
// candidate) pair. The pair is the conflict key, so at most one row ever
// exists and the second write's scores win.
func (db *DB) UpsertEvaluation(ctx context.Context, e *EvaluationUpsert) error {
	data := map[string]any{
		"job_id":              e.JobID,
		"candidate_id":        e.CandidateID,
		"overall_score":       e.OverallScore,
		"technical_score":     e.TechnicalScore,
		"experience_score":    e.ExperienceScore,
		"soft_skills_score":   e.SoftSkillsScore,
		"cultural_fit_score":  e.CulturalFit,
		"recommendation":      e.Recommendation,
		"score_justification": e.Justification,
	}
	for col, v := range map[string]any{
		"strengths":                  e.Strengths,
		"concerns":                   e.Concerns,
		"interview_focus":            e.InterviewFocus,
		"candidate_persona_analysis": e.PersonaAnalysis,
		"technical_assessment":       e.TechAssessment,
	} {
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal %s: %w", col, err)
		}
		data[col] = encoded
	}

	sql, args, err := BuildUpsert("candidate_evaluations", data,
		[]string{"job_id", "candidate_id"}, nil, evaluationColumns)
	if err != nil {
		return err
	}
	// evaluated_at reflects the latest write
	sql += ", evaluated_at = NOW()"

	if _, err := db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to upsert evaluation: %w", err)
	}
	return nil
}

// GetCandidate retrieves one candidate row, or nil.
func (db *DB) GetCandidate(ctx context.Context, candidateID string) (*Candidate, error) {
	var c Candidate
	err := db.QueryRow(ctx,
		`SELECT candidate_id, candidate_name, email, phone, current_role, created_at
		 FROM candidates WHERE candidate_id = $1`,
		candidateID,
	).Scan(&c.CandidateID, &c.Name, &c.Email, &c.Phone, &c.CurrentRole, &c.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get candidate: %w", err)
	}
	return &c, nil
}

// ListEvaluationsForCandidate returns every evaluation for one candidate
// across jobs, newest first.
func (db *DB) ListEvaluationsForCandidate(ctx context.Context, candidateID string) ([]CandidateResult, error) {
	rows, err := db.Query(ctx,
		`SELECT c.candidate_id, c.candidate_name, c.email, c.phone, c.current_role,
		        ce.evaluation_id, ce.overall_score, ce.technical_score,
		        ce.experience_score, ce.soft_skills_score, ce.cultural_fit_score,
		        ce.recommendation, COALESCE(ce.score_justification, ''),
		        ce.strengths, ce.concerns, ce.interview_focus,
		        ce.candidate_persona_analysis, ce.technical_assessment,
		        COALESCE(ce.candidate_persona_analysis->'risk_profile'->>'level', 'medium'),
		        ce.hr_recommendation, ce.development_potential, ce.evaluated_at
		 FROM candidate_evaluations ce
		 INNER JOIN candidates c ON ce.candidate_id = c.candidate_id
		 WHERE ce.candidate_id = $1
		 ORDER BY ce.evaluated_at DESC`,
		candidateID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []CandidateResult
	for rows.Next() {
		r, err := scanCandidateResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *r)
	}
	return results, nil
}
