// Package observability provides formatted output utilities for the CLI.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/resume-screener/internal/db"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for the status and results commands
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintAnalysisStatus outputs a human-readable summary of one screening run.
func (p *Printer) PrintAnalysisStatus(job *db.AnalysisJob, summary *db.AnalysisSummary) {
	if job == nil {
		return
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Job:       %s\n", job.JobTitle))
	sb.WriteString(fmt.Sprintf("Level:     %s\n", job.ExperienceLevel))
	sb.WriteString(fmt.Sprintf("Status:    %s\n", job.Status))
	sb.WriteString(fmt.Sprintf("Progress:  %d%%", job.EffectiveProgress()))
	if job.CurrentStep != "" {
		sb.WriteString(fmt.Sprintf("  (%s)", job.CurrentStep))
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Evaluated: %d of %d", job.EvaluatedCandidates, job.TotalCandidates))
	if job.SkippedCandidates > 0 {
		sb.WriteString(fmt.Sprintf(" (%d skipped)", job.SkippedCandidates))
	}
	sb.WriteString("\n")

	if job.Status == db.JobStatusError {
		sb.WriteString("\n")
		if job.ErrorMessage != nil {
			sb.WriteString(fmt.Sprintf("Error:     %s\n", *job.ErrorMessage))
		}
		if job.CanRetry() {
			sb.WriteString(fmt.Sprintf("Retry:     available (%d of %d attempts used)\n",
				job.RetryAttempts, 3))
		} else {
			sb.WriteString("Retry:     exhausted\n")
		}
	}

	if summary != nil {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("Average score:  %.1f\n", summary.AverageScore))
		sb.WriteString(fmt.Sprintf("Top score:      %d\n", summary.TopScore))
		sb.WriteString(fmt.Sprintf("Recommended:    %d\n", summary.RecommendedCount))
	}

	p.printBox("ANALYSIS STATUS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintCandidateResults outputs the top candidates with scores and strengths.
func (p *Printer) PrintCandidateResults(results []db.CandidateResult, pagination db.Pagination) {
	if len(results) == 0 {
		p.printBox("CANDIDATE RESULTS", "No candidates matched the filters.")
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Showing %d of %d candidates\n\n", len(results), pagination.Total))

	count := min(len(results), maxItemsToShow)
	for i := 0; i < count; i++ {
		r := results[i]
		sb.WriteString(fmt.Sprintf("#%d  %s\n", (pagination.Page-1)*pagination.Limit+i+1, r.CandidateName))
		sb.WriteString(fmt.Sprintf("    Score: %d  [%s]  risk: %s\n",
			r.OverallScore, r.Recommendation, r.RiskLevel))
		if len(r.KeyStrengths) > 0 {
			strengths := strings.Join(r.KeyStrengths, ", ")
			if len(strengths) > 40 {
				strengths = strengths[:37] + "..."
			}
			sb.WriteString(fmt.Sprintf("    Strengths: %s\n", strengths))
		}
		if i < count-1 {
			sb.WriteString("\n")
		}
	}
	if len(results) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n... and %d more on this page\n", len(results)-maxItemsToShow))
	}

	p.printBox("CANDIDATE RESULTS", strings.TrimSuffix(sb.String(), "\n"))
}
