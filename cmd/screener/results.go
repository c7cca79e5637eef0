package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/resume-screener/internal/db"
	"github.com/jonathan/resume-screener/internal/observability"
)

var (
	resultsMinScore       int
	resultsRecommendation string
	resultsSearch         string
	resultsSort           string
	resultsPage           int
	resultsLimit          int
)

var resultsCmd = &cobra.Command{
	Use:   "results <requirement-id>",
	Short: "List the evaluated candidates for a completed screening run",
	Args:  cobra.ExactArgs(1),
	RunE:  runResults,
}

func init() {
	resultsCmd.Flags().IntVar(&resultsMinScore, "min-score", 0, "Only show candidates at or above this overall score")
	resultsCmd.Flags().StringVar(&resultsRecommendation, "recommendation", "", "Filter by recommendation value")
	resultsCmd.Flags().StringVar(&resultsSearch, "search", "", "Search name, email, and current role")
	resultsCmd.Flags().StringVar(&resultsSort, "sort", db.SortScoreDesc, "Sort order: score_desc, score_asc, name, recent")
	resultsCmd.Flags().IntVar(&resultsPage, "page", 1, "Page number")
	resultsCmd.Flags().IntVar(&resultsLimit, "limit", 20, "Results per page")
	rootCmd.AddCommand(resultsCmd)
}

func runResults(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	database, err := connectDB(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	job, err := database.GetAnalysisJob(ctx, args[0])
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("analysis not found: %s", args[0])
	}
	if job.Status != db.JobStatusCompleted && job.Status != db.JobStatusError {
		return fmt.Errorf("analysis %s is not completed yet (status: %s, progress: %d%%)",
			args[0], job.Status, job.EffectiveProgress())
	}

	var filters db.EvaluationFilters
	if resultsMinScore > 0 {
		filters.MinScore = &resultsMinScore
	}
	filters.Recommendation = resultsRecommendation
	filters.Search = resultsSearch

	results, pagination, err := database.ListEvaluations(ctx, args[0], filters, resultsSort, resultsPage, resultsLimit)
	if err != nil {
		return err
	}

	observability.NewPrinter(os.Stdout).PrintCandidateResults(results, pagination)
	return nil
}
