package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/resume-screener/internal/db"
	"github.com/jonathan/resume-screener/internal/observability"
)

var statusCmd = &cobra.Command{
	Use:   "status <requirement-id>",
	Short: "Show the progress of a screening run",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func connectDB(ctx context.Context) (*db.DB, error) {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	return db.Connect(ctx, databaseURL)
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	var summary *db.AnalysisSummary
	if job.Status == db.JobStatusCompleted {
		if summary, err = database.GetSummary(ctx, args[0]); err != nil {
			return err
		}
	}

	observability.NewPrinter(os.Stdout).PrintAnalysisStatus(job, summary)
	return nil
}
