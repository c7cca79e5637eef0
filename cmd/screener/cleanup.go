package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var cleanupDays int

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete audit log entries older than the retention window",
	RunE:  runCleanup,
}

func init() {
	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 90, "Number of days of audit history to keep")
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	if cleanupDays < 1 {
		return fmt.Errorf("--days must be at least 1")
	}

	database, err := connectDB(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	cutoff := time.Now().AddDate(0, 0, -cleanupDays)
	deleted, err := database.CleanupAuditLogs(ctx, cutoff)
	if err != nil {
		return err
	}

	fmt.Printf("Deleted %d audit entries older than %s\n", deleted, cutoff.Format("2006-01-02"))
	return nil
}
