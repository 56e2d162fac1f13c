package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirkomrk2-web/registry-worker/internal/db"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue NAME...",
	Short: "Insert a pending job for NAME",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runEnqueue,
}

var (
	enqueueEmail       string
	enqueueDatabaseURL string
)

func init() {
	enqueueCmd.Flags().StringVar(&enqueueEmail, "email", "", "Email the result is recorded under")
	enqueueCmd.Flags().StringVar(&enqueueDatabaseURL, "db-url", "", "Database URL (overrides DATABASE_URL)")
	rootCmd.AddCommand(enqueueCmd)
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	fullName := strings.TrimSpace(strings.Join(args, " "))
	if fullName == "" {
		return fmt.Errorf("name is blank")
	}

	dsn, err := databaseURL(enqueueDatabaseURL)
	if err != nil {
		return err
	}

	ctx := context.Background()
	database, err := db.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer database.Close()

	job, err := database.CreatePendingJob(ctx, fullName, enqueueEmail)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Enqueued job %s for %s\n", job.ID, job.FullName)
	return nil
}
