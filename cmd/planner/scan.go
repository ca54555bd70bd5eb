package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"taskplanner/internal/repository"
	"taskplanner/internal/service"
)

var scanTimeout time.Duration

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Dispatch due reminders once and exit",
	Long: `Run a single pass of the reminder scanner.

Useful from an external scheduler instead of the built-in one:
  planner scan --timeout 30s`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", time.Minute, "upper bound for the pass")
}

func runScan(cmd *cobra.Command, args []string) error {
	db, closeDB, err := openDB()
	if err != nil {
		return err
	}
	defer closeDB()

	gateway, _, err := buildGateway()
	if err != nil {
		return err
	}
	store := repository.NewStore(db)
	reminderSvc := service.NewReminderService(store, gateway, newPool(), logger).WithDispatchTimeout(cfg.DispatchTimeout)

	ctx, cancel := context.WithTimeout(cmd.Context(), scanTimeout)
	defer cancel()
	report, err := reminderSvc.ProcessDue(ctx)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "run %s: pending=%d sent=%d failed=%d orphaned=%d\n",
		report.RunID, report.Pending, report.Sent, report.Failed, report.Orphaned)
	return nil
}
