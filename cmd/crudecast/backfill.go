package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/crudecast/crudecast/internal/core"
	"github.com/crudecast/crudecast/internal/pipeline"
	"github.com/spf13/cobra"
)

var (
	backfillFrom   string
	backfillTo     string
	backfillDryRun bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Run the pipeline over a historical date range",
	Long:  "Run each date from --from to --to in ascending order; individual failures are recorded and skipped",
	RunE:  runBackfill,
}

func init() {
	backfillCmd.Flags().StringVar(&backfillFrom, "from", "", "Start date YYYY-MM-DD (required)")
	backfillCmd.Flags().StringVar(&backfillTo, "to", "", "End date YYYY-MM-DD (required)")
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "Compute datasets without publishing them")

	backfillCmd.MarkFlagRequired("from")
	backfillCmd.MarkFlagRequired("to")

	rootCmd.AddCommand(backfillCmd)
}

func runBackfill(cmd *cobra.Command, args []string) error {
	fromDate, err := core.ParseDate(backfillFrom)
	if err != nil {
		return fmt.Errorf("invalid from date format (expected YYYY-MM-DD): %w", err)
	}
	toDate, err := core.ParseDate(backfillTo)
	if err != nil {
		return fmt.Errorf("invalid to date format (expected YYYY-MM-DD): %w", err)
	}
	if toDate.Before(fromDate) {
		return fmt.Errorf("end date must be after start date")
	}

	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	orch, err := app.newOrchestrator(ctx)
	if err != nil {
		return fmt.Errorf("wiring pipeline: %w", err)
	}

	report := orch.Backfill(ctx, fromDate, toDate, pipeline.Options{DryRun: backfillDryRun})

	fmt.Printf("Backfill %s to %s\n", fromDate, toDate)
	fmt.Printf("  Succeeded: %d\n", len(report.Succeeded))
	fmt.Printf("  Failed:    %d\n", len(report.Failed))
	for _, day := range report.Failed {
		fmt.Printf("    %s\n", day)
	}

	if len(report.Failed) > 0 {
		return fmt.Errorf("%d of %d days failed", len(report.Failed), len(report.Outcomes))
	}
	return nil
}
