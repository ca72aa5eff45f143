package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crudecast/crudecast/internal/core"
	"github.com/crudecast/crudecast/internal/pipeline"
	"github.com/spf13/cobra"
)

var (
	runDate   string
	runDryRun bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daily pipeline for one target date",
	Long:  "Fetch events and prices, align, engineer features and publish the processed dataset",
	RunE:  runPipeline,
}

func init() {
	runCmd.Flags().StringVar(&runDate, "date", "", "Target date YYYY-MM-DD (default: yesterday UTC)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Compute the dataset without publishing it")

	rootCmd.AddCommand(runCmd)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.log.Sync()

	target := pipeline.DefaultTargetDate(time.Now().UTC())
	if runDate != "" {
		target, err = core.ParseDate(runDate)
		if err != nil {
			return fmt.Errorf("invalid date format (expected YYYY-MM-DD): %w", err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	orch, err := app.newOrchestrator(ctx)
	if err != nil {
		return fmt.Errorf("wiring pipeline: %w", err)
	}

	outcome := orch.Run(ctx, target, pipeline.Options{DryRun: runDryRun})
	if outcome.Err != nil {
		return fmt.Errorf("run %s finished %s: %w", outcome.RunID, outcome.State, outcome.Err)
	}

	fmt.Printf("Run %s: %s\n", outcome.RunID, outcome.State)
	fmt.Printf("  Target date:  %s\n", outcome.TargetDate)
	fmt.Printf("  Rows:         %d\n", outcome.Rows)
	fmt.Printf("  Content hash: %s\n", outcome.ContentHash)
	if outcome.Key != "" {
		fmt.Printf("  Key:          %s\n", outcome.Key)
	}
	if outcome.StalePrices {
		fmt.Println("  Prices served from a stale cache snapshot")
	}

	return nil
}
