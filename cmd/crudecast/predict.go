package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/crudecast/crudecast/internal/core"
	"github.com/crudecast/crudecast/internal/inference"
	"github.com/crudecast/crudecast/internal/logger"
	"github.com/spf13/cobra"
)

var (
	predictDate  string
	predictRunID string
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Predict the next WTI close move",
	Long:  "Load a published dataset and a trained model bundle, then print the prediction report as JSON",
	RunE:  runPredict,
}

func init() {
	predictCmd.Flags().StringVar(&predictDate, "date", "", "Dataset target date YYYY-MM-DD (default: latest published)")
	predictCmd.Flags().StringVar(&predictRunID, "run-id", "", "Model run ID (default: configured run_id)")

	rootCmd.AddCommand(predictCmd)
}

func runPredict(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	runID := app.cfg.Model.RunID
	if predictRunID != "" {
		runID = predictRunID
	}
	if runID == "" {
		return fmt.Errorf("model run ID required (--run-id or config model.run_id)")
	}

	var ds *core.ProcessedDataset
	if predictDate != "" {
		date, err := core.ParseDate(predictDate)
		if err != nil {
			return fmt.Errorf("invalid date format (expected YYYY-MM-DD): %w", err)
		}
		ds, err = app.store.LoadFor(ctx, date)
		if err != nil {
			return fmt.Errorf("loading dataset for %s: %w", date, err)
		}
	} else {
		ds, err = app.store.LoadLatest(ctx)
		if err != nil {
			return fmt.Errorf("loading latest dataset: %w", err)
		}
	}

	bundle, err := app.models.Load(ctx, runID)
	if err != nil {
		return fmt.Errorf("loading model %s: %w", runID, err)
	}

	engine := inference.New(inference.Config{
		Temperature:       app.cfg.Inference.Temperature,
		TopCountriesCount: app.cfg.Inference.TopCountriesCount,
	}, logger.Component(app.log, "inference"))

	report, err := engine.Predict(ds, bundle)
	if err != nil {
		return fmt.Errorf("prediction failed: %w", err)
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	fmt.Println(string(out))

	return nil
}
