package main

import (
	"context"
	"fmt"

	"github.com/crudecast/crudecast/internal/config"
	"github.com/crudecast/crudecast/internal/dataset"
	"github.com/crudecast/crudecast/internal/gkg"
	"github.com/crudecast/crudecast/internal/logger"
	"github.com/crudecast/crudecast/internal/metrics"
	"github.com/crudecast/crudecast/internal/model"
	"github.com/crudecast/crudecast/internal/pipeline"
	"github.com/crudecast/crudecast/internal/prices"
	"github.com/crudecast/crudecast/internal/storage/object"
	"go.uber.org/zap"
)

// app bundles the wired components every subcommand needs.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	metrics *metrics.Registry
	store   *dataset.Store
	models  *model.Loader
}

func newApp() (*app, error) {
	log := logger.Must(debug)

	var cfg *config.Config
	var err error
	if cfgFile != "" {
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
	} else {
		cfg = config.Defaults()
		log.Warn("no config file specified, using defaults")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	storage, err := newStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating storage: %w", err)
	}

	m := metrics.NewRegistry()

	return &app{
		cfg:     cfg,
		log:     log,
		metrics: m,
		store:   dataset.NewStore(storage, cfg.Storage.ProcessedPrefix, logger.Component(log, "dataset"), m),
		models:  model.NewLoader(storage, cfg.Storage.ModelsPrefix, logger.Component(log, "model")),
	}, nil
}

func newStorage(cfg *config.Config) (object.Storage, error) {
	switch cfg.Storage.Type {
	case "s3":
		return object.NewS3(object.S3Config{
			Bucket:    cfg.Storage.S3.Bucket,
			Endpoint:  cfg.Storage.S3.Endpoint,
			Region:    cfg.Storage.S3.Region,
			AccessKey: cfg.Storage.S3.AccessKey,
			SecretKey: cfg.Storage.S3.SecretKey,
			Prefix:    cfg.Storage.S3.Prefix,
		})
	default:
		return object.NewLocalFS(cfg.Storage.Path)
	}
}

// newOrchestrator wires a pipeline around the configured model run's country
// universe.
func (a *app) newOrchestrator(ctx context.Context) (*pipeline.Orchestrator, error) {
	if a.cfg.Model.RunID == "" {
		return nil, fmt.Errorf("model run_id required to resolve the country universe")
	}
	bundle, err := a.models.Load(ctx, a.cfg.Model.RunID)
	if err != nil {
		return nil, err
	}

	fetcher := gkg.New(gkg.Config{
		BaseURL:            a.cfg.Events.BaseURL,
		Concurrency:        a.cfg.Events.BundleConcurrency,
		BundleTimeout:      a.cfg.Events.BundleTimeout,
		DayTimeout:         a.cfg.Events.DayTimeout,
		MinBundlesFraction: a.cfg.Events.MinBundlesFraction,
	}, logger.Component(a.log, "gkg"), a.metrics)

	priceClient := prices.New(prices.Config{
		BaseURL:  a.cfg.Prices.BaseURL,
		APIKey:   a.cfg.Prices.APIKey,
		CacheTTL: a.cfg.Prices.CacheTTL,
	}, logger.Component(a.log, "prices"), a.metrics)

	return pipeline.New(
		pipeline.Config{LookbackDays: a.cfg.Pipeline.LookbackDays},
		fetcher,
		priceClient,
		a.store,
		bundle.Universe,
		logger.Component(a.log, "pipeline"),
		a.metrics,
	), nil
}
