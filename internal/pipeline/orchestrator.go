package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/crudecast/crudecast/internal/aggregate"
	"github.com/crudecast/crudecast/internal/align"
	"github.com/crudecast/crudecast/internal/core"
	"github.com/crudecast/crudecast/internal/dataset"
	"github.com/crudecast/crudecast/internal/feature"
	"github.com/crudecast/crudecast/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventSource fetches one day of event records.
type EventSource interface {
	FetchDay(ctx context.Context, day core.Date) ([]core.EventRecord, error)
}

// PriceSource fetches a trailing window of daily closes.
type PriceSource interface {
	FetchPrices(ctx context.Context, endDate core.Date, lookbackDays int) ([]core.PricePoint, bool, error)
}

// DatasetPublisher stores a processed dataset.
type DatasetPublisher interface {
	Publish(ctx context.Context, ds *core.ProcessedDataset) (string, error)
}

// Config holds orchestrator settings.
type Config struct {
	LookbackDays int
}

// Orchestrator drives one target date through fetch, aggregate, align,
// featurize and publish. It owns all mutable accumulators during a run;
// published datasets are immutable.
type Orchestrator struct {
	cfg      Config
	events   EventSource
	prices   PriceSource
	store    DatasetPublisher
	universe *core.Universe
	logger   *zap.Logger
	metrics  *metrics.Registry

	// Process-local advisory lock: at most one run per target date in
	// flight. Cross-instance safety relies on the artifact store's
	// atomic-replace semantics.
	mu       sync.Mutex
	inFlight map[core.Date]struct{}
}

// New creates an orchestrator.
func New(cfg Config, events EventSource, prices PriceSource, store DatasetPublisher, universe *core.Universe, logger *zap.Logger, m *metrics.Registry) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LookbackDays < 1 {
		cfg.LookbackDays = 90
	}
	return &Orchestrator{
		cfg:      cfg,
		events:   events,
		prices:   prices,
		store:    store,
		universe: universe,
		logger:   logger,
		metrics:  m,
		inFlight: make(map[core.Date]struct{}),
	}
}

// DefaultTargetDate is yesterday UTC, the most recent fully published day.
func DefaultTargetDate(now time.Time) core.Date {
	return core.DateOf(now).AddDays(-1)
}

// Run executes the pipeline for one target date. Re-running an unchanged day
// reproduces the same content hash and atomically replaces the publication.
func (o *Orchestrator) Run(ctx context.Context, target core.Date, opts Options) RunOutcome {
	started := time.Now()
	outcome := RunOutcome{
		RunID:      uuid.NewString(),
		TargetDate: target,
		State:      StatePending,
	}

	if !o.acquire(target) {
		outcome.State = StateFailedSoft
		outcome.Err = core.WrapError(core.ErrUpstreamUnavailable,
			fmt.Errorf("run for %s already in flight", target))
		return o.finish(outcome, started)
	}
	defer o.release(target)

	log := o.logger.With(zap.String("run_id", outcome.RunID), zap.String("target_date", target.String()))
	log.Info("pipeline run starting", zap.Bool("dry_run", opts.DryRun))

	err := o.execute(ctx, target, opts, &outcome, log)
	if err != nil {
		outcome.Err = err
		outcome.State = classify(err)
		log.Error("pipeline run failed",
			zap.String("state", string(outcome.State)),
			zap.Error(err),
		)
	} else {
		outcome.State = StateDone
	}

	return o.finish(outcome, started)
}

func (o *Orchestrator) execute(ctx context.Context, target core.Date, opts Options, outcome *RunOutcome, log *zap.Logger) error {
	// Event features reach back at most the engineer's lookback; earlier
	// grid days stay zero-filled by design.
	if err := o.transition(ctx, outcome, StateFetchingEvents); err != nil {
		return err
	}
	eventDays := feature.MaxLookback
	if eventDays > o.cfg.LookbackDays {
		eventDays = o.cfg.LookbackDays
	}

	eventsByDay := make(map[core.Date][]core.EventRecord, eventDays+1)
	for i := eventDays; i >= 0; i-- {
		day := target.AddDays(-i)
		records, err := o.events.FetchDay(ctx, day)
		if err != nil {
			if day == target {
				// The target day itself must be present.
				return err
			}
			// A missing historical day degrades to a zero day.
			log.Warn("event day unavailable, zero-filling",
				zap.String("date", day.String()),
				zap.Error(err),
			)
			continue
		}
		eventsByDay[day] = records
	}

	if err := o.transition(ctx, outcome, StateAggregating); err != nil {
		return err
	}
	var aggregated []core.AggregatedEvent
	for day, records := range eventsByDay {
		aggregated = append(aggregated, aggregate.Aggregate(records, day, o.universe)...)
	}

	if err := o.transition(ctx, outcome, StateFetchingPrices); err != nil {
		return err
	}
	prices, stale, err := o.prices.FetchPrices(ctx, target, o.cfg.LookbackDays)
	if err != nil {
		return err
	}
	outcome.StalePrices = stale

	if err := o.transition(ctx, outcome, StateAligning); err != nil {
		return err
	}
	dates := align.GridDates(target, o.cfg.LookbackDays)
	rows := align.Align(aggregated, prices, o.universe, dates)
	if len(rows) == 0 {
		return core.WrapError(core.ErrAlignmentGap,
			fmt.Errorf("no grid rows survive alignment for %s", target))
	}

	if err := o.transition(ctx, outcome, StateFeaturizing); err != nil {
		return err
	}
	engineered := feature.Engineer(rows)
	o.metrics.ValuesClamped(engineered.Clamped)
	outcome.ColdStartCountries = engineered.ColdStart
	if len(engineered.ColdStart) > 0 {
		log.Warn("cold-start countries zero-padded",
			zap.Int("count", len(engineered.ColdStart)),
		)
	}

	if err := o.transition(ctx, outcome, StatePublishing); err != nil {
		return err
	}
	ds := &core.ProcessedDataset{
		TargetDate:   target,
		FeatureNames: feature.Names(),
		Rows:         engineered.Rows,
	}
	outcome.Rows = len(ds.Rows)

	if opts.DryRun {
		// Still compute the hash so dry runs are comparable to real ones.
		_, hash, err := dataset.Encode(ds)
		if err != nil {
			return err
		}
		outcome.ContentHash = hash
		log.Info("dry run, skipping publication", zap.String("content_hash", hash))
		return nil
	}

	key, err := o.store.Publish(ctx, ds)
	if err != nil {
		return core.WrapError(core.ErrCorrupt, err)
	}
	outcome.Key = key
	outcome.ContentHash = ds.ContentHash

	return nil
}

// Backfill runs days in ascending order. Individual failures are recorded
// and do not stop the loop; the set of published dates only grows.
func (o *Orchestrator) Backfill(ctx context.Context, start, end core.Date, opts Options) BackfillReport {
	var report BackfillReport

	for day := start; !day.After(end); day = day.AddDays(1) {
		if ctx.Err() != nil {
			break
		}
		outcome := o.Run(ctx, day, opts)
		report.Outcomes = append(report.Outcomes, outcome)
		if outcome.State == StateDone {
			report.Succeeded = append(report.Succeeded, day)
		} else {
			report.Failed = append(report.Failed, day)
		}
	}

	o.logger.Info("backfill finished",
		zap.Int("succeeded", len(report.Succeeded)),
		zap.Int("failed", len(report.Failed)),
	)

	return report
}

// transition advances the state machine, observing cancellation at each step.
func (o *Orchestrator) transition(ctx context.Context, outcome *RunOutcome, next State) error {
	if err := ctx.Err(); err != nil {
		return core.WrapError(core.ErrUpstreamUnavailable, err)
	}
	outcome.State = next
	return nil
}

func (o *Orchestrator) acquire(target core.Date) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inFlight[target]; busy {
		return false
	}
	o.inFlight[target] = struct{}{}
	return true
}

func (o *Orchestrator) release(target core.Date) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, target)
}

func (o *Orchestrator) finish(outcome RunOutcome, started time.Time) RunOutcome {
	outcome.Duration = time.Since(started)
	o.metrics.RunFinished(string(outcome.State), outcome.Duration.Seconds())
	return outcome
}

// classify maps terminal component errors to soft or hard failure. Transient
// upstream and alignment problems retry on the next scheduled run; schema,
// model and artifact inconsistencies need operator intervention.
func classify(err error) State {
	switch {
	case errors.Is(err, core.ErrUpstreamUnavailable),
		errors.Is(err, core.ErrAlignmentGap),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return StateFailedSoft
	default:
		return StateFailedHard
	}
}
