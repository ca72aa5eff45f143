package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/crudecast/crudecast/internal/core"
	"github.com/crudecast/crudecast/internal/dataset"
	"github.com/crudecast/crudecast/internal/storage/object"
)

type fakeEvents struct {
	failDays map[core.Date]error
	calls    int
}

func (f *fakeEvents) FetchDay(ctx context.Context, day core.Date) ([]core.EventRecord, error) {
	f.calls++
	if err, ok := f.failDays[day]; ok {
		return nil, err
	}
	return []core.EventRecord{
		{
			Timestamp: day.Time().Add(12 * time.Hour),
			SourceID:  "example.com",
			Countries: []core.CountryCode{"RUS"},
			Tone:      -1.5,
			Themes:    []string{"ENV_OIL"},
		},
	}, nil
}

type fakePrices struct {
	err   error
	stale bool
}

func (f *fakePrices) FetchPrices(ctx context.Context, endDate core.Date, lookbackDays int) ([]core.PricePoint, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	points := make([]core.PricePoint, 0, lookbackDays+1)
	for i := lookbackDays; i >= 0; i-- {
		d := endDate.AddDays(-i)
		points = append(points, core.PricePoint{
			Date:       d,
			WTIClose:   70 + float64(i%5),
			BrentClose: 74 + float64(i%5),
		})
	}
	return points, f.stale, nil
}

type failingPublisher struct{}

func (failingPublisher) Publish(ctx context.Context, ds *core.ProcessedDataset) (string, error) {
	return "", fmt.Errorf("bucket gone")
}

func testTarget() core.Date {
	return core.Date{Year: 2025, Month: time.March, Day: 10}
}

func testOrchestrator(t *testing.T, events EventSource, prices PriceSource) (*Orchestrator, *dataset.Store) {
	t.Helper()
	fs, err := object.NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalFS: %v", err)
	}
	store := dataset.NewStore(fs, "processed_data/", nil, nil)
	universe := core.NewUniverse([]core.CountryCode{"RUS", "SAU"})
	return New(Config{LookbackDays: 45}, events, prices, store, universe, nil, nil), store
}

func TestRun_Success(t *testing.T) {
	orch, store := testOrchestrator(t, &fakeEvents{}, &fakePrices{})

	outcome := orch.Run(context.Background(), testTarget(), Options{})
	if outcome.Err != nil {
		t.Fatalf("Run: %v", outcome.Err)
	}
	if outcome.State != StateDone {
		t.Fatalf("state = %s, want DONE", outcome.State)
	}
	if outcome.Rows == 0 || outcome.ContentHash == "" || outcome.Key == "" {
		t.Errorf("incomplete outcome: %+v", outcome)
	}
	if outcome.RunID == "" {
		t.Error("missing run ID")
	}

	ds, err := store.LoadFor(context.Background(), testTarget())
	if err != nil {
		t.Fatalf("LoadFor: %v", err)
	}
	if ds.ContentHash != outcome.ContentHash {
		t.Errorf("published hash %s, outcome says %s", ds.ContentHash, outcome.ContentHash)
	}
}

func TestRun_Idempotent(t *testing.T) {
	orch, _ := testOrchestrator(t, &fakeEvents{}, &fakePrices{})
	ctx := context.Background()

	first := orch.Run(ctx, testTarget(), Options{})
	second := orch.Run(ctx, testTarget(), Options{})
	if first.Err != nil || second.Err != nil {
		t.Fatalf("runs failed: %v, %v", first.Err, second.Err)
	}
	if first.ContentHash != second.ContentHash {
		t.Errorf("re-run changed the hash: %s vs %s", first.ContentHash, second.ContentHash)
	}
}

func TestRun_TargetDayEventsRequired(t *testing.T) {
	events := &fakeEvents{failDays: map[core.Date]error{
		testTarget(): core.WrapError(core.ErrUpstreamUnavailable, fmt.Errorf("all bundles missing")),
	}}
	orch, _ := testOrchestrator(t, events, &fakePrices{})

	outcome := orch.Run(context.Background(), testTarget(), Options{})
	if outcome.State != StateFailedSoft {
		t.Errorf("state = %s, want FAILED_SOFT", outcome.State)
	}
	if !errors.Is(outcome.Err, core.ErrUpstreamUnavailable) {
		t.Errorf("err = %v", outcome.Err)
	}
}

func TestRun_HistoricalDayFailureTolerated(t *testing.T) {
	events := &fakeEvents{failDays: map[core.Date]error{
		testTarget().AddDays(-5): core.WrapError(core.ErrUpstreamUnavailable, fmt.Errorf("gap")),
	}}
	orch, _ := testOrchestrator(t, events, &fakePrices{})

	outcome := orch.Run(context.Background(), testTarget(), Options{})
	if outcome.State != StateDone {
		t.Errorf("state = %s, want DONE despite a historical gap", outcome.State)
	}
}

func TestRun_PriceFailureSoft(t *testing.T) {
	prices := &fakePrices{err: core.WrapError(core.ErrUpstreamUnavailable, fmt.Errorf("throttled"))}
	orch, _ := testOrchestrator(t, &fakeEvents{}, prices)

	outcome := orch.Run(context.Background(), testTarget(), Options{})
	if outcome.State != StateFailedSoft {
		t.Errorf("state = %s, want FAILED_SOFT", outcome.State)
	}
}

func TestRun_StalePricesSurface(t *testing.T) {
	orch, _ := testOrchestrator(t, &fakeEvents{}, &fakePrices{stale: true})

	outcome := orch.Run(context.Background(), testTarget(), Options{})
	if outcome.State != StateDone {
		t.Fatalf("state = %s", outcome.State)
	}
	if !outcome.StalePrices {
		t.Error("stale price flag not carried into the outcome")
	}
}

func TestRun_PublishFailureHard(t *testing.T) {
	universe := core.NewUniverse([]core.CountryCode{"RUS"})
	orch := New(Config{LookbackDays: 45}, &fakeEvents{}, &fakePrices{}, failingPublisher{}, universe, nil, nil)

	outcome := orch.Run(context.Background(), testTarget(), Options{})
	if outcome.State != StateFailedHard {
		t.Errorf("state = %s, want FAILED_HARD", outcome.State)
	}
}

func TestRun_DryRun(t *testing.T) {
	orch, store := testOrchestrator(t, &fakeEvents{}, &fakePrices{})

	outcome := orch.Run(context.Background(), testTarget(), Options{DryRun: true})
	if outcome.State != StateDone {
		t.Fatalf("state = %s: %v", outcome.State, outcome.Err)
	}
	if outcome.ContentHash == "" {
		t.Error("dry run should still report the content hash")
	}
	if outcome.Key != "" {
		t.Error("dry run published a key")
	}

	dates, err := store.PublishedDates(context.Background())
	if err != nil {
		t.Fatalf("PublishedDates: %v", err)
	}
	if len(dates) != 0 {
		t.Errorf("dry run published %d datasets", len(dates))
	}
}

func TestRun_Cancelled(t *testing.T) {
	orch, _ := testOrchestrator(t, &fakeEvents{}, &fakePrices{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome := orch.Run(ctx, testTarget(), Options{})
	if outcome.State != StateFailedSoft {
		t.Errorf("state = %s, want FAILED_SOFT on cancellation", outcome.State)
	}
}

func TestBackfill(t *testing.T) {
	badDay := testTarget().AddDays(-1)
	events := &fakeEvents{failDays: map[core.Date]error{
		badDay: core.WrapError(core.ErrUpstreamUnavailable, fmt.Errorf("gap")),
	}}
	orch, store := testOrchestrator(t, events, &fakePrices{})

	start := testTarget().AddDays(-2)
	report := orch.Backfill(context.Background(), start, testTarget(), Options{})

	if len(report.Outcomes) != 3 {
		t.Fatalf("got %d outcomes, want 3", len(report.Outcomes))
	}
	if len(report.Succeeded) != 2 || len(report.Failed) != 1 {
		t.Errorf("succeeded/failed = %d/%d, want 2/1", len(report.Succeeded), len(report.Failed))
	}
	if report.Failed[0] != badDay {
		t.Errorf("failed day = %s, want %s", report.Failed[0], badDay)
	}

	dates, err := store.PublishedDates(context.Background())
	if err != nil {
		t.Fatalf("PublishedDates: %v", err)
	}
	if len(dates) != 2 {
		t.Errorf("published %d datasets, want 2", len(dates))
	}
}

func TestStateTerminal(t *testing.T) {
	for _, s := range []State{StateDone, StateFailedSoft, StateFailedHard} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []State{StatePending, StateFetchingEvents, StatePublishing} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestDefaultTargetDate(t *testing.T) {
	now := time.Date(2025, time.March, 10, 3, 0, 0, 0, time.UTC)
	if got := DefaultTargetDate(now); got.String() != "2025-03-09" {
		t.Errorf("got %s, want yesterday UTC", got)
	}
}
