package pipeline

import (
	"time"

	"github.com/crudecast/crudecast/internal/core"
)

// State is one step of the per-day pipeline state machine.
type State string

const (
	StatePending        State = "PENDING"
	StateFetchingEvents State = "FETCHING_EVENTS"
	StateAggregating    State = "AGGREGATING"
	StateFetchingPrices State = "FETCHING_PRICES"
	StateAligning       State = "ALIGNING"
	StateFeaturizing    State = "FEATURIZING"
	StatePublishing     State = "PUBLISHING"
	StateDone           State = "DONE"
	StateFailedSoft     State = "FAILED_SOFT"
	StateFailedHard     State = "FAILED_HARD"
)

// Terminal reports whether the state ends a run.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailedSoft || s == StateFailedHard
}

// Options control a single run.
type Options struct {
	// DryRun skips publication.
	DryRun bool
}

// RunOutcome is the result of one pipeline run.
type RunOutcome struct {
	RunID       string
	TargetDate  core.Date
	State       State
	Key         string
	ContentHash string
	Rows        int

	// StalePrices marks that the price series came from a cached snapshot.
	StalePrices bool

	// ColdStartCountries had fewer rows than the feature engine's maximum
	// lookback; their histories were zero-padded.
	ColdStartCountries []core.CountryCode

	Err      error
	Duration time.Duration
}

// BackfillReport summarizes a date-range backfill.
type BackfillReport struct {
	Outcomes  []RunOutcome
	Succeeded []core.Date
	Failed    []core.Date
}
