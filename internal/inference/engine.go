package inference

import (
	"fmt"
	"math"
	"sort"

	"github.com/crudecast/crudecast/internal/core"
	"github.com/crudecast/crudecast/internal/model"
	"go.uber.org/zap"
)

// DefaultTemperature is used when neither the bundle metadata nor the
// configuration pins the attention sharpness.
const DefaultTemperature = 0.25

// Config holds inference settings.
type Config struct {
	// Temperature is the fallback attention temperature; bundle metadata
	// takes precedence.
	Temperature float64

	// TopCountriesCount truncates the attribution list.
	TopCountriesCount int
}

// Engine produces the hierarchical two-stage prediction: per-country raw
// deltas from the trained regressors, combined by temperature-scaled
// attention into one aggregate delta with per-country attribution.
type Engine struct {
	cfg    Config
	logger *zap.Logger
}

// New creates an inference engine.
func New(cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TopCountriesCount < 1 {
		cfg.TopCountriesCount = 15
	}
	return &Engine{cfg: cfg, logger: logger}
}

// Predict runs inference for the latest date in the dataset.
func (e *Engine) Predict(ds *core.ProcessedDataset, bundle *model.Bundle) (*core.PredictionReport, error) {
	if err := checkSchema(ds.FeatureNames, bundle.Metadata.FeatureNames); err != nil {
		return nil, err
	}

	// Last row per country; the dataset is ordered by (country, date) so a
	// single pass keeps each country's final row.
	lastRow := make(map[core.CountryCode]core.FeatureRow)
	for _, row := range ds.Rows {
		lastRow[row.Country] = row
	}

	universe := bundle.Universe
	var included []core.CountryCode
	var skipped []core.CountryCode
	rawDelta := make(map[core.CountryCode]float64)

	for _, country := range universe.Codes() {
		row, inDataset := lastRow[country]
		reg, hasModel := bundle.Regressors[country]
		if !inDataset || !hasModel {
			skipped = append(skipped, country)
			continue
		}
		scaled := bundle.Scaler.Transform(row.Values)
		rawDelta[country] = reg.Predict(scaled)
		included = append(included, country)
	}

	if len(included) == 0 {
		return nil, core.WrapError(core.ErrUpstreamUnavailable,
			fmt.Errorf("no countries with both data and a regressor"))
	}

	temperature := bundle.Metadata.Temperature
	if temperature <= 0 {
		temperature = e.cfg.Temperature
	}
	if temperature <= 0 {
		temperature = DefaultTemperature
	}

	attention := e.attentionWeights(included, rawDelta, bundle, temperature)

	perCountry := make(map[core.CountryCode]core.CountryContribution, len(included))
	var predictedDelta, totalAbs float64
	for _, country := range included {
		contribution := rawDelta[country] * attention[country]
		predictedDelta += contribution
		totalAbs += math.Abs(contribution)
		perCountry[country] = core.CountryContribution{
			Country:         country,
			RawDelta:        rawDelta[country],
			AttentionWeight: attention[country],
			Contribution:    contribution,
		}
	}
	for country, c := range perCountry {
		if totalAbs > 0 {
			c.Percentage = math.Abs(c.Contribution) / totalAbs * 100
		}
		perCountry[country] = c
	}

	if math.IsNaN(predictedDelta) || math.IsInf(predictedDelta, 0) {
		return nil, core.WrapError(core.ErrInvariant,
			fmt.Errorf("non-finite predicted delta"))
	}

	referenceClose, err := referenceClose(ds)
	if err != nil {
		return nil, err
	}

	report := &core.PredictionReport{
		TargetDate:           ds.LatestDate(),
		ReferenceClose:       referenceClose,
		PredictedDelta:       predictedDelta,
		PredictedClose:       referenceClose + predictedDelta,
		Direction:            direction(predictedDelta),
		PerCountry:           perCountry,
		TopContributors:      topContributors(perCountry, e.cfg.TopCountriesCount),
		TotalAbsContribution: totalAbs,
		NumCountries:         len(included),
		SkippedCountries:     skipped,
		ModelVersion:         bundle.Metadata.ModelVersion,
	}

	e.logger.Info("prediction computed",
		zap.String("date", report.TargetDate.String()),
		zap.Float64("predicted_delta", predictedDelta),
		zap.Int("countries", len(included)),
		zap.Int("skipped", len(skipped)),
	)

	return report, nil
}

// attentionWeights computes a temperature softmax over each country's
// salience: its adjacency row sum weighted by signal magnitude. The max score
// is subtracted before exponentiation for numerical stability.
func (e *Engine) attentionWeights(included []core.CountryCode, rawDelta map[core.CountryCode]float64, bundle *model.Bundle, temperature float64) map[core.CountryCode]float64 {
	scores := make([]float64, len(included))
	maxScore := math.Inf(-1)
	for i, country := range included {
		scores[i] = bundle.AdjacencyRowSum(bundle.Universe.Index(country)) * math.Abs(rawDelta[country])
		if scores[i] > maxScore {
			maxScore = scores[i]
		}
	}

	exps := make([]float64, len(included))
	var sum float64
	for i := range scores {
		exps[i] = math.Exp((scores[i] - maxScore) / temperature)
		sum += exps[i]
	}

	attention := make(map[core.CountryCode]float64, len(included))
	for i, country := range included {
		attention[country] = exps[i] / sum
	}
	return attention
}

func checkSchema(dataset, bundle []string) error {
	if len(dataset) != len(bundle) {
		return core.WrapError(core.ErrSchemaMismatch,
			fmt.Errorf("dataset has %d features, model expects %d", len(dataset), len(bundle)))
	}
	for i := range dataset {
		if dataset[i] != bundle[i] {
			return core.WrapError(core.ErrSchemaMismatch,
				fmt.Errorf("feature %d is %q in dataset, %q in model", i, dataset[i], bundle[i]))
		}
	}
	return nil
}

// referenceClose returns the last wti_price in the dataset.
func referenceClose(ds *core.ProcessedDataset) (float64, error) {
	idx := -1
	for i, name := range ds.FeatureNames {
		if name == "wti_price" {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0, core.WrapError(core.ErrSchemaMismatch,
			fmt.Errorf("dataset lacks wti_price"))
	}

	latest := ds.LatestDate()
	for i := len(ds.Rows) - 1; i >= 0; i-- {
		if ds.Rows[i].Date == latest {
			return ds.Rows[i].Values[idx], nil
		}
	}
	return 0, core.WrapError(core.ErrInvariant, fmt.Errorf("dataset has no rows"))
}

func direction(delta float64) string {
	switch {
	case delta > 0:
		return "UP"
	case delta < 0:
		return "DOWN"
	default:
		return "FLAT"
	}
}

// topContributors sorts by absolute contribution, descending, and truncates.
func topContributors(perCountry map[core.CountryCode]core.CountryContribution, limit int) []core.CountryContribution {
	out := make([]core.CountryContribution, 0, len(perCountry))
	for _, c := range perCountry {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := math.Abs(out[i].Contribution), math.Abs(out[j].Contribution)
		if ai != aj {
			return ai > aj
		}
		return out[i].Country < out[j].Country
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
