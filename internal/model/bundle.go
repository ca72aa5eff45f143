package model

import (
	"github.com/crudecast/crudecast/internal/core"
)

// Metadata pins the contract between training and inference: the exact
// feature ordering, the country universe and the attention temperature.
type Metadata struct {
	SchemaVersion int                `json:"schema_version"`
	ModelVersion  string             `json:"model_version"`
	Temperature   float64            `json:"temperature"`
	FeatureNames  []string           `json:"feature_names"`
	Countries     []core.CountryCode `json:"countries"`
}

// Scaler applies a fitted per-feature affine transform.
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Transform standardizes a feature vector in place order: (x - mean) / scale.
// A zero scale passes the centered value through unscaled.
func (s *Scaler) Transform(x []float64) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		scale := 1.0
		if i < len(s.Scale) && s.Scale[i] != 0 {
			scale = s.Scale[i]
		}
		var mean float64
		if i < len(s.Mean) {
			mean = s.Mean[i]
		}
		out[i] = (x[i] - mean) / scale
	}
	return out
}

// Bundle is the immutable set of trained artifacts one inference call needs.
// Bundles are shared-read across concurrent calls and never mutated after
// load.
type Bundle struct {
	Regressors map[core.CountryCode]Regressor
	Scaler     *Scaler
	Adjacency  [][]float64
	Metadata   Metadata
	Universe   *core.Universe
}

// AdjacencyRowSum returns the row sum for the country at canonical index i:
// its graph centrality.
func (b *Bundle) AdjacencyRowSum(i int) float64 {
	if i < 0 || i >= len(b.Adjacency) {
		return 0
	}
	var sum float64
	for _, v := range b.Adjacency[i] {
		sum += v
	}
	return sum
}
