package model

import (
	"encoding/json"
	"fmt"
)

// Regressor is the single capability the inference engine depends on: a
// scalar delta from a fixed-length feature vector.
type Regressor interface {
	Predict(features []float64) float64
}

// treeNode is one node of a regression tree in array form. A node is a leaf
// when Left is negative; Value is only meaningful on leaves.
type treeNode struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
}

// gbdtRegressor is a gradient-boosted tree ensemble: the prediction is the
// base score plus the sum of leaf values, one per tree.
type gbdtRegressor struct {
	Base  float64      `json:"base"`
	Trees [][]treeNode `json:"trees"`
}

func (g *gbdtRegressor) Predict(features []float64) float64 {
	pred := g.Base
	for _, tree := range g.Trees {
		pred += evalTree(tree, features)
	}
	return pred
}

func evalTree(tree []treeNode, features []float64) float64 {
	if len(tree) == 0 {
		return 0
	}
	i := 0
	for tree[i].Left >= 0 {
		node := tree[i]
		if node.Feature < len(features) && features[node.Feature] <= node.Threshold {
			i = node.Left
		} else {
			i = node.Right
		}
	}
	return tree[i].Value
}

// linearRegressor is a plain affine model, kept as a second artifact kind for
// countries trained without enough signal for an ensemble.
type linearRegressor struct {
	Intercept float64   `json:"intercept"`
	Weights   []float64 `json:"weights"`
}

func (l *linearRegressor) Predict(features []float64) float64 {
	pred := l.Intercept
	for i, w := range l.Weights {
		if i >= len(features) {
			break
		}
		pred += w * features[i]
	}
	return pred
}

// UnmarshalRegressor picks the regressor implementation from the artifact's
// kind tag.
func UnmarshalRegressor(data []byte) (Regressor, error) {
	var probe struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("reading regressor kind: %w", err)
	}

	switch probe.Kind {
	case "gbdt":
		var r gbdtRegressor
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("decoding gbdt regressor: %w", err)
		}
		if err := validateTrees(r.Trees); err != nil {
			return nil, err
		}
		return &r, nil
	case "linear":
		var r linearRegressor
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("decoding linear regressor: %w", err)
		}
		return &r, nil
	default:
		return nil, fmt.Errorf("unknown regressor kind %q", probe.Kind)
	}
}

func validateTrees(trees [][]treeNode) error {
	for ti, tree := range trees {
		for ni, node := range tree {
			if node.Left >= len(tree) || node.Right >= len(tree) {
				return fmt.Errorf("tree %d node %d: child index out of range", ti, ni)
			}
			if node.Left >= 0 && node.Right < 0 {
				return fmt.Errorf("tree %d node %d: split with single child", ti, ni)
			}
		}
	}
	return nil
}
