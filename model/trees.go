package model

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"vfm-car-finder/models"
)

// TreeNode is one node of a regression tree. Leaf nodes carry Value; split
// nodes send x[Feature] <= Threshold to Left and everything else to Right.
// A missing (NaN) value follows DefaultLeft.
type TreeNode struct {
	Leaf        bool    `json:"leaf"`
	Value       float64 `json:"value"`
	Feature     int     `json:"feature"`
	Threshold   float64 `json:"threshold"`
	Left        int     `json:"left"`
	Right       int     `json:"right"`
	DefaultLeft bool    `json:"default_left"`
}

// Tree is a flat node array rooted at index 0.
type Tree struct {
	Nodes []TreeNode `json:"nodes"`
}

// TreeEnsemble is an additive gradient-boosted tree model exported from
// the offline trainer.
type TreeEnsemble struct {
	Version     string  `json:"version"`
	BaseScore   float64 `json:"base_score"`
	NumFeatures int     `json:"num_features"`
	LogTarget   bool    `json:"log_target"`
	Trees       []Tree  `json:"trees"`
}

func parseTrees(data []byte) (*TreeEnsemble, error) {
	var m TreeEnsemble
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse tree ensemble: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// validate makes every walk terminate: children always point forward.
func (m *TreeEnsemble) validate() error {
	if m.NumFeatures <= 0 {
		return fmt.Errorf("tree ensemble has no num_features")
	}
	if len(m.Trees) == 0 {
		return fmt.Errorf("tree ensemble has no trees")
	}
	for ti, t := range m.Trees {
		if len(t.Nodes) == 0 {
			return fmt.Errorf("tree %d is empty", ti)
		}
		for ni, n := range t.Nodes {
			if n.Leaf {
				continue
			}
			if n.Feature < 0 || n.Feature >= m.NumFeatures {
				return fmt.Errorf("tree %d node %d splits on feature %d", ti, ni, n.Feature)
			}
			for _, child := range []int{n.Left, n.Right} {
				if child <= ni || child >= len(t.Nodes) {
					return fmt.Errorf("tree %d node %d has invalid child %d", ti, ni, child)
				}
			}
		}
	}
	return nil
}

func (m *TreeEnsemble) Name() string { return "tree_ensemble" }

func (m *TreeEnsemble) Width() int { return m.NumFeatures }

func (m *TreeEnsemble) Predict(_ context.Context, batch []Vector) ([]float64, error) {
	out := make([]float64, len(batch))
	for i, v := range batch {
		if len(v) != m.NumFeatures {
			return nil, &models.MismatchError{Reason: fmt.Sprintf("row %d has %d features, model expects %d", i, len(v), m.NumFeatures)}
		}
		y := m.BaseScore
		for _, t := range m.Trees {
			y += t.eval(v)
		}
		if m.LogTarget {
			y = math.Exp(y)
		}
		out[i] = y
	}
	return out, nil
}

func (t Tree) eval(v Vector) float64 {
	idx := 0
	for {
		n := t.Nodes[idx]
		if n.Leaf {
			return n.Value
		}
		x := v[n.Feature]
		switch {
		case math.IsNaN(x):
			if n.DefaultLeft {
				idx = n.Left
			} else {
				idx = n.Right
			}
		case x <= n.Threshold:
			idx = n.Left
		default:
			idx = n.Right
		}
	}
}
