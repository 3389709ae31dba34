package model

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"vfm-car-finder/models"
)

// Regressor predicts a fair price for each encoded row.
type Regressor interface {
	Name() string
	// Width is the expected vector length, 0 when the regressor does not know it.
	Width() int
	Predict(ctx context.Context, batch []Vector) ([]float64, error)
}

// artifact header shared by every on-disk regressor format
type artifactHeader struct {
	Type    string `json:"type"`
	Version string `json:"version"`
}

// LoadRegressor reads a JSON regressor artifact and picks the
// implementation from its "type" field.
func LoadRegressor(path string) (Regressor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read model: %v", models.ErrModelLoad, err)
	}
	return ParseRegressor(data)
}

// ParseRegressor decodes a JSON regressor artifact.
func ParseRegressor(data []byte) (Regressor, error) {
	var h artifactHeader
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("%w: parse model json: %v", models.ErrModelLoad, err)
	}

	var (
		r   Regressor
		err error
	)
	switch h.Type {
	case "linear":
		r, err = parseLinear(data)
	case "tree_ensemble":
		r, err = parseTrees(data)
	default:
		return nil, fmt.Errorf("%w: unknown model type %q", models.ErrModelLoad, h.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrModelLoad, err)
	}
	return r, nil
}

// LinearRegressor computes Intercept + sum(Coefficients[i] * x[i]).
// With LogTarget the model was fitted on log(price) and the output is exponentiated.
type LinearRegressor struct {
	Version      string    `json:"version"`
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
	LogTarget    bool      `json:"log_target"`
}

func parseLinear(data []byte) (*LinearRegressor, error) {
	var m LinearRegressor
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse linear model: %w", err)
	}
	if len(m.Coefficients) == 0 {
		return nil, fmt.Errorf("linear model has no coefficients")
	}
	return &m, nil
}

func (m *LinearRegressor) Name() string { return "linear" }

func (m *LinearRegressor) Width() int { return len(m.Coefficients) }

func (m *LinearRegressor) Predict(_ context.Context, batch []Vector) ([]float64, error) {
	out := make([]float64, len(batch))
	for i, v := range batch {
		if len(v) != len(m.Coefficients) {
			return nil, &models.MismatchError{Reason: fmt.Sprintf("row %d has %d features, model expects %d", i, len(v), len(m.Coefficients))}
		}
		y := m.Intercept
		for j, x := range v {
			y += m.Coefficients[j] * x
		}
		if m.LogTarget {
			y = math.Exp(y)
		}
		out[i] = y
	}
	return out, nil
}
