package services

import (
	"fmt"
	"math"

	"vfm-car-finder/models"
	"vfm-car-finder/reference"
	"vfm-car-finder/utils"
)

// Thresholds split VFM scores into deal labels:
// score <= Low is a good deal, score > High is overpriced.
type Thresholds struct {
	Low  float64
	High float64
}

// DefaultThresholds are one standard error either side of the model price.
func DefaultThresholds() Thresholds {
	return Thresholds{Low: -1, High: 1}
}

// Validate checks the thresholds are finite and ordered.
func (t Thresholds) Validate() error {
	if math.IsNaN(t.Low) || math.IsNaN(t.High) || math.IsInf(t.Low, 0) || math.IsInf(t.High, 0) {
		return fmt.Errorf("%w: thresholds must be finite", models.ErrInvalidThresholds)
	}
	if t.Low > t.High {
		return fmt.Errorf("%w: low %.2f > high %.2f", models.ErrInvalidThresholds, t.Low, t.High)
	}
	return nil
}

// Label classifies a VFM score.
func (t Thresholds) Label(score float64) models.DealLabel {
	switch {
	case score <= t.Low:
		return models.GoodDeal
	case score > t.High:
		return models.Overpriced
	default:
		return models.FairPrice
	}
}

// Scorer turns a price residual into a title-normalized VFM score.
// It is deterministic and holds no mutable state.
type Scorer struct {
	table      *reference.Table
	thresholds Thresholds
	logger     *utils.Logger
}

// NewScorer creates a Scorer after validating the thresholds.
func NewScorer(table *reference.Table, thresholds Thresholds, logger *utils.Logger) (*Scorer, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{table: table, thresholds: thresholds, logger: logger}, nil
}

// Score computes (actual - predicted) / std for the listing's title. A
// title missing from the table uses the global std and is flagged.
func (s *Scorer) Score(l *models.CleanListing, predicted float64) *models.ScoredListing {
	std, fallback := s.table.Std(l.TitleID)
	if fallback {
		s.logger.Debug("[scorer] No error entry for %q, using global std %.0f", l.TitleID, std)
	}

	residual := l.Price - predicted
	score := residual / std

	return &models.ScoredListing{
		CleanListing:    *l,
		PredictedPrice:  predicted,
		VFMScore:        score,
		PriceDiffPct:    100 * residual / predicted,
		Deal:            s.thresholds.Label(score),
		UsedFallbackStd: fallback,
	}
}
