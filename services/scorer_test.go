package services

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vfm-car-finder/models"
)

func TestThresholdsValidate(t *testing.T) {
	assert.NoError(t, DefaultThresholds().Validate())
	assert.NoError(t, Thresholds{Low: 0, High: 0}.Validate())
	assert.ErrorIs(t, Thresholds{Low: 1, High: -1}.Validate(), models.ErrInvalidThresholds)
	assert.ErrorIs(t, Thresholds{Low: math.NaN(), High: 1}.Validate(), models.ErrInvalidThresholds)

	_, err := NewScorer(nil, Thresholds{Low: 2, High: 1}, newTestLogger())
	assert.ErrorIs(t, err, models.ErrInvalidThresholds)
}

func TestThresholdsLabelBoundaries(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		score float64
		want  models.DealLabel
	}{
		{-3, models.GoodDeal},
		{-1, models.GoodDeal},
		{-0.999, models.FairPrice},
		{0, models.FairPrice},
		{1, models.FairPrice},
		{1.001, models.Overpriced},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, th.Label(tt.score), "Label(%v)", tt.score)
	}
}

func TestScoreScenarios(t *testing.T) {
	s, err := NewScorer(testTable(t), DefaultThresholds(), newTestLogger())
	require.NoError(t, err)

	// corolla std 5000
	tests := []struct {
		name      string
		price     float64
		predicted float64
		score     float64
		deal      models.DealLabel
	}{
		{"overpriced", 100000, 90000, 2.0, models.Overpriced},
		{"good deal", 80000, 90000, -2.0, models.GoodDeal},
		{"fair", 89500, 90000, -0.1, models.FairPrice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &models.CleanListing{ListingID: "x", TitleID: "toyota corolla le", Price: tt.price}
			got := s.Score(l, tt.predicted)
			assert.InDelta(t, tt.score, got.VFMScore, 1e-9)
			assert.Equal(t, tt.deal, got.Deal)
			assert.False(t, got.UsedFallbackStd)
			assert.Equal(t, tt.predicted, got.PredictedPrice)
		})
	}
}

func TestScoreUnseenTitleUsesGlobalStd(t *testing.T) {
	s, err := NewScorer(testTable(t), DefaultThresholds(), newTestLogger())
	require.NoError(t, err)

	got := s.Score(&models.CleanListing{TitleID: "kia picanto", Price: 62000}, 50000)
	assert.True(t, got.UsedFallbackStd)
	assert.InDelta(t, 2.0, got.VFMScore, 1e-9)
	assert.InDelta(t, 24.0, got.PriceDiffPct, 1e-9)
	assert.Equal(t, models.Overpriced, got.Deal)
}

func TestScoreSignAndIdempotence(t *testing.T) {
	s, err := NewScorer(testTable(t), DefaultThresholds(), newTestLogger())
	require.NoError(t, err)

	for _, price := range []float64{40000, 89999, 90000, 90001, 150000} {
		l := &models.CleanListing{ListingID: "x", TitleID: "mazda 3 sport", Price: price}
		first := s.Score(l, 90000)
		second := s.Score(l, 90000)

		assert.Equal(t, first, second)
		switch {
		case price < 90000:
			assert.Less(t, first.VFMScore, 0.0)
		case price > 90000:
			assert.Greater(t, first.VFMScore, 0.0)
		default:
			assert.Zero(t, first.VFMScore)
		}
	}
}
