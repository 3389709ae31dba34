package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vfm-car-finder/models"
)

func scored(id, url string, score float64, deal models.DealLabel, mileage float64) *models.ScoredListing {
	return &models.ScoredListing{
		CleanListing: models.CleanListing{ListingID: id, URL: url, Mileage: mileage, Price: 80000, MonthsOnRoad: 30},
		VFMScore:     score,
		Deal:         deal,
	}
}

func ids(ls []*models.ScoredListing) []string {
	out := make([]string, 0, len(ls))
	for _, l := range ls {
		out = append(out, l.ListingID+l.URL)
	}
	return out
}

func TestRank(t *testing.T) {
	in := []*models.ScoredListing{
		scored("c", "", 0.5, models.FairPrice, 0),
		scored("b", "", -2, models.GoodDeal, 0),
		scored("a", "", 0.5, models.FairPrice, 0),
		scored("", "u2", -2, models.GoodDeal, 0),
		scored("", "u1", -2, models.GoodDeal, 0),
	}
	before := ids(in)

	got := Rank(in)
	assert.Equal(t, []string{"u1", "u2", "b", "a", "c"}, ids(got))
	assert.Equal(t, before, ids(in), "input must not be reordered")
}

func TestTopN(t *testing.T) {
	in := []*models.ScoredListing{scored("a", "", 0, "", 0), scored("b", "", 0, "", 0)}
	assert.Len(t, TopN(in, 1), 1)
	assert.Len(t, TopN(in, 0), 2)
	assert.Len(t, TopN(in, 5), 2)
}

func TestFilter(t *testing.T) {
	in := []*models.ScoredListing{
		scored("a", "", -2, models.GoodDeal, 50000),
		scored("b", "", -1.5, models.GoodDeal, 180000),
		scored("c", "", 0.2, models.FairPrice, 20000),
	}

	tests := []struct {
		expr string
		want []string
	}{
		{"", []string{"a", "b", "c"}},
		{`listing.deal == "GoodDeal"`, []string{"a", "b"}},
		{`listing.deal == "GoodDeal" && listing.mileage < 100000.0`, []string{"a"}},
		{`listing.vfm_score > -1.6`, []string{"b", "c"}},
		{`listing.months_on_road <= 30`, []string{"a", "b", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			f, err := NewFilter(tt.expr)
			require.NoError(t, err)
			got, err := f.Apply(in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestFilterErrors(t *testing.T) {
	_, err := NewFilter(`listing.price >`)
	assert.Error(t, err)

	_, err = NewFilter(`1 + 2`)
	assert.Error(t, err)

	f, err := NewFilter(`listing.price`)
	require.NoError(t, err)
	_, err = f.Apply([]*models.ScoredListing{scored("a", "", 0, "", 0)})
	assert.Error(t, err)
}
