package services

import (
	"vfm-car-finder/models"
	"vfm-car-finder/reference"
)

// OutlierPolicy bounds training prices per title.
type OutlierPolicy struct {
	// IQRK widens the per-title [Q1-k*IQR, Q3+k*IQR] band.
	IQRK float64
	// Ratio is used when a title has no quartiles: keep when 1/r < avg/price < r.
	Ratio float64
}

// DefaultOutlierPolicy returns k=1.5, r=10.
func DefaultOutlierPolicy() OutlierPolicy {
	return OutlierPolicy{IQRK: 1.5, Ratio: 10}
}

// DropPriceOutliers filters training data. It must never be applied on the
// live scoring path. Titles missing from the table are dropped.
func DropPriceOutliers(listings []*models.CleanListing, table *reference.Table, policy OutlierPolicy) (kept, dropped []*models.CleanListing) {
	if policy.IQRK < 0 {
		policy.IQRK = 0
	}
	if policy.Ratio <= 1 {
		policy.Ratio = DefaultOutlierPolicy().Ratio
	}

	for _, l := range listings {
		if keepPrice(l, table, policy) {
			kept = append(kept, l)
		} else {
			dropped = append(dropped, l)
		}
	}
	return kept, dropped
}

func keepPrice(l *models.CleanListing, table *reference.Table, policy OutlierPolicy) bool {
	stats, ok := table.Lookup(l.TitleID)
	if !ok {
		return false
	}
	if stats.HasQuartiles() {
		iqr := stats.PriceQ3 - stats.PriceQ1
		lo := stats.PriceQ1 - policy.IQRK*iqr
		hi := stats.PriceQ3 + policy.IQRK*iqr
		return l.Price >= lo && l.Price <= hi
	}
	if stats.AvgPrice <= 0 || l.Price <= 0 {
		return false
	}
	ratio := stats.AvgPrice / l.Price
	return ratio > 1/policy.Ratio && ratio < policy.Ratio
}
