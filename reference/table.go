// Package reference holds the per-title statistics computed offline from
// historical listings: residual std, average price and mileage, and price
// quartiles. A Table is loaded once before a run and never mutated.
package reference

import (
	"fmt"
	"math"
	"sort"

	"vfm-car-finder/models"
	"vfm-car-finder/utils"
)

// GlobalKey is the row that carries the global fallback std.
const GlobalKey = "__global__"

// TitleStats are the historical aggregates of one title.
type TitleStats struct {
	Title           string  `json:"title"`
	StdError        float64 `json:"std_error"`
	AvgPrice        float64 `json:"avg_price_by_title"`
	AvgMileage      float64 `json:"avg_mileage_by_title"`
	AvgMonthsOnRoad float64 `json:"avg_months_on_road_by_title"`
	PriceQ1         float64 `json:"price_q1"`
	PriceQ3         float64 `json:"price_q3"`
	Count           int     `json:"count"`
}

// HasQuartiles reports whether the interquartile range is usable.
func (s TitleStats) HasQuartiles() bool {
	return s.PriceQ1 > 0 && s.PriceQ3 >= s.PriceQ1
}

// Table maps canonical title ids to their stats.
type Table struct {
	stats       map[string]TitleStats
	fallbackStd float64
	ids         []string
}

// NewTable builds a Table from rows keyed by raw title. Keys are normalized
// with utils.NormalizeTitle. The global row (GlobalKey) sets the fallback
// std; defaultStd is used when no global row is present. A row whose std is
// zero, negative or non-finite inherits the fallback.
func NewTable(rows []TitleStats, defaultStd float64) (*Table, error) {
	t := &Table{stats: make(map[string]TitleStats, len(rows))}

	fallback := defaultStd
	for _, r := range rows {
		if r.Title == GlobalKey && validStd(r.StdError) {
			fallback = r.StdError
		}
	}
	if !validStd(fallback) {
		return nil, fmt.Errorf("%w: no positive global fallback std", models.ErrErrorTableLoad)
	}
	t.fallbackStd = fallback

	for _, r := range rows {
		if r.Title == GlobalKey {
			continue
		}
		id := utils.NormalizeTitle(r.Title)
		if id == "" {
			continue
		}
		if !validStd(r.StdError) {
			r.StdError = fallback
		}
		r.Title = id
		// variants of one trim collapse to the same id; keep the larger sample
		if prev, dup := t.stats[id]; dup && prev.Count >= r.Count {
			continue
		}
		t.stats[id] = r
	}
	if len(t.stats) == 0 {
		return nil, fmt.Errorf("%w: table has no title rows", models.ErrErrorTableLoad)
	}

	t.ids = make([]string, 0, len(t.stats))
	for id := range t.stats {
		t.ids = append(t.ids, id)
	}
	sort.Strings(t.ids)
	return t, nil
}

func validStd(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// Lookup returns the stats of a canonical title id.
func (t *Table) Lookup(titleID string) (TitleStats, bool) {
	s, ok := t.stats[titleID]
	return s, ok
}

// Std returns the residual std of a title, or the global fallback when the
// title is unknown. The returned value is always strictly positive.
func (t *Table) Std(titleID string) (std float64, fallback bool) {
	if s, ok := t.stats[titleID]; ok {
		return s.StdError, false
	}
	return t.fallbackStd, true
}

// FallbackStd is the global residual std.
func (t *Table) FallbackStd() float64 { return t.fallbackStd }

// AvgMileage returns the title's historical mean mileage, 0 when unseen.
func (t *Table) AvgMileage(titleID string) float64 {
	return t.stats[titleID].AvgMileage
}

// AvgMonthsOnRoad returns the title's historical mean age in months, 0 when unseen.
func (t *Table) AvgMonthsOnRoad(titleID string) float64 {
	return t.stats[titleID].AvgMonthsOnRoad
}

// TitleIDs returns every known canonical title id, sorted.
func (t *Table) TitleIDs() []string { return t.ids }

// Len is the number of titles in the table.
func (t *Table) Len() int { return len(t.stats) }
