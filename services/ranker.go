package services

import (
	"fmt"
	"sort"

	"github.com/google/cel-go/cel"

	"vfm-car-finder/models"
)

// Rank orders listings best deal first: ascending VFM score, ties broken by
// listing id then URL. The input slice is left untouched.
func Rank(scored []*models.ScoredListing) []*models.ScoredListing {
	out := make([]*models.ScoredListing, len(scored))
	copy(out, scored)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.VFMScore != b.VFMScore {
			return a.VFMScore < b.VFMScore
		}
		if a.ListingID != b.ListingID {
			return a.ListingID < b.ListingID
		}
		return a.URL < b.URL
	})
	return out
}

// TopN returns at most n listings; n <= 0 returns all of them.
func TopN(ranked []*models.ScoredListing, n int) []*models.ScoredListing {
	if n <= 0 || n >= len(ranked) {
		return ranked
	}
	return ranked[:n]
}

// Filter is a compiled boolean CEL expression over a `listing` variable,
// e.g. `listing.deal == "GoodDeal" && listing.mileage < 100000.0`.
type Filter struct {
	expr string
	prg  cel.Program
}

// NewFilter compiles expr. An empty expression matches everything.
func NewFilter(expr string) (*Filter, error) {
	if expr == "" {
		return &Filter{}, nil
	}
	env, err := cel.NewEnv(cel.Variable("listing", cel.DynType))
	if err != nil {
		return nil, fmt.Errorf("filter: env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("filter: compile %q: %w", expr, issues.Err())
	}
	if ot := ast.OutputType(); !ot.IsExactType(cel.BoolType) && !ot.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("filter: %q must return bool, got %s", expr, ot)
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("filter: program: %w", err)
	}
	return &Filter{expr: expr, prg: prg}, nil
}

// Match evaluates the filter against one listing.
func (f *Filter) Match(l *models.ScoredListing) (bool, error) {
	if f.prg == nil {
		return true, nil
	}
	out, _, err := f.prg.Eval(map[string]any{"listing": filterInput(l)})
	if err != nil {
		return false, fmt.Errorf("filter: eval %q: %w", f.expr, err)
	}
	ok, isBool := out.Value().(bool)
	if !isBool {
		return false, fmt.Errorf("filter: %q returned %T, want bool", f.expr, out.Value())
	}
	return ok, nil
}

// Apply keeps the listings that match, preserving order.
func (f *Filter) Apply(ranked []*models.ScoredListing) ([]*models.ScoredListing, error) {
	if f.prg == nil {
		return ranked, nil
	}
	out := make([]*models.ScoredListing, 0, len(ranked))
	for _, l := range ranked {
		ok, err := f.Match(l)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, l)
		}
	}
	return out, nil
}

func filterInput(l *models.ScoredListing) map[string]any {
	return map[string]any{
		"listing_id":      l.ListingID,
		"url":             l.URL,
		"title":           l.Title,
		"title_id":        l.TitleID,
		"price":           l.Price,
		"predicted_price": l.PredictedPrice,
		"vfm_score":       l.VFMScore,
		"price_diff_pct":  l.PriceDiffPct,
		"deal":            string(l.Deal),
		"mileage":         l.Mileage,
		"engine_volume":   l.EngineVolume,
		"months_on_road":  int64(l.MonthsOnRoad),
		"fuel_type":       l.FuelType,
		"transmission":    l.Transmission,
	}
}
