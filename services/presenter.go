package services

import (
	"fmt"
	"io"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"vfm-car-finder/models"
)

// Presenter renders ranked listings for a terminal.
type Presenter struct {
	out   io.Writer
	style table.Style
}

// NewPresenter creates a Presenter writing to out.
func NewPresenter(out io.Writer) *Presenter {
	return &Presenter{out: out, style: table.StyleRounded}
}

// RenderRanking prints one row per listing, in the given order.
func (p *Presenter) RenderRanking(ranked []*models.ScoredListing) {
	t := table.NewWriter()
	t.SetOutputMirror(p.out)
	t.AppendHeader(table.Row{"#", "Title", "Price", "Predicted", "Diff", "VFM", "Deal", "Mileage", "Age", "URL"})

	for i, l := range ranked {
		t.AppendRow(table.Row{
			i + 1,
			truncate(l.Title, 32),
			"₪" + humanize.Comma(int64(l.Price)),
			"₪" + humanize.Comma(int64(l.PredictedPrice+0.5)),
			fmt.Sprintf("%+.1f%%", l.PriceDiffPct),
			fmt.Sprintf("%+.2f", l.VFMScore),
			dealMarker(l),
			humanize.Comma(int64(l.Mileage)) + " km",
			fmt.Sprintf("%dm", l.MonthsOnRoad),
			l.URL,
		})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d listings", len(ranked))})
	t.SetStyle(p.style)
	t.Render()
}

// RenderRejections prints the rejection counts of a run.
func (p *Presenter) RenderRejections(run *models.RunReport) {
	counts := run.RejectionsByReason()
	if len(counts) == 0 {
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(p.out)
	t.AppendHeader(table.Row{"Rejection", "Count"})
	for _, kv := range sortedCounts(counts) {
		t.AppendRow(table.Row{kv.key, kv.count})
	}
	t.SetStyle(p.style)
	t.Render()
}

func dealMarker(l *models.ScoredListing) string {
	s := string(l.Deal)
	if l.UsedFallbackStd {
		s += "*"
	}
	return s
}

type keyCount struct {
	key   string
	count int
}

func sortedCounts(counts map[string]int) []keyCount {
	rows := make([]keyCount, 0, len(counts))
	for k, n := range counts {
		rows = append(rows, keyCount{k, n})
	}
	// count desc, then key
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].count != rows[j].count {
			return rows[i].count > rows[j].count
		}
		return rows[i].key < rows[j].key
	})
	return rows
}
