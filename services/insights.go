package services

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"vfm-car-finder/models"
	"vfm-car-finder/utils"
)

type InsightService struct {
	logger *utils.Logger
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

func (s *InsightService) Generate(run *models.RunReport) *models.InsightReport {
	report := &models.InsightReport{
		ByDeal:          make(map[models.DealLabel]int),
		ByTitle:         make(map[string]int),
		RejectionsByWhy: make(map[string]int),
	}
	if run == nil {
		return report
	}

	report.TotalRejected = len(run.Rejections)
	for reason, n := range run.RejectionsByReason() {
		report.RejectionsByWhy[reason] = n
	}

	listings := run.Listings
	if len(listings) == 0 {
		return report
	}
	report.TotalScored = len(listings)

	report.MinPrice = listings[0].Price
	report.MaxPrice = listings[0].Price
	report.BestDeal = listings[0]
	report.WorstDeal = listings[0]
	var totalPrice, totalPredict float64
	for _, l := range listings {
		report.ByDeal[l.Deal]++
		report.ByTitle[l.Title]++
		totalPrice += l.Price
		totalPredict += l.PredictedPrice

		if l.Price < report.MinPrice {
			report.MinPrice = l.Price
		}
		if l.Price > report.MaxPrice {
			report.MaxPrice = l.Price
		}
		if l.VFMScore < report.BestDeal.VFMScore {
			report.BestDeal = l
		}
		if l.VFMScore > report.WorstDeal.VFMScore {
			report.WorstDeal = l
		}
	}
	report.AveragePrice = round2(totalPrice / float64(len(listings)))
	report.AveragePredict = round2(totalPredict / float64(len(listings)))

	s.logger.Debug("[insights] %d scored, %d good deals", report.TotalScored, report.ByDeal[models.GoodDeal])
	return report
}

func (s *InsightService) Print(w io.Writer, r *models.InsightReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  🚗 VALUE-FOR-MONEY INSIGHTS\033[0m\n")
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	fmt.Fprintf(w, "\033[1;33m  Overview\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Listings scored   : \033[1m%d\033[0m\n", r.TotalScored)
	fmt.Fprintf(w, "  Listings rejected : \033[1m%d\033[0m\n", r.TotalRejected)
	for _, label := range []models.DealLabel{models.GoodDeal, models.FairPrice, models.Overpriced} {
		fmt.Fprintf(w, "  %-17s : %d\n", label, r.ByDeal[label])
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Price Statistics\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if r.TotalScored > 0 {
		fmt.Fprintf(w, "  Average asking    : \033[1;32m%s\033[0m\n", formatPrice(r.AveragePrice))
		fmt.Fprintf(w, "  Average predicted : \033[1;32m%s\033[0m\n", formatPrice(r.AveragePredict))
		fmt.Fprintf(w, "  Cheapest          : \033[1;32m%s\033[0m\n", formatPrice(r.MinPrice))
		fmt.Fprintf(w, "  Most expensive    : \033[1;32m%s\033[0m\n", formatPrice(r.MaxPrice))
	} else {
		fmt.Fprintf(w, "  No scored listings\n")
	}
	fmt.Fprintln(w)

	if r.BestDeal != nil {
		fmt.Fprintf(w, "\033[1;33m  Best Deal\033[0m\n")
		fmt.Fprintf(w, "  %s\n", thin)
		fmt.Fprintf(w, "  %s\n", truncate(r.BestDeal.Title, 50))
		fmt.Fprintf(w, "  Price : \033[1;32m%s\033[0m (model %s, VFM %.2f)\n",
			formatPrice(r.BestDeal.Price), formatPrice(r.BestDeal.PredictedPrice), r.BestDeal.VFMScore)
		fmt.Fprintf(w, "  URL   : %s\n", r.BestDeal.URL)
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "\033[1;33m  Listings by Title\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	printCounts(w, r.ByTitle, "  No titles\n", true)
	fmt.Fprintln(w)

	if len(r.RejectionsByWhy) > 0 {
		fmt.Fprintf(w, "\033[1;33m  Rejections\033[0m\n")
		fmt.Fprintf(w, "  %s\n", thin)
		printCounts(w, r.RejectionsByWhy, "", false)
	}

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

// printCounts prints a count map sorted by count desc, then key.
func printCounts(w io.Writer, counts map[string]int, empty string, bars bool) {
	if len(counts) == 0 {
		fmt.Fprint(w, empty)
		return
	}
	for _, kc := range sortedCounts(counts) {
		if bars {
			fmt.Fprintf(w, "  %-30s %s (%d)\n", truncate(kc.key, 28), strings.Repeat("█", min(kc.count, 40)), kc.count)
		} else {
			fmt.Fprintf(w, "  %-30s %d\n", kc.key, kc.count)
		}
	}
}

func formatPrice(p float64) string {
	return "₪" + humanize.Commaf(round2(p))
}

func round2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}

// truncate shortens s to at most max runes.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
