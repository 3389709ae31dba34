package yad2

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"vfm-car-finder/models"
	"vfm-car-finder/utils"
)

const (
	selAdNumber  = `[class*="adNumber"]`
	selCreatedAt = `[class*="createdAt"]`
	selPrice     = `[data-testid="price"]`
	selSummary   = `[class*="itemValue"]`
	uploadPrefix = "פורסם ב"
)

// ParseDetail extracts a RawListing from the HTML of an ad page. Only the
// title is required; every other field is left empty when missing.
func ParseDetail(r io.Reader, pageURL string, scrapedAt time.Time) (*models.RawListing, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("yad2: parse detail html: %w", err)
	}

	raw := &models.RawListing{
		URL:        pageURL,
		ListingID:  digitsOnly(text(doc.Find(selAdNumber).First())),
		UploadDate: uploadDate(text(doc.Find(selCreatedAt).First())),
		ScrapeDate: scrapedAt.Format("02/01/2006"),
		Price:      text(doc.Find(selPrice).First()),
		Title:      text(doc.Find("h1").First()),
		ScrapedAt:  scrapedAt,
	}
	if raw.Title == "" {
		return nil, fmt.Errorf("yad2: %s: no title on page", pageURL)
	}

	summary := doc.Find(selSummary)
	if summary.Length() >= 2 {
		raw.YearSummary = text(summary.Eq(0))
		raw.OwnerCount = text(summary.Eq(1))
	}

	// each detail is <dd>label</dd><dt|dd>value</...>
	doc.Find("dd").Each(func(_ int, label *goquery.Selection) {
		key, ok := models.DetailLabels[text(label)]
		if !ok {
			return
		}
		if dst := raw.Field(key); dst != nil {
			*dst = text(label.Next())
		}
	})

	if raw.ListingID == "" {
		raw.ListingID = idFromURL(pageURL)
	}
	return raw, nil
}

func text(s *goquery.Selection) string {
	return utils.CollapseSpace(strings.ReplaceAll(s.Text(), "\u200d", ""))
}

func uploadDate(s string) string {
	return strings.TrimSpace(strings.TrimPrefix(s, uploadPrefix))
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range utils.FoldDigits(s) {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// idFromURL returns the token after "item/", e.g. ".../item/abc123?x=1" -> "abc123".
func idFromURL(u string) string {
	_, rest, ok := strings.Cut(u, "item/")
	if !ok {
		return ""
	}
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		rest = rest[:i]
	}
	return rest
}
