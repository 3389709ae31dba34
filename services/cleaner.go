package services

import (
	"context"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
	"golang.org/x/sync/errgroup"

	"vfm-car-finder/config"
	"vfm-car-finder/models"
	"vfm-car-finder/reference"
	"vfm-car-finder/utils"
)

var (
	// numberRegexp captures the first signed number with its separators
	numberRegexp = regexp.MustCompile(`[-\x{2212}]?\d+(?:[,.' \x{066C}]\d+)*`)
	// dayRegexp captures d/m/yy style dates with / . or - separators
	dayRegexp = regexp.MustCompile(`(\d{1,2})[./-](\d{1,2})[./-](\d{4}|\d{2})\b`)
	// isoDayRegexp captures yyyy-mm-dd
	isoDayRegexp = regexp.MustCompile(`(\d{4})-(\d{1,2})-(\d{1,2})`)
	// monthRegexp captures m/yyyy
	monthRegexp = regexp.MustCompile(`\b(\d{1,2})[./-](\d{4})\b`)
	// isoMonthRegexp captures yyyy-mm
	isoMonthRegexp = regexp.MustCompile(`\b(\d{4})-(\d{1,2})\b`)
	// yearRegexp captures a plausible model year
	yearRegexp = regexp.MustCompile(`\b(19[5-9]\d|20\d{2})\b`)

	// NFKC turns these into plain spaces, so they go before folding
	spaceSeparators = strings.NewReplacer("\u00a0", "", "\u202f", "")
)

// litres below this are converted to cc
const maxLitreEngine = 20

// CleanerOptions tune the cleaner's open policies.
type CleanerOptions struct {
	// AgeSource picks the preferred registration date: config.AgeFromRegistration
	// or config.AgeFromModelYear.
	AgeSource string
	// ModelYearMonth is the month assumed for a model-year-only estimate.
	ModelYearMonth int
	// Aliases maps title variants to canonical titles.
	Aliases map[string]string
	// MatchThreshold is the Jaro-Winkler similarity needed to snap an unknown
	// title onto a known one. 0 disables fuzzy matching.
	MatchThreshold float64
	// Workers bounds CleanAll's parallelism.
	Workers int
}

// DefaultCleanerOptions mirror the config defaults.
func DefaultCleanerOptions() CleanerOptions {
	return CleanerOptions{
		AgeSource:      config.AgeFromRegistration,
		ModelYearMonth: 6,
		Workers:        1,
	}
}

// CleanerOptionsFromConfig maps the loaded config onto CleanerOptions.
func CleanerOptionsFromConfig(cfg *config.Config) CleanerOptions {
	return CleanerOptions{
		AgeSource:      cfg.AgeSource,
		ModelYearMonth: cfg.ModelYearMonth,
		Aliases:        cfg.TitleAliases,
		MatchThreshold: cfg.TitleMatchThreshold,
		Workers:        cfg.Workers,
	}
}

// Cleaner transforms RawListings into CleanListings.
// It holds no mutable state and is safe for concurrent use.
type Cleaner struct {
	logger  *utils.Logger
	table   *reference.Table
	opts    CleanerOptions
	aliases map[string]string
}

// NewCleaner creates a Cleaner. table may be nil, in which case no title
// averages or fuzzy matching are available.
func NewCleaner(logger *utils.Logger, table *reference.Table, opts CleanerOptions) *Cleaner {
	if opts.ModelYearMonth < 1 || opts.ModelYearMonth > 12 {
		opts.ModelYearMonth = 6
	}
	if opts.AgeSource == "" {
		opts.AgeSource = config.AgeFromRegistration
	}
	aliases := make(map[string]string, len(opts.Aliases))
	for variant, canonical := range opts.Aliases {
		aliases[utils.NormalizeTitle(variant)] = utils.NormalizeTitle(canonical)
	}
	return &Cleaner{logger: logger, table: table, opts: opts, aliases: aliases}
}

type cleanResult struct {
	listing *models.CleanListing
	reject  *models.Rejection
}

// CleanAll cleans a batch, isolating per-listing failures. Duplicate
// listings (same id, else same URL) are rejected after the first copy that
// cleans successfully. Output order follows input order.
func (c *Cleaner) CleanAll(ctx context.Context, raw []*models.RawListing) ([]*models.CleanListing, []*models.Rejection) {
	results := make([]cleanResult, len(raw))

	g, gctx := errgroup.WithContext(ctx)
	workers := c.opts.Workers
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)

	for i, r := range raw {
		i, r := i, r
		g.Go(func() error {
			if gctx.Err() != nil {
				results[i].reject = rejection(r, models.StageClean, gctx.Err())
				return nil
			}
			listing, err := c.Clean(r)
			if err != nil {
				results[i].reject = rejection(r, models.StageClean, err)
				return nil
			}
			results[i].listing = listing
			return nil
		})
	}
	_ = g.Wait()

	// an unparsable copy does not claim the key
	seen := utils.NewSeenSet()
	cleaned := make([]*models.CleanListing, 0, len(raw))
	var rejected []*models.Rejection
	for i, res := range results {
		if res.reject != nil {
			rejected = append(rejected, res.reject)
			continue
		}
		if key := raw[i].Key(); key != "" && !seen.Add(key) {
			c.logger.Debug("[cleaner] Duplicate listing skipped: %s", key)
			rejected = append(rejected, rejection(raw[i], models.StageClean, models.ErrDuplicate))
			continue
		}
		cleaned = append(cleaned, res.listing)
	}

	c.logger.Info("[cleaner] Cleaned %d → %d listings (rejected %d)",
		len(raw), len(cleaned), len(rejected))
	return cleaned, rejected
}

func rejection(r *models.RawListing, stage models.Stage, err error) *models.Rejection {
	return &models.Rejection{ListingID: r.ListingID, URL: r.URL, Stage: stage, Err: err}
}

// Clean validates a single listing and derives its features.
func (c *Cleaner) Clean(r *models.RawListing) (*models.CleanListing, error) {
	price, ok := parseNumber(r.Price)
	if !ok || price <= 0 {
		return nil, &models.FieldError{Field: "price", Value: r.Price}
	}
	mileage, ok := parseNumber(r.Mileage)
	if !ok || mileage < 0 {
		return nil, &models.FieldError{Field: "mileage", Value: r.Mileage}
	}
	engine, ok := parseEngineVolume(r.EngineVolume)
	if !ok {
		return nil, &models.FieldError{Field: "engine_volume", Value: r.EngineVolume}
	}

	title := utils.CollapseSpace(r.Title)
	titleID := c.canonicalTitle(title)
	if titleID == "" {
		return nil, &models.FieldError{Field: "title", Value: r.Title}
	}

	ref, ok := referenceDate(r)
	if !ok {
		return nil, &models.FieldError{Field: "upload_date", Value: r.UploadDate}
	}
	onRoad, ok := c.registrationDate(r)
	if !ok {
		return nil, &models.FieldError{Field: "on_road_date", Value: r.OnRoadDate}
	}

	listing := &models.CleanListing{
		ListingID:     strings.TrimSpace(r.ListingID),
		URL:           strings.TrimSpace(r.URL),
		Title:         title,
		TitleID:       titleID,
		Price:         price,
		Mileage:       mileage,
		EngineVolume:  engine,
		ReferenceDate: ref,
		OnRoadDate:    onRoad,
		OnRoadYear:    onRoad.Year(),
		OnRoadMonth:   int(onRoad.Month()),
		MonthsOnRoad:  monthsBetween(onRoad, ref),
		FuelType:      normalizeCategory(r.FuelType),
		Transmission:  normalizeCategory(r.Transmission),
		BodyType:      normalizeCategory(r.BodyType),
		Ownership:     normalizeCategory(r.Ownership),
		Color:         normalizeCategory(r.Color),
	}

	if hp, ok := parseNumber(r.Horsepower); ok && hp > 0 {
		listing.Horsepower = hp
	}
	if test, ok := parseFlexibleDate(r.TestDate); ok {
		listing.MonthsToTest = monthsBetween(ref, test)
	}
	listing.MonthsVsAvgTitle = math.NaN()
	if c.table != nil {
		if avg := c.table.AvgMileage(titleID); avg > 0 {
			listing.MileageVsAvgTitle = mileage - avg
		}
		if avg := c.table.AvgMonthsOnRoad(titleID); avg > 0 {
			listing.MonthsVsAvgTitle = float64(listing.MonthsOnRoad) / avg
		}
	}

	return listing, nil
}

// canonicalTitle maps a display title to the id used as the join key into
// the reference table.
func (c *Cleaner) canonicalTitle(title string) string {
	id := utils.NormalizeTitle(title)
	if id == "" {
		return ""
	}
	if alias, ok := c.aliases[id]; ok {
		return alias
	}
	if c.table == nil || c.opts.MatchThreshold <= 0 {
		return id
	}
	if _, ok := c.table.Lookup(id); ok {
		return id
	}

	// TitleIDs is sorted, so a strict > keeps the smallest id on ties
	best, bestScore := "", 0.0
	for _, known := range c.table.TitleIDs() {
		if score := matchr.JaroWinkler(id, known, false); score > bestScore {
			best, bestScore = known, score
		}
	}
	if bestScore >= c.opts.MatchThreshold {
		c.logger.Debug("[cleaner] Title %q matched %q (%.3f)", id, best, bestScore)
		return best
	}
	return id
}

func (c *Cleaner) registrationDate(r *models.RawListing) (time.Time, bool) {
	fromRegistration := func() (time.Time, bool) { return parseMonth(r.OnRoadDate) }
	fromModelYear := func() (time.Time, bool) { return modelYearDate(r.YearSummary, c.opts.ModelYearMonth) }

	first, second := fromRegistration, fromModelYear
	if c.opts.AgeSource == config.AgeFromModelYear {
		first, second = fromModelYear, fromRegistration
	}
	if t, ok := first(); ok {
		return t, true
	}
	return second()
}

// referenceDate is the date the listing's age is measured at.
func referenceDate(r *models.RawListing) (time.Time, bool) {
	if t, ok := parseDay(r.UploadDate); ok {
		return t, true
	}
	if t, ok := parseDay(r.ScrapeDate); ok {
		return t, true
	}
	if !r.ScrapedAt.IsZero() {
		y, m, d := r.ScrapedAt.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

// parseNumber extracts the first number from a localized string such as
// "₪ 85,000", "120,000 ק״מ", "1.250.000" or "١٢٠٬٠٠٠". A leading minus is
// kept so callers can reject negatives. Tokens whose separators cannot be
// read as either grouping or a decimal mark are rejected.
func parseNumber(raw string) (float64, bool) {
	s := utils.FoldDigits(spaceSeparators.Replace(raw))
	match := numberRegexp.FindString(s)
	if match == "" {
		return 0, false
	}
	negative := false
	if r, size := utf8.DecodeRuneInString(match); r == '-' || r == '\u2212' {
		negative, match = true, match[size:]
	}

	plain, ok := normalizeNumber(match)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(plain, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	if negative {
		v = -v
	}
	return v, true
}

// normalizeNumber rewrites a digit token with separators as a plain
// decimal such as "1250000" or "1.6".
func normalizeNumber(tok string) (string, bool) {
	var groups []string
	var seps []rune
	start := 0
	for i, r := range tok {
		if r >= '0' && r <= '9' {
			continue
		}
		groups = append(groups, tok[start:i])
		seps = append(seps, r)
		start = i + utf8.RuneLen(r)
	}
	groups = append(groups, tok[start:])

	// a space only separates thousands; otherwise the number ends there
	for i, sep := range seps {
		if sep == ' ' && len(groups[i+1]) != 3 {
			groups, seps = groups[:i+1], seps[:i]
			break
		}
	}
	if len(seps) == 0 {
		return groups[0], true
	}

	decimal := -1
	last := seps[len(seps)-1]
	tail := len(groups[len(groups)-1])
	if last == '.' || last == ',' {
		repeated := 0
		for _, sep := range seps {
			if sep == last {
				repeated++
			}
		}
		switch {
		case repeated > 1:
			// "1.250.000"
		case len(seps) > 1:
			// "1,250.50" or "1.250,50"
			decimal = len(seps) - 1
		case groups[0] == "0":
			decimal = 0
		case last == '.' && tail != 3:
			// "1.6"; "85.000" is grouping
			decimal = 0
		case last == ',' && tail < 3:
			// "1,6"; "1,600" is grouping
			decimal = 0
		}
	}

	whole, frac := groups, ""
	if decimal >= 0 {
		whole, frac = groups[:decimal+1], groups[decimal+1]
	}
	grouping := seps[:len(whole)-1]
	if len(grouping) > 0 && len(whole[0]) > 3 {
		return "", false
	}
	for i, sep := range grouping {
		if sep != grouping[0] || len(whole[i+1]) != 3 {
			return "", false
		}
	}

	out := strings.Join(whole, "")
	if frac != "" {
		out += "." + frac
	}
	return out, true
}

func parseEngineVolume(raw string) (float64, bool) {
	v, ok := parseNumber(raw)
	if !ok || v <= 0 {
		return 0, false
	}
	if v < maxLitreEngine {
		v = math.Round(v * 1000)
	}
	return v, true
}

// parseDay reads a full calendar date: dd/mm/yy, dd/mm/yyyy, dd.mm.yy or yyyy-mm-dd.
func parseDay(raw string) (time.Time, bool) {
	s := utils.FoldDigits(raw)
	if m := isoDayRegexp.FindStringSubmatch(s); m != nil {
		return makeDate(atoi(m[1]), atoi(m[2]), atoi(m[3]))
	}
	if m := dayRegexp.FindStringSubmatch(s); m != nil {
		year := atoi(m[3])
		if len(m[3]) == 2 {
			year = expandYear(year)
		}
		return makeDate(year, atoi(m[2]), atoi(m[1]))
	}
	return time.Time{}, false
}

// parseMonth reads a registration month: mm/yyyy, mm.yyyy or yyyy-mm.
// A full date is accepted and truncated to its month.
func parseMonth(raw string) (time.Time, bool) {
	if t, ok := parseDay(raw); ok {
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC), true
	}
	s := utils.FoldDigits(raw)
	if m := monthRegexp.FindStringSubmatch(s); m != nil {
		return makeDate(atoi(m[2]), atoi(m[1]), 1)
	}
	if m := isoMonthRegexp.FindStringSubmatch(s); m != nil {
		return makeDate(atoi(m[1]), atoi(m[2]), 1)
	}
	return time.Time{}, false
}

func parseFlexibleDate(raw string) (time.Time, bool) {
	if t, ok := parseDay(raw); ok {
		return t, true
	}
	return parseMonth(raw)
}

func modelYearDate(raw string, month int) (time.Time, bool) {
	m := yearRegexp.FindStringSubmatch(utils.FoldDigits(raw))
	if m == nil {
		return time.Time{}, false
	}
	return makeDate(atoi(m[1]), month, 1)
}

func makeDate(year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 || year < 1900 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

// expandYear maps a two digit year to 19xx/20xx the way time.Parse does.
func expandYear(yy int) int {
	if yy >= 69 {
		return 1900 + yy
	}
	return 2000 + yy
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// monthsBetween returns the whole months from a to b, floored and clamped at 0.
func monthsBetween(a, b time.Time) int {
	months := (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
	if b.Day() < a.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

func normalizeCategory(s string) string {
	return utils.NormalizeTitle(s)
}
