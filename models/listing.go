package models

import "time"

// RawListing holds unprocessed scraped data for a single car ad.
// Every field is kept exactly as it appeared on the page.
type RawListing struct {
	ListingID         string
	URL               string
	Title             string
	Price             string
	Mileage           string
	EngineVolume      string
	YearSummary       string
	OwnerCount        string
	UploadDate        string
	ScrapeDate        string
	OnRoadDate        string
	TestDate          string
	Color             string
	Ownership         string
	PreviousOwnership string
	Transmission      string
	FuelType          string
	BodyType          string
	Seats             string
	Horsepower        string
	FuelConsumption   string
	DriveType         string
	DriveSystem       string
	ScrapedAt         time.Time
}

// Key identifies a raw listing for deduplication and rejection reports.
func (r *RawListing) Key() string {
	if r.ListingID != "" {
		return r.ListingID
	}
	return r.URL
}

// CleanListing is a validated record with parsed numerics and derived features.
// Price > 0, Mileage >= 0, EngineVolume > 0 and MonthsOnRoad >= 0 always hold.
type CleanListing struct {
	ListingID string
	URL       string
	Title     string
	TitleID   string

	Price        float64
	Mileage      float64
	EngineVolume float64
	Horsepower   float64

	ReferenceDate time.Time
	OnRoadDate    time.Time
	OnRoadYear    int
	OnRoadMonth   int
	MonthsOnRoad  int
	MonthsToTest  int

	MileageVsAvgTitle float64
	// MonthsVsAvgTitle is MonthsOnRoad over the title's mean age; NaN when
	// the title has no usable average.
	MonthsVsAvgTitle  float64

	FuelType     string
	Transmission string
	BodyType     string
	Ownership    string
	Color        string
}

// DealLabel classifies a listing by its VFM score.
type DealLabel string

const (
	GoodDeal   DealLabel = "GoodDeal"
	FairPrice  DealLabel = "FairPrice"
	Overpriced DealLabel = "Overpriced"
)

// ScoredListing is a CleanListing with its model price and deal classification.
type ScoredListing struct {
	CleanListing

	PredictedPrice  float64
	VFMScore        float64
	PriceDiffPct    float64
	Deal            DealLabel
	UsedFallbackStd bool
}

// InsightReport holds the computed analytics over a scored run.
type InsightReport struct {
	TotalScored     int
	TotalRejected   int
	AveragePrice    float64
	AveragePredict  float64
	MinPrice        float64
	MaxPrice        float64
	BestDeal        *ScoredListing
	WorstDeal       *ScoredListing
	ByDeal          map[DealLabel]int
	ByTitle         map[string]int
	RejectionsByWhy map[string]int
}
