package models

// DetailLabels maps the Hebrew labels of the ad details section to the
// English field keys used in scraper output.
var DetailLabels = map[string]string{
	"קילומטראז׳":       "mileage",
	"צבע":              "color",
	"בעלות נוכחית":     "ownership",
	"טסט עד":           "test_date",
	"בעלות קודמת":      "previous_ownership",
	"תיבת הילוכים":     "transmission",
	"תאריך עליה לכביש": "on_road_date",
	"סוג מנוע":         "fuel_type",
	"מרכב":             "body_type",
	"מושבים":           "seats",
	"כוח סוס":          "horsepower",
	"נפח מנוע":         "engine_volume",
	"צריכת דלק משולבת": "fuel_consumption",
	"סוג הנעה":         "drive_type",
	"מערכת הנעה":       "drive_system",
}

// Field returns a pointer to the RawListing field stored under key, or nil
// for an unknown key.
func (r *RawListing) Field(key string) *string {
	switch key {
	case "listing_id":
		return &r.ListingID
	case "url":
		return &r.URL
	case "title":
		return &r.Title
	case "price":
		return &r.Price
	case "mileage":
		return &r.Mileage
	case "engine_volume":
		return &r.EngineVolume
	case "year_summary":
		return &r.YearSummary
	case "owner_count":
		return &r.OwnerCount
	case "upload_date":
		return &r.UploadDate
	case "scrape_date":
		return &r.ScrapeDate
	case "on_road_date":
		return &r.OnRoadDate
	case "test_date":
		return &r.TestDate
	case "color":
		return &r.Color
	case "ownership":
		return &r.Ownership
	case "previous_ownership":
		return &r.PreviousOwnership
	case "transmission":
		return &r.Transmission
	case "fuel_type":
		return &r.FuelType
	case "body_type":
		return &r.BodyType
	case "seats":
		return &r.Seats
	case "horsepower":
		return &r.Horsepower
	case "fuel_consumption":
		return &r.FuelConsumption
	case "drive_type":
		return &r.DriveType
	case "drive_system":
		return &r.DriveSystem
	}
	return nil
}

// Fields lists every RawListing key in scraper output order.
var Fields = []string{
	"listing_id", "upload_date", "scrape_date", "price", "title",
	"year_summary", "owner_count", "mileage", "color", "ownership",
	"test_date", "previous_ownership", "transmission", "on_road_date",
	"fuel_type", "body_type", "seats", "horsepower", "engine_volume",
	"fuel_consumption", "drive_type", "drive_system", "url",
}
