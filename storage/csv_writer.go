package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"vfm-car-finder/models"
)

// utf-8 BOM; spreadsheet tools need it to detect Hebrew text
const bom = "\ufeff"

var (
	scoredHeader = []string{
		"rank", "listing_id", "title", "title_id", "price", "predicted_price",
		"price_diff_pct", "vfm_score", "deal", "used_fallback_std",
		"mileage", "engine_volume", "months_on_road", "url",
	}
	trainingHeader = []string{
		"listing_id", "title_id", "price", "mileage", "engine_volume", "horsepower",
		"months_on_road", "months_to_test", "on_road_year", "on_road_month",
		"mileage_vs_avg_title", "months_vs_avg", "fuel_type", "transmission",
		"body_type", "ownership", "color", "reference_date",
	}
)

// CSVWriter writes listings to a CSV file. It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter creates (or truncates) the CSV file at the given path and
// writes the header row. Intermediate directories are created automatically.
func NewCSVWriter(path string, header []string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}
	if _, err := f.WriteString(bom); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: write bom: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	w.Flush()

	return &CSVWriter{file: f, writer: w}, nil
}

// NewRawCSVWriter writes scraper output, one column per raw field.
func NewRawCSVWriter(path string) (*CSVWriter, error) {
	return NewCSVWriter(path, models.Fields)
}

// NewScoredCSVWriter writes ranked evaluation results.
func NewScoredCSVWriter(path string) (*CSVWriter, error) {
	return NewCSVWriter(path, scoredHeader)
}

// NewTrainingCSVWriter writes cleaned listings for model training.
func NewTrainingCSVWriter(path string) (*CSVWriter, error) {
	return NewCSVWriter(path, trainingHeader)
}

// WriteRaw writes raw listings in models.Fields column order.
func (c *CSVWriter) WriteRaw(listings []*models.RawListing) error {
	rows := make([][]string, 0, len(listings))
	for _, l := range listings {
		row := make([]string, len(models.Fields))
		for i, key := range models.Fields {
			if v := l.Field(key); v != nil {
				row[i] = *v
			}
		}
		rows = append(rows, row)
	}
	return c.writeRows(rows)
}

// WriteRun writes the ranked listings of a run.
func (c *CSVWriter) WriteRun(_ context.Context, run *models.RunReport) error {
	rows := make([][]string, 0, len(run.Listings))
	for i, l := range run.Listings {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			l.ListingID,
			l.Title,
			l.TitleID,
			formatFloat(l.Price),
			formatFloat(l.PredictedPrice),
			strconv.FormatFloat(l.PriceDiffPct, 'f', 2, 64),
			strconv.FormatFloat(l.VFMScore, 'f', 4, 64),
			string(l.Deal),
			strconv.FormatBool(l.UsedFallbackStd),
			formatFloat(l.Mileage),
			formatFloat(l.EngineVolume),
			strconv.Itoa(l.MonthsOnRoad),
			l.URL,
		})
	}
	return c.writeRows(rows)
}

// WriteTraining writes cleaned listings as a model training set.
func (c *CSVWriter) WriteTraining(listings []*models.CleanListing) error {
	rows := make([][]string, 0, len(listings))
	for _, l := range listings {
		rows = append(rows, []string{
			l.ListingID,
			l.TitleID,
			formatFloat(l.Price),
			formatFloat(l.Mileage),
			formatFloat(l.EngineVolume),
			optionalFloat(l.Horsepower),
			strconv.Itoa(l.MonthsOnRoad),
			strconv.Itoa(l.MonthsToTest),
			strconv.Itoa(l.OnRoadYear),
			strconv.Itoa(l.OnRoadMonth),
			formatFloat(l.MileageVsAvgTitle),
			optionalFloat(l.MonthsVsAvgTitle),
			l.FuelType,
			l.Transmission,
			l.BodyType,
			l.Ownership,
			l.Color,
			l.ReferenceDate.Format(time.DateOnly),
		})
	}
	return c.writeRows(rows)
}

func (c *CSVWriter) writeRows(rows [][]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.writer.WriteAll(rows); err != nil {
		return fmt.Errorf("csv: write rows: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.writer.Flush()
	if err := c.writer.Error(); err != nil {
		_ = c.file.Close()
		return fmt.Errorf("csv: flush: %w", err)
	}
	return c.file.Close()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// optionalFloat leaves absent values (zero or NaN) empty.
func optionalFloat(f float64) string {
	if f == 0 || math.IsNaN(f) {
		return ""
	}
	return formatFloat(f)
}
