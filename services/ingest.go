package services

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"vfm-car-finder/models"
	"vfm-car-finder/utils"
)

// Record is one weakly-typed listing as emitted by the scraper collaborator.
type Record map[string]any

// DecodeRecords reads a JSON array of records.
func DecodeRecords(r io.Reader) ([]Record, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var records []Record
	if err := dec.Decode(&records); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("ingest: decode records: %w", err)
	}
	return records, nil
}

// EncodeRecords writes raw listings as the JSON array DecodeRecords reads.
// Empty fields are written as null.
func EncodeRecords(w io.Writer, raws []*models.RawListing) error {
	records := make([]Record, 0, len(raws))
	for _, raw := range raws {
		rec := make(Record, len(models.Fields))
		for _, key := range models.Fields {
			if v := raw.Field(key); v != nil && *v != "" {
				rec[key] = *v
			} else {
				rec[key] = nil
			}
		}
		records = append(records, rec)
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("ingest: encode records: %w", err)
	}
	return nil
}

// Ingestor validates raw scraper records into RawListings.
type Ingestor struct {
	logger *utils.Logger
	now    func() time.Time
}

// NewIngestor creates an Ingestor with the given logger.
func NewIngestor(logger *utils.Logger) *Ingestor {
	return &Ingestor{logger: logger, now: time.Now}
}

// Ingest converts records into RawListings. A record carrying a value of an
// unsupported shape (object, array, boolean) is rejected, never coerced.
func (in *Ingestor) Ingest(records []Record) ([]*models.RawListing, []*models.Rejection) {
	listings := make([]*models.RawListing, 0, len(records))
	var rejected []*models.Rejection

	for i, rec := range records {
		raw, err := in.ingestOne(rec)
		if err != nil {
			rej := &models.Rejection{Stage: models.StageIngest, Err: err}
			if raw != nil {
				rej.ListingID, rej.URL = raw.ListingID, raw.URL
			}
			in.logger.Warn("[ingest] Record %d rejected: %v", i, err)
			rejected = append(rejected, rej)
			continue
		}
		listings = append(listings, raw)
	}

	in.logger.Info("[ingest] Accepted %d of %d records", len(listings), len(records))
	return listings, rejected
}

func (in *Ingestor) ingestOne(rec Record) (*models.RawListing, error) {
	raw := &models.RawListing{}

	// sorted keys so the first reported shape error is deterministic
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var shapeErr error
	for _, key := range keys {
		field := canonicalKey(key)
		dst := raw.Field(field)
		if dst == nil {
			continue
		}
		val, err := scalarString(field, rec[key])
		if err != nil {
			if shapeErr == nil {
				shapeErr = err
			}
			continue
		}
		if val != "" || *dst == "" {
			*dst = val
		}
	}
	if shapeErr != nil {
		return raw, shapeErr
	}

	raw.ScrapedAt = in.scrapedAt(raw)
	return raw, nil
}

func (in *Ingestor) scrapedAt(raw *models.RawListing) time.Time {
	if t, ok := parseDay(raw.ScrapeDate); ok {
		return t
	}
	return in.now()
}

func canonicalKey(key string) string {
	k := strings.TrimSpace(key)
	if en, ok := models.DetailLabels[k]; ok {
		return en
	}
	return strings.ToLower(k)
}

// scalarString renders a JSON scalar as the string the page would have shown.
func scalarString(field string, v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(val), nil
	case json.Number:
		if strings.ContainsAny(val.String(), "eE") {
			f, err := val.Float64()
			if err != nil {
				return "", &models.ShapeError{Field: field, Kind: "number"}
			}
			return strconv.FormatFloat(f, 'f', -1, 64), nil
		}
		return val.String(), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case bool:
		return "", &models.ShapeError{Field: field, Kind: "boolean"}
	case map[string]any:
		return "", &models.ShapeError{Field: field, Kind: "object"}
	case []any:
		return "", &models.ShapeError{Field: field, Kind: "array"}
	default:
		return "", &models.ShapeError{Field: field, Kind: fmt.Sprintf("%T", v)}
	}
}
