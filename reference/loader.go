package reference

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"vfm-car-finder/models"
)

// column aliases accepted in the aggregates CSV header
var csvColumns = map[string][]string{
	"title":       {"title"},
	"std":         {"std_error", "residual_std", "std"},
	"std_pct":     {"std_error_pct"},
	"avg_price":   {"avg_price_by_title", "avg_price"},
	"avg_mileage": {"avg_mileage_by_title", "avg_mileage"},
	"avg_months":  {"avg_months_on_road_by_title", "avg_months_on_road"},
	"q1":          {"price_q1", "q1"},
	"q3":          {"price_q3", "q3"},
	"count":       {"count", "n"},
}

// LoadCSV reads a title aggregates CSV file.
func LoadCSV(path string, defaultStd float64) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %q: %v", models.ErrErrorTableLoad, path, err)
	}
	defer f.Close()

	return ReadCSV(f, defaultStd)
}

// ReadCSV parses title aggregates from r. The header must contain a title
// column and either an absolute std column or std_error_pct, a percentage
// of avg_price_by_title.
func ReadCSV(r io.Reader, defaultStd float64) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", models.ErrErrorTableLoad, err)
	}

	idx := make(map[string]int)
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		for key, aliases := range csvColumns {
			for _, a := range aliases {
				if h == a {
					if _, seen := idx[key]; !seen {
						idx[key] = i
					}
				}
			}
		}
	}
	if _, ok := idx["title"]; !ok {
		return nil, fmt.Errorf("%w: header missing title column", models.ErrErrorTableLoad)
	}
	_, hasStd := idx["std"]
	_, hasPct := idx["std_pct"]
	if !hasStd && !hasPct {
		return nil, fmt.Errorf("%w: header missing std column", models.ErrErrorTableLoad)
	}

	var rows []TitleStats
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", models.ErrErrorTableLoad, line, err)
		}

		row, err := parseRow(rec, idx)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", models.ErrErrorTableLoad, line, err)
		}
		rows = append(rows, row)
	}

	return NewTable(rows, defaultStd)
}

func parseRow(rec []string, idx map[string]int) (TitleStats, error) {
	cell := func(key string) string {
		i, ok := idx[key]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}
	num := func(key string) (float64, error) {
		v := cell(key)
		if v == "" || strings.EqualFold(v, "nan") {
			return 0, nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("column %s: %w", key, err)
		}
		return f, nil
	}

	s := TitleStats{Title: cell("title")}
	var err error
	if s.StdError, err = num("std"); err != nil {
		return s, err
	}
	if s.AvgPrice, err = num("avg_price"); err != nil {
		return s, err
	}
	if s.StdError == 0 {
		pct, err := num("std_pct")
		if err != nil {
			return s, err
		}
		// rows without an average price inherit the fallback std
		s.StdError = pct / 100 * s.AvgPrice
	}
	if s.AvgMileage, err = num("avg_mileage"); err != nil {
		return s, err
	}
	if s.AvgMonthsOnRoad, err = num("avg_months"); err != nil {
		return s, err
	}
	if s.PriceQ1, err = num("q1"); err != nil {
		return s, err
	}
	if s.PriceQ3, err = num("q3"); err != nil {
		return s, err
	}
	count, err := num("count")
	if err != nil {
		return s, err
	}
	s.Count = int(count)
	return s, nil
}

// LoadRedis reads title stats stored as a Redis hash: one field per title,
// each value the JSON encoding of TitleStats.
func LoadRedis(ctx context.Context, addr, key string, defaultStd float64) (*Table, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: redis ping %s: %v", models.ErrErrorTableLoad, addr, err)
	}
	return ReadRedis(ctx, client, key, defaultStd)
}

// ReadRedis loads the hash at key through an existing client.
func ReadRedis(ctx context.Context, client redis.Cmdable, key string, defaultStd float64) (*Table, error) {
	fields, err := client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: redis hgetall %s: %v", models.ErrErrorTableLoad, key, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: redis hash %s is empty", models.ErrErrorTableLoad, key)
	}

	rows := make([]TitleStats, 0, len(fields))
	for title, raw := range fields {
		var s TitleStats
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return nil, fmt.Errorf("%w: redis field %q: %v", models.ErrErrorTableLoad, title, err)
		}
		s.Title = title
		rows = append(rows, s)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Title < rows[j].Title })
	return NewTable(rows, defaultStd)
}
