package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"vfm-car-finder/models"
)

const (
	batchSize     = 50
	listingCols   = 15
	rejectionCols = 6
)

// ErrRunNotFound is returned when a run id has no stored results.
var ErrRunNotFound = errors.New("run not found")

// dialect holds what differs between the supported SQL backends.
type dialect struct {
	name   string
	schema string
	bind   func(n int) string
}

// SQLWriter persists evaluation runs to a SQL database.
type SQLWriter struct {
	db      *sql.DB
	dialect dialect
}

// RunSummary is the stored header of one evaluation run.
type RunSummary struct {
	RunID         string
	StartedAt     time.Time
	FinishedAt    time.Time
	Total         int
	Scored        int
	Rejected      int
	FallbackCount int
}

// StoredRejection is a rejection as read back from the store; the
// error value is reduced to its reason code and message.
type StoredRejection struct {
	ListingID string
	URL       string
	Stage     models.Stage
	Reason    string
	Message   string
}

func (w *SQLWriter) migrate(ctx context.Context) error {
	if _, err := w.db.ExecContext(ctx, w.dialect.schema); err != nil {
		return fmt.Errorf("%s: migrate: %w", w.dialect.name, err)
	}
	return nil
}

// WriteRun stores a run, its ranked listings and its rejections in one
// transaction. Writing a run id that already exists replaces it.
func (w *SQLWriter) WriteRun(ctx context.Context, run *models.RunReport) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", w.dialect.name, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := w.deleteRun(ctx, tx, run.RunID); err != nil {
		return err
	}

	b := w.dialect.bind
	_, err = tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO runs (run_id, started_at, finished_at, total, scored, rejected, fallback_count)
		VALUES (%s,%s,%s,%s,%s,%s,%s)`,
		b(1), b(2), b(3), b(4), b(5), b(6), b(7)),
		run.RunID, run.StartedAt.UTC(), run.FinishedAt.UTC(),
		run.Total, run.Scored, run.Rejected, run.FallbackCount)
	if err != nil {
		return fmt.Errorf("%s: insert run: %w", w.dialect.name, err)
	}

	for i := 0; i < len(run.Listings); i += batchSize {
		end := min(i+batchSize, len(run.Listings))
		if err := w.insertListings(ctx, tx, run.RunID, i, run.Listings[i:end]); err != nil {
			return err
		}
	}
	for i := 0; i < len(run.Rejections); i += batchSize {
		end := min(i+batchSize, len(run.Rejections))
		if err := w.insertRejections(ctx, tx, run.RunID, run.Rejections[i:end]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", w.dialect.name, err)
	}
	return nil
}

func (w *SQLWriter) deleteRun(ctx context.Context, tx *sql.Tx, runID string) error {
	for _, table := range []string{"scored_listings", "rejections", "runs"} {
		query := fmt.Sprintf("DELETE FROM %s WHERE run_id = %s", table, w.dialect.bind(1))
		if _, err := tx.ExecContext(ctx, query, runID); err != nil {
			return fmt.Errorf("%s: clear %s: %w", w.dialect.name, table, err)
		}
	}
	return nil
}

// values builds "(p1,...,pn),(...)" for rows*cols placeholders.
func (w *SQLWriter) values(rows, cols int) string {
	groups := make([]string, 0, rows)
	ph := make([]string, cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			ph[c] = w.dialect.bind(r*cols + c + 1)
		}
		groups = append(groups, "("+strings.Join(ph, ",")+")")
	}
	return strings.Join(groups, ",")
}

func (w *SQLWriter) insertListings(ctx context.Context, tx *sql.Tx, runID string, offset int, batch []*models.ScoredListing) error {
	args := make([]any, 0, len(batch)*listingCols)
	for i, l := range batch {
		args = append(args,
			runID, offset+i+1, l.ListingID, l.URL, l.Title, l.TitleID,
			l.Price, l.PredictedPrice, l.PriceDiffPct, l.VFMScore, string(l.Deal),
			l.UsedFallbackStd, l.Mileage, l.EngineVolume, l.MonthsOnRoad)
	}

	query := fmt.Sprintf(`
		INSERT INTO scored_listings (run_id, ranking, listing_id, url, title, title_id,
			price, predicted_price, price_diff_pct, vfm_score, deal,
			used_fallback_std, mileage, engine_volume, months_on_road)
		VALUES %s`, w.values(len(batch), listingCols))

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: insert listings: %w", w.dialect.name, err)
	}
	return nil
}

func (w *SQLWriter) insertRejections(ctx context.Context, tx *sql.Tx, runID string, batch []*models.Rejection) error {
	args := make([]any, 0, len(batch)*rejectionCols)
	for _, r := range batch {
		msg := ""
		if r.Err != nil {
			msg = r.Err.Error()
		}
		args = append(args, runID, r.ListingID, r.URL, string(r.Stage), r.Reason(), msg)
	}

	query := fmt.Sprintf(`
		INSERT INTO rejections (run_id, listing_id, url, stage, reason, message)
		VALUES %s`, w.values(len(batch), rejectionCols))

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: insert rejections: %w", w.dialect.name, err)
	}
	return nil
}

// LatestRun returns the most recently started run.
func (w *SQLWriter) LatestRun(ctx context.Context) (*RunSummary, error) {
	row := w.db.QueryRowContext(ctx, `
		SELECT run_id, started_at, finished_at, total, scored, rejected, fallback_count
		FROM runs
		ORDER BY started_at DESC
		LIMIT 1`)
	return w.scanSummary(row)
}

// FetchSummary returns the header of a stored run.
func (w *SQLWriter) FetchSummary(ctx context.Context, runID string) (*RunSummary, error) {
	row := w.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT run_id, started_at, finished_at, total, scored, rejected, fallback_count
		FROM runs
		WHERE run_id = %s`, w.dialect.bind(1)), runID)
	return w.scanSummary(row)
}

func (w *SQLWriter) scanSummary(row *sql.Row) (*RunSummary, error) {
	s := &RunSummary{}
	err := row.Scan(&s.RunID, &s.StartedAt, &s.FinishedAt, &s.Total, &s.Scored, &s.Rejected, &s.FallbackCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", w.dialect.name, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: scan run: %w", w.dialect.name, err)
	}
	return s, nil
}

// FetchRun retrieves the ranked listings of a run, best first.
func (w *SQLWriter) FetchRun(ctx context.Context, runID string) ([]*models.ScoredListing, error) {
	rows, err := w.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT listing_id, url, title, title_id, price, predicted_price, price_diff_pct,
			vfm_score, deal, used_fallback_std, mileage, engine_volume, months_on_road
		FROM scored_listings
		WHERE run_id = %s
		ORDER BY ranking`, w.dialect.bind(1)), runID)
	if err != nil {
		return nil, fmt.Errorf("%s: fetch run: %w", w.dialect.name, err)
	}
	defer rows.Close()

	var listings []*models.ScoredListing
	for rows.Next() {
		l := &models.ScoredListing{}
		var deal string
		if err := rows.Scan(
			&l.ListingID, &l.URL, &l.Title, &l.TitleID, &l.Price, &l.PredictedPrice,
			&l.PriceDiffPct, &l.VFMScore, &deal, &l.UsedFallbackStd, &l.Mileage,
			&l.EngineVolume, &l.MonthsOnRoad,
		); err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", w.dialect.name, err)
		}
		l.Deal = models.DealLabel(deal)
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: fetch run: %w", w.dialect.name, err)
	}
	return listings, nil
}

// FetchRejections retrieves the rejections of a run in insertion order.
func (w *SQLWriter) FetchRejections(ctx context.Context, runID string) ([]StoredRejection, error) {
	rows, err := w.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT listing_id, url, stage, reason, message
		FROM rejections
		WHERE run_id = %s
		ORDER BY id`, w.dialect.bind(1)), runID)
	if err != nil {
		return nil, fmt.Errorf("%s: fetch rejections: %w", w.dialect.name, err)
	}
	defer rows.Close()

	var out []StoredRejection
	for rows.Next() {
		var r StoredRejection
		var stage string
		if err := rows.Scan(&r.ListingID, &r.URL, &stage, &r.Reason, &r.Message); err != nil {
			return nil, fmt.Errorf("%s: scan rejection: %w", w.dialect.name, err)
		}
		r.Stage = models.Stage(stage)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (w *SQLWriter) Close() error {
	return w.db.Close()
}
