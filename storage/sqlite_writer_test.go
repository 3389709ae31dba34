package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vfm-car-finder/models"
)

func scoredListing(id string, score float64, deal models.DealLabel) *models.ScoredListing {
	return &models.ScoredListing{
		CleanListing: models.CleanListing{
			ListingID:    id,
			URL:          "https://www.yad2.co.il/item/" + id,
			Title:        "Toyota Corolla LE",
			TitleID:      "toyota corolla le",
			Price:        85000,
			Mileage:      120000,
			EngineVolume: 1800,
			MonthsOnRoad: 48,
		},
		PredictedPrice: 95000,
		VFMScore:       score,
		PriceDiffPct:   -10.53,
		Deal:           deal,
	}
}

func sampleRun(id string, started time.Time) *models.RunReport {
	return &models.RunReport{
		RunID:      id,
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
		Listings: []*models.ScoredListing{
			scoredListing("a", -2, models.GoodDeal),
			scoredListing("b", 0.3, models.FairPrice),
		},
		Rejections: []*models.Rejection{
			{ListingID: "x", URL: "u-x", Stage: models.StageClean, Err: &models.FieldError{Field: "price", Value: "?"}},
			{ListingID: "y", Stage: models.StageClean, Err: models.ErrDuplicate},
		},
		Total:    4,
		Scored:   2,
		Rejected: 2,
	}
}

func newTestStore(t *testing.T) *SQLWriter {
	t.Helper()
	w, err := NewSQLiteWriter(context.Background(), filepath.Join(t.TempDir(), "vfm.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestSQLiteWriteAndFetchRun(t *testing.T) {
	ctx := context.Background()
	w := newTestStore(t)
	started := time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC)

	require.NoError(t, w.WriteRun(ctx, sampleRun("run-1", started)))

	listings, err := w.FetchRun(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, listings, 2)
	assert.Equal(t, "a", listings[0].ListingID)
	assert.Equal(t, models.GoodDeal, listings[0].Deal)
	assert.Equal(t, -2.0, listings[0].VFMScore)
	assert.Equal(t, 48, listings[0].MonthsOnRoad)
	assert.Equal(t, "b", listings[1].ListingID)

	summary, err := w.FetchSummary(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 2, summary.Rejected)
	assert.True(t, summary.StartedAt.Equal(started))

	rejections, err := w.FetchRejections(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, rejections, 2)
	assert.Equal(t, "x", rejections[0].ListingID)
	assert.Equal(t, models.StageClean, rejections[0].Stage)
	assert.Equal(t, "UnparsableField(price)", rejections[0].Reason)
	assert.Equal(t, models.Reason(models.ErrDuplicate), rejections[1].Reason)
}

func TestSQLiteWriteRunReplacesSameID(t *testing.T) {
	ctx := context.Background()
	w := newTestStore(t)
	started := time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC)

	require.NoError(t, w.WriteRun(ctx, sampleRun("run-1", started)))
	again := sampleRun("run-1", started)
	again.Listings = again.Listings[:1]
	require.NoError(t, w.WriteRun(ctx, again))

	listings, err := w.FetchRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, listings, 1)
}

func TestSQLiteLatestRun(t *testing.T) {
	ctx := context.Background()
	w := newTestStore(t)

	_, err := w.LatestRun(ctx)
	assert.ErrorIs(t, err, ErrRunNotFound)

	base := time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC)
	require.NoError(t, w.WriteRun(ctx, sampleRun("old", base)))
	require.NoError(t, w.WriteRun(ctx, sampleRun("new", base.Add(time.Hour))))

	latest, err := w.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new", latest.RunID)
}

func TestSQLiteBatchesLargeRuns(t *testing.T) {
	ctx := context.Background()
	w := newTestStore(t)

	run := sampleRun("big", time.Now())
	run.Listings = nil
	for i := 0; i < 2*batchSize+7; i++ {
		run.Listings = append(run.Listings, scoredListing(fmt.Sprintf("id-%03d", i), float64(i), models.FairPrice))
	}
	require.NoError(t, w.WriteRun(ctx, run))

	listings, err := w.FetchRun(ctx, "big")
	require.NoError(t, err)
	require.Len(t, listings, 2*batchSize+7)
	for i, l := range listings {
		assert.Equal(t, fmt.Sprintf("id-%03d", i), l.ListingID)
	}
}

func TestSQLiteStoresListingsWithoutID(t *testing.T) {
	ctx := context.Background()
	w := newTestStore(t)

	run := sampleRun("no-ids", time.Now())
	run.Listings = nil
	for _, path := range []string{"p1", "p2", "p3"} {
		l := scoredListing("", 0, models.FairPrice)
		l.URL = "https://www.yad2.co.il/item/" + path
		run.Listings = append(run.Listings, l)
	}
	run.Scored = len(run.Listings)
	require.NoError(t, w.WriteRun(ctx, run))

	listings, err := w.FetchRun(ctx, "no-ids")
	require.NoError(t, err)
	require.Len(t, listings, 3)
	for i, l := range listings {
		assert.Empty(t, l.ListingID)
		assert.Equal(t, run.Listings[i].URL, l.URL)
	}

	summary, err := w.FetchSummary(ctx, "no-ids")
	require.NoError(t, err)
	assert.Equal(t, len(listings), summary.Scored)
}

func TestPlaceholders(t *testing.T) {
	pg := &SQLWriter{dialect: postgresDialect}
	assert.Equal(t, "($1,$2),($3,$4)", pg.values(2, 2))

	lite := &SQLWriter{dialect: sqliteDialect}
	assert.Equal(t, "(?,?,?)", lite.values(1, 3))
}
