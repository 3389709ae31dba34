package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"vfm-car-finder/models"
	"vfm-car-finder/utils"
)

// Pipeline wires ingestion, cleaning, prediction, scoring and ranking into
// one evaluation run. A Pipeline can serve many runs; every run is
// independent.
type Pipeline struct {
	logger    *utils.Logger
	ingestor  *Ingestor
	cleaner   *Cleaner
	predictor *Predictor
	scorer    *Scorer
	now       func() time.Time
}

// PipelineOptions are the per-deployment knobs of a Pipeline.
type PipelineOptions struct {
	Cleaner    CleanerOptions
	Thresholds Thresholds
	BatchSize  int
}

// NewPipeline builds a Pipeline over loaded resources.
func NewPipeline(res *Resources, opts PipelineOptions, logger *utils.Logger) (*Pipeline, error) {
	scorer, err := NewScorer(res.Table, opts.Thresholds, logger)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		logger:    logger,
		ingestor:  NewIngestor(logger),
		cleaner:   NewCleaner(logger, res.Table, opts.Cleaner),
		predictor: NewPredictor(res, logger, opts.BatchSize),
		scorer:    scorer,
		now:       time.Now,
	}, nil
}

// RunRecords evaluates weakly-typed scraper records.
func (p *Pipeline) RunRecords(ctx context.Context, records []Record) (*models.RunReport, error) {
	raws, rejected := p.ingestor.Ingest(records)
	report, err := p.Run(ctx, raws)
	if report != nil {
		report.Rejections = append(rejected, report.Rejections...)
		report.Total += len(rejected)
		report.Rejected += len(rejected)
	}
	return report, err
}

// Run evaluates a batch of raw listings. Per-listing failures end up in the
// report's rejections; the error is reserved for run-level failures.
func (p *Pipeline) Run(ctx context.Context, raws []*models.RawListing) (*models.RunReport, error) {
	report := &models.RunReport{
		RunID:     uuid.NewString(),
		StartedAt: p.now(),
		Total:     len(raws),
	}
	p.logger.Info("[pipeline] Run %s: evaluating %d listings", report.RunID, len(raws))

	cleaned, rejected := p.cleaner.CleanAll(ctx, raws)
	report.Rejections = append(report.Rejections, rejected...)
	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("pipeline: clean: %w", err)
	}

	predictions, rejected := p.predictor.Predict(ctx, cleaned)
	report.Rejections = append(report.Rejections, rejected...)
	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("pipeline: predict: %w", err)
	}

	scored := make([]*models.ScoredListing, 0, len(predictions))
	for _, pr := range predictions {
		s := p.scorer.Score(pr.Listing, pr.Price)
		if s.UsedFallbackStd {
			report.FallbackCount++
		}
		scored = append(scored, s)
	}

	report.Listings = Rank(scored)
	report.Scored = len(report.Listings)
	report.Rejected = len(report.Rejections)
	report.FinishedAt = p.now()

	p.logger.Info("[pipeline] Run %s: %d scored, %d rejected, %d used global std",
		report.RunID, report.Scored, report.Rejected, report.FallbackCount)
	for reason, n := range report.RejectionsByReason() {
		p.logger.Debug("[pipeline] Rejected %d × %s", n, reason)
	}
	return report, nil
}
