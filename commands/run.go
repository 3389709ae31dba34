package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"vfm-car-finder/models"
	"vfm-car-finder/services"
	"vfm-car-finder/storage"
)

// output flags shared by evaluate and score
func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("low", -1, "VFM score at or below which a listing is a GoodDeal.")
	cmd.Flags().Float64("high", 1, "VFM score above which a listing is Overpriced.")
	cmd.Flags().Int("top", 20, "Show only the best N listings (0 shows all).")
	cmd.Flags().String("filter", "", `CEL filter over "listing", e.g. 'listing.price < 80000.0'.`)
	cmd.Flags().String("results", "", "Scored results CSV (defaults to RESULTS_CSV_PATH).")
}

func newPipeline(ctx context.Context) (*services.Pipeline, error) {
	res, err := services.LoadResources(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	p, err := services.NewPipeline(res, services.PipelineOptions{
		Cleaner:    services.CleanerOptionsFromConfig(cfg),
		Thresholds: services.Thresholds{Low: cfg.LowThreshold, High: cfg.HighThreshold},
		BatchSize:  cfg.PredictBatchSize,
	}, logger)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// finishRun persists a run and prints the ranking and insights.
func finishRun(cmd *cobra.Command, run *models.RunReport) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if err := persistRun(ctx, cmd, run); err != nil {
		return err
	}

	expr, _ := cmd.Flags().GetString("filter")
	filter, err := services.NewFilter(expr)
	if err != nil {
		return err
	}
	shown, err := filter.Apply(run.Listings)
	if err != nil {
		return err
	}
	top, _ := cmd.Flags().GetInt("top")
	shown = services.TopN(shown, top)

	presenter := services.NewPresenter(out)
	presenter.RenderRanking(shown)
	presenter.RenderRejections(run)

	insights := services.NewInsightService(logger)
	insights.Print(out, insights.Generate(run))
	return nil
}

func persistRun(ctx context.Context, cmd *cobra.Command, run *models.RunReport) error {
	path, _ := cmd.Flags().GetString("results")
	if path == "" {
		path = cfg.ResultsCSVPath
	}
	if path != "" {
		csvWriter, err := storage.NewScoredCSVWriter(path)
		if err != nil {
			return err
		}
		if err := writeAndClose(ctx, csvWriter, run); err != nil {
			return err
		}
		logger.Info("[vfm] Scored listings saved to %s", path)
	}

	store, err := storage.Open(ctx, cfg)
	if err != nil {
		return err
	}
	if store == nil {
		return nil
	}
	if err := writeAndClose(ctx, store, run); err != nil {
		return err
	}
	logger.Info("[vfm] Run %s stored in %s", run.RunID, cfg.Store)
	return nil
}

func writeAndClose(ctx context.Context, w storage.RunWriter, run *models.RunReport) error {
	if err := w.WriteRun(ctx, run); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// checkRun turns a run with nothing scored into a command failure.
func checkRun(w io.Writer, run *models.RunReport) error {
	if run.Scored > 0 {
		return nil
	}
	services.NewPresenter(w).RenderRejections(run)
	return fmt.Errorf("vfm: %w: all %d listings rejected", models.ErrNoListings, run.Total)
}
