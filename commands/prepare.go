package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"vfm-car-finder/models"
	"vfm-car-finder/reference"
	"vfm-car-finder/services"
	"vfm-car-finder/storage"
)

var prepareCmd = &cobra.Command{
	Use:   "prepare-training --input <listings.json> --output <train.csv>",
	Short: "Cleans scraper output and drops price outliers to build a training set.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		records, err := readRecords(cmd)
		if err != nil {
			return err
		}
		raws, rejected := services.NewIngestor(logger).Ingest(records)

		// without a title table there is no outlier filtering
		var table *reference.Table
		if cfg.TitleTablePath != "" {
			table, err = reference.LoadCSV(cfg.TitleTablePath, cfg.FallbackStd)
			if err != nil {
				logger.Warn("[prepare] Title table unavailable, continuing without it: %v", err)
			}
		}

		cleaned, cleanRejected := services.NewCleaner(logger, table, services.CleanerOptionsFromConfig(cfg)).CleanAll(ctx, raws)
		rejected = append(rejected, cleanRejected...)
		if err := ctx.Err(); err != nil {
			return err
		}

		kept := cleaned
		if table != nil {
			var dropped []*models.CleanListing
			kept, dropped = services.DropPriceOutliers(cleaned, table, services.OutlierPolicy{
				IQRK:  cfg.OutlierIQRK,
				Ratio: cfg.OutlierRatio,
			})
			logger.Info("[prepare] Dropped %d price outliers", len(dropped))
		}
		if len(kept) == 0 {
			return fmt.Errorf("prepare: %w: %d rejected", models.ErrNoListings, len(rejected))
		}

		path, _ := cmd.Flags().GetString("output")
		w, err := storage.NewTrainingCSVWriter(path)
		if err != nil {
			return err
		}
		if err := w.WriteTraining(kept); err != nil {
			_ = w.Close()
			return err
		}
		if err := w.Close(); err != nil {
			return err
		}

		logger.Info("[prepare] Wrote %d training rows to %s (%d rejected)", len(kept), path, len(rejected))
		return nil
	},
}

func init() {
	prepareCmd.Flags().String("input", "-", `Scraper JSON output, "-" for stdin.`)
	prepareCmd.Flags().String("output", "./output/train.csv", "Training CSV to write.")
	rootCmd.AddCommand(prepareCmd)
}
