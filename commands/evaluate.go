package commands

import (
	"time"

	"github.com/spf13/cobra"

	"vfm-car-finder/scraper/yad2"
	"vfm-car-finder/services"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate [--url <search url>] [--pages N]",
	Short: "Scrapes listings, scores them against the price model and prints the best deals.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pipeline, err := newPipeline(ctx)
		if err != nil {
			return err
		}

		progress := services.NewProgressFile(cfg.ProgressFile)
		tracker := services.NewTracker(0, func(p services.Progress) {
			if err := progress.Write(p); err != nil {
				logger.Debug("[vfm] %v", err)
			}
		})

		raws, err := yad2.New(cfg, logger, tracker).Scrape(ctx, cfg.SearchURL, cfg.PagesToScrape)
		if err != nil {
			return err
		}
		logger.Info("[vfm] Scraped %d listings in %s", len(raws), tracker.Snapshot().Elapsed.Round(time.Second))

		run, err := pipeline.Run(ctx, raws)
		if err != nil {
			return err
		}
		if err := checkRun(cmd.OutOrStdout(), run); err != nil {
			return err
		}
		return finishRun(cmd, run)
	},
}

func init() {
	evaluateCmd.Flags().String("url", "", "Filtered yad2 search URL (defaults to SEARCH_URL).")
	evaluateCmd.Flags().Int("pages", 1, "Result pages to scrape.")
	addOutputFlags(evaluateCmd)
	rootCmd.AddCommand(evaluateCmd)
}
