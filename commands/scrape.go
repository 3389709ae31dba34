package commands

import (
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"vfm-car-finder/scraper/yad2"
	"vfm-car-finder/services"
	"vfm-car-finder/storage"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape [--url <search url>] [--pages N] [--output <listings.json>]",
	Short: "Scrapes listings and writes them as JSON, without scoring.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

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

		if raw, _ := cmd.Flags().GetBool("csv"); raw {
			csvWriter, err := storage.NewRawCSVWriter(cfg.CSVOutputPath)
			if err != nil {
				return err
			}
			if err := csvWriter.WriteRaw(raws); err != nil {
				_ = csvWriter.Close()
				return err
			}
			if err := csvWriter.Close(); err != nil {
				return err
			}
			logger.Info("[vfm] Raw listings saved to %s", cfg.CSVOutputPath)
		}

		path, _ := cmd.Flags().GetString("output")
		var w io.Writer = cmd.OutOrStdout()
		if path != "" && path != "-" {
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return err
			}
			f, err := os.Create(path)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}
		if err := services.EncodeRecords(w, raws); err != nil {
			return err
		}
		logger.Info("[vfm] Wrote %d listings", len(raws))
		return nil
	},
}

func init() {
	scrapeCmd.Flags().String("url", "", "Filtered yad2 search URL (defaults to SEARCH_URL).")
	scrapeCmd.Flags().Int("pages", 1, "Result pages to scrape.")
	scrapeCmd.Flags().String("output", "-", `JSON output file, "-" for stdout.`)
	scrapeCmd.Flags().Bool("csv", false, "Also write a raw CSV to CSV_OUTPUT_PATH.")
	rootCmd.AddCommand(scrapeCmd)
}
