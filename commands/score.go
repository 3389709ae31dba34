package commands

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"vfm-car-finder/services"
)

var scoreCmd = &cobra.Command{
	Use:   "score [--input <listings.json>]",
	Short: "Scores scraper output read from a JSON file or stdin.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		records, err := readRecords(cmd)
		if err != nil {
			return err
		}

		pipeline, err := newPipeline(ctx)
		if err != nil {
			return err
		}
		run, err := pipeline.RunRecords(ctx, records)
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
	scoreCmd.Flags().String("input", "-", `Scraper JSON output, "-" for stdin.`)
	addOutputFlags(scoreCmd)
	rootCmd.AddCommand(scoreCmd)
}

func readRecords(cmd *cobra.Command) ([]services.Record, error) {
	path, _ := cmd.Flags().GetString("input")

	var r io.Reader = cmd.InOrStdin()
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	return services.DecodeRecords(r)
}
