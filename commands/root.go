package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"vfm-car-finder/config"
	"vfm-car-finder/utils"
)

var (
	cfg    *config.Config
	logger *utils.Logger
)

var rootCmd = &cobra.Command{
	Use:           "vfm",
	Short:         "vfm finds value-for-money used cars by scoring listings against a price model.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()
		applyOverrides(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}
		logger = utils.NewLoggerTo(cmd.ErrOrStderr()).SetDebug(cfg.Debug)
		return nil
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.Bool("debug", false, "Enable debug logging.")
	f.String("store", "", "Result store: postgres, sqlite or none.")
	f.String("sqlite-path", "", "SQLite database file.")
	f.Int("workers", 0, "Parallel cleaning workers.")
	f.String("preprocessor", "", "Preprocessor artifact (YAML).")
	f.String("model", "", "Regressor artifact (JSON).")
	f.String("model-endpoint", "", "Remote regressor endpoint, replaces --model.")
	f.String("titles", "", "Title aggregates CSV.")
	f.String("progress-file", "", "Progress JSON written during scraping.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// applyOverrides copies explicitly set flags over the env config.
func applyOverrides(cmd *cobra.Command, cfg *config.Config) {
	overrideBool(cmd, "debug", &cfg.Debug)
	overrideString(cmd, "store", &cfg.Store)
	overrideString(cmd, "sqlite-path", &cfg.SQLitePath)
	overrideInt(cmd, "workers", &cfg.Workers)
	overrideString(cmd, "preprocessor", &cfg.PreprocessorPath)
	overrideString(cmd, "model", &cfg.ModelPath)
	overrideString(cmd, "model-endpoint", &cfg.ModelEndpoint)
	overrideString(cmd, "titles", &cfg.TitleTablePath)
	overrideString(cmd, "progress-file", &cfg.ProgressFile)

	overrideString(cmd, "url", &cfg.SearchURL)
	overrideInt(cmd, "pages", &cfg.PagesToScrape)
	overrideFloat(cmd, "low", &cfg.LowThreshold)
	overrideFloat(cmd, "high", &cfg.HighThreshold)
}

func overrideString(cmd *cobra.Command, name string, dst *string) {
	if cmd.Flags().Changed(name) {
		*dst, _ = cmd.Flags().GetString(name)
	}
}

func overrideInt(cmd *cobra.Command, name string, dst *int) {
	if cmd.Flags().Changed(name) {
		*dst, _ = cmd.Flags().GetInt(name)
	}
}

func overrideFloat(cmd *cobra.Command, name string, dst *float64) {
	if cmd.Flags().Changed(name) {
		*dst, _ = cmd.Flags().GetFloat64(name)
	}
}

func overrideBool(cmd *cobra.Command, name string, dst *bool) {
	if cmd.Flags().Changed(name) {
		*dst, _ = cmd.Flags().GetBool(name)
	}
}
