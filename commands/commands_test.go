package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vfm-car-finder/storage"
)

const testPreprocessor = `
version: cli-test
columns:
  - name: mileage
    kind: numeric
  - name: title_id
    kind: categorical
    levels: [toyota corolla le, mazda 3 sport]
    unknown_value: -1
`

// constant 90000 regardless of features
const testModel = `{"type": "linear", "intercept": 90000, "coefficients": [0, 0]}`

const testTitles = `title,std_error,avg_price_by_title,avg_mileage_by_title,count
__global__,6000,,,
toyota corolla le,5000,90000,100000,40
`

const testListings = `[
  {"listing_id": "over", "url": "https://www.yad2.co.il/item/over", "title": "Toyota Corolla LE",
   "price": "100,000", "mileage": "120,000", "engine_volume": "1.8",
   "upload_date": "15/03/2024", "on_road_date": "03/2020"},
  {"listing_id": "good", "url": "https://www.yad2.co.il/item/good", "title": "Toyota Corolla LE",
   "price": "80,000", "mileage": "90,000", "engine_volume": "1.8",
   "upload_date": "15/03/2024", "on_road_date": "03/2020"},
  {"listing_id": "bad", "title": "Toyota Corolla LE", "price": "call me",
   "mileage": "1", "engine_volume": "1.8", "upload_date": "15/03/2024", "on_road_date": "03/2020"}
]`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// setupEnv points every artifact at a temp dir and returns it.
func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("PREPROCESSOR_PATH", writeFile(t, dir, "pre.yaml", testPreprocessor))
	t.Setenv("MODEL_PATH", writeFile(t, dir, "model.json", testModel))
	t.Setenv("TITLE_TABLE_PATH", writeFile(t, dir, "titles.csv", testTitles))
	t.Setenv("MODEL_ENDPOINT", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("RESULTS_CSV_PATH", filepath.Join(dir, "results.csv"))
	t.Setenv("STORE", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(dir, "vfm.db"))
	t.Setenv("PROGRESS_FILE", "")
	return dir
}

// resetFlags undoes flag values left behind by a previous execution.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestScoreCommand(t *testing.T) {
	dir := setupEnv(t)
	input := writeFile(t, dir, "listings.json", testListings)

	out, err := execute(t, "score", "--input", input, "--top", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "GoodDeal")
	assert.Contains(t, out, "Overpriced")
	assert.Contains(t, out, "UnparsableField(price)")

	results, err := os.ReadFile(filepath.Join(dir, "results.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(results)), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], ",good,")
	assert.Contains(t, lines[2], ",over,")

	store, err := storage.NewSQLiteWriter(context.Background(), filepath.Join(dir, "vfm.db"))
	require.NoError(t, err)
	defer store.Close()
	latest, err := store.LatestRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, latest.Total)
	assert.Equal(t, 2, latest.Scored)
	assert.Equal(t, 1, latest.Rejected)
}

func TestScoreCommandAllRejected(t *testing.T) {
	dir := setupEnv(t)
	input := writeFile(t, dir, "listings.json", `[{"listing_id": "x", "title": "Toyota Corolla LE", "price": "?"}]`)

	_, err := execute(t, "score", "--input", input)
	assert.Error(t, err)
}

func TestPrepareTrainingCommand(t *testing.T) {
	dir := setupEnv(t)
	input := writeFile(t, dir, "listings.json", testListings)
	output := filepath.Join(dir, "out", "train.csv")

	_, err := execute(t, "prepare-training", "--input", input, "--output", output)
	require.NoError(t, err)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 3, "header plus the two parseable listings")
}

func TestFlagsOverrideEnv(t *testing.T) {
	setupEnv(t)
	t.Setenv("VFM_LOW_THRESHOLD", "-1")

	_, err := execute(t, "score", "--input", "-", "--low", "2", "--high", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "low threshold")
}
