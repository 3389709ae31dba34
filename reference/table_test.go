package reference

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vfm-car-finder/models"
)

const aggregatesCSV = `title,avg_price_by_title,avg_mileage_by_title,avg_months_on_road_by_title,std_error,price_q1,price_q3,count
CorollaLE,95000,80000,60,5000,85000,105000,120
Mazda 3 Sport,88000,70000,48,0,80000,95000,40
__global__,,,,6000,,,
`

func TestReadCSV(t *testing.T) {
	table, err := ReadCSV(strings.NewReader(aggregatesCSV), 0)
	require.NoError(t, err)

	assert.Equal(t, 2, table.Len())
	assert.Equal(t, 6000.0, table.FallbackStd())
	assert.Equal(t, []string{"corollale", "mazda 3 sport"}, table.TitleIDs())

	s, ok := table.Lookup("corollale")
	require.True(t, ok)
	assert.Equal(t, 5000.0, s.StdError)
	assert.Equal(t, 80000.0, s.AvgMileage)
	assert.Equal(t, 120, s.Count)
	assert.True(t, s.HasQuartiles())
}

func TestStdFallback(t *testing.T) {
	table, err := ReadCSV(strings.NewReader(aggregatesCSV), 0)
	require.NoError(t, err)

	std, fallback := table.Std("corollale")
	assert.Equal(t, 5000.0, std)
	assert.False(t, fallback)

	// zero std row inherits the global value
	std, fallback = table.Std("mazda 3 sport")
	assert.Equal(t, 6000.0, std)
	assert.False(t, fallback)

	std, fallback = table.Std("unseen title")
	assert.Equal(t, 6000.0, std)
	assert.True(t, fallback)
}

func TestAvgMileageUnseen(t *testing.T) {
	table, err := ReadCSV(strings.NewReader(aggregatesCSV), 0)
	require.NoError(t, err)

	assert.Equal(t, 0.0, table.AvgMileage("unseen"))
	assert.Equal(t, 70000.0, table.AvgMileage("mazda 3 sport"))
}

func TestReadCSVDefaultStd(t *testing.T) {
	csv := "title,std_error\nCorollaLE,5000\n"

	_, err := ReadCSV(strings.NewReader(csv), 0)
	assert.ErrorIs(t, err, models.ErrErrorTableLoad, "no global row and no default must fail")

	table, err := ReadCSV(strings.NewReader(csv), 4500)
	require.NoError(t, err)
	assert.Equal(t, 4500.0, table.FallbackStd())
}

func TestReadCSVPercentStd(t *testing.T) {
	csv := "title,avg_price_by_title,avg_mileage_by_title,std_error_pct\n" +
		"CorollaLE,90000,80000,5\n" +
		"Mazda 3 Sport,,70000,4\n"

	table, err := ReadCSV(strings.NewReader(csv), 6000)
	require.NoError(t, err)

	std, fallback := table.Std("corollale")
	assert.InDelta(t, 4500.0, std, 1e-9)
	assert.False(t, fallback)

	std, _ = table.Std("mazda 3 sport")
	assert.Equal(t, 6000.0, std, "no average price to scale the percentage")
}

func TestReadCSVFailures(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"header only", "title,std_error\n"},
		{"no std column", "title,avg_price\nA,100\n"},
		{"bad number", "title,std_error\nA,abc\n__global__,100\n"},
		{"only global", "title,std_error\n__global__,100\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.body), 0)
			assert.ErrorIs(t, err, models.ErrErrorTableLoad)
		})
	}
}

func TestNewTableMergesNormalizedKeys(t *testing.T) {
	table, err := NewTable([]TitleStats{
		{Title: "Toyota  Corolla – LE", StdError: 5000},
		{Title: GlobalKey, StdError: 6000},
	}, 0)
	require.NoError(t, err)

	_, ok := table.Lookup("toyota corolla le")
	assert.True(t, ok)
}
