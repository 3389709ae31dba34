package model

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vfm-car-finder/models"
)

const preprocessorYAML = `
version: "2024-06"
columns:
  - name: mileage
    kind: numeric
    impute: 80000
    mean: 80000
    scale: 40000
  - name: months_on_road
    kind: numeric
  - name: title_id
    kind: categorical
    levels: [corollale, mazda 3 sport]
    unknown_value: -1
  - name: fuel_type
    kind: categorical
    levels: [petrol, hybrid]
    missing: petrol
  - name: transmission
    kind: categorical
    levels: [automatic, manual]
`

func mustPreprocessor(t *testing.T) *TablePreprocessor {
	t.Helper()
	p, err := ParsePreprocessor([]byte(preprocessorYAML))
	require.NoError(t, err)
	return p
}

func fullFeatures() Features {
	return Features{
		Numeric: map[string]float64{"mileage": 120000, "months_on_road": 36},
		Categorical: map[string]string{
			"title_id":     "mazda 3 sport",
			"fuel_type":    "hybrid",
			"transmission": "automatic",
		},
	}
}

func TestPreprocessorTransform(t *testing.T) {
	p := mustPreprocessor(t)

	assert.Equal(t, "2024-06", p.Version())
	assert.Equal(t, []string{"mileage", "months_on_road", "title_id", "fuel_type", "transmission"}, p.Columns())

	v, err := p.Transform(fullFeatures())
	require.NoError(t, err)
	if diff := cmp.Diff(Vector{1, 36, 1, 1, 0}, v); diff != "" {
		t.Errorf("Transform mismatch (-want +got):\n%s", diff)
	}
}

func TestPreprocessorFallbacks(t *testing.T) {
	p := mustPreprocessor(t)

	f := fullFeatures()
	f.Numeric["mileage"] = math.NaN()
	f.Categorical["title_id"] = "never seen"
	delete(f.Categorical, "fuel_type")

	v, err := p.Transform(f)
	require.NoError(t, err)
	assert.Equal(t, Vector{0, 36, -1, 0, 0}, v)
}

func TestPreprocessorMismatch(t *testing.T) {
	p := mustPreprocessor(t)

	tests := []struct {
		name   string
		mutate func(*Features)
		column string
	}{
		{"missing numeric without impute", func(f *Features) { delete(f.Numeric, "months_on_road") }, "months_on_road"},
		{"infinite numeric without impute", func(f *Features) { f.Numeric["months_on_road"] = math.Inf(1) }, "months_on_road"},
		{"unknown level without bucket", func(f *Features) { f.Categorical["transmission"] = "robotic" }, "transmission"},
		{"missing level without default", func(f *Features) { f.Categorical["transmission"] = " " }, "transmission"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := fullFeatures()
			tt.mutate(&f)
			_, err := p.Transform(f)
			require.ErrorIs(t, err, models.ErrFeatureMismatch)
			var me *models.MismatchError
			require.ErrorAs(t, err, &me)
			assert.Equal(t, tt.column, me.Column)
		})
	}
}

func TestParsePreprocessorInvalid(t *testing.T) {
	tests := map[string]string{
		"no columns":     "version: x\ncolumns: []\n",
		"bad kind":       "columns:\n  - name: a\n    kind: text\n",
		"duplicate":      "columns:\n  - name: a\n    kind: numeric\n  - name: a\n    kind: numeric\n",
		"no levels":      "columns:\n  - name: a\n    kind: categorical\n",
		"bad missing":    "columns:\n  - name: a\n    kind: categorical\n    levels: [x]\n    missing: y\n",
		"not yaml":       "columns: [",
		"unnamed column": "columns:\n  - kind: numeric\n",
		"negative scale": "columns:\n  - name: a\n    kind: numeric\n    scale: -1\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePreprocessor([]byte(body))
			assert.ErrorIs(t, err, models.ErrModelLoad)
		})
	}
}

func TestLinearRegressor(t *testing.T) {
	r, err := ParseRegressor([]byte(`{"type":"linear","version":"v1","intercept":1000,"coefficients":[2,3]}`))
	require.NoError(t, err)
	assert.Equal(t, 2, r.Width())

	out, err := r.Predict(context.Background(), []Vector{{10, 100}, {0, 0}})
	require.NoError(t, err)
	assert.Equal(t, []float64{1320, 1000}, out)

	_, err = r.Predict(context.Background(), []Vector{{1}})
	assert.ErrorIs(t, err, models.ErrFeatureMismatch)
}

func TestLinearRegressorLogTarget(t *testing.T) {
	r, err := ParseRegressor([]byte(`{"type":"linear","intercept":0,"coefficients":[1],"log_target":true}`))
	require.NoError(t, err)

	out, err := r.Predict(context.Background(), []Vector{{math.Log(90000)}})
	require.NoError(t, err)
	assert.InDelta(t, 90000, out[0], 1e-6)
}

const treesJSON = `{
  "type": "tree_ensemble",
  "version": "v2",
  "base_score": 50000,
  "num_features": 2,
  "trees": [
    {"nodes": [
      {"feature": 0, "threshold": 100000, "left": 1, "right": 2, "default_left": true},
      {"leaf": true, "value": 40000},
      {"leaf": true, "value": 10000}
    ]},
    {"nodes": [
      {"feature": 1, "threshold": 24, "left": 1, "right": 2},
      {"leaf": true, "value": 5000},
      {"leaf": true, "value": -5000}
    ]}
  ]
}`

func TestTreeEnsemble(t *testing.T) {
	r, err := ParseRegressor([]byte(treesJSON))
	require.NoError(t, err)
	assert.Equal(t, "tree_ensemble", r.Name())
	assert.Equal(t, 2, r.Width())

	out, err := r.Predict(context.Background(), []Vector{
		{50000, 12},
		{150000, 60},
		{math.NaN(), 24},
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{95000, 55000, 95000}, out)
}

func TestTreeEnsembleRejectsCycles(t *testing.T) {
	body := `{"type":"tree_ensemble","num_features":1,"trees":[{"nodes":[
		{"feature":0,"threshold":1,"left":0,"right":1},{"leaf":true,"value":1}]}]}`
	_, err := ParseRegressor([]byte(body))
	assert.ErrorIs(t, err, models.ErrModelLoad)
}

func TestParseRegressorUnknownType(t *testing.T) {
	_, err := ParseRegressor([]byte(`{"type":"catboost"}`))
	assert.ErrorIs(t, err, models.ErrModelLoad)

	_, err = ParseRegressor([]byte(`not json`))
	assert.ErrorIs(t, err, models.ErrModelLoad)
}

func TestRemoteRegressor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req remoteRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		preds := make([]float64, len(req.Instances))
		for i, v := range req.Instances {
			preds[i] = v[0] * 2
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(remoteResponse{Predictions: preds})
	}))
	defer srv.Close()

	r := NewRemoteRegressor(srv.URL, 2, time.Second)
	out, err := r.Predict(context.Background(), []Vector{{1, 0}, {21, 0}})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 42}, out)

	_, err = r.Predict(context.Background(), []Vector{{1}})
	assert.ErrorIs(t, err, models.ErrFeatureMismatch)
}

func TestRemoteRegressorErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/short" {
			_, _ = w.Write([]byte(`{"predictions":[1]}`))
			return
		}
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewRemoteRegressor(srv.URL+"/down", 0, time.Second).Predict(context.Background(), []Vector{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=503")

	_, err = NewRemoteRegressor(srv.URL+"/short", 0, time.Second).Predict(context.Background(), []Vector{{1}, {2}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 2 predictions")
}
