package model

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"vfm-car-finder/models"
)

// RemoteRegressor calls a model server over HTTP.
//
// Request:  {"instances": [[1.0, 2.0, ...], ...]}
// Response: {"predictions": [85000.0, ...]}
type RemoteRegressor struct {
	endpoint string
	width    int
	client   *resty.Client
}

// NewRemoteRegressor creates a regressor for endpoint. width is the vector
// length the server expects, 0 to skip the local check.
func NewRemoteRegressor(endpoint string, width int, timeout time.Duration) *RemoteRegressor {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &RemoteRegressor{endpoint: endpoint, width: width, client: client}
}

type remoteRequest struct {
	Instances []Vector `json:"instances"`
}

type remoteResponse struct {
	Predictions []float64 `json:"predictions"`
}

func (m *RemoteRegressor) Name() string { return "remote" }

func (m *RemoteRegressor) Width() int { return m.width }

func (m *RemoteRegressor) Predict(ctx context.Context, batch []Vector) ([]float64, error) {
	if len(batch) == 0 {
		return []float64{}, nil
	}
	if m.width > 0 {
		for i, v := range batch {
			if len(v) != m.width {
				return nil, &models.MismatchError{Reason: fmt.Sprintf("row %d has %d features, model expects %d", i, len(v), m.width)}
			}
		}
	}

	var out remoteResponse
	res, err := m.client.R().
		SetContext(ctx).
		SetBody(remoteRequest{Instances: batch}).
		SetResult(&out).
		ForceContentType("application/json").
		Post(m.endpoint)
	if err != nil {
		return nil, fmt.Errorf("model rpc: %w", err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("model rpc: status=%d, body=%s", res.StatusCode(), truncate(res.String(), 200))
	}
	if len(out.Predictions) != len(batch) {
		return nil, fmt.Errorf("model rpc: expected %d predictions, got %d", len(batch), len(out.Predictions))
	}
	return out.Predictions, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
