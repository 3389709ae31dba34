package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"vfm-car-finder/config"
	"vfm-car-finder/model"
	"vfm-car-finder/models"
	"vfm-car-finder/reference"
	"vfm-car-finder/utils"
)

// Resources are the read-only artifacts shared by every listing of a run.
type Resources struct {
	Preprocessor model.Preprocessor
	Regressor    model.Regressor
	Table        *reference.Table
}

// LoadResources loads the preprocessor, the regressor (file or remote
// endpoint) and the title table. Any failure here is fatal to the run.
func LoadResources(ctx context.Context, cfg *config.Config, logger *utils.Logger) (*Resources, error) {
	pre, err := model.LoadPreprocessor(cfg.PreprocessorPath)
	if err != nil {
		return nil, err
	}

	var reg model.Regressor
	if cfg.ModelEndpoint != "" {
		reg = model.NewRemoteRegressor(cfg.ModelEndpoint, len(pre.Columns()), 10*time.Second)
	} else {
		reg, err = model.LoadRegressor(cfg.ModelPath)
		if err != nil {
			return nil, err
		}
	}
	if w := reg.Width(); w > 0 && w != len(pre.Columns()) {
		return nil, fmt.Errorf("%w: preprocessor emits %d columns, %s model expects %d",
			models.ErrModelLoad, len(pre.Columns()), reg.Name(), w)
	}

	var table *reference.Table
	if cfg.RedisAddr != "" {
		table, err = reference.LoadRedis(ctx, cfg.RedisAddr, cfg.RedisKey, cfg.FallbackStd)
	} else {
		table, err = reference.LoadCSV(cfg.TitleTablePath, cfg.FallbackStd)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("[predictor] Loaded preprocessor %q (%d columns), %s model, %d titles (fallback std %.0f)",
		pre.Version(), len(pre.Columns()), reg.Name(), table.Len(), table.FallbackStd())
	return &Resources{Preprocessor: pre, Regressor: reg, Table: table}, nil
}

// Prediction pairs a listing with its model price.
type Prediction struct {
	Listing *models.CleanListing
	Price   float64
}

// Predictor runs the preprocessing transform and the regressor over a batch.
type Predictor struct {
	res       *Resources
	logger    *utils.Logger
	batchSize int
}

// NewPredictor creates a Predictor. batchSize <= 0 predicts everything in one call.
func NewPredictor(res *Resources, logger *utils.Logger, batchSize int) *Predictor {
	return &Predictor{res: res, logger: logger, batchSize: batchSize}
}

// ListingFeatures maps a CleanListing onto the named model inputs.
func ListingFeatures(l *models.CleanListing) model.Features {
	return model.Features{
		Numeric: map[string]float64{
			"mileage":              l.Mileage,
			"engine_volume":        l.EngineVolume,
			"months_on_road":       float64(l.MonthsOnRoad),
			"mileage_vs_avg_title": l.MileageVsAvgTitle,
			"months_to_test":       float64(l.MonthsToTest),
			"on_road_year":         float64(l.OnRoadYear),
			"on_road_month":        float64(l.OnRoadMonth),
			"horsepower":           horsepower(l.Horsepower),
			"months_vs_avg":        l.MonthsVsAvgTitle,
		},
		Categorical: map[string]string{
			"title_id":     l.TitleID,
			"fuel_type":    l.FuelType,
			"transmission": l.Transmission,
			"body_type":    l.BodyType,
			"ownership":    l.Ownership,
			"color":        l.Color,
		},
	}
}

// an absent horsepower is NaN so the artifact's imputation applies
func horsepower(hp float64) float64 {
	if hp <= 0 {
		return math.NaN()
	}
	return hp
}

// Predict returns one Prediction per listing that made it through the
// transform and the model. Failures are isolated per listing.
func (p *Predictor) Predict(ctx context.Context, listings []*models.CleanListing) ([]Prediction, []*models.Rejection) {
	var rejected []*models.Rejection
	reject := func(l *models.CleanListing, err error) {
		p.logger.Warn("[predictor] Listing %s rejected: %v", listingRef(l), err)
		rejected = append(rejected, &models.Rejection{
			ListingID: l.ListingID, URL: l.URL, Stage: models.StagePredict, Err: err,
		})
	}

	width := p.res.Regressor.Width()
	ready := make([]*models.CleanListing, 0, len(listings))
	vectors := make([]model.Vector, 0, len(listings))
	for _, l := range listings {
		v, err := p.res.Preprocessor.Transform(ListingFeatures(l))
		if err != nil {
			reject(l, err)
			continue
		}
		if width > 0 && len(v) != width {
			reject(l, &models.MismatchError{Reason: fmt.Sprintf("vector has %d features, model expects %d", len(v), width)})
			continue
		}
		ready = append(ready, l)
		vectors = append(vectors, v)
	}

	size := p.batchSize
	if size <= 0 {
		size = len(vectors)
	}

	predictions := make([]Prediction, 0, len(ready))
	for start := 0; start < len(vectors); start += size {
		end := min(start+size, len(vectors))
		chunk, chunkListings := vectors[start:end], ready[start:end]

		prices, err := p.res.Regressor.Predict(ctx, chunk)
		if err == nil && len(prices) != len(chunk) {
			err = fmt.Errorf("predictor: %d predictions for %d rows", len(prices), len(chunk))
		}
		failed := make([]bool, len(chunk))
		if err != nil {
			if ctx.Err() != nil {
				for _, l := range chunkListings {
					reject(l, ctx.Err())
				}
				continue
			}
			p.logger.Warn("[predictor] Batch %d-%d failed, retrying per listing: %v", start, end, err)
			prices = make([]float64, len(chunk))
			for i := range chunk {
				one, err := p.res.Regressor.Predict(ctx, chunk[i:i+1])
				if err == nil && len(one) != 1 {
					err = fmt.Errorf("predictor: %d predictions for 1 row", len(one))
				}
				if err != nil {
					failed[i] = true
					reject(chunkListings[i], err)
					continue
				}
				prices[i] = one[0]
			}
		}

		for i, price := range prices {
			if failed[i] {
				continue
			}
			if err := checkPrediction(price); err != nil {
				reject(chunkListings[i], err)
				continue
			}
			predictions = append(predictions, Prediction{Listing: chunkListings[i], Price: price})
		}
	}

	p.logger.Info("[predictor] Predicted %d of %d listings", len(predictions), len(listings))
	return predictions, rejected
}

func checkPrediction(price float64) error {
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return fmt.Errorf("%w: %v", models.ErrInvalidPrediction, price)
	}
	return nil
}

func listingRef(l *models.CleanListing) string {
	if l.ListingID != "" {
		return l.ListingID
	}
	return l.URL
}
