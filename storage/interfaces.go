package storage

import (
	"context"

	"vfm-car-finder/models"
)

// RunWriter is the interface any result store must satisfy.
type RunWriter interface {
	WriteRun(ctx context.Context, run *models.RunReport) error
	Close() error
}

// RawListingWriter is the interface for persisting unprocessed scraped data.
type RawListingWriter interface {
	WriteRaw(listings []*models.RawListing) error
	Close() error
}
