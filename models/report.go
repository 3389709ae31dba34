package models

import "time"

// Stage names the pipeline step a listing was rejected in.
type Stage string

const (
	StageIngest  Stage = "ingest"
	StageClean   Stage = "clean"
	StagePredict Stage = "predict"
)

// Rejection records a single listing that was excluded from the output.
type Rejection struct {
	ListingID string
	URL       string
	Stage     Stage
	Err       error
}

// Reason is the counting key of the rejection.
func (r *Rejection) Reason() string { return Reason(r.Err) }

// RunReport is the output of one evaluation run.
type RunReport struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	Listings   []*ScoredListing
	Rejections []*Rejection

	Total         int
	Scored        int
	Rejected      int
	FallbackCount int
}

// RejectionsByReason counts rejections per reason code.
func (r *RunReport) RejectionsByReason() map[string]int {
	out := make(map[string]int)
	for _, rej := range r.Rejections {
		out[rej.Reason()]++
	}
	return out
}
