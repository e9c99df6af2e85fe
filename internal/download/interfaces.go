package download

import (
	"context"
	"time"

	"github.com/ytget/ytq/internal/model"
)

// ProgressFunc receives fractional progress in [0,1]
type ProgressFunc func(fraction float64)

// PlanRequest describes what the caller would like to download
type PlanRequest struct {
	Container      string
	QualityCeiling string
	Extra          map[string]string
}

// TransferPlan is the stream choice a Fetcher resolved for a source. The
// quality may be lower than requested; that is not an error.
type TransferPlan struct {
	SourceURL     string
	Title         string
	Container     string
	Quality       string
	ContentLength int64 // estimate, 0 when unknown
	ResumeFrom    int64 // bytes already on disk the Fetcher may continue from
}

// SourceMetadata identifies the source being written to an output
type SourceMetadata struct {
	SourceID string
	Title    string
}

// Fetcher resolves and performs the actual byte transfer.
type Fetcher interface {
	// ResolveBestOption returns the best plan at or below the requested ceiling
	ResolveBestOption(ctx context.Context, sourceID string, req PlanRequest) (*TransferPlan, error)

	// Transfer writes the source to outputPath, reporting progress until all
	// bytes are written or ctx is cancelled.
	Transfer(ctx context.Context, outputPath string, meta SourceMetadata, plan *TransferPlan, progress ProgressFunc) error
}

// Runner drives one target to a final outcome
type Runner interface {
	Run(ctx context.Context, target Target, progress ProgressFunc) (*Result, error)
}

// Metrics receives pipeline events. internal/metrics implements it with Prometheus.
type Metrics interface {
	JobQueued()
	JobStarted()
	JobFinished(outcome model.Outcome, started bool)
	AttemptStarted()
	TransferStalled()
	RateLimited()
	ObserveTransfer(outcome model.Outcome, d time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) JobQueued()                                   {}
func (nopMetrics) JobStarted()                                  {}
func (nopMetrics) JobFinished(model.Outcome, bool)              {}
func (nopMetrics) AttemptStarted()                              {}
func (nopMetrics) TransferStalled()                             {}
func (nopMetrics) RateLimited()                                 {}
func (nopMetrics) ObserveTransfer(model.Outcome, time.Duration) {}
