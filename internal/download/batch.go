package download

import (
	"context"
	"log/slog"
	"time"

	"github.com/ytget/ytq/internal/model"
)

// DefaultBatchDelay separates sequential downloads to stay under rate limits
const DefaultBatchDelay = 2 * time.Second

// BatchOptions configures RunBatch
type BatchOptions struct {
	Delay    time.Duration // default DefaultBatchDelay
	Sleep    func(ctx context.Context, d time.Duration) error
	Logger   *slog.Logger
	Progress func(target Target) ProgressFunc
	OnResult func(target Target, res *Result, err error)
}

// BatchItem is the outcome of one target in a batch
type BatchItem struct {
	Target Target
	Result *Result
	Err    error
}

// BatchSummary separates the four user-visible outcomes
type BatchSummary struct {
	Items       []BatchItem
	Succeeded   int
	RateLimited int
	Failed      int
	Cancelled   int
	NotStarted  int
}

// Total returns the number of targets in the batch
func (b BatchSummary) Total() int {
	return len(b.Items) + b.NotStarted
}

// OK reports whether every target succeeded
func (b BatchSummary) OK() bool {
	return b.RateLimited == 0 && b.Failed == 0 && b.Cancelled == 0 && b.NotStarted == 0
}

// RunBatch downloads targets one after another with a fixed delay between
// them. Cancelling ctx stops the batch; remaining targets count as NotStarted.
func RunBatch(ctx context.Context, runner Runner, targets []Target, opts BatchOptions) BatchSummary {
	if opts.Delay <= 0 {
		opts.Delay = DefaultBatchDelay
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	var summary BatchSummary
	for i, target := range targets {
		if i > 0 {
			if err := opts.Sleep(ctx, opts.Delay); err != nil {
				summary.NotStarted = len(targets) - i
				break
			}
		}
		if ctx.Err() != nil {
			summary.NotStarted = len(targets) - i
			break
		}

		var progress ProgressFunc
		if opts.Progress != nil {
			progress = opts.Progress(target)
		}

		opts.Logger.Info("batch item", "index", i+1, "total", len(targets), "target", target.SourceID)
		res, err := runner.Run(ctx, target, progress)
		summary.Items = append(summary.Items, BatchItem{Target: target, Result: res, Err: err})

		outcome := model.OutcomeFailed
		if res != nil {
			outcome = res.Outcome
		}
		switch outcome {
		case model.OutcomeSucceeded:
			summary.Succeeded++
		case model.OutcomeRateLimited:
			summary.RateLimited++
		case model.OutcomeCancelled:
			summary.Cancelled++
		default:
			summary.Failed++
		}

		if opts.OnResult != nil {
			opts.OnResult(target, res, err)
		}
	}

	opts.Logger.Info("batch finished",
		"succeeded", summary.Succeeded,
		"rate_limited", summary.RateLimited,
		"failed", summary.Failed,
		"cancelled", summary.Cancelled,
		"not_started", summary.NotStarted,
	)
	return summary
}
