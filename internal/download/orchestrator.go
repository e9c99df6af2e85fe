package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ytget/ytq/internal/model"
	"github.com/ytget/ytq/internal/resume"
	"github.com/ytget/ytq/internal/stall"
)

// DefaultMaxRetries is the number of retries after the first attempt
const DefaultMaxRetries = 5

// Options configures an Orchestrator
type Options struct {
	OutputDir  string
	Container  string // default DefaultContainer
	Quality    string // ceiling used when a target has none
	MaxRetries int    // default DefaultMaxRetries; negative means no retries

	// StallInterval is the stall monitor poll interval. Default: stall.DefaultPollInterval
	StallInterval time.Duration

	Logger  *slog.Logger
	Metrics Metrics

	// Sleep waits out the backoff; tests replace it. Default honours ctx.
	Sleep func(ctx context.Context, d time.Duration) error
	// Backoff maps an attempt number to its delay. Default: Delay
	Backoff func(attempt int) time.Duration
}

// Result describes the final outcome of one Run
type Result struct {
	Outcome    model.Outcome
	SourceID   string
	OutputPath string
	Title      string
	Attempts   int
	Resumed    bool          // at least one attempt continued a partial file
	Skipped    bool          // output was already complete, nothing transferred
	RetryAfter time.Duration // remaining cooldown when rate limited
}

// Orchestrator drives one target at a time through the retry state machine.
// It is safe for concurrent use on distinct targets.
type Orchestrator struct {
	fetcher Fetcher
	store   *resume.Store
	opts    Options
}

// NewOrchestrator creates an orchestrator persisting resumable state in store
func NewOrchestrator(fetcher Fetcher, store *resume.Store, opts Options) *Orchestrator {
	if opts.Container == "" {
		opts.Container = DefaultContainer
	}
	if opts.Quality == "" {
		opts.Quality = DefaultQuality
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	if opts.Backoff == nil {
		opts.Backoff = Delay
	}

	return &Orchestrator{
		fetcher: fetcher,
		store:   store,
		opts:    opts,
	}
}

// Run downloads target, retrying transient failures and stalls with backoff.
// The error is nil only for model.OutcomeSucceeded and is a *Error otherwise.
// The Result is never nil.
func (o *Orchestrator) Run(ctx context.Context, target Target, progress ProgressFunc) (*Result, error) {
	id, err := ParseSourceID(target.SourceID)
	if err != nil {
		o.opts.Logger.Warn("rejecting target", "target", target.SourceID, "error", err)
		return &Result{Outcome: model.OutcomeFailed, SourceID: target.SourceID},
			&Error{Kind: KindInvalidTarget, SourceID: target.SourceID, Err: err}
	}

	container := target.Container
	if container == "" {
		container = o.opts.Container
	}
	quality := target.Quality
	if quality == "" {
		quality = o.opts.Quality
	}
	outputPath := target.OutputPath
	if outputPath == "" {
		outputPath = OutputPath(o.opts.OutputDir, id, target.Title, container)
	}

	res := &Result{SourceID: id, OutputPath: outputPath, Title: target.Title}
	log := o.opts.Logger.With("source_id", id, "output", outputPath)

	if size, ok := o.store.OutputSize(outputPath); ok && size > 0 && !o.store.HasSidecar(outputPath) {
		log.Info("output already complete, skipping", "bytes", size)
		res.Outcome = model.OutcomeSucceeded
		res.Skipped = true
		return res, nil
	}

	var lastErr error
	for attempt := 0; attempt <= o.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := o.opts.Backoff(attempt)
			log.Info("retrying", "attempt", attempt+1, "delay", delay, "last_error", lastErr)
			if err := o.opts.Sleep(ctx, delay); err != nil {
				o.store.Load(id, outputPath).Save()
				return o.cancelled(res, attempt, err)
			}
		}

		tracker := o.store.Load(id, outputPath)
		if remaining, limited := tracker.RateLimitRemaining(); limited {
			log.Warn("rate limit cooldown active, not attempting", "retry_after", remaining.Round(time.Second))
			res.Outcome = model.OutcomeRateLimited
			res.RetryAfter = remaining
			res.Attempts = attempt
			return res, &Error{Kind: KindRateLimited, SourceID: id, Attempts: attempt, RetryAfter: remaining, Err: ErrRateLimited}
		}

		res.Attempts = attempt + 1
		o.opts.Metrics.AttemptStarted()
		outcome, err := o.attempt(ctx, log, tracker, id, target.Title, container, quality, res, progress)
		switch outcome {
		case model.OutcomeSucceeded:
			return res, nil
		case model.OutcomeCancelled:
			return o.cancelled(res, res.Attempts, err)
		case model.OutcomeRateLimited:
			res.Outcome = model.OutcomeRateLimited
			res.RetryAfter = resume.RateLimitCooldown
			return res, &Error{Kind: KindRateLimited, SourceID: id, Attempts: res.Attempts, RetryAfter: resume.RateLimitCooldown, Err: err}
		case model.OutcomeFailed:
			res.Outcome = model.OutcomeFailed
			return res, &Error{Kind: KindInvalidTarget, SourceID: id, Attempts: res.Attempts, Err: err}
		}
		lastErr = err
	}

	log.Error("giving up", "attempts", res.Attempts, "error", lastErr)
	res.Outcome = model.OutcomeFailed
	return res, &Error{
		Kind:     KindOf(lastErr),
		SourceID: id,
		Attempts: res.Attempts,
		Err:      fmt.Errorf("%w: %w", ErrRetriesExhausted, lastErr),
	}
}

// attempt runs one resolve and transfer. OutcomeNone means retry.
func (o *Orchestrator) attempt(
	ctx context.Context,
	log *slog.Logger,
	tracker *resume.Tracker,
	id, title, container, quality string,
	res *Result,
	progress ProgressFunc,
) (model.Outcome, error) {
	plan, err := o.fetcher.ResolveBestOption(ctx, id, PlanRequest{
		Container:      container,
		QualityCeiling: quality,
	})
	if err != nil {
		return o.classify(ctx, log, tracker, fmt.Errorf("resolve: %w", err))
	}
	if plan.Title != "" {
		res.Title = plan.Title
	} else {
		plan.Title = title
	}

	outputPath := tracker.Record().OutputPath
	if tracker.CanResume() {
		plan.ResumeFrom = tracker.Record().DownloadedBytes
		res.Resumed = true
		log.Info("resuming partial transfer", "from_bytes", plan.ResumeFrom)
	} else {
		if _, exists := o.store.PartialSize(outputPath); exists {
			log.Info("discarding untrusted partial file", "partial", o.store.PartialPath(outputPath))
			tracker.DiscardPartial()
		}
		tracker.Reset()
		plan.ResumeFrom = 0
	}
	tracker.BeginAttempt(plan.SourceURL, plan.Title, plan.ContentLength)

	monitor := stall.Start(ctx, tracker, stall.Options{
		Interval: o.opts.StallInterval,
		Observer: progress,
		OnStall:  o.opts.Metrics.TransferStalled,
		Logger:   log,
	})
	started := time.Now()
	err = o.fetcher.Transfer(monitor.Context(), outputPath, SourceMetadata{SourceID: id, Title: res.Title}, plan, monitor.Report)
	stalled := monitor.Stalled()
	monitor.Stop()

	switch {
	case err == nil && ctx.Err() == nil:
		tracker.Cleanup()
		if progress != nil {
			progress(1)
		}
		o.opts.Metrics.ObserveTransfer(model.OutcomeSucceeded, time.Since(started))
		log.Info("download complete", "title", res.Title, "attempt", res.Attempts)
		res.Outcome = model.OutcomeSucceeded
		return model.OutcomeSucceeded, nil
	case stalled && ctx.Err() == nil:
		o.opts.Metrics.ObserveTransfer(model.OutcomeFailed, time.Since(started))
		tracker.Save()
		log.Warn("transfer stalled", "attempt", res.Attempts)
		return model.OutcomeNone, &Error{Kind: KindStalled, SourceID: id, Attempts: res.Attempts, Err: stall.ErrStalled}
	}

	outcome, classified := o.classify(ctx, log, tracker, err)
	o.opts.Metrics.ObserveTransfer(outcomeOrFailed(outcome), time.Since(started))
	return outcome, classified
}

// classify decides what a failed resolve or transfer means for the loop
func (o *Orchestrator) classify(ctx context.Context, log *slog.Logger, tracker *resume.Tracker, err error) (model.Outcome, error) {
	if ctx.Err() != nil {
		tracker.Save()
		if err == nil {
			err = ctx.Err()
		}
		return model.OutcomeCancelled, err
	}
	if IsRateLimitError(err) {
		tracker.MarkRateLimited()
		o.opts.Metrics.RateLimited()
		log.Warn("rate limited, recording cooldown", "cooldown", resume.RateLimitCooldown, "error", err)
		return model.OutcomeRateLimited, err
	}
	if errors.Is(err, ErrInvalidTarget) {
		return model.OutcomeFailed, err
	}
	tracker.Save()
	log.Warn("attempt failed", "error", err)
	return model.OutcomeNone, err
}

func (o *Orchestrator) cancelled(res *Result, attempts int, cause error) (*Result, error) {
	o.opts.Logger.Info("download cancelled, partial state kept", "source_id", res.SourceID)
	res.Outcome = model.OutcomeCancelled
	res.Attempts = attempts
	if cause == nil {
		cause = context.Canceled
	}
	return res, &Error{Kind: KindUserCancelled, SourceID: res.SourceID, Attempts: attempts, Err: cause}
}

func outcomeOrFailed(o model.Outcome) model.Outcome {
	if o == model.OutcomeNone {
		return model.OutcomeFailed
	}
	return o
}
