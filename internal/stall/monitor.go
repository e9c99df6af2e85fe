// Package stall watches a running transfer for forward progress and cancels it
// when progress stays flat for too long. Stall cancellation carries its own
// cause so callers can tell it apart from a user or shutdown cancellation.
package stall

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultPollInterval is how often the monitor checks for a stall
const DefaultPollInterval = 5 * time.Second

// ErrStalled is the cancellation cause set when the monitor fires
var ErrStalled = errors.New("transfer stalled: no progress within timeout")

// Reason tags why a transfer context was cancelled
type Reason int

const (
	// ReasonNone means the context is still live
	ReasonNone Reason = iota
	// ReasonUserRequested covers user and process shutdown cancellation
	ReasonUserRequested
	// ReasonStalled means the stall monitor cancelled the transfer
	ReasonStalled
)

// String returns the string representation of Reason
func (r Reason) String() string {
	switch r {
	case ReasonUserRequested:
		return "user_requested"
	case ReasonStalled:
		return "stalled"
	default:
		return "none"
	}
}

// ReasonOf classifies the cancellation of a context derived by a Monitor
func ReasonOf(ctx context.Context) Reason {
	if ctx.Err() == nil {
		return ReasonNone
	}
	if errors.Is(context.Cause(ctx), ErrStalled) {
		return ReasonStalled
	}
	return ReasonUserRequested
}

// Progress is the slice of a transfer tracker the monitor drives
type Progress interface {
	UpdateProgress(fraction float64)
	IsStalled() bool
}

// Options configures a Monitor
type Options struct {
	// Interval between stall checks. Default: DefaultPollInterval
	Interval time.Duration

	// Observer receives every progress value after the tracker, e.g. a progress bar
	Observer func(fraction float64)

	// OnStall runs once, the first time a stall is observed
	OnStall func()

	Logger *slog.Logger
}

// Monitor forwards progress to a tracker and cancels the transfer context on
// the first observed stall. The polling goroutine lives until Stop.
type Monitor struct {
	progress Progress
	opts     Options

	ctx    context.Context
	cancel context.CancelCauseFunc

	once    sync.Once
	fired   chan struct{}
	stopCh  chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

// Start derives a transfer context from parent and begins polling. Callers
// must Stop the monitor on every exit path.
func Start(parent context.Context, progress Progress, opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancelCause(parent)
	m := &Monitor{
		progress: progress,
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
		fired:    make(chan struct{}),
		stopCh:   make(chan struct{}),
	}

	m.wg.Add(1)
	go m.poll()
	return m
}

// Context returns the transfer context. It is cancelled with ErrStalled on a
// stall and with the parent's cause when the parent is cancelled.
func (m *Monitor) Context() context.Context {
	return m.ctx
}

// Report is the progress sink handed to the fetcher
func (m *Monitor) Report(fraction float64) {
	m.progress.UpdateProgress(fraction)
	if m.opts.Observer != nil {
		m.opts.Observer(fraction)
	}
}

// Stalled reports whether the monitor cancelled the transfer
func (m *Monitor) Stalled() bool {
	select {
	case <-m.fired:
		return true
	default:
		return false
	}
}

// Stop ends polling and releases the derived context. Safe to call twice.
func (m *Monitor) Stop() {
	m.stopped.Do(func() {
		close(m.stopCh)
	})
	m.wg.Wait()
	m.cancel(context.Canceled)
}

func (m *Monitor) poll() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			if m.progress.IsStalled() {
				m.fire()
				return
			}
		}
	}
}

func (m *Monitor) fire() {
	m.once.Do(func() {
		close(m.fired)
		m.opts.Logger.Warn("transfer stalled, cancelling", "interval", m.opts.Interval)
		if m.opts.OnStall != nil {
			m.opts.OnStall()
		}
		m.cancel(ErrStalled)
	})
}
