package stall

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProgress struct {
	mu      sync.Mutex
	updates []float64
	stalled atomic.Bool
}

func (f *fakeProgress) UpdateProgress(fraction float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, fraction)
}

func (f *fakeProgress) IsStalled() bool {
	return f.stalled.Load()
}

func (f *fakeProgress) Updates() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]float64(nil), f.updates...)
}

func waitDone(t *testing.T, ctx context.Context) {
	t.Helper()
	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context was not cancelled")
	}
}

func TestMonitor_ReportForwardsToTrackerAndObserver(t *testing.T) {
	progress := &fakeProgress{}
	var observed []float64
	m := Start(context.Background(), progress, Options{
		Interval: time.Hour,
		Observer: func(f float64) { observed = append(observed, f) },
	})
	defer m.Stop()

	m.Report(0.1)
	m.Report(0.2)

	assert.Equal(t, []float64{0.1, 0.2}, progress.Updates())
	assert.Equal(t, []float64{0.1, 0.2}, observed)
}

func TestMonitor_StallCancelsWithDistinctReason(t *testing.T) {
	progress := &fakeProgress{}
	var calls atomic.Int32
	m := Start(context.Background(), progress, Options{
		Interval: 5 * time.Millisecond,
		OnStall:  func() { calls.Add(1) },
	})
	defer m.Stop()

	progress.stalled.Store(true)
	waitDone(t, m.Context())

	assert.True(t, m.Stalled())
	assert.Equal(t, ReasonStalled, ReasonOf(m.Context()))
	assert.ErrorIs(t, context.Cause(m.Context()), ErrStalled)

	// Give the poller a few more ticks; the callback must not repeat
	time.Sleep(25 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestMonitor_ParentCancellationIsUserRequested(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	progress := &fakeProgress{}
	stallCalled := false
	m := Start(parent, progress, Options{
		Interval: 5 * time.Millisecond,
		OnStall:  func() { stallCalled = true },
	})
	defer m.Stop()

	cancel()
	waitDone(t, m.Context())

	assert.False(t, m.Stalled())
	assert.Equal(t, ReasonUserRequested, ReasonOf(m.Context()))
	assert.False(t, stallCalled)
}

func TestMonitor_StopTearsDownPolling(t *testing.T) {
	progress := &fakeProgress{}
	m := Start(context.Background(), progress, Options{Interval: 5 * time.Millisecond})

	m.Stop()
	progress.stalled.Store(true)
	time.Sleep(25 * time.Millisecond)

	assert.False(t, m.Stalled())
	require.Error(t, m.Context().Err())

	// Idempotent
	m.Stop()
}

func TestReasonOf_LiveContext(t *testing.T) {
	assert.Equal(t, ReasonNone, ReasonOf(context.Background()))
	assert.Equal(t, "none", ReasonNone.String())
	assert.Equal(t, "stalled", ReasonStalled.String())
	assert.Equal(t, "user_requested", ReasonUserRequested.String())
}
