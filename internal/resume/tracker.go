package resume

import (
	"math"
	"sync"
	"time"
)

// Tracker owns the in-memory state of one target while an attempt runs against
// it. Only the orchestrator driving that target may hold a Tracker; progress
// callbacks and the stall poller may call it concurrently.
type Tracker struct {
	store *Store

	mu           sync.Mutex
	rec          Record
	lastFraction float64
	lastChange   time.Time
	stalled      bool
}

// Record returns a snapshot of the current record
func (t *Tracker) Record() Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rec.clone()
}

// Save persists the record. Failures are logged and swallowed.
func (t *Tracker) Save() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.saveLocked()
}

// Reset discards any prior progress so the target starts fresh
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rec = Record{
		SourceID:     t.rec.SourceID,
		OutputPath:   t.rec.OutputPath,
		SourceURL:    t.rec.SourceURL,
		DisplayTitle: t.rec.DisplayTitle,
		StartedAt:    t.store.Now(),
	}
	t.lastFraction = 0
	t.lastChange = time.Time{}
	t.stalled = false
}

// DiscardPartial removes an untrusted partial file
func (t *Tracker) DiscardPartial() {
	t.mu.Lock()
	path := t.store.PartialPath(t.rec.OutputPath)
	t.mu.Unlock()

	if err := t.store.remove(path); err != nil {
		t.store.degraded("discard-partial", path, err)
	}
}

// BeginAttempt stamps the attempt start, merges what the resolved plan tells
// us about the source and persists the record. The stall clock starts here so
// a transfer that never reports progress still stalls.
func (t *Tracker) BeginAttempt(sourceURL, title string, totalBytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.store.Now()
	if t.rec.StartedAt.IsZero() {
		t.rec.StartedAt = now
	}
	t.rec.LastAttemptAt = &now
	if sourceURL != "" {
		t.rec.SourceURL = sourceURL
	}
	if title != "" {
		t.rec.DisplayTitle = title
	}
	t.raiseTotalLocked(totalBytes)

	t.lastFraction = fractionOf(t.rec)
	t.lastChange = now
	t.stalled = false

	t.saveLocked()
}

// UpdateProgress records a fractional progress report in [0,1]. A change of at
// least ProgressEpsilon resets the stall clock, refreshes the byte counters and
// persists; an unchanged value only flags the stall once the timeout passed.
func (t *Tracker) UpdateProgress(fraction float64) {
	fraction = math.Max(0, math.Min(1, fraction))

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.store.Now()
	if math.Abs(fraction-t.lastFraction) < ProgressEpsilon {
		if !t.lastChange.IsZero() && now.Sub(t.lastChange) > t.store.opts.stallTimeout {
			t.stalled = true
		}
		return
	}

	t.lastFraction = fraction
	t.lastChange = now
	t.stalled = false
	t.deriveBytesLocked(fraction)
	t.saveLocked()
}

// IsStalled reports whether progress has been flat for longer than the stall timeout
func (t *Tracker) IsStalled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stalled {
		return true
	}
	return !t.lastChange.IsZero() && t.store.Now().Sub(t.lastChange) > t.store.opts.stallTimeout
}

// CanResume is true only when the partial file, the sidecar and an exact byte
// count match all line up. Anything else means the partial file is untrusted.
func (t *Tracker) CanResume() bool {
	t.mu.Lock()
	path := t.rec.OutputPath
	downloaded := t.rec.DownloadedBytes
	t.mu.Unlock()

	size, ok := t.store.PartialSize(path)
	if !ok {
		return false
	}
	if !t.store.HasSidecar(path) {
		return false
	}
	return size == downloaded
}

// IsRateLimited reports whether the rate-limit cooldown is still running
func (t *Tracker) IsRateLimited() bool {
	_, ok := t.RateLimitRemaining()
	return ok
}

// RateLimitRemaining returns the cooldown left, or false once it expired
func (t *Tracker) RateLimitRemaining() (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rec.RateLimitRemaining(t.store.Now())
}

// MarkRateLimited starts the cooldown window and persists it
func (t *Tracker) MarkRateLimited() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.store.Now()
	t.rec.RateLimitedAt = &now
	t.saveLocked()
}

// Cleanup removes the sidecar. Call only after a confirmed successful download.
func (t *Tracker) Cleanup() {
	t.mu.Lock()
	path := SidecarPath(t.rec.OutputPath)
	t.mu.Unlock()

	if err := t.store.remove(path); err != nil {
		t.store.degraded("cleanup", path, err)
	}
}

// deriveBytesLocked prefers the real partial file size and falls back to the
// size estimate scaled by fraction, never mixing both in one update.
func (t *Tracker) deriveBytesLocked(fraction float64) {
	if size, ok := t.store.PartialSize(t.rec.OutputPath); ok && size > 0 {
		t.rec.DownloadedBytes = size
		if t.rec.TotalBytes == 0 && fraction > 0 {
			t.raiseTotalLocked(int64(float64(size) / fraction))
		}
		t.raiseTotalLocked(size)
		return
	}
	if t.rec.TotalBytes > 0 {
		t.rec.DownloadedBytes = int64(float64(t.rec.TotalBytes) * fraction)
	}
}

// raiseTotalLocked sets the size estimate; it is never revised downward
func (t *Tracker) raiseTotalLocked(total int64) {
	if total > t.rec.TotalBytes {
		t.rec.TotalBytes = total
	}
}

func (t *Tracker) saveLocked() {
	t.rec.LastUpdatedAt = t.store.Now()
	if err := t.store.write(t.rec); err != nil {
		t.store.degraded("save", SidecarPath(t.rec.OutputPath), err)
	}
}
