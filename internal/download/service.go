package download

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ytget/ytq/internal/model"
)

// Concurrency limits
const (
	DefaultMaxParallel = 2
	MaxParallelLimit   = 10
)

// DefaultMaxFinished is how many terminal jobs stay queryable by GetStatus
const DefaultMaxFinished = 1000

// ErrServiceClosed is returned by Enqueue after Shutdown
var ErrServiceClosed = errors.New("download service is shut down")

// ServiceOptions configures a Service
type ServiceOptions struct {
	MaxParallel    int // worker slots, default DefaultMaxParallel
	MaxFinished    int // terminal jobs retained, default DefaultMaxFinished
	DefaultQuality string
	Logger         *slog.Logger
	Metrics        Metrics
}

// job is the mutable queue entry behind a model.JobStatus
type job struct {
	status model.JobStatus
	target Target
	key    string // one job per key may be dispatched at a time
}

// Service is the bounded job queue: a FIFO of submitted jobs drained by at most
// MaxParallel concurrent runs of the Runner. Jobs for the same source share one
// output path and sidecar, so a job waits while another for its source is
// dispatched; later jobs for other sources may overtake it.
type Service struct {
	runner Runner
	opts   ServiceOptions

	mu       sync.Mutex
	jobs     map[string]*job // queued and running
	finished map[string]model.JobStatus
	retired  []string // finished ids, oldest first
	active   map[string]string
	pending  []*job
	stats    model.QueueStats
	onUpdate func(model.JobStatus)
	closed   bool

	notify chan struct{}
	slots  chan struct{}

	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	wg      sync.WaitGroup
}

// NewService creates a job queue over runner. Call Start before jobs can run.
func NewService(runner Runner, opts ServiceOptions) *Service {
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = DefaultMaxParallel
	}
	if opts.MaxParallel > MaxParallelLimit {
		opts.MaxParallel = MaxParallelLimit
	}
	if opts.MaxFinished <= 0 {
		opts.MaxFinished = DefaultMaxFinished
	}
	if opts.DefaultQuality == "" {
		opts.DefaultQuality = DefaultQuality
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}

	return &Service{
		runner:   runner,
		opts:     opts,
		jobs:     make(map[string]*job),
		finished: make(map[string]model.JobStatus),
		active:   make(map[string]string),
		notify:   make(chan struct{}, 1),
		slots:    make(chan struct{}, opts.MaxParallel),
	}
}

// MaxParallel returns the number of worker slots
func (s *Service) MaxParallel() int {
	return s.opts.MaxParallel
}

// SetUpdateCallback sets the function called after every job state or progress change
func (s *Service) SetUpdateCallback(callback func(model.JobStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUpdate = callback
}

// Start launches the dispatcher. Jobs run under ctx; cancelling it stops them.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.wg.Add(1)
	go s.dispatch()
}

// Enqueue submits a job and returns its id immediately. It never blocks.
func (s *Service) Enqueue(req model.JobRequest) (string, error) {
	quality := req.Quality
	if quality == "" {
		quality = s.opts.DefaultQuality
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrServiceClosed
	}
	j := &job{
		status: model.JobStatus{
			ID:       "job-" + uuid.NewString(),
			SourceID: req.SourceID,
			Title:    req.Title,
			Quality:  quality,
			State:    model.JobStateQueued,
			QueuedAt: time.Now(),
		},
		target: Target{SourceID: req.SourceID, Title: req.Title, Quality: quality},
		key:    jobKey(req.SourceID),
	}
	s.jobs[j.status.ID] = j
	s.pending = append(s.pending, j)
	s.stats.Queued++
	snapshot := j.status
	callback := s.onUpdate
	s.mu.Unlock()

	s.opts.Metrics.JobQueued()
	s.opts.Logger.Info("job queued", "job_id", snapshot.ID, "source_id", snapshot.SourceID)
	if callback != nil {
		callback(snapshot)
	}

	s.wake()
	return snapshot.ID, nil
}

// GetStatus returns a snapshot of one job, including the most recent
// MaxFinished finished ones
func (s *Service) GetStatus(id string) (model.JobStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j, ok := s.jobs[id]; ok {
		return j.status, true
	}
	st, ok := s.finished[id]
	return st, ok
}

// ListAll returns queued and running jobs in submission order
func (s *Service) ListAll() []model.JobStatus {
	s.mu.Lock()
	out := make([]model.JobStatus, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.status)
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(i, k int) bool {
		return out[i].QueuedAt.Before(out[k].QueuedAt)
	})
	return out
}

// Stats returns the current gauges and the monotonic outcome counters
func (s *Service) Stats() model.QueueStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Shutdown stops accepting jobs, cancels running ones and waits for workers
// to return or for ctx to expire.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatch pulls jobs in FIFO order, blocking on a free slot for each
func (s *Service) dispatch() {
	defer s.wg.Done()

	for {
		j := s.next()
		if j == nil {
			select {
			case <-s.notify:
				continue
			case <-s.ctx.Done():
				s.drainPending()
				return
			}
		}

		select {
		case s.slots <- struct{}{}:
		case <-s.ctx.Done():
			s.requeueFront(j)
			s.drainPending()
			return
		}

		s.markRunning(j)
		s.wg.Add(1)
		go s.work(j)
	}
}

// next removes the oldest pending job whose source is not already dispatched
// and claims its key
func (s *Service) next() *job {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, j := range s.pending {
		if _, busy := s.active[j.key]; busy {
			continue
		}
		s.pending = append(s.pending[:i:i], s.pending[i+1:]...)
		s.active[j.key] = j.status.ID
		return j
	}
	return nil
}

func (s *Service) requeueFront(j *job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, j.key)
	s.pending = append([]*job{j}, s.pending...)
}

func (s *Service) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// retireLocked moves a job into the bounded finished set
func (s *Service) retireLocked(st model.JobStatus) {
	delete(s.jobs, st.ID)
	s.finished[st.ID] = st
	s.retired = append(s.retired, st.ID)
	for len(s.retired) > s.opts.MaxFinished {
		delete(s.finished, s.retired[0])
		s.retired[0] = ""
		s.retired = s.retired[1:]
	}
}

func (s *Service) work(j *job) {
	defer s.wg.Done()
	defer func() { <-s.slots }()

	res, err := s.runner.Run(s.ctx, j.target, func(fraction float64) {
		s.updateProgress(j, fraction)
	})
	s.finish(j, res, err)
}

func (s *Service) markRunning(j *job) {
	s.mu.Lock()
	now := time.Now()
	j.status.State = model.JobStateRunning
	j.status.StartedAt = &now
	s.stats.Queued--
	s.stats.Running++
	snapshot := j.status
	callback := s.onUpdate
	s.mu.Unlock()

	s.opts.Metrics.JobStarted()
	s.opts.Logger.Info("job started", "job_id", snapshot.ID, "source_id", snapshot.SourceID)
	if callback != nil {
		callback(snapshot)
	}
}

func (s *Service) updateProgress(j *job, fraction float64) {
	percent := model.ClampPercent(fraction)

	s.mu.Lock()
	if percent == j.status.ProgressPercent || j.status.State != model.JobStateRunning {
		s.mu.Unlock()
		return
	}
	j.status.ProgressPercent = percent
	snapshot := j.status
	callback := s.onUpdate
	s.mu.Unlock()

	if callback != nil {
		callback(snapshot)
	}
}

func (s *Service) finish(j *job, res *Result, err error) {
	outcome := model.OutcomeFailed
	if res != nil && res.Outcome != model.OutcomeNone {
		outcome = res.Outcome
	}
	if err == nil && res == nil {
		outcome = model.OutcomeSucceeded
	}

	s.mu.Lock()
	now := time.Now()
	j.status.State = outcome.State()
	j.status.Outcome = outcome
	j.status.CompletedAt = &now
	if res != nil {
		j.status.ResultPath = res.OutputPath
		if res.Title != "" {
			j.status.Title = res.Title
		}
		if res.RetryAfter > 0 {
			j.status.RetryAfter = res.RetryAfter.Round(time.Second).String()
		}
	}
	if outcome == model.OutcomeSucceeded {
		j.status.ProgressPercent = 100
	}
	if err != nil {
		j.status.Error = err.Error()
	}

	s.stats.Running--
	switch outcome {
	case model.OutcomeSucceeded:
		s.stats.Completed++
	case model.OutcomeRateLimited:
		s.stats.RateLimited++
	case model.OutcomeCancelled:
		s.stats.Cancelled++
	default:
		s.stats.Failed++
	}
	if s.active[j.key] == j.status.ID {
		delete(s.active, j.key)
	}
	s.retireLocked(j.status)
	snapshot := j.status
	callback := s.onUpdate
	s.mu.Unlock()

	s.wake()
	s.opts.Metrics.JobFinished(outcome, true)
	s.opts.Logger.Info("job finished",
		"job_id", snapshot.ID,
		"source_id", snapshot.SourceID,
		"outcome", outcome,
		"error", snapshot.Error,
	)
	if callback != nil {
		callback(snapshot)
	}
}

// drainPending ends jobs that never got a slot once the service stops. The
// service accepts no jobs afterwards, whether or not Shutdown was called.
func (s *Service) drainPending() {
	s.mu.Lock()
	s.closed = true
	drained := s.pending
	s.pending = nil
	now := time.Now()
	snapshots := make([]model.JobStatus, 0, len(drained))
	for _, j := range drained {
		j.status.State = model.JobStateFailed
		j.status.Outcome = model.OutcomeCancelled
		j.status.Error = context.Canceled.Error()
		j.status.CompletedAt = &now
		s.stats.Queued--
		s.stats.Cancelled++
		s.retireLocked(j.status)
		snapshots = append(snapshots, j.status)
	}
	callback := s.onUpdate
	s.mu.Unlock()

	for _, st := range snapshots {
		s.opts.Metrics.JobFinished(model.OutcomeCancelled, false)
		if callback != nil {
			callback(st)
		}
	}
}

// jobKey identifies the source a job writes to. Unparsable input keys on the
// raw text; those jobs fail before touching any file.
func jobKey(source string) string {
	if id, err := ParseSourceID(source); err == nil {
		return id
	}
	return strings.TrimSpace(source)
}
