// Package metrics exposes queue and orchestrator events as Prometheus
// collectors. Collector implements download.Metrics.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ytget/ytq/internal/model"
)

// DefaultNamespace prefixes every metric name
const DefaultNamespace = "ytq"

// Collector records pipeline events. Register it with a prometheus.Registerer
// of the caller's choosing; nothing is registered globally.
type Collector struct {
	jobsTotal        *prometheus.CounterVec
	jobsRunning      prometheus.Gauge
	jobsQueued       prometheus.Gauge
	attemptsTotal    prometheus.Counter
	stallsTotal      prometheus.Counter
	rateLimitsTotal  prometheus.Counter
	transferDuration *prometheus.HistogramVec
}

// New creates a collector and registers it with reg
func New(namespace string, reg prometheus.Registerer) (*Collector, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	c := &Collector{
		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: fmt.Sprintf("%s_jobs_total", namespace),
				Help: "Finished jobs by outcome",
			},
			[]string{"outcome"},
		),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_jobs_running", namespace),
			Help: "Jobs currently holding a worker slot",
		}),
		jobsQueued: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_jobs_queued", namespace),
			Help: "Jobs waiting for a worker slot",
		}),
		attemptsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_attempts_total", namespace),
			Help: "Transfer attempts started, retries included",
		}),
		stallsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_stalls_total", namespace),
			Help: "Transfers cancelled by the stall monitor",
		}),
		rateLimitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_rate_limits_total", namespace),
			Help: "Rate-limit signals that started a cooldown",
		}),
		// Buckets: 1s .. ~68m
		transferDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    fmt.Sprintf("%s_transfer_duration_seconds", namespace),
				Help:    "Duration of single transfer attempts",
				Buckets: prometheus.ExponentialBuckets(1, 2, 13),
			},
			[]string{"outcome"},
		),
	}

	if reg != nil {
		for _, col := range []prometheus.Collector{
			c.jobsTotal,
			c.jobsRunning,
			c.jobsQueued,
			c.attemptsTotal,
			c.stallsTotal,
			c.rateLimitsTotal,
			c.transferDuration,
		} {
			if err := reg.Register(col); err != nil {
				return nil, fmt.Errorf("register metrics: %w", err)
			}
		}
	}
	return c, nil
}

// JobQueued records a submission
func (c *Collector) JobQueued() {
	c.jobsQueued.Inc()
}

// JobStarted moves a job from queued to running
func (c *Collector) JobStarted() {
	c.jobsQueued.Dec()
	c.jobsRunning.Inc()
}

// JobFinished records a terminal job. started is false for jobs that were
// drained from the queue without ever getting a slot.
func (c *Collector) JobFinished(outcome model.Outcome, started bool) {
	if started {
		c.jobsRunning.Dec()
	} else {
		c.jobsQueued.Dec()
	}
	c.jobsTotal.WithLabelValues(outcome.String()).Inc()
}

// AttemptStarted counts one transfer attempt
func (c *Collector) AttemptStarted() {
	c.attemptsTotal.Inc()
}

// TransferStalled counts a stall cancellation
func (c *Collector) TransferStalled() {
	c.stallsTotal.Inc()
}

// RateLimited counts a rate-limit signal
func (c *Collector) RateLimited() {
	c.rateLimitsTotal.Inc()
}

// ObserveTransfer records how long one attempt took
func (c *Collector) ObserveTransfer(outcome model.Outcome, d time.Duration) {
	c.transferDuration.WithLabelValues(outcome.String()).Observe(d.Seconds())
}
