// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jeranaias/aidchat/internal/exchange"
)

// =============================================================================
// SUMMARY
// =============================================================================

// Summary aggregates the exchanges of the running process.
type Summary struct {
	StartTime    time.Time     `json:"start_time"`
	Exchanges    int           `json:"exchanges"`
	Completed    int           `json:"completed"`
	Failed       int           `json:"failed"`
	Detached     int           `json:"detached"`
	Dropped      int           `json:"dropped"`
	Fragments    int           `json:"fragments"`
	OpenFailures int           `json:"open_failures"`
	TotalTime    time.Duration `json:"total_time"`
}

// AverageDuration returns the mean duration of finished exchanges.
func (s Summary) AverageDuration() time.Duration {
	n := s.Completed + s.Failed + s.Detached
	if n == 0 {
		return 0
	}
	return s.TotalTime / time.Duration(n)
}

// String renders a one-line summary.
func (s Summary) String() string {
	return fmt.Sprintf("%d exchanges (%d ok, %d failed, %d dropped) | %d fragments | avg %s",
		s.Exchanges, s.Completed, s.Failed, s.Dropped, s.Fragments,
		s.AverageDuration().Round(10*time.Millisecond))
}

// =============================================================================
// RECORDER
// =============================================================================

// Recorder implements exchange.Metrics.
type Recorder struct {
	registry *prometheus.Registry

	exchanges *prometheus.CounterVec
	fragments prometheus.Counter
	duration  prometheus.Histogram
	dropped   *prometheus.CounterVec
	openFail  prometheus.Counter
	inFlight  prometheus.Gauge

	mu      sync.Mutex
	summary Summary
}

var _ exchange.Metrics = (*Recorder)(nil)

// NewRecorder creates a recorder with its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aidchat_exchanges_total",
			Help: "Finished exchanges by outcome.",
		}, []string{"outcome"}),
		fragments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aidchat_fragments_total",
			Help: "Response fragments applied to messages.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "aidchat_exchange_duration_seconds",
			Help:    "Time from submission to the end of the reply.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aidchat_submissions_dropped_total",
			Help: "Submissions dropped without effect, by reason.",
		}, []string{"reason"}),
		openFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aidchat_session_open_failures_total",
			Help: "Remote sessions that could not be opened.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aidchat_exchanges_in_flight",
			Help: "Exchanges currently streaming (0 or 1).",
		}),
		summary: Summary{StartTime: time.Now()},
	}
	r.registry.MustRegister(
		r.exchanges, r.fragments, r.duration, r.dropped, r.openFail, r.inFlight,
		collectors.NewGoCollector(),
	)
	return r
}

// Registry returns the registry holding the recorder's collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Summary returns a copy of the session summary.
func (r *Recorder) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summary
}

func (r *Recorder) SubmissionDropped(reason string) {
	r.dropped.WithLabelValues(reason).Inc()
	r.mu.Lock()
	r.summary.Dropped++
	r.mu.Unlock()
}

func (r *Recorder) ExchangeStarted() {
	r.inFlight.Inc()
	r.mu.Lock()
	r.summary.Exchanges++
	r.mu.Unlock()
}

func (r *Recorder) FragmentApplied() {
	r.fragments.Inc()
	r.mu.Lock()
	r.summary.Fragments++
	r.mu.Unlock()
}

func (r *Recorder) ExchangeFinished(outcome string, elapsed time.Duration) {
	r.inFlight.Dec()
	r.exchanges.WithLabelValues(outcome).Inc()
	r.duration.Observe(elapsed.Seconds())

	r.mu.Lock()
	defer r.mu.Unlock()
	switch outcome {
	case exchange.OutcomeCompleted:
		r.summary.Completed++
	case exchange.OutcomeFailed:
		r.summary.Failed++
	default:
		r.summary.Detached++
	}
	r.summary.TotalTime += elapsed
}

func (r *Recorder) SessionOpenFailed() {
	r.openFail.Inc()
	r.mu.Lock()
	r.summary.OpenFailures++
	r.mu.Unlock()
}
