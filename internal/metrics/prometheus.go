package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hewell/mediafetch/internal/faults"
)

var (
	fetchErrorsTotal   *prometheus.CounterVec
	fetchesTotal       *prometheus.CounterVec
	fetchDuration      *prometheus.HistogramVec
	fetchBytesTotal    prometheus.Counter
	cacheEventsTotal   *prometheus.CounterVec
	fallbackRunsTotal  *prometheus.CounterVec
	retryAttemptsTotal prometheus.Counter
	healthScoreGauge   prometheus.Gauge

	promOnce sync.Once
)

// InitProm initializes the Prometheus collectors. Safe to call repeatedly.
func InitProm() {
	promOnce.Do(func() {
		fetchErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mediafetch_errors_total",
				Help: "Classified fetch errors, labeled by code, category, and severity.",
			},
			[]string{"code", "category", "severity"},
		)
		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mediafetch_fetches_total",
				Help: "Completed fetch operations, labeled by outcome.",
			},
			[]string{"outcome"},
		)
		fetchDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mediafetch_fetch_duration_seconds",
				Help:    "End-to-end fetch latency, labeled by outcome.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"outcome"},
		)
		fetchBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mediafetch_bytes_total",
				Help: "Total payload bytes downloaded.",
			},
		)
		cacheEventsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mediafetch_cache_events_total",
				Help: "Cache lookups, labeled hit or miss.",
			},
			[]string{"result"},
		)
		fallbackRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mediafetch_fallback_runs_total",
				Help: "Fallback strategy executions, labeled by strategy and result.",
			},
			[]string{"strategy", "result"},
		)
		retryAttemptsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mediafetch_retry_attempts_total",
				Help: "Retry attempts across all fetches.",
			},
		)
		healthScoreGauge = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mediafetch_health_score",
				Help: "Derived health score in [0,1].",
			},
		)
	})
}

// ObserveError increments the error counter for a classified failure.
func ObserveError(fe *faults.FetchError) {
	if fetchErrorsTotal == nil || fe == nil {
		return
	}
	fetchErrorsTotal.WithLabelValues(fe.Code, string(fe.Category), fe.Severity.String()).Inc()
}

// ObserveFetch records a completed fetch by outcome (success, degraded,
// cached, failed).
func ObserveFetch(outcome string, duration time.Duration, bytes int64) {
	if fetchesTotal == nil {
		return
	}
	fetchesTotal.WithLabelValues(outcome).Inc()
	fetchDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	if bytes > 0 {
		fetchBytesTotal.Add(float64(bytes))
	}
}

// ObserveCache records a cache lookup result.
func ObserveCache(hit bool) {
	if cacheEventsTotal == nil {
		return
	}
	if hit {
		cacheEventsTotal.WithLabelValues("hit").Inc()
	} else {
		cacheEventsTotal.WithLabelValues("miss").Inc()
	}
}

// ObserveFallback records one strategy execution.
func ObserveFallback(strategy string, success bool) {
	if fallbackRunsTotal == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	fallbackRunsTotal.WithLabelValues(strategy, result).Inc()
}

// ObserveRetries adds to the global retry attempt counter.
func ObserveRetries(n int) {
	if retryAttemptsTotal == nil || n <= 0 {
		return
	}
	retryAttemptsTotal.Add(float64(n))
}

// SetHealthScore publishes the derived health score.
func SetHealthScore(score float64) {
	if healthScoreGauge == nil {
		return
	}
	healthScoreGauge.Set(score)
}
