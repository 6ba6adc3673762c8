package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hewell/mediafetch/internal/metrics"
)

// Health-check thresholds on the derived score.
const (
	healthyThreshold  = 0.9
	degradedThreshold = 0.7
)

const defaultInterval = 30 * time.Second

// Monitor polls the metrics collector, fires alert rules, and pushes health
// checks to every backend. It runs independently of any single fetch.
type Monitor struct {
	collector *metrics.Collector
	logger    *zap.Logger
	interval  time.Duration
	now       func() time.Time

	mu       sync.RWMutex
	rules    []*Rule
	backends []Backend
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithInterval overrides the evaluation period.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithRules replaces the default rule set.
func WithRules(rules []*Rule) Option {
	return func(m *Monitor) { m.rules = rules }
}

// WithBackends sets the delivery backends. A LogBackend is appended if the
// list contains none, keeping the logging minimum in place.
func WithBackends(backends ...Backend) Option {
	return func(m *Monitor) { m.backends = backends }
}

// New builds a Monitor over the collector.
func New(collector *metrics.Collector, logger *zap.Logger, opts ...Option) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Monitor{
		collector: collector,
		logger:    logger,
		interval:  defaultInterval,
		rules:     DefaultRules(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	if len(m.backends) == 0 {
		m.backends = []Backend{NewLogBackend(logger)}
	}
	return m
}

// AddBackend registers an additional delivery backend at runtime.
func (m *Monitor) AddBackend(b Backend) {
	if b == nil {
		return
	}
	m.mu.Lock()
	m.backends = append(m.backends, b)
	m.mu.Unlock()
}

// Run evaluates rules and health on a ticker until the context finishes.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Evaluate(ctx)
			m.PerformHealthCheck(ctx)
		}
	}
}

// Evaluate checks every rule against current stats and dispatches fired
// alerts to all backends.
func (m *Monitor) Evaluate(ctx context.Context) []Alert {
	stats := m.collector.Stats()
	now := m.now()

	m.mu.RLock()
	rules := m.rules
	m.mu.RUnlock()

	var fired []Alert
	for _, rule := range rules {
		if !rule.TryFire(stats, now) {
			continue
		}
		alert := Alert{
			Rule:        rule.Name,
			Severity:    rule.Severity,
			Description: rule.Description,
			Timestamp:   now,
			Details: map[string]any{
				"health_score":    stats.HealthScore,
				"rate_per_minute": stats.RatePerMinute,
				"total_errors":    stats.TotalErrors,
				"retry_attempts":  stats.RetryAttempts,
			},
		}
		fired = append(fired, alert)
		m.broadcast(ctx, func(b Backend) error { return b.SendAlert(ctx, alert) })
	}
	return fired
}

// PerformHealthCheck derives the current health status and pushes it to all
// backends.
func (m *Monitor) PerformHealthCheck(ctx context.Context) HealthCheckResult {
	stats := m.collector.Stats()
	status := StatusUnhealthy
	switch {
	case stats.HealthScore >= healthyThreshold:
		status = StatusHealthy
	case stats.HealthScore >= degradedThreshold:
		status = StatusDegraded
	}

	result := HealthCheckResult{
		Name:      "media_fetch",
		Status:    status,
		Message:   statusMessage(status, stats),
		Timestamp: m.now(),
		Details: map[string]any{
			"health_score":    stats.HealthScore,
			"rate_per_minute": stats.RatePerMinute,
			"total_errors":    stats.TotalErrors,
		},
	}
	m.broadcast(ctx, func(b Backend) error { return b.SendHealthCheck(ctx, result) })
	m.broadcast(ctx, func(b Backend) error {
		return b.SendMetric(ctx, "health_score", stats.HealthScore, nil)
	})
	return result
}

func statusMessage(status HealthStatus, stats metrics.Stats) string {
	switch status {
	case StatusHealthy:
		return "fetch engine operating normally"
	case StatusDegraded:
		return "elevated error volume, fallbacks likely in use"
	default:
		return "fetch engine unhealthy"
	}
}

// broadcast delivers to every backend; one backend's failure is logged and
// never blocks the rest.
func (m *Monitor) broadcast(ctx context.Context, send func(Backend) error) {
	m.mu.RLock()
	backends := m.backends
	m.mu.RUnlock()
	for _, b := range backends {
		if b == nil {
			continue
		}
		if err := send(b); err != nil {
			m.logger.Warn("monitoring backend delivery failed", zap.Error(err))
		}
	}
}
