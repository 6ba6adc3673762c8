package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hewell/mediafetch/internal/faults"
	"github.com/hewell/mediafetch/internal/metrics"
)

// HealthStatus is the coarse state reported by a health check.
type HealthStatus string

// Health statuses.
const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheckResult is one health-check snapshot.
type HealthCheckResult struct {
	Name      string         `json:"name"`
	Status    HealthStatus   `json:"status"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// Backend receives metrics, alerts, and health checks. Implementations must
// tolerate concurrent calls; a failing backend never blocks the others.
type Backend interface {
	SendMetric(ctx context.Context, name string, value float64, tags map[string]string) error
	SendAlert(ctx context.Context, alert Alert) error
	SendHealthCheck(ctx context.Context, result HealthCheckResult) error
}

// LogBackend is the mandatory minimum backend: structured logs only.
type LogBackend struct {
	logger *zap.Logger
}

// NewLogBackend wires a zap logger to the backend interface.
func NewLogBackend(logger *zap.Logger) *LogBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogBackend{logger: logger}
}

// SendMetric logs a gauge-style observation.
func (b *LogBackend) SendMetric(_ context.Context, name string, value float64, tags map[string]string) error {
	b.logger.Debug("metric",
		zap.String("name", name),
		zap.Float64("value", value),
		zap.Any("tags", tags),
	)
	return nil
}

// SendAlert logs the alert at a level matching its severity.
func (b *LogBackend) SendAlert(_ context.Context, alert Alert) error {
	fields := []zap.Field{
		zap.String("rule", alert.Rule),
		zap.String("severity", alert.Severity.String()),
		zap.Time("fired_at", alert.Timestamp),
		zap.Any("details", alert.Details),
	}
	switch alert.Severity {
	case faults.SeverityCritical:
		b.logger.Error(alert.Description, fields...)
	default:
		b.logger.Warn(alert.Description, fields...)
	}
	return nil
}

// SendHealthCheck logs the health snapshot.
func (b *LogBackend) SendHealthCheck(_ context.Context, result HealthCheckResult) error {
	b.logger.Info("health check",
		zap.String("name", result.Name),
		zap.String("status", string(result.Status)),
		zap.String("message", result.Message),
	)
	return nil
}

// PrometheusBackend mirrors health and metric observations into the
// process Prometheus collectors.
type PrometheusBackend struct{}

// NewPrometheusBackend initializes the collectors and returns the backend.
func NewPrometheusBackend() *PrometheusBackend {
	metrics.InitProm()
	return &PrometheusBackend{}
}

// SendMetric publishes health-score observations; other names are carried
// by the dedicated collectors at their call sites.
func (b *PrometheusBackend) SendMetric(_ context.Context, name string, value float64, _ map[string]string) error {
	if name == "health_score" {
		metrics.SetHealthScore(value)
	}
	return nil
}

// SendAlert is a no-op: alert counts are derivable from the error counters.
func (b *PrometheusBackend) SendAlert(context.Context, Alert) error {
	return nil
}

// SendHealthCheck publishes the score carried in the check details.
func (b *PrometheusBackend) SendHealthCheck(_ context.Context, result HealthCheckResult) error {
	if score, ok := result.Details["health_score"].(float64); ok {
		metrics.SetHealthScore(score)
	}
	return nil
}
