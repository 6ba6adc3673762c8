// Package monitor evaluates alert rules against the metrics collector and
// pushes alerts and health checks to pluggable backends.
package monitor

import (
	"sync"
	"time"

	"github.com/hewell/mediafetch/internal/faults"
	"github.com/hewell/mediafetch/internal/metrics"
)

// Alert is one fired rule occurrence.
type Alert struct {
	Rule        string
	Severity    faults.Severity
	Description string
	Timestamp   time.Time
	Details     map[string]any
}

// Rule pairs a predicate over collector stats with a cooldown so a
// persistently-true condition fires at most once per window.
type Rule struct {
	Name        string
	Severity    faults.Severity
	Description string
	Cooldown    time.Duration
	Predicate   func(metrics.Stats) bool

	mu        sync.Mutex
	lastFired time.Time
}

// TryFire reports whether the rule fires now: the predicate holds and the
// cooldown window since the previous firing has elapsed.
func (r *Rule) TryFire(stats metrics.Stats, now time.Time) bool {
	if r.Predicate == nil || !r.Predicate(stats) {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.lastFired.IsZero() && now.Sub(r.lastFired) < r.Cooldown {
		return false
	}
	r.lastFired = now
	return true
}

// DefaultRules returns the stock rule set.
func DefaultRules() []*Rule {
	return []*Rule{
		{
			Name:        "high_error_rate",
			Severity:    faults.SeverityWarning,
			Description: "error rate above 10/min",
			Cooldown:    5 * time.Minute,
			Predicate: func(s metrics.Stats) bool {
				return s.RatePerMinute > 10
			},
		},
		{
			Name:        "critical_errors_present",
			Severity:    faults.SeverityCritical,
			Description: "critical errors recorded",
			Cooldown:    1 * time.Minute,
			Predicate: func(s metrics.Stats) bool {
				return s.BySeverity[faults.SeverityCritical.String()] > 0
			},
		},
		{
			Name:        "low_health_score",
			Severity:    faults.SeverityWarning,
			Description: "health score below 0.7",
			Cooldown:    10 * time.Minute,
			Predicate: func(s metrics.Stats) bool {
				return s.HealthScore < 0.7
			},
		},
		{
			Name:        "excessive_retries",
			Severity:    faults.SeverityWarning,
			Description: "more than 100 retry attempts",
			Cooldown:    5 * time.Minute,
			Predicate: func(s metrics.Stats) bool {
				return s.RetryAttempts > 100
			},
		},
	}
}
