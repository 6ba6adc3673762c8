// Package metrics keeps a bounded history of classified errors and derives
// counters, an error rate, and a health score from it.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/hewell/mediafetch/internal/faults"
)

// ErrorMetric is one recorded failure.
type ErrorMetric struct {
	Code         string
	Category     faults.Category
	Severity     faults.Severity
	Timestamp    time.Time
	Context      map[string]any
	RetryCount   int
	FallbackUsed bool
}

// Stats is a point-in-time summary of the collector.
type Stats struct {
	TotalErrors   int            `json:"total_errors"`
	BySeverity    map[string]int `json:"by_severity"`
	ByCategory    map[string]int `json:"by_category"`
	RatePerMinute float64        `json:"rate_per_minute"`
	HealthScore   float64        `json:"health_score"`
	RetryAttempts int            `json:"retry_attempts"`
	FallbacksUsed int            `json:"fallbacks_used"`
	Since         time.Time      `json:"since"`
}

// Health score deductions per recorded severity.
const (
	criticalPenalty = 0.3
	errorPenalty    = 0.1
	warningPenalty  = 0.05
	maxRatePenalty  = 0.5
	ratePenaltyStep = 0.1
)

const defaultHistorySize = 1000

// Collector is a thread-safe bounded error history. Writes are serialized;
// reads copy out snapshots so callers never observe partial state.
type Collector struct {
	mu            sync.RWMutex
	history       []ErrorMetric
	head          int
	size          int
	byCode        map[string]int
	byCategory    map[faults.Category]int
	bySeverity    map[faults.Severity]int
	retryAttempts int
	fallbacksUsed int
	since         time.Time
	now           func() time.Time
}

// NewCollector builds a collector with a fixed-capacity history. A
// non-positive capacity falls back to the default of 1000 entries.
func NewCollector(capacity int) *Collector {
	if capacity <= 0 {
		capacity = defaultHistorySize
	}
	return &Collector{
		history:    make([]ErrorMetric, capacity),
		byCode:     make(map[string]int),
		byCategory: make(map[faults.Category]int),
		bySeverity: make(map[faults.Severity]int),
		since:      time.Now().UTC(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Record appends a classified error to the history, evicting the oldest
// entry when the buffer is full.
func (c *Collector) Record(fe *faults.FetchError, retryCount int, fallbackUsed bool) {
	if fe == nil {
		return
	}
	m := ErrorMetric{
		Code:         fe.Code,
		Category:     fe.Category,
		Severity:     fe.Severity,
		Timestamp:    c.now(),
		Context:      fe.Context,
		RetryCount:   retryCount,
		FallbackUsed: fallbackUsed,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.size == len(c.history) {
		evicted := c.history[c.head]
		c.byCode[evicted.Code]--
		c.byCategory[evicted.Category]--
		c.bySeverity[evicted.Severity]--
	} else {
		c.size++
	}
	c.history[c.head] = m
	c.head = (c.head + 1) % len(c.history)

	c.byCode[m.Code]++
	c.byCategory[m.Category]++
	c.bySeverity[m.Severity]++
	c.retryAttempts += retryCount
	if fallbackUsed {
		c.fallbacksUsed++
	}
}

// AddRetryAttempts bumps the retry counter for attempts that did not end in
// a recorded error (the download eventually succeeded).
func (c *Collector) AddRetryAttempts(n int) {
	if n <= 0 {
		return
	}
	c.mu.Lock()
	c.retryAttempts += n
	c.mu.Unlock()
}

// Stats returns the current summary.
func (c *Collector) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	bySev := make(map[string]int, len(c.bySeverity))
	for sev, n := range c.bySeverity {
		if n > 0 {
			bySev[sev.String()] = n
		}
	}
	byCat := make(map[string]int, len(c.byCategory))
	for cat, n := range c.byCategory {
		if n > 0 {
			byCat[string(cat)] = n
		}
	}
	return Stats{
		TotalErrors:   c.size,
		BySeverity:    bySev,
		ByCategory:    byCat,
		RatePerMinute: c.rateLocked(),
		HealthScore:   c.healthLocked(),
		RetryAttempts: c.retryAttempts,
		FallbacksUsed: c.fallbacksUsed,
		Since:         c.since,
	}
}

// ByCategory returns the live count for one category.
func (c *Collector) ByCategory(cat faults.Category) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byCategory[cat]
}

// BySeverity returns the live count for one severity.
func (c *Collector) BySeverity(sev faults.Severity) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bySeverity[sev]
}

// ByCode returns the live count for one code.
func (c *Collector) ByCode(code string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byCode[code]
}

// Recent returns entries recorded within the window, oldest first.
func (c *Collector) Recent(window time.Duration) []ErrorMetric {
	cutoff := c.now().Add(-window)
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]ErrorMetric, 0, c.size)
	for _, m := range c.orderedLocked() {
		if !m.Timestamp.Before(cutoff) {
			out = append(out, m)
		}
	}
	return out
}

// CodeCount pairs a code with its occurrence count.
type CodeCount struct {
	Code  string `json:"code"`
	Count int    `json:"count"`
}

// TopErrors returns the most frequent codes, highest first, ties broken by
// code name for determinism.
func (c *Collector) TopErrors(limit int) []CodeCount {
	c.mu.RLock()
	counts := make([]CodeCount, 0, len(c.byCode))
	for code, n := range c.byCode {
		if n > 0 {
			counts = append(counts, CodeCount{Code: code, Count: n})
		}
	}
	c.mu.RUnlock()

	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Code < counts[j].Code
	})
	if limit > 0 && len(counts) > limit {
		counts = counts[:limit]
	}
	return counts
}

// HealthScore summarizes recent error volume and severity into [0,1]. An
// empty history scores exactly 1.0.
func (c *Collector) HealthScore() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.healthLocked()
}

func (c *Collector) healthLocked() float64 {
	score := 1.0
	score -= float64(c.bySeverity[faults.SeverityCritical]) * criticalPenalty
	score -= float64(c.bySeverity[faults.SeverityError]) * errorPenalty
	score -= float64(c.bySeverity[faults.SeverityWarning]) * warningPenalty

	ratePenalty := c.rateLocked() * ratePenaltyStep
	if ratePenalty > maxRatePenalty {
		ratePenalty = maxRatePenalty
	}
	score -= ratePenalty

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func (c *Collector) rateLocked() float64 {
	if c.size == 0 {
		return 0
	}
	elapsed := c.now().Sub(c.since).Minutes()
	if elapsed < 1 {
		elapsed = 1
	}
	return float64(c.size) / elapsed
}

// Reset clears all history and counters and restarts the rate clock.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = make([]ErrorMetric, len(c.history))
	c.head = 0
	c.size = 0
	c.byCode = make(map[string]int)
	c.byCategory = make(map[faults.Category]int)
	c.bySeverity = make(map[faults.Severity]int)
	c.retryAttempts = 0
	c.fallbacksUsed = 0
	c.since = c.now()
}

// Snapshot exports the full ordered history along with the stats summary.
type Snapshot struct {
	Stats   Stats
	History []ErrorMetric
}

// ExportSnapshot copies out the entire collector state.
func (c *Collector) ExportSnapshot() Snapshot {
	stats := c.Stats()
	c.mu.RLock()
	history := c.orderedLocked()
	c.mu.RUnlock()
	return Snapshot{Stats: stats, History: history}
}

// orderedLocked returns history entries oldest-first. Callers hold the lock.
func (c *Collector) orderedLocked() []ErrorMetric {
	out := make([]ErrorMetric, 0, c.size)
	start := c.head - c.size
	if start < 0 {
		start += len(c.history)
	}
	for i := 0; i < c.size; i++ {
		out = append(out, c.history[(start+i)%len(c.history)])
	}
	return out
}
