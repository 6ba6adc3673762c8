package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hewell/mediafetch/internal/faults"
)

func TestCollector_EmptyHistoryScoresPerfect(t *testing.T) {
	t.Parallel()
	c := NewCollector(10)
	require.Equal(t, 1.0, c.HealthScore())
	require.Equal(t, 0, c.Stats().TotalErrors)
	require.Equal(t, 0.0, c.Stats().RatePerMinute)
}

func TestCollector_ScoreNonIncreasing(t *testing.T) {
	t.Parallel()
	c := NewCollector(100)
	prev := c.HealthScore()
	for i := 0; i < 20; i++ {
		c.Record(faults.New(faults.CodeNetworkHTTPServerError, "HTTP 502", nil), 1, false)
		score := c.HealthScore()
		require.LessOrEqual(t, score, prev)
		require.GreaterOrEqual(t, score, 0.0)
		prev = score
	}
}

func TestCollector_SeverityPenalties(t *testing.T) {
	t.Parallel()
	c := NewCollector(10)

	c.Record(faults.New(faults.CodeNetworkTimeout, "", nil), 0, false) // warning
	require.InDelta(t, 1.0-0.05-0.1, c.HealthScore(), 1e-9)           // rate: 1/min → 0.1

	c.Record(faults.New(faults.CodeFileDiskFull, "", nil), 0, false) // critical
	require.InDelta(t, 1.0-0.05-0.3-0.2, c.HealthScore(), 1e-9)
}

func TestCollector_RingEviction(t *testing.T) {
	t.Parallel()
	c := NewCollector(3)
	c.Record(faults.New(faults.CodeNetworkTimeout, "t0", nil), 0, false)
	c.Record(faults.New(faults.CodeNetworkTimeout, "t1", nil), 0, false)
	c.Record(faults.New(faults.CodeNetworkDNSFailure, "t2", nil), 0, false)
	c.Record(faults.New(faults.CodeFileDiskFull, "t3", nil), 0, false)
	c.Record(faults.New(faults.CodeFileDiskFull, "t4", nil), 0, false)

	// Capacity 3: the two oldest timeout entries were evicted.
	require.Equal(t, 3, c.Stats().TotalErrors)
	require.Equal(t, 0, c.ByCode(faults.CodeNetworkTimeout))
	require.Equal(t, 1, c.ByCode(faults.CodeNetworkDNSFailure))
	require.Equal(t, 2, c.ByCode(faults.CodeFileDiskFull))

	snap := c.ExportSnapshot()
	require.Len(t, snap.History, 3)
	require.Equal(t, faults.CodeNetworkDNSFailure, snap.History[0].Code)
	require.Equal(t, faults.CodeFileDiskFull, snap.History[2].Code)
}

func TestCollector_CountersByDimension(t *testing.T) {
	t.Parallel()
	c := NewCollector(50)
	c.Record(faults.New(faults.CodeNetworkTimeout, "", nil), 2, false)
	c.Record(faults.New(faults.CodeNetworkTimeout, "", nil), 1, true)
	c.Record(faults.New(faults.CodeFileDiskFull, "", nil), 0, true)

	require.Equal(t, 2, c.ByCode(faults.CodeNetworkTimeout))
	require.Equal(t, 2, c.ByCategory(faults.CategoryNetwork))
	require.Equal(t, 1, c.ByCategory(faults.CategoryFile))
	require.Equal(t, 2, c.BySeverity(faults.SeverityWarning))
	require.Equal(t, 1, c.BySeverity(faults.SeverityCritical))

	stats := c.Stats()
	require.Equal(t, 3, stats.RetryAttempts)
	require.Equal(t, 2, stats.FallbacksUsed)
}

func TestCollector_TopErrors(t *testing.T) {
	t.Parallel()
	c := NewCollector(50)
	for i := 0; i < 3; i++ {
		c.Record(faults.New(faults.CodeNetworkTimeout, "", nil), 0, false)
	}
	c.Record(faults.New(faults.CodeFileDiskFull, "", nil), 0, false)
	c.Record(faults.New(faults.CodeFileDiskFull, "", nil), 0, false)
	c.Record(faults.New(faults.CodeValidationInvalidURL, "", nil), 0, false)

	top := c.TopErrors(2)
	require.Len(t, top, 2)
	require.Equal(t, faults.CodeNetworkTimeout, top[0].Code)
	require.Equal(t, 3, top[0].Count)
	require.Equal(t, faults.CodeFileDiskFull, top[1].Code)
}

func TestCollector_Recent(t *testing.T) {
	t.Parallel()
	c := NewCollector(50)
	base := time.Now().UTC()
	c.now = func() time.Time { return base.Add(-2 * time.Hour) }
	c.Record(faults.New(faults.CodeNetworkTimeout, "old", nil), 0, false)
	c.now = func() time.Time { return base }
	c.Record(faults.New(faults.CodeNetworkTimeout, "new", nil), 0, false)

	recent := c.Recent(time.Hour)
	require.Len(t, recent, 1)
	require.Equal(t, base, recent[0].Timestamp)
}

func TestCollector_Reset(t *testing.T) {
	t.Parallel()
	c := NewCollector(10)
	c.Record(faults.New(faults.CodeFileDiskFull, "", nil), 3, true)
	c.Reset()
	require.Equal(t, 1.0, c.HealthScore())
	require.Equal(t, 0, c.Stats().TotalErrors)
	require.Equal(t, 0, c.Stats().RetryAttempts)
	require.Empty(t, c.ExportSnapshot().History)
}

func TestCollector_ConcurrentRecord(t *testing.T) {
	t.Parallel()
	c := NewCollector(64)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Record(faults.New(faults.CodeNetworkTimeout, "", nil), 1, false)
				_ = c.Stats()
				_ = c.HealthScore()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 64, c.Stats().TotalErrors)
	require.Equal(t, 800, c.Stats().RetryAttempts)
}
