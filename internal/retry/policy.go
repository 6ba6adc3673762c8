// Package retry implements the exponential backoff policy and the bounded
// retry loop used around pooled downloads.
package retry

import (
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// Policy is a stateless description of the backoff schedule.
type Policy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
	Jitter          bool
}

// DefaultPolicy returns the stock schedule: three attempts, 250ms base,
// capped at 5s, doubling each attempt with jitter on.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		BaseDelay:       250 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		ExponentialBase: 2,
		Jitter:          true,
	}
}

// Delay returns the wait before attempt i. Attempt 0 runs immediately;
// attempt i>0 waits min(base * expBase^(i-1), maxDelay), scaled by a uniform
// factor in [0.5, 1.0] when jitter is enabled so concurrent callers do not
// retry in lockstep.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	base := p.ExponentialBase
	if base <= 0 {
		base = 2
	}
	delay := float64(p.BaseDelay) * math.Pow(base, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	d := time.Duration(delay)
	if p.Jitter {
		d = jitterScale(d)
	}
	return d
}

// jitterScale returns d scaled by a uniform factor in [0.5, 1.0].
func jitterScale(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	half := d / 2
	if half <= 0 {
		return d
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(half)))
	if err != nil {
		return d
	}
	return half + time.Duration(n.Int64())
}
