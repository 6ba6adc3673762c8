package fallback

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hewell/mediafetch/internal/faults"
	"github.com/hewell/mediafetch/internal/metrics"
)

// ExhaustedError re-raises the original failure once every strategy has
// been tried, in a shape alerting can tell apart from a plain download
// failure.
type ExhaustedError struct {
	Original  *faults.FetchError
	Attempted []string
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all fallback strategies exhausted (%s): %v",
		strings.Join(e.Attempted, ", "), e.Original)
}

// Unwrap exposes the original classified failure.
func (e *ExhaustedError) Unwrap() error {
	return e.Original
}

// Chain holds the registered strategies in priority order.
type Chain struct {
	logger *zap.Logger

	mu         sync.RWMutex
	strategies []Strategy
}

// NewChain builds a chain over the given strategies.
func NewChain(logger *zap.Logger, strategies ...Strategy) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Chain{logger: logger}
	for _, s := range strategies {
		c.Register(s)
	}
	return c
}

// Register adds a strategy, keeping the chain sorted by ascending priority.
// Registration order breaks priority ties.
func (c *Chain) Register(s Strategy) {
	if s == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.strategies = append(c.strategies, s)
	sort.SliceStable(c.strategies, func(i, j int) bool {
		return c.strategies[i].Priority() < c.strategies[j].Priority()
	})
}

// Strategies returns the current ordering by name, for introspection.
func (c *Chain) Strategies() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}
	return names
}

// Execute runs eligible strategies in priority order and returns the first
// success. If every strategy fails, or none applies, the original error is
// re-raised wrapped in ExhaustedError.
func (c *Chain) Execute(ctx context.Context, req Request) (*Result, error) {
	c.mu.RLock()
	strategies := append([]Strategy(nil), c.strategies...)
	c.mu.RUnlock()

	var attempted []string
	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return nil, faults.Classify(err, map[string]any{"url": req.URL})
		}
		if !s.CanHandle(req.Trigger) {
			continue
		}
		attempted = append(attempted, s.Name())

		start := time.Now()
		result, err := s.Execute(ctx, req)
		elapsed := time.Since(start)

		success := err == nil && result != nil && result.Success
		metrics.ObserveFallback(s.Name(), success)
		if !success {
			c.logger.Debug("fallback strategy failed",
				zap.String("strategy", s.Name()),
				zap.String("url", req.URL),
				zap.Error(err),
			)
			continue
		}

		result.Strategy = s.Name()
		result.Elapsed = elapsed
		c.logger.Info("fallback strategy succeeded",
			zap.String("strategy", s.Name()),
			zap.String("url", req.URL),
			zap.String("level", result.Level.String()),
			zap.Duration("elapsed", elapsed),
		)
		return result, nil
	}

	return nil, &ExhaustedError{Original: req.Trigger, Attempted: attempted}
}
