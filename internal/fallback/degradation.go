package fallback

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/hewell/mediafetch/internal/faults"
)

// LadderConfig maps failure severities to the degradation level the ladder
// enters at, and binds strategies to the levels they serve.
type LadderConfig struct {
	// EntryLevels picks the starting rung per severity. Missing severities
	// enter at LevelFull.
	EntryLevels map[faults.Severity]DegradationLevel
}

func (c LadderConfig) withDefaults() LadderConfig {
	if c.EntryLevels == nil {
		c.EntryLevels = map[faults.Severity]DegradationLevel{
			faults.SeverityCritical: LevelTextOnly,
			faults.SeverityError:    LevelBasic,
			faults.SeverityWarning:  LevelMedium,
		}
	}
	return c
}

// GracefulDegradation walks the quality ladder downward from a
// severity-selected entry rung, running the strategies bound to each level
// until one produces a result.
type GracefulDegradation struct {
	cfg    LadderConfig
	levels map[DegradationLevel][]Strategy
	logger *zap.Logger
}

// NewGracefulDegradation builds the ladder.
func NewGracefulDegradation(cfg LadderConfig, logger *zap.Logger) *GracefulDegradation {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GracefulDegradation{
		cfg:    cfg.withDefaults(),
		levels: make(map[DegradationLevel][]Strategy),
		logger: logger,
	}
}

// Bind attaches a strategy to one rung of the ladder.
func (g *GracefulDegradation) Bind(level DegradationLevel, s Strategy) {
	if s == nil {
		return
	}
	g.levels[level] = append(g.levels[level], s)
}

// Name implements Strategy.
func (g *GracefulDegradation) Name() string { return "graceful_degradation" }

// Priority implements Strategy.
func (g *GracefulDegradation) Priority() int { return PriorityDegradation }

// CanHandle accepts any failure that permits fallback and has at least one
// bound rung at or below its entry level.
func (g *GracefulDegradation) CanHandle(trigger *faults.FetchError) bool {
	if trigger == nil || !trigger.FallbackAvailable {
		return false
	}
	entry := g.entryLevel(trigger)
	for level := range g.levels {
		if level >= entry {
			return true
		}
	}
	return false
}

// EntryLevel reports which rung a failure of the given severity enters at.
func (g *GracefulDegradation) EntryLevel(sev faults.Severity) DegradationLevel {
	if level, ok := g.cfg.EntryLevels[sev]; ok {
		return level
	}
	return LevelFull
}

func (g *GracefulDegradation) entryLevel(trigger *faults.FetchError) DegradationLevel {
	return g.EntryLevel(trigger.Severity)
}

// Execute walks downward from the entry rung. Rungs above the entry level
// are skipped: a critical failure never gets a high-quality substitute.
func (g *GracefulDegradation) Execute(ctx context.Context, req Request) (*Result, error) {
	entry := g.entryLevel(req.Trigger)

	levels := make([]DegradationLevel, 0, len(g.levels))
	for level := range g.levels {
		if level >= entry {
			levels = append(levels, level)
		}
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i] < levels[j] })

	var lastErr error
	for _, level := range levels {
		for _, s := range g.levels[level] {
			if err := ctx.Err(); err != nil {
				return nil, faults.Classify(err, map[string]any{"url": req.URL})
			}
			if !s.CanHandle(req.Trigger) {
				continue
			}
			result, err := s.Execute(ctx, req)
			if err != nil || result == nil || !result.Success {
				lastErr = err
				g.logger.Debug("degradation rung failed",
					zap.String("level", level.String()),
					zap.String("strategy", s.Name()),
					zap.Error(err),
				)
				continue
			}
			if result.Level < level {
				result.Level = level
			}
			return result, nil
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, faults.New(faults.CodeFallbackExhausted, "no degradation rung produced a result", req.Trigger)
}
