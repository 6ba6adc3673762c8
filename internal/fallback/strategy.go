// Package fallback implements the priority-ordered recovery chain that runs
// once a download's retries are exhausted: alternative URLs, placeholder
// images, and a graded degradation ladder down to plain text.
package fallback

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hewell/mediafetch/internal/faults"
)

// DegradationLevel is a discrete point on the quality ladder describing how
// much user-facing richness a fallback response preserves.
type DegradationLevel int

// Degradation levels, richest first.
const (
	LevelFull DegradationLevel = iota
	LevelHigh
	LevelMedium
	LevelBasic
	LevelTextOnly
	LevelErrorMessage
)

// String returns the lowercase label used in logs and results.
func (l DegradationLevel) String() string {
	switch l {
	case LevelFull:
		return "full"
	case LevelHigh:
		return "high"
	case LevelMedium:
		return "medium"
	case LevelBasic:
		return "basic"
	case LevelTextOnly:
		return "text_only"
	case LevelErrorMessage:
		return "error_message"
	default:
		return "unknown"
	}
}

// Request carries everything a strategy may need about the failed fetch.
type Request struct {
	URL     string
	OwnerID string
	Trigger *faults.FetchError
	Client  *http.Client
	Logger  *zap.Logger
}

// Result is the outcome of one strategy execution.
type Result struct {
	Success     bool
	Data        []byte
	ContentType string
	Level       DegradationLevel
	Message     string
	Strategy    string
	Elapsed     time.Duration
	RetryCount  int
}

// Strategy is one recovery handler. Lower priorities are tried first.
type Strategy interface {
	Name() string
	Priority() int
	CanHandle(trigger *faults.FetchError) bool
	Execute(ctx context.Context, req Request) (*Result, error)
}

// Default priorities for the sealed strategy set.
const (
	PriorityAlternativeURL = 10
	PriorityPlaceholder    = 20
	PriorityDegradation    = 30
	PriorityText           = 40
)
