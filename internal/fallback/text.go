package fallback

import (
	"context"
	"fmt"

	"github.com/hewell/mediafetch/internal/faults"
)

// TextFallback is the last resort: a plain-text description of the content
// that could not be delivered. It always succeeds.
type TextFallback struct {
	// Template receives the source URL; empty means the default wording.
	Template string
}

// NewTextFallback builds the strategy.
func NewTextFallback(template string) *TextFallback {
	return &TextFallback{Template: template}
}

// Name implements Strategy.
func (s *TextFallback) Name() string { return "text_fallback" }

// Priority implements Strategy.
func (s *TextFallback) Priority() int { return PriorityText }

// CanHandle accepts everything. The terminal strategy has no preconditions.
func (s *TextFallback) CanHandle(_ *faults.FetchError) bool { return true }

// Execute renders the text substitute. Failures that still allow fallback
// get the neutral "unavailable" wording; dead ends get the error message.
func (s *TextFallback) Execute(_ context.Context, req Request) (*Result, error) {
	level := LevelTextOnly
	text := s.Template
	if text == "" {
		text = "media unavailable: %s"
	}
	body := fmt.Sprintf(text, req.URL)

	if req.Trigger != nil && !req.Trigger.FallbackAvailable {
		level = LevelErrorMessage
		body = fmt.Sprintf("media could not be delivered (%s): %s", req.Trigger.Code, req.URL)
	}

	return &Result{
		Success:     true,
		Data:        []byte(body),
		ContentType: "text/plain; charset=utf-8",
		Level:       level,
		Message:     "text substitute for unavailable media",
	}, nil
}
