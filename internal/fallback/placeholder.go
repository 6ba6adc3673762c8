package fallback

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/hewell/mediafetch/internal/faults"
)

// builtinPlaceholder is a 1x1 transparent PNG used when no placeholder
// files are configured or none validate.
var builtinPlaceholder, _ = base64.StdEncoding.DecodeString(
	"iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg==")

// Image magic numbers accepted as valid placeholders.
var (
	pngMagic  = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	jpegMagic = []byte{0xff, 0xd8, 0xff}
	gifMagic  = []byte("GIF8")
)

// PlaceholderConfig lists candidate placeholder image files.
type PlaceholderConfig struct {
	Paths []string
}

// PlaceholderImage serves a validated placeholder image instead of the
// unreachable original.
type PlaceholderImage struct {
	cfg    PlaceholderConfig
	logger *zap.Logger
}

// NewPlaceholderImage builds the strategy.
func NewPlaceholderImage(cfg PlaceholderConfig, logger *zap.Logger) *PlaceholderImage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlaceholderImage{cfg: cfg, logger: logger}
}

// Name implements Strategy.
func (s *PlaceholderImage) Name() string { return "placeholder_image" }

// Priority implements Strategy.
func (s *PlaceholderImage) Priority() int { return PriorityPlaceholder }

// CanHandle accepts any failure that permits fallback.
func (s *PlaceholderImage) CanHandle(trigger *faults.FetchError) bool {
	return trigger != nil && trigger.FallbackAvailable
}

// Execute selects the first placeholder from the pool that validates as an
// image, falling back to the built-in 1x1 PNG.
func (s *PlaceholderImage) Execute(_ context.Context, req Request) (*Result, error) {
	for _, path := range s.cfg.Paths {
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Debug("placeholder unreadable", zap.String("path", path), zap.Error(err))
			continue
		}
		if !validImage(data) {
			s.logger.Warn("placeholder failed validation", zap.String("path", path))
			continue
		}
		return s.result(data, fmt.Sprintf("placeholder image %s", path)), nil
	}
	if len(builtinPlaceholder) == 0 {
		return nil, faults.New(faults.CodeValidationCorruptedImage, "no valid placeholder available", nil)
	}
	return s.result(builtinPlaceholder, "built-in placeholder image"), nil
}

func (s *PlaceholderImage) result(data []byte, message string) *Result {
	return &Result{
		Success:     true,
		Data:        data,
		ContentType: sniffImageType(data),
		Level:       LevelMedium,
		Message:     message,
	}
}

func validImage(data []byte) bool {
	return sniffImageType(data) != ""
}

func sniffImageType(data []byte) string {
	switch {
	case bytes.HasPrefix(data, pngMagic):
		return "image/png"
	case bytes.HasPrefix(data, jpegMagic):
		return "image/jpeg"
	case bytes.HasPrefix(data, gifMagic):
		return "image/gif"
	default:
		return ""
	}
}
