package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// FileSystemSink persists fetched artifacts and their metadata to disk.
// Payloads are content-addressed by checksum so repeated fetches of the same
// bytes land on the same file.
type FileSystemSink struct {
	root   string
	logger *zap.Logger
}

// NewFileSystemSink returns a sink rooted at dir.
func NewFileSystemSink(root string, logger *zap.Logger) (*FileSystemSink, error) {
	if root == "" {
		return nil, fmt.Errorf("sink root must be set")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create sink dir %s: %w", root, err)
	}
	return &FileSystemSink{root: root, logger: logger}, nil
}

// Save writes the artifact payload and a metadata json next to it, filling
// in the artifact's Path. Empty payloads are rejected.
func (s *FileSystemSink) Save(ctx context.Context, artifact *Artifact) error {
	if len(artifact.Data) == 0 {
		return fmt.Errorf("empty artifact payload")
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}

	name := artifact.Checksum
	if name == "" {
		name = artifact.ID
	}
	target := filepath.Join(s.root, name+extensionFor(artifact.ContentType))
	if err := os.WriteFile(target, artifact.Data, 0o600); err != nil {
		return fmt.Errorf("writing artifact to %s: %w", target, err)
	}
	artifact.Path = target

	meta, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal artifact meta: %w", err)
	}
	metaPath := target + ".json"
	if err := os.WriteFile(metaPath, meta, 0o600); err != nil {
		return fmt.Errorf("write metadata %s: %w", metaPath, err)
	}

	s.logger.Debug("artifact persisted",
		zap.String("path", target),
		zap.String("kind", string(artifact.Kind)),
		zap.Int64("bytes", artifact.Size),
	)
	return nil
}

// extensionFor picks a file extension from the content type, defaulting to
// .bin for anything unrecognized.
func extensionFor(contentType string) string {
	parsed, _, err := mime.ParseMediaType(contentType)
	if err != nil || parsed == "" {
		return ".bin"
	}
	switch parsed {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	case "application/pdf":
		return ".pdf"
	case "text/plain":
		return ".txt"
	default:
		if exts, err := mime.ExtensionsByType(parsed); err == nil && len(exts) > 0 {
			return exts[0]
		}
		return ".bin"
	}
}
