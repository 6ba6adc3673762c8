// Package archive uploads fetched artifacts to durable blob storage so a
// cache sweep or disk loss never costs the original bytes.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
)

// Archiver stores an artifact payload and returns its durable URI.
type Archiver interface {
	Archive(ctx context.Context, name, contentType string, data []byte) (string, error)
}

// NoOp discards archives. Used when no bucket is configured.
type NoOp struct{}

// Archive implements Archiver.
func (NoOp) Archive(_ context.Context, _, _ string, _ []byte) (string, error) {
	return "", nil
}

// GCSConfig captures the parameters required to archive into GCS.
type GCSConfig struct {
	Bucket string
	Prefix string
}

// GCS writes artifacts to a configured GCS bucket.
type GCS struct {
	client *storage.Client
	cfg    GCSConfig
	logger *zap.Logger
}

// NewGCS creates a GCS-backed archiver.
func NewGCS(client *storage.Client, cfg GCSConfig, logger *zap.Logger) (*GCS, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GCS{client: client, cfg: cfg, logger: logger}, nil
}

// Archive uploads the payload and returns a gs:// URI.
func (g *GCS) Archive(ctx context.Context, name, contentType string, data []byte) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("object name is required")
	}
	object := path.Join(g.cfg.Prefix, name)
	writer := g.client.Bucket(g.cfg.Bucket).Object(object).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	uri := fmt.Sprintf("gs://%s/%s", g.cfg.Bucket, object)
	g.logger.Debug("artifact archived", zap.String("uri", uri))
	return uri, nil
}
