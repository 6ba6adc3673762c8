package fetch

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hewell/mediafetch/internal/faults"
	"github.com/hewell/mediafetch/internal/pool"
)

// DownloaderConfig bounds a single download attempt.
type DownloaderConfig struct {
	Timeout             time.Duration
	MaxBytes            int64
	AllowedContentTypes []string
	UserAgent           string
}

func (c DownloaderConfig) withDefaults() DownloaderConfig {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 50 << 20
	}
	if c.UserAgent == "" {
		c.UserAgent = "mediafetch/1.0"
	}
	return c
}

// Downloader performs single GET attempts over the shared connection pool.
// Retry scheduling belongs to the caller.
type Downloader struct {
	cfg     DownloaderConfig
	pool    *pool.Manager
	allowed map[string]struct{}
	logger  *zap.Logger
}

// NewDownloader builds a downloader over the given pool.
func NewDownloader(cfg DownloaderConfig, pm *pool.Manager, logger *zap.Logger) *Downloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	var allowed map[string]struct{}
	if len(cfg.AllowedContentTypes) > 0 {
		allowed = make(map[string]struct{}, len(cfg.AllowedContentTypes))
		for _, ct := range cfg.AllowedContentTypes {
			allowed[strings.ToLower(strings.TrimSpace(ct))] = struct{}{}
		}
	}
	return &Downloader{cfg: cfg, pool: pm, allowed: allowed, logger: logger}
}

// Client exposes the pooled HTTP client, for fallback strategies that need
// to share the same transport.
func (d *Downloader) Client() *http.Client {
	return d.pool.GetOrCreate()
}

// Download fetches the URL once. Failures come back classified.
func (d *Downloader) Download(ctx context.Context, rawURL string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", faults.New(faults.CodeValidationInvalidURL, err.Error(), err).
			WithContext("url", rawURL)
	}
	req.Header.Set("User-Agent", d.cfg.UserAgent)

	start := time.Now()
	resp, err := d.pool.GetOrCreate().Do(req)
	if err != nil {
		return nil, "", faults.Classify(err, map[string]any{"url": rawURL})
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", faults.DefaultHTTPPolicy().FromHTTPStatus(resp.StatusCode, rawURL)
	}

	contentType := resp.Header.Get("Content-Type")
	if err := d.checkContentType(contentType, rawURL); err != nil {
		return nil, "", err
	}
	if resp.ContentLength > d.cfg.MaxBytes {
		return nil, "", faults.New(faults.CodeValidationOversizePayload,
			fmt.Sprintf("declared length %d exceeds %d", resp.ContentLength, d.cfg.MaxBytes), nil).
			WithContext("url", rawURL)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, d.cfg.MaxBytes+1))
	if err != nil {
		return nil, "", faults.Classify(err, map[string]any{"url": rawURL})
	}
	if int64(len(data)) > d.cfg.MaxBytes {
		return nil, "", faults.New(faults.CodeValidationOversizePayload,
			fmt.Sprintf("payload exceeds %d bytes", d.cfg.MaxBytes), nil).
			WithContext("url", rawURL)
	}

	d.logger.Debug("download complete",
		zap.String("url", rawURL),
		zap.Int("bytes", len(data)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return data, contentType, nil
}

func (d *Downloader) checkContentType(contentType, rawURL string) error {
	if d.allowed == nil || contentType == "" {
		return nil
	}
	parsed, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		parsed = strings.ToLower(strings.TrimSpace(contentType))
	}
	if _, ok := d.allowed[parsed]; !ok {
		return faults.New(faults.CodeSessionContentTypeMismatch,
			fmt.Sprintf("content type %q not allowed", parsed), nil).
			WithContext("url", rawURL)
	}
	return nil
}
