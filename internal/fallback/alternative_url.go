package fallback

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hewell/mediafetch/internal/faults"
	"github.com/hewell/mediafetch/internal/retry"
)

// AlternativeURLConfig controls candidate derivation and per-candidate
// retry bounds.
type AlternativeURLConfig struct {
	// Mirrors maps a host to a substitute host, e.g.
	// "cdn.example.com" -> "cdn-backup.example.com".
	Mirrors map[string]string
	// AttemptsPerCandidate bounds retries against each derived URL.
	AttemptsPerCandidate int
	// MaxBytes caps the downloaded payload.
	MaxBytes int64
	// Timeout bounds each candidate download.
	Timeout time.Duration
}

func (c AlternativeURLConfig) withDefaults() AlternativeURLConfig {
	if c.AttemptsPerCandidate <= 0 {
		c.AttemptsPerCandidate = 2
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 << 20
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	return c
}

// AlternativeURL retries the download against derived candidate URLs:
// protocol upgrades and mirror-domain substitutions.
type AlternativeURL struct {
	cfg    AlternativeURLConfig
	policy retry.Policy
	logger *zap.Logger
}

// NewAlternativeURL builds the strategy.
func NewAlternativeURL(cfg AlternativeURLConfig, logger *zap.Logger) *AlternativeURL {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	return &AlternativeURL{
		cfg: cfg,
		policy: retry.Policy{
			MaxAttempts:     cfg.AttemptsPerCandidate,
			BaseDelay:       200 * time.Millisecond,
			MaxDelay:        2 * time.Second,
			ExponentialBase: 2,
			Jitter:          true,
		},
		logger: logger,
	}
}

// Name implements Strategy.
func (s *AlternativeURL) Name() string { return "alternative_url_retry" }

// Priority implements Strategy.
func (s *AlternativeURL) Priority() int { return PriorityAlternativeURL }

// CanHandle accepts network-category failures that permit fallback; a URL
// that never parsed has no useful candidates.
func (s *AlternativeURL) CanHandle(trigger *faults.FetchError) bool {
	if trigger == nil || !trigger.FallbackAvailable {
		return false
	}
	return trigger.Category == faults.CategoryNetwork || trigger.Category == faults.CategorySession
}

// Candidates derives alternative URLs for the failed source, in order.
func (s *AlternativeURL) Candidates(rawURL string) []string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil
	}

	var out []string
	seen := map[string]struct{}{rawURL: {}}
	add := func(candidate string) {
		if _, dup := seen[candidate]; !dup {
			seen[candidate] = struct{}{}
			out = append(out, candidate)
		}
	}

	if strings.EqualFold(u.Scheme, "http") {
		upgraded := *u
		upgraded.Scheme = "https"
		add(upgraded.String())
	}

	host := strings.ToLower(u.Hostname())
	if mirror, ok := s.cfg.Mirrors[host]; ok && mirror != "" {
		mirrored := *u
		if port := u.Port(); port != "" {
			mirrored.Host = mirror + ":" + port
		} else {
			mirrored.Host = mirror
		}
		add(mirrored.String())
		if strings.EqualFold(u.Scheme, "http") {
			upgraded := mirrored
			upgraded.Scheme = "https"
			add(upgraded.String())
		}
	}
	return out
}

// Execute tries each candidate with bounded retries. RetryCount on the
// result is the 1-based index of the candidate that succeeded.
func (s *AlternativeURL) Execute(ctx context.Context, req Request) (*Result, error) {
	candidates := s.Candidates(req.URL)
	if len(candidates) == 0 {
		return nil, faults.New(faults.CodeValidationInvalidURL, "no alternative candidates", nil)
	}
	client := req.Client
	if client == nil {
		client = http.DefaultClient
	}

	var lastErr error
	for i, candidate := range candidates {
		var payload []byte
		var contentType string
		_, err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
			data, ct, err := s.download(ctx, client, candidate)
			if err != nil {
				return err
			}
			payload, contentType = data, ct
			return nil
		})
		if err != nil {
			lastErr = err
			s.logger.Debug("alternative candidate failed",
				zap.String("candidate", candidate),
				zap.Error(err),
			)
			continue
		}
		return &Result{
			Success:     true,
			Data:        payload,
			ContentType: contentType,
			Level:       LevelHigh,
			Message:     fmt.Sprintf("downloaded from alternative URL %s", candidate),
			RetryCount:  i + 1,
		}, nil
	}
	return nil, lastErr
}

func (s *AlternativeURL) download(ctx context.Context, client *http.Client, rawURL string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", faults.New(faults.CodeValidationInvalidURL, err.Error(), err)
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", faults.DefaultHTTPPolicy().FromHTTPStatus(resp.StatusCode, rawURL)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.cfg.MaxBytes+1))
	if err != nil {
		return nil, "", err
	}
	if int64(len(data)) > s.cfg.MaxBytes {
		return nil, "", faults.New(faults.CodeValidationOversizePayload,
			fmt.Sprintf("payload exceeds %d bytes", s.cfg.MaxBytes), nil)
	}
	return data, resp.Header.Get("Content-Type"), nil
}
