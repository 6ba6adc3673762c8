package fetch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hewell/mediafetch/internal/archive"
	"github.com/hewell/mediafetch/internal/cache"
	"github.com/hewell/mediafetch/internal/dispatcher"
	"github.com/hewell/mediafetch/internal/fallback"
	"github.com/hewell/mediafetch/internal/faults"
	"github.com/hewell/mediafetch/internal/metrics"
	"github.com/hewell/mediafetch/internal/progress"
	"github.com/hewell/mediafetch/internal/retry"
)

// Step names for tracked fetch operations.
const (
	stepValidatingURL   = "validating_url"
	stepCheckingCache   = "checking_cache"
	stepDownloading     = "downloading"
	stepRunningFallback = "running_fallback"
	stepPersisting      = "persisting"
)

// Options tunes orchestrator behavior.
type Options struct {
	ValidateURLs   bool
	AllowedDomains []string
	MaxGroupSize   int
	RetryPolicy    retry.Policy
}

func (o Options) withDefaults() Options {
	if o.MaxGroupSize <= 0 {
		o.MaxGroupSize = 10
	}
	if o.RetryPolicy.MaxAttempts <= 0 {
		o.RetryPolicy = retry.DefaultPolicy()
	}
	return o
}

// Deps carries the orchestrator's collaborators.
type Deps struct {
	Downloader *Downloader
	Cache      *cache.Cache // nil disables caching
	Dispatcher *dispatcher.Dispatcher
	Tracker    *progress.Tracker
	Collector  *metrics.Collector
	Archiver   archive.Archiver // nil disables archival
	Sink       *FileSystemSink  // nil disables persistence
	Hasher     Hasher
	IDs        IDGenerator
	Clock      Clock
	Logger     *zap.Logger
}

// Orchestrator runs the full fetch pipeline for one URL at a time:
// validate, consult the cache, download with retries, and recover through
// the fallback chain when the download cannot be completed.
type Orchestrator struct {
	opts      Options
	allowlist *domainAllowlist
	deps      Deps
	logger    *zap.Logger
}

// NewOrchestrator wires the pipeline together.
func NewOrchestrator(opts Options, deps Deps) (*Orchestrator, error) {
	if deps.Downloader == nil {
		return nil, fmt.Errorf("downloader is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Tracker == nil {
		return nil, fmt.Errorf("tracker is required")
	}
	if deps.Hasher == nil || deps.IDs == nil || deps.Clock == nil {
		return nil, fmt.Errorf("hasher, id generator, and clock are required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	opts = opts.withDefaults()
	return &Orchestrator{
		opts:      opts,
		allowlist: newDomainAllowlist(opts.AllowedDomains),
		deps:      deps,
		logger:    deps.Logger,
	}, nil
}

// Fetch resolves one request into an artifact. The returned artifact may be
// the real file, a cached copy, or a fallback substitute; a non-nil error
// means even the fallback chain could not produce anything usable.
func (o *Orchestrator) Fetch(ctx context.Context, req Request) (*Artifact, error) {
	start := o.deps.Clock.Now()
	steps := []string{stepValidatingURL, stepCheckingCache, stepDownloading, stepRunningFallback, stepPersisting}
	op, err := o.deps.Tracker.Begin("media_fetch", req.OwnerID, steps)
	if err != nil {
		return nil, fmt.Errorf("begin operation: %w", err)
	}

	// Validation.
	_ = o.deps.Tracker.StartStep(op.ID, stepValidatingURL)
	target, err := o.validate(req.URL)
	_ = o.deps.Tracker.CompleteStep(op.ID, stepValidatingURL, err)
	if err != nil {
		return o.recover(ctx, op.ID, req, req.URL, err, 0, start)
	}

	// Cache.
	_ = o.deps.Tracker.StartStep(op.ID, stepCheckingCache)
	if artifact := o.fromCache(target); artifact != nil {
		_ = o.deps.Tracker.CompleteStep(op.ID, stepCheckingCache, nil)
		_ = o.deps.Tracker.Complete(op.ID)
		metrics.ObserveFetch("cache_hit", o.deps.Clock.Now().Sub(start), artifact.Size)
		return artifact, nil
	}
	_ = o.deps.Tracker.CompleteStep(op.ID, stepCheckingCache, nil)

	// Download with retries.
	_ = o.deps.Tracker.StartStep(op.ID, stepDownloading)
	var payload []byte
	var contentType string
	attempts, err := retry.Do(ctx, o.opts.RetryPolicy, func(ctx context.Context) error {
		data, ct, derr := o.deps.Downloader.Download(ctx, target)
		if derr != nil {
			return derr
		}
		payload, contentType = data, ct
		return nil
	})
	_ = o.deps.Tracker.CompleteStep(op.ID, stepDownloading, err)
	if err != nil {
		return o.recover(ctx, op.ID, req, target, err, attempts-1, start)
	}

	if attempts > 1 {
		o.deps.Collector.AddRetryAttempts(attempts - 1)
		metrics.ObserveRetries(attempts - 1)
	}
	if o.deps.Cache != nil {
		if cerr := o.deps.Cache.Put(target, payload); cerr != nil {
			o.logger.Warn("cache write failed", zap.String("url", target), zap.Error(cerr))
		}
	}

	artifact, err := o.buildArtifact(req, target, payload, contentType, KindFile, fallback.LevelFull, "", attempts-1, false)
	if err != nil {
		_ = o.deps.Tracker.Fail(op.ID, err)
		return nil, err
	}
	o.persist(ctx, op.ID, artifact)
	_ = o.deps.Tracker.Complete(op.ID)
	metrics.ObserveFetch("success", o.deps.Clock.Now().Sub(start), artifact.Size)
	return artifact, nil
}

// FetchGroup fetches up to MaxGroupSize requests concurrently. Each entry in
// the returned slice lines up with its request; entries are nil only when
// that request failed terminally, and the first such failure is returned.
func (o *Orchestrator) FetchGroup(ctx context.Context, reqs []Request) ([]*Artifact, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	if len(reqs) > o.opts.MaxGroupSize {
		return nil, faults.New(faults.CodeValidationOversizePayload,
			fmt.Sprintf("group of %d exceeds limit %d", len(reqs), o.opts.MaxGroupSize), nil)
	}

	artifacts := make([]*Artifact, len(reqs))
	errs := make([]error, len(reqs))
	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req Request) {
			defer wg.Done()
			artifacts[i], errs[i] = o.Fetch(ctx, req)
		}(i, req)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return artifacts, err
		}
	}
	return artifacts, nil
}

func (o *Orchestrator) validate(rawURL string) (string, error) {
	if !o.opts.ValidateURLs {
		if normalized, err := NormalizeURL(rawURL); err == nil {
			return normalized, nil
		}
		return rawURL, nil
	}
	normalized, err := ValidateURL(rawURL)
	if err != nil {
		return "", err
	}
	if err := o.allowlist.CheckURL(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

func (o *Orchestrator) fromCache(target string) *Artifact {
	if o.deps.Cache == nil {
		return nil
	}
	data, ok := o.deps.Cache.Get(target)
	metrics.ObserveCache(ok)
	if !ok {
		return nil
	}
	checksum, err := o.deps.Hasher.Hash(data)
	if err != nil {
		o.logger.Warn("checksum failed for cached payload", zap.Error(err))
	}
	id, err := o.deps.IDs.NewID()
	if err != nil {
		o.logger.Warn("id generation failed", zap.Error(err))
	}
	return &Artifact{
		ID:          id,
		URL:         target,
		Kind:        KindFile,
		ContentType: "application/octet-stream",
		Size:        int64(len(data)),
		Checksum:    checksum,
		Level:       fallback.LevelFull.String(),
		FromCache:   true,
		FetchedAt:   o.deps.Clock.Now(),
		Data:        data,
	}
}

// recover routes a failed fetch through the dispatcher and, when possible,
// the fallback chain. retrySpent is the number of wasted attempts.
func (o *Orchestrator) recover(ctx context.Context, opID uuid.UUID, req Request, target string, cause error, retrySpent int, start time.Time) (*Artifact, error) {
	fe, action := o.deps.Dispatcher.Dispatch(cause, map[string]any{"url": target}, true)
	if action == dispatcher.ActionFail {
		o.deps.Dispatcher.Report(fe, retrySpent, false)
		_ = o.deps.Tracker.Fail(opID, fe)
		metrics.ObserveFetch("failure", o.deps.Clock.Now().Sub(start), 0)
		return nil, fe
	}

	_ = o.deps.Tracker.StartStep(opID, stepRunningFallback)
	result, err := o.deps.Dispatcher.Recover(ctx, fallback.Request{
		URL:     target,
		OwnerID: req.OwnerID,
		Trigger: fe,
		Client:  o.deps.Downloader.Client(),
		Logger:  o.logger,
	})
	_ = o.deps.Tracker.CompleteStep(opID, stepRunningFallback, err)
	if err != nil {
		_ = o.deps.Tracker.Fail(opID, err)
		metrics.ObserveFetch("failure", o.deps.Clock.Now().Sub(start), 0)
		return nil, err
	}

	kind := kindForLevel(result.Level)
	artifact, err := o.buildArtifact(req, target, result.Data, result.ContentType, kind, result.Level, result.Strategy, result.RetryCount, true)
	if err != nil {
		_ = o.deps.Tracker.Fail(opID, err)
		return nil, err
	}
	o.persist(ctx, opID, artifact)
	_ = o.deps.Tracker.Complete(opID)
	metrics.ObserveFetch("fallback", o.deps.Clock.Now().Sub(start), artifact.Size)
	return artifact, nil
}

func (o *Orchestrator) buildArtifact(req Request, target string, data []byte, contentType string, kind ArtifactKind, level fallback.DegradationLevel, strategy string, retryCount int, fromFallback bool) (*Artifact, error) {
	id, err := o.deps.IDs.NewID()
	if err != nil {
		return nil, fmt.Errorf("generate artifact id: %w", err)
	}
	checksum := ""
	if len(data) > 0 {
		if checksum, err = o.deps.Hasher.Hash(data); err != nil {
			return nil, fmt.Errorf("checksum artifact: %w", err)
		}
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	artifact := &Artifact{
		ID:          id,
		URL:         target,
		Kind:        kind,
		ContentType: contentType,
		Size:        int64(len(data)),
		Checksum:    checksum,
		Level:       level.String(),
		Strategy:    strategy,
		RetryCount:  retryCount,
		FetchedAt:   o.deps.Clock.Now(),
		Data:        data,
	}
	if fromFallback && req.URL != target {
		artifact.URL = req.URL
	}
	return artifact, nil
}

func (o *Orchestrator) persist(ctx context.Context, opID uuid.UUID, artifact *Artifact) {
	if o.deps.Sink == nil || len(artifact.Data) == 0 {
		return
	}
	_ = o.deps.Tracker.StartStep(opID, stepPersisting)
	err := o.deps.Sink.Save(ctx, artifact)
	if err != nil {
		o.logger.Warn("artifact persistence failed",
			zap.String("url", artifact.URL),
			zap.Error(err),
		)
	}
	_ = o.deps.Tracker.CompleteStep(opID, stepPersisting, err)
	if err != nil {
		return
	}
	if o.deps.Archiver != nil {
		name := artifact.Checksum
		if name == "" {
			name = artifact.ID
		}
		if uri, aerr := o.deps.Archiver.Archive(ctx, name, artifact.ContentType, artifact.Data); aerr != nil {
			o.logger.Warn("artifact archive failed", zap.String("url", artifact.URL), zap.Error(aerr))
		} else if uri != "" {
			o.logger.Debug("artifact archived", zap.String("uri", uri))
		}
	}
}

func kindForLevel(level fallback.DegradationLevel) ArtifactKind {
	switch {
	case level >= fallback.LevelTextOnly:
		return KindText
	case level >= fallback.LevelMedium:
		return KindPlaceholder
	default:
		return KindFile
	}
}
