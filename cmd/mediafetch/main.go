// Package main wires together the media fetch service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/hewell/mediafetch/internal/api"
	"github.com/hewell/mediafetch/internal/archive"
	"github.com/hewell/mediafetch/internal/cache"
	"github.com/hewell/mediafetch/internal/clock/system"
	"github.com/hewell/mediafetch/internal/config"
	"github.com/hewell/mediafetch/internal/dispatcher"
	"github.com/hewell/mediafetch/internal/fallback"
	"github.com/hewell/mediafetch/internal/fetch"
	"github.com/hewell/mediafetch/internal/hash/sha256"
	"github.com/hewell/mediafetch/internal/id/uuid"
	"github.com/hewell/mediafetch/internal/logging"
	"github.com/hewell/mediafetch/internal/metrics"
	"github.com/hewell/mediafetch/internal/monitor"
	"github.com/hewell/mediafetch/internal/pool"
	"github.com/hewell/mediafetch/internal/progress"
	"github.com/hewell/mediafetch/internal/retry"
)

const shutdownGrace = 15 * time.Second

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("service exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	metrics.InitProm()

	pm := pool.NewManager(pool.Config{
		MaxConnections: cfg.Pool.MaxConnections,
		MaxPerHost:     cfg.Pool.MaxPerHost,
		KeepAlive:      time.Duration(cfg.Pool.KeepAliveSeconds) * time.Second,
		IdleTimeout:    time.Duration(cfg.Pool.IdleTimeoutSeconds) * time.Second,
		DNSCacheTTL:    time.Duration(cfg.Pool.DNSCacheTTLSeconds) * time.Second,
	})
	defer func() {
		if err := pm.Close(); err != nil {
			logger.Warn("pool close failed", zap.Error(err))
		}
	}()

	downloader := fetch.NewDownloader(fetch.DownloaderConfig{
		Timeout:             cfg.DownloadTimeout(),
		MaxBytes:            cfg.Fetch.MaxFileSizeBytes,
		AllowedContentTypes: cfg.Fetch.AllowedContentTypes,
	}, pm, logger)

	collector := metrics.NewCollector(0)
	disp := dispatcher.New(logger, collector, buildChain(cfg, logger))
	tracker := progress.NewTracker(logger, progress.NewLogObserver(logger))

	var contentCache *cache.Cache
	if cfg.Cache.Enabled {
		var err error
		contentCache, err = cache.New(cache.Config{Dir: cfg.Cache.Dir, TTL: cfg.CacheTTL()})
		if err != nil {
			return fmt.Errorf("init cache: %w", err)
		}
	}

	archiver, cleanup, err := buildArchiver(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init archiver: %w", err)
	}
	defer cleanup()

	var sink *fetch.FileSystemSink
	if cfg.Fetch.OutputDir != "" {
		sink, err = fetch.NewFileSystemSink(cfg.Fetch.OutputDir, logger)
		if err != nil {
			return fmt.Errorf("init sink: %w", err)
		}
	}

	orch, err := fetch.NewOrchestrator(fetch.Options{
		ValidateURLs:   cfg.Fetch.ValidateURLs,
		AllowedDomains: cfg.Fetch.AllowedDomains,
		MaxGroupSize:   cfg.Fetch.MaxMediaGroupSize,
		RetryPolicy: retry.Policy{
			MaxAttempts:     cfg.Retry.Attempts,
			BaseDelay:       cfg.RetryBaseDelay(),
			MaxDelay:        cfg.RetryMaxDelay(),
			ExponentialBase: cfg.Retry.ExponentialBase,
			Jitter:          cfg.Retry.Jitter,
		},
	}, fetch.Deps{
		Downloader: downloader,
		Cache:      contentCache,
		Dispatcher: disp,
		Tracker:    tracker,
		Collector:  collector,
		Archiver:   archiver,
		Sink:       sink,
		Hasher:     sha256.New(),
		IDs:        uuid.NewUUIDGenerator(),
		Clock:      system.New(),
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("init orchestrator: %w", err)
	}

	mon, err := buildMonitor(ctx, cfg, collector, logger)
	if err != nil {
		return fmt.Errorf("init monitor: %w", err)
	}
	go mon.Run(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewServer(orch, collector, mon, pm, tracker, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

// buildChain assembles the recovery chain from configuration. Order is fixed
// by strategy priority: alternative URLs, placeholders, the degradation
// ladder, and finally the text strategy that always succeeds.
func buildChain(cfg config.Config, logger *zap.Logger) *fallback.Chain {
	strategies := []fallback.Strategy{
		fallback.NewAlternativeURL(fallback.AlternativeURLConfig{
			Mirrors:  cfg.Fallback.Mirrors,
			MaxBytes: cfg.Fetch.MaxFileSizeBytes,
			Timeout:  cfg.DownloadTimeout(),
		}, logger),
	}
	if cfg.Fallback.ShowErrorPlaceholders {
		placeholder := fallback.NewPlaceholderImage(fallback.PlaceholderConfig{
			Paths: cfg.Fallback.PlaceholderPaths,
		}, logger)
		strategies = append(strategies, placeholder)

		ladder := fallback.NewGracefulDegradation(fallback.LadderConfig{}, logger)
		ladder.Bind(fallback.LevelMedium, placeholder)
		ladder.Bind(fallback.LevelTextOnly, fallback.NewTextFallback(cfg.Fallback.TextTemplate))
		strategies = append(strategies, ladder)
	}
	strategies = append(strategies, fallback.NewTextFallback(cfg.Fallback.TextTemplate))
	return fallback.NewChain(logger, strategies...)
}

func buildArchiver(ctx context.Context, cfg config.Config, logger *zap.Logger) (archive.Archiver, func(), error) {
	if cfg.Archive.GCSBucket == "" {
		return archive.NoOp{}, func() {}, nil
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("create storage client: %w", err)
	}
	gcs, err := archive.NewGCS(client, archive.GCSConfig{
		Bucket: cfg.Archive.GCSBucket,
		Prefix: cfg.Archive.Prefix,
	}, logger)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	cleanup := func() {
		if err := client.Close(); err != nil {
			logger.Warn("storage client close failed", zap.Error(err))
		}
	}
	return gcs, cleanup, nil
}

func buildMonitor(ctx context.Context, cfg config.Config, collector *metrics.Collector, logger *zap.Logger) (*monitor.Monitor, error) {
	backends := []monitor.Backend{
		monitor.NewLogBackend(logger),
		monitor.NewPrometheusBackend(),
	}
	if cfg.PubSub.ProjectID != "" {
		ps, err := monitor.NewPubSubBackend(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName)
		if err != nil {
			return nil, fmt.Errorf("pubsub backend: %w", err)
		}
		backends = append(backends, ps)
	}
	return monitor.New(collector, logger,
		monitor.WithInterval(cfg.MonitorInterval()),
		monitor.WithBackends(backends...),
	), nil
}
