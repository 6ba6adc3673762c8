package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hewell/mediafetch/internal/cache"
	"github.com/hewell/mediafetch/internal/clock/system"
	"github.com/hewell/mediafetch/internal/dispatcher"
	"github.com/hewell/mediafetch/internal/fallback"
	"github.com/hewell/mediafetch/internal/faults"
	"github.com/hewell/mediafetch/internal/hash/sha256"
	"github.com/hewell/mediafetch/internal/id/uuid"
	"github.com/hewell/mediafetch/internal/metrics"
	"github.com/hewell/mediafetch/internal/pool"
	"github.com/hewell/mediafetch/internal/progress"
	"github.com/hewell/mediafetch/internal/retry"
)

type fixture struct {
	orch      *Orchestrator
	collector *metrics.Collector
}

type fixtureConfig struct {
	opts     Options
	mirrors  map[string]string
	cacheDir string
	maxBytes int64
}

func newFixture(t *testing.T, fc fixtureConfig) *fixture {
	t.Helper()

	pm := pool.NewManager(pool.DefaultConfig())
	t.Cleanup(func() { _ = pm.Close() })

	downloader := NewDownloader(DownloaderConfig{
		Timeout:  5 * time.Second,
		MaxBytes: fc.maxBytes,
	}, pm, nil)

	collector := metrics.NewCollector(0)
	chain := fallback.NewChain(nil,
		fallback.NewAlternativeURL(fallback.AlternativeURLConfig{
			Mirrors:              fc.mirrors,
			AttemptsPerCandidate: 1,
			Timeout:              5 * time.Second,
		}, nil),
		fallback.NewPlaceholderImage(fallback.PlaceholderConfig{}, nil),
		fallback.NewTextFallback(""),
	)
	disp := dispatcher.New(nil, collector, chain)

	var c *cache.Cache
	if fc.cacheDir != "" {
		var err error
		c, err = cache.New(cache.Config{Dir: fc.cacheDir, TTL: time.Hour})
		require.NoError(t, err)
	}

	sink, err := NewFileSystemSink(t.TempDir(), nil)
	require.NoError(t, err)

	if fc.opts.RetryPolicy.MaxAttempts == 0 {
		fc.opts.RetryPolicy = retry.Policy{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, ExponentialBase: 2}
	}

	orch, err := NewOrchestrator(fc.opts, Deps{
		Downloader: downloader,
		Cache:      c,
		Dispatcher: disp,
		Tracker:    progress.NewTracker(nil),
		Collector:  collector,
		Sink:       sink,
		Hasher:     sha256.New(),
		IDs:        uuid.NewUUIDGenerator(),
		Clock:      system.New(),
	})
	require.NoError(t, err)
	return &fixture{orch: orch, collector: collector}
}

func TestFetch_Success(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	f := newFixture(t, fixtureConfig{})
	artifact, err := f.orch.Fetch(context.Background(), Request{URL: srv.URL + "/a.png", OwnerID: "chat-1"})
	require.NoError(t, err)

	require.Equal(t, KindFile, artifact.Kind)
	require.Equal(t, "full", artifact.Level)
	require.False(t, artifact.FromCache)
	require.Equal(t, int64(9), artifact.Size)
	require.Len(t, artifact.Checksum, 64)
	require.Equal(t, int64(1), hits.Load())

	// Persisted payload and metadata land next to each other.
	require.FileExists(t, artifact.Path)
	require.FileExists(t, artifact.Path+".json")
	data, err := os.ReadFile(artifact.Path)
	require.NoError(t, err)
	require.Equal(t, []byte("png-bytes"), data)
}

func TestFetch_SecondCallServedFromCache(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	f := newFixture(t, fixtureConfig{cacheDir: t.TempDir()})
	reqURL := srv.URL + "/a.png"

	first, err := f.orch.Fetch(context.Background(), Request{URL: reqURL})
	require.NoError(t, err)
	require.False(t, first.FromCache)

	second, err := f.orch.Fetch(context.Background(), Request{URL: reqURL})
	require.NoError(t, err)
	require.True(t, second.FromCache)
	require.Equal(t, first.Checksum, second.Checksum)
	require.Equal(t, int64(1), hits.Load())
}

func TestFetch_NotFoundFallsBackToPlaceholder(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := newFixture(t, fixtureConfig{
		opts: Options{RetryPolicy: retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, ExponentialBase: 2}},
	})
	artifact, err := f.orch.Fetch(context.Background(), Request{URL: srv.URL + "/gone.png"})
	require.NoError(t, err)

	require.Equal(t, KindPlaceholder, artifact.Kind)
	require.Equal(t, "medium", artifact.Level)
	require.Equal(t, "placeholder_image", artifact.Strategy)
	require.Equal(t, "image/png", artifact.ContentType)
	// 404 is not retryable: one request only.
	require.Equal(t, int64(1), hits.Load())

	require.Equal(t, 1, f.collector.ByCode(faults.CodeNetworkHTTPClientError))
	require.Equal(t, 1, f.collector.Stats().FallbacksUsed)
}

func TestFetch_ServerErrorRetriesThenFallsBack(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := newFixture(t, fixtureConfig{
		opts: Options{RetryPolicy: retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, ExponentialBase: 2}},
	})
	artifact, err := f.orch.Fetch(context.Background(), Request{URL: srv.URL + "/flaky.png"})
	require.NoError(t, err)

	require.Equal(t, KindPlaceholder, artifact.Kind)
	require.Equal(t, int64(2), hits.Load())
	require.Equal(t, 1, f.collector.ByCode(faults.CodeNetworkHTTPServerError))
}

func TestFetch_MirrorRecoversRealFile(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpeg-from-mirror"))
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	f := newFixture(t, fixtureConfig{
		mirrors: map[string]string{"origin.invalid": u.Host},
	})
	artifact, err := f.orch.Fetch(context.Background(), Request{URL: "http://origin.invalid/a.jpg"})
	require.NoError(t, err)

	require.Equal(t, KindFile, artifact.Kind)
	require.Equal(t, "high", artifact.Level)
	require.Equal(t, "alternative_url_retry", artifact.Strategy)
	require.Equal(t, []byte("jpeg-from-mirror"), artifact.Data)
	// The winning candidate was the second one derived.
	require.Equal(t, 2, artifact.RetryCount)
}

func TestFetch_DisallowedDomainFallsBack(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureConfig{
		opts: Options{ValidateURLs: true, AllowedDomains: []string{"img.example.com"}},
	})
	artifact, err := f.orch.Fetch(context.Background(), Request{URL: "https://evil.example.com/a.png"})
	require.NoError(t, err)

	require.Equal(t, KindPlaceholder, artifact.Kind)
	require.Equal(t, 1, f.collector.ByCode(faults.CodeValidationDomainNotAllowed))
}

func TestFetch_InvalidURLFallsBack(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureConfig{opts: Options{ValidateURLs: true}})
	artifact, err := f.orch.Fetch(context.Background(), Request{URL: "ftp://img.example.com/a.png"})
	require.NoError(t, err)
	require.Equal(t, KindPlaceholder, artifact.Kind)
	require.Equal(t, 1, f.collector.ByCode(faults.CodeValidationInvalidURL))
}

func TestFetch_CancelledContextFailsTerminally(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	f := newFixture(t, fixtureConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.orch.Fetch(ctx, Request{URL: srv.URL + "/a.png"})
	require.Error(t, err)

	var fe *faults.FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, faults.CodeSessionCancelled, fe.Code)
}

func TestFetchGroup(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("payload-" + r.URL.Path))
	}))
	defer srv.Close()

	f := newFixture(t, fixtureConfig{opts: Options{MaxGroupSize: 3}})

	t.Run("fetches all members", func(t *testing.T) {
		reqs := []Request{
			{URL: srv.URL + "/1.png"},
			{URL: srv.URL + "/2.png"},
			{URL: srv.URL + "/3.png"},
		}
		artifacts, err := f.orch.FetchGroup(context.Background(), reqs)
		require.NoError(t, err)
		require.Len(t, artifacts, 3)
		for i, a := range artifacts {
			require.NotNil(t, a, "artifact %d", i)
			require.Equal(t, KindFile, a.Kind)
		}
	})

	t.Run("rejects oversized groups", func(t *testing.T) {
		reqs := make([]Request, 4)
		for i := range reqs {
			reqs[i] = Request{URL: srv.URL + "/x.png"}
		}
		_, err := f.orch.FetchGroup(context.Background(), reqs)
		require.Error(t, err)

		var fe *faults.FetchError
		require.ErrorAs(t, err, &fe)
		require.Equal(t, faults.CodeValidationOversizePayload, fe.Code)
	})

	t.Run("empty group is a no-op", func(t *testing.T) {
		artifacts, err := f.orch.FetchGroup(context.Background(), nil)
		require.NoError(t, err)
		require.Nil(t, artifacts)
	})
}
