package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hewell/mediafetch/internal/faults"
	"github.com/hewell/mediafetch/internal/pool"
)

func newTestDownloader(t *testing.T, cfg DownloaderConfig) *Downloader {
	t.Helper()
	pm := pool.NewManager(pool.DefaultConfig())
	t.Cleanup(func() { _ = pm.Close() })
	return NewDownloader(cfg, pm, nil)
}

func TestDownloader_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "mediafetch/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	d := newTestDownloader(t, DownloaderConfig{Timeout: 5 * time.Second})
	data, contentType, err := d.Download(context.Background(), srv.URL+"/a.png")
	require.NoError(t, err)
	require.Equal(t, []byte("png-bytes"), data)
	require.Equal(t, "image/png", contentType)
}

func TestDownloader_HTTPStatusClassified(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		case "/limited":
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	d := newTestDownloader(t, DownloaderConfig{Timeout: 5 * time.Second})

	tests := []struct {
		path      string
		code      string
		retryable bool
	}{
		{"/missing", faults.CodeNetworkHTTPClientError, false},
		{"/limited", faults.CodeNetworkRateLimited, true},
		{"/flaky", faults.CodeNetworkHTTPServerError, true},
	}
	for _, tt := range tests {
		_, _, err := d.Download(context.Background(), srv.URL+tt.path)
		require.Error(t, err)

		var fe *faults.FetchError
		require.ErrorAs(t, err, &fe)
		require.Equal(t, tt.code, fe.Code, tt.path)
		require.Equal(t, tt.retryable, fe.Retryable, tt.path)
	}
}

func TestDownloader_ContentTypeNotAllowed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	d := newTestDownloader(t, DownloaderConfig{
		Timeout:             5 * time.Second,
		AllowedContentTypes: []string{"image/png", "image/jpeg"},
	})
	_, _, err := d.Download(context.Background(), srv.URL+"/page")
	require.Error(t, err)

	var fe *faults.FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, faults.CodeSessionContentTypeMismatch, fe.Code)
}

func TestDownloader_OversizeRejected(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 4096))
	}))
	defer srv.Close()

	d := newTestDownloader(t, DownloaderConfig{Timeout: 5 * time.Second, MaxBytes: 1024})
	_, _, err := d.Download(context.Background(), srv.URL+"/big.bin")
	require.Error(t, err)

	var fe *faults.FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, faults.CodeValidationOversizePayload, fe.Code)
}

func TestDownloader_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	d := newTestDownloader(t, DownloaderConfig{Timeout: 100 * time.Millisecond})
	_, _, err := d.Download(context.Background(), srv.URL+"/slow")
	require.Error(t, err)

	var fe *faults.FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, faults.CodeNetworkTimeout, fe.Code)
	require.True(t, fe.Retryable)
}
