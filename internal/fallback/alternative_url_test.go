package fallback

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hewell/mediafetch/internal/faults"
)

func TestAlternativeURL_Candidates(t *testing.T) {
	t.Parallel()
	s := NewAlternativeURL(AlternativeURLConfig{
		Mirrors: map[string]string{"cdn.example.com": "cdn-backup.example.com"},
	}, nil)

	t.Run("http gets https upgrade and mirror", func(t *testing.T) {
		t.Parallel()
		got := s.Candidates("http://cdn.example.com/a.png")
		require.Equal(t, []string{
			"https://cdn.example.com/a.png",
			"http://cdn-backup.example.com/a.png",
			"https://cdn-backup.example.com/a.png",
		}, got)
	})

	t.Run("https gets mirror only", func(t *testing.T) {
		t.Parallel()
		got := s.Candidates("https://cdn.example.com/a.png")
		require.Equal(t, []string{"https://cdn-backup.example.com/a.png"}, got)
	})

	t.Run("mirror keeps the port", func(t *testing.T) {
		t.Parallel()
		got := s.Candidates("https://cdn.example.com:8443/a.png")
		require.Equal(t, []string{"https://cdn-backup.example.com:8443/a.png"}, got)
	})

	t.Run("unknown https host has no candidates", func(t *testing.T) {
		t.Parallel()
		require.Empty(t, s.Candidates("https://other.example.com/a.png"))
	})

	t.Run("garbage url has no candidates", func(t *testing.T) {
		t.Parallel()
		require.Empty(t, s.Candidates("::not a url::"))
	})
}

func TestAlternativeURL_MirrorSucceeds(t *testing.T) {
	t.Parallel()

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("mirror-payload"))
	}))
	defer srv.Close()

	s := NewAlternativeURL(AlternativeURLConfig{
		Mirrors:              map[string]string{"origin.invalid": mustHost(t, srv.URL)},
		AttemptsPerCandidate: 1,
		Timeout:              5 * time.Second,
	}, nil)

	result, err := s.Execute(context.Background(), Request{
		URL:     "https://origin.invalid/a.png",
		Trigger: faults.New(faults.CodeNetworkConnectionRefused, "", nil),
		Client:  srv.Client(), // trusts the test certificate
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, []byte("mirror-payload"), result.Data)
	require.Equal(t, "image/png", result.ContentType)
	require.Equal(t, LevelHigh, result.Level)
	require.Equal(t, 1, result.RetryCount)
}

func TestAlternativeURL_ReportsWinningCandidateIndex(t *testing.T) {
	t.Parallel()

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("secure-payload"))
	}))
	defer srv.Close()

	s := NewAlternativeURL(AlternativeURLConfig{
		Mirrors:              map[string]string{"origin.invalid": mustHost(t, srv.URL)},
		AttemptsPerCandidate: 1,
		Timeout:              5 * time.Second,
	}, nil)

	// Candidates for the http origin, in order: the https upgrade of the
	// unresolvable origin, the plain-http mirror (a TLS listener rejects
	// it), then the https mirror.
	require.Len(t, s.Candidates("http://origin.invalid/a.png"), 3)

	result, err := s.Execute(context.Background(), Request{
		URL:     "http://origin.invalid/a.png",
		Trigger: faults.New(faults.CodeNetworkTimeout, "", nil),
		Client:  srv.Client(),
	})
	require.NoError(t, err)
	require.Equal(t, []byte("secure-payload"), result.Data)
	require.Equal(t, 3, result.RetryCount)
}

func TestAlternativeURL_AllCandidatesFail(t *testing.T) {
	t.Parallel()

	s := NewAlternativeURL(AlternativeURLConfig{
		AttemptsPerCandidate: 1,
		Timeout:              2 * time.Second,
	}, nil)

	_, err := s.Execute(context.Background(), Request{
		URL:     "http://origin.invalid/a.png",
		Trigger: faults.New(faults.CodeNetworkTimeout, "", nil),
		Client:  &http.Client{},
	})
	require.Error(t, err)

	var fe *faults.FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, faults.CategoryNetwork, fe.Category)
}

func TestAlternativeURL_NoCandidates(t *testing.T) {
	t.Parallel()

	s := NewAlternativeURL(AlternativeURLConfig{}, nil)
	_, err := s.Execute(context.Background(), Request{
		URL:     "https://plain.example.com/a.png",
		Trigger: faults.New(faults.CodeNetworkTimeout, "", nil),
	})
	require.Error(t, err)

	var fe *faults.FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, faults.CodeValidationInvalidURL, fe.Code)
}

func TestAlternativeURL_OversizePayloadRejected(t *testing.T) {
	t.Parallel()

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 2048))
	}))
	defer srv.Close()

	s := NewAlternativeURL(AlternativeURLConfig{
		Mirrors:              map[string]string{"origin.invalid": mustHost(t, srv.URL)},
		AttemptsPerCandidate: 1,
		MaxBytes:             1024,
	}, nil)

	_, err := s.Execute(context.Background(), Request{
		URL:     "https://origin.invalid/big.bin",
		Trigger: faults.New(faults.CodeNetworkTimeout, "", nil),
		Client:  srv.Client(),
	})
	require.Error(t, err)

	var fe *faults.FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, faults.CodeValidationOversizePayload, fe.Code)
}

func TestAlternativeURL_CanHandle(t *testing.T) {
	t.Parallel()
	s := NewAlternativeURL(AlternativeURLConfig{}, nil)

	require.True(t, s.CanHandle(faults.New(faults.CodeNetworkTimeout, "", nil)))
	require.True(t, s.CanHandle(faults.New(faults.CodeSessionTimeout, "", nil)))
	require.False(t, s.CanHandle(faults.New(faults.CodeValidationInvalidURL, "", nil)))
	require.False(t, s.CanHandle(faults.New(faults.CodeSessionCancelled, "", nil)))
	require.False(t, s.CanHandle(nil))
}

func mustHost(t *testing.T, rawURL string) string {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return u.Host
}
