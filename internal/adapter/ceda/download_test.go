package ceda

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/ukcp-rainfall-etl/internal/config"
	"github.com/couchcryptid/ukcp-rainfall-etl/internal/observability"
)

const ncPath = "/badc/ukcp18/pr_rcp85_land-cpm_uk_2.2km_01_1hr_19810701-19810730.nc"

type staticTokens string

func (s staticTokens) Token(_ context.Context) (string, error) { return string(s), nil }

func newTestDownloader(t *testing.T, tokens TokenSource, keep bool) *Downloader {
	t.Helper()
	cfg := &config.Config{
		DownloadDir:      t.TempDir(),
		KeepDownloads:    keep,
		DownloadTimeout:  5 * time.Second,
		DownloadAttempts: 3,
	}
	d := NewDownloader(cfg, tokens, discardLogger(), observability.NewMetricsForTesting())
	d.backoff = time.Millisecond
	return d
}

func TestDownloader_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, ncPath, r.URL.Path)
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, "CDF-bytes")
	}))
	defer srv.Close()

	d := newTestDownloader(t, staticTokens("tok-123"), false)
	path, err := d.Fetch(context.Background(), srv.URL+ncPath)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(d.dir, "pr_rcp85_land-cpm_uk_2.2km_01_1hr_19810701-19810730.nc"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "CDF-bytes", string(data))

	leftovers, _ := filepath.Glob(filepath.Join(d.dir, "*.part"))
	assert.Empty(t, leftovers)

	require.NoError(t, d.Release(path))
	assert.NoFileExists(t, path)
}

func TestDownloader_NoTokenSendsNoAuthorization(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, "x")
	}))
	defer srv.Close()

	d := newTestDownloader(t, nil, false)
	_, err := d.Fetch(context.Background(), srv.URL+ncPath)
	require.NoError(t, err)
}

func TestDownloader_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	d := newTestDownloader(t, nil, false)
	_, err := d.Fetch(context.Background(), srv.URL+ncPath)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDownloader_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := newTestDownloader(t, nil, false)
	_, err := d.Fetch(context.Background(), srv.URL+ncPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	assert.Equal(t, int32(3), calls.Load())
}

func TestDownloader_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.NotFound(w, nil)
	}))
	defer srv.Close()

	d := newTestDownloader(t, nil, false)
	_, err := d.Fetch(context.Background(), srv.URL+ncPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
	assert.Equal(t, int32(1), calls.Load())
}

func TestDownloader_UnauthorizedInvalidatesToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	inner := &sequenceTokens{tokens: []string{"stale", "fresh"}}
	tokens := NewCachedTokenSource(inner, time.Hour, clockwork.NewRealClock())
	d := newTestDownloader(t, tokens, false)

	_, err := d.Fetch(context.Background(), srv.URL+ncPath)
	require.Error(t, err)

	tok, err := tokens.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok)
}

func TestDownloader_KeepReusesExistingFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Error("server should not be called")
	}))
	defer srv.Close()

	d := newTestDownloader(t, nil, true)
	existing := filepath.Join(d.dir, filepath.Base(ncPath))
	require.NoError(t, os.WriteFile(existing, []byte("cached"), 0o600))

	path, err := d.Fetch(context.Background(), srv.URL+ncPath)
	require.NoError(t, err)
	assert.Equal(t, existing, path)

	require.NoError(t, d.Release(path))
	assert.FileExists(t, path, "kept downloads are not released")
}

func TestDownloader_LocalPaths(t *testing.T) {
	d := newTestDownloader(t, nil, false)

	path, err := d.Fetch(context.Background(), "/data/pr_19810701-19810730.nc")
	require.NoError(t, err)
	assert.Equal(t, "/data/pr_19810701-19810730.nc", path)

	path, err = d.Fetch(context.Background(), "file:///data/pr.nc")
	require.NoError(t, err)
	assert.Equal(t, "/data/pr.nc", path)

	_, err = d.Fetch(context.Background(), "ftp://host/pr.nc")
	require.Error(t, err)

	assert.NoError(t, d.Release("/data/pr.nc"), "files outside the download dir are left alone")
}

func TestDownloader_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d := newTestDownloader(t, nil, false)
	d.backoff = time.Hour
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := d.Fetch(ctx, srv.URL+ncPath)
	require.Error(t, err)
}

func TestNextBackoff(t *testing.T) {
	assert.Equal(t, 400*time.Millisecond, nextBackoff(200*time.Millisecond, maxBackoff))
	assert.Equal(t, maxBackoff, nextBackoff(4*time.Second, maxBackoff))
}
