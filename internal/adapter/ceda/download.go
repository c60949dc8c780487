package ceda

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/ukcp-rainfall-etl/internal/config"
	"github.com/couchcryptid/ukcp-rainfall-etl/internal/observability"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// Downloader fetches NetCDF files from the archive into a local directory.
// It implements pipeline.Fetcher.
type Downloader struct {
	dir        string
	keep       bool
	attempts   int
	backoff    time.Duration
	tokens     TokenSource
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewDownloader creates a downloader. A nil token source sends no
// Authorization header.
func NewDownloader(cfg *config.Config, tokens TokenSource, logger *slog.Logger, metrics *observability.Metrics) *Downloader {
	return &Downloader{
		dir:        cfg.DownloadDir,
		keep:       cfg.KeepDownloads,
		attempts:   cfg.DownloadAttempts,
		backoff:    initialBackoff,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: cfg.DownloadTimeout},
		logger:     logger,
		metrics:    metrics,
	}
}

// retryableError marks failures worth another attempt.
type retryableError struct{ err error }

func (e retryableError) Error() string { return e.err.Error() }
func (e retryableError) Unwrap() error { return e.err }

// Fetch returns a local path holding the file at rawURL. Local paths and
// file:// URLs are returned as they are.
func (d *Downloader) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	switch u.Scheme {
	case "http", "https":
	case "file":
		return u.Path, nil
	case "":
		return rawURL, nil
	default:
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}

	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		return "", fmt.Errorf("url %q has no file name", rawURL)
	}
	dest := filepath.Join(d.dir, name)

	if d.keep {
		if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
			d.logger.Info("reusing downloaded file", "path", dest)
			d.metrics.Downloads.WithLabelValues("reused").Inc()
			return dest, nil
		}
	}

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}

	backoff := d.backoff
	for attempt := 1; ; attempt++ {
		err = d.download(ctx, rawURL, dest)
		if err == nil {
			return dest, nil
		}

		var retry retryableError
		if !errors.As(err, &retry) || attempt >= d.attempts || ctx.Err() != nil {
			d.metrics.Downloads.WithLabelValues("error").Inc()
			return "", fmt.Errorf("download %s: %w", rawURL, err)
		}

		d.logger.Warn("download failed, retrying", "url", rawURL, "attempt", attempt, "backoff", backoff, "error", err)
		d.metrics.Downloads.WithLabelValues("retried").Inc()
		if !sleepWithContext(ctx, backoff) {
			return "", fmt.Errorf("download %s: %w", rawURL, ctx.Err())
		}
		backoff = nextBackoff(backoff, maxBackoff)
	}
}

// Release removes a downloaded file unless downloads are kept. Files outside
// the download directory are never removed.
func (d *Downloader) Release(p string) error {
	if d.keep || filepath.Dir(p) != filepath.Clean(d.dir) {
		return nil
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", p, err)
	}
	return nil
}

func (d *Downloader) download(ctx context.Context, rawURL, dest string) error {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if d.tokens != nil {
		token, err := d.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("download token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return retryableError{err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		statusErr := fmt.Errorf("archive error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if resp.StatusCode == http.StatusUnauthorized {
			if inv, ok := d.tokens.(interface{ Invalidate() }); ok {
				inv.Invalidate()
			}
		}
		if resp.StatusCode >= 500 {
			return retryableError{statusErr}
		}
		return statusErr
	}

	tmp, err := os.CreateTemp(d.dir, filepath.Base(dest)+".*.part")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	n, copyErr := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(tmp.Name()) //nolint:errcheck // best-effort cleanup
		if copyErr != nil {
			return retryableError{fmt.Errorf("write %s: %w", dest, copyErr)}
		}
		return fmt.Errorf("close %s: %w", tmp.Name(), closeErr)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name()) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("move %s into place: %w", dest, err)
	}

	d.metrics.Downloads.WithLabelValues("downloaded").Inc()
	d.metrics.DownloadBytes.Add(float64(n))
	d.metrics.DownloadDuration.Observe(time.Since(start).Seconds())
	d.logger.Info("downloaded file", "url", rawURL, "path", dest, "bytes", n)
	return nil
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
