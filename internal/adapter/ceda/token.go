package ceda

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/term"

	"github.com/couchcryptid/ukcp-rainfall-etl/internal/config"
	"github.com/couchcryptid/ukcp-rainfall-etl/internal/observability"
)

// ErrUnauthorized is returned when the token service rejects the credentials.
var ErrUnauthorized = errors.New("ceda: credentials rejected")

// expiresLayouts covers the offsets the token service has been seen to emit.
var expiresLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05Z0700",
}

// Token is a CEDA download token and its expiry time.
type Token struct {
	AccessToken string
	Expires     time.Time
}

// Redacted returns the token with its middle elided, safe for logs.
func (t Token) Redacted() string {
	if len(t.AccessToken) <= 10 {
		return "..."
	}
	return t.AccessToken[:5] + "..." + t.AccessToken[len(t.AccessToken)-5:]
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	Expires     string `json:"expires"`
}

func (r tokenResponse) token() (Token, error) {
	if r.AccessToken == "" {
		return Token{}, errors.New("token response has no access_token")
	}
	var lastErr error
	for _, layout := range expiresLayouts {
		exp, err := time.Parse(layout, r.Expires)
		if err == nil {
			return Token{AccessToken: r.AccessToken, Expires: exp}, nil
		}
		lastErr = err
	}
	return Token{}, fmt.Errorf("parse token expiry %q: %w", r.Expires, lastErr)
}

// Credentials are a CEDA account username and password.
type Credentials struct {
	Username string
	Password string
}

// CredentialsProvider supplies account credentials when a new token is needed.
type CredentialsProvider interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// StaticCredentials returns fixed credentials, typically from the environment.
type StaticCredentials Credentials

func (s StaticCredentials) Credentials(_ context.Context) (Credentials, error) {
	if s.Username == "" || s.Password == "" {
		return Credentials{}, errors.New("ceda username and password are required")
	}
	return Credentials(s), nil
}

// PromptCredentials asks for credentials on the terminal. The password is read
// without echo when the input is a terminal.
type PromptCredentials struct {
	In  *os.File
	Out io.Writer
}

func (p PromptCredentials) Credentials(_ context.Context) (Credentials, error) {
	r := bufio.NewReader(p.In)

	fmt.Fprint(p.Out, "CEDA username: ")
	username, err := r.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return Credentials{}, fmt.Errorf("read username: %w", err)
	}

	fmt.Fprint(p.Out, "CEDA password: ")
	var password []byte
	if fd := int(p.In.Fd()); term.IsTerminal(fd) {
		password, err = term.ReadPassword(fd)
		fmt.Fprintln(p.Out)
	} else {
		var line string
		line, err = r.ReadString('\n')
		password = []byte(line)
		if errors.Is(err, io.EOF) {
			err = nil
		}
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("read password: %w", err)
	}

	return Credentials{
		Username: strings.TrimSpace(username),
		Password: strings.TrimRight(string(password), "\r\n"),
	}, nil
}

// NewCredentialsProvider uses the configured username and password when both
// are set and falls back to prompting on stdin.
func NewCredentialsProvider(cfg *config.Config) CredentialsProvider {
	if cfg.CEDAUsername != "" && cfg.CEDAPassword != "" {
		return StaticCredentials{Username: cfg.CEDAUsername, Password: cfg.CEDAPassword}
	}
	return PromptCredentials{In: os.Stdin, Out: os.Stderr}
}

// TokenClient issues CEDA download tokens, reusing the token cached on disk
// until it expires.
type TokenClient struct {
	url        string
	cachePath  string
	creds      CredentialsProvider
	httpClient *http.Client
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewTokenClient creates a token client for the configured token service and cache file.
func NewTokenClient(cfg *config.Config, creds CredentialsProvider, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *TokenClient {
	return &TokenClient{
		url:        cfg.TokenURL,
		cachePath:  cfg.TokenCache,
		creds:      creds,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
	}
}

// Token returns an access token suitable for a Bearer header.
func (c *TokenClient) Token(ctx context.Context) (string, error) {
	t, err := c.Current(ctx)
	if err != nil {
		return "", err
	}
	return t.AccessToken, nil
}

// Current returns the cached token when it is still valid and otherwise
// requests a new one.
func (c *TokenClient) Current(ctx context.Context) (Token, error) {
	cached, err := c.loadCached()
	switch {
	case err == nil && c.clock.Now().Before(cached.Expires):
		c.logger.Debug("using cached ceda token", "path", c.cachePath, "token", cached.Redacted(), "expires", cached.Expires)
		c.metrics.TokenRefreshes.WithLabelValues("cached").Inc()
		return cached, nil
	case err == nil:
		c.logger.Info("cached ceda token expired, requesting a new one", "path", c.cachePath, "expired", cached.Expires)
	case errors.Is(err, os.ErrNotExist):
		c.logger.Info("no cached ceda token, requesting a new one", "path", c.cachePath)
	default:
		c.logger.Warn("unreadable ceda token cache, requesting a new one", "path", c.cachePath, "error", err)
	}
	return c.Refresh(ctx)
}

// Refresh requests a new token with the provider's credentials and caches it.
func (c *TokenClient) Refresh(ctx context.Context) (Token, error) {
	t, err := c.refresh(ctx)
	if err != nil {
		c.metrics.TokenRefreshes.WithLabelValues("error").Inc()
		return Token{}, err
	}
	c.metrics.TokenRefreshes.WithLabelValues("refreshed").Inc()
	c.logger.Info("ceda token issued", "token", t.Redacted(), "expires", t.Expires)
	return t, nil
}

func (c *TokenClient) refresh(ctx context.Context) (Token, error) {
	creds, err := c.creds.Credentials(ctx)
	if err != nil {
		return Token{}, fmt.Errorf("ceda credentials: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, nil)
	if err != nil {
		return Token{}, fmt.Errorf("create token request: %w", err)
	}
	req.SetBasicAuth(creds.Username, creds.Password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Token{}, fmt.Errorf("read token response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Token{}, fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return Token{}, fmt.Errorf("ceda token API error: status %d: %s", resp.StatusCode, body)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return Token{}, fmt.Errorf("decode token response: %w", err)
	}
	t, err := tr.token()
	if err != nil {
		return Token{}, err
	}

	if err := c.storeCached(body); err != nil {
		// A token that cannot be cached is still usable for this run.
		c.logger.Warn("failed to cache ceda token", "path", c.cachePath, "error", err)
	}
	return t, nil
}

func (c *TokenClient) loadCached() (Token, error) {
	data, err := os.ReadFile(c.cachePath)
	if err != nil {
		return Token{}, err
	}
	var tr tokenResponse
	if err := json.Unmarshal(data, &tr); err != nil {
		return Token{}, fmt.Errorf("decode token cache: %w", err)
	}
	return tr.token()
}

// storeCached writes the raw token response next to the cache file and renames
// it into place.
func (c *TokenClient) storeCached(body []byte) error {
	if err := os.MkdirAll(filepath.Dir(c.cachePath), 0o700); err != nil {
		return err
	}
	tmp := c.cachePath + ".tmp"
	if err := os.WriteFile(tmp, body, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, c.cachePath)
}
