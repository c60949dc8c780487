package ceda

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// TokenSource supplies bearer tokens for archive downloads.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// CachedTokenSource wraps a TokenSource with an in-memory copy of the last
// token so a batch does not reread the token cache file for every download.
type CachedTokenSource struct {
	inner TokenSource
	ttl   time.Duration
	clock clockwork.Clock

	mu      sync.Mutex
	token   string
	fetched time.Time
}

// NewCachedTokenSource creates a cache decorator that keeps a token for ttl.
func NewCachedTokenSource(inner TokenSource, ttl time.Duration, clock clockwork.Clock) *CachedTokenSource {
	return &CachedTokenSource{inner: inner, ttl: ttl, clock: clock}
}

func (c *CachedTokenSource) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.clock.Since(c.fetched) < c.ttl {
		return c.token, nil
	}
	token, err := c.inner.Token(ctx)
	if err != nil {
		return "", err
	}
	c.token, c.fetched = token, c.clock.Now()
	return token, nil
}

// Invalidate drops the held token, e.g. after the archive rejected it.
func (c *CachedTokenSource) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
}
