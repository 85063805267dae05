package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// CachingVerifier remembers successful verifications for a short TTL so a
// remote verifier is not asked once per request. Failures are not cached.
type CachingVerifier struct {
	next TokenVerifier
	ttl  time.Duration
	now  func() time.Time

	mu    sync.RWMutex
	items map[string]cacheItem
}

type cacheItem struct {
	user      *UserContext
	expiresAt time.Time
}

// NewCachingVerifier wraps next with a TTL cache keyed by token hash
func NewCachingVerifier(next TokenVerifier, ttl time.Duration) *CachingVerifier {
	return &CachingVerifier{
		next:  next,
		ttl:   ttl,
		now:   time.Now,
		items: make(map[string]cacheItem),
	}
}

// Verify implements TokenVerifier
func (c *CachingVerifier) Verify(ctx context.Context, token string) (*UserContext, error) {
	key := tokenKey(token)

	c.mu.RLock()
	item, ok := c.items[key]
	c.mu.RUnlock()
	if ok && c.now().Before(item.expiresAt) {
		return item.user, nil
	}

	user, err := c.next.Verify(ctx, token)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.items[key] = cacheItem{user: user, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return user, nil
}

// Sweep drops expired entries and returns how many were removed
func (c *CachingVerifier) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, item := range c.items {
		if now.After(item.expiresAt) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// Run sweeps once a minute until ctx is done
func (c *CachingVerifier) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
