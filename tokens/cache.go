// Package tokens acquires and caches the bearer tokens used against the
// enterprise REST endpoints. Tokens are reused across calls while they retain
// a safety margin of lifetime; refreshes for the same endpoint are serialized
// so at most one login exchange is in flight per key.
package tokens

import (
	"sync"
	"time"

	"github.com/goliatone/go-arcgis/core"
)

// Key identifies one cache entry: the derived endpoint base URL plus the
// authenticated username.
type Key struct {
	BaseURL  string
	Username string
}

// Entry is a cached token with its absolute expiry instant. Expiry is never
// tracked as seconds remaining; comparing absolute instants avoids staleness
// across repeated calls.
type Entry struct {
	Token       string
	ExpiresAt   time.Time
	SSLRequired bool
}

func (e Entry) toToken() core.Token {
	return core.Token{Value: e.Token, ExpiresAt: e.ExpiresAt, SSLRequired: e.SSLRequired}
}

type CacheConfig struct {
	// Margin is the minimum remaining lifetime an entry must retain at the
	// moment it is returned. Entries below the margin are treated as absent.
	Margin time.Duration
	Now    func() time.Time
}

// Cache is the injectable keyed token store. Entries are evicted only by
// being overwritten on refresh, or by explicit invalidation on credential
// change. Safe for concurrent use.
type Cache struct {
	margin time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[Key]Entry
	locks   map[Key]*sync.Mutex
}

func NewCache(cfg CacheConfig) *Cache {
	margin := cfg.Margin
	if margin <= 0 {
		margin = core.DefaultTokenMargin
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Cache{
		margin:  margin,
		now:     now,
		entries: map[Key]Entry{},
		locks:   map[Key]*sync.Mutex{},
	}
}

// Lookup returns the cached entry for a key when it retains at least the
// configured margin of lifetime.
func (c *Cache) Lookup(key Key) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return Entry{}, false
	}
	if !entry.ExpiresAt.After(c.now().Add(c.margin)) {
		return Entry{}, false
	}
	return entry, true
}

// Store records or overwrites the entry for a key.
func (c *Cache) Store(key Key, entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry
}

// Invalidate drops the entry for a key, returning it to the no-token state.
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Fill returns the cached entry for a key, or runs the fill function to
// produce and store one. Fills for the same key are serialized: a caller
// arriving while another fill is in flight waits for that result instead of
// performing a redundant login exchange.
func (c *Cache) Fill(key Key, fill func() (Entry, error)) (Entry, error) {
	lock := c.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	if entry, ok := c.Lookup(key); ok {
		return entry, nil
	}
	entry, err := fill()
	if err != nil {
		return Entry{}, err
	}
	c.Store(key, entry)
	return entry, nil
}

func (c *Cache) keyLock(key Key) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[key] = lock
	}
	return lock
}
