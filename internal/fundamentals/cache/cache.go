// Package cache is the read-through TTL cache for fundamentals records.
// A cached nil record is a confirmed "provider has no data" and is served
// like any other hit until it expires, so delisted tickers do not burn
// quota on every enrichment pass. Expired entries linger for GetStale until
// the stale horizon and are evicted lazily on the first read past it.
package cache

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"foliodash/internal/fundamentals"
	"foliodash/internal/kvstore"
)

// DefaultTTL is how long an entry stays fresh from write time.
const DefaultTTL = 24 * time.Hour

const keyPrefix = "fundamentals:"

// entry wraps a stored record; a nil Record is a confirmed-null.
type entry struct {
	Record   *fundamentals.Record `json:"record"`
	CachedAt time.Time            `json:"cached_at"`
	ExpireAt time.Time            `json:"expires_at"`
}

type Cache struct {
	store kvstore.Store
	ttl   time.Duration
	log   zerolog.Logger

	statsMu sync.Mutex
	hits    int
	misses  int

	// Now is the clock; overridable in tests.
	Now func() time.Time
}

func New(store kvstore.Store, ttl time.Duration, log zerolog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{store: store, ttl: ttl, log: log, Now: time.Now}
}

// Get returns the cached record for a ticker. ok is false when the ticker
// was never cached or its entry expired; (nil, true) is a confirmed-null hit.
func (c *Cache) Get(ticker string) (*fundamentals.Record, bool) {
	rec, _, ok := c.GetWithAge(ticker)
	return rec, ok
}

// GetWithAge also reports how long ago the entry was written.
func (c *Cache) GetWithAge(ticker string) (*fundamentals.Record, time.Duration, bool) {
	raw, ok := c.store.Get(keyPrefix + ticker)
	if !ok {
		c.miss()
		return nil, 0, false
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		c.log.Warn().Str("ticker", ticker).Err(err).Msg("dropping undecodable cache entry")
		c.store.Delete(keyPrefix + ticker)
		c.miss()
		return nil, 0, false
	}
	now := c.Now()
	if !now.Before(e.ExpireAt) {
		// Expired entries stay around for GetStale until the stale horizon
		// passes; only then are they dropped.
		if now.Sub(e.CachedAt) > 2*c.ttl {
			c.store.Delete(keyPrefix + ticker)
		}
		c.miss()
		return nil, 0, false
	}
	c.hit()
	return e.Record, now.Sub(e.CachedAt), true
}

// GetStale returns an entry even after expiry, for the fallback tier. ok is
// false only when the ticker was never written or the write aged past the
// stale horizon (2x TTL). Stale reads do not count toward hit/miss stats and
// do not evict.
func (c *Cache) GetStale(ticker string) (*fundamentals.Record, time.Duration, bool) {
	raw, ok := c.store.Get(keyPrefix + ticker)
	if !ok {
		return nil, 0, false
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, 0, false
	}
	age := c.Now().Sub(e.CachedAt)
	if age > 2*c.ttl {
		return nil, 0, false
	}
	return e.Record, age, true
}

// Contains reports whether a fresh entry exists for the ticker. Unlike Get
// it never touches the hit/miss stats, so preflight probes do not skew the
// reported hit rate.
func (c *Cache) Contains(ticker string) bool {
	raw, ok := c.store.Get(keyPrefix + ticker)
	if !ok {
		return false
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return false
	}
	return c.Now().Before(e.ExpireAt)
}

// Set writes a record, or a confirmed-null when rec is nil. Expiry is always
// CachedAt + TTL.
func (c *Cache) Set(ticker string, rec *fundamentals.Record) {
	now := c.Now()
	e := entry{
		Record:   rec,
		CachedAt: now,
		ExpireAt: now.Add(c.ttl),
	}
	raw, err := json.Marshal(e)
	if err != nil {
		c.log.Error().Str("ticker", ticker).Err(err).Msg("cache encode failed")
		return
	}
	c.store.Set(keyPrefix+ticker, raw)
}

// Clear drops every fundamentals entry from the backing store.
func (c *Cache) Clear() {
	for _, k := range c.store.Keys() {
		if strings.HasPrefix(k, keyPrefix) {
			c.store.Delete(k)
		}
	}
	c.statsMu.Lock()
	c.hits, c.misses = 0, 0
	c.statsMu.Unlock()
}

// Len counts stored entries, expired included.
func (c *Cache) Len() int {
	n := 0
	for _, k := range c.store.Keys() {
		if strings.HasPrefix(k, keyPrefix) {
			n++
		}
	}
	return n
}

// HitRate returns the fraction of reads served from cache since start or
// the last Clear, in [0,1]. Zero reads reports 0.
func (c *Cache) HitRate() float64 {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}

func (c *Cache) hit() {
	c.statsMu.Lock()
	c.hits++
	c.statsMu.Unlock()
}

func (c *Cache) miss() {
	c.statsMu.Lock()
	c.misses++
	c.statsMu.Unlock()
}
