package cache

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foliodash/internal/fundamentals"
	"foliodash/internal/kvstore"
)

func newTestCache(ttl time.Duration) (*Cache, *kvstore.Memory, *time.Time) {
	store := kvstore.NewMemory()
	c := New(store, ttl, zerolog.Nop())
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c.Now = func() time.Time { return now }
	return c, store, &now
}

func record(ticker string) *fundamentals.Record {
	return &fundamentals.Record{
		Ticker:          ticker,
		CompanyName:     ticker + " Inc",
		Sector:          "Technology",
		SourceProvider:  "test",
		ConfidenceScore: 90,
	}
}

func TestGet_NotCached(t *testing.T) {
	c, _, _ := newTestCache(time.Hour)
	rec, ok := c.Get("AAPL")
	assert.False(t, ok)
	assert.Nil(t, rec)
}

func TestSetGet_WithinTTL(t *testing.T) {
	c, _, now := newTestCache(24 * time.Hour)
	c.Set("AAPL", record("AAPL"))

	*now = now.Add(23 * time.Hour)
	rec, ok := c.Get("AAPL")
	require.True(t, ok)
	require.NotNil(t, rec)
	assert.Equal(t, "AAPL", rec.Ticker)
}

func TestGet_ExpiredBehavesAsNotCached(t *testing.T) {
	c, store, now := newTestCache(24 * time.Hour)
	c.Set("AAPL", record("AAPL"))

	*now = now.Add(24*time.Hour + time.Second)
	_, ok := c.Get("AAPL")
	assert.False(t, ok)
	// The expired entry lingers for stale reads until the horizon passes.
	assert.Len(t, store.Keys(), 1)

	*now = now.Add(25 * time.Hour)
	_, ok = c.Get("AAPL")
	assert.False(t, ok)
	assert.Empty(t, store.Keys(), "reads past the stale horizon evict")
}

func TestConfirmedNull_DistinctFromNotCached(t *testing.T) {
	c, _, _ := newTestCache(time.Hour)
	c.Set("DELISTED", nil)

	rec, ok := c.Get("DELISTED")
	assert.True(t, ok, "confirmed-null must be a cache hit")
	assert.Nil(t, rec)

	_, ok = c.Get("NEVER")
	assert.False(t, ok)
}

func TestConfirmedNull_Expires(t *testing.T) {
	c, _, now := newTestCache(time.Hour)
	c.Set("DELISTED", nil)

	*now = now.Add(2 * time.Hour)
	_, ok := c.Get("DELISTED")
	assert.False(t, ok)
}

func TestGetWithAge(t *testing.T) {
	c, _, now := newTestCache(24 * time.Hour)
	c.Set("AAPL", record("AAPL"))

	*now = now.Add(3 * time.Hour)
	_, age, ok := c.GetWithAge("AAPL")
	require.True(t, ok)
	assert.Equal(t, 3*time.Hour, age)
}

func TestGetStale_ServesExpiredUpToHorizon(t *testing.T) {
	c, _, now := newTestCache(24 * time.Hour)
	c.Set("AAPL", record("AAPL"))

	*now = now.Add(30 * time.Hour)
	_, ok := c.Get("AAPL")
	require.False(t, ok, "fresh read must refuse expired entry")

	// Expired but inside the 2x TTL stale horizon.
	rec, age, ok := c.GetStale("AAPL")
	require.True(t, ok)
	require.NotNil(t, rec)
	assert.Equal(t, 30*time.Hour, age)

	*now = now.Add(20 * time.Hour) // past 48h horizon
	_, _, ok = c.GetStale("AAPL")
	assert.False(t, ok)
}

func TestSupersede_LaterFetchReplaces(t *testing.T) {
	c, _, _ := newTestCache(time.Hour)
	c.Set("AAPL", record("AAPL"))

	updated := record("AAPL")
	updated.SourceProvider = "other"
	c.Set("AAPL", updated)

	rec, ok := c.Get("AAPL")
	require.True(t, ok)
	assert.Equal(t, "other", rec.SourceProvider)
}

func TestClearAndLen(t *testing.T) {
	c, store, _ := newTestCache(time.Hour)
	c.Set("AAPL", record("AAPL"))
	c.Set("MSFT", record("MSFT"))
	// A foreign key in the shared store must survive a cache clear.
	store.Set("session:abc", []byte("keep"))

	assert.Equal(t, 2, c.Len())
	c.Clear()
	assert.Equal(t, 0, c.Len())
	_, ok := store.Get("session:abc")
	assert.True(t, ok)
}

func TestContains_FreshOnlyAndStatFree(t *testing.T) {
	c, _, now := newTestCache(24 * time.Hour)
	c.Set("AAPL", record("AAPL"))
	c.Set("DELISTED", nil)

	assert.True(t, c.Contains("AAPL"))
	assert.True(t, c.Contains("DELISTED"), "confirmed-null is a fresh entry")
	assert.False(t, c.Contains("NEVER"))

	*now = now.Add(25 * time.Hour)
	assert.False(t, c.Contains("AAPL"), "expired entries do not count")

	// Contains is a peek: no read above may move the hit rate.
	assert.Zero(t, c.HitRate())
}

func TestHitRate(t *testing.T) {
	c, _, _ := newTestCache(time.Hour)
	c.Set("AAPL", record("AAPL"))

	c.Get("AAPL")
	c.Get("AAPL")
	c.Get("MISS")
	assert.InDelta(t, 2.0/3.0, c.HitRate(), 1e-9)
}

func TestUndecodableEntryDropped(t *testing.T) {
	c, store, _ := newTestCache(time.Hour)
	store.Set("fundamentals:BAD", []byte("{not json"))

	_, ok := c.Get("BAD")
	assert.False(t, ok)
	_, present := store.Get("fundamentals:BAD")
	assert.False(t, present)
}
