package forecast

import (
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/outbreak-forecast/internal/domain"
)

// RequestKey identifies the inputs a cached batch was computed from.
type RequestKey struct {
	Reading      domain.ClimateReading
	Date         string
	Horizon      int
	ModelVersion string
}

// CacheEntry is one complete batch result. It is never modified after being
// stored; a refresh replaces it.
type CacheEntry struct {
	Key       RequestKey
	Payload   map[domain.LocationCode]domain.WeeklyForecast
	CreatedAt time.Time
}

// LookupResult classifies a cache lookup for metrics.
type LookupResult string

const (
	LookupHit     LookupResult = "hit"
	LookupMiss    LookupResult = "miss"
	LookupExpired LookupResult = "expired"
)

// Cache holds the last known-good batch result for TTL. Readers and the
// writer never lock: Store swaps in a new entry.
type Cache struct {
	ttl   time.Duration
	clock clockwork.Clock
	entry atomic.Pointer[CacheEntry]
}

// NewCache creates a Cache. A nil clock uses real time.
func NewCache(ttl time.Duration, clock clockwork.Clock) *Cache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Cache{ttl: ttl, clock: clock}
}

// Lookup returns copies of the cached forecasts for codes if the live entry
// was computed for key, is younger than the TTL, and covers every code.
func (c *Cache) Lookup(key RequestKey, codes []domain.LocationCode) (map[domain.LocationCode]domain.WeeklyForecast, LookupResult) {
	e := c.entry.Load()
	if e == nil || e.Key != key {
		return nil, LookupMiss
	}
	if c.clock.Since(e.CreatedAt) >= c.ttl {
		return nil, LookupExpired
	}
	out := make(map[domain.LocationCode]domain.WeeklyForecast, len(codes))
	for _, code := range codes {
		wf, ok := e.Payload[code]
		if !ok {
			return nil, LookupMiss
		}
		out[code] = wf.Clone()
	}
	return out, LookupHit
}

// LastKnown returns the forecast for code from the entry computed for key,
// ignoring the TTL.
func (c *Cache) LastKnown(key RequestKey, code domain.LocationCode) (domain.WeeklyForecast, bool) {
	e := c.entry.Load()
	if e == nil || e.Key != key {
		return nil, false
	}
	wf, ok := e.Payload[code]
	if !ok {
		return nil, false
	}
	return wf.Clone(), true
}

// Store replaces the cached entry with a copy of payload.
func (c *Cache) Store(key RequestKey, payload map[domain.LocationCode]domain.WeeklyForecast) {
	cp := make(map[domain.LocationCode]domain.WeeklyForecast, len(payload))
	for code, wf := range payload {
		cp[code] = wf.Clone()
	}
	c.entry.Store(&CacheEntry{Key: key, Payload: cp, CreatedAt: c.clock.Now()})
}

// Invalidate drops the cached entry.
func (c *Cache) Invalidate() {
	c.entry.Store(nil)
}

// Entry returns the live entry, or nil.
func (c *Cache) Entry() *CacheEntry {
	return c.entry.Load()
}
