package modelserver

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"math"
	"sync"

	"github.com/couchcryptid/outbreak-forecast/internal/domain"
	"github.com/couchcryptid/outbreak-forecast/internal/observability"
)

// CachedClassifier wraps a Classifier with an in-memory LRU of predictions
// keyed by the exact feature values. Only successful predictions are cached.
type CachedClassifier struct {
	inner   domain.Classifier
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedClassifier creates a cache decorator around a classifier.
func NewCachedClassifier(inner domain.Classifier, maxEntries int, metrics *observability.Metrics) *CachedClassifier {
	return &CachedClassifier{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

func (c *CachedClassifier) Info() domain.ModelInfo { return c.inner.Info() }

func (c *CachedClassifier) PredictProbability(ctx context.Context, v domain.FeatureVector) (float64, error) {
	key := vectorKey(v)
	if p, ok := c.cache.get(key); ok {
		c.metrics.PredictionCache.WithLabelValues("hit").Inc()
		return p, nil
	}
	c.metrics.PredictionCache.WithLabelValues("miss").Inc()

	p, err := c.inner.PredictProbability(ctx, v)
	if err != nil {
		return p, err
	}
	c.cache.put(key, p)
	return p, nil
}

// Ping forwards to the wrapped classifier when it supports it.
func (c *CachedClassifier) Ping(ctx context.Context) error {
	if p, ok := c.inner.(domain.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

type cacheKey struct {
	schema string
	n      int
	sum    uint64
}

// vectorKey hashes the bit patterns of the values. The schema version and
// length are kept outside the hash.
func vectorKey(v domain.FeatureVector) cacheKey {
	h := fnv.New64a()
	var buf [8]byte
	for _, x := range v.Values {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(x))
		_, _ = h.Write(buf[:])
	}
	return cacheKey{schema: v.SchemaVersion, n: len(v.Values), sum: h.Sum64()}
}

// lruCache is a simple thread-safe LRU cache for predictions.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[cacheKey]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   cacheKey
	value float64
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[cacheKey]*entry),
	}
}

func (c *lruCache) get(key cacheKey) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return 0, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key cacheKey, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
