// Package cache memoizes per-field attribute data for a session.
package cache

import (
	"context"
	"sync"

	"github.com/MetropolisTHEMA/metroviz/ingestor"
	"github.com/MetropolisTHEMA/metroviz/metrics"
	"github.com/alphadose/haxmap"
)

// Fetcher resolves one field on a miss
type Fetcher func(ctx context.Context, field string) (ingestor.FieldData, error)

type call struct {
	done chan struct{}
	data ingestor.FieldData
	err  error
}

// Cache maps field names to fetched data. Entries are never evicted.
// Concurrent loads of the same field share one fetch; failures are not stored.
type Cache struct {
	entries *haxmap.Map[string, ingestor.FieldData]
	fetch   Fetcher
	metrics *metrics.Metrics

	mu      sync.Mutex
	pending map[string]*call
}

// New creates an empty cache. m may be nil.
func New(fetch Fetcher, m *metrics.Metrics) *Cache {
	return &Cache{
		entries: haxmap.New[string, ingestor.FieldData](),
		fetch:   fetch,
		metrics: m,
		pending: make(map[string]*call),
	}
}

func (c *Cache) Get(field string) (ingestor.FieldData, bool) {
	return c.entries.Get(field)
}

func (c *Cache) Put(field string, data ingestor.FieldData) {
	c.entries.Set(field, data)
}

// Len returns the number of cached fields
func (c *Cache) Len() int {
	return int(c.entries.Len())
}

// Pending reports whether a fetch for field is in flight
func (c *Cache) Pending(field string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[field]
	return ok
}

// Load returns the cached data or fetches it. Callers arriving while a fetch
// is in flight wait for it instead of starting another one.
func (c *Cache) Load(ctx context.Context, field string) (ingestor.FieldData, error) {
	if data, ok := c.entries.Get(field); ok {
		c.hit(field)
		return data, nil
	}

	c.mu.Lock()
	if data, ok := c.entries.Get(field); ok {
		c.mu.Unlock()
		c.hit(field)
		return data, nil
	}
	c.miss(field)
	if cl, ok := c.pending[field]; ok {
		c.mu.Unlock()
		select {
		case <-cl.done:
			return cl.data, cl.err
		case <-ctx.Done():
			return ingestor.FieldData{}, ctx.Err()
		}
	}
	cl := &call{done: make(chan struct{})}
	c.pending[field] = cl
	c.mu.Unlock()

	cl.data, cl.err = c.fetch(ctx, field)
	c.record(field, cl.err)

	c.mu.Lock()
	if cl.err == nil {
		c.entries.Set(field, cl.data)
	}
	delete(c.pending, field)
	c.mu.Unlock()
	close(cl.done)

	return cl.data, cl.err
}

func (c *Cache) hit(field string) {
	if c.metrics != nil {
		c.metrics.CacheHits.WithLabelValues(field).Inc()
	}
}

func (c *Cache) miss(field string) {
	if c.metrics != nil {
		c.metrics.CacheMisses.WithLabelValues(field).Inc()
	}
}

func (c *Cache) record(field string, err error) {
	if c.metrics == nil {
		return
	}
	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = metrics.OutcomeError
	}
	c.metrics.Fetches.WithLabelValues(field, outcome).Inc()
}
