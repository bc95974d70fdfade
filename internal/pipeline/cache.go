package pipeline

import (
	"sync"

	"github.com/hidrosfera/climdex-etl/internal/domain"
)

// cacheKey identifies one extracted grid cell. The source path is part of the
// key so series from different files can never be confused, even though the
// cache is also cleared between files.
type cacheKey struct {
	path  string
	coord domain.GridCoordinate
}

// seriesCache is a thread-safe LRU cache of raw per-cell series. It exists
// because several cities often resolve to the same grid cell, and a cell read
// walks the whole time dimension of the file.
type seriesCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[cacheKey]*cacheEntry
	head       *cacheEntry // most recently used
	tail       *cacheEntry // least recently used
}

type cacheEntry struct {
	key    cacheKey
	values []float64
	prev   *cacheEntry
	next   *cacheEntry
}

func newSeriesCache(maxEntries int) *seriesCache {
	return &seriesCache{
		maxEntries: maxEntries,
		entries:    make(map[cacheKey]*cacheEntry),
	}
}

// getOrCompute returns the cached series for key, or runs compute and caches
// its result. hit reports whether the read was avoided. Failed computations
// are not cached, so a transient read error can be retried.
func (c *seriesCache) getOrCompute(key cacheKey, compute func() ([]float64, error)) (values []float64, hit bool, err error) {
	if values, ok := c.get(key); ok {
		return values, true, nil
	}
	values, err = compute()
	if err != nil {
		return nil, false, err
	}
	c.put(key, values)
	return values, false, nil
}

// reset drops every entry. Called when the batch moves on to a new source
// file, so one file's series never linger into the next file's processing.
func (c *seriesCache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[cacheKey]*cacheEntry)
	c.head = nil
	c.tail = nil
}

func (c *seriesCache) get(key cacheKey) ([]float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.moveToFront(e)
	return e.values, true
}

func (c *seriesCache) put(key cacheKey, values []float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.values = values
		c.moveToFront(e)
		return
	}

	e := &cacheEntry{key: key, values: values}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *seriesCache) moveToFront(e *cacheEntry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *seriesCache) addToFront(e *cacheEntry) {
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

func (c *seriesCache) remove(e *cacheEntry) {
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

func (c *seriesCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
