package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ZanzyTHEbar/usagepulse/internal/dataset"
	"github.com/ZanzyTHEbar/usagepulse/internal/monitoring"
)

// LoadFunc produces the prepared dataset for a source.
type LoadFunc func(ctx context.Context, source string) (*dataset.Dataset, error)

// Fingerprint identifies one version of a source file.
type Fingerprint struct {
	Path    string
	Size    int64
	ModTime time.Time
}

func (f Fingerprint) String() string {
	return fmt.Sprintf("%s:%d:%d", f.Path, f.Size, f.ModTime.UnixNano())
}

// Same reports whether f and o name the same version of the same file.
func (f Fingerprint) Same(o Fingerprint) bool {
	return f.Path == o.Path && f.Size == o.Size && f.ModTime.Equal(o.ModTime)
}

type datasetEntry struct {
	fp       Fingerprint
	ds       *dataset.Dataset
	loadedAt time.Time
}

// DatasetCache memoizes prepared datasets per source version. A changed file
// size or modification time is a new version. Concurrent misses for the same
// version share one load. Failed loads are never cached.
type DatasetCache struct {
	mu      sync.RWMutex
	entries map[string]*datasetEntry
	group   singleflight.Group
	load    LoadFunc

	metrics *monitoring.Metrics
	logger  *monitoring.Logger

	hits   int64
	misses int64
}

// NewDatasetCache creates a cache around load.
func NewDatasetCache(load LoadFunc, metrics *monitoring.Metrics, logger *monitoring.Logger) *DatasetCache {
	return &DatasetCache{
		entries: make(map[string]*datasetEntry),
		load:    load,
		metrics: metrics,
		logger:  logger,
	}
}

// Stat fingerprints source.
func Stat(source string) (Fingerprint, error) {
	abs, err := filepath.Abs(source)
	if err != nil {
		return Fingerprint{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Fingerprint{}, err
	}
	return Fingerprint{Path: abs, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Get returns the prepared dataset for source, loading it when the source
// changed since the last successful load. hit reports whether the cached
// value was served.
func (c *DatasetCache) Get(ctx context.Context, source string) (ds *dataset.Dataset, hit bool, err error) {
	fp, err := Stat(source)
	if err != nil {
		// let the loader produce the typed not-found error
		ds, err = c.load(ctx, source)
		c.metrics.RecordDatasetLoad(err)
		return ds, false, err
	}

	c.mu.RLock()
	entry, ok := c.entries[fp.Path]
	c.mu.RUnlock()
	if ok && entry.fp.Same(fp) {
		atomic.AddInt64(&c.hits, 1)
		c.logger.CacheLogger("dataset", fp.String(), true, c.Len())
		return entry.ds, true, nil
	}

	atomic.AddInt64(&c.misses, 1)
	v, err, _ := c.group.Do(fp.String(), func() (interface{}, error) {
		// the load is shared, so one caller giving up must not fail the rest
		ds, err := c.load(context.WithoutCancel(ctx), source)
		c.metrics.RecordDatasetLoad(err)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[fp.Path] = &datasetEntry{fp: fp, ds: ds, loadedAt: time.Now()}
		c.mu.Unlock()
		return ds, nil
	})
	if err != nil {
		return nil, false, err
	}

	c.logger.CacheLogger("dataset", fp.String(), false, c.Len())
	return v.(*dataset.Dataset), false, nil
}

// Invalidate drops the cached dataset for source.
func (c *DatasetCache) Invalidate(source string) {
	abs, err := filepath.Abs(source)
	if err != nil {
		abs = source
	}

	c.mu.Lock()
	delete(c.entries, abs)
	c.mu.Unlock()
}

// Reset drops every cached dataset.
func (c *DatasetCache) Reset() {
	c.mu.Lock()
	c.entries = make(map[string]*datasetEntry)
	c.mu.Unlock()
}

// Len returns the number of cached sources.
func (c *DatasetCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns cache statistics
func (c *DatasetCache) Stats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sources := make([]map[string]interface{}, 0, len(c.entries))
	for _, e := range c.entries {
		sources = append(sources, map[string]interface{}{
			"path":      e.fp.Path,
			"size":      e.fp.Size,
			"mod_time":  e.fp.ModTime.Format(time.RFC3339),
			"rows":      e.ds.Len(),
			"loaded_at": e.loadedAt.Format(time.RFC3339),
		})
	}

	return map[string]interface{}{
		"sources": sources,
		"hits":    atomic.LoadInt64(&c.hits),
		"misses":  atomic.LoadInt64(&c.misses),
	}
}
