// internal/store/catalog.go
package store

import (
	"context"
	"sync"
	"time"

	"github.com/tamzrod/modbus-bridge/internal/model"
)

// ItemCatalog caches the monitoring-item catalog behind a freshness
// window. Loading the catalog is the expensive store call, so it is
// amortized across poll cycles and kept eventually fresh. One mutex
// guards both the items and the refresh timestamp.
type ItemCatalog struct {
	store Store

	mu          sync.Mutex
	items       map[int64]model.MonitoringItem
	lastRefresh time.Time
}

// NewItemCatalog returns an empty catalog; the first GetOrRefresh
// always hits the store.
func NewItemCatalog(s Store) *ItemCatalog {
	return &ItemCatalog{store: s}
}

// GetOrRefresh returns the catalog keyed by item id, reloading it when
// it has never been loaded or is older than maxAge. The returned map is
// replaced wholesale on refresh and must be treated as read-only.
func (c *ItemCatalog) GetOrRefresh(ctx context.Context, maxAge time.Duration) (map[int64]model.MonitoringItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.items != nil && time.Since(c.lastRefresh) < maxAge {
		return c.items, nil
	}

	list, err := c.store.ListMonitoringItems(ctx)
	if err != nil {
		// Serve the stale copy if there is one; the store hiccup is
		// the caller's to log.
		if c.items != nil {
			return c.items, err
		}
		return nil, err
	}

	items := make(map[int64]model.MonitoringItem, len(list))
	for _, it := range list {
		items[it.ID] = it
	}

	c.items = items
	c.lastRefresh = time.Now()
	return c.items, nil
}
