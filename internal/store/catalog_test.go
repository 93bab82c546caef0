// internal/store/catalog_test.go
package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tamzrod/modbus-bridge/internal/model"
)

type fakeStore struct {
	items     []model.MonitoringItem
	itemCalls int
	fail      bool
}

func (f *fakeStore) ListEnabledControllers(ctx context.Context) ([]model.Controller, error) {
	return nil, nil
}

func (f *fakeStore) ListMaps(ctx context.Context, controllerID int64, dir model.Direction) ([]model.Map, error) {
	return nil, nil
}

func (f *fakeStore) ListMonitoringItems(ctx context.Context) ([]model.MonitoringItem, error) {
	f.itemCalls++
	if f.fail {
		return nil, errors.New("db down")
	}
	return f.items, nil
}

func (f *fakeStore) ListPendingWriteRequests(ctx context.Context) ([]model.WriteRequest, error) {
	return nil, nil
}

func TestItemCatalog_FreshnessWindow(t *testing.T) {
	fs := &fakeStore{items: []model.MonitoringItem{{ID: 7, Name: "flow"}}}
	c := NewItemCatalog(fs)
	ctx := context.Background()

	items, err := c.GetOrRefresh(ctx, time.Minute)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if _, ok := items[7]; !ok {
		t.Fatal("item 7 missing after first load")
	}
	if fs.itemCalls != 1 {
		t.Fatalf("store hit %d times, want 1", fs.itemCalls)
	}

	// Within the window the cache answers.
	if _, err := c.GetOrRefresh(ctx, time.Minute); err != nil {
		t.Fatalf("err=%v", err)
	}
	if fs.itemCalls != 1 {
		t.Fatalf("store hit %d times inside freshness window, want 1", fs.itemCalls)
	}

	// Force the window shut and expect a reload.
	c.mu.Lock()
	c.lastRefresh = time.Now().Add(-2 * time.Minute)
	c.mu.Unlock()

	if _, err := c.GetOrRefresh(ctx, time.Minute); err != nil {
		t.Fatalf("err=%v", err)
	}
	if fs.itemCalls != 2 {
		t.Fatalf("store hit %d times after expiry, want 2", fs.itemCalls)
	}
}

func TestItemCatalog_ServesStaleOnError(t *testing.T) {
	fs := &fakeStore{items: []model.MonitoringItem{{ID: 1}}}
	c := NewItemCatalog(fs)
	ctx := context.Background()

	if _, err := c.GetOrRefresh(ctx, time.Minute); err != nil {
		t.Fatalf("err=%v", err)
	}

	fs.fail = true
	c.mu.Lock()
	c.lastRefresh = time.Now().Add(-2 * time.Minute)
	c.mu.Unlock()

	items, err := c.GetOrRefresh(ctx, time.Minute)
	if err == nil {
		t.Fatal("expected refresh error to surface")
	}
	if _, ok := items[1]; !ok {
		t.Fatal("stale copy should still be served alongside the error")
	}
}

func TestItemCatalog_FirstLoadFailure(t *testing.T) {
	fs := &fakeStore{fail: true}
	c := NewItemCatalog(fs)

	items, err := c.GetOrRefresh(context.Background(), time.Minute)
	if err == nil {
		t.Fatal("expected error")
	}
	if items != nil {
		t.Fatal("no stale copy exists, items must be nil")
	}
}
