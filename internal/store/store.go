// internal/store/store.go
package store

import (
	"context"

	"github.com/tamzrod/modbus-bridge/internal/model"
)

// Store is the read-only view of the point-mapping database the bridge
// consumes. Persistence and editing of this configuration live in other
// services.
type Store interface {
	ListEnabledControllers(ctx context.Context) ([]model.Controller, error)
	ListMaps(ctx context.Context, controllerID int64, dir model.Direction) ([]model.Map, error)
	ListMonitoringItems(ctx context.Context) ([]model.MonitoringItem, error)
	ListPendingWriteRequests(ctx context.Context) ([]model.WriteRequest, error)
}
