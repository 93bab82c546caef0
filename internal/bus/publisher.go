// internal/bus/publisher.go

// Package bus carries decoded readings and controller health off the
// bridge. Downstream storage and alarming consume the queue; the bridge
// only produces.
package bus

import (
	"context"
	"time"

	"github.com/tamzrod/modbus-bridge/internal/model"
)

// HealthMessage reports a controller's link state. Published on
// transitions only, so a flapping field link is visible without
// flooding the bus on every poll.
type HealthMessage struct {
	ControllerID int64     `json:"controller_id"`
	Name         string    `json:"name"`
	Endpoint     string    `json:"endpoint"`
	Online       bool      `json:"online"`
	Error        string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Publisher is the bus contract the pipelines depend on.
type Publisher interface {
	PublishBatch(ctx context.Context, batch model.ReadingBatch) error
	PublishHealth(ctx context.Context, msg HealthMessage) error
}
