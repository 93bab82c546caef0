// internal/model/model.go
package model

import "fmt"

// ConnectionType selects the wire framing used to reach a controller.
type ConnectionType string

const (
	ConnTCP        ConnectionType = "tcp"
	ConnRTUOverTCP ConnectionType = "rtu_over_tcp"
)

// DataType is the register interpretation for a controller's whole window.
type DataType string

const (
	TypeBoolean DataType = "boolean"
	TypeInt     DataType = "int"
	TypeFloat   DataType = "float"
)

// Convention is the register numbering scheme a configuration uses.
// Vendors document the same physical register under different schemes;
// translation to the zero-based protocol address happens in one place.
type Convention string

const (
	Base0     Convention = "base0"
	Base1     Convention = "base1"
	Base40000 Convention = "base40000"
	Base40001 Convention = "base40001"
)

// WordOrder names how two consecutive registers hold a 32-bit value.
type WordOrder string

const (
	OrderNone      WordOrder = ""
	OrderBig       WordOrder = "big"
	OrderLittle    WordOrder = "little"
	OrderMidBig    WordOrder = "mid_big"
	OrderMidLittle WordOrder = "mid_little"
)

// HighWordFirst reports whether reg1 carries the high half of a 32-bit
// value under this order. The mid-endian names come from vendor meter
// documentation; on a 16-bit register wire they collapse to the two
// word orders.
func (w WordOrder) HighWordFirst() (bool, error) {
	switch w {
	case OrderNone, OrderBig, OrderMidLittle:
		return true, nil
	case OrderLittle, OrderMidBig:
		return false, nil
	default:
		return false, fmt.Errorf("model: unsupported word order %q", string(w))
	}
}

// Direction of a map: read publishes field values, write pushes pending
// write requests to field outputs.
type Direction string

const (
	DirectionRead  Direction = "read"
	DirectionWrite Direction = "write"
)

// Controller is one pollable field device. Read fresh each poll
// iteration; immutable for the duration of that iteration.
type Controller struct {
	ID           int64
	Name         string
	Host         string
	Port         int
	Connection   ConnectionType
	DataType     DataType
	UnitID       uint8 // 0-247, default 1
	StartAddress uint16
	Length       uint16
	Convention   Convention
	WordOrder    WordOrder
	Enabled      bool
}

// Endpoint is the dial address of the controller.
func (c Controller) Endpoint() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Map binds one monitoring item to a position inside a controller's
// window. Whether Position is window-relative or absolute is decided
// per controller per cycle (see mapping.ResolvePositioning).
type Map struct {
	ID           int64
	ControllerID int64
	ItemID       int64
	Position     uint16
	Direction    Direction
}

// MonitoringItem is the canonical point identity. The scale attributes
// apply only on the write path (engineering units -> field units).
type MonitoringItem struct {
	ID            int64
	Name          string
	ScaleEnabled  bool
	NormalizedMin float64
	NormalizedMax float64
	ScaledMin     float64
	ScaledMax     float64
}

// Denormalize maps v from the normalized range onto the scaled range.
// With scaling disabled v passes through untouched.
func (m MonitoringItem) Denormalize(v float64) float64 {
	if !m.ScaleEnabled {
		return v
	}
	span := m.NormalizedMax - m.NormalizedMin
	if span == 0 {
		return m.ScaledMin
	}
	return (v-m.NormalizedMin)/span*(m.ScaledMax-m.ScaledMin) + m.ScaledMin
}

// WriteRequest is a pending value for a writable item, produced
// externally. DurationSec bounds its validity: 0 never expires.
type WriteRequest struct {
	ItemID      int64
	Value       string
	RequestedAt int64 // epoch seconds
	DurationSec int64
}

// Expired reports whether the request is stale at nowSec.
func (r WriteRequest) Expired(nowSec int64) bool {
	if r.DurationSec <= 0 {
		return false
	}
	return nowSec-r.RequestedAt > r.DurationSec
}

// Reading is one decoded point value.
type Reading struct {
	ItemID    int64  `json:"item_id"`
	Value     string `json:"value"`
	Timestamp int64  `json:"ts"`
}

// ReadingBatch is the per-controller result of one poll cycle. Built
// fresh each poll, handed to the bus, never mutated afterward.
type ReadingBatch struct {
	ControllerID int64     `json:"controller_id"`
	Readings     []Reading `json:"readings"`
}
