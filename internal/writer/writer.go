// internal/writer/writer.go

// Package writer pushes pending write requests out to field outputs.
// It runs before the matching read for the same controller inside one
// poll cycle, so a read may observe its own cycle's write.
package writer

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/tamzrod/modbus-bridge/internal/mapping"
	"github.com/tamzrod/modbus-bridge/internal/modbus"
	"github.com/tamzrod/modbus-bridge/internal/model"
	"github.com/tamzrod/modbus-bridge/internal/store"
)

// OpenFunc dials a controller for one pipeline invocation.
type OpenFunc func(c model.Controller, timeout time.Duration) (modbus.Client, error)

// Writer is the write pipeline for one poll cycle.
type Writer struct {
	store   store.Store
	catalog *store.ItemCatalog
	open    OpenFunc
	timeout time.Duration
	maxAge  time.Duration
	now     func() time.Time
	log     *zap.Logger
}

// Config carries the writer's construction parameters.
type Config struct {
	Timeout       time.Duration
	CatalogMaxAge time.Duration
}

// New builds a Writer. The open function defaults to the real transport
// and is injectable for tests.
func New(s store.Store, catalog *store.ItemCatalog, open OpenFunc, cfg Config, log *zap.Logger) *Writer {
	if open == nil {
		open = modbus.Open
	}
	return &Writer{
		store:   s,
		catalog: catalog,
		open:    open,
		timeout: cfg.Timeout,
		maxAge:  cfg.CatalogMaxAge,
		now:     time.Now,
		log:     log,
	}
}

// Run executes the write pipeline for one controller. Controllers with
// no write maps are skipped without opening a connection. Any error is
// controller-level: the scheduler logs it and moves on.
func (w *Writer) Run(ctx context.Context, c model.Controller) error {
	maps, err := w.store.ListMaps(ctx, c.ID, model.DirectionWrite)
	if err != nil {
		return fmt.Errorf("writer: list maps: %w", err)
	}
	if len(maps) == 0 {
		return nil
	}

	if err := checkWriteCeiling(c); err != nil {
		return err
	}

	requests, err := w.store.ListPendingWriteRequests(ctx)
	if err != nil {
		return fmt.Errorf("writer: list write requests: %w", err)
	}

	items, err := w.catalog.GetOrRefresh(ctx, w.maxAge)
	if err != nil {
		if items == nil {
			return fmt.Errorf("writer: item catalog: %w", err)
		}
		w.log.Warn("item catalog refresh failed, using cached copy",
			zap.Int64("controller_id", c.ID), zap.Error(err))
	}

	res := mapping.ResolvePositioning(c, maps)
	if len(res.Outliers) > 0 {
		w.log.Warn("mixed map positioning, minority positions fall outside the window",
			zap.Int64("controller_id", c.ID),
			zap.Uint16s("positions", res.Outliers))
	}

	startAddr := mapping.Translate(c.StartAddress, c.Convention)

	if c.DataType == model.TypeBoolean {
		buf := w.buildCoilBuffer(c, maps, res, items, requests)
		return w.writeCoils(c, startAddr, buf)
	}

	buf, err := w.buildRegisterBuffer(c, maps, res, items, requests)
	if err != nil {
		return err
	}
	return w.writeRegisters(c, startAddr, buf)
}

// checkWriteCeiling rejects windows that cannot go out as one wire
// request. Chunking a write would let the device observe a half-applied
// output buffer, so oversized configurations are refused instead.
func checkWriteCeiling(c model.Controller) error {
	if c.DataType == model.TypeBoolean {
		if c.Length > modbus.MaxWriteCoils {
			return fmt.Errorf("writer: window of %d coils exceeds the %d-coil write ceiling", c.Length, modbus.MaxWriteCoils)
		}
		return nil
	}
	if c.Length > modbus.MaxWriteRegisters {
		return fmt.Errorf("writer: window of %d registers exceeds the %d-register write ceiling", c.Length, modbus.MaxWriteRegisters)
	}
	return nil
}

// resolveValue finds the freshest pending request for a map's item and
// returns the denormalized value. ok is false when the position should
// stay at its zero default: no request, a stale request, or an
// unparseable value. Zero is the deliberate fail-safe decay state.
func (w *Writer) resolveValue(c model.Controller, m model.Map, items map[int64]model.MonitoringItem, requests []model.WriteRequest) (float64, bool) {
	var req *model.WriteRequest
	for i := range requests {
		r := &requests[i]
		if r.ItemID != m.ItemID {
			continue
		}
		if req == nil || r.RequestedAt > req.RequestedAt {
			req = r
		}
	}
	if req == nil {
		return 0, false
	}

	if req.Expired(w.now().Unix()) {
		return 0, false
	}

	v, err := strconv.ParseFloat(req.Value, 64)
	if err != nil {
		w.log.Warn("unparseable write value, defaulting to zero",
			zap.Int64("controller_id", c.ID),
			zap.Int64("item_id", m.ItemID),
			zap.String("value", req.Value))
		return 0, false
	}

	item, ok := items[m.ItemID]
	if !ok {
		w.log.Warn("write map references unknown item, value used unscaled",
			zap.Int64("controller_id", c.ID),
			zap.Int64("item_id", m.ItemID))
		return v, true
	}

	return item.Denormalize(v), true
}

func (w *Writer) buildCoilBuffer(c model.Controller, maps []model.Map, res mapping.Resolution, items map[int64]model.MonitoringItem, requests []model.WriteRequest) []bool {
	buf := make([]bool, c.Length)

	for _, m := range maps {
		off, ok := res.Offset(m.Position)
		if !ok {
			w.logOutOfWindow(c, m)
			continue
		}
		v, ok := w.resolveValue(c, m, items, requests)
		if !ok {
			continue
		}
		buf[off] = v != 0
	}

	return buf
}

func (w *Writer) buildRegisterBuffer(c model.Controller, maps []model.Map, res mapping.Resolution, items map[int64]model.MonitoringItem, requests []model.WriteRequest) ([]uint16, error) {
	buf := make([]uint16, c.Length)

	for _, m := range maps {
		off, ok := res.Offset(m.Position)
		if !ok {
			w.logOutOfWindow(c, m)
			continue
		}
		v, ok := w.resolveValue(c, m, items, requests)
		if !ok {
			continue
		}

		switch c.DataType {
		case model.TypeFloat:
			if int(off)+1 >= int(c.Length) {
				w.log.Warn("float span exceeds window, map skipped",
					zap.Int64("controller_id", c.ID),
					zap.Int64("item_id", m.ItemID),
					zap.Uint16("position", m.Position))
				continue
			}
			r1, r2, err := modbus.FloatToRegisters(float32(v), c.WordOrder)
			if err != nil {
				return nil, fmt.Errorf("writer: encode item %d: %w", m.ItemID, err)
			}
			buf[off] = r1
			buf[off+1] = r2

		default: // Int
			buf[off] = w.encodeInt(c, m, v)
		}
	}

	return buf, nil
}

// encodeInt clamps to the signed 16-bit range rather than wrapping.
func (w *Writer) encodeInt(c model.Controller, m model.Map, v float64) uint16 {
	r := math.Round(v)
	if r > math.MaxInt16 || r < math.MinInt16 {
		w.log.Warn("int write value clamped to 16-bit signed range",
			zap.Int64("controller_id", c.ID),
			zap.Int64("item_id", m.ItemID),
			zap.Float64("value", v))
		if r > 0 {
			return uint16(int16(math.MaxInt16))
		}
		min := int16(math.MinInt16)
		return uint16(min)
	}
	return uint16(int16(r))
}

func (w *Writer) logOutOfWindow(c model.Controller, m model.Map) {
	w.log.Warn("write map position outside window, skipped",
		zap.Int64("controller_id", c.ID),
		zap.Int64("item_id", m.ItemID),
		zap.Uint16("position", m.Position))
}

// writeCoils pushes the whole buffer as one multi-coil write.
func (w *Writer) writeCoils(c model.Controller, addr uint16, buf []bool) error {
	client, err := w.open(c, w.timeout)
	if err != nil {
		return fmt.Errorf("writer: connect %s: %w", c.Endpoint(), err)
	}
	defer client.Close()

	if err := client.WriteCoils(addr, buf); err != nil {
		return fmt.Errorf("writer: write %d coils at %d: %w", len(buf), addr, err)
	}
	return nil
}

// writeRegisters pushes the whole buffer as one multi-register write.
func (w *Writer) writeRegisters(c model.Controller, addr uint16, buf []uint16) error {
	client, err := w.open(c, w.timeout)
	if err != nil {
		return fmt.Errorf("writer: connect %s: %w", c.Endpoint(), err)
	}
	defer client.Close()

	if err := client.WriteRegisters(addr, buf); err != nil {
		return fmt.Errorf("writer: write %d registers at %d: %w", len(buf), addr, err)
	}
	return nil
}
