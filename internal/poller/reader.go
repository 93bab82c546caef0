// internal/poller/reader.go

// Package poller drives the poll loop: per cycle it pushes pending
// writes, reads each controller's window, decodes values by data type
// and hands the resulting batches to the bus.
package poller

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/tamzrod/modbus-bridge/internal/bus"
	"github.com/tamzrod/modbus-bridge/internal/mapping"
	"github.com/tamzrod/modbus-bridge/internal/modbus"
	"github.com/tamzrod/modbus-bridge/internal/model"
	"github.com/tamzrod/modbus-bridge/internal/store"
)

// OpenFunc dials a controller for one pipeline invocation.
type OpenFunc func(c model.Controller, timeout time.Duration) (modbus.Client, error)

// Reader is the read pipeline for one poll cycle.
type Reader struct {
	store   store.Store
	bus     bus.Publisher
	open    OpenFunc
	timeout time.Duration
	now     func() time.Time
	log     *zap.Logger
}

// NewReader builds a Reader. The open function defaults to the real
// transport and is injectable for tests.
func NewReader(s store.Store, pub bus.Publisher, open OpenFunc, timeout time.Duration, log *zap.Logger) *Reader {
	if open == nil {
		open = modbus.Open
	}
	return &Reader{
		store:   s,
		bus:     pub,
		open:    open,
		timeout: timeout,
		now:     time.Now,
		log:     log,
	}
}

// Run executes the read pipeline for one controller. Controllers with
// no read maps are skipped without opening a connection. Any error is
// controller-level: the scheduler logs it and moves on; siblings and
// future cycles are unaffected.
func (r *Reader) Run(ctx context.Context, c model.Controller) error {
	maps, err := r.store.ListMaps(ctx, c.ID, model.DirectionRead)
	if err != nil {
		return fmt.Errorf("reader: list maps: %w", err)
	}
	if len(maps) == 0 {
		return nil
	}

	res := mapping.ResolvePositioning(c, maps)
	if len(res.Outliers) > 0 {
		r.log.Warn("mixed map positioning, minority positions fall outside the window",
			zap.Int64("controller_id", c.ID),
			zap.Uint16s("positions", res.Outliers))
	}

	client, err := r.open(c, r.timeout)
	if err != nil {
		return fmt.Errorf("reader: connect %s: %w", c.Endpoint(), err)
	}
	defer client.Close()

	startAddr := mapping.Translate(c.StartAddress, c.Convention)

	var readings []model.Reading
	switch c.DataType {
	case model.TypeBoolean:
		readings, err = r.readCoils(client, c, startAddr, maps, res)
	case model.TypeInt:
		readings, err = r.readInts(client, c, startAddr, maps, res)
	case model.TypeFloat:
		readings, err = r.readFloats(client, c, startAddr, maps, res)
	default:
		return fmt.Errorf("reader: unknown data type %q", string(c.DataType))
	}
	if err != nil {
		return err
	}

	if len(readings) == 0 {
		return nil
	}

	batch := model.ReadingBatch{ControllerID: c.ID, Readings: readings}
	if err := r.bus.PublishBatch(ctx, batch); err != nil {
		return fmt.Errorf("reader: publish batch: %w", err)
	}
	return nil
}

func (r *Reader) readCoils(client modbus.Client, c model.Controller, addr uint16, maps []model.Map, res mapping.Resolution) ([]model.Reading, error) {
	bits, err := client.ReadCoils(addr, c.Length)
	if err != nil {
		return nil, fmt.Errorf("reader: read %d coils at %d: %w", c.Length, addr, err)
	}

	ts := r.now().Unix()
	readings := make([]model.Reading, 0, len(maps))
	for _, m := range maps {
		off, ok := res.Offset(m.Position)
		if !ok || int(off) >= len(bits) {
			r.logOutOfWindow(c, m)
			continue
		}
		v := "0"
		if bits[off] {
			v = "1"
		}
		readings = append(readings, model.Reading{ItemID: m.ItemID, Value: v, Timestamp: ts})
	}
	return readings, nil
}

func (r *Reader) readInts(client modbus.Client, c model.Controller, addr uint16, maps []model.Map, res mapping.Resolution) ([]model.Reading, error) {
	regs, err := modbus.ReadRegisters(client, addr, c.Length)
	if err != nil {
		return nil, err
	}

	ts := r.now().Unix()
	readings := make([]model.Reading, 0, len(maps))
	for _, m := range maps {
		off, ok := res.Offset(m.Position)
		if !ok || int(off) >= len(regs) {
			r.logOutOfWindow(c, m)
			continue
		}
		v := strconv.FormatInt(int64(int16(regs[off])), 10)
		readings = append(readings, model.Reading{ItemID: m.ItemID, Value: v, Timestamp: ts})
	}
	return readings, nil
}

func (r *Reader) readFloats(client modbus.Client, c model.Controller, addr uint16, maps []model.Map, res mapping.Resolution) ([]model.Reading, error) {
	regs, err := modbus.ReadRegisters(client, addr, c.Length)
	if err != nil {
		return nil, err
	}

	ts := r.now().Unix()
	readings := make([]model.Reading, 0, len(maps))
	for _, m := range maps {
		off, ok := res.Offset(m.Position)
		if !ok {
			r.logOutOfWindow(c, m)
			continue
		}
		// A float occupies two consecutive registers; a span hanging one
		// register past the window skips the map, never the whole read.
		if int(off)+1 >= len(regs) {
			r.log.Warn("float span exceeds window, map skipped",
				zap.Int64("controller_id", c.ID),
				zap.Int64("item_id", m.ItemID),
				zap.Uint16("position", m.Position))
			continue
		}

		v, err := modbus.RegistersToFloat(regs[off], regs[off+1], c.WordOrder)
		if err != nil {
			return nil, fmt.Errorf("reader: decode item %d: %w", m.ItemID, err)
		}

		readings = append(readings, model.Reading{
			ItemID:    m.ItemID,
			Value:     strconv.FormatFloat(float64(v), 'f', -1, 32),
			Timestamp: ts,
		})
	}
	return readings, nil
}

func (r *Reader) logOutOfWindow(c model.Controller, m model.Map) {
	r.log.Warn("read map position outside window, skipped",
		zap.Int64("controller_id", c.ID),
		zap.Int64("item_id", m.ItemID),
		zap.Uint16("position", m.Position))
}
