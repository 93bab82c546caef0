// internal/modbus/transport.go
package modbus

import (
	"errors"
	"fmt"
	"time"

	goburrow "github.com/goburrow/modbus"
	vetter "github.com/simonvetter/modbus"

	"github.com/tamzrod/modbus-bridge/internal/model"
)

// Client is the exact wire contract the pipelines use. Geometry only:
// addresses here are already zero-based protocol addresses.
type Client interface {
	ReadCoils(addr, qty uint16) ([]bool, error)
	ReadHoldingRegisters(addr, qty uint16) ([]uint16, error)
	WriteCoils(addr uint16, bits []bool) error
	WriteRegisters(addr uint16, regs []uint16) error
	Close() error
}

// Open dials a controller and returns a connected client for one
// pipeline invocation. No pooling: a fresh connection per call keeps
// failure isolation trivial. Callers must Close on every exit path.
func Open(c model.Controller, timeout time.Duration) (Client, error) {
	switch c.Connection {
	case model.ConnRTUOverTCP:
		return openRTUOverTCP(c, timeout)
	case model.ConnTCP, "":
		return openTCP(c, timeout)
	default:
		return nil, fmt.Errorf("modbus: unknown connection type %q", string(c.Connection))
	}
}

// ---- plain Modbus/TCP (goburrow) ----

// tcpClient adapts a goburrow TCP handler. The handler is owned by one
// pipeline call; SlaveId is fixed at open.
type tcpClient struct {
	handler *goburrow.TCPClientHandler
	client  goburrow.Client
}

func openTCP(c model.Controller, timeout time.Duration) (Client, error) {
	h := goburrow.NewTCPClientHandler(c.Endpoint())
	h.Timeout = timeout
	h.SlaveId = c.UnitID

	if err := h.Connect(); err != nil {
		return nil, err
	}

	return &tcpClient{handler: h, client: goburrow.NewClient(h)}, nil
}

func (c *tcpClient) Close() error {
	return c.handler.Close()
}

func (c *tcpClient) ReadCoils(addr, qty uint16) ([]bool, error) {
	if qty == 0 {
		return nil, nil
	}
	raw, err := c.client.ReadCoils(addr, qty)
	if err != nil {
		return nil, err
	}
	if len(raw) < int(qty+7)/8 {
		return nil, errors.New("modbus: short coil payload")
	}
	return unpackBits(raw, int(qty)), nil
}

func (c *tcpClient) ReadHoldingRegisters(addr, qty uint16) ([]uint16, error) {
	if qty == 0 {
		return nil, nil
	}
	raw, err := c.client.ReadHoldingRegisters(addr, qty)
	if err != nil {
		return nil, err
	}
	if len(raw) < int(qty)*2 {
		return nil, errors.New("modbus: short register payload")
	}
	return unpackRegisters(raw), nil
}

func (c *tcpClient) WriteCoils(addr uint16, bits []bool) error {
	_, err := c.client.WriteMultipleCoils(addr, uint16(len(bits)), packBits(bits))
	return err
}

func (c *tcpClient) WriteRegisters(addr uint16, regs []uint16) error {
	_, err := c.client.WriteMultipleRegisters(addr, uint16(len(regs)), packRegisters(regs))
	return err
}

// ---- RTU framing tunneled over TCP (simonvetter) ----

type rtuOverTCPClient struct {
	mc *vetter.ModbusClient
}

func openRTUOverTCP(c model.Controller, timeout time.Duration) (Client, error) {
	mc, err := vetter.NewClient(&vetter.ClientConfiguration{
		URL:     fmt.Sprintf("rtuovertcp://%s", c.Endpoint()),
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	if err := mc.Open(); err != nil {
		return nil, err
	}
	if err := mc.SetUnitId(c.UnitID); err != nil {
		mc.Close()
		return nil, err
	}
	return &rtuOverTCPClient{mc: mc}, nil
}

func (c *rtuOverTCPClient) Close() error {
	return c.mc.Close()
}

func (c *rtuOverTCPClient) ReadCoils(addr, qty uint16) ([]bool, error) {
	if qty == 0 {
		return nil, nil
	}
	return c.mc.ReadCoils(addr, qty)
}

func (c *rtuOverTCPClient) ReadHoldingRegisters(addr, qty uint16) ([]uint16, error) {
	if qty == 0 {
		return nil, nil
	}
	return c.mc.ReadRegisters(addr, qty, vetter.HOLDING_REGISTER)
}

func (c *rtuOverTCPClient) WriteCoils(addr uint16, bits []bool) error {
	return c.mc.WriteCoils(addr, bits)
}

func (c *rtuOverTCPClient) WriteRegisters(addr uint16, regs []uint16) error {
	return c.mc.WriteRegisters(addr, regs)
}

// ---- packing helpers (pure geometry) ----

func unpackBits(data []byte, count int) []bool {
	out := make([]bool, count)
	for i := 0; i < count; i++ {
		byteIdx := i / 8
		bitIdx := i % 8
		if byteIdx >= len(data) {
			continue
		}
		out[i] = data[byteIdx]&(1<<bitIdx) != 0
	}
	return out
}

func packBits(bits []bool) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, b := range bits {
		if b {
			out[i/8] |= 1 << (i % 8)
		}
	}
	return out
}

func unpackRegisters(data []byte) []uint16 {
	n := len(data) / 2
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		out[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return out
}

func packRegisters(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, r := range regs {
		out[2*i] = byte(r >> 8)
		out[2*i+1] = byte(r)
	}
	return out
}
