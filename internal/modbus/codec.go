// internal/modbus/codec.go
package modbus

import (
	"math"

	"github.com/tamzrod/modbus-bridge/internal/model"
)

// RegistersToFloat reassembles a float32 from its two 16-bit registers.
// Byte order inside each register is already host order upstream; only
// the two words are reordered here. An unknown word order is a
// configuration error and is propagated, never defaulted.
func RegistersToFloat(reg1, reg2 uint16, order model.WordOrder) (float32, error) {
	highFirst, err := order.HighWordFirst()
	if err != nil {
		return 0, err
	}

	var bits uint32
	if highFirst {
		bits = uint32(reg1)<<16 | uint32(reg2)
	} else {
		bits = uint32(reg2)<<16 | uint32(reg1)
	}
	return math.Float32frombits(bits), nil
}

// FloatToRegisters is the exact inverse of RegistersToFloat for every
// finite float32.
func FloatToRegisters(v float32, order model.WordOrder) (uint16, uint16, error) {
	highFirst, err := order.HighWordFirst()
	if err != nil {
		return 0, 0, err
	}

	bits := math.Float32bits(v)
	high := uint16(bits >> 16)
	low := uint16(bits)

	if highFirst {
		return high, low, nil
	}
	return low, high, nil
}
