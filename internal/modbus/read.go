// internal/modbus/read.go
package modbus

import "fmt"

// MaxReadRegisters is the protocol ceiling on registers per read
// request (function code 3).
const MaxReadRegisters = 125

// MaxWriteRegisters is the ceiling on registers per multi-register
// write (function code 16).
const MaxWriteRegisters = 123

// MaxWriteCoils is the ceiling on coils per multi-coil write
// (function code 15).
const MaxWriteCoils = 1968

// ReadRegisters reads count holding registers starting at addr,
// splitting into as many wire requests as the 125-register ceiling
// demands and stitching the results in order. Any transport failure
// aborts the whole read; there is no partial-success return.
func ReadRegisters(client Client, addr, count uint16) ([]uint16, error) {
	if count == 0 {
		return nil, nil
	}

	out := make([]uint16, 0, count)
	remaining := count
	cursor := addr

	for remaining > 0 {
		qty := remaining
		if qty > MaxReadRegisters {
			qty = MaxReadRegisters
		}

		regs, err := client.ReadHoldingRegisters(cursor, qty)
		if err != nil {
			return nil, fmt.Errorf("modbus: read %d registers at %d: %w", qty, cursor, err)
		}
		if len(regs) != int(qty) {
			return nil, fmt.Errorf("modbus: read at %d returned %d registers, want %d", cursor, len(regs), qty)
		}

		out = append(out, regs...)
		cursor += qty
		remaining -= qty
	}

	return out, nil
}
