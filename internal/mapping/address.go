// internal/mapping/address.go
package mapping

import "github.com/tamzrod/modbus-bridge/internal/model"

// Translate converts a configured register address into the zero-based
// protocol address. Pure and total: an unknown convention is treated as
// zero-based, the convention vendors mean when they say nothing.
func Translate(addr uint16, conv model.Convention) uint16 {
	switch conv {
	case model.Base1:
		return addr - 1
	case model.Base40001:
		return addr - 40001
	case model.Base40000:
		return addr - 40000
	default:
		return addr
	}
}

// RawFor is the inverse of Translate for a given convention. Used by
// tests and by nothing on the hot path.
func RawFor(protocolAddr uint16, conv model.Convention) uint16 {
	switch conv {
	case model.Base1:
		return protocolAddr + 1
	case model.Base40001:
		return protocolAddr + 40001
	case model.Base40000:
		return protocolAddr + 40000
	default:
		return protocolAddr
	}
}
