// internal/mapping/position.go
package mapping

import "github.com/tamzrod/modbus-bridge/internal/model"

// Positioning says how a controller's map positions are expressed.
type Positioning int

const (
	// Relative positions are zero-based offsets into the window.
	Relative Positioning = iota
	// Absolute positions are addresses in the controller's own
	// configured numbering, expected to fall inside the window.
	Absolute
)

func (p Positioning) String() string {
	if p == Absolute {
		return "absolute"
	}
	return "relative"
}

// Resolution is the per-controller, per-cycle positioning decision.
// Computed once and threaded into the pipelines.
type Resolution struct {
	Positioning Positioning
	// Outliers holds positions outside the window when the controller
	// was classified Absolute: a genuinely mixed configuration that the
	// majority rule cannot honor. Callers log it; affected maps fall
	// out of the window and are skipped individually.
	Outliers []uint16

	start  uint16
	length uint16
}

// ResolvePositioning classifies all of a controller's maps as Relative
// or Absolute. The window [start, start+length) lives in the configured
// address space, the same numbering the maps use. If any position falls
// inside the window the whole controller is Absolute; otherwise
// Relative. One rule for all maps of a controller, recomputed every
// cycle so live config edits take effect next poll.
func ResolvePositioning(c model.Controller, maps []model.Map) Resolution {
	res := Resolution{
		Positioning: Relative,
		start:       c.StartAddress,
		length:      c.Length,
	}

	end := uint32(c.StartAddress) + uint32(c.Length)
	inside := func(p uint16) bool {
		return p >= c.StartAddress && uint32(p) < end
	}

	for _, m := range maps {
		if inside(m.Position) {
			res.Positioning = Absolute
			break
		}
	}

	if res.Positioning == Absolute {
		for _, m := range maps {
			if !inside(m.Position) {
				res.Outliers = append(res.Outliers, m.Position)
			}
		}
	}

	return res
}

// Offset converts a map position into a zero-based window offset. The
// second result is false when the position lands outside the window.
func (r Resolution) Offset(pos uint16) (uint16, bool) {
	var off uint16
	switch r.Positioning {
	case Absolute:
		if pos < r.start {
			return 0, false
		}
		off = pos - r.start
	default:
		off = pos
	}
	return off, off < r.length
}
