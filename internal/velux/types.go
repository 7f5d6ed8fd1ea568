package velux

// Position is a raw KLF200 main-parameter value. The gateway encodes
// percentages in steps of 512: 0x0000 is 0% and 0xC800 is 100%. Values
// above 0xC800 mean the position is unknown or not applicable.
type Position uint16

// positionMax is the raw value for 100%.
const positionMax = 0xC800

// PositionUnknown is the raw value the gateway reports when a node's
// position has never been determined.
const PositionUnknown Position = 0xF7FF

// Known reports whether the position carries a usable percentage.
func (p Position) Known() bool {
	return p <= positionMax
}

// Percent converts a raw position to a whole percentage. Callers must
// check Known first; unknown positions report 0.
func (p Position) Percent() int {
	if !p.Known() {
		return 0
	}
	return int(p) / 512
}

// PositionFromPercent converts a percentage to the raw wire value.
// Values outside 0..100 are clamped.
func PositionFromPercent(percent int) Position {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return Position(percent * 512)
}

// Node is an actuator in the gateway's system table.
type Node struct {
	ID       uint8
	Name     string
	TypeSub  uint16
	Position Position
}

// Type returns the node type, the upper ten bits of the combined
// type/subtype field.
func (n Node) Type() uint16 {
	return n.TypeSub >> 6
}

// Node types for devices that open and close, per the KLF200 system
// table: interior venetian blind, roller shutter, vertical exterior
// awning, window opener, garage door opener, gate opener, dual roller
// shutter and exterior venetian blind.
var openingDeviceTypes = map[uint16]bool{
	1:  true,
	2:  true,
	3:  true,
	4:  true,
	5:  true,
	7:  true,
	10: true,
	13: true,
}

// IsOpeningDevice reports whether the node is a motorized opening
// device. Lights, switches and sensors are excluded from the bridge.
func (n Node) IsOpeningDevice() bool {
	return openingDeviceTypes[n.Type()]
}
