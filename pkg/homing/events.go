package homing

// Event is a typed hardware notification delivered into the
// coordinator's event loop. Replaces shared boolean flags set from
// the interrupt context.
type Event interface {
	isEvent()
}

// EndstopTriggered carries the port mask at the interrupt edge.
type EndstopTriggered struct {
	Mask byte
}

func (EndstopTriggered) isEvent() {}

// PositionReached reports a completed motor move.
type PositionReached struct {
	Axis string
}

func (PositionReached) isEvent() {}
