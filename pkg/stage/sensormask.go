package stage

import "fmt"

// End-stop mask signatures. Each bit of the input port reflects one
// switch; closed switches pull their bit low.
const (
	// MaskAllOpen: no switch closed, homing starts with the Y axis.
	MaskAllOpen byte = 0xFF // 11111111

	// MaskYClosed: Y end-stop closed, X homing is next.
	MaskYClosed byte = 0xFD // 11111101

	// MaskXYClosed: X and Y closed, Z homing is next.
	MaskXYClosed byte = 0xFC // 11111100

	// MaskHomeDone: all three closed, homing sequence complete.
	MaskHomeDone byte = 0xF8 // 11111000

	// MaskZOnly: only the Z switch closed; the carriage sits on the Z
	// stop out of sequence and must back off before homing proceeds.
	MaskZOnly byte = 0xFB // 11111011
)

// HomingStep is the action a mask signature selects.
type HomingStep int

const (
	StepUnknown HomingStep = iota
	StepHomeY
	StepHomeX
	StepHomeZ
	StepDone
	StepBackoffZ
)

func (s HomingStep) String() string {
	switch s {
	case StepHomeY:
		return "home_y"
	case StepHomeX:
		return "home_x"
	case StepHomeZ:
		return "home_z"
	case StepDone:
		return "done"
	case StepBackoffZ:
		return "backoff_z"
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// ClassifyMask maps a port reading to the next homing step.
// Unrecognized patterns return StepUnknown; the coordinator logs them
// and stays pending.
func ClassifyMask(mask byte) HomingStep {
	switch mask {
	case MaskAllOpen:
		return StepHomeY
	case MaskYClosed:
		return StepHomeX
	case MaskXYClosed:
		return StepHomeZ
	case MaskHomeDone:
		return StepDone
	case MaskZOnly:
		return StepBackoffZ
	}
	return StepUnknown
}
