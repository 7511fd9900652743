// Hardware capability contracts
//
// The coordinator and worker never talk to a concrete driver. They
// consume these two interfaces, implemented by the real stepper cards
// and I/O module or by the simulated stage.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package stage

// Motor is the contract a stepper driver must satisfy.
type Motor interface {
	// SetRelativeSteps commands a move of n signed steps. Completion
	// is reported through the OnPositionReached callback.
	SetRelativeSteps(n int)

	// SetMaxVelocity sets the travel velocity in steps/s.
	SetMaxVelocity(v int)

	// SetRampRates sets acceleration and deceleration.
	SetRampRates(up, down int)

	Enable()
	Disable()

	// FullBrake stops immediately, discarding any pending move.
	FullBrake()

	CurrentPosition() int
	SetCurrentPosition(pos int)

	// OnPositionReached registers the completion callback. The
	// callback runs on the hardware event context, concurrently with
	// the sequential scan context.
	OnPositionReached(fn func())
}

// DigitalInput is the contract of the end-stop input port.
type DigitalInput interface {
	// ReadPort returns the current 8-bit end-stop mask.
	ReadPort() byte

	// OnInterrupt registers the edge callback, delivering the mask at
	// the time of the edge. Runs on the hardware event context.
	OnInterrupt(fn func(mask byte))
}
