// Corner kinematics for the coupled XY drive
//
// The two XY motors drive the carriage through a corner linkage: one
// motor follows x+y, the other x-y. The factor is fixed by the
// mechanics.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package stage

// CornerTransform converts between carriage coordinates (cm) and
// corner motor step positions.
type CornerTransform struct {
	// StepsPerUnit is the step count per cm of combined travel.
	StepsPerUnit float64
}

// ToSteps returns the absolute step targets of both corner motors for
// a carriage position.
func (t CornerTransform) ToSteps(x, y float64) (a, b int) {
	a = int(t.StepsPerUnit * (x + y))
	b = int(t.StepsPerUnit * (x - y))
	return a, b
}

// ToPosition inverts the transform: carriage position from the two
// corner step counters.
func (t CornerTransform) ToPosition(a, b int) (x, y float64) {
	x = 0.5 * (float64(a) + float64(b)) / t.StepsPerUnit
	y = 0.5 * (float64(a) - float64(b)) / t.StepsPerUnit
	return x, y
}

// ZTransform converts between z position (cm) and z motor steps. The
// z drive moves in the negative step direction.
type ZTransform struct {
	StepsPerCM float64
}

// ToSteps returns the absolute step target for a z position.
func (t ZTransform) ToSteps(z float64) int {
	return -int(z*t.StepsPerCM + 0.5)
}

// ToPosition returns the z position for a step counter reading.
func (t ZTransform) ToPosition(steps int) float64 {
	return float64(-steps) / t.StepsPerCM
}

// DefaultZStepsPerCM: 6400 steps per 0.3 cm of z travel.
const DefaultZStepsPerCM = 6400.0 / 0.3
