// Stage assembly: two corner motors, a z drive, and the end-stop port
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package stage

import (
	"radscan-go-migration/pkg/config"
	"radscan-go-migration/pkg/errors"
	"radscan-go-migration/pkg/log"
)

// Stage aggregates the three axes and the end-stop input port.
// Position state is mutated only by the homing coordinator (while
// homing) or the scan worker (while measuring); the mode tracker
// enforces that they never run concurrently.
type Stage struct {
	A *Axis
	B *Axis
	Z *Axis

	Port   DigitalInput
	Corner CornerTransform
	ZDrive ZTransform
	Cfg    config.StageConfig

	logger *log.Logger
}

// NewStage assembles a stage from three motor drivers and the input
// port.
func NewStage(a, b, z Motor, port DigitalInput, hc *config.HostConfig) *Stage {
	return &Stage{
		A:      NewAxis("stepper_a", a, hc.StepperA),
		B:      NewAxis("stepper_b", b, hc.StepperB),
		Z:      NewAxis("stepper_z", z, hc.StepperZ),
		Port:   port,
		Corner: CornerTransform{StepsPerUnit: hc.Stage.StepsPerUnit},
		ZDrive: ZTransform{StepsPerCM: DefaultZStepsPerCM},
		Cfg:    hc.Stage,
		logger: log.GetLogger("stage"),
	}
}

// Position returns the current carriage position in cm.
func (s *Stage) Position() (x, y float64) {
	return s.Corner.ToPosition(s.A.Motor().CurrentPosition(), s.B.Motor().CurrentPosition())
}

// ZPosition returns the current z position in cm.
func (s *Stage) ZPosition() float64 {
	return s.ZDrive.ToPosition(s.Z.Motor().CurrentPosition())
}

// SetXYVelocity applies one velocity to both corner motors.
func (s *Stage) SetXYVelocity(v int) {
	s.A.Motor().SetMaxVelocity(v)
	s.B.Motor().SetMaxVelocity(v)
}

// MoveTo commands both corner motors toward the carriage position
// (x, y), acquiring one barrier token per motor. The caller joins both
// barriers, never a combined one.
func (s *Stage) MoveTo(x, y float64) {
	ta, tb := s.Corner.ToSteps(x, y)
	s.A.Move(ta - s.A.Motor().CurrentPosition())
	s.B.Move(tb - s.B.Motor().CurrentPosition())
}

// JoinXY blocks until both corner motors have completed all commanded
// moves.
func (s *Stage) JoinXY() {
	s.A.Join()
	s.B.Join()
}

// MoveZTo commands the z drive toward z cm. Targets outside the
// travel range are rejected.
func (s *Stage) MoveZTo(z float64) error {
	if z < 0 || z > s.Cfg.ZMax {
		err := errors.ZBoundsError(z, 0, s.Cfg.ZMax)
		s.logger.WithError(err).Error("z move rejected")
		return err
	}
	target := s.ZDrive.ToSteps(z)
	s.Z.Move(target - s.Z.Motor().CurrentPosition())
	return nil
}

// JoinZ blocks until the z drive has completed all commanded moves.
func (s *Stage) JoinZ() {
	s.Z.Join()
}

// Park drives the carriage to the configured park position.
func (s *Stage) Park() {
	s.MoveTo(s.Cfg.ParkX, s.Cfg.ParkY)
}

// Arm routes completion events of all axes into their barriers.
func (s *Stage) Arm() {
	s.A.Arm()
	s.B.Arm()
	s.Z.Arm()
}

// Disarm detaches completion events of all axes.
func (s *Stage) Disarm() {
	s.A.Disarm()
	s.B.Disarm()
	s.Z.Disarm()
}

// EnableXY energizes the corner motors.
func (s *Stage) EnableXY() {
	s.A.Motor().Enable()
	s.B.Motor().Enable()
}

// DisableAll de-energizes all three motors.
func (s *Stage) DisableAll() {
	s.A.Motor().Disable()
	s.B.Motor().Disable()
	s.Z.Motor().Disable()
}
