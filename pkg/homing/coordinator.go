// Interrupt-driven homing sequence
//
// The stage homes Y, then X, then Z against mechanical end-stops. The
// port interrupt delivers a mask at every switch edge; the mask, not
// stored flags, selects the next action. Per axis: long traversal
// until first contact, full brake, fixed retraction, re-approach at
// reduced velocity after the switch reopens, zero on second contact.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package homing

import (
	"context"
	"sync"

	"radscan-go-migration/pkg/errors"
	"radscan-go-migration/pkg/log"
	"radscan-go-migration/pkg/stage"
)

// State of the homing sequence.
type State int

const (
	Unhomed State = iota
	HomingY
	HomingX
	HomingZ
	Homed
	Failed
)

func (s State) String() string {
	switch s {
	case Unhomed:
		return "unhomed"
	case HomingY:
		return "homing_y"
	case HomingX:
		return "homing_x"
	case HomingZ:
		return "homing_z"
	case Homed:
		return "homed"
	case Failed:
		return "failed"
	}
	return "invalid"
}

// Mask bit assignment of the end-stop port: x is bit 0, y bit 1,
// z bit 2; a low bit means the switch is closed.

// Coordinator runs the homing state machine. It owns axis position
// state while the mode tracker is in homing mode; the scan worker
// never runs concurrently.
type Coordinator struct {
	stage  *stage.Stage
	status *stage.Status
	budget *Budget

	state    State
	retryX   int
	retryY   int
	zBackoff bool

	maskMu   sync.Mutex
	lastMask byte

	events chan Event
	logger *log.Logger
}

// NewCoordinator wires the coordinator to the stage's interrupt port.
func NewCoordinator(st *stage.Stage, status *stage.Status) *Coordinator {
	c := &Coordinator{
		stage:    st,
		status:   status,
		budget:   NewBudget(),
		state:    Unhomed,
		lastMask: st.Port.ReadPort(),
		events:   make(chan Event, 16),
		logger:   log.GetLogger("homing"),
	}
	st.Port.OnInterrupt(c.handleInterrupt)
	return c
}

// Budget exposes the homing token bag.
func (c *Coordinator) Budget() *Budget {
	return c.budget
}

// State returns the current homing state. Valid between Home calls;
// during Home it changes on the event loop.
func (c *Coordinator) State() State {
	return c.state
}

// Deliver injects an event into the coordinator's loop. Interrupts
// arrive here through handleInterrupt; tests and the simulated stage
// may inject directly.
func (c *Coordinator) Deliver(ev Event) {
	c.events <- ev
}

// handleInterrupt runs on the hardware event context. Outside homing
// mode a closing end-stop means uncontrolled travel into a mechanical
// stop: the implicated motor is halted immediately and the event is
// reported, never silently dropped. Opening edges are normal travel
// away from the home corner and pass without action.
func (c *Coordinator) handleInterrupt(mask byte) {
	c.maskMu.Lock()
	newlyClosed := c.lastMask &^ mask
	c.lastMask = mask
	c.maskMu.Unlock()

	if c.status.Mode() != stage.ModeHoming {
		if newlyClosed == 0 {
			// Switch released, nothing in danger.
			return
		}
		err := errors.UnexpectedTriggerError(mask, c.status.Mode().String())
		c.logger.WithError(err).Error("halting implicated motor")
		if newlyClosed&0x04 != 0 {
			c.stage.Z.Motor().FullBrake()
			c.stage.Z.Motor().Disable()
		}
		if newlyClosed&0x03 != 0 {
			c.stage.A.Motor().FullBrake()
			c.stage.B.Motor().FullBrake()
		}
		return
	}
	c.events <- EndstopTriggered{Mask: mask}
}

// Home runs the homing sequence to completion. Requires homing mode
// and a non-empty budget. Blocks until the stage is fully referenced,
// the context is cancelled, or the sequence fails.
func (c *Coordinator) Home(ctx context.Context) error {
	if err := c.status.Require("home", stage.ModeHoming); err != nil {
		return err
	}
	if c.budget.Remaining() == 0 {
		return errors.New(errors.ErrRehomeDenied,
			"already homed; reset the homing budget to home again")
	}

	c.state = Unhomed
	c.retryX, c.retryY = 0, 0
	c.zBackoff = false
	c.advance()

	for c.state != Homed && c.state != Failed {
		select {
		case ev := <-c.events:
			switch e := ev.(type) {
			case EndstopTriggered:
				c.onMask(e.Mask)
			case PositionReached:
				c.logger.WithField("axis", e.Axis).Debug("move completed during homing")
			}
		case <-ctx.Done():
			c.state = Failed
			return ctx.Err()
		}
	}

	if c.state == Failed {
		return errors.RuntimeError("homing sequence failed")
	}
	c.logger.Info("homing ended, budget %d", c.budget.Remaining())
	return nil
}

// advance reads the port and starts the step its mask selects.
func (c *Coordinator) advance() {
	mask := c.stage.Port.ReadPort()
	cfg := c.stage.Cfg

	switch stage.ClassifyMask(mask) {
	case stage.StepHomeY:
		c.logger.Info("homing y started")
		c.stage.EnableXY()
		c.stage.SetXYVelocity(cfg.RetractVelocity)
		c.stage.A.Motor().SetRelativeSteps(-cfg.TraverseSteps)
		c.stage.B.Motor().SetRelativeSteps(cfg.TraverseSteps)
		c.state = HomingY

	case stage.StepHomeX:
		c.logger.Info("homing x started")
		c.stage.SetXYVelocity(cfg.RetractVelocity)
		c.stage.A.Motor().SetRelativeSteps(-cfg.TraverseSteps)
		c.stage.B.Motor().SetRelativeSteps(-cfg.TraverseSteps)
		c.state = HomingX

	case stage.StepHomeZ:
		c.logger.Info("homing z started")
		c.stage.Z.Motor().SetRelativeSteps(cfg.TraverseSteps)
		c.state = HomingZ

	case stage.StepDone:
		c.logger.Info("homing finished")
		c.state = Homed

	case stage.StepBackoffZ:
		// The carriage sits on the Z stop out of sequence; clear it
		// before the XY axes can home.
		c.logger.Info("z end-stop closed out of sequence, backing off")
		c.zBackoff = true
		c.stage.Z.Motor().SetRelativeSteps(cfg.ZBackoffSteps)
		c.state = HomingZ

	default:
		err := errors.SensorAmbiguityError(mask)
		c.logger.WithError(err).Warn("no transition")
	}
}

// onMask handles one end-stop edge while homing.
func (c *Coordinator) onMask(mask byte) {
	switch c.state {
	case HomingY:
		c.onMaskY(mask)
	case HomingX:
		c.onMaskX(mask)
	case HomingZ:
		c.onMaskZ(mask)
	default:
		c.logger.Debug("edge ignored in state %s (mask %#08b)", c.state, mask)
	}
}

func (c *Coordinator) onMaskY(mask byte) {
	cfg := c.stage.Cfg
	switch mask {
	case stage.MaskYClosed:
		c.stage.A.Motor().FullBrake()
		c.stage.B.Motor().FullBrake()
		if c.retryY == 0 {
			c.logger.Info("y end-stop contact, retracting")
			c.stage.SetXYVelocity(cfg.RetractVelocity)
			c.stage.A.Motor().SetRelativeSteps(cfg.RetractSteps)
			c.stage.B.Motor().SetRelativeSteps(-cfg.RetractSteps)
			return
		}
		c.finalizeXY("y")

	case stage.MaskAllOpen:
		// Switch reopened during retraction. Re-approach at reduced
		// velocity; no retry ceiling exists.
		c.retryY++
		c.logger.Warn("y end-stop reopened, re-approaching (retry %d)", c.retryY)
		c.stage.SetXYVelocity(cfg.RetryVelocity)
		c.stage.A.Motor().SetRelativeSteps(-cfg.RetractSteps)
		c.stage.B.Motor().SetRelativeSteps(cfg.RetractSteps)
	}
}

func (c *Coordinator) onMaskX(mask byte) {
	cfg := c.stage.Cfg
	switch mask {
	case stage.MaskXYClosed:
		c.stage.A.Motor().FullBrake()
		c.stage.B.Motor().FullBrake()
		if c.retryX == 0 {
			c.logger.Info("x end-stop contact, retracting")
			c.stage.SetXYVelocity(cfg.RetractVelocity)
			c.stage.A.Motor().SetRelativeSteps(cfg.RetractSteps)
			c.stage.B.Motor().SetRelativeSteps(cfg.RetractSteps)
			return
		}
		c.finalizeXY("x")

	case stage.MaskYClosed:
		c.retryX++
		c.logger.Warn("x end-stop reopened, re-approaching (retry %d)", c.retryX)
		c.stage.SetXYVelocity(cfg.RetryVelocity)
		c.stage.A.Motor().SetRelativeSteps(-cfg.RetractSteps)
		c.stage.B.Motor().SetRelativeSteps(-cfg.RetractSteps)
	}
}

func (c *Coordinator) onMaskZ(mask byte) {
	switch mask {
	case stage.MaskHomeDone:
		// Disable/enable clears the driver fault latch before the
		// position counter is zeroed.
		c.stage.Z.Motor().FullBrake()
		c.stage.Z.Motor().Disable()
		c.stage.Z.Motor().Enable()
		c.stage.Z.Motor().SetCurrentPosition(0)
		c.budget.Consume()
		c.logger.Info("z homed")
		c.state = Homed

	case stage.MaskAllOpen:
		if c.zBackoff {
			c.zBackoff = false
			c.stage.Z.Motor().FullBrake()
			c.logger.Info("z end-stop cleared, resuming")
			c.advance()
		}
	}
}

// finalizeXY zeros both corner motors after the second contact of the
// named axis, consumes one budget token, and starts the next step.
func (c *Coordinator) finalizeXY(axis string) {
	c.stage.A.Motor().SetCurrentPosition(0)
	c.stage.B.Motor().SetCurrentPosition(0)
	c.budget.Consume()
	c.logger.Info("homing process %s finished", axis)
	c.advance()
}
