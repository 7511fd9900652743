package stage

import (
	"sync/atomic"

	"radscan-go-migration/pkg/barrier"
	"radscan-go-migration/pkg/config"
	"radscan-go-migration/pkg/log"
)

// Axis binds one motor to its completion barrier. Position-reached
// events release the barrier only while the axis is armed: during
// homing the coordinator drives the motors directly and contact
// interrupts, not completions, advance the sequence.
type Axis struct {
	name    string
	motor   Motor
	barrier *barrier.SyncBarrier
	armed   atomic.Bool
	logger  *log.Logger
}

// NewAxis wires a motor with its drive parameters and barrier.
func NewAxis(name string, m Motor, cfg config.StepperConfig) *Axis {
	a := &Axis{
		name:    name,
		motor:   m,
		barrier: barrier.New(name),
		logger:  log.GetLogger(name),
	}
	m.SetMaxVelocity(cfg.Velocity)
	m.SetRampRates(cfg.RampUp, cfg.RampDown)
	m.OnPositionReached(a.positionReached)
	return a
}

func (a *Axis) positionReached() {
	if !a.armed.Load() {
		a.logger.Debug("position reached while disarmed")
		return
	}
	if err := a.barrier.Release(barrier.None); err != nil {
		a.logger.WithError(err).Warn("completion without matching command")
	}
}

// Arm routes position-reached events into the barrier.
func (a *Axis) Arm() { a.armed.Store(true) }

// Disarm detaches position-reached events from the barrier.
func (a *Axis) Disarm() { a.armed.Store(false) }

// Move acquires one barrier token and commands a relative move.
func (a *Axis) Move(steps int) {
	a.barrier.Acquire()
	a.motor.SetRelativeSteps(steps)
}

// Join blocks until every commanded move has completed.
func (a *Axis) Join() { a.barrier.Join() }

// Name returns the axis name.
func (a *Axis) Name() string { return a.name }

// Motor exposes the underlying driver for direct homing commands.
func (a *Axis) Motor() Motor { return a.motor }

// Barrier exposes the completion barrier.
func (a *Axis) Barrier() *barrier.SyncBarrier { return a.barrier }
