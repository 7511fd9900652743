// Simulated stage hardware
//
// SimMotor and SimPort satisfy the capability interfaces in software.
// Moves complete asynchronously after a short delay, on a separate
// goroutine, reproducing the two-context execution model of the real
// drivers. Used by the tests and by radscan-host -sim.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package stage

import (
	"sync"
	"time"
)

// SimMotor is a software stepper driver.
type SimMotor struct {
	mu       sync.Mutex
	position int
	velocity int
	rampUp   int
	rampDown int
	enabled  bool
	braked   int // moves cancelled by FullBrake
	gen      uint64
	cb       func()
	delay    time.Duration
}

// NewSimMotor creates a simulated motor completing moves after delay.
func NewSimMotor(delay time.Duration) *SimMotor {
	return &SimMotor{enabled: true, delay: delay}
}

func (m *SimMotor) SetRelativeSteps(n int) {
	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	go func() {
		time.Sleep(m.delay)
		m.mu.Lock()
		if m.gen != gen || !m.enabled {
			m.mu.Unlock()
			return
		}
		m.position += n
		cb := m.cb
		m.mu.Unlock()
		if cb != nil {
			cb()
		}
	}()
}

func (m *SimMotor) SetMaxVelocity(v int) {
	m.mu.Lock()
	m.velocity = v
	m.mu.Unlock()
}

func (m *SimMotor) SetRampRates(up, down int) {
	m.mu.Lock()
	m.rampUp, m.rampDown = up, down
	m.mu.Unlock()
}

func (m *SimMotor) Enable() {
	m.mu.Lock()
	m.enabled = true
	m.mu.Unlock()
}

func (m *SimMotor) Disable() {
	m.mu.Lock()
	m.enabled = false
	m.mu.Unlock()
}

// FullBrake cancels any pending move without updating the position.
func (m *SimMotor) FullBrake() {
	m.mu.Lock()
	m.gen++
	m.braked++
	m.mu.Unlock()
}

func (m *SimMotor) CurrentPosition() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

func (m *SimMotor) SetCurrentPosition(pos int) {
	m.mu.Lock()
	m.position = pos
	m.mu.Unlock()
}

func (m *SimMotor) OnPositionReached(fn func()) {
	m.mu.Lock()
	m.cb = fn
	m.mu.Unlock()
}

// Velocity returns the last commanded velocity.
func (m *SimMotor) Velocity() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.velocity
}

// Enabled reports the drive state.
func (m *SimMotor) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// Brakes returns how many moves were cancelled by FullBrake.
func (m *SimMotor) Brakes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.braked
}

// SimPort is a software end-stop input port with a scriptable mask.
type SimPort struct {
	mu   sync.Mutex
	mask byte
	cb   func(mask byte)
}

// NewSimPort creates a port with all switches open.
func NewSimPort() *SimPort {
	return &SimPort{mask: MaskAllOpen}
}

func (p *SimPort) ReadPort() byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mask
}

func (p *SimPort) OnInterrupt(fn func(mask byte)) {
	p.mu.Lock()
	p.cb = fn
	p.mu.Unlock()
}

// SetMask changes the port reading and fires the interrupt callback
// with the new mask.
func (p *SimPort) SetMask(mask byte) {
	p.mu.Lock()
	p.mask = mask
	cb := p.cb
	p.mu.Unlock()
	if cb != nil {
		cb(mask)
	}
}
