// Operating mode state machine
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package stage

import (
	"sync"

	"radscan-go-migration/pkg/errors"
	"radscan-go-migration/pkg/log"
)

// Mode is the mutually exclusive operating phase of the scanner.
type Mode int

const (
	ModeIdle Mode = iota
	ModeHoming
	ModeMeasuring
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeHoming:
		return "homing"
	case ModeMeasuring:
		return "measuring"
	}
	return "invalid"
}

// Status tracks the current mode. The homing coordinator runs only in
// homing mode, the scan worker only in measuring mode, and manual
// motion commands only in idle mode. Every transition is logged.
type Status struct {
	mu     sync.RWMutex
	mode   Mode
	logger *log.Logger
}

// NewStatus creates a mode tracker starting in idle.
func NewStatus() *Status {
	return &Status{
		mode:   ModeIdle,
		logger: log.GetLogger("mode"),
	}
}

// Mode returns the current mode.
func (s *Status) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// ChangeMode switches to a new mode and logs the transition.
func (s *Status) ChangeMode(to Mode) {
	s.mu.Lock()
	from := s.mode
	s.mode = to
	s.mu.Unlock()

	s.logger.WithField("from", from.String()).
		WithField("to", to.String()).
		Info("mode changed")
}

// Require rejects op unless the current mode matches want.
func (s *Status) Require(op string, want Mode) error {
	s.mu.RLock()
	current := s.mode
	s.mu.RUnlock()

	if current != want {
		return errors.ModeError(op, current.String(), want.String())
	}
	return nil
}
