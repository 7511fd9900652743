// Korad-style bench power supply driver
//
// The supply speaks a terse ASCII protocol over serial: VSET1:/ISET1:
// program channel 1, OUT1/OUT0 switch the output, RCL/SAV address the
// memory slots. Commands need a short settle gap; the device answers
// only queries.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package psu

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"radscan-go-migration/pkg/config"
	"radscan-go-migration/pkg/errors"
	"radscan-go-migration/pkg/log"
	"radscan-go-migration/pkg/serial"
)

// commandGap is the settle time between commands; the firmware drops
// bytes that arrive faster.
const commandGap = 50 * time.Millisecond

// Supply drives one bench power supply.
type Supply struct {
	mu     sync.Mutex
	rw     io.ReadWriter
	closer io.Closer
	cfg    config.PSUConfig
	gap    time.Duration
	logger *log.Logger
}

// Open connects to the supply on its serial device.
func Open(cfg config.PSUConfig) (*Supply, error) {
	port, err := serial.Open(serial.Config{
		Device:   cfg.Device,
		BaudRate: cfg.Baud,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrRuntimeInit, "power supply serial port")
	}
	s := NewSupply(port, cfg)
	s.closer = port
	return s, nil
}

// NewSupply wraps an existing transport; used by tests.
func NewSupply(rw io.ReadWriter, cfg config.PSUConfig) *Supply {
	return &Supply{
		rw:     rw,
		cfg:    cfg,
		gap:    commandGap,
		logger: log.GetLogger("psu"),
	}
}

func (s *Supply) send(cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.rw.Write([]byte(cmd)); err != nil {
		return errors.Wrap(err, errors.ErrRuntime, fmt.Sprintf("power supply command %q", cmd))
	}
	time.Sleep(s.gap)
	return nil
}

func (s *Supply) query(cmd string) (string, error) {
	if err := s.send(cmd); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, 64)
	n, err := s.rw.Read(buf)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrRuntime, fmt.Sprintf("power supply query %q", cmd))
	}
	return strings.TrimRight(string(buf[:n]), "\x00 \r\n"), nil
}

// Identify returns the device identification string.
func (s *Supply) Identify() (string, error) {
	return s.query("*IDN?")
}

// SetVoltage programs the channel 1 voltage in volts.
func (s *Supply) SetVoltage(v float64) error {
	return s.send(fmt.Sprintf("VSET1:%05.2f", v))
}

// SetCurrent programs the channel 1 current limit in amperes.
func (s *Supply) SetCurrent(i float64) error {
	return s.send(fmt.Sprintf("ISET1:%05.3f", i))
}

// OutputOn switches the output on.
func (s *Supply) OutputOn() error {
	s.logger.Info("output on")
	return s.send("OUT1")
}

// OutputOff switches the output off.
func (s *Supply) OutputOff() error {
	s.logger.Info("output off")
	return s.send("OUT0")
}

// Recall loads a memory slot (1-5).
func (s *Supply) Recall(slot int) error {
	if slot < 1 || slot > 5 {
		return errors.RuntimeError(fmt.Sprintf("power supply memory slot %d out of range", slot))
	}
	return s.send(fmt.Sprintf("RCL%d", slot))
}

// Save stores the current settings into a memory slot (1-5).
func (s *Supply) Save(slot int) error {
	if slot < 1 || slot > 5 {
		return errors.RuntimeError(fmt.Sprintf("power supply memory slot %d out of range", slot))
	}
	return s.send(fmt.Sprintf("SAV%d", slot))
}

// Arm programs the configured setpoint and switches the output on, in
// the recall/program/save/recall order the supply expects so the
// settings survive in its memory slot.
func (s *Supply) Arm() error {
	if s.cfg.Memory > 0 {
		if err := s.Recall(s.cfg.Memory); err != nil {
			return err
		}
	}
	if err := s.SetVoltage(s.cfg.Voltage); err != nil {
		return err
	}
	if err := s.SetCurrent(s.cfg.Current); err != nil {
		return err
	}
	if s.cfg.Memory > 0 {
		if err := s.Save(s.cfg.Memory); err != nil {
			return err
		}
		if err := s.Recall(s.cfg.Memory); err != nil {
			return err
		}
	}
	s.logger.Info("armed at %.2f V / %.3f A", s.cfg.Voltage, s.cfg.Current)
	return s.OutputOn()
}

// Close switches the output off and releases the transport.
func (s *Supply) Close() error {
	if err := s.OutputOff(); err != nil {
		s.logger.Warn("output off on close: %v", err)
	}
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
