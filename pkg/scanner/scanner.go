// Scanner host facade
//
// Ties the stage, the homing coordinator, the scan worker, the power
// supply, and the result writer into one controller. The mode tracker
// serializes the three phases: manual motion runs in idle, the homing
// sequence in homing, the scan worker in measuring.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package scanner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"radscan-go-migration/pkg/config"
	"radscan-go-migration/pkg/errors"
	"radscan-go-migration/pkg/export"
	"radscan-go-migration/pkg/homing"
	"radscan-go-migration/pkg/log"
	"radscan-go-migration/pkg/psu"
	"radscan-go-migration/pkg/scan"
	"radscan-go-migration/pkg/stage"
)

// Config assembles the scanner host from its collaborators. Supply,
// Notifier and Capture are optional.
type Config struct {
	Host     *config.HostConfig
	Stage    *stage.Stage
	Acquirer scan.Acquirer
	Supply   *psu.Supply
	Notifier export.Notifier
	Capture  *log.CaptureBuffer
}

// Scanner is the host controller.
type Scanner struct {
	cfg      *config.HostConfig
	stage    *stage.Stage
	status   *stage.Status
	homing   *homing.Coordinator
	acquirer scan.Acquirer
	supply   *psu.Supply
	notifier export.Notifier
	capture  *log.CaptureBuffer

	mu       sync.Mutex
	session  *scan.Session // non-nil while a slice is measuring
	slice    int           // current slice index while scanning
	scanning bool
	shutdown bool

	logger *log.Logger
}

// New assembles the scanner host.
func New(cfg Config) *Scanner {
	status := stage.NewStatus()
	s := &Scanner{
		cfg:      cfg.Host,
		stage:    cfg.Stage,
		status:   status,
		homing:   homing.NewCoordinator(cfg.Stage, status),
		acquirer: cfg.Acquirer,
		supply:   cfg.Supply,
		notifier: cfg.Notifier,
		capture:  cfg.Capture,
		logger:   log.GetLogger("scanner"),
	}
	if s.notifier == nil {
		s.notifier = export.NewLogNotifier()
	}
	return s
}

// Mode returns the current operating mode.
func (s *Scanner) Mode() stage.Mode {
	return s.status.Mode()
}

// Homed reports whether the stage is fully referenced.
func (s *Scanner) Homed() bool {
	return s.homing.Budget().Remaining() == 0
}

// CurrentPosition returns the carriage position in cm.
func (s *Scanner) CurrentPosition() (x, y float64) {
	return s.stage.Position()
}

// ZPosition returns the z position in cm.
func (s *Scanner) ZPosition() float64 {
	return s.stage.ZPosition()
}

// GotoPosition drives the carriage to (x, y) at the idle velocity and
// blocks until the move completes. Idle mode only, on a referenced
// stage.
func (s *Scanner) GotoPosition(x, y float64) error {
	if err := s.status.Require("goto_position", stage.ModeIdle); err != nil {
		return err
	}
	if !s.Homed() {
		return errors.RuntimeError("stage not referenced, home first")
	}

	s.stage.SetXYVelocity(s.cfg.Stage.IdleVelocity)
	s.stage.MoveTo(x, y)
	s.stage.JoinXY()
	s.logger.Info("moved to %.3f/%.3f", x, y)
	return nil
}

// GotoZ drives the z axis to z cm and blocks until the move completes.
// Idle mode only, on a referenced stage.
func (s *Scanner) GotoZ(z float64) error {
	if err := s.status.Require("goto_z", stage.ModeIdle); err != nil {
		return err
	}
	if !s.Homed() {
		return errors.RuntimeError("stage not referenced, home first")
	}

	if err := s.stage.MoveZTo(z); err != nil {
		return err
	}
	s.stage.JoinZ()
	s.logger.Info("moved to z %.2f", z)
	return nil
}

// ManualHome runs the homing sequence from idle mode and returns the
// stage to idle afterwards.
func (s *Scanner) ManualHome(ctx context.Context) error {
	if err := s.status.Require("home", stage.ModeIdle); err != nil {
		return err
	}
	return s.home(ctx)
}

// home switches to homing mode, runs the sequence, rearms the axes
// with their scan drive parameters, and returns to idle.
func (s *Scanner) home(ctx context.Context) error {
	s.status.ChangeMode(stage.ModeHoming)
	s.stage.Disarm()

	err := s.homing.Home(ctx)
	if err == nil {
		// Position-reached callbacks feed the barriers only from here
		// on; the homing moves above never touched them.
		s.stage.Arm()
		s.restoreVelocities()
	}
	s.status.ChangeMode(stage.ModeIdle)
	return err
}

// restoreVelocities reapplies the configured drive parameters after
// homing changed them.
func (s *Scanner) restoreVelocities() {
	s.stage.A.Motor().SetMaxVelocity(s.cfg.StepperA.Velocity)
	s.stage.B.Motor().SetMaxVelocity(s.cfg.StepperB.Velocity)
	s.stage.Z.Motor().SetMaxVelocity(s.cfg.StepperZ.Velocity)
}

// ResetHomingBudget refills the homing budget so the stage can be
// homed again. Fails while the budget is not fully consumed.
func (s *Scanner) ResetHomingBudget() error {
	return s.homing.Budget().Reset()
}

// RunScan executes the full scan job: one slice per entry of the
// slicelist, homing the stage before the first slice, writing each
// finished slice to the results directory. Blocks until the job ends.
func (s *Scanner) RunScan(ctx context.Context) error {
	if err := s.status.Require("start_scan", stage.ModeIdle); err != nil {
		return err
	}

	s.mu.Lock()
	if s.scanning {
		s.mu.Unlock()
		return errors.RuntimeError("scan already running")
	}
	s.scanning = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.scanning = false
		s.session = nil
		s.mu.Unlock()
	}()

	writer, err := export.NewWriter(s.cfg.Output.ResultsDir, s.cfg.Scan.Name, s.capture, s.notifier)
	if err != nil {
		return err
	}
	s.logger.Info("scan job %q started, %d slices, results in %s",
		s.cfg.Scan.Name, len(s.cfg.Scan.SliceList), writer.RunDir())

	for i, zPos := range s.cfg.Scan.SliceList {
		if err := ctx.Err(); err != nil {
			return err
		}
		intTime := s.cfg.Scan.IntTimeList[i]

		s.mu.Lock()
		s.slice = i
		s.mu.Unlock()

		if err := s.runSlice(ctx, writer, zPos, intTime); err != nil {
			s.notifier.Notify(
				fmt.Sprintf("SCAN STATUS: %s failed", s.cfg.Scan.Name),
				fmt.Sprintf("Slice %d (z=%.2f) aborted: %v", i, zPos, err))
			return fmt.Errorf("slice %d (z=%.2f): %w", i, zPos, err)
		}
	}

	s.logger.Info("scan job %q complete", s.cfg.Scan.Name)
	s.notifier.Notify(
		fmt.Sprintf("SCAN STATUS: %s finished", s.cfg.Scan.Name),
		fmt.Sprintf("All %d slices done, results in %s", len(s.cfg.Scan.SliceList), writer.RunDir()))
	return nil
}

// runSlice homes if needed, positions z, measures the grid, and
// exports the result.
func (s *Scanner) runSlice(ctx context.Context, writer *export.Writer, zPos, intTime float64) error {
	if !s.Homed() {
		if err := s.home(ctx); err != nil {
			return err
		}
	}

	// Lamp power is cycled per slice so an aborted job never leaves
	// the source burning.
	if s.supply != nil {
		if err := s.supply.Arm(); err != nil {
			return err
		}
		defer s.supply.OutputOff()
	}

	if err := s.stage.MoveZTo(zPos); err != nil {
		return err
	}
	s.stage.JoinZ()

	session := scan.NewSession(s.cfg.Scan, zPos, intTime)
	session.OnEstimate = func(end time.Time) {
		s.notifier.Notify(
			fmt.Sprintf("SCAN STATUS: %s, z position: %.2f", session.Name, zPos),
			fmt.Sprintf("Approx end time: %s", end.Format("Monday, 02. Jan 15:04:05")))
	}
	s.logger.Info("slice started: %s", session.Describe())

	s.mu.Lock()
	s.session = session
	s.mu.Unlock()

	s.status.ChangeMode(stage.ModeMeasuring)
	worker := scan.NewWorker(s.stage, s.status, s.acquirer, session)
	worker.Feed(scan.NewPlan(s.cfg.Scan.Size, s.cfg.Scan.XStart, s.cfg.Scan.YStart))
	err := worker.Run()
	s.status.ChangeMode(stage.ModeIdle)

	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()

	if err != nil {
		return err
	}

	_, err = writer.WriteSlice(session)
	return err
}

// EmergencyStop halts all motion immediately and de-energizes the
// motors. The host drops back to idle; the stage must be re-homed
// before the next scan.
func (s *Scanner) EmergencyStop() {
	s.logger.Warn("emergency stop")
	for _, m := range []stage.Motor{s.stage.A.Motor(), s.stage.B.Motor(), s.stage.Z.Motor()} {
		m.FullBrake()
		m.Disable()
	}
	if s.supply != nil {
		s.supply.OutputOff()
	}
	s.status.ChangeMode(stage.ModeIdle)
}

// Close de-energizes the stage and releases the power supply.
func (s *Scanner) Close() error {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()

	s.stage.DisableAll()
	if s.supply != nil {
		return s.supply.Close()
	}
	return nil
}
