// Status object adapter for the API server
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package scanner

import (
	"context"

	"radscan-go-migration/pkg/errors"
	"radscan-go-migration/pkg/stage"
)

// GetObjectsList returns the available status objects.
func (s *Scanner) GetObjectsList() []string {
	return []string{"mode", "stage", "scan"}
}

// GetObjectStatus returns the status of one object. A nil attrs slice
// selects all attributes.
func (s *Scanner) GetObjectStatus(name string, attrs []string) map[string]any {
	var status map[string]any

	switch name {
	case "mode":
		status = map[string]any{
			"mode": s.status.Mode().String(),
		}

	case "stage":
		x, y := s.stage.Position()
		status = map[string]any{
			"position":   []float64{x, y},
			"z_position": s.stage.ZPosition(),
			"homed":      s.Homed(),
			"budget":     s.homing.Budget().Remaining(),
		}

	case "scan":
		status = s.scanStatus()

	default:
		return nil
	}

	if len(attrs) > 0 {
		filtered := make(map[string]any)
		for _, attr := range attrs {
			if val, ok := status[attr]; ok {
				filtered[attr] = val
			}
		}
		return filtered
	}
	return status
}

func (s *Scanner) scanStatus() map[string]any {
	s.mu.Lock()
	session := s.session
	slice := s.slice
	scanning := s.scanning
	s.mu.Unlock()

	state := "standby"
	if scanning {
		state = "scanning"
	}

	status := map[string]any{
		"state":       state,
		"name":        s.cfg.Scan.Name,
		"slice":       slice,
		"slices":      len(s.cfg.Scan.SliceList),
		"z_pos":       0.0,
		"measured":    0,
		"total":       s.cfg.Scan.Size * s.cfg.Scan.Size,
		"saturations": 0,
		"progress":    0.0,
	}

	if session != nil {
		total := session.Size * session.Size
		measured := session.Measured()
		status["z_pos"] = session.ZPos
		status["measured"] = measured
		status["saturations"] = session.Saturations()
		if total > 0 {
			status["progress"] = float64(measured) / float64(total)
		}
		if end, ok := session.EndEstimate(); ok {
			status["end_estimate"] = end
		}
	}
	return status
}

// StartScan launches the scan job in the background. Returns
// immediately; the wrong mode or an already running job fail here, a
// runtime failure surfaces through the host log and the scan state.
func (s *Scanner) StartScan() error {
	if err := s.status.Require("start_scan", stage.ModeIdle); err != nil {
		return err
	}

	s.mu.Lock()
	if s.scanning {
		s.mu.Unlock()
		return errors.RuntimeError("scan already running")
	}
	s.mu.Unlock()

	go func() {
		if err := s.RunScan(context.Background()); err != nil {
			s.logger.Error("scan job failed: %v", err)
		}
	}()
	return nil
}

// GetHostState reports the host lifecycle state.
func (s *Scanner) GetHostState() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		return "shutdown"
	}
	return "ready"
}
