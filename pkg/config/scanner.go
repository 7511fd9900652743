// Typed scanner configuration schema
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package config

import (
	"radscan-go-migration/pkg/errors"
)

// StageConfig holds the geometry and motion constants of the stage.
type StageConfig struct {
	// StepsPerUnit is the corner-kinematics factor: steps of one
	// corner motor per length unit of combined x+y (or x-y) travel.
	// Derived from the mechanical linkage, not independently tunable.
	StepsPerUnit float64

	// ParkX, ParkY is the position driven to at scan end.
	ParkX float64
	ParkY float64

	// RetractSteps is the fixed back-off distance after first
	// end-stop contact.
	RetractSteps int

	// RetractVelocity is used for the first retraction,
	// RetryVelocity for re-retractions after switch bounce.
	RetractVelocity int
	RetryVelocity   int

	// TraverseSteps is the long homing traversal command length.
	TraverseSteps int

	// ZBackoffSteps clears a Z end-stop that closed out of sequence.
	ZBackoffSteps int

	// ZMax bounds z travel in cm; targets outside [0, ZMax] are
	// rejected.
	ZMax float64

	// IdleVelocity is used for manual moves in idle mode.
	IdleVelocity int
}

// StepperConfig holds per-motor drive parameters.
type StepperConfig struct {
	Velocity  int
	RampUp    int
	RampDown  int
	CurrentMA int
}

// ScanConfig describes one scan job.
type ScanConfig struct {
	Name     string
	Comment  string
	Size     int
	XStart   float64
	YStart   float64
	Averages int

	// SliceList is the z position (cm) per slice; IntTimeList the
	// matching integration time (ms). Lengths must agree.
	SliceList   []float64
	IntTimeList []float64
}

// PSUConfig describes the bench power supply. Optional.
type PSUConfig struct {
	Device  string
	Baud    int
	Voltage float64
	Current float64
	Memory  int
}

// APIConfig describes the status API listener. Optional.
type APIConfig struct {
	Listen string
}

// OutputConfig describes result persistence.
type OutputConfig struct {
	ResultsDir string
	WriteLog   bool
}

// HostConfig is the full parsed scanner configuration.
type HostConfig struct {
	Stage    StageConfig
	StepperA StepperConfig
	StepperB StepperConfig
	StepperZ StepperConfig
	Scan     ScanConfig
	PSU      *PSUConfig
	API      *APIConfig
	Output   OutputConfig
}

// LoadHost builds the typed host configuration from a parsed Config.
// A slicelist whose length differs from int_time_list is fatal here,
// before any hardware action.
func LoadHost(c *Config) (*HostConfig, error) {
	hc := &HostConfig{}

	stage, err := c.GetSection("stage")
	if err != nil {
		return nil, err
	}
	if err := loadStage(stage, &hc.Stage); err != nil {
		return nil, err
	}

	for _, m := range []struct {
		section string
		dest    *StepperConfig
	}{
		{"stepper_a", &hc.StepperA},
		{"stepper_b", &hc.StepperB},
		{"stepper_z", &hc.StepperZ},
	} {
		sec, err := c.GetSection(m.section)
		if err != nil {
			return nil, err
		}
		if err := loadStepper(sec, m.dest); err != nil {
			return nil, err
		}
	}

	scan, err := c.GetSection("scan")
	if err != nil {
		return nil, err
	}
	if err := loadScan(scan, &hc.Scan); err != nil {
		return nil, err
	}

	if psu := c.GetSectionOptional("power_supply"); psu != nil {
		hc.PSU = &PSUConfig{}
		if err := loadPSU(psu, hc.PSU); err != nil {
			return nil, err
		}
	}

	if api := c.GetSectionOptional("api"); api != nil {
		listen, err := api.Get("listen", ":7125")
		if err != nil {
			return nil, err
		}
		hc.API = &APIConfig{Listen: listen}
	}

	out, err := c.GetSection("output")
	if err != nil {
		return nil, err
	}
	if hc.Output.ResultsDir, err = out.Get("results_dir"); err != nil {
		return nil, err
	}
	if hc.Output.WriteLog, err = out.GetBool("write_log", true); err != nil {
		return nil, err
	}

	return hc, nil
}

func loadStage(s *Section, dest *StageConfig) error {
	var err error
	if dest.StepsPerUnit, err = s.GetFloat("steps_per_unit", 343.33); err != nil {
		return err
	}
	if dest.ParkX, err = s.GetFloat("park_x", 0.2); err != nil {
		return err
	}
	if dest.ParkY, err = s.GetFloat("park_y", 0.2); err != nil {
		return err
	}
	if dest.RetractSteps, err = s.GetInt("retract_steps", 160); err != nil {
		return err
	}
	if dest.RetractVelocity, err = s.GetInt("retract_velocity", 2000); err != nil {
		return err
	}
	if dest.RetryVelocity, err = s.GetInt("retry_velocity", 1000); err != nil {
		return err
	}
	if dest.TraverseSteps, err = s.GetInt("traverse_steps", 100000); err != nil {
		return err
	}
	if dest.ZBackoffSteps, err = s.GetInt("z_backoff_steps", -21000); err != nil {
		return err
	}
	if dest.ZMax, err = s.GetFloat("z_max", 55.0); err != nil {
		return err
	}
	if dest.IdleVelocity, err = s.GetInt("idle_velocity", 2000); err != nil {
		return err
	}
	return nil
}

func loadStepper(s *Section, dest *StepperConfig) error {
	var err error
	if dest.Velocity, err = s.GetInt("velocity"); err != nil {
		return err
	}
	if dest.RampUp, err = s.GetInt("ramp_up", dest.Velocity); err != nil {
		return err
	}
	if dest.RampDown, err = s.GetInt("ramp_down", dest.RampUp); err != nil {
		return err
	}
	if dest.CurrentMA, err = s.GetInt("current_ma", 0); err != nil {
		return err
	}
	return nil
}

func loadScan(s *Section, dest *ScanConfig) error {
	var err error
	if dest.Name, err = s.Get("name"); err != nil {
		return err
	}
	if dest.Comment, err = s.Get("comment", ""); err != nil {
		return err
	}
	if dest.Size, err = s.GetInt("size"); err != nil {
		return err
	}
	if dest.Size < 1 {
		return errors.ConfigTypeError("scan", "size", "", "positive integer", nil)
	}
	if dest.XStart, err = s.GetFloat("x_start", 0); err != nil {
		return err
	}
	if dest.YStart, err = s.GetFloat("y_start", 0); err != nil {
		return err
	}
	if dest.Averages, err = s.GetInt("averages", 1); err != nil {
		return err
	}
	if dest.SliceList, err = s.GetFloatList("slicelist"); err != nil {
		return err
	}
	if dest.IntTimeList, err = s.GetFloatList("int_time_list"); err != nil {
		return err
	}
	if len(dest.SliceList) != len(dest.IntTimeList) {
		return errors.SliceMismatchError(len(dest.SliceList), len(dest.IntTimeList))
	}
	return nil
}

func loadPSU(s *Section, dest *PSUConfig) error {
	var err error
	if dest.Device, err = s.Get("device"); err != nil {
		return err
	}
	if dest.Baud, err = s.GetInt("baud", 9600); err != nil {
		return err
	}
	if dest.Voltage, err = s.GetFloat("voltage", 12.0); err != nil {
		return err
	}
	if dest.Current, err = s.GetFloat("current", 1.0); err != nil {
		return err
	}
	if dest.Memory, err = s.GetInt("memory", 0); err != nil {
		return err
	}
	return nil
}
