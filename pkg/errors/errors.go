// Unified error handling for the radscan host
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package errors

import (
	"fmt"
)

// ErrorCode represents the category of error
type ErrorCode string

const (
	// Configuration errors
	ErrConfigSection ErrorCode = "CONFIG_SECTION"
	ErrConfigOption  ErrorCode = "CONFIG_OPTION"
	ErrConfigType    ErrorCode = "CONFIG_TYPE"
	ErrConfigSlices  ErrorCode = "CONFIG_SLICES"

	// Mode / state machine errors
	ErrModeInvalid ErrorCode = "MODE_INVALID"

	// Homing errors
	ErrSensorAmbiguous   ErrorCode = "SENSOR_AMBIGUOUS"
	ErrUnexpectedTrigger ErrorCode = "UNEXPECTED_TRIGGER"
	ErrRehomeDenied      ErrorCode = "REHOME_DENIED"

	// Synchronization errors
	ErrBarrierMisuse ErrorCode = "BARRIER_MISUSE"

	// Motion errors
	ErrZBounds ErrorCode = "Z_BOUNDS"

	// Runtime errors
	ErrRuntime     ErrorCode = "RUNTIME"
	ErrRuntimeInit ErrorCode = "RUNTIME_INIT"
)

// HostError is the unified error type for the host system
type HostError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Section is the config section or component context
	Section string

	// Option is the config option name (if applicable)
	Option string

	// Err wraps the underlying error
	Err error
}

// Error implements the error interface
func (e *HostError) Error() string {
	if e.Section != "" {
		return fmt.Sprintf("[%s:%s] %s", e.Code, e.Section, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *HostError) Unwrap() error {
	return e.Err
}

// SetSection sets the context section
func (e *HostError) SetSection(section string) *HostError {
	e.Section = section
	return e
}

// SetOption sets the config option
func (e *HostError) SetOption(option string) *HostError {
	e.Option = option
	return e
}

// New creates a new HostError
func New(code ErrorCode, message string) *HostError {
	return &HostError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, code ErrorCode, message string) *HostError {
	return &HostError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Config errors

// ConfigSectionError creates an error for missing config section
func ConfigSectionError(section string) *HostError {
	return New(ErrConfigSection, fmt.Sprintf("section '%s' not found", section)).
		SetSection(section)
}

// ConfigOptionError creates an error for missing or invalid config option
func ConfigOptionError(section, option string) *HostError {
	return New(ErrConfigOption, fmt.Sprintf("option '%s' not found in section '%s'", option, section)).
		SetSection(section).
		SetOption(option)
}

// ConfigTypeError creates an error for config type conversion failure
func ConfigTypeError(section, option, value, targetType string, err error) *HostError {
	return Wrap(err, ErrConfigType, fmt.Sprintf("option '%s' in section '%s': failed to parse '%s' as %s", option, section, value, targetType)).
		SetSection(section).
		SetOption(option)
}

// SliceMismatchError creates an error for mismatched slice and
// integration-time list lengths. Fatal at construction, before any
// hardware action.
func SliceMismatchError(slices, intTimes int) *HostError {
	return New(ErrConfigSlices, fmt.Sprintf("slicelist has %d entries but int_time_list has %d", slices, intTimes)).
		SetSection("scan")
}

// Mode errors

// ModeError creates an error for an operation issued in the wrong mode
func ModeError(op, current, required string) *HostError {
	return New(ErrModeInvalid, fmt.Sprintf("%s requires mode '%s', current mode is '%s'", op, required, current))
}

// Homing errors

// SensorAmbiguityError creates an error for an unrecognized sensor mask
func SensorAmbiguityError(mask byte) *HostError {
	return New(ErrSensorAmbiguous, fmt.Sprintf("unrecognized end-stop mask %#08b", mask))
}

// UnexpectedTriggerError creates an error for an end-stop trigger
// outside homing mode
func UnexpectedTriggerError(mask byte, mode string) *HostError {
	return New(ErrUnexpectedTrigger, fmt.Sprintf("end-stop triggered (mask %#08b) while mode is '%s'", mask, mode))
}

// RehomeError creates an error for a homing reset with tokens remaining
func RehomeError(remaining int) *HostError {
	return New(ErrRehomeDenied, fmt.Sprintf("homing budget still has %d tokens, reset only permitted when fully consumed", remaining))
}

// Synchronization errors

// BarrierMisuseError creates an error for releasing a barrier more
// times than it was acquired
func BarrierMisuseError(name string) *HostError {
	return New(ErrBarrierMisuse, fmt.Sprintf("barrier '%s' released more times than acquired", name)).
		SetSection(name)
}

// Motion errors

// ZBoundsError creates an error for a z target outside the travel range
func ZBoundsError(z, min, max float64) *HostError {
	return New(ErrZBounds, fmt.Sprintf("z position %.2f cm outside [%.2f, %.2f]", z, min, max))
}

// Runtime errors

// RuntimeError creates a general runtime error
func RuntimeError(message string) *HostError {
	return New(ErrRuntime, message)
}

// RuntimeErrorInit creates an error for initialization failure
func RuntimeErrorInit(component, reason string) *HostError {
	return New(ErrRuntimeInit, fmt.Sprintf("failed to initialize %s: %s", component, reason))
}

// Is checks if error matches given error code
func Is(err error, code ErrorCode) bool {
	if hostErr, ok := err.(*HostError); ok {
		return hostErr.Code == code
	}
	return false
}

// IsConfig checks if error is a config error
func IsConfig(err error) bool {
	return Is(err, ErrConfigSection) ||
		Is(err, ErrConfigOption) ||
		Is(err, ErrConfigType) ||
		Is(err, ErrConfigSlices)
}

// IsFatal reports whether the error aborts the current scan. Sensor
// ambiguity and unexpected triggers are reported but leave the
// coordinator pending; everything else stops the slice.
func IsFatal(err error) bool {
	return !Is(err, ErrSensorAmbiguous) && !Is(err, ErrUnexpectedTrigger)
}
