// internal/protocol/serial/errors.go
package serial

import (
	"errors"
	"fmt"

	"go.bug.st/serial"

	"telemetry-bridge/internal/model"
)

// OpenErrorKind classifies why a link could not be opened
type OpenErrorKind string

const (
	// ConnectionUnavailable: the OS-level open failed
	ConnectionUnavailable OpenErrorKind = "CONNECTION_UNAVAILABLE"
	// DeviceRejectedConfig: the framing parameters were not accepted
	DeviceRejectedConfig OpenErrorKind = "DEVICE_REJECTED_CONFIG"
	// HandleCreationFailed: no serial abstraction could be built over the device
	HandleCreationFailed OpenErrorKind = "HANDLE_CREATION_FAILED"
)

// Sentinels matching each kind with errors.Is
var (
	ErrConnectionUnavailable = errors.New("connection unavailable")
	ErrDeviceRejectedConfig  = errors.New("device rejected link config")
	ErrHandleCreationFailed  = errors.New("serial handle creation failed")
)

var (
	ErrLinkActive        = errors.New("device already has an open link")
	ErrNoSerialInterface = errors.New("no serial port found for device")
	ErrFramingFixed      = errors.New("link framing is fixed and cannot be changed")
)

// OpenError is returned by Opener.Open
type OpenError struct {
	Kind   OpenErrorKind
	Device model.DeviceIdentity
	Err    error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open %s: %s: %v", e.Device.Handle, e.Kind, e.Err)
}

func (e *OpenError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind
func (e *OpenError) Is(target error) bool {
	switch e.Kind {
	case ConnectionUnavailable:
		return target == ErrConnectionUnavailable
	case DeviceRejectedConfig:
		return target == ErrDeviceRejectedConfig
	case HandleCreationFailed:
		return target == ErrHandleCreationFailed
	}
	return false
}

// codedError is implemented by go.bug.st/serial port errors
type codedError interface {
	error
	Code() serial.PortErrorCode
}

// classifyOpenError maps a port open failure to its kind
func classifyOpenError(err error) OpenErrorKind {
	var coded codedError
	if !errors.As(err, &coded) {
		return ConnectionUnavailable
	}
	switch coded.Code() {
	case serial.InvalidSpeed, serial.InvalidDataBits, serial.InvalidParity, serial.InvalidStopBits:
		return DeviceRejectedConfig
	case serial.InvalidSerialPort, serial.FunctionNotImplemented:
		return HandleCreationFailed
	default:
		return ConnectionUnavailable
	}
}
