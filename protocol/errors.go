package protocol

import (
	"errors"
	"fmt"
)

// DeviceError reports a failing final result code (ERROR, +CME ERROR, ...)
// received in response to a command.
type DeviceError struct {
	// Command is the command line that failed, without line ending
	Command string

	// Line is the result code the device printed
	Line string
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s failed: device replied %q", Mnemonic(e.Command), e.Line)
}

// ProtocolError represents a DFU notification carrying a non-zero status.
type ProtocolError struct {
	// Operation is the acknowledged step that failed
	Operation Operation

	// Type is the DFU type the device reported
	Type DFUType

	// StatusCode is the status from the notification
	StatusCode int

	// Notification is the raw notification line
	Notification string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("dfu %s failed: %s (%d)", e.Operation, getStatusName(e.StatusCode), e.StatusCode)
}

// IsProtocolError returns true if err is or wraps a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// IsDeviceError returns true if err is or wraps a DeviceError.
func IsDeviceError(err error) bool {
	var de *DeviceError
	return errors.As(err, &de)
}

// NewProtocolError builds a ProtocolError from a failed notification.
func NewProtocolError(n Notification) *ProtocolError {
	return &ProtocolError{
		Operation:    n.Operation,
		Type:         n.Type,
		StatusCode:   n.Status,
		Notification: n.Raw,
	}
}

// getStatusName returns a human-readable name for a notification status.
// The device reports negative errno values.
func getStatusName(code int) string {
	switch code {
	case StatusSuccess:
		return "success"
	case -1:
		return "operation failed"
	case -5:
		return "I/O error"
	case -12:
		return "out of memory"
	case -14:
		return "bad address"
	case -16:
		return "device busy"
	case -22:
		return "invalid argument"
	default:
		return fmt.Sprintf("device status %d", code)
	}
}
