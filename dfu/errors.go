package dfu

import (
	"errors"
	"fmt"
	"time"

	"github.com/moffa90/go-atdfu/protocol"
	"github.com/moffa90/go-atdfu/transport"
)

// Phase names reported in PhaseError.
const (
	PhaseInit             = "init"
	PhaseTransfer         = "transfer"
	PhaseApply            = "apply"
	PhaseBootTransfer     = "boot transfer"
	PhaseBootApply        = "boot apply"
	PhaseFirmwareTransfer = "firmware transfer"
	PhaseFirmwareApply    = "firmware apply"
	PhaseReboot           = "reboot"
)

// ErrNoNotification is matched by every NotificationTimeoutError.
var ErrNoNotification = errors.New("no notification")

// ErrNotResponding indicates that the device did not answer AT after the
// full modem commit.
var ErrNotResponding = errors.New("device did not respond after reboot")

// NotificationTimeoutError indicates that an expected #XDFU notification did
// not arrive.
type NotificationTimeoutError struct {
	Operation protocol.Operation
	Timeout   time.Duration
}

func (e *NotificationTimeoutError) Error() string {
	return fmt.Sprintf("no %s notification within %s", e.Operation, e.Timeout)
}

// Is makes errors.Is(err, ErrNoNotification) true.
func (e *NotificationTimeoutError) Is(target error) bool {
	return target == ErrNoNotification
}

// UnexpectedNotificationError indicates a notification for another operation.
type UnexpectedNotificationError struct {
	Want         protocol.Operation
	Notification protocol.Notification
}

func (e *UnexpectedNotificationError) Error() string {
	return fmt.Sprintf("expected %s notification, got %q", e.Want, e.Notification.Raw)
}

// ChunkWriteExhaustedError indicates that a chunk failed on every attempt.
// No later chunk was sent.
type ChunkWriteExhaustedError struct {
	// Label names the transfer
	Label string

	// Index is the 0-based position of the chunk in the transfer
	Index int

	// Address is the load address of the chunk
	Address uint32

	// Attempts is the number of attempts made
	Attempts int

	// Err is the failure of the last attempt
	Err error
}

func (e *ChunkWriteExhaustedError) Error() string {
	return fmt.Sprintf("%s chunk %d (addr=0x%X) failed after %d attempts: %v",
		e.Label, e.Index, e.Address, e.Attempts, e.Err)
}

func (e *ChunkWriteExhaustedError) Unwrap() error {
	return e.Err
}

// PhaseError reports which step of a DFU session failed.
type PhaseError struct {
	// Type is the DFU type of the session
	Type protocol.DFUType

	// Phase is one of the Phase constants
	Phase string

	// Err is the underlying failure
	Err error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Type, e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether a chunk write that failed with err may be
// attempted again. Device-side failures and timeouts are; lost channels and
// aborts never are.
func IsRetryable(err error) bool {
	if err == nil || transport.IsFatal(err) {
		return false
	}

	var unexpected *UnexpectedNotificationError
	return errors.Is(err, transport.ErrTimeout) ||
		errors.Is(err, ErrNoNotification) ||
		protocol.IsDeviceError(err) ||
		protocol.IsProtocolError(err) ||
		errors.As(err, &unexpected)
}
