package protocol

import (
	"fmt"
	"strings"
)

// DFUType selects the update target and the command parameterization.
type DFUType int

const (
	// Application updates the application image (MCUboot secondary slot)
	Application DFUType = 0

	// ModemDelta applies a delta patch to the modem firmware
	ModemDelta DFUType = 1

	// ModemFull replaces the complete modem firmware from a signed package
	ModemFull DFUType = 2
)

// String returns the command-line name of the DFU type.
func (t DFUType) String() string {
	switch t {
	case Application:
		return "application"
	case ModemDelta:
		return "modem-delta"
	case ModemFull:
		return "modem-full"
	default:
		return fmt.Sprintf("DFUType(%d)", int(t))
	}
}

// Valid reports whether t is one of the known DFU types.
func (t DFUType) Valid() bool {
	return t == Application || t == ModemDelta || t == ModemFull
}

// ParseDFUType converts a command-line name into a DFUType.
//
// Example:
//
//	t, err := protocol.ParseDFUType("modem-full")
func ParseDFUType(name string) (DFUType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "application", "app":
		return Application, nil
	case "modem-delta", "delta":
		return ModemDelta, nil
	case "modem-full", "full":
		return ModemFull, nil
	default:
		return 0, fmt.Errorf("unknown DFU type %q: want application, modem-delta or modem-full", name)
	}
}

// Operation identifies which DFU step a notification acknowledges.
type Operation int

const (
	// OpInit acknowledges session initialization
	OpInit Operation = 0

	// OpWrite acknowledges one chunk write
	OpWrite Operation = 1

	// OpApply acknowledges a phase commit
	OpApply Operation = 2
)

func (o Operation) String() string {
	switch o {
	case OpInit:
		return "init"
	case OpWrite:
		return "write"
	case OpApply:
		return "apply"
	default:
		return fmt.Sprintf("operation %d", int(o))
	}
}

// Notification is a parsed #XDFU unsolicited result code.
type Notification struct {
	// Type is the DFU type the device reports
	Type DFUType

	// Operation is the acknowledged step
	Operation Operation

	// Status is 0 on success, a device error code otherwise
	Status int

	// Raw is the trimmed line as received
	Raw string
}

// OK reports whether the notification carries a success status.
func (n Notification) OK() bool {
	return n.Status == StatusSuccess
}

// LineType classifies one line of device output.
type LineType int

const (
	// LineData is intermediate output, neither final nor a notification
	LineData LineType = iota

	// LineOK is the successful final result code
	LineOK

	// LineError is a failing final result code (ERROR, +CME ERROR, +CMS ERROR)
	LineError

	// LineNotification is a well-formed #XDFU notification
	LineNotification
)

func (l LineType) String() string {
	switch l {
	case LineOK:
		return "ok"
	case LineError:
		return "error"
	case LineNotification:
		return "notification"
	default:
		return "data"
	}
}
