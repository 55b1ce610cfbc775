package protocol

import (
	"fmt"
	"strings"
)

// BuildCommand formats a command line from a mnemonic and its parameters.
// The line ending is not included; the transport appends it.
//
//	BuildCommand("AT#XDFUWRITE", 0, 4096, 1808) == "AT#XDFUWRITE=0,4096,1808"
func BuildCommand(mnemonic string, params ...any) string {
	if len(params) == 0 {
		return mnemonic
	}

	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = fmt.Sprint(p)
	}

	return mnemonic + "=" + strings.Join(parts, ",")
}

// BuildPingCmd constructs the AT liveness probe.
func BuildPingCmd() string {
	return CmdAttention
}

// BuildInitCmd constructs an AT#XDFUINIT command.
//
// Application and ModemDelta carry the total image size, which must be non-zero.
// ModemFull takes no size: the device reboots into its bootloader instead of
// erasing a slot.
//
// Example:
//
//	cmd, err := protocol.BuildInitCmd(protocol.Application, 10000)
//	// cmd == "AT#XDFUINIT=0,10000"
func BuildInitCmd(t DFUType, size uint32) (string, error) {
	switch t {
	case Application, ModemDelta:
		if size == 0 {
			return "", fmt.Errorf("%s init requires a non-zero image size", t)
		}
		return BuildCommand(CmdDFUInit, int(t), size), nil
	case ModemFull:
		return BuildCommand(CmdDFUInit, int(t)), nil
	default:
		return "", fmt.Errorf("invalid DFU type %d", int(t))
	}
}

// BuildWriteCmd constructs the AT#XDFUWRITE announcement for one chunk.
// The payload itself is streamed as raw bytes once the device acknowledges.
func BuildWriteCmd(t DFUType, addr uint32, length int) (string, error) {
	if !t.Valid() {
		return "", fmt.Errorf("invalid DFU type %d", int(t))
	}
	if length <= 0 {
		return "", fmt.Errorf("chunk length must be positive, got %d", length)
	}

	return BuildCommand(CmdDFUWrite, int(t), addr, length), nil
}

// BuildApplyCmd constructs the AT#XDFUAPPLY command that commits a phase.
func BuildApplyCmd(t DFUType) (string, error) {
	if !t.Valid() {
		return "", fmt.Errorf("invalid DFU type %d", int(t))
	}

	return BuildCommand(CmdDFUApply, int(t)), nil
}

// BuildResetCmd constructs the application reset command.
func BuildResetCmd() string {
	return CmdReset
}

// BuildModemResetCmd constructs the modem reset command.
func BuildModemResetCmd() string {
	return CmdModemReset
}

// Mnemonic returns the command part of a command line, without parameters.
func Mnemonic(cmd string) string {
	if i := strings.IndexByte(cmd, '='); i >= 0 {
		return cmd[:i]
	}
	return cmd
}

