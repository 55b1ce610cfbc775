// Package protocol implements the AT command grammar of the serial modem DFU service.
//
// This package builds command lines and tokenizes device output. It does no I/O;
// see package transport for the transaction layer.
//
// # Protocol Overview
//
// Commands are ASCII lines terminated by a carriage return:
//
//	AT#XDFUINIT=<type>[,<size>]       begin a DFU session
//	AT#XDFUWRITE=<type>,<addr>,<len>  announce one chunk, raw bytes follow
//	AT#XDFUAPPLY=<type>               commit the current phase
//	AT, AT#XRESET, AT#XMODEMRESET     utilities
//
// Responses are CRLF-terminated lines ending with a final result code (OK or
// ERROR). Chunk writes and applies are additionally acknowledged by an
// unsolicited result code:
//
//	#XDFU: <type>,<operation>,<status>
//
// where operation is 1 for write and 2 for apply, and status 0 means success.
//
// # Command Builders
//
//	cmd, err := protocol.BuildInitCmd(protocol.Application, 10000)
//	cmd, err := protocol.BuildWriteCmd(protocol.Application, 4096, 4096)
//	cmd, err := protocol.BuildApplyCmd(protocol.Application)
//
// # Response Tokenizer
//
// SplitLines reassembles lines from arbitrary read boundaries, Classify types
// each line and ParseNotification extracts the notification fields:
//
//	lines, rest := protocol.SplitLines(buf)
//	for _, line := range lines {
//	    if n, ok := protocol.ParseNotification(line); ok && !n.OK() {
//	        return protocol.NewProtocolError(n)
//	    }
//	}
//
// # Error Handling
//
// DeviceError reports an ERROR result code for a command; ProtocolError reports
// a notification with a non-zero status:
//
//	err := protocol.NewProtocolError(n)
//	// err.Error() returns: "dfu write failed: operation failed (-1)"
package protocol
