package protocol

import (
	"regexp"
	"strconv"
	"strings"
)

// Terminal patterns for Transact callers.
var (
	// TerminalOK matches the OK final result code
	TerminalOK = regexp.MustCompile(`^OK$`)

	// TerminalBootloaderReady matches the banner printed after the device
	// rebooted into bootloader mode
	TerminalBootloaderReady = regexp.MustCompile(regexp.QuoteMeta(BootloaderReady))
)

// Classify determines the type of a single trimmed line of device output.
//
// Example:
//
//	protocol.Classify("OK")            // LineOK
//	protocol.Classify("+CME ERROR: 4") // LineError
//	protocol.Classify("#XDFU: 0,1,0")  // LineNotification
func Classify(line string) LineType {
	line = strings.TrimSpace(line)

	switch {
	case line == ResponseOK:
		return LineOK
	case IsErrorLine(line):
		return LineError
	}

	if _, ok := ParseNotification(line); ok {
		return LineNotification
	}

	return LineData
}

// IsErrorLine reports whether line is a failing final result code.
func IsErrorLine(line string) bool {
	line = strings.TrimSpace(line)

	return line == ResponseError ||
		strings.HasPrefix(line, ResponseCMEError) ||
		strings.HasPrefix(line, ResponseCMSError)
}

// ParseNotification extracts a DFU notification from a line of the form
//
//	#XDFU:<type>,<operation>,<status>
//
// The marker may appear anywhere in the line and a space after the colon is
// accepted. Lines without the marker, with fewer than three fields or with
// non-numeric fields are not notifications; ok is false and no error is raised,
// so callers simply keep polling.
func ParseNotification(line string) (n Notification, ok bool) {
	raw := strings.TrimSpace(line)

	idx := strings.Index(raw, NotificationPrefix)
	if idx < 0 {
		return Notification{}, false
	}

	fields := strings.Split(raw[idx+len(NotificationPrefix):], ",")
	if len(fields) < notificationFields {
		return Notification{}, false
	}

	values := make([]int, notificationFields)
	for i := 0; i < notificationFields; i++ {
		v, err := strconv.Atoi(strings.TrimSpace(fields[i]))
		if err != nil {
			return Notification{}, false
		}
		values[i] = v
	}

	return Notification{
		Type:      DFUType(values[0]),
		Operation: Operation(values[1]),
		Status:    values[2],
		Raw:       raw,
	}, true
}

// SplitLines removes every complete line from buf and returns them trimmed,
// along with the unterminated remainder. Lines end at CR or LF; empty lines
// are dropped.
//
// The device terminates lines with CRLF but nothing guarantees that a single
// read delivers a whole line, so callers feed the remainder back on the next read.
func SplitLines(buf []byte) (lines []string, rest []byte) {
	start := 0
	for i, b := range buf {
		if b != '\r' && b != '\n' {
			continue
		}
		if line := strings.TrimSpace(string(buf[start:i])); line != "" {
			lines = append(lines, line)
		}
		start = i + 1
	}

	return lines, buf[start:]
}
