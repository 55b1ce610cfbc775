package transport

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/moffa90/go-atdfu/protocol"
)

// Conn runs AT transactions over a byte channel.
//
// Conn owns the line reassembly buffer: bytes are read as they become
// available, split on CR/LF and queued as complete lines. Lines that follow a
// transaction's terminal line stay queued so a later AwaitNotification sees
// them.
//
// Conn is not safe for concurrent use. The protocol allows one outstanding
// command at a time.
type Conn struct {
	rw           io.ReadWriter
	pollInterval time.Duration
	logger       Logger

	// lastCommand is the most recent command line written
	lastCommand string

	scratch []byte
	partial []byte
	lines   []string
}

// Response holds the lines received for one command.
type Response struct {
	// Command is the command that was sent, without line ending
	Command string

	// Lines lists every line received, the terminal line last
	Lines []string

	// Terminal is the line that matched the terminal pattern
	Terminal string
}

// drainer is implemented by serial ports that can block until the OS
// transmit buffer is empty.
type drainer interface {
	Drain() error
}

// New creates a Conn on top of rw.
// rw.Read should return promptly, either with data, with (0, nil) when
// nothing is available, or after a short read timeout.
//
// Example:
//
//	port, _ := transport.OpenSerial(ctx, "/dev/ttyACM0", 115200)
//	conn := transport.New(port, transport.WithLogger(logger))
//	resp, err := conn.Transact(ctx, "AT", nil, 3*time.Second)
func New(rw io.ReadWriter, opts ...Option) *Conn {
	if rw == nil {
		panic("channel cannot be nil")
	}

	c := &Conn{
		rw:           rw,
		pollInterval: DefaultPollInterval,
		scratch:      make([]byte, defaultReadBufferSize),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Transact sends cmd and collects lines until one matches terminal.
//
// Input buffered before the call is discarded. A nil terminal waits for OK.
// An ERROR, +CME ERROR or +CMS ERROR line seen before the terminal fails the
// transaction with *protocol.DeviceError. When timeout elapses first the
// error is a *TimeoutError.
//
// Example:
//
//	_, err := conn.Transact(ctx, "AT#XDFUINIT=2", protocol.TerminalBootloaderReady, 30*time.Second)
func (c *Conn) Transact(ctx context.Context, cmd string, terminal *regexp.Regexp, timeout time.Duration) (*Response, error) {
	if terminal == nil {
		terminal = protocol.TerminalOK
	}

	c.discard()
	c.lastCommand = cmd
	if err := c.write(ctx, []byte(cmd+protocol.LineEnding)); err != nil {
		return nil, err
	}
	c.logDebug("sent command", "cmd", cmd, "timeout", timeout.String())

	resp := &Response{Command: cmd}
	deadline := time.Now().Add(timeout)

	for {
		line, ok, err := c.nextLine(ctx, deadline)
		if err != nil {
			return resp, err
		}
		if !ok {
			return resp, &TimeoutError{Command: cmd, Timeout: timeout}
		}

		resp.Lines = append(resp.Lines, line)

		if terminal.MatchString(line) {
			resp.Terminal = line
			c.logDebug("command complete", "cmd", protocol.Mnemonic(cmd), "terminal", line)
			return resp, nil
		}
		if protocol.Classify(line) == protocol.LineError {
			return resp, &protocol.DeviceError{Command: cmd, Line: line}
		}

		c.logDebug("received line", "line", line)
	}
}

// AwaitNotification waits up to timeout for a #XDFU notification.
//
// Queued lines left over from the previous transaction are examined first.
// A failing result code ends the wait with a *protocol.DeviceError for the
// last command sent. Other lines that are not well-formed notifications are
// skipped. On timeout ok is false and err is nil.
func (c *Conn) AwaitNotification(ctx context.Context, timeout time.Duration) (n protocol.Notification, ok bool, err error) {
	deadline := time.Now().Add(timeout)

	for {
		line, got, err := c.nextLine(ctx, deadline)
		if err != nil {
			return protocol.Notification{}, false, err
		}
		if !got {
			c.logDebug("no notification", "timeout", timeout.String())
			return protocol.Notification{}, false, nil
		}

		switch protocol.Classify(line) {
		case protocol.LineNotification:
			n, _ := protocol.ParseNotification(line)
			c.logDebug("notification", "line", n.Raw)
			return n, true, nil
		case protocol.LineError:
			return protocol.Notification{}, false, &protocol.DeviceError{Command: c.lastCommand, Line: line}
		}

		c.logDebug("skipped line", "line", line)
	}
}

// Send writes cmd without waiting for any reply.
// Input buffered before the call is discarded.
func (c *Conn) Send(ctx context.Context, cmd string) error {
	c.discard()
	c.lastCommand = cmd
	if err := c.write(ctx, []byte(cmd+protocol.LineEnding)); err != nil {
		return err
	}

	c.logDebug("sent command", "cmd", cmd)
	return nil
}

// WriteRaw streams data with no framing and waits for it to leave the
// host when the channel supports draining.
func (c *Conn) WriteRaw(ctx context.Context, data []byte) error {
	if err := c.write(ctx, data); err != nil {
		return err
	}

	if d, ok := c.rw.(drainer); ok {
		if err := d.Drain(); err != nil {
			return &ChannelLostError{Op: "write", Err: err}
		}
	}

	return nil
}

// Ping sends AT until the device answers OK or maxAttempts is reached.
//
// Between attempts Ping sleeps 500ms, doubling after every failure, never
// longer than maxBackoff. There is no sleep after the last attempt. Ping
// returns false when every attempt failed or when the channel was lost or
// the context cancelled; callers check ctx.Err() to tell these apart.
//
// Example:
//
//	if !conn.Ping(ctx, 10, 5*time.Second, 5*time.Second) {
//	    return errors.New("device did not come back")
//	}
func (c *Conn) Ping(ctx context.Context, maxAttempts int, timeout, maxBackoff time.Duration) bool {
	backoff := minDuration(initialPingBackoff, maxBackoff)
	cmd := protocol.BuildPingCmd()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		c.logInfo("pinging device", "attempt", fmt.Sprintf("%d/%d", attempt, maxAttempts))

		_, err := c.Transact(ctx, cmd, protocol.TerminalOK, timeout)
		if err == nil {
			c.logInfo("device ready")
			return true
		}
		if IsFatal(err) {
			c.logDebug("ping aborted", "error", err)
			return false
		}

		c.logDebug("ping failed", "attempt", attempt, "error", err)

		if attempt < maxAttempts {
			if err := sleep(ctx, backoff); err != nil {
				return false
			}
			backoff = minDuration(backoff*2, maxBackoff)
		}
	}

	return false
}

// nextLine returns the next queued line, reading more input until one is
// complete or deadline passes. ok is false on timeout.
func (c *Conn) nextLine(ctx context.Context, deadline time.Time) (line string, ok bool, err error) {
	for {
		if len(c.lines) > 0 {
			line = c.lines[0]
			c.lines = c.lines[1:]
			return line, true, nil
		}

		if err := ctx.Err(); err != nil {
			return "", false, &AbortError{Err: err}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", false, nil
		}

		start := time.Now()
		n, err := c.rw.Read(c.scratch)
		if n > 0 {
			c.partial = append(c.partial, c.scratch[:n]...)
			var lines []string
			lines, c.partial = protocol.SplitLines(c.partial)
			c.lines = append(c.lines, lines...)
		}
		if err != nil {
			return "", false, &ChannelLostError{Op: "read", Err: err}
		}
		if n > 0 {
			continue
		}

		// Channels with a read timeout already waited inside Read.
		idle := minDuration(c.pollInterval-time.Since(start), remaining)
		if idle > 0 {
			if err := sleep(ctx, idle); err != nil {
				return "", false, err
			}
		}
	}
}

// write checks for cancellation and writes all of data.
func (c *Conn) write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return &AbortError{Err: err}
	}

	for len(data) > 0 {
		n, err := c.rw.Write(data)
		if err != nil {
			return &ChannelLostError{Op: "write", Err: err}
		}
		if n == 0 {
			return &ChannelLostError{Op: "write", Err: io.ErrShortWrite}
		}
		data = data[n:]
	}

	return nil
}

// discard drops queued lines and any partial line.
func (c *Conn) discard() {
	if len(c.lines) > 0 {
		c.logDebug("discarding stale input", "lines", len(c.lines))
	}
	c.lines = c.lines[:0]
	c.partial = c.partial[:0]
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return &AbortError{Err: ctx.Err()}
	case <-timer.C:
		return nil
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
