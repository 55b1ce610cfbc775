// Package transport runs AT-command transactions over a byte channel.
//
// # Overview
//
// A Conn wraps any io.ReadWriter, typically a serial port opened with
// OpenSerial. It sends one command at a time, reassembles device output into
// lines and matches them against a terminal pattern, failure result codes and
// #XDFU notifications.
//
// # Reading
//
// Reads are driven by a poll loop. A read returning (0, nil) counts as idle:
// the loop waits at most one poll interval (10ms by default) before it checks
// the context and the deadline again. Channels that implement a read timeout,
// such as the ports returned by OpenSerial, spend that interval inside Read.
//
// # Errors
//
//   - *TimeoutError (errors.Is(err, ErrTimeout)): no terminal line in time
//   - *protocol.DeviceError: ERROR, +CME ERROR or +CMS ERROR before the terminal
//   - *ChannelLostError: the channel failed; never retried
//   - *AbortError: the context was cancelled; wraps ctx.Err()
//
// # Example
//
//	port, err := transport.OpenSerial(ctx, "/dev/ttyACM0", 115200)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer port.Close()
//
//	conn := transport.New(port)
//	if _, err := conn.Transact(ctx, "AT", nil, 3*time.Second); err != nil {
//	    log.Fatal(err)
//	}
package transport
