package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.bug.st/serial"
)

const (
	// DefaultSettleDelay is the wait between opening the port and resetting
	// its input buffer
	DefaultSettleDelay = 100 * time.Millisecond

	// defaultSerialReadTimeout bounds each Read so the poll loop can observe
	// cancellation and deadlines
	defaultSerialReadTimeout = DefaultPollInterval
)

type serialConfig struct {
	settle      time.Duration
	readTimeout time.Duration
}

// SerialOption configures OpenSerial.
type SerialOption func(*serialConfig)

// WithSettleDelay sets how long OpenSerial waits before flushing input.
// A zero delay skips the wait.
func WithSettleDelay(d time.Duration) SerialOption {
	return func(c *serialConfig) {
		if d >= 0 {
			c.settle = d
		}
	}
}

// WithReadTimeout sets the per-read timeout of the port.
func WithReadTimeout(d time.Duration) SerialOption {
	return func(c *serialConfig) {
		if d > 0 {
			c.readTimeout = d
		}
	}
}

// OpenSerial opens a serial port for a Conn.
//
// The port is opened 8N1 at baud with a short read timeout, then left to
// settle and its input buffer is reset so output printed before the session
// started is not mistaken for a reply. The caller must Close the port.
//
// Example:
//
//	port, err := transport.OpenSerial(ctx, "/dev/ttyACM0", 115200)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer port.Close()
func OpenSerial(ctx context.Context, name string, baud int, opts ...SerialOption) (serial.Port, error) {
	if name == "" {
		return nil, errors.New("serial port is empty")
	}
	if baud <= 0 {
		return nil, fmt.Errorf("invalid serial baud rate: %d", baud)
	}
	if err := ctx.Err(); err != nil {
		return nil, &AbortError{Err: err}
	}

	cfg := serialConfig{
		settle:      DefaultSettleDelay,
		readTimeout: defaultSerialReadTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %q: %w", name, err)
	}

	if err := port.SetReadTimeout(cfg.readTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("set serial read timeout: %w", err)
	}

	if cfg.settle > 0 {
		if err := sleep(ctx, cfg.settle); err != nil {
			_ = port.Close()
			return nil, err
		}
	}

	if err := port.ResetInputBuffer(); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("reset serial input buffer: %w", err)
	}

	return port, nil
}

// ListPorts returns the names of the serial ports present on the system.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}
