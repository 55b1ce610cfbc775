package transport

import "time"

const (
	// DefaultPollInterval is the idle wait between reads that returned nothing
	DefaultPollInterval = 10 * time.Millisecond

	// defaultReadBufferSize is the scratch buffer for a single read
	defaultReadBufferSize = 1024

	// initialPingBackoff is the wait after the first failed ping
	initialPingBackoff = 500 * time.Millisecond
)

// Option is a functional option for configuring a Conn.
type Option func(*Conn)

// WithPollInterval sets the idle wait between empty reads.
// Non-positive values are ignored.
//
// Example:
//
//	conn := transport.New(port, transport.WithPollInterval(20*time.Millisecond))
func WithPollInterval(d time.Duration) Option {
	return func(c *Conn) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithLogger sets a logger for line-level tracing.
func WithLogger(logger Logger) Option {
	return func(c *Conn) {
		c.logger = logger
	}
}
