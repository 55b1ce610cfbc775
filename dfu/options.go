package dfu

import (
	"time"

	"github.com/moffa90/go-atdfu/firmware"
	"github.com/moffa90/go-atdfu/transport"
)

// Timeouts holds the wait budgets of every protocol step.
type Timeouts struct {
	// WriteAck bounds the OK after a chunk announce
	WriteAck time.Duration

	// Notification bounds the #XDFU notification after a chunk or an apply
	Notification time.Duration

	// InitApplication bounds the OK after an application init
	InitApplication time.Duration

	// InitModemDelta bounds the OK after a delta init; the device erases flash first
	InitModemDelta time.Duration

	// InitModemFull bounds the bootloader banner after a full modem init
	InitModemFull time.Duration

	// Ping bounds the OK of the standalone liveness probe
	Ping time.Duration

	// RebootAttempts is the number of probes after the full modem commit
	RebootAttempts int

	// RebootPing bounds each of those probes
	RebootPing time.Duration

	// RebootMaxBackoff caps the wait between those probes
	RebootMaxBackoff time.Duration
}

// DefaultTimeouts returns the budgets the device firmware is known to meet.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		WriteAck:         2 * time.Second,
		Notification:     10 * time.Second,
		InitApplication:  5 * time.Second,
		InitModemDelta:   120 * time.Second,
		InitModemFull:    30 * time.Second,
		Ping:             3 * time.Second,
		RebootAttempts:   10,
		RebootPing:       5 * time.Second,
		RebootMaxBackoff: 5 * time.Second,
	}
}

// merge overrides the receiver with the positive fields of o.
func (t *Timeouts) merge(o Timeouts) {
	setDuration(&t.WriteAck, o.WriteAck)
	setDuration(&t.Notification, o.Notification)
	setDuration(&t.InitApplication, o.InitApplication)
	setDuration(&t.InitModemDelta, o.InitModemDelta)
	setDuration(&t.InitModemFull, o.InitModemFull)
	setDuration(&t.Ping, o.Ping)
	setDuration(&t.RebootPing, o.RebootPing)
	setDuration(&t.RebootMaxBackoff, o.RebootMaxBackoff)
	if o.RebootAttempts > 0 {
		t.RebootAttempts = o.RebootAttempts
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}

// Config holds the updater configuration.
type Config struct {
	// ProgressCallback is called after every delivered chunk (optional)
	ProgressCallback ProgressCallback

	// StateCallback is called on every state transition (optional)
	StateCallback StateCallback

	// Logger is used for logging operations (optional)
	Logger Logger

	// ChunkSize is the maximum payload per write command
	// Default is 4096 bytes
	ChunkSize int

	// Retries is the number of attempts per chunk, first attempt included
	// Boot segment chunks of a full modem update always get one attempt
	Retries int

	// BaseAddress is the load address of a raw application or delta image
	BaseAddress uint32

	// PollInterval is the idle wait between empty reads
	PollInterval time.Duration

	// Timeouts holds the per-step wait budgets
	Timeouts Timeouts
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		ChunkSize:    firmware.DefaultChunkSize,
		Retries:      3,
		PollInterval: transport.DefaultPollInterval,
		Timeouts:     DefaultTimeouts(),
	}
}

// Option is a functional option for configuring the Updater.
type Option func(*Config)

// WithProgressCallback sets a callback function to track transfer progress.
//
// Example:
//
//	upd := dfu.New(port,
//	    dfu.WithProgressCallback(func(p dfu.Progress) {
//	        fmt.Printf("%.1f%% complete\n", p.Percentage)
//	    }),
//	)
func WithProgressCallback(callback ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = callback
	}
}

// WithStateCallback sets a callback observing session state transitions.
func WithStateCallback(callback StateCallback) Option {
	return func(c *Config) {
		c.StateCallback = callback
	}
}

// WithLogger sets a logger for the updater and its connection.
//
// Example:
//
//	upd := dfu.New(port, dfu.WithLogger(myLogger))
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithChunkSize sets the maximum payload per write command.
// Non-positive values are ignored.
//
// Example:
//
//	upd := dfu.New(port, dfu.WithChunkSize(1024))
func WithChunkSize(size int) Option {
	return func(c *Config) {
		if size > 0 {
			c.ChunkSize = size
		}
	}
}

// WithRetries sets the number of attempts per chunk. Values below one
// are treated as one.
//
// Example:
//
//	upd := dfu.New(port, dfu.WithRetries(5))
func WithRetries(retries int) Option {
	return func(c *Config) {
		if retries < 1 {
			retries = 1
		}
		c.Retries = retries
	}
}

// WithBaseAddress sets the load address of raw application and delta images.
func WithBaseAddress(addr uint32) Option {
	return func(c *Config) {
		c.BaseAddress = addr
	}
}

// WithPollInterval sets the idle wait between empty reads.
func WithPollInterval(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.PollInterval = d
		}
	}
}

// WithTimeouts overrides wait budgets. Zero fields keep their defaults.
//
// Example:
//
//	upd := dfu.New(port, dfu.WithTimeouts(dfu.Timeouts{InitModemDelta: 5 * time.Minute}))
func WithTimeouts(t Timeouts) Option {
	return func(c *Config) {
		c.Timeouts.merge(t)
	}
}
