package dfu

import "time"

// Progress describes one delivered chunk.
// Passed to ProgressCallback after every acknowledged chunk.
type Progress struct {
	// Label names the transfer: "Application", "Modem delta", "BOOT" or "FW"
	Label string

	// Chunk is the number of chunks delivered so far (1-based)
	Chunk int

	// TotalChunks is the number of chunks in this transfer
	TotalChunks int

	// BytesSent is the number of payload bytes delivered so far
	BytesSent int

	// TotalBytes is the payload size of this transfer
	TotalBytes int

	// Elapsed is the time since the transfer started
	Elapsed time.Duration

	// Percentage is the completion percentage (0.0 to 100.0)
	Percentage float64

	// Command is the write command of the delivered chunk
	Command string

	// Notification is the raw notification that acknowledged the chunk
	Notification string
}

// Speed returns the average transfer rate in bytes per second.
func (p Progress) Speed() float64 {
	secs := p.Elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(p.BytesSent) / secs
}

// ProgressCallback is called after each delivered chunk.
// Implementations should return quickly; the transfer waits for them.
//
// Example:
//
//	upd := dfu.New(port,
//	    dfu.WithProgressCallback(func(p dfu.Progress) {
//	        fmt.Printf("%s [%d/%d] %.1f%%\n", p.Label, p.Chunk, p.TotalChunks, p.Percentage)
//	    }),
//	)
type ProgressCallback func(Progress)

// StateCallback is called on every session state transition.
type StateCallback func(from, to State)

// Logger is an optional logging interface that can be provided to the updater.
// This allows integration with any logging framework.
//
// Example with the standard log package:
//
//	type StdLogger struct{}
//	func (l *StdLogger) Debug(msg string, kv ...interface{}) { log.Println(msg, kv) }
//	func (l *StdLogger) Info(msg string, kv ...interface{})  { log.Println(msg, kv) }
//	func (l *StdLogger) Warn(msg string, kv ...interface{})  { log.Println(msg, kv) }
//	func (l *StdLogger) Error(msg string, kv ...interface{}) { log.Println(msg, kv) }
//
//	upd := dfu.New(port, dfu.WithLogger(&StdLogger{}))
type Logger interface {
	// Debug logs a debug message with optional key-value pairs
	Debug(msg string, keysAndValues ...interface{})

	// Info logs an info message with optional key-value pairs
	Info(msg string, keysAndValues ...interface{})

	// Warn logs a warning with optional key-value pairs
	Warn(msg string, keysAndValues ...interface{})

	// Error logs an error message with optional key-value pairs
	Error(msg string, keysAndValues ...interface{})
}
