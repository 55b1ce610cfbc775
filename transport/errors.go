package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/moffa90/go-atdfu/protocol"
)

// ErrTimeout is matched by every TimeoutError.
var ErrTimeout = errors.New("timed out")

// TimeoutError indicates that no terminal line arrived within the budget.
type TimeoutError struct {
	// Command is the command that went unanswered
	Command string

	// Timeout is the budget that elapsed
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: no response within %s", protocol.Mnemonic(e.Command), e.Timeout)
}

// Is makes errors.Is(err, ErrTimeout) true for any TimeoutError.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// ChannelLostError indicates that the underlying channel failed, for example
// because the device was unplugged. It is never retried.
type ChannelLostError struct {
	// Op is "read" or "write"
	Op string

	// Err is the error returned by the channel
	Err error
}

func (e *ChannelLostError) Error() string {
	return fmt.Sprintf("serial channel lost during %s: %v", e.Op, e.Err)
}

func (e *ChannelLostError) Unwrap() error {
	return e.Err
}

// AbortError indicates that the context was cancelled, typically by a user
// interrupt. It wraps the context error.
type AbortError struct {
	Err error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("aborted: %v", e.Err)
}

func (e *AbortError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err ends the whole operation regardless of any
// retry budget: a lost channel or an abort.
func IsFatal(err error) bool {
	var lost *ChannelLostError
	var abort *AbortError
	return errors.As(err, &lost) || errors.As(err, &abort)
}
