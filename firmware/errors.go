package firmware

import (
	"errors"
	"fmt"
)

// ErrFormat is matched by every structural error in a signed package.
var ErrFormat = errors.New("invalid firmware package")

// FormatError describes what part of a signed package is malformed.
// Format errors are fatal and never retried.
type FormatError struct {
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrFormat, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrFormat, e.Reason)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrFormat) true for any FormatError.
func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}

func formatErrorf(err error, format string, args ...any) *FormatError {
	return &FormatError{Reason: fmt.Sprintf(format, args...), Err: err}
}
