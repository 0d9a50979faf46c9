package protocol

import (
	"errors"
	"fmt"
)

// Sentinel causes wrapped by *Error.
var (
	ErrMalformed    = errors.New("malformed message")
	ErrUnknownType  = errors.New("unknown message type")
	ErrMissingField = errors.New("missing required field")
	ErrEmptyChannel = errors.New("channel is required")
)

// Error is a protocol violation found while decoding a frame.
type Error struct {
	Type string // Message type, empty if it could not be read
	Err  error
}

func (e *Error) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("protocol error: %v", e.Err)
	}
	return fmt.Sprintf("protocol error (%s): %v", e.Type, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsProtocolError reports whether err is (or wraps) an *Error.
func IsProtocolError(err error) bool {
	var pe *Error
	return errors.As(err, &pe)
}

func newError(typ string, err error) *Error {
	return &Error{Type: typ, Err: err}
}
