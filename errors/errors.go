package errors

import (
	"errors"
	"fmt"
)

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")

	// Protocol errors are reported back to the sender, the connection stays open.
	ErrUsage             = fmt.Errorf("missing command argument")
	ErrUnknownCommand    = fmt.Errorf("unknown command")
	ErrInvalidByteLength = fmt.Errorf("byte length must be a non-negative integer")
	ErrInvalidTargetKind = fmt.Errorf("target kind must be user or group")
	ErrVoiceNoteTooLarge = fmt.Errorf("voice note exceeds the maximum payload size")

	// Framing errors terminate the connection, the stream cannot be re-synchronized.
	ErrFramingState = fmt.Errorf("unexpected framing state")
	ErrLineTooLong  = fmt.Errorf("line exceeds the maximum length")

	ErrBlankUsername     = fmt.Errorf("blank username")
	ErrUsernameTaken     = fmt.Errorf("username is already taken")
	ErrTargetUnavailable = fmt.Errorf("target is not connected")

	ErrSinkFull   = fmt.Errorf("outbound buffer is full")
	ErrSinkClosed = fmt.Errorf("outbound sink is closed")

	ErrPersistence = fmt.Errorf("history persistence failed")
	ErrServerFull  = fmt.Errorf("server is full")
)

// ParseError names the offending command and its expected usage.
type ParseError struct {
	Command string
	Usage   string
	Err     error
}

func (e *ParseError) Error() string {
	switch {
	case errors.Is(e.Err, ErrUnknownCommand):
		return fmt.Sprintf("Unknown command: %s", e.Command)
	case e.Usage != "" && errors.Is(e.Err, ErrUsage):
		return "Usage: " + e.Usage
	case e.Usage != "":
		return fmt.Sprintf("%s: %v. Usage: %s", e.Command, e.Err, e.Usage)
	default:
		return fmt.Sprintf("%s: %v", e.Command, e.Err)
	}
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsProtocolError reports whether err should be echoed back to the sender
// without closing its connection.
func IsProtocolError(err error) bool {
	var parseErr *ParseError
	return errors.As(err, &parseErr)
}

func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }
