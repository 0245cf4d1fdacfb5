package signboard

import (
	"errors"
	"fmt"
)

// User-facing messages shared by the dispatcher and the client.
const (
	MsgTextRequired   = "Text is required."
	MsgIDRequired     = "ID is required."
	MsgUnknownCommand = "Unknown command."
	MsgUnreachable    = "Signboard host is not running."
)

// ValidationError indicates a required command field was missing or empty.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NotFoundError indicates an operation referenced an unknown signboard id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("Unknown id: %s", e.ID)
}

// UnreachableError indicates no host answered within the client timeout.
type UnreachableError struct {
	Cause error // Optional transport failure behind the timeout
}

func (e *UnreachableError) Error() string {
	return MsgUnreachable
}

func (e *UnreachableError) Unwrap() error {
	return e.Cause
}

// ErrUnknownCommand is returned for malformed or unrecognised commands.
var ErrUnknownCommand = errors.New(MsgUnknownCommand)

// Validation failures for missing required fields.
var (
	ErrTextRequired = &ValidationError{Field: "text", Message: MsgTextRequired}
	ErrIDRequired   = &ValidationError{Field: "id", Message: MsgIDRequired}
)

// IsNotFound returns true if err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsValidation returns true if err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// CodeFor maps an error to its response code.
// Anything that is not a known kind is a generic failure.
func CodeFor(err error) int {
	if err == nil {
		return CodeOK
	}
	var unreachable *UnreachableError
	switch {
	case IsNotFound(err):
		return CodeNotFound
	case errors.As(err, &unreachable):
		return CodeUnreachable
	default:
		return CodeFailure
	}
}

// ResponseFor converts an error to a failure Response.
// Known kinds keep their own message; wrapped errors report the outermost text.
func ResponseFor(err error) Response {
	var nf *NotFoundError
	var ve *ValidationError
	switch {
	case errors.As(err, &nf):
		return Failure(CodeNotFound, nf.Error())
	case errors.As(err, &ve):
		return Failure(CodeFailure, ve.Error())
	case errors.Is(err, ErrUnknownCommand):
		return Failure(CodeFailure, MsgUnknownCommand)
	default:
		return Failure(CodeFor(err), err.Error())
	}
}
