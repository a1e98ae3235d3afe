// Package status defines the typed error model shared by every layer of the
// cluster. Each failure carries a Code so that callers can branch on the kind
// of failure (timeout, unavailable, bad input) without parsing messages.
package status

import (
	"context"
	"errors"
	"fmt"
)

// Code classifies a failure.
type Code int

const (
	OK Code = iota
	Cancelled
	InvalidArgument
	DeadlineExceeded
	NotFound
	AlreadyExists
	FailedPrecondition
	OutOfRange
	Unavailable
	Internal
)

var codeNames = map[Code]string{
	OK:                 "OK",
	Cancelled:          "CANCELLED",
	InvalidArgument:    "INVALID_ARGUMENT",
	DeadlineExceeded:   "DEADLINE_EXCEEDED",
	NotFound:           "NOT_FOUND",
	AlreadyExists:      "ALREADY_EXISTS",
	FailedPrecondition: "FAILED_PRECONDITION",
	OutOfRange:         "OUT_OF_RANGE",
	Unavailable:        "UNAVAILABLE",
	Internal:           "INTERNAL",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("CODE(%d)", int(c))
}

// Error is a failure with a Code. Err optionally holds the underlying cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf builds an *Error with a formatted message.
func Errorf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an existing error.
func Wrap(code Code, err error, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf returns the code of the first *Error in err's chain. Context errors
// map onto their natural codes and anything else is Internal.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return Cancelled
	}
	return Internal
}

// FromContext converts a finished context's error into an *Error.
func FromContext(ctx context.Context) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}
	return Wrap(CodeOf(err), err, "context done")
}

// IsDeadlineExceeded reports whether err is a DeadlineExceeded failure.
func IsDeadlineExceeded(err error) bool { return CodeOf(err) == DeadlineExceeded }

// IsUnavailable reports whether err is an Unavailable failure.
func IsUnavailable(err error) bool { return CodeOf(err) == Unavailable }

// IsInvalidArgument reports whether err is an InvalidArgument failure.
func IsInvalidArgument(err error) bool { return CodeOf(err) == InvalidArgument }

// IsStateError reports whether err signals an operation called out of
// lifecycle order.
func IsStateError(err error) bool { return CodeOf(err) == FailedPrecondition }

// IsAlreadyExists reports whether err is an AlreadyExists failure.
func IsAlreadyExists(err error) bool { return CodeOf(err) == AlreadyExists }

// IsCancelled reports whether err is a Cancelled failure.
func IsCancelled(err error) bool { return CodeOf(err) == Cancelled }

// IsOutOfRange reports whether err is an OutOfRange failure.
func IsOutOfRange(err error) bool { return CodeOf(err) == OutOfRange }
