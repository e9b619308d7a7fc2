// Package errcode declares the coded root errors shared by every intentd
// component. Errors crossing a component boundary should wrap one of them so
// that callers can classify failures with errors.Is and peers can be told the
// numeric code in a negative acknowledgement.
package errcode

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

var usedCodes = map[uint32]*Error{}

// Error is a root error identified by a stable numeric code.
type Error struct {
	code uint32
	desc string
}

// Register declares a new root error. Reusing a code panics, so call it only
// from package level var blocks.
func Register(code uint32, description string) *Error {
	if e, ok := usedCodes[code]; ok {
		panic(fmt.Sprintf("error with code %d is already registered: %q", code, e.desc))
	}
	err := &Error{code: code, desc: description}
	usedCodes[code] = err
	return err
}

func (e *Error) Error() string {
	return e.desc
}

func (e *Error) Code() uint32 {
	return e.code
}

// New wraps the root error with a description.
func (e *Error) New(description string) error {
	return Wrap(e, description)
}

func (e *Error) Newf(format string, args ...any) error {
	return Wrap(e, fmt.Sprintf(format, args...))
}

// Wrap classifies cause under the root error. Only the message of cause is
// kept, errors.Is matches the root error.
func (e *Error) Wrap(cause error, description string) error {
	if cause == nil {
		return e.New(description)
	}
	return Wrapf(e, "%s: %s", description, cause)
}

// Wrap adds context to err and attaches a stack trace the first time.
func Wrap(err error, description string) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrap(err, description)
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrapf(err, format, args...)
}

// CodeOf returns the code of the first registered root error found in the
// chain of err, or 0 when there is none.
func CodeOf(err error) uint32 {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.code
		}
		err = errors.Unwrap(err)
	}
	return 0
}

// FromCode returns the registered root error for code, if any.
func FromCode(code uint32) (*Error, bool) {
	e, ok := usedCodes[code]
	return e, ok
}
