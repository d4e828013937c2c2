package errs

import (
	"errors"
	"fmt"

	"github.com/playwright-community/playwright-go"
)

// Code is a UI automation error code.
type Code string

const (
	ElementNotFound Code = "element_not_found"
	Timeout         Code = "timeout"
	PageClosed      Code = "page_closed"
	AssertionFailed Code = "assertion_failed"
	InvalidArgument Code = "invalid_argument"
	Unavailable     Code = "unavailable"
	Internal        Code = "internal"
)

// Error is a coded automation error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		if e.Err != nil {
			return e.Message + ": " + e.Err.Error()
		}
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a coded error with message.
func New(code Code, message string) error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap creates a coded error with message and cause.
func Wrap(code Code, message string, cause error) error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// CodeOf returns the error code, defaulting to internal.
func CodeOf(err error) Code {
	if err == nil {
		return Internal
	}
	var coded *Error
	if errors.As(err, &coded) {
		if coded.Code == "" {
			return Internal
		}
		return coded.Code
	}
	return Internal
}

// MessageOf returns the outermost coded message, or "internal error" for
// untyped errors.
func MessageOf(err error) string {
	if err == nil {
		return string(Internal)
	}
	var coded *Error
	if errors.As(err, &coded) && coded.Message != "" {
		return coded.Message
	}
	return "internal error"
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// FromPlaywright classifies a Playwright error. what describes the action
// that failed, e.g. `click "vault.row"`.
func FromPlaywright(err error, what string) error {
	if err == nil {
		return nil
	}
	var coded *Error
	if errors.As(err, &coded) {
		return err
	}
	switch {
	case errors.Is(err, playwright.ErrTimeout):
		return Wrap(Timeout, what, err)
	case errors.Is(err, playwright.ErrTargetClosed):
		return Wrap(PageClosed, what, err)
	default:
		return Wrap(Internal, what, err)
	}
}

// Recoverable reports whether a step that failed with err may be retried or
// logged-and-skipped. A closed page or an internal failure ends the test.
func Recoverable(err error) bool {
	if err == nil {
		return true
	}
	switch CodeOf(err) {
	case ElementNotFound, Timeout, AssertionFailed, Unavailable:
		return true
	default:
		return false
	}
}

// Retryable reports whether repeating the same action could succeed.
// Failed assertions are recoverable for soft steps but never retried.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case ElementNotFound, Timeout, Unavailable:
		return true
	default:
		return false
	}
}
