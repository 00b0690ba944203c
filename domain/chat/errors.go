package chat

import (
	"errors"
	"strings"
)

// Error taxonomy shared by every component. Wrap with fmt.Errorf("%w: ...").
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrDependency   = errors.New("dependency failure")
)

// Error codes used when an error crosses a request-reply boundary.
const (
	CodeUnauthorized = "unauthorized"
	CodeForbidden    = "forbidden"
	CodeNotFound     = "not_found"
	CodeValidation   = "validation_error"
	CodeDependency   = "dependency_failure"
	CodeInternal     = "internal_error"
)

var codeSentinels = []struct {
	code string
	err  error
}{
	{CodeUnauthorized, ErrUnauthorized},
	{CodeForbidden, ErrForbidden},
	{CodeNotFound, ErrNotFound},
	{CodeValidation, ErrValidation},
	{CodeDependency, ErrDependency},
}

// Code returns the wire code for err.
func Code(err error) string {
	for _, cs := range codeSentinels {
		if errors.Is(err, cs.err) {
			return cs.code
		}
	}
	return CodeInternal
}

// FromCode rebuilds a taxonomy error from a wire code and message.
func FromCode(code, message string) error {
	for _, cs := range codeSentinels {
		if cs.code == code {
			if message == "" || message == cs.err.Error() {
				return cs.err
			}
			return &codedError{sentinel: cs.err, msg: message}
		}
	}
	return errors.New(message)
}

type codedError struct {
	sentinel error
	msg      string
}

func (e *codedError) Error() string { return e.msg }
func (e *codedError) Unwrap() error { return e.sentinel }

// PublicMessage returns the message reported to the originating caller.
// Dependency failures and untyped errors are reported generically.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	switch Code(err) {
	case CodeDependency:
		return "A backend service is unavailable, please retry"
	case CodeInternal:
		return "Internal error"
	}
	msg := err.Error()
	// Callers see the detail without the taxonomy prefix.
	for _, cs := range codeSentinels {
		prefix := cs.err.Error() + ": "
		if strings.HasPrefix(msg, prefix) {
			return strings.TrimPrefix(msg, prefix)
		}
	}
	return msg
}
