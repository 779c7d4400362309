package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
)

const maxStackDepth = 10

// Error is a coded error. Message is what callers see; Err keeps the cause.
type Error struct {
	Code    ErrorCode
	Message string
	Details map[string]any
	Err     error
	Stack   string
}

func newError(code ErrorCode, msg string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: msg,
		Err:     cause,
		Details: map[string]any{},
		Stack:   callerStack(3),
	}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code.Message()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an error carrying the default message of code.
func New(code ErrorCode) *Error {
	return newError(code, code.Message(), nil)
}

// Newf returns an error with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return newError(code, fmt.Sprintf(format, args...), nil)
}

// Wrap attaches code to err. A coded error is recoded in place and keeps its message.
func Wrap(err error, code ErrorCode) *Error {
	if err == nil {
		return nil
	}
	if e, ok := as(err); ok {
		e.Code = code
		return e
	}
	return newError(code, err.Error(), err)
}

// Wrapf wraps err under a new message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return newError(code, fmt.Sprintf(format, args...), err)
}

// WithMessage replaces the caller-facing message.
func (e *Error) WithMessage(msg string) *Error {
	e.Message = msg
	return e
}

// GetCode returns the code of the first coded error in the chain,
// InternalServerError for uncoded errors and Success for nil.
func GetCode(err error) ErrorCode {
	if err == nil {
		return Success
	}
	if e, ok := as(err); ok {
		return e.Code
	}
	return InternalServerError
}

// GetError returns the coded error in the chain, wrapping plain errors as internal.
func GetError(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := as(err); ok {
		return e
	}
	return Wrap(err, InternalServerError)
}

func Is(err error, code ErrorCode) bool {
	return err != nil && GetCode(err) == code
}

// Describe renders err for a caller. A coded error whose cause says something
// different is rendered as "message: cause".
func Describe(err error) string {
	if err == nil {
		return ""
	}
	e, ok := as(err)
	if !ok {
		return err.Error()
	}
	msg := e.Error()
	if e.Err != nil && e.Err.Error() != e.Message {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// ValidationError reports a rejected request field.
func ValidationError(field, reason string) *Error {
	e := newError(ValidationFailed, field+" "+reason, nil)
	e.Details["field"] = field
	e.Details["reason"] = reason
	return e
}

func as(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func callerStack(skip int) string {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(skip+1, pcs)
	if n == 0 {
		return ""
	}
	var b strings.Builder
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !strings.HasPrefix(frame.Function, "runtime.") {
			fmt.Fprintf(&b, "\n\t%s:%d %s", frame.File, frame.Line, frame.Function)
		}
		if !more {
			return b.String()
		}
	}
}
