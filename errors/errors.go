package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// PlatformError is the structured error carried through the pipeline.
// It records a code, a human readable message, optional context and the
// underlying cause.
type PlatformError struct {
	Code      ErrorCode
	Message   string
	Context   map[string]interface{}
	Cause     error
	Retryable bool
}

// Coder is implemented by errors that expose an ErrorCode.
// Component error types implement it so callers can classify failures
// without knowing the concrete type.
type Coder interface {
	Code() ErrorCode
}

// New creates a PlatformError with the given code and message.
func New(code ErrorCode, message string) *PlatformError {
	return &PlatformError{
		Code:      code,
		Message:   message,
		Retryable: IsRetryableCode(code),
	}
}

// Newf creates a PlatformError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *PlatformError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps err with a code and message. It returns nil when err is nil.
func Wrap(err error, code ErrorCode, message string) error {
	if err == nil {
		return nil
	}
	pe := New(code, message)
	pe.Cause = err
	if IsRetryable(err) {
		pe.Retryable = true
	}
	return pe
}

// WrapWithContext wraps err like Wrap and attaches context values.
func WrapWithContext(err error, code ErrorCode, message string, ctx map[string]interface{}) error {
	if err == nil {
		return nil
	}
	wrapped := Wrap(err, code, message)
	var pe *PlatformError
	if stderrors.As(wrapped, &pe) {
		pe.Context = ctx
	}
	return wrapped
}

// Error implements the error interface.
func (e *PlatformError) Error() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(string(e.Code))
	b.WriteString("] ")
	b.WriteString(e.Message)
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Context[k])
		}
		b.WriteString(")")
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *PlatformError) Unwrap() error {
	return e.Cause
}

// Is matches another PlatformError by code so sentinel PlatformErrors work with errors.Is.
func (e *PlatformError) Is(target error) bool {
	t, ok := target.(*PlatformError)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

// MarshalJSON renders the error for API and run-result output.
func (e *PlatformError) MarshalJSON() ([]byte, error) {
	out := struct {
		Code      ErrorCode              `json:"code"`
		Message   string                 `json:"message"`
		Context   map[string]interface{} `json:"context,omitempty"`
		Cause     string                 `json:"cause,omitempty"`
		Retryable bool                   `json:"retryable"`
	}{
		Code:      e.Code,
		Message:   e.Message,
		Context:   e.Context,
		Retryable: e.Retryable,
	}
	if e.Cause != nil {
		out.Cause = e.Cause.Error()
	}
	return json.Marshal(out)
}

// GetCode returns the code of the outermost coded error in err's chain, or
// CodeUnknown when none is found.
func GetCode(err error) ErrorCode {
	if err == nil {
		return ""
	}
	for e := err; e != nil; e = stderrors.Unwrap(e) {
		switch v := e.(type) {
		case *PlatformError:
			return v.Code
		case Coder:
			return v.Code()
		}
	}
	return CodeUnknown
}

// IsRetryable reports whether err is marked as transient anywhere in its chain.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var r interface{ Temporary() bool }
	if stderrors.As(err, &r) && r.Temporary() {
		return true
	}
	var pe *PlatformError
	if stderrors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// Is and As re-export the standard library helpers so callers importing this
// package under the name "errors" keep access to them.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As is stderrors.As.
func As(err error, target interface{}) bool { return stderrors.As(err, target) }
