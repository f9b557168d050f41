package protocol

import "fmt"

// ErrorCode identifies the class of a protocol failure.
type ErrorCode uint8

const (
	CodeUnknown            ErrorCode = 0x00
	CodeMalformedRequest   ErrorCode = 0x01 // Scope could not be built
	CodeProtocolViolation  ErrorCode = 0x02 // Event out of order or capability missing
	CodeTransportFailure   ErrorCode = 0x03 // I/O error on the underlying connection
	CodeApplicationFailure ErrorCode = 0x04 // Application returned or panicked with an error
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	switch c {
	case CodeMalformedRequest:
		return "MalformedRequest"
	case CodeProtocolViolation:
		return "ProtocolViolation"
	case CodeTransportFailure:
		return "TransportFailure"
	case CodeApplicationFailure:
		return "ApplicationFailure"
	default:
		return "Unknown"
	}
}

// Error is a coded protocol failure. Two Errors match under errors.Is when
// their codes are equal, so callers test against the exported sentinels:
//
//	if errors.Is(err, protocol.ErrProtocolViolation) { ... }
type Error struct {
	Code    ErrorCode
	Message string
	Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error, if any.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinel errors for the four failure classes. Use with errors.Is.
var (
	ErrMalformedRequest   = &Error{Code: CodeMalformedRequest, Message: "malformed request"}
	ErrProtocolViolation  = &Error{Code: CodeProtocolViolation, Message: "protocol violation"}
	ErrTransportFailure   = &Error{Code: CodeTransportFailure, Message: "transport failure"}
	ErrApplicationFailure = &Error{Code: CodeApplicationFailure, Message: "application failure"}
)

// MalformedRequestf returns a CodeMalformedRequest error with a formatted message.
func MalformedRequestf(format string, args ...any) *Error {
	return &Error{Code: CodeMalformedRequest, Message: fmt.Sprintf(format, args...)}
}

// Violationf returns a CodeProtocolViolation error with a formatted message.
func Violationf(format string, args ...any) *Error {
	return &Error{Code: CodeProtocolViolation, Message: fmt.Sprintf(format, args...)}
}

// TransportFailure wraps an I/O error from the underlying connection.
func TransportFailure(err error) *Error {
	return &Error{Code: CodeTransportFailure, Message: "transport failure", Wrapped: err}
}

// ApplicationFailure wraps an error returned (or recovered) from application code.
func ApplicationFailure(err error) *Error {
	return &Error{Code: CodeApplicationFailure, Message: "application failure", Wrapped: err}
}
