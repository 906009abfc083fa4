package errors

import (
	"fmt"
)

// ErrorCode represents stable error codes for request and connection failures
type ErrorCode string

const (
	// MalformedRequest indicates an empty buffer or an unparsable request line
	MalformedRequest ErrorCode = "MALFORMED_REQUEST"
	// RequestTooLarge indicates a declared body beyond the configured request limit
	RequestTooLarge ErrorCode = "REQUEST_TOO_LARGE"
	// UnsupportedMethod indicates a method other than GET or POST
	UnsupportedMethod ErrorCode = "UNSUPPORTED_METHOD"
	// FileNotFound indicates the requested file could not be opened or read
	FileNotFound ErrorCode = "FILE_NOT_FOUND"
	// DirectoryNotConfigured indicates file routes were hit without a base directory
	DirectoryNotConfigured ErrorCode = "DIRECTORY_NOT_CONFIGURED"
	// PathOutsideDirectory indicates a filename resolving outside the base directory
	PathOutsideDirectory ErrorCode = "PATH_OUTSIDE_DIRECTORY"
	// FileWriteFailed indicates the file could not be created or written
	FileWriteFailed ErrorCode = "FILE_WRITE_FAILED"
	// CompressionFailed indicates the gzip encoder failed
	CompressionFailed ErrorCode = "COMPRESSION_FAILED"
	// ConnectionRejected indicates the listener refused to admit a connection
	ConnectionRejected ErrorCode = "CONNECTION_REJECTED"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// HttpdError represents a request-scoped error with a stable code
type HttpdError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	cause   error     // Underlying error (not exported to JSON)
}

// New creates a new HttpdError
func New(code ErrorCode, message string, cause error) *HttpdError {
	return &HttpdError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Error implements the error interface
func (e *HttpdError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *HttpdError) Unwrap() error {
	return e.cause
}

// Is matches another HttpdError by code, so sentinel values work with errors.Is.
func (e *HttpdError) Is(target error) bool {
	t, ok := target.(*HttpdError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// CodeOf returns the code carried by err, or InternalError when err is not an HttpdError.
func CodeOf(err error) ErrorCode {
	for err != nil {
		if he, ok := err.(*HttpdError); ok {
			return he.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return InternalError
}
