package errors

import (
	"errors"
	"fmt"
)

// Kind classifies the failures a retrieval run can end with
type Kind string

const (
	KindSetup      Kind = "setup"
	KindFetch      Kind = "fetch"
	KindExtraction Kind = "extraction"
	KindDownload   Kind = "download"
	KindValidation Kind = "validation"
	KindUsage      Kind = "usage"
	KindUnknown    Kind = "unknown"
)

// Error is a classified failure. Message is safe to show to the caller.
type Error struct {
	Kind    Kind
	Message string
	// Code carries an HTTP status when the failure came from a response
	Code int
	Err  error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same Kind, so errors.Is(err, &Error{Kind: KindSetup}) works
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// Detail returns the message plus the wrapped cause, for logs
func (e *Error) Detail() string {
	if e.Err == nil {
		return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Message, e.Err)
}

func newError(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func Setup(err error, format string, args ...interface{}) *Error {
	return newError(KindSetup, err, format, args...)
}

func Fetch(err error, format string, args ...interface{}) *Error {
	return newError(KindFetch, err, format, args...)
}

func Extraction(err error, format string, args ...interface{}) *Error {
	return newError(KindExtraction, err, format, args...)
}

func Download(err error, format string, args ...interface{}) *Error {
	return newError(KindDownload, err, format, args...)
}

func Validation(err error, format string, args ...interface{}) *Error {
	return newError(KindValidation, err, format, args...)
}

func Usage(format string, args ...interface{}) *Error {
	return newError(KindUsage, nil, format, args...)
}

// KindOf returns the Kind of the first *Error in err's chain
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429:
		return true
	case 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}
