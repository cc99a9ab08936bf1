package instagram

import (
	"errors"
	"fmt"
	"net/http"

	errs "igfetch/pkg/errors"
)

// ErrorType classifies a failed Instagram request
type ErrorType string

const (
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error represents an Instagram request failure
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	URL     string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("instagram %s error (code %d): %s", e.Type, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the request could succeed
func (e *Error) Retryable() bool {
	switch e.Type {
	case ErrorTypeParsing, ErrorTypeAuth, ErrorTypeNotFound:
		return false
	}
	return errs.IsRetryableStatusCode(e.Code)
}

// StatusCode returns the HTTP status carried by err, or 0
func StatusCode(err error) int {
	var igErr *Error
	if errors.As(err, &igErr) {
		return igErr.Code
	}
	return 0
}

func networkError(url string, err error) *Error {
	return &Error{
		Type:    ErrorTypeNetwork,
		Message: fmt.Sprintf("network error: %v", err),
		URL:     url,
		Err:     err,
	}
}

// statusError maps a non-200 status to a typed error
func statusError(url string, code int) *Error {
	e := &Error{Code: code, URL: url}
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		e.Type, e.Message = ErrorTypeAuth, "authentication required"
	case code == http.StatusNotFound:
		e.Type, e.Message = ErrorTypeNotFound, "resource not found"
	case code == http.StatusTooManyRequests:
		e.Type, e.Message = ErrorTypeRateLimit, "rate limit exceeded"
	case code >= 500:
		e.Type, e.Message = ErrorTypeServerError, "server error"
	default:
		e.Type, e.Message = ErrorTypeUnknown, fmt.Sprintf("unexpected status code: %d", code)
	}
	return e
}
