package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType classifies provider failures for retry decisions and logging.
type ErrorType string

const (
	ErrTypeRateLimit   ErrorType = "rate_limit"
	ErrTypeAuth        ErrorType = "auth"
	ErrTypeInvalidReq  ErrorType = "invalid_request"
	ErrTypeServerError ErrorType = "server_error"
	ErrTypeTimeout     ErrorType = "timeout"
	ErrTypeConnection  ErrorType = "connection"
	ErrTypeUnknown     ErrorType = "unknown"
)

// Error is a classified provider error.
type Error struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Retryable  bool
	Cause      error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("llm %s error (status %d): %s", e.Type, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("llm %s error: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// IsRetryable satisfies retry.RetryableError.
func (e *Error) IsRetryable() bool { return e.Retryable }

// ClassifyError wraps a raw provider error with a type and retryability. A
// status code of 0 means the provider gave none (network-level failure).
func ClassifyError(err error, statusCode int) *Error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	e := &Error{
		Type:       ErrTypeUnknown,
		Message:    err.Error(),
		StatusCode: statusCode,
		Cause:      err,
	}

	switch {
	case statusCode == 429:
		e.Type = ErrTypeRateLimit
		e.Retryable = true
	case statusCode == 401 || statusCode == 403:
		e.Type = ErrTypeAuth
	case statusCode >= 400 && statusCode < 500:
		e.Type = ErrTypeInvalidReq
	case statusCode >= 500:
		e.Type = ErrTypeServerError
		e.Retryable = true
	case errors.Is(err, context.DeadlineExceeded):
		e.Type = ErrTypeTimeout
		e.Retryable = true
	case errors.Is(err, context.Canceled):
		e.Type = ErrTypeConnection
	default:
		msg := strings.ToLower(err.Error())
		switch {
		case strings.Contains(msg, "rate limit") || strings.Contains(msg, "overloaded"):
			e.Type = ErrTypeRateLimit
			e.Retryable = true
		case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
			e.Type = ErrTypeTimeout
			e.Retryable = true
		case strings.Contains(msg, "connection"):
			e.Type = ErrTypeConnection
			e.Retryable = true
		}
	}
	return e
}
