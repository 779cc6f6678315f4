package unifiedllm

import (
	"context"
	"errors"
	"fmt"
)

// SDKError is the base error type for all completion-client errors.
type SDKError struct {
	Message string
	Cause   error
}

func (e *SDKError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *SDKError) Unwrap() error {
	return e.Cause
}

// ProviderError represents an error returned by a completion endpoint.
type ProviderError struct {
	SDKError
	Provider   string
	StatusCode int
	ErrorCode  string
	Retryable  bool
	RetryAfter *float64
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("[%s] %s (status=%d, retryable=%v)", e.Provider, e.Message, e.StatusCode, e.Retryable)
}

// AsProviderError returns the embedded ProviderError. It is promoted to every
// concrete provider error type, which lets errors.As find them all through
// the providerFailure interface.
func (e *ProviderError) AsProviderError() *ProviderError { return e }

type providerFailure interface {
	error
	AsProviderError() *ProviderError
}

// Concrete provider error types.

type AuthenticationError struct{ ProviderError }
type AccessDeniedError struct{ ProviderError }
type NotFoundError struct{ ProviderError }
type InvalidRequestError struct{ ProviderError }
type RateLimitError struct{ ProviderError }
type ServerError struct{ ProviderError }
type ContextLengthError struct{ ProviderError }

// Non-provider errors.

type RequestTimeoutError struct{ SDKError }
type AbortError struct{ SDKError }
type NetworkError struct{ SDKError }
type StreamErrorType struct{ SDKError }
type ConfigurationError struct{ SDKError }

// ErrorFromStatusCode maps an HTTP status code to the appropriate error type.
func ErrorFromStatusCode(statusCode int, message, provider, errorCode string, retryAfter *float64) error {
	pe := ProviderError{
		SDKError:   SDKError{Message: message},
		Provider:   provider,
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		RetryAfter: retryAfter,
	}

	switch statusCode {
	case 400, 422:
		return &InvalidRequestError{ProviderError: pe}
	case 401:
		return &AuthenticationError{ProviderError: pe}
	case 403:
		return &AccessDeniedError{ProviderError: pe}
	case 404:
		return &NotFoundError{ProviderError: pe}
	case 408:
		return &RequestTimeoutError{SDKError: SDKError{Message: message}}
	case 413:
		return &ContextLengthError{ProviderError: pe}
	case 429:
		pe.Retryable = true
		return &RateLimitError{ProviderError: pe}
	case 500, 502, 503, 504:
		pe.Retryable = true
		return &ServerError{ProviderError: pe}
	default:
		pe.Retryable = statusCode >= 500
		return &pe
	}
}

// IsRetryable reports whether err is safe to retry. Wrapped errors are
// inspected with errors.As so middleware can add context freely.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var (
		authErr    *AuthenticationError
		deniedErr  *AccessDeniedError
		notFound   *NotFoundError
		invalid    *InvalidRequestError
		ctxLen     *ContextLengthError
		cfgErr     *ConfigurationError
		abortErr   *AbortError
		rateErr    *RateLimitError
		serverErr  *ServerError
		netErr     *NetworkError
		streamErr  *StreamErrorType
		timeoutErr *RequestTimeoutError
		provErr    providerFailure
	)
	switch {
	case errors.As(err, &authErr), errors.As(err, &deniedErr), errors.As(err, &notFound),
		errors.As(err, &invalid), errors.As(err, &ctxLen), errors.As(err, &cfgErr),
		errors.As(err, &abortErr):
		return false
	case errors.As(err, &rateErr), errors.As(err, &serverErr), errors.As(err, &netErr),
		errors.As(err, &streamErr), errors.As(err, &timeoutErr):
		return true
	case errors.As(err, &provErr):
		return provErr.AsProviderError().Retryable
	case errors.Is(err, context.DeadlineExceeded):
		return true
	default:
		return false
	}
}

// ErrorKind returns a short, stable label for err suitable for persisting in
// run records.
func ErrorKind(err error) string {
	var (
		authErr    *AuthenticationError
		rateErr    *RateLimitError
		serverErr  *ServerError
		timeoutErr *RequestTimeoutError
		netErr     *NetworkError
		cfgErr     *ConfigurationError
		abortErr   *AbortError
		provErr    providerFailure
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &timeoutErr), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &abortErr), errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.As(err, &authErr):
		return "authentication"
	case errors.As(err, &rateErr):
		return "rate_limit"
	case errors.As(err, &serverErr):
		return "server"
	case errors.As(err, &netErr):
		return "network"
	case errors.As(err, &cfgErr):
		return "configuration"
	case errors.As(err, &provErr):
		return "provider"
	default:
		return "unknown"
	}
}
