package usecase

import (
	"errors"
	"fmt"

	"weather-chat/internal/llm"
)

type ErrorCode string

const (
	ErrorMissingCredential ErrorCode = "MISSING_CREDENTIAL"
	ErrorAuthentication    ErrorCode = "AUTHENTICATION_FAILED"
	ErrorRateLimited       ErrorCode = "RATE_LIMITED"
	ErrorTimeout           ErrorCode = "PROVIDER_TIMEOUT"
	ErrorUpstream          ErrorCode = "UPSTREAM_ERROR"
	ErrorStream            ErrorCode = "STREAM_ERROR"
	ErrorClientGone        ErrorCode = "CLIENT_GONE"
	ErrorInternal          ErrorCode = "INTERNAL_ERROR"
)

// Error describes why a chat stream ended early. Reason is a short
// machine-readable tag for logs; the user already saw an error event.
type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

const (
	msgMissingCredential = "OpenAI API key is missing. Set OPENAI_API_KEY."
	msgAuthentication    = "Authentication failed. Please check your API key configuration."
	msgRateLimited       = "Rate limit exceeded. Please wait a moment and try again."
	msgTimeout           = "Request timeout. The service is taking too long to respond. Please try again."
	msgUnexpected        = "An unexpected error occurred. Please try again later."
	msgStream            = "Error processing response stream. Please try again."
	msgToolUnexpected    = "An unexpected error occurred while fetching weather data."
)

// classifyOpenError maps a failure to open a model stream onto an error code
// and the message shown to the user.
func classifyOpenError(err error) (ErrorCode, string) {
	var perr *llm.ProviderError
	if errors.As(err, &perr) {
		switch perr.Kind {
		case llm.ErrorAuthenticationFailed:
			return ErrorAuthentication, msgAuthentication
		case llm.ErrorRateLimited:
			return ErrorRateLimited, msgRateLimited
		case llm.ErrorProviderTimeout:
			return ErrorTimeout, msgTimeout
		default:
			return ErrorUpstream, fmt.Sprintf("API error: %s. Please try again later.", perr.Message)
		}
	}
	if errors.Is(err, llm.ErrMissingCredential) {
		return ErrorMissingCredential, msgMissingCredential
	}
	return ErrorInternal, msgUnexpected
}
