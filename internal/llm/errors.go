package llm

import (
	"errors"
	"fmt"
)

// ErrMissingCredential reports that no model API key is configured.
var ErrMissingCredential = errors.New("llm: missing api credential")

type ErrorKind string

const (
	ErrorAuthenticationFailed ErrorKind = "AUTHENTICATION_FAILED"
	ErrorRateLimited          ErrorKind = "RATE_LIMITED"
	ErrorProviderTimeout      ErrorKind = "PROVIDER_TIMEOUT"
	ErrorProvider             ErrorKind = "PROVIDER_ERROR"
)

// ProviderError is a classified failure returned by the model provider.
// Message is the provider's own description, without credentials.
type ProviderError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("llm: %s (%s)", e.Kind, e.Message)
	}
	return fmt.Sprintf("llm: %s (%s): %v", e.Kind, e.Message, e.Err)
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func NewProviderError(kind ErrorKind, status int, message string, err error) *ProviderError {
	return &ProviderError{Kind: kind, StatusCode: status, Message: message, Err: err}
}
