package weather

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	ErrorInvalidInput       ErrorKind = "INVALID_INPUT"
	ErrorLocationNotFound   ErrorKind = "LOCATION_NOT_FOUND"
	ErrorServiceUnavailable ErrorKind = "SERVICE_UNAVAILABLE"
	ErrorConnectionFailure  ErrorKind = "CONNECTION_FAILURE"
	ErrorRequestTimeout     ErrorKind = "REQUEST_TIMEOUT"
	ErrorUpstream           ErrorKind = "UPSTREAM_ERROR"
	ErrorMalformedResponse  ErrorKind = "MALFORMED_RESPONSE"
	ErrorTooManyLocations   ErrorKind = "TOO_MANY_LOCATIONS"
	ErrorMissingLocation    ErrorKind = "MISSING_LOCATION"
	ErrorUnknownTool        ErrorKind = "UNKNOWN_TOOL"
)

// Error is a weather-domain failure. Message is safe to show to end users;
// Err carries the underlying cause for logs.
type Error struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("weather: %s (%s)", e.Kind, e.Message)
	}
	return fmt.Sprintf("weather: %s (%s): %v", e.Kind, e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func NewError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// IsKind reports whether err is a weather Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var werr *Error
	return errors.As(err, &werr) && werr.Kind == kind
}

func errServiceUnavailable(status int) *Error {
	return &Error{
		Kind:       ErrorServiceUnavailable,
		Message:    "Weather service is temporarily unavailable. Please try again later.",
		StatusCode: status,
	}
}

func errLocationNotFound(location string) *Error {
	return NewError(ErrorLocationNotFound,
		fmt.Sprintf("Could not find coordinates for '%s'. Please check the spelling and try again.", location), nil)
}
