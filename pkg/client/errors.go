package client

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failed operation.
type Kind string

const (
	KindInvalidCredentials Kind = "invalid_credentials"
	KindConflict           Kind = "conflict"
	KindEndpointNotFound   Kind = "endpoint_not_found"
	KindUnreachable        Kind = "unreachable"
	KindMalformedResponse  Kind = "malformed_response"
	KindSessionExpired     Kind = "session_expired"
	KindUnknown            Kind = "unknown"
)

// Sentinels to be used with errors.Is. They match any *Error of the same Kind.
var (
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials}
	ErrConflict           = &Error{Kind: KindConflict}
	ErrEndpointNotFound   = &Error{Kind: KindEndpointNotFound}
	ErrUnreachable        = &Error{Kind: KindUnreachable}
	ErrMalformedResponse  = &Error{Kind: KindMalformedResponse}
	ErrSessionExpired     = &Error{Kind: KindSessionExpired}
	ErrUnknown            = &Error{Kind: KindUnknown}
)

// Error is a classified failure of a backend operation.
type Error struct {
	Kind Kind

	// StatusCode is the HTTP status, 0 if no response was received.
	StatusCode int

	// Message is the error reported by the server, if any.
	Message string

	CorrelationID string

	// Err is the underlying cause, e.g. the transport error.
	Err error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the Kind of err, KindUnknown if err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsUnauthorized reports whether the server rejected the credentials with 401.
func IsUnauthorized(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.StatusCode == http.StatusUnauthorized
}

func kindForStatus(status int) Kind {
	switch status {
	case http.StatusUnauthorized:
		return KindInvalidCredentials
	case http.StatusNotFound:
		return KindEndpointNotFound
	case http.StatusConflict:
		return KindConflict
	default:
		return KindUnknown
	}
}

// ValidationError is returned when input fails the local format rules.
// No request is sent in that case.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidationError reports whether err was produced by local validation.
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
