package piwigo

import (
	"errors"
	"fmt"
)

// Error kinds returned by the gateway. Auth errors are a global
// precondition failure: callers must stop all in-progress work and
// re-establish the session. Transient errors may be retried.
type ErrorKind int

const (
	ErrKindTransient ErrorKind = iota // network unreachable, timeout, server 5xx
	ErrKindAuth                       // invalid credentials, incompatible server, invalid URL
	ErrKindNotFound                   // album or image no longer exists on the server
	ErrKindInvalid                    // malformed request or response
)

// APIError is a typed failure from the Piwigo server or the transport
// underneath it.
type APIError struct {
	Kind       ErrorKind
	HTTPStatus int    // 0 when the request never reached the server
	PwgCode    int    // Piwigo "err" code, 0 when absent
	Message    string
	Err        error // wrapped transport error, may be nil
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("piwigo: %s (http %d, err %d): %v", e.Message, e.HTTPStatus, e.PwgCode, e.Err)
	}
	return fmt.Sprintf("piwigo: %s (http %d, err %d)", e.Message, e.HTTPStatus, e.PwgCode)
}

func (e *APIError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable gateway failure.
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind == ErrKindTransient
	}
	return false
}

// IsAuth reports whether err means the session must be re-established.
func IsAuth(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind == ErrKindAuth
	}
	return false
}

// IsNotFound reports whether err means the requested album or image no
// longer exists on the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind == ErrKindNotFound
	}
	return false
}

func transientErr(msg string, err error) *APIError {
	return &APIError{Kind: ErrKindTransient, Message: msg, Err: err}
}
