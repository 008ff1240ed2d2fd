package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound matches any HTTPError carrying status 404.
var ErrNotFound = errors.New("resource not found")

// TransportError means no response was received: dial failures, timeouts, resets,
// or the client-side limiter refusing to wait.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HTTPError is a non-2xx response that is not an authorization failure.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected response %d", e.Status)
}

func (e *HTTPError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// AuthError is a 401 or 403 response. It is never transient.
type AuthError struct {
	Status int
	Body   string
}

func (e *AuthError) Error() string {
	if e.Status == http.StatusForbidden {
		return "forbidden"
	}
	return "unauthorized"
}

// DecodeError means a 2xx response did not have the expected shape.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode response: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Kind names the error class used by renderers and logs.
type Kind string

const (
	KindNone      Kind = ""
	KindTransport Kind = "transport"
	KindHTTP      Kind = "http"
	KindDecode    Kind = "decode"
	KindAuth      Kind = "auth"
	KindOther     Kind = "other"
)

// Classify returns the taxonomy class of err.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	var (
		authErr      *AuthError
		httpErr      *HTTPError
		decodeErr    *DecodeError
		transportErr *TransportError
	)
	switch {
	case errors.As(err, &authErr):
		return KindAuth
	case errors.As(err, &httpErr):
		return KindHTTP
	case errors.As(err, &decodeErr):
		return KindDecode
	case errors.As(err, &transportErr):
		return KindTransport
	default:
		return KindOther
	}
}

// StatusOf returns the upstream HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Status
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status
	}
	return 0
}

// Retryable reports whether err is worth another attempt: transport failures the
// caller did not cancel, and 5xx responses.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return !errors.Is(err, context.Canceled)
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status >= http.StatusInternalServerError
	}
	return false
}
