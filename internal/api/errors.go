package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthorized matches any *StatusError carrying HTTP 401.
var ErrUnauthorized = errors.New("api: unauthorized")

// StatusError is a response with a non-2xx status.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api: %s %s: status %d", e.Method, e.Path, e.Code)
}

// Is lets errors.Is(err, ErrUnauthorized) match a 401.
func (e *StatusError) Is(target error) bool {
	return target == ErrUnauthorized && e.Code == http.StatusUnauthorized
}

// TransportError is a failure before any response was received: DNS,
// connection refused, timeout, cancelled context.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("api: %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsUnauthorized reports whether err is an HTTP 401 from the backend.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
