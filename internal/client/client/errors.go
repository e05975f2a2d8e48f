package client

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnavailable means the API could not be reached at all.
	ErrUnavailable = errors.New("server unavailable")
	// ErrUnauthorized is returned for 401 responses. The bearer credential
	// is no longer accepted and the session must end.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrServer covers every other failed response.
	ErrServer = errors.New("server error")
)

// APIError is a non-2xx (or success=false) response from the API.
// It matches ErrUnauthorized or ErrServer with errors.Is.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("api: status %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return ErrServer
}
