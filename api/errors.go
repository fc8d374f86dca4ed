package api

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError reports a non-2xx response from the backend.
type APIError struct {
	// Status is the HTTP status code.
	Status int

	// Detail is the backend's error message, if the body carried one.
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("api error (status %d): %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("api error (status %d)", e.Status)
}

// NetworkError reports a transport-level failure: the request never produced
// an HTTP response. It is surfaced verbatim and never retried beyond the
// single auth-refresh retry.
type NetworkError struct {
	err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.err)
}

func (e *NetworkError) Unwrap() error {
	return e.err
}

// AsAPIError unwraps err to an *APIError if one is in the chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsUnauthorized returns true if err is an APIError with status 401.
func IsUnauthorized(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Status == http.StatusUnauthorized
}

// IsNetworkError returns true if err is a transport-level failure.
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}
