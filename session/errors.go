package session

import (
	"errors"
	"fmt"
)

// AuthError reports a credential exchange rejected by the backend (bad
// credentials, inactive account). It is never retried.
type AuthError struct {
	// Status is the HTTP status returned by the token endpoint.
	Status int

	// Detail is the backend's rejection reason, if it provided one.
	Detail string
}

func (e *AuthError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("authentication failed: %s", e.Detail)
	}
	return fmt.Sprintf("authentication failed (status %d)", e.Status)
}

// RefreshError reports a failed access token refresh. By the time it is
// returned the session has already been cleared and the sign-in signal fired.
type RefreshError struct {
	err error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("token refresh failed: %v", e.err)
}

func (e *RefreshError) Unwrap() error {
	return e.err
}

// IsAuthError returns true if the error is a backend credential rejection.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IsRefreshError returns true if the error is a failed token refresh.
func IsRefreshError(err error) bool {
	var refreshErr *RefreshError
	return errors.As(err, &refreshErr)
}
