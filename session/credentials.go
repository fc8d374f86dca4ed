// Package session manages the access/refresh credential pair for the
// marketplace backend: durable storage, login/logout lifecycle, and the
// token refresh used by the HTTP client middleware.
package session

// Credentials is the persisted credential pair plus the identifier it was
// issued for. The access token is short-lived and attached to authenticated
// requests; the refresh token is used solely to mint a new access token.
type Credentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Username     string `json:"username,omitempty"`
}

// Valid reports whether the credentials represent an authenticated session.
// A partial state (one token present, the other missing) reads as
// unauthenticated.
func (c Credentials) Valid() bool {
	return c.AccessToken != "" && c.RefreshToken != ""
}
