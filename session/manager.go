package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Backend token endpoints. Trailing slashes are significant: the backend's
// router rejects the slash-less variants.
const (
	tokenPath    = "/api/token/"
	refreshPath  = "/api/token/refresh/"
	registerPath = "/api/register/"
)

// maxErrorBodySize caps how much of an error response body is read for the
// rejection detail.
const maxErrorBodySize = 64 * 1024

// SigninSignal is invoked when the session becomes irrecoverably invalid and
// the user must sign in again. The CLI maps it to a sign-in hint; an embedding
// UI would navigate to its sign-in view.
type SigninSignal func()

// Manager owns the credential pair lifecycle: login creates it, refresh
// mutates the access token in place, logout (voluntary or forced) destroys
// it. The Store is its only persistence delegate, so authentication state is
// process-wide, not bound to any one component.
//
// Token endpoint calls use the Manager's own plain HTTP client, never the
// refreshing client built on top of it, so a rejected refresh cannot recurse.
type Manager struct {
	store      Store
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	onSignin   SigninSignal
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithHTTPClient sets the HTTP client used for token endpoint calls.
func WithHTTPClient(c *http.Client) ManagerOption {
	return func(m *Manager) {
		m.httpClient = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithSigninSignal sets the callback fired on forced logout.
func WithSigninSignal(fn SigninSignal) ManagerOption {
	return func(m *Manager) {
		m.onSignin = fn
	}
}

// NewManager creates a session manager against the given backend base URL,
// persisting through store.
func NewManager(store Store, baseURL string, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:   store,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Login exchanges the username/password for an access/refresh pair and
// persists all session fields together. A backend rejection surfaces as
// *AuthError and is not retried.
func (m *Manager) Login(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return &AuthError{Detail: "username and password are required"}
	}

	var result struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
	}
	if err := m.postJSON(ctx, tokenPath, map[string]string{
		"username": username,
		"password": password,
	}, &result); err != nil {
		return err
	}

	if result.Access == "" || result.Refresh == "" {
		return &AuthError{Detail: "token endpoint returned an incomplete pair"}
	}

	creds := Credentials{
		AccessToken:  result.Access,
		RefreshToken: result.Refresh,
		Username:     username,
	}
	if err := m.store.Save(creds); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}

	m.logger.Info("Logged in", slog.String("username", username))
	return nil
}

// Register creates a new account. It does not log the user in.
func (m *Manager) Register(ctx context.Context, username, email, password string) error {
	if username == "" || email == "" || password == "" {
		return &AuthError{Detail: "username, email and password are required"}
	}

	if err := m.postJSON(ctx, registerPath, map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	}, nil); err != nil {
		return err
	}

	m.logger.Info("Registered account", slog.String("username", username))
	return nil
}

// Logout clears all persisted session fields unconditionally. Logging out
// with no session is not an error.
func (m *Manager) Logout() error {
	if err := m.store.Clear(); err != nil {
		return err
	}
	m.logger.Info("Logged out")
	return nil
}

// IsAuthenticated reports whether a complete credential pair is persisted.
// It reads through the Store on every call so any component, including ones
// constructed after login, sees the same answer.
func (m *Manager) IsAuthenticated() bool {
	creds, err := m.store.Load()
	if err != nil {
		return false
	}
	return creds.Valid()
}

// Username returns the identifier the current session was created for, or ""
// when unauthenticated.
func (m *Manager) Username() string {
	creds, err := m.store.Load()
	if err != nil || !creds.Valid() {
		return ""
	}
	return creds.Username
}

// AccessToken returns the current access token, or "" when unauthenticated.
func (m *Manager) AccessToken() string {
	creds, err := m.store.Load()
	if err != nil || !creds.Valid() {
		return ""
	}
	return creds.AccessToken
}

// Refresh exchanges the stored refresh token for a new access token and
// persists it, leaving the refresh token and username untouched. On any
// failure the session is cleared, the sign-in signal fires exactly once, and
// a *RefreshError is returned.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	creds, err := m.store.Load()
	if err != nil || creds.RefreshToken == "" {
		m.forceSignout()
		return "", &RefreshError{err: ErrNoCredentials}
	}

	var result struct {
		Access string `json:"access"`
	}
	if err := m.postJSON(ctx, refreshPath, map[string]string{
		"refresh": creds.RefreshToken,
	}, &result); err != nil {
		m.forceSignout()
		return "", &RefreshError{err: err}
	}
	if result.Access == "" {
		m.forceSignout()
		return "", &RefreshError{err: fmt.Errorf("refresh endpoint returned no access token")}
	}

	creds.AccessToken = result.Access
	if err := m.store.Save(creds); err != nil {
		return "", fmt.Errorf("persist refreshed session: %w", err)
	}

	m.logger.Debug("Refreshed access token", slog.String("username", creds.Username))
	return result.Access, nil
}

// forceSignout clears the session and fires the sign-in signal.
func (m *Manager) forceSignout() {
	if err := m.store.Clear(); err != nil {
		m.logger.Warn("Failed to clear session", slog.String("error", err.Error()))
	}
	m.logger.Info("Session expired, sign-in required")
	if m.onSignin != nil {
		m.onSignin()
	}
}

// postJSON posts a JSON payload to a token endpoint and decodes the 2xx
// response into out (when non-nil). Non-2xx responses become *AuthError with
// the backend's detail.
func (m *Manager) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &AuthError{
			Status: resp.StatusCode,
			Detail: readErrorDetail(resp.Body),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBodySize)).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// readErrorDetail extracts the human-readable reason from a backend error
// body. The backend is inconsistent about the field name.
func readErrorDetail(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return ""
	}

	var body struct {
		Error   string `json:"error"`
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return strings.TrimSpace(string(data))
	}

	switch {
	case body.Error != "":
		return body.Error
	case body.Detail != "":
		return body.Detail
	case body.Message != "":
		return body.Message
	}
	return ""
}
