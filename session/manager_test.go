package session_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/c360studio/marketctl/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tokenBackend is a minimal fake of the backend's token endpoints.
func tokenBackend(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		switch r.URL.Path {
		case "/api/token/":
			if body["username"] == "alice" && body["password"] == "secret" {
				json.NewEncoder(w).Encode(map[string]string{
					"access":  "access-1",
					"refresh": "refresh-1",
				})
				return
			}
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{
				"detail": "No active account found with the given credentials",
			})

		case "/api/token/refresh/":
			if body["refresh"] == "refresh-1" {
				json.NewEncoder(w).Encode(map[string]string{"access": "access-2"})
				return
			}
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"detail": "Token is invalid or expired"})

		case "/api/register/":
			if body["username"] == "taken" {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{"error": "Username already exists"})
				return
			}
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]string{"message": "Registration successful"})

		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestManager_LoginPersistsSession(t *testing.T) {
	server := tokenBackend(t)
	defer server.Close()

	store := session.NewMemStore()
	mgr := session.NewManager(store, server.URL)

	require.NoError(t, mgr.Login(context.Background(), "alice", "secret"))

	creds, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "access-1", creds.AccessToken)
	assert.Equal(t, "refresh-1", creds.RefreshToken)
	assert.Equal(t, "alice", creds.Username)

	// A manager constructed after login over the same store sees the session.
	other := session.NewManager(store, server.URL)
	assert.True(t, other.IsAuthenticated())
	assert.Equal(t, "alice", other.Username())
	assert.Equal(t, "access-1", other.AccessToken())
}

func TestManager_LoginRejected(t *testing.T) {
	server := tokenBackend(t)
	defer server.Close()

	store := session.NewMemStore()
	mgr := session.NewManager(store, server.URL)

	err := mgr.Login(context.Background(), "alice", "wrong")
	require.Error(t, err)
	assert.True(t, session.IsAuthError(err))
	assert.Contains(t, err.Error(), "No active account")

	assert.False(t, mgr.IsAuthenticated())
}

func TestManager_LogoutIsIdempotent(t *testing.T) {
	store := session.NewMemStore()
	mgr := session.NewManager(store, "http://unused")

	require.NoError(t, mgr.Logout())

	require.NoError(t, store.Save(session.Credentials{AccessToken: "a", RefreshToken: "r"}))
	require.NoError(t, mgr.Logout())
	require.NoError(t, mgr.Logout())
	assert.False(t, mgr.IsAuthenticated())
}

func TestManager_PartialCredentialsReadAsUnauthenticated(t *testing.T) {
	store := session.NewMemStore()
	require.NoError(t, store.Save(session.Credentials{AccessToken: "a"}))

	mgr := session.NewManager(store, "http://unused")
	assert.False(t, mgr.IsAuthenticated())
	assert.Empty(t, mgr.AccessToken())
	assert.Empty(t, mgr.Username())
}

func TestManager_RefreshReplacesOnlyAccessToken(t *testing.T) {
	server := tokenBackend(t)
	defer server.Close()

	store := session.NewMemStore()
	require.NoError(t, store.Save(session.Credentials{
		AccessToken:  "stale",
		RefreshToken: "refresh-1",
		Username:     "alice",
	}))

	mgr := session.NewManager(store, server.URL)
	token, err := mgr.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-2", token)

	creds, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "access-2", creds.AccessToken)
	assert.Equal(t, "refresh-1", creds.RefreshToken)
	assert.Equal(t, "alice", creds.Username)
}

func TestManager_RefreshFailureForcesSignout(t *testing.T) {
	server := tokenBackend(t)
	defer server.Close()

	store := session.NewMemStore()
	require.NoError(t, store.Save(session.Credentials{
		AccessToken:  "stale",
		RefreshToken: "expired",
	}))

	var signals atomic.Int32
	mgr := session.NewManager(store, server.URL,
		session.WithSigninSignal(func() { signals.Add(1) }))

	_, err := mgr.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, session.IsRefreshError(err))

	assert.False(t, mgr.IsAuthenticated())
	assert.Equal(t, int32(1), signals.Load(), "exactly one sign-in signal")

	_, err = store.Load()
	assert.ErrorIs(t, err, session.ErrNoCredentials)
}

func TestManager_RefreshWithoutSessionForcesSignout(t *testing.T) {
	store := session.NewMemStore()

	var signals atomic.Int32
	mgr := session.NewManager(store, "http://unused",
		session.WithSigninSignal(func() { signals.Add(1) }))

	_, err := mgr.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, session.IsRefreshError(err))
	assert.Equal(t, int32(1), signals.Load())
}

func TestManager_Register(t *testing.T) {
	server := tokenBackend(t)
	defer server.Close()

	mgr := session.NewManager(session.NewMemStore(), server.URL)

	require.NoError(t, mgr.Register(context.Background(), "bob", "bob@example.com", "hunter22"))

	err := mgr.Register(context.Background(), "taken", "taken@example.com", "hunter22")
	require.Error(t, err)
	assert.True(t, session.IsAuthError(err))
	assert.Contains(t, err.Error(), "already exists")

	// Registration never logs the user in.
	assert.False(t, mgr.IsAuthenticated())
}
