package session_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/c360studio/marketctl/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	store := session.NewFileStore(path)

	creds := session.Credentials{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		Username:     "alice",
	}
	require.NoError(t, store.Save(creds))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, creds, got)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestFileStore_LoadMissing(t *testing.T) {
	store := session.NewFileStore(filepath.Join(t.TempDir(), "credentials.json"))

	_, err := store.Load()
	assert.ErrorIs(t, err, session.ErrNoCredentials)
}

func TestFileStore_ClearIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	store := session.NewFileStore(path)

	require.NoError(t, store.Save(session.Credentials{
		AccessToken:  "a",
		RefreshToken: "r",
	}))
	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear())

	_, err := store.Load()
	assert.ErrorIs(t, err, session.ErrNoCredentials)
}

func TestFileStore_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "credentials.json")
	store := session.NewFileStore(path)

	require.NoError(t, store.Save(session.Credentials{
		AccessToken:  "a",
		RefreshToken: "r",
	}))

	_, err := store.Load()
	require.NoError(t, err)
}

func TestFileStore_LoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0600))

	_, err := session.NewFileStore(path).Load()
	assert.Error(t, err)
	assert.NotErrorIs(t, err, session.ErrNoCredentials)
}

func TestMemStore(t *testing.T) {
	store := session.NewMemStore()

	_, err := store.Load()
	assert.ErrorIs(t, err, session.ErrNoCredentials)

	creds := session.Credentials{AccessToken: "a", RefreshToken: "r", Username: "bob"}
	require.NoError(t, store.Save(creds))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, creds, got)

	require.NoError(t, store.Clear())
	_, err = store.Load()
	assert.ErrorIs(t, err, session.ErrNoCredentials)
}

func TestCredentials_Valid(t *testing.T) {
	tests := []struct {
		name  string
		creds session.Credentials
		want  bool
	}{
		{"both tokens", session.Credentials{AccessToken: "a", RefreshToken: "r"}, true},
		{"access only", session.Credentials{AccessToken: "a"}, false},
		{"refresh only", session.Credentials{RefreshToken: "r"}, false},
		{"empty", session.Credentials{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.creds.Valid())
		})
	}
}
