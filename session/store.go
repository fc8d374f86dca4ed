package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrNoCredentials is returned by Store.Load when no credentials are persisted.
var ErrNoCredentials = errors.New("no stored credentials")

// Store persists the credential pair. Save writes all fields together and
// Clear removes them together, so a reader never observes a partial state.
type Store interface {
	// Load returns the stored credentials, or ErrNoCredentials.
	Load() (Credentials, error)

	// Save persists the credentials, replacing any previous set.
	Save(Credentials) error

	// Clear removes the stored credentials. Clearing an empty store is not
	// an error.
	Clear() error
}

// FileStore persists credentials as a JSON file with owner-only permissions.
// Writes go through a temp file and rename so concurrent readers (including
// the Watcher in another process) never see a torn write.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a file-backed store at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the credential file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load implements Store.
func (s *FileStore) Load() (Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return Credentials{}, ErrNoCredentials
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("read credentials: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return Credentials{}, fmt.Errorf("parse credentials: %w", err)
	}
	return creds, nil
}

// Save implements Store.
func (s *FileStore) Save(creds Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create credentials directory: %w", err)
	}

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

// Clear implements Store.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

// MemStore is an in-memory Store for tests.
type MemStore struct {
	mu    sync.Mutex
	creds Credentials
	set   bool
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{}
}

// Load implements Store.
func (s *MemStore) Load() (Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		return Credentials{}, ErrNoCredentials
	}
	return s.creds, nil
}

// Save implements Store.
func (s *MemStore) Save(creds Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = creds
	s.set = true
	return nil
}

// Clear implements Store.
func (s *MemStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = Credentials{}
	s.set = false
	return nil
}
