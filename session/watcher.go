package session

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultDebounce is how long the watcher waits for further writes before
// reloading the credential file.
const defaultDebounce = 250 * time.Millisecond

// ChangeFunc receives the freshly loaded credentials whenever the credential
// file changes out from under this process. A zero value means the file was
// removed (logout elsewhere).
type ChangeFunc func(Credentials)

// Watcher observes the credential file for changes made by another process,
// the CLI analog of a browser tab reacting to another tab's storage writes.
// It is best-effort: watch errors are logged and the session carries on with
// its last known state.
type Watcher struct {
	store    *FileStore
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	onChange ChangeFunc
	debounce time.Duration

	pendingMu sync.Mutex
	pending   bool
}

// NewWatcher creates a watcher over the store's credential file, invoking
// onChange after each external modification settles.
func NewWatcher(store *FileStore, onChange ChangeFunc, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		store:    store,
		watcher:  fsw,
		logger:   logger,
		onChange: onChange,
		debounce: defaultDebounce,
	}, nil
}

// Start begins watching. The parent directory is watched rather than the file
// itself because the FileStore replaces the file by rename on every save.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.store.Path())
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	if err := w.watcher.Add(dir); err != nil {
		return err
	}

	go w.processEvents(ctx)

	w.logger.Debug("Credential watcher started", slog.String("path", w.store.Path()))
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

// processEvents handles fsnotify events with debouncing.
func (w *Watcher) processEvents(ctx context.Context) {
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Credential watcher error", slog.String("error", err.Error()))

		case <-ticker.C:
			w.flushPending()
		}
	}
}

// handleFSEvent marks a reload pending when the credential file changed.
func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != filepath.Clean(w.store.Path()) {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
		return
	}

	w.pendingMu.Lock()
	w.pending = true
	w.pendingMu.Unlock()

	w.logger.Debug("Credential file changed", slog.String("op", event.Op.String()))
}

// flushPending reloads the credentials and notifies once per settled burst.
func (w *Watcher) flushPending() {
	w.pendingMu.Lock()
	if !w.pending {
		w.pendingMu.Unlock()
		return
	}
	w.pending = false
	w.pendingMu.Unlock()

	creds, err := w.store.Load()
	switch {
	case err == nil:
	case errors.Is(err, ErrNoCredentials):
		creds = Credentials{}
	default:
		w.logger.Warn("Failed to reload credentials", slog.String("error", err.Error()))
		return
	}

	if w.onChange != nil {
		w.onChange(creds)
	}
}
