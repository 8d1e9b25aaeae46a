package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const (
	configDirName    = "jam"
	identityFileName = "identity.json"
)

// FileStore keeps the identity as a JSON file.
type FileStore struct {
	path   string
	logger zerolog.Logger
}

// DefaultFileStore returns a FileStore at ~/.config/jam/identity.json.
func DefaultFileStore(logger zerolog.Logger) (*FileStore, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("getting user config dir: %w", err)
	}
	return NewFileStore(filepath.Join(dir, configDirName, identityFileName), logger), nil
}

// NewFileStore creates a FileStore with a custom path.
func NewFileStore(path string, logger zerolog.Logger) *FileStore {
	return &FileStore{
		path:   path,
		logger: logger.With().Str("component", "identity-file").Logger(),
	}
}

// Path returns the file path where the identity is stored.
func (f *FileStore) Path() string { return f.path }

// Load reads the identity from disk.
func (f *FileStore) Load(context.Context) (Identity, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Identity{}, nil
		}
		return Identity{}, fmt.Errorf("reading identity file: %w", err)
	}
	if len(data) == 0 {
		return Identity{}, nil
	}
	var id Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return Identity{}, fmt.Errorf("parsing identity file: %w", err)
	}
	return id, nil
}

// Save writes the identity through a temp file and rename so watchers never
// observe a half-written file.
func (f *FileStore) Save(_ context.Context, id Identity) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating identity directory: %w", err)
	}
	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding identity: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".identity-*")
	if err != nil {
		return fmt.Errorf("creating temp identity file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing identity file: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("writing identity file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing identity file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("writing identity file: %w", err)
	}
	return nil
}

// Clear removes the identity file. Returns nil if it does not exist.
func (f *FileStore) Clear(context.Context) error {
	err := os.Remove(f.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing identity file: %w", err)
	}
	return nil
}

// Watch calls fn whenever another writer changes the identity file. It
// returns once the watch is established; watching stops when ctx is done.
func (f *FileStore) Watch(ctx context.Context, fn func(Identity)) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating identity directory: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	// Watch the directory: Save replaces the file by rename.
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	last, _ := f.Load(ctx)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(f.path) {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				id, err := f.Load(ctx)
				if err != nil {
					f.logger.Warn().Err(err).Msg("reload identity failed")
					continue
				}
				if reflect.DeepEqual(id, last) {
					continue
				}
				last = id
				fn(id)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				f.logger.Warn().Err(err).Msg("identity watcher error")
			}
		}
	}()
	return nil
}
