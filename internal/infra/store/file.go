package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
)

// FileKV stores each key as a JSON file inside a directory.
type FileKV struct {
	mu  sync.Mutex
	dir string
}

// NewFileKV creates a file backend rooted at dir.
// If dir is empty, uses the default location (~/.config/playdeck).
func NewFileKV(dir string) (*FileKV, error) {
	if dir == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			return nil, errors.Wrap(err, "failed to get config directory")
		}
		dir = filepath.Join(configDir, "playdeck")
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.Wrap(err, "failed to create store directory")
	}

	return &FileKV{dir: dir}, nil
}

func (f *FileKV) path(key string) string {
	// Keys are dotted identifiers; keep them filesystem-safe.
	name := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(key)
	return filepath.Join(f.dir, name+".json")
}

func (f *FileKV) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to read store file")
	}
	return data, nil
}

func (f *FileKV) Set(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Write to a temp file first so a crash never leaves a truncated value.
	target := f.path(key)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, value, 0600); err != nil {
		return errors.Wrap(err, "failed to write store file")
	}
	if err := os.Rename(tmp, target); err != nil {
		return errors.Wrap(err, "failed to replace store file")
	}
	return nil
}

func (f *FileKV) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path(key)); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to delete store file")
	}
	return nil
}

func (f *FileKV) Close() error {
	return nil
}
