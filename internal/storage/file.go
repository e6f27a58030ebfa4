package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const fileExt = ".json"

// FileStorage keeps each key in its own file under a directory. Writes go
// to a temp file that is renamed over the target, so readers never see a
// half-written value.
type FileStorage struct {
	dir string
}

// NewFileStorage creates the directory if needed and returns a backend rooted there.
func NewFileStorage(dir string) (*FileStorage, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	return &FileStorage{dir: dir}, nil
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	return nil
}

// Dir returns the directory holding the slot files.
func (f *FileStorage) Dir() string {
	return f.dir
}

// Path returns the file that holds key.
func (f *FileStorage) Path(key string) string {
	return filepath.Join(f.dir, key+fileExt)
}

// Get reads the file for key.
func (f *FileStorage) Get(key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.Path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// Put atomically replaces the file for key.
func (f *FileStorage) Put(key string, value []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(f.dir, "."+key+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, f.Path(key)); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// Delete removes the file for key.
func (f *FileStorage) Delete(key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	err := os.Remove(f.Path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Keys lists keys that have a file in the directory.
func (f *FileStorage) Keys() ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileExt) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, fileExt))
	}
	slices.Sort(keys)
	return keys, nil
}

// Close closes the storage backend.
func (f *FileStorage) Close() error {
	return nil
}
