package storage

import (
	"fmt"
	"path/filepath"

	"github.com/zot/supplies/internal/config"
)

// Open creates the backend selected by cfg.Type.
func Open(cfg config.StorageConfig) (Backend, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStorage(), nil
	case "file":
		return NewFileStorage(cfg.Path)
	case "sqlite":
		path := cfg.Path
		if filepath.Ext(path) == "" {
			path = filepath.Join(path, "supplies.db")
			if err := ensureDir(filepath.Dir(path)); err != nil {
				return nil, err
			}
		}
		return NewSQLiteStorage(path)
	case "postgresql":
		return NewPostgresStorage(cfg.URL)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
