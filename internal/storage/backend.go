// Package storage implements the durable slot the record collection lives in.
package storage

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Get when a key holds no value.
var ErrNotFound = errors.New("storage: key not found")

// Backend is a small durable key-value store. Values are opaque strings
// written in full; there are no partial updates.
type Backend interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(key string) ([]byte, error)

	// Put stores value under key, replacing any previous value.
	Put(key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error

	// Keys lists every stored key.
	Keys() ([]string, error)

	// Close releases the backend.
	Close() error
}

// checkKey rejects keys no backend can store safely.
func checkKey(key string) error {
	if key == "" {
		return fmt.Errorf("storage: empty key")
	}
	if strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return fmt.Errorf("storage: invalid key %q", key)
	}
	return nil
}
