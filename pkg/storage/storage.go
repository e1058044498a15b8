// Package storage is a flat key/value file store. Keys are slash separated
// paths; List returns the direct children of a prefix, never nested ones.
package storage

import (
	"context"
	"errors"
	"path"
	"strings"
)

// ErrNotFound is returned when a requested path does not exist in storage.
var ErrNotFound = errors.New("not found")

type Storage interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// Join builds a storage key from segments.
func Join(elem ...string) string {
	return strings.TrimPrefix(path.Join(elem...), "/")
}
