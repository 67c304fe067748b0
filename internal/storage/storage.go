package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a document or preference key does not exist
var ErrNotFound = errors.New("storage: not found")

// BlobStore defines whole-document persistence keyed by name
type BlobStore interface {
	// Read returns the document body or ErrNotFound
	Read(ctx context.Context, name string) ([]byte, error)

	// Write replaces the whole document; readers never observe a partial body
	Write(ctx context.Context, name string, data []byte) error

	// Delete removes the document; deleting a missing document is not an error
	Delete(ctx context.Context, name string) error

	// Lifecycle
	Close() error
}

// Preferences defines typed key-value settings storage.
// Getters return ErrNotFound for keys that were never set.
type Preferences interface {
	GetString(ctx context.Context, key string) (string, error)
	SetString(ctx context.Context, key, value string) error

	GetInt(ctx context.Context, key string) (int, error)
	SetInt(ctx context.Context, key string, value int) error

	GetBool(ctx context.Context, key string) (bool, error)
	SetBool(ctx context.Context, key string, value bool) error

	GetStringList(ctx context.Context, key string) ([]string, error)
	SetStringList(ctx context.Context, key string, value []string) error

	Remove(ctx context.Context, key string) error

	// Lifecycle
	Close() error
}

// KeyValue is a raw string key-value store. Wrap it with
// NewTypedPreferences to obtain Preferences.
type KeyValue interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Close() error
}
