package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"maps"
	"sync"

	"go.uber.org/zap"

	"reader/internal/models"
	"reader/internal/storage"
)

// ShelvesDocument is the blob name holding every cached shelf
const ShelvesDocument = "shelves.json"

// ShelfStore persists all shelves as one JSON document keyed by shelf key.
//
// Every operation holds the store mutex for its whole read-modify-write, so
// two concurrent WriteOne calls can never lose each other's shelf.
type ShelfStore struct {
	mu     sync.Mutex
	blobs  storage.BlobStore
	logger *zap.Logger
}

// NewShelfStore creates a shelf store on top of a blob store
func NewShelfStore(blobs storage.BlobStore, logger *zap.Logger) *ShelfStore {
	return &ShelfStore{blobs: blobs, logger: logger}
}

func (s *ShelfStore) readAll(ctx context.Context) (map[string]models.Shelf, error) {
	data, err := s.blobs.Read(ctx, ShelvesDocument)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, &Error{Op: "read", Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrCacheMiss
	}

	var shelves map[string]models.Shelf
	if err := json.Unmarshal(data, &shelves); err != nil {
		return nil, &Error{Op: "decode", Err: err}
	}
	if len(shelves) == 0 {
		return nil, ErrCacheMiss
	}

	for key, shelf := range shelves {
		shelf.Key = key
		if shelf.Books == nil {
			shelf.Books = []models.Book{}
		}
		shelf.Normalize()
		shelves[key] = shelf
	}
	return shelves, nil
}

func (s *ShelfStore) writeAll(ctx context.Context, shelves map[string]models.Shelf) error {
	if shelves == nil {
		shelves = map[string]models.Shelf{}
	}
	for key, shelf := range shelves {
		shelf.Normalize()
		shelves[key] = shelf
	}

	data, err := json.Marshal(shelves)
	if err != nil {
		return &Error{Op: "encode", Err: err}
	}
	if err := s.blobs.Write(ctx, ShelvesDocument, data); err != nil {
		return &Error{Op: "write", Err: err}
	}

	s.logger.Debug("Shelf cache written", zap.Int("shelves", len(shelves)))
	return nil
}

// ReadAll returns every cached shelf, or ErrCacheMiss if nothing is persisted
func (s *ShelfStore) ReadAll(ctx context.Context) (map[string]models.Shelf, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readAll(ctx)
}

// WriteAll atomically replaces the whole cached collection
func (s *ShelfStore) WriteAll(ctx context.Context, shelves map[string]models.Shelf) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeAll(ctx, maps.Clone(shelves))
}

// ReadOne returns a single cached shelf, or ErrCacheMiss if it is absent
func (s *ShelfStore) ReadOne(ctx context.Context, key string) (models.Shelf, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shelves, err := s.readAll(ctx)
	if err != nil {
		return models.Shelf{}, err
	}
	shelf, ok := shelves[key]
	if !ok {
		return models.Shelf{}, ErrCacheMiss
	}
	return shelf, nil
}

// WriteOne merges a single shelf into the collection without touching the others
func (s *ShelfStore) WriteOne(ctx context.Context, shelf models.Shelf) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	shelves, err := s.readAll(ctx)
	if errors.Is(err, ErrCacheMiss) {
		shelves = make(map[string]models.Shelf, 1)
	} else if err != nil {
		return err
	}
	shelves[shelf.Key] = shelf
	return s.writeAll(ctx, shelves)
}

// Update runs fn on the cached collection and persists the result.
// Returns ErrCacheMiss without calling fn when nothing is cached; an error
// from fn aborts the write.
func (s *ShelfStore) Update(ctx context.Context, fn func(shelves map[string]models.Shelf) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	shelves, err := s.readAll(ctx)
	if err != nil {
		return err
	}
	if err := fn(shelves); err != nil {
		return err
	}
	return s.writeAll(ctx, shelves)
}

// Replace persists the collection fn derives from the cached one, holding the
// lock across both. A missing or unreadable document reaches fn as an empty
// map and is overwritten.
func (s *ShelfStore) Replace(ctx context.Context, fn func(current map[string]models.Shelf) map[string]models.Shelf) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.readAll(ctx)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			s.logger.Warn("Replacing unreadable shelf cache", zap.Error(err))
		}
		current = make(map[string]models.Shelf)
	}
	return s.writeAll(ctx, fn(current))
}

// Clear removes the persisted collection
func (s *ShelfStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.blobs.Delete(ctx, ShelvesDocument); err != nil {
		return &Error{Op: "clear", Err: err}
	}
	return nil
}
