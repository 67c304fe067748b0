package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"reader/internal/models"
	"reader/internal/storage"
)

// ListIndexDocument tracks which list documents exist so Clear can find them
const ListIndexDocument = "lists_index.json"

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9]+`)

// ListDocumentName derives a safe blob name from a list URL
func ListDocumentName(listURL string) string {
	return "list_" + strings.Trim(unsafeChars.ReplaceAllString(listURL, "_"), "_") + ".json"
}

// ListStore persists one resolved snapshot per user list
type ListStore struct {
	mu     sync.Mutex
	blobs  storage.BlobStore
	logger *zap.Logger
}

// NewListStore creates a list store on top of a blob store
func NewListStore(blobs storage.BlobStore, logger *zap.Logger) *ListStore {
	return &ListStore{blobs: blobs, logger: logger}
}

// Read returns the cached snapshot for listURL or ErrCacheMiss
func (s *ListStore) Read(ctx context.Context, listURL string) (models.ListSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.blobs.Read(ctx, ListDocumentName(listURL))
	if errors.Is(err, storage.ErrNotFound) {
		return models.ListSnapshot{}, ErrCacheMiss
	}
	if err != nil {
		return models.ListSnapshot{}, &Error{Op: "read", Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return models.ListSnapshot{}, ErrCacheMiss
	}

	var snap models.ListSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return models.ListSnapshot{}, &Error{Op: "decode", Err: err}
	}
	if snap.Books == nil {
		snap.Books = []models.Book{}
	}
	if snap.Authors == nil {
		snap.Authors = []models.Author{}
	}
	return snap, nil
}

// Write replaces the snapshot for listURL
func (s *ListStore) Write(ctx context.Context, listURL string, snap models.ListSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.Books == nil {
		snap.Books = []models.Book{}
	}
	if snap.Authors == nil {
		snap.Authors = []models.Author{}
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return &Error{Op: "encode", Err: err}
	}

	name := ListDocumentName(listURL)
	if err := s.blobs.Write(ctx, name, data); err != nil {
		return &Error{Op: "write", Err: err}
	}

	index, err := s.readIndex(ctx)
	if err != nil {
		return err
	}
	if !slices.Contains(index, name) {
		index = append(index, name)
		if err := s.writeIndex(ctx, index); err != nil {
			return err
		}
	}

	s.logger.Debug("List cache written",
		zap.String("list", listURL),
		zap.Int("books", len(snap.Books)),
		zap.Int("authors", len(snap.Authors)))
	return nil
}

// Delete drops the snapshot for listURL
func (s *ListStore) Delete(ctx context.Context, listURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := ListDocumentName(listURL)
	if err := s.blobs.Delete(ctx, name); err != nil {
		return &Error{Op: "delete", Err: err}
	}

	index, err := s.readIndex(ctx)
	if err != nil {
		return err
	}
	if i := slices.Index(index, name); i >= 0 {
		return s.writeIndex(ctx, slices.Delete(index, i, i+1))
	}
	return nil
}

// Clear drops every known list snapshot and the index
func (s *ListStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.readIndex(ctx)
	if err != nil {
		return err
	}
	for _, name := range index {
		if err := s.blobs.Delete(ctx, name); err != nil {
			return &Error{Op: "clear", Err: err}
		}
	}
	if err := s.blobs.Delete(ctx, ListIndexDocument); err != nil {
		return &Error{Op: "clear", Err: err}
	}
	return nil
}

func (s *ListStore) readIndex(ctx context.Context) ([]string, error) {
	data, err := s.blobs.Read(ctx, ListIndexDocument)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &Error{Op: "read index", Err: err}
	}

	var index []string
	if err := json.Unmarshal(data, &index); err != nil {
		// A broken index only loses the ability to clear old lists
		s.logger.Warn("Discarding corrupt list index", zap.Error(err))
		return nil, nil
	}
	return index, nil
}

func (s *ListStore) writeIndex(ctx context.Context, index []string) error {
	data, err := json.Marshal(index)
	if err != nil {
		return &Error{Op: "encode index", Err: err}
	}
	if err := s.blobs.Write(ctx, ListIndexDocument, data); err != nil {
		return &Error{Op: "write index", Err: err}
	}
	return nil
}
