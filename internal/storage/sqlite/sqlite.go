package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"reader/internal/storage"
)

type document struct {
	bun.BaseModel `bun:"table:documents"`

	Name      string    `bun:"name,pk"`
	Body      []byte    `bun:"body,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

type preference struct {
	bun.BaseModel `bun:"table:preferences"`

	Key   string `bun:"key,pk"`
	Value string `bun:"value,notnull"`
}

// Store keeps cache documents and raw preferences in one SQLite database.
// It implements both storage.BlobStore and storage.KeyValue.
type Store struct {
	db        *bun.DB
	closeOnce sync.Once
	closeErr  error
}

var (
	_ storage.BlobStore = (*Store)(nil)
	_ storage.KeyValue  = (*Store)(nil)
)

// Open opens (or creates) the database at dsn and ensures the tables exist
func Open(ctx context.Context, dsn string) (*Store, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// SQLite allows a single writer
	sqldb.SetMaxOpenConns(1)

	store, err := NewStore(ctx, sqldb)
	if err != nil {
		sqldb.Close()
		return nil, err
	}
	return store, nil
}

// NewStore wraps an already opened SQLite handle
func NewStore(ctx context.Context, sqldb *sql.DB) (*Store, error) {
	db := bun.NewDB(sqldb, sqlitedialect.New())

	if _, err := db.NewCreateTable().Model((*document)(nil)).IfNotExists().Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to create documents table: %w", err)
	}
	if _, err := db.NewCreateTable().Model((*preference)(nil)).IfNotExists().Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to create preferences table: %w", err)
	}

	return &Store{db: db}, nil
}

// Read returns the document body or storage.ErrNotFound
func (s *Store) Read(ctx context.Context, name string) ([]byte, error) {
	doc := new(document)
	if err := s.db.NewSelect().Model(doc).Where("name = ?", name).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read document %s: %w", name, err)
	}
	return doc.Body, nil
}

// Write upserts the whole document in a single statement
func (s *Store) Write(ctx context.Context, name string, data []byte) error {
	doc := &document{Name: name, Body: data, UpdatedAt: time.Now().UTC()}
	_, err := s.db.NewInsert().Model(doc).
		On("CONFLICT (name) DO UPDATE").
		Set("body = EXCLUDED.body").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to write document %s: %w", name, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, name string) error {
	if _, err := s.db.NewDelete().Model((*document)(nil)).Where("name = ?", name).Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", name, err)
	}
	return nil
}

// Get returns the raw preference value or storage.ErrNotFound
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	pref := new(preference)
	if err := s.db.NewSelect().Model(pref).Where("key = ?", key).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("failed to read preference %s: %w", key, err)
	}
	return pref.Value, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	pref := &preference{Key: key, Value: value}
	_, err := s.db.NewInsert().Model(pref).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to write preference %s: %w", key, err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	if _, err := s.db.NewDelete().Model((*preference)(nil)).Where("key = ?", key).Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove preference %s: %w", key, err)
	}
	return nil
}

// Close closes the database once; the store is shared by blob and preference users
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}
