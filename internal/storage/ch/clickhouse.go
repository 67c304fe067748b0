package ch

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"reader/internal/storage"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// ClickHouseDB stores cache documents and raw preferences in ReplacingMergeTree
// tables. Every write inserts a new row version; reads use FINAL so only the
// latest version per key is visible. Deletes insert a tombstone row.
type ClickHouseDB struct {
	conn      clickhouse.Conn
	closeOnce sync.Once
	closeErr  error
}

var (
	_ storage.BlobStore = (*ClickHouseDB)(nil)
	_ storage.KeyValue  = (*ClickHouseDB)(nil)
)

func connOptions(host string, port int, database, user, password string, useTLS bool) *clickhouse.Options {
	options := &clickhouse.Options{
		Addr:     []string{fmt.Sprintf("%s:%d", host, port)},
		Protocol: clickhouse.Native,
		Auth: clickhouse.Auth{
			Database: database,
			Username: user,
			Password: password,
		},
		DialTimeout: 10 * time.Second,
	}

	// Configure TLS if enabled
	if useTLS {
		options.TLS = &tls.Config{
			InsecureSkipVerify: false,
		}
	}
	return options
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(host string, port int, database, user, password string, useTLS bool) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(connOptions(host, port, database, user, password, useTLS))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	// Test the connection
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// OpenSQL opens a database/sql handle to the same server, for goose migrations
func OpenSQL(host string, port int, database, user, password string, useTLS bool) (*sql.DB, error) {
	db := clickhouse.OpenDB(connOptions(host, port, database, user, password, useTLS))
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	return db, nil
}

// Read returns the latest version of a document or storage.ErrNotFound
func (db *ClickHouseDB) Read(ctx context.Context, name string) ([]byte, error) {
	var (
		body    string
		deleted uint8
	)
	row := db.conn.QueryRow(ctx, `SELECT body, deleted FROM documents FINAL WHERE name = ?`, name)
	if err := row.Scan(&body, &deleted); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read document %s: %w", name, err)
	}
	if deleted == 1 {
		return nil, storage.ErrNotFound
	}
	return []byte(body), nil
}

// Write inserts a new version of the document
func (db *ClickHouseDB) Write(ctx context.Context, name string, data []byte) error {
	err := db.conn.Exec(ctx, `INSERT INTO documents (name, body, updated_at, deleted) VALUES (?, ?, ?, ?)`,
		name, string(data), time.Now().UTC(), uint8(0))
	if err != nil {
		return fmt.Errorf("failed to write document %s: %w", name, err)
	}
	return nil
}

// Delete inserts a tombstone version of the document
func (db *ClickHouseDB) Delete(ctx context.Context, name string) error {
	err := db.conn.Exec(ctx, `INSERT INTO documents (name, body, updated_at, deleted) VALUES (?, ?, ?, ?)`,
		name, "", time.Now().UTC(), uint8(1))
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", name, err)
	}
	return nil
}

// Get returns the latest raw preference value or storage.ErrNotFound
func (db *ClickHouseDB) Get(ctx context.Context, key string) (string, error) {
	var (
		value   string
		deleted uint8
	)
	row := db.conn.QueryRow(ctx, `SELECT value, deleted FROM preferences FINAL WHERE key = ?`, key)
	if err := row.Scan(&value, &deleted); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("failed to read preference %s: %w", key, err)
	}
	if deleted == 1 {
		return "", storage.ErrNotFound
	}
	return value, nil
}

func (db *ClickHouseDB) Set(ctx context.Context, key, value string) error {
	err := db.conn.Exec(ctx, `INSERT INTO preferences (key, value, updated_at, deleted) VALUES (?, ?, ?, ?)`,
		key, value, time.Now().UTC(), uint8(0))
	if err != nil {
		return fmt.Errorf("failed to write preference %s: %w", key, err)
	}
	return nil
}

func (db *ClickHouseDB) Remove(ctx context.Context, key string) error {
	err := db.conn.Exec(ctx, `INSERT INTO preferences (key, value, updated_at, deleted) VALUES (?, ?, ?, ?)`,
		key, "", time.Now().UTC(), uint8(1))
	if err != nil {
		return fmt.Errorf("failed to remove preference %s: %w", key, err)
	}
	return nil
}

// Close closes the database connection
func (db *ClickHouseDB) Close() error {
	db.closeOnce.Do(func() {
		if db.conn != nil {
			db.closeErr = db.conn.Close()
		}
	})
	return db.closeErr
}
