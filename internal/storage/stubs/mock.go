package stubs

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	"reader/internal/storage"
)

// ErrInjected is returned by mocks configured to fail
var ErrInjected = errors.New("stubs: injected failure")

// MockBlobStore is an in-memory implementation of storage.BlobStore for testing
type MockBlobStore struct {
	mu   sync.RWMutex
	docs map[string][]byte

	// FailReads and FailWrites make the corresponding calls return ErrInjected
	FailReads  bool
	FailWrites bool

	writes int
}

var _ storage.BlobStore = (*MockBlobStore)(nil)

// NewMockBlobStore creates an empty in-memory blob store
func NewMockBlobStore() *MockBlobStore {
	return &MockBlobStore{docs: make(map[string][]byte)}
}

// Read returns a copy of the stored document
func (m *MockBlobStore) Read(ctx context.Context, name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.FailReads {
		return nil, ErrInjected
	}
	data, ok := m.docs[name]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return slices.Clone(data), nil
}

// Write replaces the stored document
func (m *MockBlobStore) Write(ctx context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWrites {
		return ErrInjected
	}
	m.docs[name] = slices.Clone(data)
	m.writes++
	return nil
}

// Delete removes the document if present
func (m *MockBlobStore) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWrites {
		return ErrInjected
	}
	delete(m.docs, name)
	return nil
}

// Names returns the stored document names in sorted order
func (m *MockBlobStore) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.docs))
}

// Writes returns how many successful writes happened
func (m *MockBlobStore) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

// SetFailWrites toggles write failures while holding the lock
func (m *MockBlobStore) SetFailWrites(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailWrites = fail
}

// SetFailReads toggles read failures while holding the lock
func (m *MockBlobStore) SetFailReads(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailReads = fail
}

// Close does nothing for the mock store
func (m *MockBlobStore) Close() error {
	return nil
}

// MockKeyValue is an in-memory implementation of storage.KeyValue for testing
type MockKeyValue struct {
	mu     sync.RWMutex
	values map[string]string

	FailWrites bool
}

var _ storage.KeyValue = (*MockKeyValue)(nil)

// NewMockKeyValue creates an empty in-memory key-value store
func NewMockKeyValue() *MockKeyValue {
	return &MockKeyValue{values: make(map[string]string)}
}

// NewMockPreferences creates typed preferences backed by a MockKeyValue
func NewMockPreferences() *storage.TypedPreferences {
	return storage.NewTypedPreferences(NewMockKeyValue())
}

// Get returns the raw value or storage.ErrNotFound
func (m *MockKeyValue) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

// Set stores the raw value
func (m *MockKeyValue) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWrites {
		return ErrInjected
	}
	m.values[key] = value
	return nil
}

// Remove deletes the key if present
func (m *MockKeyValue) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)
	return nil
}

// Close does nothing for the mock store
func (m *MockKeyValue) Close() error {
	return nil
}
