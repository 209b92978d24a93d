package storage

import (
	"context"
	"fmt"
	"sync"
)

// MockStore is an in-memory BlobStore for tests.
type MockStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte

	// Error injection
	PutErr    error
	GetErr    error
	DeleteErr error
}

// NewMockStore creates a mock blob store.
func NewMockStore() *MockStore {
	return &MockStore{
		blobs: make(map[string][]byte),
	}
}

// Put stores a copy of data.
func (m *MockStore) Put(ctx context.Context, namespace string, data []byte) (string, error) {
	if m.PutErr != nil {
		return "", m.PutErr
	}

	ref, err := newRef(namespace)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.blobs[ref] = append([]byte(nil), data...)
	return ref, nil
}

// Get returns a copy of the stored blob.
func (m *MockStore) Get(ctx context.Context, ref string) ([]byte, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.blobs[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, ref)
	}
	return append([]byte(nil), data...), nil
}

// Delete removes a blob.
func (m *MockStore) Delete(ctx context.Context, ref string) error {
	if m.DeleteErr != nil {
		return m.DeleteErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.blobs, ref)
	return nil
}

// Set overwrites a blob in place, for corruption tests.
func (m *MockStore) Set(ref string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[ref] = append([]byte(nil), data...)
}

// Has reports whether ref is stored.
func (m *MockStore) Has(ref string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blobs[ref]
	return ok
}

// Len returns the number of stored blobs.
func (m *MockStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}
