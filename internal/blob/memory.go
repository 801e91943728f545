package blob

import (
	"context"
	"fmt"
	"sync"

	apperrors "github.com/kimhsiao/fieldsync/internal/errors"
)

// MemoryStore is an in-memory ObjectStore with failure injection.
type MemoryStore struct {
	mu         sync.Mutex
	baseURL    string
	objects    map[string][]byte
	uploadErrs []error
}

var _ ObjectStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store whose URLs start with baseURL.
func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{baseURL: baseURL, objects: make(map[string][]byte)}
}

// FailUploads makes the next uploads fail with errs, in order.
func (m *MemoryStore) FailUploads(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadErrs = append(m.uploadErrs, errs...)
}

// Put stores data under a URL directly.
func (m *MemoryStore) Put(rawURL string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[rawURL] = append([]byte(nil), data...)
}

// Len returns the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

func (m *MemoryStore) url(key string) string {
	return fmt.Sprintf("%s/%s", m.baseURL, key)
}

// Upload implements ObjectStore.
func (m *MemoryStore) Upload(_ context.Context, key string, data []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.uploadErrs) > 0 {
		err := m.uploadErrs[0]
		m.uploadErrs = m.uploadErrs[1:]
		return "", err
	}
	u := m.url(key)
	m.objects[u] = append([]byte(nil), data...)
	return u, nil
}

// Download implements ObjectStore.
func (m *MemoryStore) Download(_ context.Context, rawURL string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[rawURL]
	if !ok {
		return nil, &apperrors.HTTPError{Status: 404, Message: "object not found"}
	}
	return append([]byte(nil), data...), nil
}

// Delete implements ObjectStore.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, m.url(key))
	return nil
}
