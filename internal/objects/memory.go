package objects

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"time"
)

// MemoryObjectStore holds captured job logs in memory rather than on
// disk or in S3. It backs local development and the test suite
// (JOBSERVITOR_OBJECT_STORE_TYPE=memory) - logs don't survive a
// process restart, which is fine for a scratch environment but not a
// real deployment.
type MemoryObjectStore struct {
	mu      sync.RWMutex
	objects map[string]*MemoryObject
}

// MemoryObject is one job log held in memory.
type MemoryObject struct {
	Data         []byte
	ContentType  string
	LastModified time.Time
}

// NewMemoryObjectStore creates an empty in-memory job log store.
func NewMemoryObjectStore() *MemoryObjectStore {
	return &MemoryObjectStore{
		objects: make(map[string]*MemoryObject),
	}
}

// Put stores a job log in memory.
func (m *MemoryObjectStore) Put(ctx context.Context, key string, data io.Reader, contentType string) error {
	if err := ValidateJobLogKey(key); err != nil {
		return err
	}

	dataBytes, err := io.ReadAll(data)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[key] = &MemoryObject{
		Data:         dataBytes,
		ContentType:  contentType,
		LastModified: time.Now(),
	}
	return nil
}

// Get reads a job log back out of memory.
func (m *MemoryObjectStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ValidateJobLogKey(key); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, exists := m.objects[key]
	if !exists {
		return nil, ErrNotFound
	}

	return io.NopCloser(bytes.NewReader(obj.Data)), nil
}

// GetURL always fails for the memory backend - there is nothing durable
// to point a URL at, so callers must use Get instead.
func (m *MemoryObjectStore) GetURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	if err := ValidateJobLogKey(key); err != nil {
		return "", err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.objects[key]
	if !exists {
		return "", ErrNotFound
	}

	// Memory store doesn't support pre-signed URLs
	return "", ErrNotSupported
}

// Delete discards a captured job log.
func (m *MemoryObjectStore) Delete(ctx context.Context, key string) error {
	if err := ValidateJobLogKey(key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.objects[key]; !exists {
		return ErrNotFound
	}

	delete(m.objects, key)
	return nil
}

// Exists reports whether a job log has been captured yet.
func (m *MemoryObjectStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ValidateJobLogKey(key); err != nil {
		return false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.objects[key]
	return exists, nil
}

// List finds captured job logs held in memory under prefix - typically
// "jobs/{id}/" to list one job's stdout/stderr together.
func (m *MemoryObjectStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var objects []ObjectInfo
	for key, obj := range m.objects {
		if strings.HasPrefix(key, prefix) {
			objects = append(objects, ObjectInfo{
				Key:          key,
				Size:         int64(len(obj.Data)),
				LastModified: obj.LastModified,
				ContentType:  obj.ContentType,
			})
		}
	}

	return objects, nil
}

// Clear removes all objects (useful for testing)
func (m *MemoryObjectStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects = make(map[string]*MemoryObject)
}

// Size returns the number of objects stored
func (m *MemoryObjectStore) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
