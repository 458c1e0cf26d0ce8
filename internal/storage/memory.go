package storage

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"
)

// MemoryStorage is an in-process FileStorage for tests and local runs
// without an object store.
type MemoryStorage struct {
	mu      sync.RWMutex
	baseURL string
	objects map[string]memoryObject
	puts    int
}

type memoryObject struct {
	body        []byte
	contentType string
	modified    time.Time
}

func NewMemoryStorage(baseURL string) *MemoryStorage {
	return &MemoryStorage{baseURL: baseURL, objects: map[string]memoryObject{}}
}

func (m *MemoryStorage) PutObject(_ context.Context, objectKey string, body []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(body))
	copy(cp, body)
	m.objects[objectKey] = memoryObject{body: cp, contentType: contentType, modified: time.Now().UTC()}
	m.puts++
	return nil
}

func (m *MemoryStorage) StatObject(_ context.Context, objectKey string) (*ObjectMetadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[objectKey]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return &ObjectMetadata{Size: int64(len(obj.body)), ContentType: obj.contentType, LastModified: obj.modified}, nil
}

func (m *MemoryStorage) GeneratePresignedDownloadURL(_ context.Context, objectKey string, expires time.Duration) (string, error) {
	return fmt.Sprintf("%s/%s?expires=%d", m.baseURL, url.PathEscape(objectKey), int64(clampExpiry(expires).Seconds())), nil
}

func (m *MemoryStorage) DeleteObject(_ context.Context, objectKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, objectKey)
	return nil
}

// ReadObject returns a stored object's bytes and content type.
func (m *MemoryStorage) ReadObject(objectKey string) ([]byte, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[objectKey]
	return obj.body, obj.contentType, ok
}

// Puts counts PutObject calls.
func (m *MemoryStorage) Puts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.puts
}
