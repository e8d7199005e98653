package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"
)

// MemoryObjectStore keeps objects in-process for tests. Without MinIO the
// runtime disables photo uploads instead of falling back to it.
type MemoryObjectStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	data        []byte
	contentType string
}

func NewMemoryObjectStore() *MemoryObjectStore {
	return &MemoryObjectStore{objects: make(map[string]memoryObject)}
}

func (m *MemoryObjectStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(io.LimitReader(r, MaxPhotoBytes+1))
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	if size >= 0 && int64(len(data)) != size {
		return fmt.Errorf("put %s: size mismatch (%d != %d)", key, len(data), size)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memoryObject{data: data, contentType: contentType}
	return nil
}

func (m *MemoryObjectStore) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.objects[key]; !ok {
		return "", fmt.Errorf("presign %s: not found", key)
	}
	return "memory://" + url.PathEscape(key) + "?expires=" + expiry.String(), nil
}

func (m *MemoryObjectStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// Get returns the stored bytes and content type for key.
func (m *MemoryObjectStore) Get(key string) ([]byte, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	return obj.data, obj.contentType, ok
}

var _ ObjectStore = (*MemoryObjectStore)(nil)
var _ ObjectStore = (*MinioStore)(nil)
