package blobstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MemoryStore keeps blobs in a map. Tests and local runs only.
type MemoryStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func NewMemory() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

const memoryBase = "memory://blobs"

func (m *MemoryStore) Upload(_ context.Context, data []byte, pathHint string) (string, error) {
	key := strings.TrimPrefix(pathHint, "/")
	if key == "" {
		return "", fmt.Errorf("empty path hint")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = append([]byte(nil), data...)
	return memoryBase + "/" + key, nil
}

func (m *MemoryStore) Delete(_ context.Context, url string) error {
	key, ok := strings.CutPrefix(url, memoryBase+"/")
	if !ok {
		return fmt.Errorf("unrecognized blob url %q", url)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.blobs[key]; !exists {
		return fmt.Errorf("blob %s does not exist", key)
	}
	delete(m.blobs, key)
	return nil
}

// Get is a test helper.
func (m *MemoryStore) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[key]
	return b, ok
}
