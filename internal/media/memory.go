package media

import (
	"context"
	"errors"
	"sync"
)

// MemoryStore keeps images in a map; used by tests.
type MemoryStore struct {
	mu         sync.Mutex
	Objects    map[string]Checked
	BaseURL    string
	ShouldFail bool
}

func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{Objects: make(map[string]Checked), BaseURL: baseURL}
}

func (m *MemoryStore) Save(ctx context.Context, key string, img Checked) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errors.New("mock: image upload failed")
	}
	m.Objects[key] = img
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Objects, key)
	return nil
}

func (m *MemoryStore) URL(key string) string {
	if key == "" {
		return ""
	}
	return m.BaseURL + key
}

func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Objects)
}
