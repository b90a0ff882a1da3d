package localstore

import (
	"context"
	"property-feed-service/internal/core/port"
	"sync"
)

// MemoryStore - та же семантика квоты, что у SQLiteStore, но без диска
type MemoryStore struct {
	mu         sync.RWMutex
	data       map[string]string
	quotaBytes int64
}

// NewMemoryStore создает хранилище; quotaBytes <= 0 снимает ограничение
func NewMemoryStore(quotaBytes int64) *MemoryStore {
	return &MemoryStore{
		data:       make(map[string]string),
		quotaBytes: quotaBytes,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.quotaBytes > 0 {
		var used int64
		for k, v := range s.data {
			if k != key {
				used += entrySize(k, v)
			}
		}
		if used+entrySize(key, value) > s.quotaBytes {
			return port.ErrQuotaExceeded
		}
	}

	s.data[key] = value
	return nil
}
