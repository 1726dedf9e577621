// Package memory keeps key-value records and invocation metadata in-memory for development.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/crawl-validator/internal/validation"
)

// KVStore stores records in-memory.
type KVStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewKVStore creates a new in-memory key-value store.
func NewKVStore() *KVStore {
	return &KVStore{data: make(map[string][]byte)}
}

// Get returns a copy of the record stored under key.
func (s *KVStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", validation.ErrRecordNotFound, key)
	}
	return append([]byte(nil), data...), nil
}

// Set overwrites the record stored under key.
func (s *KVStore) Set(_ context.Context, key string, data []byte) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), data...)
	return nil
}

// Keys returns the number of stored records.
func (s *KVStore) Keys() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
