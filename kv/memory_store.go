package kv

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps records in process memory only. It backs
// store.driver=memory and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]Record)}
}

func (s *MemoryStore) Get(_ context.Context, key string, out any) (bool, error) {
	key, err := validateKey(key)
	if err != nil {
		return false, err
	}
	s.mu.RLock()
	rec, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	return true, rec.Decode(out)
}

func (s *MemoryStore) Upsert(_ context.Context, key string, value any) error {
	key, err := validateKey(key)
	if err != nil {
		return err
	}
	raw, err := encodeValue(key, value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.data[key] = Record{Key: key, Value: raw, UpdatedAt: time.Now().UTC()}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Scan(_ context.Context, prefix string) ([]Record, error) {
	s.mu.RLock()
	out := make([]Record, 0)
	for k, rec := range s.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, rec)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
