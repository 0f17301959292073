package repository

import (
	"context"
	"sync"
)

// MemoryKVStore はプロセス内メモリのKeyValueStore。
// 再起動で消えるため、SESSION_STORE=memory の場合とテストで使用する。
type MemoryKVStore struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewMemoryKVStore はMemoryKVStoreを生成する。
func NewMemoryKVStore() *MemoryKVStore {
	return &MemoryKVStore{entries: make(map[string]string)}
}

// Get は指定キーの値を取得する。
func (s *MemoryKVStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[key]
	return v, ok, nil
}

// Set は指定キーに値を保存する。
func (s *MemoryKVStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = value
	return nil
}

// Remove は指定キーを削除する。
func (s *MemoryKVStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// compile-time interface check
var _ KeyValueStore = (*MemoryKVStore)(nil)
