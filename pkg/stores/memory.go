package stores

import (
	"context"
	"sync"

	apperrors "tiercache/internal/common/errors"
)

// MemoryStore is an in-process KVStore with an optional byte quota. It is
// the default backing store and the one diagnostics self-tests use to
// provoke quota failures on demand.
type MemoryStore struct {
	mu    sync.RWMutex
	data  map[string]string
	quota int // total bytes of keys+values; 0 means unlimited
}

// NewMemoryStore creates a memory-backed store. quotaBytes of 0 disables
// the quota.
func NewMemoryStore(quotaBytes int) *MemoryStore {
	return &MemoryStore{
		data:  make(map[string]string),
		quota: quotaBytes,
	}
}

func (m *MemoryStore) Name() string {
	return "memory"
}

func (m *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.data[key]
	return value, ok, nil
}

func (m *MemoryStore) Set(ctx context.Context, key string, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.quota > 0 {
		used := 0
		for k, v := range m.data {
			if k == key {
				continue
			}
			used += len(k) + len(v)
		}
		if used+len(key)+len(value) > m.quota {
			return apperrors.QuotaError(m.Name(), ErrQuotaExceeded).
				WithContext("quota_bytes", m.quota)
		}
	}

	m.data[key] = value
	return nil
}

func (m *MemoryStore) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

// Len returns the number of stored keys. Test helper.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
