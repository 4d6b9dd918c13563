package dedup

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local Store for single-instance deployments
// and tests. Entries expire lazily on the next probe of the same key.
type MemoryStore struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: make(map[string]time.Time)}
}

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) InsertIfAbsent(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if exp, ok := m.seen[key]; ok && time.Now().Before(exp) {
		return false, nil
	}
	m.seen[key] = time.Now().Add(ttl)
	return true, nil
}
