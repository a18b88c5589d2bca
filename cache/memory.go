package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/dbus-service/types"
	"github.com/saiset-co/dbus-service/utils"
)

const defaultMaxEntries = 10000

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore keeps encoded entries in process memory. Entries are stored as
// JSON so a Get decodes into a fresh value, the same as the file and redis
// backends. When the store is full the oldest inserted key is evicted.
type MemoryStore struct {
	mu         sync.RWMutex
	entries    map[string]*memoryEntry
	order      []string
	ttl        time.Duration
	maxEntries int
	logger     types.Logger
	now        func() time.Time
}

func NewMemoryStore(ttl time.Duration, maxEntries int, logger types.Logger) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}

	return &MemoryStore{
		entries:    make(map[string]*memoryEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		logger:     logger,
		now:        time.Now,
	}
}

func (m *MemoryStore) Get(_ context.Context, key string, target interface{}) bool {
	if key == "" {
		return false
	}

	m.mu.RLock()
	entry, exists := m.entries[key]
	m.mu.RUnlock()

	if !exists || !m.now().Before(entry.expiresAt) {
		return false
	}

	if err := utils.UnmarshalInto(entry.data, target); err != nil {
		m.logger.Warn("Cache entry corrupt, treating as miss", zap.String("key", key), zap.Error(err))
		return false
	}

	return true
}

func (m *MemoryStore) Set(_ context.Context, key string, value interface{}) error {
	if key == "" {
		return types.ErrCacheKeyEmpty
	}

	data, err := utils.Marshal(value)
	if err != nil {
		return types.Errorf(types.ErrCacheWrite, "encode %s: %v", key, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; !exists {
		if len(m.entries) >= m.maxEntries {
			m.evictOldest()
		}
		m.order = append(m.order, key)
	}

	m.entries[key] = &memoryEntry{data: data, expiresAt: m.now().Add(m.ttl)}
	return nil
}

func (m *MemoryStore) Invalidate(_ context.Context, key string) error {
	if key == "" {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; exists {
		delete(m.entries, key)
		m.removeFromOrder(key)
	}

	return nil
}

func (m *MemoryStore) Clear(_ context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]*memoryEntry)
	m.order = nil
}

// Sweep drops expired entries and returns how many were removed.
func (m *MemoryStore) Sweep(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	kept := m.order[:0]
	removed := 0

	for i, key := range m.order {
		if ctx.Err() != nil {
			kept = append(kept, m.order[i:]...)
			m.order = kept
			return removed, ctx.Err()
		}

		if now.Before(m.entries[key].expiresAt) {
			kept = append(kept, key)
			continue
		}

		delete(m.entries, key)
		removed++
	}

	m.order = kept
	return removed, nil
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// evictOldest must be called with the write lock held.
func (m *MemoryStore) evictOldest() {
	if len(m.order) == 0 {
		return
	}

	oldest := m.order[0]
	m.order = m.order[1:]
	delete(m.entries, oldest)
	m.logger.Debug("Cache entry evicted", zap.String("key", oldest))
}

func (m *MemoryStore) removeFromOrder(key string) {
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			return
		}
	}
}
