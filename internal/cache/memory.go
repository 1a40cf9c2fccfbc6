package cache

import (
	"context"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type memEntry struct {
	value   []byte
	expires time.Time
}

func (e memEntry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

// MemoryStore is a bounded in-process Store. Least recently used entries are
// evicted when full; expired entries are dropped lazily.
type MemoryStore struct {
	entries *lru.Cache[string, memEntry]
	now     func() time.Time
}

func NewMemoryStore(size int) (*MemoryStore, error) {
	if size <= 0 {
		size = 4096
	}
	c, err := lru.New[string, memEntry](size)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{entries: c, now: time.Now}, nil
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	e, ok := m.entries.Get(key)
	if !ok {
		return nil, false, nil
	}
	if e.expired(m.now()) {
		m.entries.Remove(key)
		return nil, false, nil
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := memEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.entries.Add(key, e)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, keys ...string) (int, error) {
	n := 0
	for _, k := range keys {
		if m.entries.Remove(k) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) DeletePrefix(_ context.Context, prefix string) (int, error) {
	n := 0
	for _, k := range m.entries.Keys() {
		if strings.HasPrefix(k, prefix) && m.entries.Remove(k) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) CountPrefix(_ context.Context, prefix string) (int, error) {
	now := m.now()
	n := 0
	for _, k := range m.entries.Keys() {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if e, ok := m.entries.Peek(k); ok && !e.expired(now) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error {
	m.entries.Purge()
	return nil
}
