package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

type memEntry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is an in-process KV. Values are JSON round-tripped so callers observe
// the same copy semantics as the durable backends.
type Memory struct {
	mu   sync.RWMutex
	data map[string]memEntry
}

var _ KV = (*Memory)(nil)

// NewMemory creates an empty in-memory KV.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]memEntry)}
}

func (m *Memory) Get(_ context.Context, key string, dest any) error {
	m.mu.RLock()
	e, ok := m.data[key]
	m.mu.RUnlock()

	if !ok || m.expired(e) {
		return fmt.Errorf("kv get %q: %w", key, ErrNotFound)
	}

	if err := json.Unmarshal(e.value, dest); err != nil {
		return fmt.Errorf("kv get %q unmarshal: %w", key, err)
	}
	return nil
}

func (m *Memory) Set(_ context.Context, key string, value any) error {
	return m.set(key, value, time.Time{})
}

func (m *Memory) SetTTL(_ context.Context, key string, value any, ttl time.Duration) error {
	return m.set(key, value, time.Now().Add(ttl))
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *Memory) Has(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.data[key]
	return ok && !m.expired(e), nil
}

func (m *Memory) ListKeys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.data))
	for k, e := range m.data {
		if !m.expired(e) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Memory) set(key string, value any, expiresAt time.Time) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kv set %q marshal: %w", key, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = memEntry{value: data, expiresAt: expiresAt}
	return nil
}

func (m *Memory) expired(e memEntry) bool {
	return !e.expiresAt.IsZero() && e.expiresAt.Before(time.Now())
}
