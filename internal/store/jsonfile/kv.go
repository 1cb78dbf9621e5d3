// Package jsonfile stores KV entries as one JSON file per key, so state can
// be inspected and edited by hand or shared with other processes.
package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hay-kot/bell/internal/core/kv"
)

const ext = ".json"

type fileEntry struct {
	Value     json.RawMessage `json:"value"`
	ExpiresAt *time.Time      `json:"expiresAt,omitempty"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// KV implements kv.KV over a directory of JSON files.
type KV struct {
	dir string
	now func() time.Time

	mu      sync.RWMutex
	written map[string][]byte
}

var _ kv.KV = (*KV)(nil)

// New creates a KV rooted at dir. The directory is created on first write.
func New(dir string) *KV {
	return &KV{dir: dir, now: time.Now, written: make(map[string][]byte)}
}

// Dir returns the directory holding the files.
func (s *KV) Dir() string {
	return s.dir
}

func (s *KV) Get(_ context.Context, key string, dest any) error {
	s.mu.RLock()
	e, err := s.load(key)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("kv get %q: %w", key, err)
	}

	if err := json.Unmarshal(e.Value, dest); err != nil {
		return fmt.Errorf("kv get %q unmarshal: %w", key, err)
	}
	return nil
}

func (s *KV) Set(_ context.Context, key string, value any) error {
	return s.set(key, value, nil)
}

func (s *KV) SetTTL(_ context.Context, key string, value any, ttl time.Duration) error {
	expiresAt := s.now().Add(ttl)
	return s.set(key, value, &expiresAt)
}

func (s *KV) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.written, key)
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("kv delete %q: %w", key, err)
	}
	return nil
}

func (s *KV) Has(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := s.load(key)
	switch {
	case kv.IsNotFound(err):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("kv has %q: %w", key, err)
	}
	return true, nil
}

func (s *KV) ListKeys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("kv list keys: %w", err)
	}

	keys := []string{}
	for _, entry := range entries {
		key, ok := keyFromFile(entry.Name())
		if !ok {
			continue
		}
		if _, err := s.load(key); err == nil {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

// ownWrite reports whether the file for key still holds exactly what this
// process last wrote.
func (s *KV) ownWrite(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	last, ok := s.written[key]
	if !ok {
		return false
	}
	data, err := os.ReadFile(s.path(key))
	return err == nil && bytes.Equal(data, last)
}

func (s *KV) path(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key)+ext)
}

func keyFromFile(name string) (string, bool) {
	base, ok := strings.CutSuffix(name, ext)
	if !ok {
		return "", false
	}
	key, err := url.PathUnescape(base)
	if err != nil {
		return "", false
	}
	return key, true
}

// load reads key. Missing and expired entries report kv.ErrNotFound.
func (s *KV) load(key string) (fileEntry, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return fileEntry{}, kv.ErrNotFound
	}
	if err != nil {
		return fileEntry{}, err
	}

	var e fileEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return fileEntry{}, fmt.Errorf("decode %s: %w", filepath.Base(s.path(key)), err)
	}
	if e.ExpiresAt != nil && e.ExpiresAt.Before(s.now()) {
		return fileEntry{}, kv.ErrNotFound
	}
	return e, nil
}

// set writes the entry atomically through a temp file and rename.
func (s *KV) set(key string, value any, expiresAt *time.Time) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kv set %q marshal: %w", key, err)
	}

	data, err := json.MarshalIndent(fileEntry{
		Value:     raw,
		ExpiresAt: expiresAt,
		UpdatedAt: s.now().UTC(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("kv set %q marshal: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("kv set %q: %w", key, err)
	}

	path := s.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("kv set %q: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("kv set %q: %w", key, err)
	}

	s.written[key] = data
	return nil
}
