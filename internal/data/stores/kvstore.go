// Package stores implements the kv.KV seam on top of the sqlite database.
package stores

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hay-kot/bell/internal/core/kv"
	"github.com/hay-kot/bell/internal/data/db"
)

// KVStore implements kv.KV using SQLite.
type KVStore struct {
	db  *db.DB
	now func() time.Time
}

var _ kv.KV = (*KVStore)(nil)

// NewKVStore creates a new SQLite-backed KV store.
func NewKVStore(db *db.DB) *KVStore {
	return &KVStore{db: db, now: time.Now}
}

// Get retrieves and deserializes a value by key. Expired entries are lazily
// deleted and reported as missing.
func (s *KVStore) Get(ctx context.Context, key string, dest any) error {
	row, err := s.live(ctx, key)
	if err != nil {
		return fmt.Errorf("kv get %q: %w", key, err)
	}

	if err := json.Unmarshal(row.Value, dest); err != nil {
		return fmt.Errorf("kv get %q unmarshal: %w", key, err)
	}
	return nil
}

// Set stores a value with no expiry.
func (s *KVStore) Set(ctx context.Context, key string, value any) error {
	return s.set(ctx, key, value, sql.NullInt64{})
}

// SetTTL stores a value that expires after ttl.
func (s *KVStore) SetTTL(ctx context.Context, key string, value any, ttl time.Duration) error {
	expiresAt := s.now().Add(ttl).UnixNano()
	return s.set(ctx, key, value, sql.NullInt64{Int64: expiresAt, Valid: true})
}

// Delete removes a key. Missing keys are not an error.
func (s *KVStore) Delete(ctx context.Context, key string) error {
	if err := s.db.Queries().KVDelete(ctx, key); err != nil {
		return fmt.Errorf("kv delete %q: %w", key, err)
	}
	return nil
}

// Has reports whether a live entry exists for key.
func (s *KVStore) Has(ctx context.Context, key string) (bool, error) {
	_, err := s.live(ctx, key)
	switch {
	case kv.IsNotFound(err):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("kv has %q: %w", key, err)
	}
	return true, nil
}

// ListKeys returns all non-expired keys in sorted order.
func (s *KVStore) ListKeys(ctx context.Context) ([]string, error) {
	keys, err := s.db.Queries().KVListKeys(ctx, s.now().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("kv list keys: %w", err)
	}
	return keys, nil
}

// GetRaw returns the stored entry with its metadata.
func (s *KVStore) GetRaw(ctx context.Context, key string) (kv.Entry, error) {
	row, err := s.live(ctx, key)
	if err != nil {
		return kv.Entry{}, fmt.Errorf("kv get raw %q: %w", key, err)
	}

	entry := kv.Entry{
		Key:       row.Key,
		Value:     json.RawMessage(row.Value),
		UpdatedAt: time.Unix(0, row.UpdatedAt),
	}
	if row.ExpiresAt.Valid {
		t := time.Unix(0, row.ExpiresAt.Int64)
		entry.ExpiresAt = &t
	}
	return entry, nil
}

// SweepExpired deletes every entry whose TTL has passed and returns the
// number removed.
func (s *KVStore) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.db.Queries().KVSweepExpired(ctx, s.now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("kv sweep expired: %w", err)
	}
	return n, nil
}

// live loads key, translating absent and expired rows into kv.ErrNotFound.
func (s *KVStore) live(ctx context.Context, key string) (db.KvStore, error) {
	row, err := s.db.Queries().KVGet(ctx, key)
	if IsNotFoundError(err) {
		return db.KvStore{}, kv.ErrNotFound
	}
	if err != nil {
		return db.KvStore{}, err
	}

	if row.ExpiresAt.Valid && row.ExpiresAt.Int64 < s.now().UnixNano() {
		_ = s.db.Queries().KVDelete(ctx, key)
		return db.KvStore{}, kv.ErrNotFound
	}
	return row, nil
}

func (s *KVStore) set(ctx context.Context, key string, value any, expiresAt sql.NullInt64) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kv set %q marshal: %w", key, err)
	}

	now := s.now().UnixNano()
	err = s.db.Queries().KVSet(ctx, db.KVSetParams{
		Key:       key,
		Value:     data,
		ExpiresAt: expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return fmt.Errorf("kv set %q: %w", key, err)
	}
	return nil
}
