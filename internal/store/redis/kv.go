// Package redis implements kv.KV on a redis server so several clients of
// the same user share one durable snapshot.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/hay-kot/bell/internal/core/kv"
)

// DefaultPrefix namespaces every key written by bell.
const DefaultPrefix = "bell:"

// Options configures the redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// KV implements kv.KV on redis strings with native expiry.
type KV struct {
	client *goredis.Client
	prefix string
}

var _ kv.KV = (*KV)(nil)

// Open connects to redis and verifies the connection.
func Open(ctx context.Context, opts Options) (*KV, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", opts.Addr, err)
	}
	return New(client, opts.Prefix), nil
}

// New wraps an existing client. An empty prefix selects DefaultPrefix.
func New(client *goredis.Client, prefix string) *KV {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &KV{client: client, prefix: prefix}
}

// Client returns the underlying redis client.
func (s *KV) Client() *goredis.Client {
	return s.client
}

// Close closes the client.
func (s *KV) Close() error {
	return s.client.Close()
}

func (s *KV) Get(ctx context.Context, key string, dest any) error {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return fmt.Errorf("kv get %q: %w", key, kv.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("kv get %q: %w", key, err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("kv get %q unmarshal: %w", key, err)
	}
	return nil
}

func (s *KV) Set(ctx context.Context, key string, value any) error {
	return s.SetTTL(ctx, key, value, 0)
}

// SetTTL stores value; a zero ttl never expires.
func (s *KV) SetTTL(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kv set %q marshal: %w", key, err)
	}
	if err := s.client.Set(ctx, s.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("kv set %q: %w", key, err)
	}
	return nil
}

func (s *KV) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("kv delete %q: %w", key, err)
	}
	return nil
}

func (s *KV) Has(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("kv has %q: %w", key, err)
	}
	return n > 0, nil
}

// ListKeys scans for keys under the prefix and returns them sorted.
func (s *KV) ListKeys(ctx context.Context) ([]string, error) {
	keys := []string{}
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), s.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("kv list keys: %w", err)
	}

	slices.Sort(keys)
	return slices.Compact(keys), nil
}
