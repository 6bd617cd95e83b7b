// Package kvstore provides the shared key-value store the relay keeps all of
// its state in. The store is eventually consistent from the caller's point of
// view: there are no transactions and no compare-and-swap, only per-key
// read-modify-write. Callers must not assume a write is immediately visible
// to a concurrent reader.
package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Store is the minimal contract every backend implements. A zero ttl means
// the entry never expires.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}

// GetJSON reads key and decodes its value into out. It reports false when the
// key is absent or expired.
func GetJSON(ctx context.Context, s Store, key string, out any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// PutJSON encodes v and stores it under key.
func PutJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Put(ctx, key, string(data), ttl)
}
