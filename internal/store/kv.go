package store

import "context"

// KV is a process-durable string key/value store.
type KV interface {
	// Get returns the value for key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// SetMany stores every entry atomically.
	SetMany(ctx context.Context, entries map[string]string) error

	// Close releases the backend.
	Close() error
}

var (
	_ KV = (*Store)(nil)
	_ KV = (*Badger)(nil)
	_ KV = (*Memory)(nil)
)
