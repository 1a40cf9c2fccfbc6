package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNoStore is returned by admin operations when caching is disabled.
var ErrNoStore = errors.New("cache store not configured")

// Store is a key-value backend with per-entry TTL.
// A ttl <= 0 stores the entry without expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) (int, error)
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	CountPrefix(ctx context.Context, prefix string) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

// Backend names accepted by configuration.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
	BackendNone   = "none"
)
