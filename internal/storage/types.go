package storage

import (
	"context"
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Store is the minimal key-value API the gate relies on.
//
// Get reports ok=false (and a nil error) when the key is absent.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// Config configures storage.
//
// Driver values:
//   - "redis": Addr is a redis:// URL or a bare host[:port] (port defaults to 6379)
//   - "sqlite": Path is the database file
//   - "file": Path is the snapshot prefix (jsonl journal + snapshot)
//   - "memory": no settings
type Config struct {
	Driver string
	Addr   string
	Path   string

	// TTL expires records after the given duration (redis only); 0 keeps them forever.
	TTL time.Duration
	// DialTimeout bounds the initial connectivity check (redis only).
	DialTimeout time.Duration
	// BusyTimeout is the sqlite busy timeout; 0 means default.
	BusyTimeout time.Duration
}
