package store

import (
	"context"
	"log/slog"
)

// KV adapts a Backend to the contract the queues rely on: storage operations
// never fail from the caller's point of view. Read errors look like a missing
// key, write errors are dropped. Both are logged.
type KV struct {
	backend Backend
	logger  *slog.Logger
}

// NewKV wraps backend. A nil logger uses slog.Default().
func NewKV(backend Backend, logger *slog.Logger) *KV {
	if logger == nil {
		logger = slog.Default()
	}
	return &KV{backend: backend, logger: logger}
}

// Get returns the value under key, or ("", false) when it is missing or the
// read failed.
func (k *KV) Get(ctx context.Context, key string) (string, bool) {
	v, ok, err := k.backend.Get(ctx, key)
	if err != nil {
		k.logger.Error("storage read failed", "key", key, "error", err)
		return "", false
	}
	return v, ok
}

// Set overwrites the value under key. Failures are logged and swallowed.
func (k *KV) Set(ctx context.Context, key, value string) {
	if err := k.backend.Set(ctx, key, value); err != nil {
		k.logger.Error("storage write failed", "key", key, "bytes", len(value), "error", err)
	}
}
