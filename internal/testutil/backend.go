package testutil

import (
	"context"
	"errors"
	"sync"
)

// ErrInjected is returned by FlakyBackend when a failure is switched on.
var ErrInjected = errors.New("injected storage failure")

// FlakyBackend is an in-memory store backend whose reads and writes can be
// made to fail. It records every successful write.
//
// Thread-safety: all methods are safe for concurrent use.
type FlakyBackend struct {
	mu       sync.Mutex
	values   map[string]string
	writes   []string
	failGet  bool
	failSet  bool
	getCalls int
}

// NewFlakyBackend creates an empty backend with failures off.
func NewFlakyBackend() *FlakyBackend {
	return &FlakyBackend{values: make(map[string]string)}
}

// FailGet switches read failures on or off.
func (b *FlakyBackend) FailGet(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failGet = fail
}

// FailSet switches write failures on or off.
func (b *FlakyBackend) FailSet(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failSet = fail
}

// Seed stores value under key without recording a write.
func (b *FlakyBackend) Seed(key, value string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[key] = value
}

// Value returns the stored value for key.
func (b *FlakyBackend) Value(key string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.values[key]
	return v, ok
}

// Writes returns a copy of every value successfully written, in order.
func (b *FlakyBackend) Writes() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.writes))
	copy(out, b.writes)
	return out
}

// GetCalls returns how many reads were attempted.
func (b *FlakyBackend) GetCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.getCalls
}

func (b *FlakyBackend) Get(_ context.Context, key string) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.getCalls++
	if b.failGet {
		return "", false, ErrInjected
	}
	v, ok := b.values[key]
	return v, ok, nil
}

func (b *FlakyBackend) Set(_ context.Context, key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failSet {
		return ErrInjected
	}
	b.values[key] = value
	b.writes = append(b.writes, value)
	return nil
}
