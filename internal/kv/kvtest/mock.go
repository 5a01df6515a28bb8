// Package kvtest provides test doubles for the kv package.
package kvtest

import (
	"sync"

	"github.com/nudgeme/nudgeme/internal/kv"
)

// FlakyStore wraps an in-memory store and fails writes while Failing is set.
type FlakyStore struct {
	*kv.Memory

	mu      sync.Mutex
	failing bool
	sets    int
}

// Compile-time interface check.
var _ kv.Store = (*FlakyStore)(nil)

// NewFlakyStore creates a FlakyStore that initially succeeds.
func NewFlakyStore() *FlakyStore {
	return &FlakyStore{Memory: kv.NewMemory()}
}

// SetFailing toggles write failures.
func (f *FlakyStore) SetFailing(failing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = failing
}

// SetCalls returns how many times Set was attempted.
func (f *FlakyStore) SetCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sets
}

// Set implements kv.Store.
func (f *FlakyStore) Set(key, value string) error {
	f.mu.Lock()
	f.sets++
	failing := f.failing
	f.mu.Unlock()
	if failing {
		return kv.ErrUnavailable
	}
	return f.Memory.Set(key, value)
}

// Remove implements kv.Store.
func (f *FlakyStore) Remove(key string) error {
	f.mu.Lock()
	failing := f.failing
	f.mu.Unlock()
	if failing {
		return kv.ErrUnavailable
	}
	return f.Memory.Remove(key)
}
