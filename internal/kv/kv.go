// Package kv defines the small-document key-value storage contract that the
// memory, conversation, and nudge stores persist into. Values are whole JSON
// documents; there are no partial updates.
package kv

import (
	"errors"
	"maps"
	"sync"
)

// ErrUnavailable is returned by implementations when the backing medium
// cannot be reached. Callers treat it as a non-fatal StorageFailure.
var ErrUnavailable = errors.New("kv: storage unavailable")

// ServiceName is the AppContext service key of the configured Store.
const ServiceName = "storage.kv"

// Store is a synchronous key-value store.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value for key. ok is false when the key is absent.
	Get(key string) (value string, ok bool, err error)

	// Set stores value under key, replacing any previous value.
	Set(key, value string) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(key string) error
}

// Memory is an in-process Store. It backs tests and the CLI's dry runs.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

// Compile-time interface check.
var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

// Get implements Store.
func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

// Set implements Store.
func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

// Remove implements Store.
func (m *Memory) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Snapshot returns a copy of every stored key and value.
func (m *Memory) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.data)
}
