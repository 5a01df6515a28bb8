package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nudgeme/nudgeme/internal/ids"
	"github.com/nudgeme/nudgeme/internal/kv"
	"github.com/nudgeme/nudgeme/internal/telemetry"
)

// Sentinel errors returned by Store.
var (
	ErrNotFound = errors.New("memory: record not found")
	ErrStorage  = errors.New("memory: storage write failed")
)

// StorageKey is the kv key holding the JSON array of records.
const StorageKey = "memories"

// Defaults applied by New when the corresponding Config field is zero.
const (
	DefaultMaxRecords    = 500
	DefaultRemoteTimeout = 3 * time.Second
	DefaultRemoteQueue   = 64
)

// Config controls a Store.
type Config struct {
	// MaxRecords caps the store; the oldest records are evicted first.
	MaxRecords int

	// Remote is the optional first-tier document store.
	Remote Remote

	// RemoteTimeout bounds every remote call.
	RemoteTimeout time.Duration

	// RemoteQueue is the number of remote writes that may be pending before
	// further writes are discarded.
	RemoteQueue int

	Logger  *slog.Logger
	Metrics *telemetry.Metrics
	Now     func() time.Time
}

func (c *Config) defaults() {
	if c.MaxRecords <= 0 {
		c.MaxRecords = DefaultMaxRecords
	}
	if c.RemoteTimeout <= 0 {
		c.RemoteTimeout = DefaultRemoteTimeout
	}
	if c.RemoteQueue <= 0 {
		c.RemoteQueue = DefaultRemoteQueue
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Store is the user's long-term memory. Every mutation is written through
// to the kv store as the whole collection. A failed write leaves the
// in-memory state intact and marks the store dirty until Flush succeeds.
// Store is safe for concurrent use.
type Store struct {
	cfg    Config
	kv     kv.Store
	logger *slog.Logger
	remote *remoteTier

	mu      sync.RWMutex
	records []Record // oldest first
	dirty   bool
}

// New loads the persisted records from store and returns a ready Store.
// A corrupt document is logged and replaced on the next write.
func New(store kv.Store, cfg Config) (*Store, error) {
	cfg.defaults()
	s := &Store{
		cfg:    cfg,
		kv:     store,
		logger: cfg.Logger.With("component", "memory"),
	}

	raw, ok, err := store.Get(StorageKey)
	if err != nil {
		return nil, fmt.Errorf("memory: load %q: %w", StorageKey, err)
	}
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &s.records); err != nil {
			s.logger.Warn("discarding unreadable memory document", "error", err)
			s.records = nil
		}
	}
	for i := range s.records {
		if !s.records[i].CreatedAt.IsZero() {
			continue
		}
		// Records written without a timestamp recover it from their ULID.
		if t, err := ids.Time(s.records[i].ID); err == nil {
			s.records[i].CreatedAt = t
		}
	}
	slices.SortStableFunc(s.records, func(a, b Record) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	if n := len(s.records) - cfg.MaxRecords; n > 0 {
		s.records = slices.Delete(s.records, 0, n)
	}

	if cfg.Remote != nil {
		s.remote = newRemoteTier(cfg.Remote, cfg.RemoteTimeout, cfg.RemoteQueue, s.logger, cfg.Metrics)
	}
	return s, nil
}

// Append stores a new record and evicts the oldest ones beyond the cap.
// It always succeeds; a persistence failure is retained for Flush.
func (s *Store) Append(_ context.Context, content string, category Category, tags []string) Record {
	now := s.cfg.Now()
	rec := Record{
		ID:        ids.New(now),
		Content:   strings.TrimSpace(content),
		Category:  ParseCategory(string(category)),
		Tags:      normalizeTags(tags),
		CreatedAt: now,
	}

	s.mu.Lock()
	s.records = append(s.records, rec)
	var evicted []string
	if n := len(s.records) - s.cfg.MaxRecords; n > 0 {
		for _, r := range s.records[:n] {
			evicted = append(evicted, r.ID)
		}
		s.records = slices.Delete(s.records, 0, n)
	}
	s.persistLocked()

	if s.remote != nil {
		s.remote.write("insert", func(ctx context.Context) error {
			return s.cfg.Remote.Insert(ctx, rec)
		})
		for _, id := range evicted {
			s.remote.write("delete", func(ctx context.Context) error {
				return s.cfg.Remote.Delete(ctx, id)
			})
		}
	}
	s.mu.Unlock()
	return rec
}

// List returns the records matching f, newest first.
func (s *Store) List(ctx context.Context, f Filter) []Record {
	if s.remote != nil {
		if recs, ok := s.remote.query(ctx, f); ok {
			return recs
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for i := len(s.records) - 1; i >= 0; i-- {
		if !f.Match(s.records[i]) {
			continue
		}
		out = append(out, cloneRecord(s.records[i]))
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}

// Search returns the records whose content or tags contain query,
// case-insensitively, newest first.
func (s *Store) Search(ctx context.Context, query string) []Record {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	return s.List(ctx, Filter{Query: query})
}

// Recent returns the n most recently created records, newest first.
func (s *Store) Recent(ctx context.Context, n int) []Record {
	if n <= 0 {
		return nil
	}
	return s.List(ctx, Filter{Limit: n})
}

// Get returns the record with the given id.
func (s *Store) Get(id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexLocked(id)
	if i < 0 {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return cloneRecord(s.records[i]), nil
}

// Delete removes a single record.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.records = slices.Delete(s.records, i, i+1)
	s.persistLocked()

	if s.remote != nil {
		s.remote.write("delete", func(ctx context.Context) error {
			return s.cfg.Remote.Delete(ctx, id)
		})
	}
	s.mu.Unlock()
	return nil
}

// Clear removes every record. It cannot be undone.
func (s *Store) Clear(_ context.Context) {
	s.mu.Lock()
	s.records = nil
	s.persistLocked()

	if s.remote != nil {
		s.remote.write("clear", s.cfg.Remote.Clear)
	}
	s.mu.Unlock()
}

// Count returns the number of stored records.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Dirty reports whether the last persistence attempt failed.
func (s *Store) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// Flush retries persistence if the store is dirty. When remote writes have
// been discarded it also queues a resync of the remote tier from the local
// records.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.remote != nil && s.remote.needsResync() {
		snapshot := make([]Record, len(s.records))
		for i, r := range s.records {
			snapshot[i] = cloneRecord(r)
		}
		s.remote.resync(snapshot)
	}
	if !s.dirty {
		return nil
	}
	if err := s.writeLocked(); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	s.dirty = false
	s.logger.Info("memory flushed after earlier storage failure", "records", len(s.records))
	return nil
}

// Close waits for queued remote writes to finish.
func (s *Store) Close() error {
	if s.remote != nil {
		s.remote.close()
	}
	return nil
}

func (s *Store) indexLocked(id string) int {
	return slices.IndexFunc(s.records, func(r Record) bool { return r.ID == id })
}

func (s *Store) persistLocked() {
	if err := s.writeLocked(); err != nil {
		s.dirty = true
		s.cfg.Metrics.StorageFailed("memory")
		s.logger.Warn("memory write failed, keeping changes in memory", "error", err)
		return
	}
	s.dirty = false
}

func (s *Store) writeLocked() error {
	records := s.records
	if records == nil {
		records = []Record{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return err
	}
	return s.kv.Set(StorageKey, string(data))
}

func cloneRecord(r Record) Record {
	r.Tags = slices.Clone(r.Tags)
	if r.UpdatedAt != nil {
		t := *r.UpdatedAt
		r.UpdatedAt = &t
	}
	return r
}
