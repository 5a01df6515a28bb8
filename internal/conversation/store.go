package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nudgeme/nudgeme/internal/ids"
	"github.com/nudgeme/nudgeme/internal/kv"
	"github.com/nudgeme/nudgeme/internal/telemetry"
)

// Sentinel errors returned by Store.
var (
	ErrNotFound    = errors.New("conversation: session not found")
	ErrInvalidRole = errors.New("conversation: invalid message role")
	ErrStorage     = errors.New("conversation: storage write failed")
)

// kv keys holding the session array and the active session id.
const (
	SessionsKey = "conversations"
	ActiveKey   = "conversation_active"
)

// DefaultMaxSessions is used when Config.MaxSessions is zero.
const DefaultMaxSessions = 50

// Config controls a Store.
type Config struct {
	// MaxSessions caps the number of sessions. Creating one more evicts
	// the least recently updated session.
	MaxSessions int

	Logger  *slog.Logger
	Metrics *telemetry.Metrics
	Now     func() time.Time
}

func (c *Config) defaults() {
	if c.MaxSessions <= 0 {
		c.MaxSessions = DefaultMaxSessions
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Store holds every session in memory and writes the whole collection
// through to kv on each mutation. A failed write keeps the change in memory
// and marks the store dirty until Flush succeeds.
// Store is safe for concurrent use.
type Store struct {
	cfg    Config
	kv     kv.Store
	logger *slog.Logger

	mu       sync.RWMutex
	sessions []Session // creation order
	active   string
	created  int // numbering for default titles
	dirty    bool
}

// New loads persisted sessions from store.
func New(store kv.Store, cfg Config) (*Store, error) {
	cfg.defaults()
	s := &Store{
		cfg:    cfg,
		kv:     store,
		logger: cfg.Logger.With("component", "conversation"),
	}

	raw, ok, err := store.Get(SessionsKey)
	if err != nil {
		return nil, fmt.Errorf("conversation: load %q: %w", SessionsKey, err)
	}
	if ok && raw != "" {
		var sessions []Session
		if err := json.Unmarshal([]byte(raw), &sessions); err != nil {
			s.logger.Warn("discarding unreadable conversation document", "error", err)
		} else {
			s.sessions = sessions
		}
	}
	s.created = len(s.sessions)
	for _, sess := range s.sessions {
		if n, ok := defaultTitleNumber(sess.Title); ok && n > s.created {
			s.created = n
		}
	}

	active, ok, err := store.Get(ActiveKey)
	if err != nil {
		return nil, fmt.Errorf("conversation: load %q: %w", ActiveKey, err)
	}
	if ok && s.indexLocked(active) >= 0 {
		s.active = active
	}
	return s, nil
}

const defaultTitlePrefix = "New conversation "

// defaultTitleNumber returns N for a title of the form "New conversation N".
func defaultTitleNumber(title string) (int, bool) {
	rest, ok := strings.CutPrefix(title, defaultTitlePrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	return n, err == nil
}

// CreateSession creates an empty session and makes it active.
// An empty title becomes "New conversation N".
func (s *Store) CreateSession(title string) Session {
	now := s.cfg.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.created++
	title = strings.TrimSpace(title)
	if title == "" {
		title = defaultTitlePrefix + strconv.Itoa(s.created)
	}
	sess := Session{
		ID:        ids.New(now),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []Message{},
	}
	s.sessions = append(s.sessions, sess)
	s.active = sess.ID
	s.evictLocked()
	s.persistLocked()
	return sess.clone()
}

// EnsureActive returns the active session, creating one if there is none.
func (s *Store) EnsureActive() Session {
	if sess, ok := s.Active(); ok {
		return sess
	}
	return s.CreateSession("")
}

// AddMessage appends a message to a session and bumps its UpdatedAt.
// It never creates a session.
func (s *Store) AddMessage(sessionID string, role Role, content string) (Message, error) {
	if _, err := ParseRole(string(role)); err != nil {
		return Message{}, err
	}
	now := s.cfg.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(sessionID)
	if i < 0 {
		return Message{}, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	msg := Message{
		ID:        ids.New(now),
		Role:      role,
		Content:   content,
		Timestamp: now,
	}
	s.sessions[i].Messages = append(s.sessions[i].Messages, msg)
	s.sessions[i].UpdatedAt = now
	s.persistLocked()
	return msg, nil
}

// SetActive makes id the single active session.
func (s *Store) SetActive(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexLocked(id) < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.active = id
	s.persistLocked()
	return nil
}

// Active returns the active session, if any.
func (s *Store) Active() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == "" {
		return Session{}, false
	}
	i := s.indexLocked(s.active)
	if i < 0 {
		return Session{}, false
	}
	return s.sessions[i].clone(), true
}

// Get returns a session by id.
func (s *Store) Get(id string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexLocked(id)
	if i < 0 {
		return Session{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.sessions[i].clone(), nil
}

// ListSessions returns every session, most recently updated first.
func (s *Store) ListSessions() []Session {
	s.mu.RLock()
	out := make([]Session, len(s.sessions))
	for i := range s.sessions {
		out[i] = s.sessions[i].clone()
	}
	s.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b Session) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	return out
}

// Recent returns the last n messages of a session in append order.
func (s *Store) Recent(id string, n int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexLocked(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	msgs := s.sessions[i].Messages
	if n <= 0 {
		return nil, nil
	}
	if n < len(msgs) {
		msgs = msgs[len(msgs)-n:]
	}
	return slices.Clone(msgs), nil
}

// LastActivity returns the newest UpdatedAt across all sessions.
func (s *Store) LastActivity() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var last time.Time
	for i := range s.sessions {
		if s.sessions[i].UpdatedAt.After(last) {
			last = s.sessions[i].UpdatedAt
		}
	}
	return last, !last.IsZero()
}

// DeleteSession removes a session. Deleting the active session leaves no
// session active.
func (s *Store) DeleteSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.sessions = slices.Delete(s.sessions, i, i+1)
	if s.active == id {
		s.active = ""
	}
	s.persistLocked()
	return nil
}

// ClearAll removes every session.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = nil
	s.active = ""
	s.persistLocked()
}

// Count returns the number of sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Dirty reports whether the last persistence attempt failed.
func (s *Store) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// Flush retries persistence if the store is dirty.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	if err := s.writeLocked(); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	s.dirty = false
	s.logger.Info("conversations flushed after earlier storage failure", "sessions", len(s.sessions))
	return nil
}

func (s *Store) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(s.sessions, func(sess Session) bool { return sess.ID == id })
}

// evictLocked drops least recently updated sessions beyond the cap.
// The active session is the newest and is never chosen.
func (s *Store) evictLocked() {
	for len(s.sessions) > s.cfg.MaxSessions {
		victim := -1
		for i := range s.sessions {
			if s.sessions[i].ID == s.active {
				continue
			}
			if victim < 0 || s.sessions[i].UpdatedAt.Before(s.sessions[victim].UpdatedAt) {
				victim = i
			}
		}
		if victim < 0 {
			return
		}
		s.logger.Debug("evicting session", "session", s.sessions[victim].ID, "title", s.sessions[victim].Title)
		s.sessions = slices.Delete(s.sessions, victim, victim+1)
	}
}

func (s *Store) persistLocked() {
	if err := s.writeLocked(); err != nil {
		s.dirty = true
		s.cfg.Metrics.StorageFailed("conversation")
		s.logger.Warn("conversation write failed, keeping changes in memory", "error", err)
		return
	}
	s.dirty = false
}

func (s *Store) writeLocked() error {
	sessions := s.sessions
	if sessions == nil {
		sessions = []Session{}
	}
	data, err := json.Marshal(sessions)
	if err != nil {
		return err
	}
	if err := s.kv.Set(SessionsKey, string(data)); err != nil {
		return err
	}
	if s.active == "" {
		return s.kv.Remove(ActiveKey)
	}
	return s.kv.Set(ActiveKey, s.active)
}
