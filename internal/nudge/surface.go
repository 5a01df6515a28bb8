package nudge

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nudgeme/nudgeme/internal/ids"
	"github.com/nudgeme/nudgeme/internal/telemetry"
)

// Sentinel errors returned by Surface.
var (
	ErrNoNotification    = errors.New("nudge: no pending notification")
	ErrStaleNotification = errors.New("nudge: notification is no longer current")
)

// DefaultExpiry is how long a notification stays pending without user action.
const DefaultExpiry = 30 * time.Second

// EventKind describes a notification transition.
type EventKind string

// Notification events.
const (
	EventEmitted   EventKind = "emitted"
	EventAccepted  EventKind = "accepted"
	EventDismissed EventKind = "dismissed"
	EventExpired   EventKind = "expired"
)

// Event is delivered to subscribers on every transition.
type Event struct {
	Kind         EventKind    `json:"kind"`
	Notification Notification `json:"notification"`
}

// Timer is the handle returned by SurfaceConfig.AfterFunc.
type Timer interface {
	Stop() bool
}

// SurfaceConfig controls a Surface.
type SurfaceConfig struct {
	Expiry time.Duration
	Now    func() time.Time
	// AfterFunc schedules expiry callbacks. Defaults to time.AfterFunc.
	AfterFunc func(d time.Duration, f func()) Timer
	Logger    *slog.Logger
	Metrics   *telemetry.Metrics
}

func (c *SurfaceConfig) defaults() {
	if c.Expiry <= 0 {
		c.Expiry = DefaultExpiry
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.AfterFunc == nil {
		c.AfterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Surface holds the single pending notification. A new notification
// replaces the pending one without a dismissal event.
// Surface is safe for concurrent use.
type Surface struct {
	cfg    SurfaceConfig
	logger *slog.Logger

	mu      sync.Mutex
	current *Notification
	timer   Timer
	subs    map[int]func(Event)
	nextSub int
}

// NewSurface creates an empty Surface.
func NewSurface(cfg SurfaceConfig) *Surface {
	cfg.defaults()
	return &Surface{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "nudge.surface"),
		subs:   make(map[int]func(Event)),
	}
}

// Emit makes msg the pending notification.
func (s *Surface) Emit(msg Message) Notification {
	now := s.cfg.Now()
	n := Notification{
		ID:        ids.New(now),
		Message:   msg,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.Expiry),
	}

	s.mu.Lock()
	if s.current != nil {
		s.logger.Debug("replacing pending notification", "replaced", s.current.ID, "type", s.current.Type)
	}
	s.stopTimerLocked()
	s.current = &n
	s.timer = s.cfg.AfterFunc(s.cfg.Expiry, func() { s.expire(n.ID) })
	s.mu.Unlock()

	s.publish(Event{Kind: EventEmitted, Notification: n})
	return n
}

// Current returns the pending notification, if any.
func (s *Surface) Current() (Notification, bool) {
	s.mu.Lock()
	expired := s.expireDueLocked()
	var (
		n  Notification
		ok bool
	)
	if s.current != nil {
		n, ok = *s.current, true
	}
	s.mu.Unlock()

	if expired != nil {
		s.publish(Event{Kind: EventExpired, Notification: *expired})
	}
	return n, ok
}

// Accept resolves the pending notification as accepted and returns it.
// Subscribers receive it with EventAccepted and feed it to the chat pipeline.
func (s *Surface) Accept(id string) (Notification, error) {
	return s.resolve(id, EventAccepted)
}

// Dismiss resolves the pending notification as dismissed.
func (s *Surface) Dismiss(id string) error {
	_, err := s.resolve(id, EventDismissed)
	return err
}

// Subscribe registers fn for every future event. The returned func
// unregisters it. fn runs on the goroutine that caused the transition and
// must not block.
func (s *Surface) Subscribe(fn func(Event)) (cancel func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func (s *Surface) resolve(id string, kind EventKind) (Notification, error) {
	s.mu.Lock()
	expired := s.expireDueLocked()
	if s.current == nil {
		s.mu.Unlock()
		if expired != nil {
			s.publish(Event{Kind: EventExpired, Notification: *expired})
		}
		return Notification{}, ErrNoNotification
	}
	if s.current.ID != id {
		s.mu.Unlock()
		return Notification{}, ErrStaleNotification
	}
	n := *s.current
	s.current = nil
	s.stopTimerLocked()
	s.mu.Unlock()

	s.publish(Event{Kind: kind, Notification: n})
	return n, nil
}

// expire is the timer callback for notification id.
func (s *Surface) expire(id string) {
	s.mu.Lock()
	if s.current == nil || s.current.ID != id {
		s.mu.Unlock()
		return
	}
	n := *s.current
	s.current = nil
	s.timer = nil
	s.mu.Unlock()

	s.publish(Event{Kind: EventExpired, Notification: n})
}

// expireDueLocked clears the pending notification if its deadline passed
// without the timer having fired yet, and returns it.
func (s *Surface) expireDueLocked() *Notification {
	if s.current == nil || s.cfg.Now().Before(s.current.ExpiresAt) {
		return nil
	}
	n := *s.current
	s.current = nil
	s.stopTimerLocked()
	return &n
}

func (s *Surface) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Surface) publish(ev Event) {
	s.cfg.Metrics.NotificationEvent(string(ev.Kind))
	s.logger.Info("notification "+string(ev.Kind), "id", ev.Notification.ID, "type", ev.Notification.Type)

	s.mu.Lock()
	subs := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		s.deliver(fn, ev)
	}
}

func (s *Surface) deliver(fn func(Event), ev Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("notification subscriber panicked", "event", ev.Kind, "panic", r)
		}
	}()
	fn(ev)
}
