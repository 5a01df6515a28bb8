package memory

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nudgeme/nudgeme/internal/telemetry"
)

// RemoteServiceName is the AppContext service key of the configured Remote.
const RemoteServiceName = "memory.remote"

// Remote is an optional document store mirroring the memory collection.
// It is an availability enhancement only: its failures are logged and
// never reach Store callers.
type Remote interface {
	Insert(ctx context.Context, r Record) error
	// Select returns matching records newest first, honoring f.Limit.
	Select(ctx context.Context, f Filter) ([]Record, error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}

type remoteOp struct {
	name   string
	fn     func(ctx context.Context) error
	resync bool
}

// remoteTier runs remote writes on a single background worker so callers
// never wait on the network. Writes beyond the queue size are discarded.
//
// A discarded write marks the tier stale: the remote no longer mirrors the
// local collection, so reads stay local until a resync has replaced the
// remote contents with a local snapshot.
type remoteTier struct {
	remote  Remote
	timeout time.Duration
	logger  *slog.Logger
	metrics *telemetry.Metrics

	mu      sync.Mutex
	closed  bool
	ops     chan remoteOp
	pending atomic.Int64
	done    chan struct{}

	stale     atomic.Bool
	resyncing atomic.Bool
}

func newRemoteTier(r Remote, timeout time.Duration, queue int, logger *slog.Logger, m *telemetry.Metrics) *remoteTier {
	t := &remoteTier{
		remote:  r,
		timeout: timeout,
		logger:  logger,
		metrics: m,
		ops:     make(chan remoteOp, queue),
		done:    make(chan struct{}),
	}
	go t.run()
	return t
}

func (t *remoteTier) run() {
	defer close(t.done)
	for op := range t.ops {
		var err error
		if op.resync {
			err = op.fn(context.Background())
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
			err = op.fn(ctx)
			cancel()
		}
		switch {
		case err != nil:
			t.stale.Store(true)
			t.metrics.RemoteFallback(op.name)
			t.logger.Warn("remote memory write discarded", "op", op.name, "error", err)
		case op.resync:
			t.stale.Store(false)
			t.logger.Info("remote memory resynced from local copy")
		}
		if op.resync {
			t.resyncing.Store(false)
		}
		t.pending.Add(-1)
	}
}

func (t *remoteTier) submit(op remoteOp) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.pending.Add(1)
	select {
	case t.ops <- op:
		return true
	default:
		t.pending.Add(-1)
		t.stale.Store(true)
		t.metrics.RemoteFallback(op.name)
		t.logger.Warn("remote memory queue full, write discarded", "op", op.name)
		return false
	}
}

func (t *remoteTier) write(name string, fn func(ctx context.Context) error) {
	t.submit(remoteOp{name: name, fn: fn})
}

func (t *remoteTier) needsResync() bool {
	return t.stale.Load() && !t.resyncing.Load()
}

// resync queues a replacement of the remote contents with snapshot unless a
// resync is already queued. Each remote call gets its own timeout. The
// snapshot must be taken under the same lock that orders the other writes.
func (t *remoteTier) resync(snapshot []Record) {
	if !t.resyncing.CompareAndSwap(false, true) {
		return
	}
	ok := t.submit(remoteOp{name: "resync", resync: true, fn: func(ctx context.Context) error {
		if err := t.call(ctx, t.remote.Clear); err != nil {
			return err
		}
		for _, r := range snapshot {
			err := t.call(ctx, func(ctx context.Context) error { return t.remote.Insert(ctx, r) })
			if err != nil {
				return err
			}
		}
		return nil
	}})
	if !ok {
		t.resyncing.Store(false)
	}
}

// call bounds a single remote call by the tier timeout.
func (t *remoteTier) call(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return fn(ctx)
}

// query reads from the remote tier. It reports false when the caller should
// use the local tier instead: on any remote error, while local writes are
// still queued for the remote, or while the remote is stale. A read therefore
// always observes earlier writes.
func (t *remoteTier) query(ctx context.Context, f Filter) ([]Record, bool) {
	if t.pending.Load() > 0 || t.stale.Load() {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	recs, err := t.remote.Select(ctx, f)
	if err != nil {
		t.metrics.RemoteFallback("select")
		t.logger.Debug("remote memory read failed, using local copy", "error", err)
		return nil, false
	}
	if f.Limit > 0 && len(recs) > f.Limit {
		recs = recs[:f.Limit]
	}
	return recs, true
}

func (t *remoteTier) close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	close(t.ops)
	t.mu.Unlock()
	<-t.done
}
