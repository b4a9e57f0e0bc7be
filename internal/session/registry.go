package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vbonduro/pillpal/internal/domain"
	"github.com/vbonduro/pillpal/internal/imagestore"
)

// SnapshotStore is the subset of store.SnapshotStore the registry requires.
type SnapshotStore interface {
	Save(ctx context.Context, snap *domain.Snapshot) error
	Get(ctx context.Context, id string) (*domain.Snapshot, error)
	Delete(ctx context.Context, id string) error
	DeleteIdleBefore(ctx context.Context, cutoff time.Time) ([]string, error)
}

// Registry maps session ids to controllers. A nil SnapshotStore keeps
// sessions in memory only.
type Registry struct {
	deps      Deps
	snapshots SnapshotStore
	ttl       time.Duration
	logger    *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Controller
}

func NewRegistry(deps Deps, snapshots SnapshotStore, ttl time.Duration) *Registry {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		deps:      deps,
		snapshots: snapshots,
		ttl:       ttl,
		logger:    logger,
		sessions:  make(map[string]*Controller),
	}
}

func (r *Registry) Create() *Controller {
	c := r.attach(NewController(uuid.NewString(), r.deps))

	r.mu.Lock()
	r.sessions[c.ID()] = c
	r.mu.Unlock()

	r.logger.Info("session created", "session_id", c.ID())
	return c
}

// Get returns the controller for id, restoring it from the snapshot store on
// a miss.
func (r *Registry) Get(ctx context.Context, id string) (*Controller, bool) {
	if id == "" {
		return nil, false
	}

	r.mu.RLock()
	c, ok := r.sessions[id]
	r.mu.RUnlock()
	if ok {
		return c, true
	}

	if r.snapshots == nil {
		return nil, false
	}
	snap, err := r.snapshots.Get(ctx, id)
	if err != nil {
		r.logger.Error("failed to load session snapshot", "session_id", id, "error", err)
		return nil, false
	}
	if snap == nil {
		return nil, false
	}

	restored := NewController(id, r.deps)
	restored.restore(snap)

	r.mu.Lock()
	if existing, ok := r.sessions[id]; ok {
		r.mu.Unlock()
		return existing, true
	}
	r.sessions[id] = r.attach(restored)
	r.mu.Unlock()

	r.logger.Info("session restored", "session_id", id, "view", snap.View)
	return restored, true
}

// Delete resets the session and forgets it.
func (r *Registry) Delete(ctx context.Context, id string) {
	r.mu.Lock()
	c, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if ok {
		c.Reset(ctx)
	}
	r.deleteSnapshot(ctx, id)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep evicts sessions whose state has not changed within the TTL, along
// with their images and snapshots. It returns the number of in-memory
// sessions evicted. A zero TTL disables eviction.
func (r *Registry) Sweep(ctx context.Context, now time.Time) int {
	if r.ttl <= 0 {
		return 0
	}
	cutoff := now.Add(-r.ttl)

	r.mu.Lock()
	var evicted []*Controller
	for id, c := range r.sessions {
		if c.idle(cutoff) {
			evicted = append(evicted, c)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, c := range evicted {
		c.Reset(ctx)
		r.deleteSnapshot(ctx, c.ID())
	}

	if r.snapshots != nil {
		keys, err := r.snapshots.DeleteIdleBefore(ctx, cutoff)
		if err != nil {
			r.logger.Error("failed to delete idle snapshots", "error", err)
		}
		for _, key := range keys {
			if err := r.deps.Images.Delete(ctx, key); err != nil && !errors.Is(err, imagestore.ErrNotFound) {
				r.logger.Error("failed to delete image", "key", key, "error", err)
			}
		}
	}

	if len(evicted) > 0 {
		r.logger.Info("idle sessions evicted", "count", len(evicted))
	}
	return len(evicted)
}

// Run sweeps every interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			r.Sweep(ctx, now)
		}
	}
}

// attach wires persistence to c. A session back in its reset state has its
// snapshot removed instead of saved.
func (r *Registry) attach(c *Controller) *Controller {
	if r.snapshots == nil {
		return c
	}
	var persistMu sync.Mutex
	c.Subscribe(func(s State) {
		if s.Loading || s.Chatting {
			return
		}
		persistMu.Lock()
		defer persistMu.Unlock()

		ctx := context.Background()
		if c.State().Pristine() {
			r.deleteSnapshot(ctx, c.ID())
			return
		}
		if err := r.snapshots.Save(ctx, c.Snapshot()); err != nil {
			r.logger.Error("failed to save session snapshot", "session_id", c.ID(), "error", err)
		}
	})
	return c
}

func (r *Registry) deleteSnapshot(ctx context.Context, id string) {
	if r.snapshots == nil {
		return
	}
	if err := r.snapshots.Delete(ctx, id); err != nil {
		r.logger.Error("failed to delete session snapshot", "session_id", id, "error", err)
	}
}
