package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lumenlms/tutor-backend/internal/pkg/logger"
)

// DefaultIdleAfter is how long a controller may sit untouched before the
// sweeper ends it and releases its memory. The snapshot keeps the session
// resumable after eviction.
const DefaultIdleAfter = 30 * time.Minute

// Registry owns the live controllers, one per (user, course). Controllers
// are created lazily on first use and evicted after inactivity.
type Registry struct {
	log       *logger.Logger
	cfg       Config
	deps      Deps
	idleAfter time.Duration

	mu sync.Mutex
	m  map[registryKey]*Controller
}

type registryKey struct {
	userID   uuid.UUID
	courseID uuid.UUID
}

func NewRegistry(log *logger.Logger, cfg Config, deps Deps) *Registry {
	return &Registry{
		log:       log.With("component", "SessionRegistry"),
		cfg:       cfg,
		deps:      deps,
		idleAfter: DefaultIdleAfter,
		m:         make(map[registryKey]*Controller),
	}
}

// SetIdleAfter overrides the eviction threshold; test hook.
func (r *Registry) SetIdleAfter(d time.Duration) {
	if d > 0 {
		r.idleAfter = d
	}
}

// Obtain returns the live controller for the pair, creating one if needed.
func (r *Registry) Obtain(userID, courseID uuid.UUID) *Controller {
	key := registryKey{userID: userID, courseID: courseID}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.m[key]; ok {
		return c
	}
	c := NewController(r.log, r.cfg, userID, courseID, r.deps)
	r.m[key] = c
	return c
}

// Lookup returns the live controller, or nil when none exists. Unlike
// Obtain it never creates one; read-only surfaces use it so a GET cannot
// spawn a session.
func (r *Registry) Lookup(userID, courseID uuid.UUID) *Controller {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.m[registryKey{userID: userID, courseID: courseID}]
}

// Drop removes the controller for the pair, if any.
func (r *Registry) Drop(userID, courseID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, registryKey{userID: userID, courseID: courseID})
}

// Sweep ends and evicts controllers idle past the threshold. Run runs it
// periodically; it is exported for tests.
func (r *Registry) Sweep(ctx context.Context) int {
	cutoff := time.Now().Add(-r.idleAfter)

	r.mu.Lock()
	var stale []*Controller
	var keys []registryKey
	for k, c := range r.m {
		if c.LastActive().Before(cutoff) {
			stale = append(stale, c)
			keys = append(keys, k)
		}
	}
	for _, k := range keys {
		delete(r.m, k)
	}
	r.mu.Unlock()

	for _, c := range stale {
		if err := c.End(ctx); err != nil {
			r.log.Warn("idle session end failed", "error", err)
		}
	}
	if len(stale) > 0 {
		r.log.Info("swept idle sessions", "count", len(stale))
	}
	return len(stale)
}

// Run sweeps on an interval until the context is cancelled, then ends every
// remaining session so snapshots land before shutdown.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.shutdown()
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

func (r *Registry) shutdown() {
	r.mu.Lock()
	all := make([]*Controller, 0, len(r.m))
	for _, c := range r.m {
		all = append(all, c)
	}
	r.m = make(map[registryKey]*Controller)
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	for _, c := range all {
		_ = c.End(ctx)
	}
}

// Size reports the live controller count.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.m)
}
