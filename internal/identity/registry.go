package identity

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deskmind/api/schemas"
	"github.com/xkilldash9x/deskmind/internal/config"
)

// newHandleID is a package-level variable so tests can make ids predictable.
var newHandleID = uuid.NewString

// Registry owns every AppHandle of a session. It stores and bounds handle
// lifetimes; resolution itself lives on the handle. Handles are never
// persisted.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]*AppHandle

	titlePrefixLen int
	now            func() time.Time
	logger         *zap.Logger
}

// NewRegistry creates an empty handle registry.
func NewRegistry(logger *zap.Logger, cfg config.IdentityConfig) *Registry {
	return &Registry{
		handles:        make(map[string]*AppHandle),
		titlePrefixLen: cfg.TitlePrefixLength,
		now:            time.Now,
		logger:         logger.Named("identity"),
	}
}

// Create registers a new handle for requestedName. The handle starts lost
// until BindWindow or a resolution finds its windows.
func (r *Registry) Create(requestedName string, launch LaunchDescriptor) *AppHandle {
	h := newAppHandle(newHandleID(), requestedName, launch, r.titlePrefixLen, r.now, r.logger)

	r.mu.Lock()
	r.handles[h.id] = h
	r.mu.Unlock()

	r.logger.Debug("Handle created", zap.String("handle_id", h.id), zap.String("app", requestedName))
	return h
}

// Lookup returns the handle with id.
func (r *Registry) Lookup(id string) (*AppHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[id]
	return h, ok
}

// FindByName returns the handles created for appName, newest first.
func (r *Registry) FindByName(appName string) []*AppHandle {
	want := schemas.NormalizeAppName(appName)

	r.mu.RLock()
	var out []*AppHandle
	for _, h := range r.handles {
		if schemas.NormalizeAppName(h.requestedName) == want {
			out = append(out, h)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].createdAt.Equal(out[j].createdAt) {
			return out[i].id < out[j].id
		}
		return out[i].createdAt.After(out[j].createdAt)
	})
	return out
}

// Remove deletes the handle with id, reporting whether it existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handles[id]; !ok {
		return false
	}
	delete(r.handles, id)
	return true
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// Prune removes handles with no activity within maxAge and returns how many
// were removed. Activity is read without the registry lock held, since a
// handle's lock is held across window lookups while it resolves.
func (r *Registry) Prune(maxAge time.Duration) int {
	cutoff := r.now().Add(-maxAge)

	r.mu.RLock()
	snapshot := make(map[string]*AppHandle, len(r.handles))
	for id, h := range r.handles {
		snapshot[id] = h
	}
	r.mu.RUnlock()

	var stale []string
	for id, h := range snapshot {
		if h.lastActivity().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return 0
	}

	r.mu.Lock()
	removed := 0
	for _, id := range stale {
		// The id may have been removed, or replaced, since the snapshot.
		if current, ok := r.handles[id]; ok && current == snapshot[id] {
			delete(r.handles, id)
			removed++
		}
	}
	remaining := len(r.handles)
	r.mu.Unlock()

	if removed > 0 {
		r.logger.Debug("Pruned stale handles", zap.Int("removed", removed), zap.Int("remaining", remaining))
	}
	return removed
}

// StartPruner prunes on every interval until ctx is done. The returned
// channel is closed once the loop has exited.
func (r *Registry) StartPruner(ctx context.Context, interval, maxAge time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Prune(maxAge)
			}
		}
	}()
	return done
}

// Resolve resolves the handle with id. An unknown id is a programming error
// and is reported as ErrHandleNotFound.
func (r *Registry) Resolve(ctx context.Context, id string, src schemas.WindowSource, allowRebinding bool) (Resolution, error) {
	h, ok := r.Lookup(id)
	if !ok {
		return Resolution{}, fmt.Errorf("%w: %s", ErrHandleNotFound, id)
	}
	return h.Resolve(ctx, src, allowRebinding)
}
