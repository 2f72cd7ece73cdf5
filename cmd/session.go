// File: cmd/session.go
package cmd

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/deskmind/api/schemas"
	"github.com/xkilldash9x/deskmind/internal/config"
	"github.com/xkilldash9x/deskmind/internal/identity"
)

// Session holds the application handles of an interactive shell so that
// they survive from one command line to the next. The registry is created
// by the first command that needs it, using that command's configuration,
// and a background pruner bounds its size until Close.
type Session struct {
	mu      sync.Mutex
	handles *identity.Registry
	stop    context.CancelFunc
	pruned  <-chan struct{}
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{}
}

// registry returns the session's handle registry, creating it and starting
// its pruner on first use.
func (s *Session) registry(cfg config.IdentityConfig, logger *zap.Logger) *identity.Registry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handles != nil {
		return s.handles
	}

	s.handles = identity.NewRegistry(logger, cfg)
	if cfg.PruneInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		s.stop = cancel
		s.pruned = s.handles.StartPruner(ctx, cfg.PruneInterval, cfg.MaxHandleAge)
	}
	return s.handles
}

// Handles returns the session's registry, or nil before any command used it.
func (s *Session) Handles() *identity.Registry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handles
}

// Close stops the pruner and waits for it to exit.
func (s *Session) Close() {
	s.mu.Lock()
	stop, pruned := s.stop, s.pruned
	s.stop, s.pruned = nil, nil
	s.mu.Unlock()

	if stop != nil {
		stop()
		<-pruned
	}
}

// seedHandles tracks every window of snapshot that no handle knows yet,
// one handle per window named after its process. It returns how many
// handles were created.
func seedHandles(handles *identity.Registry, snapshot []schemas.WindowSnapshot) int {
	created := 0
	for _, w := range snapshot {
		if w.ID == 0 || w.ProcessName == "" || tracked(handles, w) {
			continue
		}
		h := handles.Create(w.ProcessName, identity.LaunchDescriptor{Executable: w.ProcessName})
		h.BindWindow(w.ID, w.ProcessID, w.Title)
		created++
	}
	return created
}

func tracked(handles *identity.Registry, w schemas.WindowSnapshot) bool {
	for _, h := range handles.FindByName(w.ProcessName) {
		for _, id := range h.State().KnownWindowIDs {
			if id == w.ID {
				return true
			}
		}
	}
	return false
}
