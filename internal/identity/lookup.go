package identity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/xkilldash9x/deskmind/api/schemas"
)

var (
	// ErrLost means no live window could be tied to the handle.
	ErrLost = errors.New("application handle lost")
	// ErrHandleNotFound means the registry does not own the handle id. This is
	// a caller contract violation rather than an environmental condition.
	ErrHandleNotFound = errors.New("application handle not found")
	// ErrNoWindow means a name lookup found no live window.
	ErrNoWindow = errors.New("no matching window")
)

// AmbiguityError reports that more than one live window matched. Callers
// must present the candidates rather than pick one.
type AmbiguityError struct {
	Query      string
	Candidates []schemas.WindowSnapshot
}

func (e *AmbiguityError) Error() string {
	return fmt.Sprintf("ambiguous: %d windows match %q", len(e.Candidates), e.Query)
}

// processAliases maps friendly application names to the process names they
// run under.
var processAliases = map[string][]string{
	"word":               {"winword"},
	"powerpoint":         {"powerpnt"},
	"vscode":             {"code"},
	"visual studio code": {"code"},
	"edge":               {"msedge"},
	"file explorer":      {"explorer"},
	"calculator":         {"calculatorapp", "calc"},
	"terminal":           {"windowsterminal", "gnome-terminal", "terminal"},
}

// MatchByName returns windows whose process plausibly belongs to the named
// application: an exact or prefix match on the normalized process name, or a
// known alias.
func MatchByName(windows []schemas.WindowSnapshot, appName string) []schemas.WindowSnapshot {
	want := schemas.NormalizeAppName(appName)
	if want == "" {
		return nil
	}
	candidates := append([]string{want}, processAliases[want]...)

	var out []schemas.WindowSnapshot
	for _, w := range windows {
		proc := schemas.NormalizeAppName(w.ProcessName)
		if proc == "" {
			continue
		}
		for _, c := range candidates {
			if proc == c || strings.HasPrefix(proc, c) {
				out = append(out, w)
				break
			}
		}
	}
	return out
}

// FindWindows is the direct lookup by application name used when no handle
// exists. It returns the single match, ErrNoWindow, or an *AmbiguityError
// carrying every candidate.
func FindWindows(ctx context.Context, src schemas.WindowSource, appName string) ([]schemas.WindowSnapshot, error) {
	live, err := src.ListWindows(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list windows: %w", err)
	}
	matches := MatchByName(live, appName)
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrNoWindow, appName)
	case 1:
		return matches, nil
	default:
		return matches, &AmbiguityError{Query: appName, Candidates: matches}
	}
}

// StaticSource is an in-memory WindowSource. The CLI loads it from a
// snapshot file; hosts without a live backend can feed it directly.
type StaticSource struct {
	mu      sync.RWMutex
	windows map[uint64]schemas.WindowSnapshot
}

var _ schemas.WindowSource = (*StaticSource)(nil)

// NewStaticSource creates a source holding windows.
func NewStaticSource(windows ...schemas.WindowSnapshot) *StaticSource {
	s := &StaticSource{windows: make(map[uint64]schemas.WindowSnapshot, len(windows))}
	s.Set(windows...)
	return s
}

// Set adds or replaces windows.
func (s *StaticSource) Set(windows ...schemas.WindowSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range windows {
		s.windows[w.ID] = w
	}
}

// Close removes windows, as if they were closed.
func (s *StaticSource) Close(ids ...uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.windows, id)
	}
}

// ListWindows returns the windows ordered by id.
func (s *StaticSource) ListWindows(ctx context.Context) ([]schemas.WindowSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]schemas.WindowSnapshot, 0, len(s.windows))
	for _, w := range s.windows {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *StaticSource) Window(ctx context.Context, id uint64) (schemas.WindowSnapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return schemas.WindowSnapshot{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.windows[id]
	return w, ok, nil
}
