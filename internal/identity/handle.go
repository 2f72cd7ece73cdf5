// Package identity tracks which live OS windows belong to an application
// instance the agent started or observed. A handle is a belief about those
// windows, never an authority: every targeting action re-resolves it.
package identity

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/deskmind/api/schemas"
)

// IdentityBasis is the strategy by which a handle was most recently resolved.
type IdentityBasis string

const (
	BasisDirectHandle  IdentityBasis = "direct-handle"
	BasisProcessID     IdentityBasis = "process-id"
	BasisNameMatch     IdentityBasis = "name-match"
	BasisTitleFallback IdentityBasis = "title-fallback"
	BasisUnknown       IdentityBasis = "unknown"
)

// Confidence is the trust level in a handle's current window bindings.
type Confidence string

const (
	ConfidenceHigh     Confidence = "high"
	ConfidenceMedium   Confidence = "medium"
	ConfidenceDegraded Confidence = "degraded"
	ConfidenceLost     Confidence = "lost"
)

// Rank orders confidence levels; higher is more trusted.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	case ConfidenceDegraded:
		return 1
	default:
		return 0
	}
}

// LaunchDescriptor records how an application instance was started.
type LaunchDescriptor struct {
	Executable string   `json:"executable,omitempty"`
	Arguments  []string `json:"arguments,omitempty"`
}

// State is a copy of a handle's observational attributes.
type State struct {
	KnownWindowIDs  []uint64      `json:"known_window_ids"`
	KnownProcessIDs []int         `json:"known_process_ids"`
	LastTitle       string        `json:"last_title"`
	LastResolvedAt  time.Time     `json:"last_resolved_at"`
	Basis           IdentityBasis `json:"identity_basis"`
	Confidence      Confidence    `json:"resolution_confidence"`
}

// Resolution is the outcome of one pass through the resolution cascade.
type Resolution struct {
	Windows    []schemas.WindowSnapshot
	Basis      IdentityBasis
	Confidence Confidence
}

// AppHandle identifies one launched or observed application instance.
// Stable attributes are set at creation and never change; observational
// attributes change only through BindWindow, Resolve and Invalidate, each
// under the handle's own lock.
type AppHandle struct {
	id            string
	requestedName string
	createdAt     time.Time
	launch        LaunchDescriptor

	titlePrefixLen int
	now            func() time.Time
	logger         *zap.Logger

	mu              sync.Mutex
	knownWindowIDs  []uint64
	knownProcessIDs []int
	lastTitle       string
	lastResolvedAt  time.Time
	basis           IdentityBasis
	confidence      Confidence
	// boundAt is the confidence at which knownWindowIDs were bound. A direct
	// re-check of those ids can never report more than this.
	boundAt Confidence
}

func newAppHandle(id, requestedName string, launch LaunchDescriptor, titlePrefixLen int, now func() time.Time, logger *zap.Logger) *AppHandle {
	return &AppHandle{
		id:             id,
		requestedName:  requestedName,
		createdAt:      now(),
		launch:         launch,
		titlePrefixLen: titlePrefixLen,
		now:            now,
		logger:         logger.With(zap.String("handle_id", id), zap.String("app", requestedName)),
		basis:          BasisUnknown,
		confidence:     ConfidenceLost,
		boundAt:        ConfidenceLost,
	}
}

func (h *AppHandle) ID() string { return h.id }
func (h *AppHandle) RequestedName() string { return h.requestedName }
func (h *AppHandle) CreatedAt() time.Time { return h.createdAt }
func (h *AppHandle) Launch() LaunchDescriptor { return h.launch }

// State returns a copy of the observational attributes.
func (h *AppHandle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return State{
		KnownWindowIDs:  append([]uint64(nil), h.knownWindowIDs...),
		KnownProcessIDs: append([]int(nil), h.knownProcessIDs...),
		LastTitle:       h.lastTitle,
		LastResolvedAt:  h.lastResolvedAt,
		Basis:           h.basis,
		Confidence:      h.confidence,
	}
}

// lastActivity is the later of creation and the last resolution.
func (h *AppHandle) lastActivity() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lastResolvedAt.After(h.createdAt) {
		return h.lastResolvedAt
	}
	return h.createdAt
}

// BindWindow records the single window observed right after a successful
// launch. It is the only way a handle reaches high confidence.
func (h *AppHandle) BindWindow(windowID uint64, processID int, title string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.knownWindowIDs = []uint64{windowID}
	h.knownProcessIDs = nil
	if processID > 0 {
		h.knownProcessIDs = []int{processID}
	}
	h.lastTitle = title
	h.lastResolvedAt = h.now()
	h.basis = BasisDirectHandle
	h.confidence = ConfidenceHigh
	h.boundAt = ConfidenceHigh

	h.logger.Debug("Window bound to handle", zap.Uint64("window_id", windowID), zap.Int("pid", processID))
}

// Invalidate forces the lost state, for example after a confirmed close.
func (h *AppHandle) Invalidate() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.knownWindowIDs = nil
	h.knownProcessIDs = nil
	h.basis = BasisUnknown
	h.confidence = ConfidenceLost
	h.boundAt = ConfidenceLost
	h.lastResolvedAt = h.now()
}

// Resolve re-resolves the handle against the live windows in src, trying
// each strategy in order and stopping at the first that matches. With
// allowRebinding false, matches found by name or title are reported but the
// known window ids are left untouched. An error from src leaves the handle
// unchanged.
func (h *AppHandle) Resolve(ctx context.Context, src schemas.WindowSource, allowRebinding bool) (Resolution, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// 1. Direct handle: are the windows we know about still alive?
	if len(h.knownWindowIDs) > 0 {
		var alive []schemas.WindowSnapshot
		for _, id := range h.knownWindowIDs {
			w, ok, err := src.Window(ctx, id)
			if err != nil {
				return Resolution{}, fmt.Errorf("failed to check window %d: %w", id, err)
			}
			if ok {
				alive = append(alive, w)
			}
		}
		if len(alive) > 0 {
			h.knownWindowIDs = windowIDs(alive)
			h.knownProcessIDs = processIDs(alive)
			h.lastTitle = alive[0].Title
			return h.settle(alive, BasisDirectHandle, h.boundAt), nil
		}
	}

	live, err := src.ListWindows(ctx)
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to list windows: %w", err)
	}

	// 2. Process id, then requested application name.
	if matches := matchProcessIDs(live, h.knownProcessIDs); len(matches) > 0 {
		h.rebind(matches, ConfidenceMedium, allowRebinding)
		return h.settle(matches, BasisProcessID, ConfidenceMedium), nil
	}
	if matches := MatchByName(live, h.requestedName); len(matches) > 0 {
		h.rebind(matches, ConfidenceMedium, allowRebinding)
		return h.settle(matches, BasisNameMatch, ConfidenceMedium), nil
	}

	// 3. Bounded prefix of the last known title.
	if matches := MatchByTitlePrefix(live, h.lastTitle, h.titlePrefixLen); len(matches) > 0 {
		h.rebind(matches, ConfidenceDegraded, allowRebinding)
		return h.settle(matches, BasisTitleFallback, ConfidenceDegraded), nil
	}

	// 4. Total loss.
	h.logger.Info("Application handle lost")
	return h.settle(nil, BasisUnknown, ConfidenceLost), nil
}

// rebind adopts matches as the known windows when allowed. Caller holds h.mu.
func (h *AppHandle) rebind(matches []schemas.WindowSnapshot, at Confidence, allowRebinding bool) {
	if !allowRebinding {
		return
	}
	h.knownWindowIDs = windowIDs(matches)
	h.knownProcessIDs = processIDs(matches)
	h.lastTitle = matches[0].Title
	h.boundAt = at
	h.logger.Debug("Handle rebound", zap.Uint64s("window_ids", h.knownWindowIDs), zap.String("bound_at", string(at)))
}

// settle records the outcome of a resolution step. Caller holds h.mu.
func (h *AppHandle) settle(windows []schemas.WindowSnapshot, basis IdentityBasis, conf Confidence) Resolution {
	h.basis = basis
	h.confidence = conf
	h.lastResolvedAt = h.now()
	return Resolution{Windows: windows, Basis: basis, Confidence: conf}
}

// ResolveUnique resolves without rebinding and requires exactly one window.
// It returns ErrLost when nothing matches and an *AmbiguityError when more
// than one window does.
func (h *AppHandle) ResolveUnique(ctx context.Context, src schemas.WindowSource) (schemas.WindowSnapshot, Resolution, error) {
	res, err := h.Resolve(ctx, src, false)
	if err != nil {
		return schemas.WindowSnapshot{}, res, err
	}
	switch len(res.Windows) {
	case 0:
		return schemas.WindowSnapshot{}, res, fmt.Errorf("%w: %s", ErrLost, h.requestedName)
	case 1:
		return res.Windows[0], res, nil
	default:
		return schemas.WindowSnapshot{}, res, &AmbiguityError{Query: h.requestedName, Candidates: res.Windows}
	}
}

func matchProcessIDs(windows []schemas.WindowSnapshot, pids []int) []schemas.WindowSnapshot {
	if len(pids) == 0 {
		return nil
	}
	want := make(map[int]struct{}, len(pids))
	for _, p := range pids {
		want[p] = struct{}{}
	}
	var out []schemas.WindowSnapshot
	for _, w := range windows {
		if _, ok := want[w.ProcessID]; ok {
			out = append(out, w)
		}
	}
	return out
}

// MatchByTitlePrefix returns windows whose title starts with the first n
// runes of title, compared case-insensitively.
func MatchByTitlePrefix(windows []schemas.WindowSnapshot, title string, n int) []schemas.WindowSnapshot {
	prefix := titlePrefix(title, n)
	if prefix == "" {
		return nil
	}
	var out []schemas.WindowSnapshot
	for _, w := range windows {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(w.Title)), prefix) {
			out = append(out, w)
		}
	}
	return out
}

func titlePrefix(title string, n int) string {
	t := []rune(strings.ToLower(strings.TrimSpace(title)))
	if n > 0 && len(t) > n {
		t = t[:n]
	}
	return string(t)
}

func windowIDs(windows []schemas.WindowSnapshot) []uint64 {
	ids := make([]uint64, len(windows))
	for i, w := range windows {
		ids[i] = w.ID
	}
	return ids
}

func processIDs(windows []schemas.WindowSnapshot) []int {
	seen := make(map[int]struct{}, len(windows))
	var pids []int
	for _, w := range windows {
		if w.ProcessID <= 0 {
			continue
		}
		if _, dup := seen[w.ProcessID]; dup {
			continue
		}
		seen[w.ProcessID] = struct{}{}
		pids = append(pids, w.ProcessID)
	}
	return pids
}
