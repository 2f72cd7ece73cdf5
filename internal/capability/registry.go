// Package capability holds the registry of operations the executor can
// perform. The decision core only reads it; mutation is for bootstrapping and
// dynamic registration by the host.
package capability

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/deskmind/api/schemas"
	"github.com/xkilldash9x/deskmind/internal/llmutil"
)

// ErrUnknownCapability is returned for identifiers the registry does not hold.
var ErrUnknownCapability = errors.New("unknown capability")

type entry struct {
	capability schemas.Capability
	validator  *llmutil.Validator
}

// Registry is a thread-safe capability store. Reads vastly outnumber writes,
// so listings are cached and rebuilt lazily after a mutation.
type Registry struct {
	mu        sync.RWMutex
	entries   map[string]entry
	defs      []schemas.Capability
	defsDirty bool
	version   uint64
	logger    *zap.Logger
}

var _ schemas.CapabilityRegistry = (*Registry)(nil)

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		entries:   make(map[string]entry),
		defsDirty: true,
		logger:    logger.Named("capabilities"),
	}
}

// NewRegistryFromCatalog creates a registry pre-populated with caps.
func NewRegistryFromCatalog(logger *zap.Logger, caps []schemas.Capability) (*Registry, error) {
	r := NewRegistry(logger)
	for _, c := range caps {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	r.logger.Debug("Capability catalog loaded", zap.Int("count", len(caps)))
	return r, nil
}

// Register adds a capability. Its parameter schema, if any, must compile.
func (r *Registry) Register(c schemas.Capability) error {
	if c.ID == "" {
		return fmt.Errorf("capability id is required")
	}
	if strings.HasPrefix(c.ID, ".") || strings.HasSuffix(c.ID, ".") || !strings.Contains(c.ID, ".") {
		return fmt.Errorf("capability id %q must be a dotted domain identifier", c.ID)
	}

	var validator *llmutil.Validator
	if len(c.ParameterSchema) > 0 {
		v, err := llmutil.NewValidator(c.ID, string(c.ParameterSchema))
		if err != nil {
			return fmt.Errorf("capability %q: %w", c.ID, err)
		}
		validator = v
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[c.ID]; exists {
		return fmt.Errorf("capability already exists: %s", c.ID)
	}
	r.entries[c.ID] = entry{capability: c, validator: validator}
	r.defsDirty = true
	r.version++
	return nil
}

// Unregister removes a capability.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCapability, id)
	}
	delete(r.entries, id)
	r.defsDirty = true
	r.version++
	return nil
}

// Get returns the capability with the exact id.
func (r *Registry) Get(id string) (schemas.Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e.capability, ok
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[id]
	return ok
}

// Len returns the number of registered capabilities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Version increases on every mutation. Callers use it to key caches.
func (r *Registry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// ListAll returns every capability sorted by id. The slice is a copy.
func (r *Registry) ListAll() []schemas.Capability {
	r.mu.RLock()
	if !r.defsDirty {
		out := append([]schemas.Capability(nil), r.defs...)
		r.mu.RUnlock()
		return out
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.defsDirty {
		defs := make([]schemas.Capability, 0, len(r.entries))
		for _, e := range r.entries {
			defs = append(defs, e.capability)
		}
		sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
		r.defs = defs
		r.defsDirty = false
	}
	return append([]schemas.Capability(nil), r.defs...)
}

// ListByPrefix returns the capabilities whose id starts with any of prefixes.
func (r *Registry) ListByPrefix(prefixes ...string) []schemas.Capability {
	return FilterByPrefix(r.ListAll(), prefixes...)
}

// ValidateParameters checks params against the capability's parameter schema.
// Capabilities without a schema accept anything.
func (r *Registry) ValidateParameters(id string, params map[string]interface{}) error {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCapability, id)
	}
	if e.validator == nil {
		return nil
	}
	if params == nil {
		params = map[string]interface{}{}
	}
	return e.validator.Validate(params)
}

// FilterByPrefix keeps the capabilities whose id starts with any of prefixes.
func FilterByPrefix(caps []schemas.Capability, prefixes ...string) []schemas.Capability {
	var out []schemas.Capability
	for _, c := range caps {
		if MatchesPrefix(c.ID, prefixes...) {
			out = append(out, c)
		}
	}
	return out
}

// MatchesPrefix reports whether id falls under any of the domain prefixes.
func MatchesPrefix(id string, prefixes ...string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(id, p) {
			return true
		}
	}
	return false
}
