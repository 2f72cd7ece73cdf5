package router

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/deskmind/api/schemas"
)

// Handler resolves an action whose classification was trusted.
type Handler interface {
	Handle(ctx context.Context, action schemas.Action, cls schemas.ClassificationResult, env schemas.Environment) schemas.ResolutionResult
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, action schemas.Action, cls schemas.ClassificationResult, env schemas.Environment) schemas.ResolutionResult

func (f HandlerFunc) Handle(ctx context.Context, action schemas.Action, cls schemas.ClassificationResult, env schemas.Environment) schemas.ResolutionResult {
	return f(ctx, action, cls, env)
}

// FallbackReasoner produces a plan for actions that cannot be routed directly.
type FallbackReasoner interface {
	Reason(ctx context.Context, description string, cls schemas.ClassificationResult, env schemas.Environment) schemas.FallbackPlan
}

// Outcome is the result of routing one action. Exactly one of Resolution
// and Fallback is set.
type Outcome struct {
	Route      schemas.Route
	Resolution *schemas.ResolutionResult
	Fallback   *schemas.FallbackPlan
}

// Router sends confidently classified actions to their category handler and
// everything else to the reasoner.
type Router struct {
	threshold float64
	reasoner  FallbackReasoner

	mu       sync.RWMutex
	handlers map[schemas.IntentCategory]Handler

	logger *zap.Logger
}

// New creates a router. threshold is the classification confidence required
// for the direct route.
func New(logger *zap.Logger, threshold float64, reasoner FallbackReasoner) (*Router, error) {
	if threshold <= 0 || threshold > 1 {
		return nil, fmt.Errorf("routing threshold must be in (0, 1], got %v", threshold)
	}
	if reasoner == nil {
		return nil, fmt.Errorf("router requires a fallback reasoner")
	}
	return &Router{
		threshold: threshold,
		reasoner:  reasoner,
		handlers:  make(map[schemas.IntentCategory]Handler),
		logger:    logger.Named("router"),
	}, nil
}

// Handle registers h for category, replacing any previous handler.
func (r *Router) Handle(category schemas.IntentCategory, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[category] = h
}

// HasHandler reports whether category has a registered handler.
func (r *Router) HasHandler(category schemas.IntentCategory) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[category]
	return ok
}

// Threshold returns the routing threshold.
func (r *Router) Threshold() float64 { return r.threshold }

// Route picks the branch for action.
func (r *Router) Route(ctx context.Context, action schemas.Action, cls schemas.ClassificationResult, env schemas.Environment) Outcome {
	r.mu.RLock()
	h, ok := r.handlers[cls.Category]
	r.mu.RUnlock()

	if ok && cls.Confidence >= r.threshold {
		r.logger.Debug("Routing directly",
			zap.String("action", action.ID),
			zap.String("category", string(cls.Category)),
			zap.Float64("confidence", cls.Confidence))
		res := h.Handle(ctx, action, cls, env)
		return Outcome{Route: schemas.RouteDirect, Resolution: &res}
	}

	r.logger.Debug("Escalating to open-ended reasoning",
		zap.String("action", action.ID),
		zap.String("category", string(cls.Category)),
		zap.Float64("confidence", cls.Confidence),
		zap.Bool("has_handler", ok))
	plan := r.reasoner.Reason(ctx, action.Description, cls, env)
	return Outcome{Route: schemas.RouteFallback, Fallback: &plan}
}
