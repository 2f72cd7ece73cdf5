package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/deskmind/api/schemas"
	"github.com/xkilldash9x/deskmind/internal/capability"
	"github.com/xkilldash9x/deskmind/internal/events"
	"github.com/xkilldash9x/deskmind/internal/identity"
)

// targetingPrefixes are capabilities that act on an existing application
// window named by their app_name parameter.
var targetingPrefixes = []string{"app.focus", "app.quit", "window."}

// targetOf returns the application an action's chosen capability acts on.
func targetOf(ad schemas.ActionDecision) string {
	if ad.Resolution != nil && ad.Resolution.HasTool() {
		return targetName(ad.Resolution.Tool, ad.Resolution.Parameters)
	}
	if ad.Fallback != nil {
		for _, step := range ad.Fallback.Steps {
			if name := targetName(step.Tool, step.Parameters); name != "" {
				return name
			}
		}
	}
	return ""
}

func targetName(tool string, params map[string]interface{}) string {
	if !capability.MatchesPrefix(tool, targetingPrefixes...) || params == nil {
		return ""
	}
	name, _ := params["app_name"].(string)
	return strings.TrimSpace(name)
}

// resolveTarget finds the window an action targets. Every known handle for
// the application re-resolves through the identity cascade without
// rebinding, and the union of their windows is the candidate set. Only when
// every handle is lost are the live windows searched by name. More than one
// candidate is an ambiguity, never a silent pick. Having no window at all is
// left to the prerequisite gate and the capability itself.
func (p *Pipeline) resolveTarget(ctx context.Context, requestID string, ad schemas.ActionDecision) (*schemas.WindowSnapshot, *schemas.Ambiguity) {
	appName := targetOf(ad)
	if appName == "" || p.windows == nil {
		return nil, nil
	}
	logger := p.logger.With(zap.String("action_id", ad.Action.ID), zap.String("app_name", appName))

	if handles := p.handles.FindByName(appName); len(handles) > 0 {
		candidates, err := p.resolveHandles(ctx, requestID, ad.Action.ID, handles)
		if err != nil {
			logger.Warn("Handle resolution failed", zap.Error(err))
			return nil, nil
		}
		switch len(candidates) {
		case 0:
			logger.Debug("Every handle lost, falling back to name lookup", zap.Int("handles", len(handles)))
		case 1:
			logger.Debug("Target resolved through handles", zap.Int("handles", len(handles)))
			return &candidates[0], nil
		default:
			return nil, &schemas.Ambiguity{ActionID: ad.Action.ID, Query: appName, Candidates: candidates}
		}
	}

	matches, err := identity.FindWindows(ctx, p.windows, appName)
	var ambiguous *identity.AmbiguityError
	switch {
	case err == nil:
		p.metrics.ObserveIdentityResolution(string(identity.BasisNameMatch))
		return &matches[0], nil
	case errors.As(err, &ambiguous):
		p.metrics.ObserveIdentityResolution(string(identity.BasisNameMatch))
		return nil, &schemas.Ambiguity{ActionID: ad.Action.ID, Query: appName, Candidates: ambiguous.Candidates}
	case errors.Is(err, identity.ErrNoWindow):
		logger.Debug("No window matches target")
	default:
		logger.Warn("Window lookup failed", zap.Error(err))
	}
	return nil, nil
}

// resolveHandles resolves each handle without rebinding and returns the
// distinct windows they account for, in handle order.
func (p *Pipeline) resolveHandles(ctx context.Context, requestID, actionID string, handles []*identity.AppHandle) ([]schemas.WindowSnapshot, error) {
	var candidates []schemas.WindowSnapshot
	seen := make(map[uint64]bool)
	for _, h := range handles {
		res, err := h.Resolve(ctx, p.windows, false)
		if err != nil {
			return nil, fmt.Errorf("handle %s: %w", h.ID(), err)
		}
		p.metrics.ObserveIdentityResolution(string(res.Basis))
		p.publish(events.Event{Type: events.TypeIdentity, Payload: events.IdentityEvent{
			RequestID:  requestID,
			ActionID:   actionID,
			HandleID:   h.ID(),
			Basis:      string(res.Basis),
			Confidence: string(res.Confidence),
			Windows:    len(res.Windows),
		}})
		for _, w := range res.Windows {
			if !seen[w.ID] {
				seen[w.ID] = true
				candidates = append(candidates, w)
			}
		}
	}
	return candidates, nil
}
