// Package prereq checks, without any inference, whether the environment
// allows a capability to run. Rules are keyed by capability id prefix and
// evaluated against an environment snapshot.
package prereq

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/deskmind/api/schemas"
	"github.com/xkilldash9x/deskmind/internal/capability"
)

// Requirement is an execution precondition a capability declares.
type Requirement string

const (
	// RequireFocus needs a real, non-desktop window to hold focus.
	RequireFocus Requirement = "focus"
	// RequireUnlockedScreen needs the screen not to be heuristically locked.
	RequireUnlockedScreen Requirement = "unlocked_screen"
	// RequireTargetPresent is a soft check that the named application appears
	// to be running. It never blocks.
	RequireTargetPresent Requirement = "target_present"
)

type rule struct {
	prefix       string
	requirements []Requirement
}

var defaultRules = []rule{
	{prefix: "input.", requirements: []Requirement{RequireFocus}},
	{prefix: "screen.", requirements: []Requirement{RequireUnlockedScreen}},
	{prefix: "app.focus", requirements: []Requirement{RequireTargetPresent}},
	{prefix: "window.", requirements: []Requirement{RequireTargetPresent}},
}

// focusEstablishing capabilities leave a window focused when they succeed.
var focusEstablishing = []string{"app.launch", "app.focus"}

// Gate is the deterministic prerequisite gate. It holds no mutable state.
type Gate struct {
	rules  []rule
	logger *zap.Logger
}

// NewGate creates a gate with the desktop rule table.
func NewGate(logger *zap.Logger) *Gate {
	return &Gate{rules: defaultRules, logger: logger.Named("prereq")}
}

// Requirements lists the preconditions declared for capabilityID.
func (g *Gate) Requirements(capabilityID string) []Requirement {
	var out []Requirement
	for _, r := range g.rules {
		if capability.MatchesPrefix(capabilityID, r.prefix) {
			out = append(out, r.requirements...)
		}
	}
	return out
}

// Check evaluates the hard preconditions of capabilityID against env.
func (g *Gate) Check(capabilityID string, env schemas.Environment) schemas.PrerequisiteVerdict {
	v, _ := g.evaluate(capabilityID, nil, env)
	return v
}

// CheckInvocation is Check plus the soft target check, which needs the
// invocation's "app_name" parameter.
func (g *Gate) CheckInvocation(capabilityID string, params map[string]interface{}, env schemas.Environment) schemas.PrerequisiteVerdict {
	v, _ := g.evaluate(capabilityID, params, env)
	return v
}

// evaluate returns the verdict and, when unsatisfied, the requirement that failed.
func (g *Gate) evaluate(capabilityID string, params map[string]interface{}, env schemas.Environment) (schemas.PrerequisiteVerdict, Requirement) {
	verdict := schemas.PrerequisiteVerdict{Satisfied: true}
	for _, req := range g.Requirements(capabilityID) {
		switch req {
		case RequireUnlockedScreen:
			if env.ScreenLockedHeuristic {
				return schemas.PrerequisiteVerdict{
					Reason:     "the screen appears to be locked",
					Suggestion: "Unlock the screen, then try again.",
				}, req
			}
		case RequireFocus:
			if !env.HasFocusedWindow() {
				return schemas.PrerequisiteVerdict{
					Reason:     "no application window has focus (nothing or only the desktop is active)",
					Suggestion: "Open or focus an application first, then try again.",
					Resolvable: true,
				}, req
			}
		case RequireTargetPresent:
			name := appName(params)
			if name == "" || targetPresent(name, env) {
				continue
			}
			// Soft: the capability's own execution reports the precise error.
			verdict.Reason = fmt.Sprintf("no running application appears to match %q", name)
			verdict.Suggestion = fmt.Sprintf("Open %s first if it is not running.", name)
			verdict.Resolvable = true
		}
	}
	return verdict, ""
}

// Step is one resolved action in a chain.
type Step struct {
	Action     schemas.Action
	Capability string
	Parameters map[string]interface{}
}

// ValidateChain checks every step of a multi-action plan. A missing-focus
// finding is suppressed only when the step has a direct dependency edge to a
// step that establishes focus; earlier steps without an edge never waive a
// prerequisite.
func (g *Gate) ValidateChain(steps []Step, env schemas.Environment) []schemas.UnsatisfiedPrerequisite {
	byID := make(map[string]Step, len(steps))
	for _, s := range steps {
		byID[s.Action.ID] = s
	}

	var out []schemas.UnsatisfiedPrerequisite
	prevID := ""
	for _, s := range steps {
		deps := s.Action.Dependencies(prevID)
		prevID = s.Action.ID
		if s.Capability == "" {
			continue
		}

		verdict, failed := g.evaluate(s.Capability, s.Parameters, env)
		if verdict.Satisfied {
			continue
		}
		if failed == RequireFocus && g.dependsOnFocus(deps, byID) {
			g.logger.Debug("Focus requirement satisfied by dependency",
				zap.String("action_id", s.Action.ID), zap.Strings("depends_on", deps))
			continue
		}
		out = append(out, schemas.UnsatisfiedPrerequisite{
			ActionID:     s.Action.ID,
			CapabilityID: s.Capability,
			Reason:       verdict.Reason,
			Suggestion:   verdict.Suggestion,
			Resolvable:   verdict.Resolvable,
		})
	}
	return out
}

func (g *Gate) dependsOnFocus(deps []string, byID map[string]Step) bool {
	for _, id := range deps {
		dep, ok := byID[id]
		if !ok {
			continue
		}
		for _, c := range focusEstablishing {
			if dep.Capability == c {
				return true
			}
		}
	}
	return false
}

func appName(params map[string]interface{}) string {
	if params == nil {
		return ""
	}
	name, _ := params["app_name"].(string)
	return strings.TrimSpace(name)
}

func targetPresent(name string, env schemas.Environment) bool {
	if env.ProcessRunning(name) {
		return true
	}
	want := schemas.NormalizeAppName(name)
	return strings.Contains(schemas.NormalizeAppName(env.ActiveWindow.Process), want) ||
		strings.Contains(strings.ToLower(env.ActiveWindow.Title), want)
}
