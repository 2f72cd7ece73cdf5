package pipeline

import (
	"fmt"

	"github.com/xkilldash9x/deskmind/api/schemas"
	"github.com/xkilldash9x/deskmind/internal/prereq"
)

// chainSteps flattens routed actions into gate steps. A fallback plan's steps
// get ids a2.1, a2.2, ... and each depends on every earlier step of the same
// plan, since the plan fixes their order. Edges that point at an action are
// widened to all of that action's steps.
func chainSteps(actions []schemas.ActionDecision) []prereq.Step {
	stepIDs := make(map[string][]string, len(actions))
	var steps []prereq.Step
	prev := ""

	for _, ad := range actions {
		var deps []string
		for _, dep := range ad.Action.Dependencies(prev) {
			if ids, ok := stepIDs[dep]; ok {
				deps = append(deps, ids...)
			}
		}
		prev = ad.Action.ID

		if ad.Fallback == nil || len(ad.Fallback.Steps) == 0 {
			step := prereq.Step{Action: schemas.Action{ID: ad.Action.ID, Description: ad.Action.Description, DependsOn: deps}}
			if ad.Resolution != nil {
				step.Capability = ad.Resolution.Tool
				step.Parameters = ad.Resolution.Parameters
			}
			steps = append(steps, step)
			stepIDs[ad.Action.ID] = []string{ad.Action.ID}
			continue
		}

		var ids []string
		for i, ps := range ad.Fallback.Steps {
			id := fmt.Sprintf("%s.%d", ad.Action.ID, i+1)
			stepDeps := append(append([]string(nil), deps...), ids...)
			steps = append(steps, prereq.Step{
				Action:     schemas.Action{ID: id, Description: ad.Action.Description, DependsOn: stepDeps},
				Capability: ps.Tool,
				Parameters: ps.Parameters,
			})
			ids = append(ids, id)
		}
		stepIDs[ad.Action.ID] = ids
	}
	return steps
}
