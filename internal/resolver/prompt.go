package resolver

import (
	"fmt"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/deskmind/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const matchSystemPrompt = `You map one desktop automation action to exactly one capability from a provided list.

Rules:
- Choose only from the capability ids listed under "Capabilities". Never invent an id.
- Fill "parameters" so they satisfy the chosen capability's parameter_schema. Use values stated or clearly implied by the action; do not guess file paths or names that are not mentioned.
- "confidence" is your honest estimate in [0,1] that the chosen capability, with these parameters, does what the action asks.
- If no listed capability can do it, return "tool": "" with confidence 0 and explain in "reason".

Respond with a single JSON object:
{"tool": "<capability id or empty>", "parameters": {...}, "confidence": 0.0, "reason": "<short explanation>"}`

const matchOutputSchema = `{
  "type": "object",
  "required": ["tool", "confidence"],
  "properties": {
    "tool": {"type": ["string", "null"]},
    "parameters": {"type": ["object", "null"]},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "reason": {"type": "string"}
  }
}`

type matchOutput struct {
	Tool       *string                `json:"tool"`
	Parameters map[string]interface{} `json:"parameters"`
	Confidence float64                `json:"confidence"`
	Reason     string                 `json:"reason"`
}

type promptCapability struct {
	ID              string              `json:"id"`
	Description     string              `json:"description"`
	ParameterSchema jsoniter.RawMessage `json:"parameter_schema,omitempty"`
}

func buildMatchPrompt(description string, category schemas.IntentCategory, env schemas.Environment, candidates []schemas.Capability) (string, error) {
	list := make([]promptCapability, len(candidates))
	for i, c := range candidates {
		list[i] = promptCapability{ID: c.ID, Description: c.Description, ParameterSchema: jsoniter.RawMessage(c.ParameterSchema)}
	}
	encoded, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode capability list: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Action: %s\n", description)
	fmt.Fprintf(&b, "Intent category: %s\n", category)
	b.WriteString("Environment:\n")
	b.WriteString(describeEnvironment(env))
	b.WriteString("\nCapabilities:\n")
	b.Write(encoded)
	return b.String(), nil
}

func describeEnvironment(env schemas.Environment) string {
	var b strings.Builder
	if env.HasFocusedWindow() {
		fmt.Fprintf(&b, "- focused window: %q (%s)\n", env.ActiveWindow.Title, env.ActiveWindow.Process)
	} else {
		b.WriteString("- focused window: none\n")
	}
	if len(env.RunningProcesses) > 0 {
		fmt.Fprintf(&b, "- running: %s\n", strings.Join(env.RunningProcesses, ", "))
	}
	if env.ScreenLockedHeuristic {
		b.WriteString("- screen appears locked\n")
	}
	return b.String()
}

// fingerprint condenses the parts of env that influence resolution.
func fingerprint(env schemas.Environment) string {
	procs := append([]string(nil), env.RunningProcesses...)
	sort.Strings(procs)
	return fmt.Sprintf("%d|%s|%s|%t|%s",
		env.ActiveWindow.ID, env.ActiveWindow.Title, env.ActiveWindow.Process,
		env.ScreenLockedHeuristic, strings.Join(procs, ","))
}
