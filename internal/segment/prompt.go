package segment

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/deskmind/api/schemas"
)

const segmentSystemPrompt = `You split a desktop automation request into the executable actions it contains.

Rules:
- The request is multi-action whenever steps must happen in sequence or are enumerated, even inside one sentence ("open notepad and type hello", "mute, then lock the screen").
- The request is single-action when it maps to one atomic operation. A single file read, write, append, create, delete or list is ALWAYS one action, however many clauses describe it ("write hello world into notes.txt" is one action).
- Describe every action as a short natural-language goal. Do not name tools, functions or parameters.
- Mark an action optional only when the user clearly says it is.

Respond with a single JSON object:
{"multi": true, "actions": [{"description": "<goal>", "is_optional": false}]}`

const segmentOutputSchema = `{
  "type": "object",
  "required": ["multi", "actions"],
  "properties": {
    "multi": {"type": "boolean"},
    "actions": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["description"],
        "properties": {
          "description": {"type": "string", "minLength": 1},
          "is_optional": {"type": "boolean"}
        }
      }
    }
  }
}`

type segmentOutput struct {
	Multi   bool `json:"multi"`
	Actions []struct {
		Description string `json:"description"`
		IsOptional  bool   `json:"is_optional"`
	} `json:"actions"`
}

const dependencySystemPrompt = `You are given an ordered list of actions from one user request. Decide which actions logically depend on earlier ones.

Rules:
- Assert "B depends on A" ONLY when B is impossible without A having completed first. Typing into an application requires it to be opened or focused first; saving a document requires it to exist.
- Sequential wording alone ("then", "after that") is NOT a dependency. "open chrome" and "take a screenshot" are independent.
- An action can only depend on actions listed before it.
- Reason only about the goals as written. Do not mention tools, parameters, categories or confidence values.

Respond with a single JSON object:
{"dependencies": [{"action": "a2", "depends_on": ["a1"]}]}
Use an empty list when nothing depends on anything.`

const dependencyOutputSchema = `{
  "type": "object",
  "required": ["dependencies"],
  "properties": {
    "dependencies": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["action", "depends_on"],
        "properties": {
          "action": {"type": "string"},
          "depends_on": {"type": "array", "items": {"type": "string"}}
        }
      }
    }
  }
}`

type dependencyOutput struct {
	Dependencies []struct {
		Action    string   `json:"action"`
		DependsOn []string `json:"depends_on"`
	} `json:"dependencies"`
}

func buildDependencyPrompt(actions []schemas.Action) string {
	var b strings.Builder
	b.WriteString("Actions:\n")
	for _, a := range actions {
		fmt.Fprintf(&b, "%s: %s\n", a.ID, a.Description)
	}
	return b.String()
}
