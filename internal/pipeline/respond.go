package pipeline

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/deskmind/api/schemas"
)

const (
	emptyRequestText = "Tell me what you would like me to do."
	noPlanText       = "I couldn't find a way to do that with the tools I have."
)

// Respond curates a Decision into one of the closed response kinds. Only
// user-facing text crosses this boundary: no error strings, model output or
// capability identifiers.
func Respond(d schemas.Decision) schemas.Response {
	if len(d.Actions) == 0 {
		return schemas.Response{Kind: schemas.ResponseError, Text: emptyRequestText}
	}

	if len(d.Ambiguities) > 0 {
		a := d.Ambiguities[0]
		options := make([]string, len(a.Candidates))
		for i, c := range a.Candidates {
			options[i] = describeWindow(c)
		}
		return schemas.Response{
			Kind:    schemas.ResponseClarification,
			Text:    fmt.Sprintf("More than one window matches %q. Which one did you mean?", a.Query),
			Options: options,
		}
	}

	if d.Refused {
		return refusal(d.Reasons)
	}

	var planned []string
	uncertain := false
	for _, ad := range d.Actions {
		switch {
		case ad.Resolution != nil && ad.Resolution.HasTool():
			planned = append(planned, ad.Action.Description)
		case ad.Fallback != nil && len(ad.Fallback.Steps) > 0:
			planned = append(planned, ad.Action.Description)
			uncertain = true
		default:
			if !ad.Action.IsOptional {
				return schemas.Response{Kind: schemas.ResponseError, Text: cannotDo(ad.Action.Description)}
			}
		}
	}
	if len(planned) == 0 {
		return schemas.Response{Kind: schemas.ResponseError, Text: noPlanText}
	}

	var b strings.Builder
	if uncertain {
		b.WriteString("I'm not completely sure, but here is what I'll try: ")
	} else {
		b.WriteString("Okay: ")
	}
	b.WriteString(strings.Join(planned, ", then "))
	b.WriteString(".")
	return schemas.Response{Kind: schemas.ResponseMessage, Text: b.String()}
}

// refusal turns prerequisite gaps into a response. Gaps another action could
// close ask the user to act; the rest are reported as errors.
func refusal(reasons []schemas.UnsatisfiedPrerequisite) schemas.Response {
	kind := schemas.ResponseClarification
	seen := make(map[string]bool, len(reasons))
	var lines, suggestions []string
	for _, r := range reasons {
		if !r.Resolvable {
			kind = schemas.ResponseError
		}
		if !seen[r.Reason] {
			seen[r.Reason] = true
			lines = append(lines, r.Reason)
		}
		if r.Suggestion != "" && !seen[r.Suggestion] {
			seen[r.Suggestion] = true
			suggestions = append(suggestions, r.Suggestion)
		}
	}
	text := fmt.Sprintf("I can't do that right now: %s.", strings.Join(lines, "; "))
	if len(suggestions) > 0 {
		text += " " + strings.Join(suggestions, " ")
	}
	return schemas.Response{Kind: kind, Text: text, Options: suggestions}
}

func cannotDo(description string) string {
	return fmt.Sprintf("I couldn't find a way to %q with the tools I have.", description)
}

func describeWindow(w schemas.WindowSnapshot) string {
	title := strings.TrimSpace(w.Title)
	if title == "" {
		title = "untitled window"
	}
	if w.ProcessName == "" {
		return title
	}
	return fmt.Sprintf("%s (%s)", title, w.ProcessName)
}
