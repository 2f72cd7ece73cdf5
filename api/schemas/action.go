package schemas

// Action is one atomic unit of user intent extracted from raw text. It is
// created by the segmenter and never mutated afterwards; pipeline results are
// attached alongside it, not onto it.
type Action struct {
	ID          string `json:"id"`          // Ordinal identifier within the request (a1, a2, ...).
	Description string `json:"description"` // Free-text goal in natural language.
	// DependsOnPrevious marks a logical dependency on the immediately preceding action.
	DependsOnPrevious bool `json:"depends_on_previous,omitempty"`
	// DependsOn lists the ids of earlier actions whose completion is logically required.
	DependsOn  []string `json:"depends_on,omitempty"`
	IsOptional bool     `json:"is_optional,omitempty"`
}

// Dependencies returns the full set of action ids this action depends on,
// folding DependsOnPrevious into an explicit edge when prev is known.
func (a Action) Dependencies(prev string) []string {
	deps := make([]string, 0, len(a.DependsOn)+1)
	seen := make(map[string]bool, len(a.DependsOn)+1)
	if a.DependsOnPrevious && prev != "" {
		deps = append(deps, prev)
		seen[prev] = true
	}
	for _, id := range a.DependsOn {
		if !seen[id] {
			seen[id] = true
			deps = append(deps, id)
		}
	}
	return deps
}

// SegmentationResult is the output of the action segmenter.
type SegmentationResult struct {
	Multi   bool     `json:"multi"`
	Actions []Action `json:"actions"`
	// Fallback is set when the segmenter degraded to a verbatim passthrough.
	Fallback bool `json:"fallback,omitempty"`
	// Error annotates why the fallback happened. It is diagnostic only.
	Error string `json:"error,omitempty"`
}
