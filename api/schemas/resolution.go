package schemas

// ResolutionStage identifies which resolver stage produced a result.
type ResolutionStage int

const (
	StageDomain   ResolutionStage = 1 // Search restricted to the category's preferred domains.
	StageRegistry ResolutionStage = 2 // Search across the whole registry.
)

// ResolutionResult maps an action to a concrete capability invocation. An empty
// Tool means no capability can satisfy the action, which is distinct from a
// low-confidence match.
type ResolutionResult struct {
	Tool        string                 `json:"tool,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
	Confidence  float64                `json:"confidence"`
	DomainMatch bool                   `json:"domain_match"`
	Stage       ResolutionStage        `json:"stage"`
	Reason      string                 `json:"reason,omitempty"`
}

// HasTool reports whether the resolution names a capability.
func (r ResolutionResult) HasTool() bool { return r.Tool != "" }

// ProposedStep is one capability invocation proposed by the open-ended reasoner.
type ProposedStep struct {
	Tool       string                 `json:"tool"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// FallbackPlan is the open-ended reasoner's output.
type FallbackPlan struct {
	Reasoning  string         `json:"reasoning"`
	Steps      []ProposedStep `json:"steps"`
	Confidence float64        `json:"confidence"`
	Dropped    []string       `json:"dropped,omitempty"` // Proposed capabilities absent from the registry.
}
