package schemas

// Route identifies the control-flow branch the pipeline took for an action.
type Route string

const (
	RouteDirect   Route = "direct"
	RouteFallback Route = "fallback"
)

// FailureKind is the closed taxonomy used to annotate degraded outcomes.
type FailureKind string

const (
	FailureInference    FailureKind = "inference_failure"
	FailureValidation   FailureKind = "validation_failure"
	FailureAmbiguity    FailureKind = "ambiguity"
	FailurePrerequisite FailureKind = "prerequisite_violation"
	FailureExecution    FailureKind = "execution_failure"
)

// ActionDecision is the pipeline's verdict for one action.
type ActionDecision struct {
	Action         Action               `json:"action"`
	Route          Route                `json:"route"`
	Classification ClassificationResult `json:"classification"`
	Resolution     *ResolutionResult    `json:"resolution,omitempty"` // Set on the direct route.
	Fallback       *FallbackPlan        `json:"fallback,omitempty"`   // Set on the fallback route.
	// TargetWindow is the window an app-targeting action resolved to, if any.
	TargetWindow *WindowSnapshot `json:"target_window,omitempty"`
}

// Ambiguity is a first-class terminal outcome: more than one candidate matched.
type Ambiguity struct {
	ActionID   string           `json:"action_id"`
	Query      string           `json:"query"`
	Candidates []WindowSnapshot `json:"candidates"`
}

// Decision is the complete output for one request, handed to the executor and
// response layer.
type Decision struct {
	RequestID   string                    `json:"request_id"`
	Input       string                    `json:"input"`
	Actions     []ActionDecision          `json:"actions"`
	Refused     bool                      `json:"refused"`
	Reasons     []UnsatisfiedPrerequisite `json:"reasons,omitempty"`
	Ambiguities []Ambiguity               `json:"ambiguities,omitempty"`
}

// ResponseKind is the closed set of categories allowed across the output boundary.
type ResponseKind string

const (
	ResponseMessage       ResponseKind = "message"
	ResponseClarification ResponseKind = "clarification"
	ResponseError         ResponseKind = "error"
)

// Response is the curated, user-facing rendering of a Decision.
type Response struct {
	Kind    ResponseKind `json:"kind"`
	Text    string       `json:"text"`
	Options []string     `json:"options,omitempty"`
}
