package router

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deskmind/api/schemas"
	"github.com/xkilldash9x/deskmind/internal/llmutil"
	"github.com/xkilldash9x/deskmind/internal/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const reasonerSystemPrompt = `You plan how a desktop automation agent should carry out a request it could not route confidently.

Rules:
- Use only capability ids from the "Capabilities" list. Never invent one.
- Propose the shortest ordered sequence of steps that achieves the request. Steps run in the order given.
- Fill "parameters" from what the request states or clearly implies.
- If nothing in the list can help, return an empty "steps" list and explain why in "reasoning".
- "confidence" is your honest estimate in [0,1] that the plan does what the user wants.

Respond with a single JSON object:
{"reasoning": "<short explanation>", "steps": [{"tool": "<capability id>", "parameters": {...}}], "confidence": 0.0}`

const reasonerOutputSchema = `{
  "type": "object",
  "required": ["steps", "confidence"],
  "properties": {
    "reasoning": {"type": "string"},
    "steps": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["tool"],
        "properties": {
          "tool": {"type": "string"},
          "parameters": {"type": ["object", "null"]}
        }
      }
    },
    "confidence": {"type": "number", "minimum": 0, "maximum": 1}
  }
}`

// droppedStepFactor scales the confidence cap further when any proposed
// capability had to be discarded.
const droppedStepFactor = 0.5

type reasonerOutput struct {
	Reasoning  string                 `json:"reasoning"`
	Steps      []schemas.ProposedStep `json:"steps"`
	Confidence float64                `json:"confidence"`
}

type promptCapability struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// Reasoner is the open-ended fallback path. It asks the model for a
// capability sequence and keeps only steps the registry knows about.
type Reasoner struct {
	llm           schemas.LLMClient
	registry      schemas.CapabilityRegistry
	confidenceCap float64
	timeout       time.Duration
	validator     *llmutil.Validator
	metrics       *observability.Metrics
	logger        *zap.Logger
}

// NewReasoner creates a reasoner whose plans never report more than
// confidenceCap. metrics may be nil.
func NewReasoner(logger *zap.Logger, llm schemas.LLMClient, registry schemas.CapabilityRegistry, confidenceCap float64, timeout time.Duration, metrics *observability.Metrics) *Reasoner {
	return &Reasoner{
		llm:           llm,
		registry:      registry,
		confidenceCap: confidenceCap,
		timeout:       timeout,
		validator:     llmutil.MustValidator("fallback_plan", reasonerOutputSchema),
		metrics:       metrics,
		logger:        logger.Named("reasoner"),
	}
}

// Reason proposes a plan for description. It never fails; an inference or
// validation problem yields an empty plan with zero confidence.
func (r *Reasoner) Reason(ctx context.Context, description string, cls schemas.ClassificationResult, env schemas.Environment) schemas.FallbackPlan {
	prompt, err := r.buildPrompt(description, cls, env)
	if err != nil {
		r.logger.Error("Failed to build reasoning prompt", zap.Error(err))
		return emptyPlan("no plan could be produced")
	}

	apiCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	started := time.Now()
	response, err := r.llm.Generate(apiCtx, schemas.GenerationRequest{
		SystemPrompt: reasonerSystemPrompt,
		UserPrompt:   prompt,
		Tier:         schemas.TierPowerful,
		Options: schemas.GenerationOptions{
			ForceJSONFormat: true,
			Temperature:     0.2,
			ResponseSchema:  reasonerOutputSchema,
		},
	})
	r.metrics.ObserveInference("reasoner", started)
	if err != nil {
		r.logger.Warn("Open-ended reasoning failed", zap.Error(err))
		r.metrics.ObserveFallback("reasoner", string(schemas.FailureInference))
		return emptyPlan("no plan could be produced")
	}

	out, err := llmutil.DecodeStrict[reasonerOutput](response, r.validator)
	if err != nil {
		r.logger.Warn("Open-ended reasoning output rejected", zap.Error(err))
		r.metrics.ObserveFallback("reasoner", string(schemas.FailureValidation))
		return emptyPlan("no plan could be produced")
	}

	plan := schemas.FallbackPlan{
		Reasoning: strings.TrimSpace(out.Reasoning),
		Steps:     make([]schemas.ProposedStep, 0, len(out.Steps)),
	}
	for _, step := range out.Steps {
		tool := strings.TrimSpace(step.Tool)
		if !r.registry.Has(tool) {
			plan.Dropped = append(plan.Dropped, tool)
			continue
		}
		plan.Steps = append(plan.Steps, schemas.ProposedStep{Tool: tool, Parameters: step.Parameters})
	}

	limit := r.confidenceCap
	if len(plan.Dropped) > 0 {
		limit *= droppedStepFactor
		r.logger.Warn("Dropped unregistered capabilities from plan", zap.Strings("dropped", plan.Dropped))
		r.metrics.ObserveFallback("reasoner", string(schemas.FailureValidation))
	}
	plan.Confidence = math.Min(out.Confidence, limit)
	if len(plan.Steps) == 0 {
		plan.Confidence = 0
	}

	r.logger.Debug("Produced fallback plan",
		zap.Int("steps", len(plan.Steps)),
		zap.Int("dropped", len(plan.Dropped)),
		zap.Float64("confidence", plan.Confidence))
	return plan
}

func (r *Reasoner) buildPrompt(description string, cls schemas.ClassificationResult, env schemas.Environment) (string, error) {
	caps := r.registry.ListAll()
	list := make([]promptCapability, len(caps))
	for i, c := range caps {
		list[i] = promptCapability{ID: c.ID, Description: c.Description}
	}
	encoded, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode capability list: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Request: %s\n", description)
	fmt.Fprintf(&b, "Tentative category: %s (confidence %.2f)\n", cls.Category, cls.Confidence)
	if env.HasFocusedWindow() {
		fmt.Fprintf(&b, "Focused window: %q (%s)\n", env.ActiveWindow.Title, env.ActiveWindow.Process)
	} else {
		b.WriteString("Focused window: none\n")
	}
	if len(env.RunningProcesses) > 0 {
		fmt.Fprintf(&b, "Running: %s\n", strings.Join(env.RunningProcesses, ", "))
	}
	b.WriteString("Capabilities:\n")
	b.Write(encoded)
	return b.String(), nil
}

func emptyPlan(reason string) schemas.FallbackPlan {
	return schemas.FallbackPlan{Reasoning: reason, Steps: []schemas.ProposedStep{}}
}
