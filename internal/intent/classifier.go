package intent

import (
	"context"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deskmind/api/schemas"
	"github.com/xkilldash9x/deskmind/internal/llmutil"
	"github.com/xkilldash9x/deskmind/internal/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const systemPrompt = `You classify one desktop automation action into exactly one intent category.

Categories are separated by EFFECT, not by vocabulary:
- app_lifecycle: start or terminate an application process ("open notepad", "quit spotify").
- window_management: change a window's state or geometry without ending the process ("close this window", "minimize chrome", "focus word").
- system_query: read system state without changing it ("what is the volume", "how much battery is left").
- system_control: change system state ("set the volume to 30", "mute", "lock the screen").
- screen_capture: produce an image of the display ("take a screenshot").
- screen_perception: read or understand what is currently on screen ("what does this dialog say").
- input_injection: synthesize keyboard or mouse input ("type hello", "press enter", "click the button").
- file_operation: read, write, append, delete or list files.
- browser_control: open URLs, search the web, manage tabs.
- office_document: create, open or edit office documents.
- clipboard: read or write the clipboard.
- memory_recall: recall what the user did or saw earlier.
- information_query: answer a general question without touching the desktop.
- unknown: none of the above.

"close this window" is window_management, not app_lifecycle. "what is the volume" is system_query while "set the volume" is system_control.

Respond with a single JSON object:
{"category": "<category>", "confidence": 0.0, "reasoning": "<one sentence>"}
confidence is your honest probability in [0,1] that the category is correct.`

type classifierOutput struct {
	Category   schemas.IntentCategory `json:"category"`
	Confidence float64                `json:"confidence"`
	Reasoning  string                 `json:"reasoning"`
}

// outputSchema builds the response schema with the closed category set as an enum.
func outputSchema() string {
	cats := schemas.AllCategories()
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = string(c)
	}
	enum, _ := json.Marshal(names)
	return fmt.Sprintf(`{
  "type": "object",
  "required": ["category", "confidence"],
  "properties": {
    "category": {"type": "string", "enum": %s},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "reasoning": {"type": "string"}
  }
}`, enum)
}

// Classifier assigns an intent category to a single action description.
type Classifier struct {
	llm       schemas.LLMClient
	timeout   time.Duration
	schema    string
	validator *llmutil.Validator
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewClassifier creates a classifier. metrics may be nil.
func NewClassifier(logger *zap.Logger, llm schemas.LLMClient, timeout time.Duration, metrics *observability.Metrics) *Classifier {
	schema := outputSchema()
	return &Classifier{
		llm:       llm,
		timeout:   timeout,
		schema:    schema,
		validator: llmutil.MustValidator("classification", schema),
		metrics:   metrics,
		logger:    logger.Named("classifier"),
	}
}

// Classify returns the category for description. It never fails; inference or
// validation problems yield the unknown category with zero confidence and the
// cause in Reasoning.
func (c *Classifier) Classify(ctx context.Context, description string) schemas.ClassificationResult {
	description = strings.TrimSpace(description)
	if description == "" {
		return fallback("empty action description")
	}

	apiCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now()
	response, err := c.llm.Generate(apiCtx, schemas.GenerationRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   "Action: " + description,
		Tier:         schemas.TierFast,
		Options: schemas.GenerationOptions{
			ForceJSONFormat: true,
			Temperature:     0.0,
			ResponseSchema:  c.schema,
		},
	})
	c.metrics.ObserveInference("classifier", started)
	if err != nil {
		c.logger.Warn("Classification inference failed, defaulting to unknown", zap.Error(err))
		c.metrics.ObserveFallback("classifier", string(schemas.FailureInference))
		return fallback(fmt.Sprintf("classification failed: %v", err))
	}

	out, err := llmutil.DecodeStrict[classifierOutput](response, c.validator)
	if err != nil {
		c.logger.Warn("Classification output rejected, defaulting to unknown", zap.Error(err))
		c.metrics.ObserveFallback("classifier", string(schemas.FailureValidation))
		return fallback(fmt.Sprintf("classification output invalid: %v", err))
	}

	result := schemas.ClassificationResult{
		Category:   out.Category,
		Confidence: out.Confidence,
		Reasoning:  strings.TrimSpace(out.Reasoning),
	}
	c.logger.Debug("Classified action",
		zap.String("category", string(result.Category)),
		zap.Float64("confidence", result.Confidence))
	return result
}

func fallback(reason string) schemas.ClassificationResult {
	return schemas.ClassificationResult{
		Category:   schemas.CategoryUnknown,
		Confidence: 0.0,
		Reasoning:  reason,
	}
}
