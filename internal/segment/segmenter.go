package segment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/deskmind/api/schemas"
	"github.com/xkilldash9x/deskmind/internal/llmutil"
	"github.com/xkilldash9x/deskmind/internal/observability"
)

// ErrForbiddenField is returned when dependency output carries execution
// details the decomposition step is not allowed to decide.
var ErrForbiddenField = errors.New("forbidden field in segmentation output")

// forbiddenFields may not appear as keys anywhere in dependency output.
var forbiddenFields = map[string]bool{
	"tool":       true,
	"tool_name":  true,
	"capability": true,
	"parameters": true,
	"params":     true,
	"confidence": true,
	"category":   true,
	"intent":     true,
}

// Segmenter splits raw request text into ordered actions with dependency edges.
type Segmenter struct {
	llm          schemas.LLMClient
	timeout      time.Duration
	segmentation *llmutil.Validator
	dependencies *llmutil.Validator
	metrics      *observability.Metrics
	logger       *zap.Logger
}

// NewSegmenter creates a segmenter. metrics may be nil.
func NewSegmenter(logger *zap.Logger, llm schemas.LLMClient, timeout time.Duration, metrics *observability.Metrics) *Segmenter {
	return &Segmenter{
		llm:          llm,
		timeout:      timeout,
		segmentation: llmutil.MustValidator("segmentation", segmentOutputSchema),
		dependencies: llmutil.MustValidator("dependencies", dependencyOutputSchema),
		metrics:      metrics,
		logger:       logger.Named("segmenter"),
	}
}

// Segment never fails. Any inference or validation problem degrades to a
// single action holding text verbatim, with Fallback set and Error annotated.
func (s *Segmenter) Segment(ctx context.Context, text string) schemas.SegmentationResult {
	if strings.TrimSpace(text) == "" {
		return passthrough(text, "empty request")
	}

	actions, err := s.split(ctx, text)
	if err != nil {
		return s.degrade(text, err)
	}
	if len(actions) == 1 {
		return schemas.SegmentationResult{Multi: false, Actions: actions}
	}

	if err := s.decompose(ctx, actions); err != nil {
		return s.degrade(text, err)
	}

	s.logger.Debug("Segmented request", zap.Int("actions", len(actions)))
	return schemas.SegmentationResult{Multi: true, Actions: actions}
}

// split runs the first tier: how many actions, and what each one is.
func (s *Segmenter) split(ctx context.Context, text string) ([]schemas.Action, error) {
	response, err := s.generate(ctx, segmentSystemPrompt, "Request: "+text, segmentOutputSchema)
	if err != nil {
		return nil, err
	}
	out, err := llmutil.DecodeStrict[segmentOutput](response, s.segmentation)
	if err != nil {
		return nil, err
	}

	actions := make([]schemas.Action, 0, len(out.Actions))
	for _, a := range out.Actions {
		desc := strings.TrimSpace(a.Description)
		if desc == "" {
			continue
		}
		actions = append(actions, schemas.Action{
			ID:          actionID(len(actions)),
			Description: desc,
			IsOptional:  a.IsOptional,
		})
	}
	if len(actions) == 0 {
		return nil, fmt.Errorf("%w: no usable action descriptions", llmutil.ErrSchemaViolation)
	}
	if len(actions) > 1 && !out.Multi {
		s.logger.Debug("Segmentation flag disagreed with entry count, forcing multi-action", zap.Int("actions", len(actions)))
	}
	return actions, nil
}

// decompose runs the second tier and attaches dependency edges in place.
// Edges to unknown, later or self ids are dropped.
func (s *Segmenter) decompose(ctx context.Context, actions []schemas.Action) error {
	response, err := s.generate(ctx, dependencySystemPrompt, buildDependencyPrompt(actions), dependencyOutputSchema)
	if err != nil {
		return err
	}

	generic, err := llmutil.ParseJSONObject(response)
	if err != nil {
		return fmt.Errorf("%w: %v", llmutil.ErrMalformedOutput, err)
	}
	if field, found := findForbidden(generic); found {
		return fmt.Errorf("%w: %q", ErrForbiddenField, field)
	}
	out, err := llmutil.DecodeStrict[dependencyOutput](response, s.dependencies)
	if err != nil {
		return err
	}

	position := make(map[string]int, len(actions))
	for i, a := range actions {
		position[a.ID] = i
	}
	edges := make(map[int]map[string]bool)
	for _, d := range out.Dependencies {
		target, ok := position[strings.TrimSpace(d.Action)]
		if !ok {
			s.logger.Debug("Dropping dependency for unknown action", zap.String("action", d.Action))
			continue
		}
		for _, ref := range d.DependsOn {
			ref = strings.TrimSpace(ref)
			src, ok := position[ref]
			if !ok || src >= target {
				s.logger.Debug("Dropping dependency edge", zap.String("action", d.Action), zap.String("depends_on", ref))
				continue
			}
			if edges[target] == nil {
				edges[target] = make(map[string]bool)
			}
			edges[target][ref] = true
		}
	}

	for i := range actions {
		deps := edges[i]
		if len(deps) == 0 {
			continue
		}
		ids := make([]string, 0, len(deps))
		for id := range deps {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(a, b int) bool { return position[ids[a]] < position[ids[b]] })
		actions[i].DependsOn = ids
		actions[i].DependsOnPrevious = deps[actions[i-1].ID]
	}
	return nil
}

func (s *Segmenter) generate(ctx context.Context, system, user, schema string) (string, error) {
	apiCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	response, err := s.llm.Generate(apiCtx, schemas.GenerationRequest{
		SystemPrompt: system,
		UserPrompt:   user,
		Tier:         schemas.TierFast,
		Options: schemas.GenerationOptions{
			ForceJSONFormat: true,
			Temperature:     0.0,
			ResponseSchema:  schema,
		},
	})
	s.metrics.ObserveInference("segmenter", started)
	if err != nil {
		return "", fmt.Errorf("llm generation failed: %w", err)
	}
	return response, nil
}

func (s *Segmenter) degrade(text string, err error) schemas.SegmentationResult {
	kind := schemas.FailureInference
	if errors.Is(err, ErrForbiddenField) || errors.Is(err, llmutil.ErrSchemaViolation) || errors.Is(err, llmutil.ErrMalformedOutput) {
		kind = schemas.FailureValidation
	}
	s.logger.Warn("Segmentation failed, passing request through as a single action",
		zap.String("failure", string(kind)), zap.Error(err))
	s.metrics.ObserveFallback("segmenter", string(kind))
	return passthrough(text, fmt.Sprintf("%s: %v", kind, err))
}

func passthrough(text, annotation string) schemas.SegmentationResult {
	return schemas.SegmentationResult{
		Multi:    false,
		Actions:  []schemas.Action{{ID: actionID(0), Description: text}},
		Fallback: true,
		Error:    annotation,
	}
}

// findForbidden walks decoded JSON and reports the first forbidden key.
func findForbidden(v interface{}) (string, bool) {
	switch node := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(node))
		for k := range node {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if forbiddenFields[strings.ToLower(k)] {
				return k, true
			}
			if field, found := findForbidden(node[k]); found {
				return field, true
			}
		}
	case []interface{}:
		for _, item := range node {
			if field, found := findForbidden(item); found {
				return field, true
			}
		}
	}
	return "", false
}

func actionID(index int) string {
	return fmt.Sprintf("a%d", index+1)
}
