package pipeline

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/deskmind/api/schemas"
	"github.com/xkilldash9x/deskmind/internal/capability"
	"github.com/xkilldash9x/deskmind/internal/config"
	"github.com/xkilldash9x/deskmind/internal/events"
	"github.com/xkilldash9x/deskmind/internal/identity"
	"github.com/xkilldash9x/deskmind/internal/intent"
	"github.com/xkilldash9x/deskmind/internal/observability"
	"github.com/xkilldash9x/deskmind/internal/prereq"
	"github.com/xkilldash9x/deskmind/internal/resolver"
	"github.com/xkilldash9x/deskmind/internal/router"
	"github.com/xkilldash9x/deskmind/internal/segment"
)

// NewFromConfig builds the standard component set on top of llm and the
// capability registry. windows, bus and metrics may be nil.
func NewFromConfig(logger *zap.Logger, cfg config.PipelineConfig, llm schemas.LLMClient, caps *capability.Registry, handles *identity.Registry, windows schemas.WindowSource, bus *events.Bus, metrics *observability.Metrics) (*Pipeline, error) {
	res, err := resolver.New(logger, llm, caps, resolver.OptionsFromConfig(cfg), metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolver: %w", err)
	}
	return New(logger, Components{
		Segmenter:  segment.NewSegmenter(logger, llm, cfg.InferenceTimeout, metrics),
		Classifier: intent.NewClassifier(logger, llm, cfg.InferenceTimeout, metrics),
		Resolver:   res,
		Reasoner:   router.NewReasoner(logger, llm, caps, cfg.FallbackConfidenceCap, cfg.InferenceTimeout, metrics),
		Gate:       prereq.NewGate(logger),
		Handles:    handles,
		Windows:    windows,
		Bus:        bus,
		Metrics:    metrics,
	}, cfg)
}
