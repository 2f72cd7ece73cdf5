package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/deskmind/api/schemas"
	"github.com/xkilldash9x/deskmind/internal/config"
	"github.com/xkilldash9x/deskmind/internal/events"
	"github.com/xkilldash9x/deskmind/internal/identity"
	"github.com/xkilldash9x/deskmind/internal/observability"
	"github.com/xkilldash9x/deskmind/internal/prereq"
	"github.com/xkilldash9x/deskmind/internal/resolver"
	"github.com/xkilldash9x/deskmind/internal/router"
)

var newRequestID = uuid.NewString

// ActionSegmenter splits request text into actions.
type ActionSegmenter interface {
	Segment(ctx context.Context, text string) schemas.SegmentationResult
}

// IntentClassifier assigns a category to one action.
type IntentClassifier interface {
	Classify(ctx context.Context, description string) schemas.ClassificationResult
}

// ToolResolver maps an action to a capability invocation.
type ToolResolver interface {
	Resolve(ctx context.Context, description string, category schemas.IntentCategory, env schemas.Environment) schemas.ResolutionResult
}

// Components are the collaborators the pipeline composes. Windows, Bus and
// Metrics are optional.
type Components struct {
	Segmenter  ActionSegmenter
	Classifier IntentClassifier
	Resolver   ToolResolver
	Reasoner   router.FallbackReasoner
	Gate       *prereq.Gate
	Handles    *identity.Registry
	Windows    schemas.WindowSource
	Bus        *events.Bus
	Metrics    *observability.Metrics
}

// Request is one independent unit of work for ProcessBatch.
type Request struct {
	Text        string
	Environment schemas.Environment
}

// Pipeline turns request text into a Decision. Stages run strictly in order
// for a request; independent requests may be processed concurrently.
type Pipeline struct {
	segmenter     ActionSegmenter
	classifier    IntentClassifier
	router        *router.Router
	gate          *prereq.Gate
	handles       *identity.Registry
	windows       schemas.WindowSource
	bus           *events.Bus
	metrics       *observability.Metrics
	maxConcurrent int
	logger        *zap.Logger
}

// New wires the pipeline and registers the resolver as the direct handler
// for every category that has a preferred capability domain.
func New(logger *zap.Logger, c Components, cfg config.PipelineConfig) (*Pipeline, error) {
	if c.Segmenter == nil || c.Classifier == nil || c.Resolver == nil || c.Reasoner == nil {
		return nil, fmt.Errorf("pipeline requires a segmenter, classifier, resolver and reasoner")
	}
	if c.Gate == nil || c.Handles == nil {
		return nil, fmt.Errorf("pipeline requires a prerequisite gate and a handle registry")
	}

	rt, err := router.New(logger, cfg.RoutingThreshold, c.Reasoner)
	if err != nil {
		return nil, fmt.Errorf("failed to create router: %w", err)
	}
	direct := resolverHandler(c.Resolver)
	for _, category := range schemas.AllCategories() {
		if resolver.HasPreferredDomain(category) {
			rt.Handle(category, direct)
		}
	}

	maxConcurrent := cfg.MaxConcurrentRequests
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Pipeline{
		segmenter:     c.Segmenter,
		classifier:    c.Classifier,
		router:        rt,
		gate:          c.Gate,
		handles:       c.Handles,
		windows:       c.Windows,
		bus:           c.Bus,
		metrics:       c.Metrics,
		maxConcurrent: maxConcurrent,
		logger:        logger.Named("pipeline"),
	}, nil
}

func resolverHandler(r ToolResolver) router.Handler {
	return router.HandlerFunc(func(ctx context.Context, action schemas.Action, cls schemas.ClassificationResult, env schemas.Environment) schemas.ResolutionResult {
		return r.Resolve(ctx, action.Description, cls.Category, env)
	})
}

// Process runs one request through segmentation, classification, routing,
// target resolution and prerequisite validation. It always returns a Decision.
func (p *Pipeline) Process(ctx context.Context, text string, env schemas.Environment) schemas.Decision {
	decision := schemas.Decision{RequestID: newRequestID(), Input: text}
	logger := p.logger.With(zap.String("request_id", decision.RequestID))
	if strings.TrimSpace(text) == "" {
		logger.Debug("Empty request")
		return decision
	}

	seg := p.segmenter.Segment(ctx, text)
	if seg.Fallback {
		logger.Info("Segmentation degraded to passthrough", zap.String("annotation", seg.Error))
	}

	decision.Actions = make([]schemas.ActionDecision, 0, len(seg.Actions))
	for _, action := range seg.Actions {
		cls := p.classifier.Classify(ctx, action.Description)
		outcome := p.router.Route(ctx, action, cls, env)
		decision.Actions = append(decision.Actions, schemas.ActionDecision{
			Action:         action,
			Route:          outcome.Route,
			Classification: cls,
			Resolution:     outcome.Resolution,
			Fallback:       outcome.Fallback,
		})
		p.metrics.ObserveDecision(string(outcome.Route))
	}

	for i := range decision.Actions {
		ad := &decision.Actions[i]
		window, ambiguity := p.resolveTarget(ctx, decision.RequestID, *ad)
		if ambiguity != nil {
			decision.Ambiguities = append(decision.Ambiguities, *ambiguity)
			p.metrics.ObserveFallback("pipeline", string(schemas.FailureAmbiguity))
			continue
		}
		ad.TargetWindow = window
	}

	if reasons := p.gate.ValidateChain(chainSteps(decision.Actions), env); len(reasons) > 0 {
		decision.Refused = true
		decision.Reasons = reasons
		p.metrics.ObserveFallback("pipeline", string(schemas.FailurePrerequisite))
	}

	logger.Info("Request processed",
		zap.Int("actions", len(decision.Actions)),
		zap.Bool("refused", decision.Refused),
		zap.Int("ambiguities", len(decision.Ambiguities)))
	p.publish(events.NewDecisionEvent(decision))
	return decision
}

// ProcessBatch processes independent requests concurrently, bounded by the
// configured limit. Results are index-aligned with requests.
func (p *Pipeline) ProcessBatch(ctx context.Context, requests []Request) []schemas.Decision {
	results := make([]schemas.Decision, len(requests))
	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxConcurrent)
	for i, req := range requests {
		i, req := i, req
		g.Go(func() error {
			results[i] = p.Process(groupCtx, req.Text, req.Environment)
			return nil
		})
	}
	// Process never fails, so neither does the group.
	_ = g.Wait()
	return results
}

// Router exposes the confidence router so hosts can register extra handlers.
func (p *Pipeline) Router() *router.Router { return p.router }

func (p *Pipeline) publish(evt events.Event) {
	if p.bus == nil {
		return
	}
	if err := p.bus.Publish(evt); err != nil {
		p.logger.Debug("Event not published", zap.String("type", string(evt.Type)), zap.Error(err))
	}
}
