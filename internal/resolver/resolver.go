// Package resolver maps an action to a concrete capability invocation in two
// stages: first within the intent category's preferred domains, then across
// the whole registry with a confidence penalty for leaving the domain.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deskmind/api/schemas"
	"github.com/xkilldash9x/deskmind/internal/capability"
	"github.com/xkilldash9x/deskmind/internal/config"
	"github.com/xkilldash9x/deskmind/internal/llmutil"
	"github.com/xkilldash9x/deskmind/internal/observability"
)

const defaultCacheSize = 256

// CapabilitySource is the registry view the resolver needs.
type CapabilitySource interface {
	schemas.CapabilityRegistry
	ValidateParameters(id string, params map[string]interface{}) error
	Version() uint64
}

// Options carries the resolver's thresholds. They come from configuration.
type Options struct {
	ResolutionThreshold   float64
	DomainMismatchPenalty float64
	ParameterPenalty      float64
	Timeout               time.Duration
	CacheSize             int
}

// OptionsFromConfig extracts resolver options from the pipeline config.
func OptionsFromConfig(cfg config.PipelineConfig) Options {
	return Options{
		ResolutionThreshold:   cfg.ResolutionThreshold,
		DomainMismatchPenalty: cfg.DomainMismatchPenalty,
		ParameterPenalty:      cfg.ParameterPenalty,
		Timeout:               cfg.InferenceTimeout,
		CacheSize:             cfg.ResolutionCacheSize,
	}
}

// TwoStageResolver implements capability resolution. It is safe for
// concurrent use.
type TwoStageResolver struct {
	llm       schemas.LLMClient
	registry  CapabilitySource
	opts      Options
	validator *llmutil.Validator
	cache     *lru.Cache[string, schemas.ResolutionResult]
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// New creates a resolver. metrics may be nil.
func New(logger *zap.Logger, llm schemas.LLMClient, registry CapabilitySource, opts Options, metrics *observability.Metrics) (*TwoStageResolver, error) {
	if llm == nil || registry == nil {
		return nil, fmt.Errorf("resolver requires an LLM client and a capability registry")
	}
	if opts.ResolutionThreshold <= 0 || opts.ResolutionThreshold > 1 {
		return nil, fmt.Errorf("resolution threshold must be in (0, 1], got %v", opts.ResolutionThreshold)
	}
	if opts.Timeout <= 0 {
		return nil, fmt.Errorf("resolver timeout must be positive")
	}
	size := opts.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[string, schemas.ResolutionResult](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolution cache: %w", err)
	}
	return &TwoStageResolver{
		llm:       llm,
		registry:  registry,
		opts:      opts,
		validator: llmutil.MustValidator("resolution", matchOutputSchema),
		cache:     cache,
		metrics:   metrics,
		logger:    logger.Named("resolver"),
	}, nil
}

// Resolve maps description to a capability. It never fails: inference and
// validation problems produce a result with no tool and a reason.
func (r *TwoStageResolver) Resolve(ctx context.Context, description string, category schemas.IntentCategory, env schemas.Environment) schemas.ResolutionResult {
	key := r.cacheKey(description, category, env)
	if cached, ok := r.cache.Get(key); ok {
		r.logger.Debug("Resolution cache hit", zap.String("tool", cached.Tool))
		return cloneResult(cached)
	}

	domains := PreferredDomains(category)
	all := r.registry.ListAll()

	// Stage 1: only the preferred domains.
	var candidate *schemas.ResolutionResult
	if len(domains) > 0 {
		if subset := capability.FilterByPrefix(all, domains...); len(subset) > 0 {
			res, err := r.match(ctx, description, category, env, subset, domains, schemas.StageDomain)
			switch {
			case err != nil:
				r.logger.Warn("Stage 1 resolution failed", zap.Error(err))
			case res.HasTool() && res.DomainMatch && res.Confidence >= r.opts.ResolutionThreshold:
				r.logger.Debug("Resolved in preferred domain",
					zap.String("tool", res.Tool), zap.Float64("confidence", res.Confidence))
				r.cache.Add(key, cloneResult(res))
				return res
			case res.HasTool():
				candidate = &res
			}
		}
	}

	// Stage 2: the whole registry, trusting out-of-domain picks less.
	res, err := r.match(ctx, description, category, env, all, domains, schemas.StageRegistry)
	if err != nil {
		r.logger.Warn("Stage 2 resolution failed", zap.Error(err))
		if candidate != nil {
			return *candidate
		}
		return schemas.ResolutionResult{Stage: schemas.StageRegistry, Reason: "capability resolution failed"}
	}
	if candidate != nil && candidate.Confidence > res.Confidence {
		res = *candidate
	}

	r.logger.Debug("Resolution complete",
		zap.String("tool", res.Tool),
		zap.Int("stage", int(res.Stage)),
		zap.Bool("domain_match", res.DomainMatch),
		zap.Float64("confidence", res.Confidence))
	r.cache.Add(key, cloneResult(res))
	return res
}

// match runs one resolution stage against candidates. Errors are inference
// or output-validation failures; a model that names an unknown capability
// yields a result with no tool instead.
func (r *TwoStageResolver) match(ctx context.Context, description string, category schemas.IntentCategory, env schemas.Environment, candidates []schemas.Capability, domains []string, stage schemas.ResolutionStage) (schemas.ResolutionResult, error) {
	prompt, err := buildMatchPrompt(description, category, env, candidates)
	if err != nil {
		return schemas.ResolutionResult{}, err
	}

	apiCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	started := time.Now()
	response, err := r.llm.Generate(apiCtx, schemas.GenerationRequest{
		SystemPrompt: matchSystemPrompt,
		UserPrompt:   prompt,
		Tier:         schemas.TierPowerful,
		Options: schemas.GenerationOptions{
			ForceJSONFormat: true,
			Temperature:     0.1,
			ResponseSchema:  matchOutputSchema,
		},
	})
	r.metrics.ObserveInference("resolver", started)
	if err != nil {
		r.metrics.ObserveFallback("resolver", string(schemas.FailureInference))
		return schemas.ResolutionResult{}, fmt.Errorf("llm generation failed: %w", err)
	}

	out, err := llmutil.DecodeStrict[matchOutput](response, r.validator)
	if err != nil {
		r.metrics.ObserveFallback("resolver", string(schemas.FailureValidation))
		return schemas.ResolutionResult{}, err
	}

	tool := ""
	if out.Tool != nil {
		tool = strings.TrimSpace(*out.Tool)
	}
	if tool == "" {
		reason := strings.TrimSpace(out.Reason)
		if reason == "" {
			reason = "no capability matches the action"
		}
		return schemas.ResolutionResult{Stage: stage, Reason: reason}, nil
	}
	if !r.registry.Has(tool) {
		r.logger.Warn("Model proposed a capability that is not registered", zap.String("tool", tool), zap.Int("stage", int(stage)))
		r.metrics.ObserveFallback("resolver", string(schemas.FailureValidation))
		return schemas.ResolutionResult{Stage: stage, Reason: "the proposed capability is not registered"}, nil
	}

	res := schemas.ResolutionResult{
		Tool:        tool,
		Parameters:  out.Parameters,
		Confidence:  out.Confidence,
		Stage:       stage,
		DomainMatch: capability.MatchesPrefix(tool, domains...),
		Reason:      strings.TrimSpace(out.Reason),
	}
	if len(domains) > 0 && !res.DomainMatch {
		res.Confidence = Penalize(res.Confidence, r.opts.DomainMismatchPenalty)
	}
	if err := r.registry.ValidateParameters(tool, res.Parameters); err != nil {
		if errors.Is(err, capability.ErrUnknownCapability) {
			// Unregistered between Has and here.
			return schemas.ResolutionResult{Stage: stage, Reason: "the proposed capability is not registered"}, nil
		}
		r.logger.Debug("Resolved parameters failed schema validation", zap.String("tool", tool), zap.Error(err))
		res.Confidence = Penalize(res.Confidence, r.opts.ParameterPenalty)
		res.Reason = "parameters do not fully match the capability schema"
	}
	return res, nil
}

// Penalize subtracts penalty from confidence, flooring at zero.
func Penalize(confidence, penalty float64) float64 {
	c := confidence - penalty
	if c < 0 {
		return 0
	}
	return c
}

func (r *TwoStageResolver) cacheKey(description string, category schemas.IntentCategory, env schemas.Environment) string {
	return strings.Join([]string{
		strings.TrimSpace(description),
		string(category),
		fingerprint(env),
		strconv.FormatUint(r.registry.Version(), 10),
	}, "\x1f")
}

func cloneResult(res schemas.ResolutionResult) schemas.ResolutionResult {
	if res.Parameters != nil {
		params := make(map[string]interface{}, len(res.Parameters))
		for k, v := range res.Parameters {
			params[k] = v
		}
		res.Parameters = params
	}
	return res
}
