// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger       LoggerConfig       `mapstructure:"logger" yaml:"logger"`
	Agent        AgentConfig        `mapstructure:"agent" yaml:"agent"`
	Pipeline     PipelineConfig     `mapstructure:"pipeline" yaml:"pipeline"`
	Identity     IdentityConfig     `mapstructure:"identity" yaml:"identity"`
	Capabilities CapabilitiesConfig `mapstructure:"capabilities" yaml:"capabilities"`
	Metrics      MetricsConfig      `mapstructure:"metrics" yaml:"metrics"`
	Events       EventsConfig       `mapstructure:"events" yaml:"events"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// AgentConfig holds settings related to the inference service.
type AgentConfig struct {
	LLM LLMRouterConfig `mapstructure:"llm" yaml:"llm"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
)

// LLMRouterConfig configures the model routing logic.
type LLMRouterConfig struct {
	DefaultFastModel     string                    `mapstructure:"default_fast_model" yaml:"default_fast_model"`
	DefaultPowerfulModel string                    `mapstructure:"default_powerful_model" yaml:"default_powerful_model"`
	Models               map[string]LLMModelConfig `mapstructure:"models" yaml:"models"`
	// APIKey is shared by every model that does not carry its own key.
	APIKey string `mapstructure:"api_key" yaml:"-"`
}

// LLMModelConfig defines the configuration for a single LLM.
type LLMModelConfig struct {
	Provider      LLMProvider       `mapstructure:"provider" yaml:"provider"`
	Model         string            `mapstructure:"model" yaml:"model"`
	APIKey        string            `mapstructure:"api_key" yaml:"-"`
	Endpoint      string            `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout    time.Duration     `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature   float32           `mapstructure:"temperature" yaml:"temperature"`
	TopP          float32           `mapstructure:"top_p" yaml:"top_p"`
	TopK          int               `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens     int               `mapstructure:"max_tokens" yaml:"max_tokens"`
	SafetyFilters map[string]string `mapstructure:"safety_filters" yaml:"safety_filters"`
	// RequestsPerSecond throttles calls to the provider. Zero disables throttling.
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int           `mapstructure:"burst" yaml:"burst"`
	MaxRetryElapsed   time.Duration `mapstructure:"max_retry_elapsed" yaml:"max_retry_elapsed"`
}

// PipelineConfig carries the decision thresholds. They have no derivation in
// code; they are always supplied from configuration.
type PipelineConfig struct {
	// RoutingThreshold is the classification confidence required to route directly.
	RoutingThreshold float64 `mapstructure:"routing_threshold" yaml:"routing_threshold"`
	// ResolutionThreshold is the stage-1 confidence required to skip stage 2.
	ResolutionThreshold   float64       `mapstructure:"resolution_threshold" yaml:"resolution_threshold"`
	DomainMismatchPenalty float64       `mapstructure:"domain_mismatch_penalty" yaml:"domain_mismatch_penalty"`
	ParameterPenalty      float64       `mapstructure:"parameter_penalty" yaml:"parameter_penalty"`
	FallbackConfidenceCap float64       `mapstructure:"fallback_confidence_cap" yaml:"fallback_confidence_cap"`
	InferenceTimeout      time.Duration `mapstructure:"inference_timeout" yaml:"inference_timeout"`
	MaxConcurrentRequests int           `mapstructure:"max_concurrent_requests" yaml:"max_concurrent_requests"`
	ResolutionCacheSize   int           `mapstructure:"resolution_cache_size" yaml:"resolution_cache_size"`
}

// IdentityConfig tunes application identity resolution.
type IdentityConfig struct {
	TitlePrefixLength int           `mapstructure:"title_prefix_length" yaml:"title_prefix_length"`
	MaxHandleAge      time.Duration `mapstructure:"max_handle_age" yaml:"max_handle_age"`
	PruneInterval     time.Duration `mapstructure:"prune_interval" yaml:"prune_interval"`
}

// CapabilitiesConfig points at an optional YAML capability catalog. When empty,
// the built-in desktop catalog is used.
type CapabilitiesConfig struct {
	CatalogPath string `mapstructure:"catalog_path" yaml:"catalog_path"`
}

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Address string `mapstructure:"address" yaml:"address"`
}

// EventsConfig sizes the decision event bus.
type EventsConfig struct {
	BufferSize int `mapstructure:"buffer_size" yaml:"buffer_size"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "deskmind")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Agent --
	v.SetDefault("agent.llm.default_fast_model", "gemini-2.5-flash")
	v.SetDefault("agent.llm.default_powerful_model", "gemini-2.5-pro")

	// -- Pipeline --
	v.SetDefault("pipeline.routing_threshold", 0.6)
	v.SetDefault("pipeline.resolution_threshold", 0.75)
	v.SetDefault("pipeline.domain_mismatch_penalty", 0.25)
	v.SetDefault("pipeline.parameter_penalty", 0.2)
	v.SetDefault("pipeline.fallback_confidence_cap", 0.4)
	v.SetDefault("pipeline.inference_timeout", "20s")
	v.SetDefault("pipeline.max_concurrent_requests", 4)
	v.SetDefault("pipeline.resolution_cache_size", 256)

	// -- Identity --
	v.SetDefault("identity.title_prefix_length", 24)
	v.SetDefault("identity.max_handle_age", "2h")
	v.SetDefault("identity.prune_interval", "5m")

	// -- Metrics --
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.address", "127.0.0.1:9464")

	// -- Events --
	v.SetDefault("events.buffer_size", 64)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("agent.llm.api_key", "DESKMIND_GEMINI_API_KEY")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// The shared key applies to every model that did not set its own.
	sharedKey := cfg.Agent.LLM.APIKey
	if sharedKey == "" {
		sharedKey = os.Getenv("DESKMIND_GEMINI_API_KEY")
		cfg.Agent.LLM.APIKey = sharedKey
	}
	for name, m := range cfg.Agent.LLM.Models {
		if m.APIKey == "" {
			m.APIKey = sharedKey
			cfg.Agent.LLM.Models[name] = m
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline configuration invalid: %w", err)
	}
	if err := c.Identity.Validate(); err != nil {
		return fmt.Errorf("identity configuration invalid: %w", err)
	}
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return fmt.Errorf("metrics.address is required when metrics are enabled")
	}
	return nil
}

// Validate checks the PipelineConfig settings.
func (p *PipelineConfig) Validate() error {
	unit := map[string]float64{
		"routing_threshold":       p.RoutingThreshold,
		"resolution_threshold":    p.ResolutionThreshold,
		"domain_mismatch_penalty": p.DomainMismatchPenalty,
		"parameter_penalty":       p.ParameterPenalty,
		"fallback_confidence_cap": p.FallbackConfidenceCap,
	}
	for name, val := range unit {
		if val < 0.0 || val > 1.0 {
			return fmt.Errorf("%s must be between 0.0 and 1.0, got %v", name, val)
		}
	}
	if p.RoutingThreshold == 0 || p.ResolutionThreshold == 0 {
		return fmt.Errorf("routing_threshold and resolution_threshold are required")
	}
	if p.InferenceTimeout <= 0 {
		return fmt.Errorf("inference_timeout must be a positive duration")
	}
	if p.MaxConcurrentRequests <= 0 {
		return fmt.Errorf("max_concurrent_requests must be a positive integer")
	}
	return nil
}

// Validate checks the IdentityConfig settings.
func (i *IdentityConfig) Validate() error {
	if i.TitlePrefixLength <= 0 {
		return fmt.Errorf("title_prefix_length must be a positive integer")
	}
	if i.MaxHandleAge <= 0 {
		return fmt.Errorf("max_handle_age must be a positive duration")
	}
	return nil
}
