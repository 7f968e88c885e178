package application

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-consensus/internal/domain"
	"github.com/ahrav/go-consensus/internal/ports"
)

// Config is the complete service configuration. It is read from YAML,
// overridden from the environment and validated before use.
type Config struct {
	// Server configures the HTTP API.
	Server ServerConfig `yaml:"server"`
	// Log selects the log level.
	Log LogConfig `yaml:"log"`
	// OpenRouter configures the default completion provider and the
	// request shape shared by every provider.
	OpenRouter OpenRouterConfig `yaml:"openrouter"`
	// Direct configures optional vendor-native providers.
	Direct DirectConfig `yaml:"direct"`
	// Submission bounds the fan-out of a single prompt.
	Submission SubmissionConfig `yaml:"submission"`
	// Storage selects the model registry and persistence backend.
	Storage StorageConfig `yaml:"storage"`
	// Cache selects where upstream catalog listings are cached.
	Cache CacheConfig `yaml:"cache"`
	// Catalog tunes catalog synchronisation.
	Catalog CatalogConfig `yaml:"catalog"`
	// Tracing toggles the stdout span exporter.
	Tracing TracingConfig `yaml:"tracing"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required,hostname_port"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

// OpenRouterConfig configures the OpenRouter provider.
type OpenRouterConfig struct {
	// BaseURL overrides the OpenRouter endpoint. Empty selects the public API.
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env" validate:"required"`
	// Referer and Title override the built-in HTTP-Referer and X-Title
	// attribution headers when set.
	Referer string `yaml:"referer" validate:"omitempty,url"`
	Title   string `yaml:"title"`
	// SystemPrompt precedes every user prompt.
	SystemPrompt string `yaml:"system_prompt" validate:"required"`
	// MaxTokens caps the completion length.
	MaxTokens int `yaml:"max_tokens" validate:"min=1,max=4096"`
	// Temperature is the sampling temperature.
	Temperature float64 `yaml:"temperature" validate:"min=0,max=2"`
}

// DirectConfig lists the vendor-native providers. A provider is used only
// when its API key variable is set.
type DirectConfig struct {
	Anthropic DirectProviderConfig `yaml:"anthropic"`
	Google    DirectProviderConfig `yaml:"google"`
}

// DirectProviderConfig configures one vendor-native provider.
type DirectProviderConfig struct {
	APIKeyEnv string `yaml:"api_key_env"`
	BaseURL   string `yaml:"base_url" validate:"omitempty,url"`
}

// SubmissionConfig bounds a prompt submission.
type SubmissionConfig struct {
	// Timeout bounds each model's completion call.
	Timeout time.Duration `yaml:"timeout" validate:"min=1s"`
	// MaxModels caps the number of models one submission may select.
	MaxModels int `yaml:"max_models" validate:"min=1,max=100"`
}

// StorageConfig selects the registry and persistence backend.
type StorageConfig struct {
	Driver   string `yaml:"driver" validate:"oneof=memory mongo"`
	MongoURI string `yaml:"mongo_uri" validate:"required_if=Driver mongo"`
	Database string `yaml:"database" validate:"required_if=Driver mongo"`
}

// CacheConfig selects the catalog cache.
type CacheConfig struct {
	Driver    string        `yaml:"driver" validate:"oneof=none memory redis"`
	RedisAddr string        `yaml:"redis_addr" validate:"required_if=Driver redis"`
	TTL       time.Duration `yaml:"ttl" validate:"min=0s"`
}

// CatalogConfig tunes catalog synchronisation.
type CatalogConfig struct {
	// PerProviderLimit caps how many upstream models are kept per vendor.
	PerProviderLimit int `yaml:"per_provider_limit" validate:"min=1,max=50"`
	// Recommended models are always present after a sync.
	Recommended []RecommendedModel `yaml:"recommended" validate:"dive"`
}

// RecommendedModel is a model guaranteed to exist after a catalog sync.
type RecommendedModel struct {
	Slug          string `yaml:"id" validate:"required,modelformat"`
	Name          string `yaml:"name" validate:"required"`
	Provider      string `yaml:"provider" validate:"required"`
	ContextLength int    `yaml:"context_length" validate:"min=0"`
}

// TracingConfig configures span export.
type TracingConfig struct {
	Stdout bool `yaml:"stdout"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080"},
		Log:    LogConfig{Level: "info"},
		OpenRouter: OpenRouterConfig{
			APIKeyEnv:    "OPENROUTER_API_KEY",
			SystemPrompt: "You are a helpful assistant. Respond with a single word only.",
			MaxTokens:    10,
			Temperature:  0.7,
		},
		Direct: DirectConfig{
			Anthropic: DirectProviderConfig{APIKeyEnv: "ANTHROPIC_API_KEY"},
			Google:    DirectProviderConfig{APIKeyEnv: "GOOGLE_API_KEY"},
		},
		Submission: SubmissionConfig{
			Timeout:   30 * time.Second,
			MaxModels: 20,
		},
		Storage: StorageConfig{Driver: "memory", Database: "consensus"},
		Cache:   CacheConfig{Driver: "none", TTL: 10 * time.Minute},
		Catalog: CatalogConfig{
			PerProviderLimit: 5,
			Recommended:      DefaultRecommendedModels(),
		},
	}
}

// DefaultRecommendedModels returns the models every catalog sync guarantees.
func DefaultRecommendedModels() []RecommendedModel {
	return []RecommendedModel{
		{Slug: "openai/gpt-4o", Name: "GPT-4o", Provider: "OpenAI", ContextLength: 128000},
		{Slug: "anthropic/claude-3-sonnet", Name: "Claude 3 Sonnet", Provider: "Anthropic", ContextLength: 200000},
		{Slug: "google/gemini-pro-1.5", Name: "Gemini Pro 1.5", Provider: "Google", ContextLength: 2000000},
		{Slug: "meta-llama/llama-3-70b-instruct", Name: "Llama 3 70B", Provider: "Meta", ContextLength: 8192},
		{Slug: "mistralai/mistral-large", Name: "Mistral Large", Provider: "Mistral AI", ContextLength: 128000},
		{Slug: "cohere/command-r", Name: "Command R", Provider: "Cohere", ContextLength: 128000},
	}
}

// Environment variables that override file settings.
const (
	EnvServerAddr    = "CONSENSUS_ADDR"
	EnvLogLevel      = "CONSENSUS_LOG_LEVEL"
	EnvStorageDriver = "CONSENSUS_STORAGE_DRIVER"
	EnvMongoURI      = "CONSENSUS_MONGO_URI"
	EnvCacheDriver   = "CONSENSUS_CACHE_DRIVER"
	EnvRedisAddr     = "CONSENSUS_REDIS_ADDR"
	EnvTimeout       = "CONSENSUS_SUBMISSION_TIMEOUT"
	EnvTraceStdout   = "CONSENSUS_TRACE_STDOUT"
)

// ConfigLoader reads, overrides and validates service configuration.
type ConfigLoader struct {
	validator *validator.Validate
	// getenv resolves environment overrides. Tests replace it.
	getenv func(string) string
}

// NewConfigLoader creates a loader with the custom validators registered.
func NewConfigLoader() (*ConfigLoader, error) {
	v := validator.New()
	if err := RegisterConfigValidators(v); err != nil {
		return nil, fmt.Errorf("failed to register validators: %w", err)
	}
	return &ConfigLoader{validator: v, getenv: os.Getenv}, nil
}

// LoadFile reads configuration from path. An empty path yields the defaults
// with environment overrides applied.
func (cl *ConfigLoader) LoadFile(path string) (*Config, error) {
	if path == "" {
		return cl.load(nil)
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ports.NewConfigError(path, ports.ErrConfigNotFound)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return cl.load(data)
}

// LoadReader reads configuration from r.
func (cl *ConfigLoader) LoadReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return cl.load(data)
}

func (cl *ConfigLoader) load(data []byte) (*Config, error) {
	config := DefaultConfig()

	if len(bytes.TrimSpace(data)) > 0 {
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true) // Strict mode - fail on unknown fields.
		if err := decoder.Decode(&config); err != nil {
			return nil, fmt.Errorf("%w: YAML decode failed: %v", domain.ErrInvalidConfiguration, err)
		}
	}

	if err := cl.applyEnv(&config); err != nil {
		return nil, err
	}

	if err := cl.Validate(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// applyEnv overrides file settings with non-empty environment variables.
func (cl *ConfigLoader) applyEnv(config *Config) error {
	overrides := []struct {
		env    string
		target *string
	}{
		{EnvServerAddr, &config.Server.Addr},
		{EnvLogLevel, &config.Log.Level},
		{EnvStorageDriver, &config.Storage.Driver},
		{EnvMongoURI, &config.Storage.MongoURI},
		{EnvCacheDriver, &config.Cache.Driver},
		{EnvRedisAddr, &config.Cache.RedisAddr},
	}
	for _, o := range overrides {
		if v := cl.getenv(o.env); v != "" {
			*o.target = v
		}
	}

	if v := cl.getenv(EnvTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return ports.NewConfigError(EnvTimeout, err)
		}
		config.Submission.Timeout = d
	}

	if v := cl.getenv(EnvTraceStdout); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return ports.NewConfigError(EnvTraceStdout, err)
		}
		config.Tracing.Stdout = enabled
	}

	return nil
}

// Validate checks struct tags and cross-field rules.
func (cl *ConfigLoader) Validate(config *Config) error {
	if err := cl.validator.Struct(config); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}

	seen := make(map[string]struct{}, len(config.Catalog.Recommended))
	for _, m := range config.Catalog.Recommended {
		if _, dup := seen[m.Slug]; dup {
			return fmt.Errorf("%w: duplicate recommended model %q", domain.ErrInvalidConfiguration, m.Slug)
		}
		seen[m.Slug] = struct{}{}
	}
	return nil
}
