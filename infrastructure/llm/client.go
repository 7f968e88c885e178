// Package llm sends single prompts to large language models on behalf of the
// consensus service.
//
// Providers (OpenRouter, Anthropic, Google) implement the small CoreLLM
// interface. A Client wraps one provider with a middleware chain for tracing,
// metrics, logging and timeouts, and turns raw provider output into a
// ports.Completion. A Router picks the Client for a provider/name slug and is
// what the application layer sees as its ports.CompletionProvider.
//
// Basic usage:
//
//	client, err := llm.NewClient("openrouter", llm.ClientConfig{
//	    APIKey: os.Getenv("OPENROUTER_API_KEY"),
//	    Middleware: []llm.Middleware{
//	        llm.TracingMiddleware("openrouter"),
//	        llm.MetricsMiddleware("openrouter", collector),
//	    },
//	})
//	completion, err := client.Complete(ctx, "openai/gpt-4o", "Capital of France?")
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ahrav/go-consensus/internal/ports"
)

// CoreLLM defines the minimal interface that LLM providers must implement.
// This interface abstracts the core functionality needed to make requests
// to different LLM services, allowing the middleware system to wrap
// any conforming implementation.
type CoreLLM interface {
	// DoRequest sends a prompt to the LLM provider and returns the response.
	// The opts parameter carries "model", "system", "max_tokens" and
	// "temperature". Returns the response text, input token count, output
	// token count, and any error.
	DoRequest(
		ctx context.Context,
		prompt string,
		opts map[string]any,
	) (
		response string,
		tokensIn, tokensOut int,
		err error,
	)

	// GetModel returns the currently configured default model name.
	GetModel() string

	// SetModel updates the default model used when opts carries none.
	SetModel(model string)
}

// RequestDefaults are the request parameters a Client sends with every prompt.
type RequestDefaults struct {
	// System is the system message preceding each prompt.
	System string
	// MaxTokens caps the completion length.
	MaxTokens int
	// Temperature is the sampling temperature.
	Temperature float64
}

// DefaultRequest returns the request shape used for consensus prompts: a
// single-word answer with a small token budget.
func DefaultRequest() RequestDefaults {
	return RequestDefaults{
		System:      "You are a helpful assistant. Respond with a single word only.",
		MaxTokens:   DefaultMaxTokens,
		Temperature: 0.7,
	}
}

// ClientConfig holds all configuration options for creating an LLM client.
type ClientConfig struct {
	// APIKey authenticates requests to the LLM provider.
	APIKey string

	// Model is the provider's default model, used when a request names none.
	Model string

	// BaseURL overrides the default API endpoint for the provider.
	// Leave empty to use the provider's default endpoint.
	BaseURL string

	// Timeout bounds each HTTP exchange. Zero leaves deadlines to the
	// request context.
	Timeout time.Duration

	// Headers are added to every outgoing HTTP request by providers that
	// support custom headers.
	Headers map[string]string

	// Request holds the parameters sent with every prompt. The zero value
	// selects DefaultRequest.
	Request RequestDefaults

	// Middleware wraps the provider. The first entry is the outermost.
	Middleware []Middleware
}

// Middleware wraps a CoreLLM implementation to add cross-cutting functionality.
// This pattern allows composition of features like metrics collection, tracing
// and timeouts without modifying core provider logic.
type Middleware func(CoreLLM) CoreLLM

// Client wraps a provider-specific CoreLLM implementation with middleware and
// converts its output into completions.
type Client struct {
	provider string
	core     CoreLLM
	request  RequestDefaults
}

// NewClient creates a new LLM client with the specified provider and configuration.
// This function assembles the middleware chain and validates configuration
// before returning a ready-to-use client instance.
func NewClient(providerType string, config ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	factory, ok := providerFactories[providerType]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", providerType)
	}

	core, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	return newClientWithCore(providerType, core, config), nil
}

// newClientWithCore assembles a Client around an existing core. Tests use it
// to inject fakes.
func newClientWithCore(providerType string, core CoreLLM, config ClientConfig) *Client {
	// Apply middleware in reverse order so the first middleware is the outermost.
	for i := len(config.Middleware) - 1; i >= 0; i-- {
		core = config.Middleware[i](core)
	}

	request := config.Request
	if request == (RequestDefaults{}) {
		request = DefaultRequest()
	}

	return &Client{
		provider: providerType,
		core:     core,
		request:  request,
	}
}

// Provider returns the provider type this client was built for.
func (c *Client) Provider() string { return c.provider }

// Complete sends prompt to model and returns the trimmed completion together
// with the measured wall-clock time. A blank answer is a valid completion with
// empty text.
func (c *Client) Complete(ctx context.Context, model, prompt string) (ports.Completion, error) {
	opts := map[string]any{
		"model":       model,
		"system":      c.request.System,
		"max_tokens":  c.request.MaxTokens,
		"temperature": c.request.Temperature,
	}

	start := time.Now()
	text, tokensIn, tokensOut, err := c.core.DoRequest(ctx, prompt, opts)
	elapsed := time.Since(start)
	if err != nil {
		return ports.Completion{}, err
	}

	return ports.Completion{
		Text:      strings.TrimSpace(text),
		Elapsed:   elapsed,
		TokensIn:  tokensIn,
		TokensOut: tokensOut,
	}, nil
}

// GetModel returns the currently configured model name from the underlying provider.
func (c *Client) GetModel() string { return c.core.GetModel() }

// ProviderFactory creates a CoreLLM implementation from configuration.
type ProviderFactory func(ClientConfig) (CoreLLM, error)

// providerFactories holds the registered provider constructors keyed by
// provider type. Providers register themselves from init.
var providerFactories = map[string]ProviderFactory{}

// RegisterProviderFactory allows registration of custom LLM provider factories.
// It must be called during package initialization.
func RegisterProviderFactory(providerType string, factory ProviderFactory) {
	providerFactories[providerType] = factory
}
