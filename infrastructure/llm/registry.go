package llm

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/ahrav/go-consensus/internal/ports"
)

// Router selects a Client for each provider/name slug. Slugs whose vendor has
// a directly configured provider go to that provider with the vendor prefix
// removed; everything else goes to the default provider with the full slug.
//
// Router implements ports.CompletionProvider.
type Router struct {
	// providers maps provider names to their configuration.
	providers map[string]ProviderConfig
	// clients maps provider names to initialized clients.
	clients map[string]*Client
	// vendors maps a slug vendor prefix to the provider that serves it directly.
	vendors map[string]string
	// defaultProvider serves every slug without a direct route.
	defaultProvider string
	// defaultMiddleware is applied to every client before provider-specific middleware.
	defaultMiddleware []Middleware
	// defaultTimeout bounds each HTTP exchange.
	defaultTimeout time.Duration
	// request holds the parameters sent with every prompt.
	request RequestDefaults
	mu      sync.RWMutex
}

var _ ports.CompletionProvider = (*Router)(nil)

// ProviderConfig holds provider-specific configuration.
type ProviderConfig struct {
	// Type specifies the provider implementation type (openrouter, anthropic, google).
	Type string
	// EnvVar names the environment variable holding the API key.
	EnvVar string
	// BaseURL overrides the default API endpoint for the provider.
	BaseURL string
	// Headers are attached to every request where the provider supports it.
	Headers map[string]string
	// Vendors lists slug prefixes this provider serves directly.
	Vendors []string
	// Middleware specifies provider-specific middleware.
	Middleware []Middleware
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	// Providers defines the available providers and their configurations.
	Providers map[string]ProviderConfig
	// DefaultProvider serves every slug without a direct route.
	DefaultProvider string
	// DefaultTimeout sets the HTTP timeout for all providers.
	DefaultTimeout time.Duration
	// DefaultMiddleware is applied to all providers.
	DefaultMiddleware []Middleware
	// Request holds the parameters sent with every prompt.
	Request RequestDefaults
}

// DefaultProviders provides standard provider configurations. OpenRouter is
// always the fallback; Anthropic and Google take over their own vendor slugs
// only when their keys are present.
var DefaultProviders = map[string]ProviderConfig{
	"openrouter": {
		Type:   "openrouter",
		EnvVar: "OPENROUTER_API_KEY",
		Headers: map[string]string{
			"HTTP-Referer": "https://llm-consensus-benchmark.vercel.app",
			"X-Title":      "LLM Consensus Benchmark",
		},
	},
	"anthropic": {
		Type:    "anthropic",
		EnvVar:  "ANTHROPIC_API_KEY",
		Vendors: []string{"anthropic"},
	},
	"google": {
		Type:    "google",
		EnvVar:  "GOOGLE_API_KEY",
		Vendors: []string{"google"},
	},
}

// NewRouter creates a router. Clients are created by InitializeProviders or
// registered with RegisterClient.
func NewRouter(config RouterConfig) (*Router, error) {
	if config.DefaultProvider == "" {
		return nil, fmt.Errorf("default provider cannot be empty")
	}

	if _, exists := config.Providers[config.DefaultProvider]; !exists {
		return nil, fmt.Errorf("default provider %q not found in providers configuration", config.DefaultProvider)
	}

	return &Router{
		providers:         config.Providers,
		clients:           make(map[string]*Client),
		vendors:           make(map[string]string),
		defaultProvider:   config.DefaultProvider,
		defaultMiddleware: config.DefaultMiddleware,
		defaultTimeout:    config.DefaultTimeout,
		request:           config.Request,
	}, nil
}

// InitializeProviders creates a client for every provider whose API key is
// present in the environment. The default provider's key is mandatory.
func (r *Router) InitializeProviders() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, providerConfig := range r.providers {
		apiKey := os.Getenv(providerConfig.EnvVar)
		if apiKey == "" {
			if name == r.defaultProvider {
				return fmt.Errorf("%s environment variable not set for default provider %q",
					providerConfig.EnvVar, name)
			}
			continue
		}

		client, err := NewClient(providerConfig.Type, r.clientConfig(apiKey, providerConfig))
		if err != nil {
			return fmt.Errorf("failed to create %s client: %w", name, err)
		}
		r.register(name, client, providerConfig.Vendors)
	}

	return nil
}

// ClientConfig returns the client configuration the router would use for the
// named provider, with apiKey filled in.
func (r *Router) ClientConfig(name, apiKey string) (ClientConfig, error) {
	providerConfig, ok := r.providers[name]
	if !ok {
		return ClientConfig{}, fmt.Errorf("unknown provider %q", name)
	}
	return r.clientConfig(apiKey, providerConfig), nil
}

func (r *Router) clientConfig(apiKey string, providerConfig ProviderConfig) ClientConfig {
	middleware := append([]Middleware{}, r.defaultMiddleware...)
	return ClientConfig{
		APIKey:     apiKey,
		BaseURL:    providerConfig.BaseURL,
		Timeout:    r.defaultTimeout,
		Headers:    providerConfig.Headers,
		Request:    r.request,
		Middleware: append(middleware, providerConfig.Middleware...),
	}
}

// RegisterClient registers an already built client under a provider name.
// vendors lists the slug prefixes it serves directly.
func (r *Router) RegisterClient(name string, client *Client, vendors ...string) error {
	if name == "" {
		return fmt.Errorf("client name cannot be empty")
	}
	if client == nil {
		return fmt.Errorf("client %q cannot be nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.register(name, client, vendors)
	return nil
}

func (r *Router) register(name string, client *Client, vendors []string) {
	r.clients[name] = client
	for _, vendor := range vendors {
		r.vendors[vendor] = name
	}
}

// Route returns the client serving slug and the model name to send to it.
func (r *Router) Route(slug string) (*Client, string, error) {
	vendor, name, ok := SplitSlug(slug)
	if !ok {
		return nil, "", NewProviderError("router", ErrorTypeUnroutable, 0,
			fmt.Sprintf("model %q is not in provider/name form", slug), ErrUnroutableModel)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if provider, ok := r.vendors[vendor]; ok {
		if client, ok := r.clients[provider]; ok {
			return client, name, nil
		}
	}

	if client, ok := r.clients[r.defaultProvider]; ok {
		return client, slug, nil
	}

	return nil, "", NewProviderError("router", ErrorTypeUnroutable, 0,
		fmt.Sprintf("no provider configured for %q", slug), ErrUnroutableModel)
}

// Complete routes slug to its client and sends prompt.
func (r *Router) Complete(ctx context.Context, slug, prompt string) (ports.Completion, error) {
	client, model, err := r.Route(slug)
	if err != nil {
		return ports.Completion{}, err
	}
	return client.Complete(ctx, model, prompt)
}

// GetRegisteredProviders returns the sorted names of providers with clients.
func (r *Router) GetRegisteredProviders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]string, 0, len(r.clients))
	for name := range r.clients {
		providers = append(providers, name)
	}
	slices.Sort(providers)
	return providers
}
