package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/ahrav/go-consensus/infrastructure/cache"
	"github.com/ahrav/go-consensus/infrastructure/llm"
	"github.com/ahrav/go-consensus/infrastructure/middleware"
	"github.com/ahrav/go-consensus/infrastructure/storage"
	"github.com/ahrav/go-consensus/internal/application"
	"github.com/ahrav/go-consensus/internal/ports"
)

// defaultProvider serves every slug without a direct vendor route.
const defaultProvider = "openrouter"

// runtime is the wired service graph behind every command.
type runtime struct {
	submissions *application.SubmissionService
	catalog     *application.CatalogService
	gatherer    prometheus.Gatherer

	closers []func(context.Context) error
}

// runtimeFactory builds a runtime. withCompletions requests a completion
// provider, which needs the default provider's API key.
type runtimeFactory func(ctx context.Context, cfg *application.Config, logger *slog.Logger, withCompletions bool) (*runtime, error)

// Close releases every resource in reverse order of acquisition.
func (r *runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i](ctx))
	}
	return errors.Join(errs...)
}

func buildRuntime(ctx context.Context, cfg *application.Config, logger *slog.Logger, withCompletions bool) (_ *runtime, err error) {
	rt := &runtime{}
	defer func() {
		if err != nil {
			_ = rt.Close(context.Background())
		}
	}()

	if cfg.Tracing.Stdout {
		shutdown, err := setupTracing(os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("setup tracing: %w", err)
		}
		rt.closers = append(rt.closers, shutdown)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := middleware.NewPrometheusMetrics(reg)
	rt.gatherer = reg

	var (
		registry ports.ModelRegistry
		sink     ports.PersistenceSink
	)
	switch cfg.Storage.Driver {
	case "mongo":
		client, store, err := storage.ConnectMongo(ctx, cfg.Storage.MongoURI, cfg.Storage.Database)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, client.Disconnect)
		registry, sink = store, store
	default:
		store := storage.NewMemoryStore()
		// A fresh in-memory registry starts with the recommended models.
		seed := application.SelectModels(nil, cfg.Catalog.PerProviderLimit, cfg.Catalog.Recommended)
		if err := store.Upsert(ctx, seed); err != nil {
			return nil, err
		}
		registry, sink = store, store
	}

	var catalogOpts []application.CatalogOption
	switch cfg.Cache.Driver {
	case "redis":
		client, err := cache.DialRedis(ctx, cfg.Cache.RedisAddr)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, func(context.Context) error { return client.Close() })
		catalogOpts = append(catalogOpts, application.WithCatalogCache(cache.NewRedisCache(client, cache.DefaultPrefix), cfg.Cache.TTL))
	case "memory":
		catalogOpts = append(catalogOpts, application.WithCatalogCache(cache.NewMemoryCache(), cfg.Cache.TTL))
	}

	router, err := llm.NewRouter(routerConfig(cfg, metrics, logger))
	if err != nil {
		return nil, err
	}
	if withCompletions {
		if err := router.InitializeProviders(); err != nil {
			return nil, err
		}
		logger.Debug("completion providers ready", "providers", router.GetRegisteredProviders())
	}

	var source ports.CatalogSource
	if key := os.Getenv(cfg.OpenRouter.APIKeyEnv); key != "" {
		clientConfig, err := router.ClientConfig(defaultProvider, key)
		if err != nil {
			return nil, err
		}
		if source, err = llm.NewOpenRouterCatalog(clientConfig); err != nil {
			return nil, err
		}
	}

	catalogOpts = append(catalogOpts,
		application.WithPerProviderLimit(cfg.Catalog.PerProviderLimit),
		application.WithRecommended(cfg.Catalog.Recommended),
		application.WithCatalogLogger(logger),
	)
	rt.catalog = application.NewCatalogService(source, registry, catalogOpts...)

	rt.submissions = application.NewSubmissionService(registry, router, sink,
		application.WithTimeout(cfg.Submission.Timeout),
		application.WithMaxModels(cfg.Submission.MaxModels),
		application.WithMetrics(metrics),
		application.WithLogger(logger),
	)
	return rt, nil
}

// routerConfig maps configuration onto provider definitions. OpenRouter is
// the default; the direct providers take over their vendor's slugs only when
// their keys are set.
func routerConfig(cfg *application.Config, metrics ports.MetricsCollector, logger *slog.Logger) llm.RouterConfig {
	instrument := func(provider string) []llm.Middleware {
		return []llm.Middleware{
			llm.TracingMiddleware(provider),
			llm.MetricsMiddleware(provider, metrics),
			llm.LoggingMiddleware(provider, logger),
		}
	}

	providers := make(map[string]llm.ProviderConfig, len(llm.DefaultProviders))
	// configure overlays configured values on the built-in definition of name.
	configure := func(name, keyEnv, baseURL string) llm.ProviderConfig {
		p := llm.DefaultProviders[name]
		p.EnvVar = keyEnv
		if baseURL != "" {
			p.BaseURL = baseURL
		}
		p.Headers = maps.Clone(p.Headers)
		p.Middleware = instrument(name)
		return p
	}

	openrouter := configure(defaultProvider, cfg.OpenRouter.APIKeyEnv, cfg.OpenRouter.BaseURL)
	if openrouter.Headers == nil {
		openrouter.Headers = map[string]string{}
	}
	if cfg.OpenRouter.Referer != "" {
		openrouter.Headers["HTTP-Referer"] = cfg.OpenRouter.Referer
	}
	if cfg.OpenRouter.Title != "" {
		openrouter.Headers["X-Title"] = cfg.OpenRouter.Title
	}
	providers[defaultProvider] = openrouter

	if d := cfg.Direct.Anthropic; d.APIKeyEnv != "" {
		providers["anthropic"] = configure("anthropic", d.APIKeyEnv, d.BaseURL)
	}
	if d := cfg.Direct.Google; d.APIKeyEnv != "" {
		providers["google"] = configure("google", d.APIKeyEnv, d.BaseURL)
	}

	return llm.RouterConfig{
		Providers:         providers,
		DefaultProvider:   defaultProvider,
		DefaultTimeout:    cfg.Submission.Timeout,
		DefaultMiddleware: []llm.Middleware{llm.TimeoutMiddleware(cfg.Submission.Timeout)},
		Request: llm.RequestDefaults{
			System:      cfg.OpenRouter.SystemPrompt,
			MaxTokens:   cfg.OpenRouter.MaxTokens,
			Temperature: cfg.OpenRouter.Temperature,
		},
	}
}

// setupTracing installs a tracer provider that prints spans to w.
func setupTracing(w io.Writer) (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", "consensus"),
			attribute.String("service.version", version),
		)),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return provider.Shutdown(ctx)
	}, nil
}
