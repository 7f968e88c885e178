package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-consensus/infrastructure/llm"
	"github.com/ahrav/go-consensus/infrastructure/storage"
	"github.com/ahrav/go-consensus/internal/application"
	"github.com/ahrav/go-consensus/internal/domain"
	"github.com/ahrav/go-consensus/internal/ports"
	"github.com/ahrav/go-consensus/internal/testutils"
)

type stubSource struct{ entries []ports.CatalogEntry }

func (s stubSource) ListModels(context.Context) ([]ports.CatalogEntry, error) { return s.entries, nil }

// fakeRuntime wires the services over an in-memory store and a canned
// completion provider. The store survives across commands of one test.
type fakeRuntime struct {
	store    *storage.MemoryStore
	provider *testutils.MockCompletionProvider
	source   ports.CatalogSource
}

func newFakeRuntime(t *testing.T) *fakeRuntime {
	t.Helper()
	store := storage.NewMemoryStore()
	require.NoError(t, store.Upsert(context.Background(), []domain.Model{
		{ID: "gpt", Slug: "openai/gpt-4o", Name: "GPT-4o", Provider: "OpenAI", Enabled: true},
		{ID: "claude", Slug: "anthropic/claude-3-sonnet", Name: "Claude 3 Sonnet", Provider: "Anthropic", Enabled: true},
		{ID: "gemini", Slug: "google/gemini-pro-1.5", Name: "Gemini Pro 1.5", Provider: "Google", Enabled: false},
	}))
	return &fakeRuntime{
		store:    store,
		provider: testutils.NewMockCompletionProvider(),
		source:   stubSource{entries: []ports.CatalogEntry{{Slug: "mistralai/mistral-large"}}},
	}
}

func (f *fakeRuntime) build(_ context.Context, cfg *application.Config, logger *slog.Logger, _ bool) (*runtime, error) {
	return &runtime{
		catalog: application.NewCatalogService(f.source, f.store, application.WithRecommended(nil), application.WithCatalogLogger(logger)),
		submissions: application.NewSubmissionService(f.store, f.provider, f.store,
			application.WithTimeout(cfg.Submission.Timeout),
			application.WithLogger(logger),
		),
		gatherer: prometheus.NewRegistry(),
	}, nil
}

func run(t *testing.T, f *fakeRuntime, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CONSENSUS_CONFIG", "")

	cmd := newRootCmd(f.build)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, newFakeRuntime(t), "version")
	require.NoError(t, err)
	assert.Equal(t, "consensus dev\n", out)
}

func TestAsk(t *testing.T) {
	f := newFakeRuntime(t)
	f.provider.Answer("openai/gpt-4o", "Paris").Answer("anthropic/claude-3-sonnet", "paris.")

	out, err := run(t, f, "ask", "What is the capital", "of France?", "-m", "openai/gpt-4o", "-m", "claude")

	require.NoError(t, err)
	assert.Contains(t, out, "What is the capital of France?")
	assert.Contains(t, out, "paris")
	assert.Contains(t, out, "100.0%")
	assert.Contains(t, out, "Claude 3 Sonnet, GPT-4o")
	assert.Equal(t, 2, f.provider.CallCount())
}

func TestAsk_DefaultsToEnabledModels(t *testing.T) {
	f := newFakeRuntime(t)
	f.provider.Answer("openai/gpt-4o", "Paris").Fail("anthropic/claude-3-sonnet", errors.New("upstream 500"))

	out, err := run(t, f, "ask", "q", "--json")

	require.NoError(t, err)
	var sub domain.Submission
	require.NoError(t, json.Unmarshal([]byte(out), &sub))
	assert.Len(t, sub.Responses, 1)
	require.Len(t, sub.Failures, 1)
	assert.Equal(t, "claude", sub.Failures[0].ModelID)
	assert.Equal(t, 2, f.provider.CallCount(), "disabled models are not asked by default")
}

func TestAsk_Errors(t *testing.T) {
	t.Run("unknown model", func(t *testing.T) {
		_, err := run(t, newFakeRuntime(t), "ask", "q", "-m", "openai/gpt-4")

		var unknown *application.UnknownModelError
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, []string{"openai/gpt-4o"}, unknown.Suggestions)
		assert.Contains(t, renderError(err), "did you mean openai/gpt-4o?")
	})

	t.Run("every model fails", func(t *testing.T) {
		f := newFakeRuntime(t)
		f.provider.Fail("openai/gpt-4o", errors.New("boom"))

		_, err := run(t, f, "ask", "q", "-m", "gpt")

		assert.ErrorIs(t, err, domain.ErrAllModelsFailed)
		assert.Contains(t, renderError(err), "GPT-4o [upstream_http_error]: boom")
	})

	t.Run("missing prompt", func(t *testing.T) {
		_, err := run(t, newFakeRuntime(t), "ask")
		assert.Error(t, err)
	})

	t.Run("bad log level", func(t *testing.T) {
		_, err := run(t, newFakeRuntime(t), "--log-level", "loud", "models", "list")
		assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	})
}

func TestModels(t *testing.T) {
	f := newFakeRuntime(t)

	out, err := run(t, f, "models", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "anthropic/claude-3-sonnet")
	assert.Contains(t, out, "google/gemini-pro-1.5")

	_, err = run(t, f, "models", "disable", "openai/gpt-4o", "claude")
	require.NoError(t, err)
	_, err = run(t, f, "models", "enable", "gemini")
	require.NoError(t, err)

	out, err = run(t, f, "models", "list", "--json")
	require.NoError(t, err)
	var models []domain.Model
	require.NoError(t, json.Unmarshal([]byte(out), &models))
	enabled := map[string]bool{}
	for _, m := range models {
		enabled[m.ID] = m.Enabled
	}
	assert.Equal(t, map[string]bool{"gpt": false, "claude": false, "gemini": true}, enabled)

	out, err = run(t, f, "models", "sync", "--json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &models))
	require.Len(t, models, 1)
	assert.Equal(t, "mistralai/mistral-large", models[0].Slug)
	assert.Equal(t, "Mistral Large", models[0].Name)
}

func TestRenderSubmission(t *testing.T) {
	sub := &domain.Submission{
		Groups: domain.AnalyzeConsensus([]domain.ModelResponse{
			{SourceID: "openai/gpt-4o", Text: "Paris"},
			{SourceID: "x/unknown", Text: ""},
		}),
		Failures: []domain.ModelFailure{
			{ModelID: "m3", Kind: domain.FailureUpstreamTimeout, Message: "context deadline exceeded"},
		},
		Warnings: []domain.Warning{{Kind: domain.FailurePersistence, Message: "store responses: disk full"}},
	}

	out := renderSubmission("q", sub, []domain.Model{{Slug: "openai/gpt-4o", Name: "GPT-4o"}})

	assert.Contains(t, out, "paris")
	assert.Contains(t, out, "50.0%")
	assert.Contains(t, out, "GPT-4o")
	assert.Contains(t, out, "(empty)")
	assert.Contains(t, out, "x/unknown")
	assert.Contains(t, out, "m3")
	assert.Contains(t, out, "upstream_timeout")
	assert.Contains(t, out, "store responses: disk full")
}

func TestRenderModels(t *testing.T) {
	assert.Contains(t, renderModels(nil), "no models registered")

	out := renderModels([]domain.Model{{ID: "1", Slug: "openai/gpt-4o", Name: "GPT-4o", Provider: "OpenAI", Enabled: true}})
	assert.Contains(t, out, "SLUG")
	assert.Contains(t, out, "openai/gpt-4o")
	assert.Contains(t, out, "GPT-4o")
}

func TestRouterConfig(t *testing.T) {
	cfg := application.DefaultConfig()
	cfg.Direct.Google.APIKeyEnv = ""

	rc := routerConfig(&cfg, &testutils.RecordingMetrics{}, slog.Default())

	assert.Equal(t, defaultProvider, rc.DefaultProvider)
	require.Contains(t, rc.Providers, "openrouter")
	assert.Contains(t, rc.Providers, "anthropic")
	assert.NotContains(t, rc.Providers, "google", "a direct provider without a key variable is not configured")

	openrouter := rc.Providers["openrouter"]
	assert.Equal(t, "OPENROUTER_API_KEY", openrouter.EnvVar)
	assert.Equal(t, llm.DefaultProviders["openrouter"].Headers, openrouter.Headers, "built-in attribution headers apply by default")
	assert.Len(t, openrouter.Middleware, 3)
	assert.Equal(t, []string{"anthropic"}, rc.Providers["anthropic"].Vendors)
	assert.Equal(t, 10, rc.Request.MaxTokens)
	assert.Equal(t, cfg.Submission.Timeout, rc.DefaultTimeout)
}

func TestRouterConfig_Overrides(t *testing.T) {
	cfg := application.DefaultConfig()
	cfg.OpenRouter.APIKeyEnv = "MY_ROUTER_KEY"
	cfg.OpenRouter.BaseURL = "https://router.internal/api/v1"
	cfg.OpenRouter.Title = "Team Bench"
	cfg.Direct.Anthropic.BaseURL = "https://anthropic.internal"

	rc := routerConfig(&cfg, &testutils.RecordingMetrics{}, slog.Default())

	openrouter := rc.Providers["openrouter"]
	assert.Equal(t, "MY_ROUTER_KEY", openrouter.EnvVar)
	assert.Equal(t, "https://router.internal/api/v1", openrouter.BaseURL)
	assert.Equal(t, "Team Bench", openrouter.Headers["X-Title"])
	assert.Equal(t, llm.DefaultProviders["openrouter"].Headers["HTTP-Referer"], openrouter.Headers["HTTP-Referer"])
	assert.Equal(t, "LLM Consensus Benchmark", llm.DefaultProviders["openrouter"].Headers["X-Title"], "overrides leave the shared definition untouched")
	assert.Equal(t, "https://anthropic.internal", rc.Providers["anthropic"].BaseURL)
	assert.Equal(t, "anthropic", rc.Providers["anthropic"].Type)
}

func TestBuildRuntime_MemoryDefaults(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "")
	cfg := application.DefaultConfig()

	rt, err := buildRuntime(context.Background(), &cfg, slog.Default(), false)
	require.NoError(t, err)
	defer func() { assert.NoError(t, rt.Close(context.Background())) }()

	models, err := rt.catalog.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, models, len(cfg.Catalog.Recommended), "memory registry is seeded with recommended models")

	_, err = rt.catalog.Sync(context.Background())
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration, "sync needs an upstream key")

	_, err = buildRuntime(context.Background(), &cfg, slog.Default(), true)
	assert.Error(t, err, "completions need the default provider key")
}
