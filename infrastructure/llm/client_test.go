package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		config   ClientConfig
		wantErr  string
	}{
		{
			name:     "missing api key",
			provider: "openrouter",
			config:   ClientConfig{},
			wantErr:  ErrEmptyAPIKey.Error(),
		},
		{
			name:     "unknown provider",
			provider: "bedrock",
			config:   ClientConfig{APIKey: "k"},
			wantErr:  "unknown provider: bedrock",
		},
		{
			name:     "invalid base url",
			provider: "openrouter",
			config:   ClientConfig{APIKey: "k", BaseURL: "ftp://example.com"},
			wantErr:  "URL scheme must be http or https",
		},
		{
			name:     "openrouter",
			provider: "openrouter",
			config:   ClientConfig{APIKey: "k"},
		},
		{
			name:     "anthropic",
			provider: "anthropic",
			config:   ClientConfig{APIKey: "k"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.provider, tt.config)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.provider, client.Provider())
		})
	}
}

func TestClient_Complete(t *testing.T) {
	t.Run("sends request defaults and trims text", func(t *testing.T) {
		mock := NewMockCoreLLM()
		mock.Response = "  Paris \n"
		client := newClientWithCore("openrouter", mock, ClientConfig{})

		completion, err := client.Complete(context.Background(), "openai/gpt-4o", "Capital of France?")

		require.NoError(t, err)
		assert.Equal(t, "Paris", completion.Text)
		assert.Equal(t, 10, completion.TokensIn)
		assert.Equal(t, 20, completion.TokensOut)
		assert.GreaterOrEqual(t, completion.Elapsed.Nanoseconds(), int64(0))

		opts := mock.LastOpts()
		defaults := DefaultRequest()
		assert.Equal(t, "openai/gpt-4o", opts["model"])
		assert.Equal(t, defaults.System, opts["system"])
		assert.Equal(t, 10, opts["max_tokens"])
		assert.Equal(t, 0.7, opts["temperature"])
	})

	t.Run("custom request defaults", func(t *testing.T) {
		mock := NewMockCoreLLM()
		client := newClientWithCore("openrouter", mock, ClientConfig{
			Request: RequestDefaults{System: "Answer in French.", MaxTokens: 5, Temperature: 0.2},
		})

		_, err := client.Complete(context.Background(), "m/x", "hi")

		require.NoError(t, err)
		assert.Equal(t, "Answer in French.", mock.LastOpts()["system"])
		assert.Equal(t, 5, mock.LastOpts()["max_tokens"])
	})

	t.Run("blank text is an empty completion", func(t *testing.T) {
		for _, response := range []string{"", " \t\n", "."} {
			mock := NewMockCoreLLM()
			mock.Response = response
			client := newClientWithCore("openrouter", mock, ClientConfig{})

			got, err := client.Complete(context.Background(), "m/x", "hi")

			require.NoError(t, err, "response %q", response)
			assert.Equal(t, strings.TrimSpace(response), got.Text)
		}
	})

	t.Run("provider error passes through", func(t *testing.T) {
		mock := NewMockCoreLLM()
		providerErr := NewProviderError("openrouter", ErrorTypeServerError, 502, "bad gateway", nil)
		mock.Error = providerErr
		client := newClientWithCore("openrouter", mock, ClientConfig{})

		_, err := client.Complete(context.Background(), "m/x", "hi")

		var target *ProviderError
		require.True(t, errors.As(err, &target))
		assert.Equal(t, 502, target.StatusCode)
	})
}

func TestClient_MiddlewareOrder(t *testing.T) {
	var order []string
	record := func(name string) Middleware {
		return func(next CoreLLM) CoreLLM {
			return &orderLLM{next: next, name: name, order: &order}
		}
	}

	mock := NewMockCoreLLM()
	client := newClientWithCore("openrouter", mock, ClientConfig{
		Middleware: []Middleware{record("outer"), record("inner")},
	})

	_, err := client.Complete(context.Background(), "m/x", "hi")

	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, order)
}

type orderLLM struct {
	next  CoreLLM
	name  string
	order *[]string
}

func (o *orderLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	*o.order = append(*o.order, o.name)
	return o.next.DoRequest(ctx, prompt, opts)
}

func (o *orderLLM) GetModel() string  { return o.next.GetModel() }
func (o *orderLLM) SetModel(m string) { o.next.SetModel(m) }

func TestParseRequestOptions(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		options := ParseRequestOptions(nil, "fallback")

		assert.Equal(t, DefaultMaxTokens, options.MaxTokens)
		assert.Equal(t, "fallback", options.Model)
		assert.Nil(t, options.Temperature)
		assert.Empty(t, options.System)
	})

	t.Run("invalid values fall back", func(t *testing.T) {
		options := ParseRequestOptions(map[string]any{
			"max_tokens":  -1,
			"model":       "",
			"temperature": 3.5,
		}, "fallback")

		assert.Equal(t, DefaultMaxTokens, options.MaxTokens)
		assert.Equal(t, "fallback", options.Model)
		assert.Nil(t, options.Temperature)
	})

	t.Run("valid values", func(t *testing.T) {
		options := ParseRequestOptions(map[string]any{
			"max_tokens":  25,
			"model":       "openai/gpt-4o",
			"temperature": 0.7,
			"system":      "be brief",
		}, "fallback")

		assert.Equal(t, 25, options.MaxTokens)
		assert.Equal(t, "openai/gpt-4o", options.Model)
		require.NotNil(t, options.Temperature)
		assert.Equal(t, 0.7, *options.Temperature)
		assert.Equal(t, "be brief", options.System)
	})
}

func TestSplitSlug(t *testing.T) {
	tests := []struct {
		slug       string
		wantVendor string
		wantName   string
		wantOK     bool
	}{
		{slug: "openai/gpt-4o", wantVendor: "openai", wantName: "gpt-4o", wantOK: true},
		{slug: "meta-llama/llama-3-70b-instruct", wantVendor: "meta-llama", wantName: "llama-3-70b-instruct", wantOK: true},
		{slug: "a/b/c", wantVendor: "a", wantName: "b/c", wantOK: true},
		{slug: "gpt-4o"},
		{slug: "/gpt-4o"},
		{slug: "openai/"},
	}

	for _, tt := range tests {
		t.Run(tt.slug, func(t *testing.T) {
			vendor, name, ok := SplitSlug(tt.slug)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantVendor, vendor)
			assert.Equal(t, tt.wantName, name)
		})
	}
}
