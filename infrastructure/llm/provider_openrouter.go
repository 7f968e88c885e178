package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ahrav/go-consensus/internal/ports"
)

// OpenRouter provider constants.
const (
	// OpenRouterBaseURL is the OpenAI-compatible endpoint of OpenRouter.
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
	// OpenRouterDefaultModel is used when neither the config nor the request
	// names a model.
	OpenRouterDefaultModel = "openai/gpt-4o"
)

func init() {
	RegisterProviderFactory("openrouter", newOpenRouterProvider)
}

// openRouterProvider implements the CoreLLM interface for OpenRouter's chat
// completions API. OpenRouter speaks the OpenAI wire protocol, so requests are
// built with the go-openai client pointed at the OpenRouter base URL. Model
// names are full provider/name slugs.
type openRouterProvider struct {
	BaseProvider
	client          *openai.Client
	errorClassifier *ErrorClassifier
}

// newOpenRouterProvider creates a new OpenRouter provider instance.
func newOpenRouterProvider(config ClientConfig) (CoreLLM, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	model := config.Model
	if model == "" {
		model = OpenRouterDefaultModel
	}

	baseURL, err := openRouterBaseURL(config.BaseURL)
	if err != nil {
		return nil, err
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	clientConfig.BaseURL = baseURL
	clientConfig.HTTPClient = newHTTPClient(config)

	return &openRouterProvider{
		BaseProvider:    BaseProvider{model: model},
		client:          openai.NewClientWithConfig(clientConfig),
		errorClassifier: &ErrorClassifier{Provider: "openrouter"},
	}, nil
}

// DoRequest sends a chat completion request to OpenRouter and returns the
// first choice together with the reported token usage.
func (p *openRouterProvider) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	options := ParseRequestOptions(opts, p.GetModel())

	req := p.buildChatCompletionRequest(prompt, options)
	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", 0, 0, p.handleError(err)
	}

	if len(resp.Choices) == 0 {
		return "", 0, 0, p.errorClassifier.MalformedResponse(ErrNoResponseChoice)
	}

	return resp.Choices[0].Message.Content, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, nil
}

// buildChatCompletionRequest creates an openai.ChatCompletionRequest from a prompt and options.
func (p *openRouterProvider) buildChatCompletionRequest(prompt string, options RequestOptions) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if options.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: options.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	req := openai.ChatCompletionRequest{
		Model:     options.Model,
		Messages:  messages,
		MaxTokens: options.MaxTokens,
	}

	if options.Temperature != nil {
		req.Temperature = float32(ClampFloat64(*options.Temperature, MinTemperature, MaxTemperature))
	}

	return req
}

// handleError classifies and wraps errors from the OpenRouter API.
// It distinguishes between context-related errors, API errors, transport
// errors and undecodable bodies.
func (p *openRouterProvider) handleError(err error) error {
	if isContextError(err) {
		return p.errorClassifier.ClassifyContextError(err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		message := apiErr.Message
		if message == "" {
			message = "unknown error"
		}
		return p.errorClassifier.ClassifyHTTPError(apiErr.HTTPStatusCode, message, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return p.errorClassifier.ClassifyHTTPError(reqErr.HTTPStatusCode, "request failed", err)
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return p.errorClassifier.MalformedResponse(err)
	}

	return NewProviderError("openrouter", ErrorTypeNetwork, 0, "request failed", err)
}

// OpenRouterCatalog lists the models OpenRouter can route to. It implements
// ports.CatalogSource.
type OpenRouterCatalog struct {
	baseURL         string
	apiKey          string
	httpClient      *http.Client
	errorClassifier *ErrorClassifier
}

var _ ports.CatalogSource = (*OpenRouterCatalog)(nil)

// NewOpenRouterCatalog creates a catalog source sharing the provider's
// endpoint, credentials and headers.
func NewOpenRouterCatalog(config ClientConfig) (*OpenRouterCatalog, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	baseURL, err := openRouterBaseURL(config.BaseURL)
	if err != nil {
		return nil, err
	}

	return &OpenRouterCatalog{
		baseURL:         baseURL,
		apiKey:          config.APIKey,
		httpClient:      newHTTPClient(config),
		errorClassifier: &ErrorClassifier{Provider: "openrouter"},
	}, nil
}

// openRouterModel mirrors one entry of GET /models. go-openai's Model type
// omits name and context_length, so the listing is decoded here.
type openRouterModel struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ContextLength int    `json:"context_length"`
}

// ListModels fetches the upstream model list in upstream order.
func (c *OpenRouterCatalog) ListModels(ctx context.Context) ([]ports.CatalogEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("build models request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isContextError(err) {
			return nil, c.errorClassifier.ClassifyContextError(err)
		}
		return nil, NewProviderError("openrouter", ErrorTypeNetwork, 0, "list models", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.errorClassifier.ClassifyHTTPError(resp.StatusCode, "list models: "+resp.Status, nil)
	}

	var body struct {
		Data []openRouterModel `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, c.errorClassifier.MalformedResponse(err)
	}

	entries := make([]ports.CatalogEntry, 0, len(body.Data))
	for _, m := range body.Data {
		if m.ID == "" {
			continue
		}
		entries = append(entries, ports.CatalogEntry{
			Slug:          m.ID,
			Name:          m.Name,
			ContextLength: m.ContextLength,
		})
	}
	return entries, nil
}

func openRouterBaseURL(configured string) (string, error) {
	if configured == "" {
		return OpenRouterBaseURL, nil
	}
	validated, err := ValidateBaseURL(configured)
	if err != nil {
		return "", fmt.Errorf("invalid BaseURL: %w", err)
	}
	return validated, nil
}

// newHTTPClient builds the HTTP client shared by OpenRouter requests. It
// applies the configured timeout and attribution headers.
func newHTTPClient(config ClientConfig) *http.Client {
	client := &http.Client{Timeout: ValidateTimeout(config.Timeout)}
	if len(config.Headers) > 0 {
		client.Transport = &headerTransport{
			base:    http.DefaultTransport,
			headers: config.Headers,
		}
	}
	return client
}

// headerTransport adds fixed headers to every request.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

// RoundTrip implements http.RoundTripper.
func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}
