package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/leofalp/taxassist/internal/utils"
	"github.com/leofalp/taxassist/providers/ai"
	"github.com/leofalp/taxassist/providers/observability"
)

const (
	defaultBaseURL          = "https://api.openai.com/v1"
	defaultModel            = "gpt-4o-mini"
	chatCompletionsEndpoint = "/chat/completions"

	// GroqBaseURL is Groq's OpenAI-compatible endpoint.
	GroqBaseURL = "https://api.groq.com/openai/v1"
	// CohereBaseURL is Cohere's OpenAI-compatible endpoint.
	CohereBaseURL = "https://api.cohere.ai/compatibility/v1"
)

// ErrNoChoices is returned when the API answers 2xx without any completion.
var ErrNoChoices = errors.New("openai: no choices in response")

// OpenAIProvider implements ai.Provider for OpenAI-compatible chat completions.
type OpenAIProvider struct {
	name    string
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

var _ ai.Provider = (*OpenAIProvider)(nil)

// New creates a provider for api.openai.com.
// Environment variables:
//   - OPENAI_API_KEY: API key for authentication
//   - OPENAI_API_BASE_URL: Base URL for API (optional)
func New() *OpenAIProvider {
	baseURL := os.Getenv("OPENAI_API_BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &OpenAIProvider{
		name:    "openai",
		apiKey:  os.Getenv("OPENAI_API_KEY"),
		baseURL: baseURL,
		model:   defaultModel,
		client:  &http.Client{},
	}
}

// NewGroq creates a provider for Groq, keyed by GROQ_API_KEY.
func NewGroq() *OpenAIProvider {
	return &OpenAIProvider{
		name:    "groq",
		apiKey:  os.Getenv("GROQ_API_KEY"),
		baseURL: GroqBaseURL,
		model:   "llama-3.3-70b-versatile",
		client:  &http.Client{},
	}
}

// NewCohere creates a provider for Cohere's compatibility API, keyed by
// COHERE_API_KEY.
func NewCohere() *OpenAIProvider {
	return &OpenAIProvider{
		name:    "cohere",
		apiKey:  os.Getenv("COHERE_API_KEY"),
		baseURL: CohereBaseURL,
		model:   "command-r-plus",
		client:  &http.Client{},
	}
}

// WithAPIKey sets the API key for the provider.
func (p *OpenAIProvider) WithAPIKey(apiKey string) ai.Provider {
	p.apiKey = apiKey
	return p
}

// WithBaseURL sets the base URL for the API.
func (p *OpenAIProvider) WithBaseURL(baseURL string) ai.Provider {
	p.baseURL = baseURL
	return p
}

// WithHttpClient sets a custom HTTP client.
func (p *OpenAIProvider) WithHttpClient(httpClient *http.Client) ai.Provider {
	p.client = httpClient
	return p
}

// WithModel sets the model used when a request does not name one.
func (p *OpenAIProvider) WithModel(model string) *OpenAIProvider {
	p.model = model
	return p
}

// SendMessage implements the ai.Provider interface.
func (p *OpenAIProvider) SendMessage(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
	span := observability.SpanFromContext(ctx)

	model := request.Model
	if model == "" {
		model = p.model
	}

	if span != nil {
		span.AddEvent(observability.EventLLMRequestStart,
			observability.String(observability.AttrLLMProvider, p.name),
			observability.String(observability.AttrLLMEndpoint, p.baseURL),
			observability.String(observability.AttrLLMModel, model),
		)
		defer span.AddEvent(observability.EventLLMRequestEnd)
	}

	if p.apiKey == "" {
		return nil, fmt.Errorf("%s: API key is not set", p.name)
	}

	httpResponse, resp, err := utils.DoPostSync[chatCompletionResponse](
		ctx,
		p.client,
		p.baseURL+chatCompletionsEndpoint,
		p.apiKey,
		requestFromGeneric(request, model),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.name, err)
	}

	if resp == nil {
		return nil, fmt.Errorf("%s: empty response: %s", p.name, httpResponse.Status)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s: %w", p.name, ErrNoChoices)
	}

	result := responseToGeneric(*resp)
	if span != nil {
		span.SetAttributes(
			observability.String(observability.AttrLLMResponseID, result.Id),
			observability.String(observability.AttrLLMFinishReason, result.FinishReason),
		)
		if result.Usage != nil {
			span.SetAttributes(observability.Int(observability.AttrLLMTokensTotal, result.Usage.TotalTokens))
		}
	}

	return result, nil
}

// IsStopMessage reports whether the given chat response should be treated as a stop/end signal.
func (p *OpenAIProvider) IsStopMessage(message *ai.ChatResponse) bool {
	if message == nil {
		return true
	}
	switch message.FinishReason {
	case "stop", "length", "content_filter":
		return true
	}
	return message.Content == ""
}
