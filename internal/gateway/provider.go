package gateway

import (
	"context"
	"errors"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

var ErrEmptyCompletion = errors.New("upstream returned no choices")

// Result is one upstream completion with its measured token cost.
type Result struct {
	Text        string
	TotalTokens int64
}

// Provider calls the upstream generative-AI service with an owner's
// decrypted master credential. How the upstream call is formed or billed
// is the provider's concern; the gateway only consumes the measured cost.
type Provider interface {
	// EstimateTokens approximates the cost of a prompt before the call.
	// The estimate only short-circuits obviously over-budget requests;
	// admission is decided against the measured cost at commit time.
	EstimateTokens(ctx context.Context, prompt string) (int64, error)

	// Generate performs the upstream call using apiKey and returns the
	// completion together with the actual token cost reported by the
	// provider.
	Generate(ctx context.Context, apiKey, prompt string) (*Result, error)
}

// OpenAIProvider talks to an OpenAI-compatible completion endpoint.
type OpenAIProvider struct {
	baseURL string
	model   string
}

func NewOpenAIProvider(baseURL, model string) *OpenAIProvider {
	return &OpenAIProvider{baseURL: baseURL, model: model}
}

// EstimateTokens uses the usual ~4-characters-per-token approximation.
// OpenAI-compatible endpoints expose no count-tokens call, and the
// estimate is advisory only.
func (p *OpenAIProvider) EstimateTokens(_ context.Context, prompt string) (int64, error) {
	return int64(len(prompt)/4) + 1, nil
}

// Generate performs one chat completion. The client is built per call:
// each request runs under a different owner's credential.
func (p *OpenAIProvider) Generate(ctx context.Context, apiKey, prompt string) (*Result, error) {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if p.baseURL != "" {
		opts = append(opts, option.WithBaseURL(p.baseURL))
	}
	client := openai.NewClient(opts...)

	completion, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: openai.ChatModel(p.model),
	})
	if err != nil {
		return nil, err
	}

	if len(completion.Choices) == 0 {
		return nil, ErrEmptyCompletion
	}

	return &Result{
		Text:        completion.Choices[0].Message.Content,
		TotalTokens: completion.Usage.TotalTokens,
	}, nil
}
