package ai

import (
	"context"
	"errors"
	"strings"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// GeminiBaseURL is Gemini's OpenAI-compatible endpoint.
const GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

// ErrNoChoices is returned when the model answers without any completion.
var ErrNoChoices = errors.New("text model returned no choices")

// Client wraps the official OpenAI SDK client and exposes the chat helper used by the app.
type Client struct {
	apiKey  string
	baseURL string
	sdk     openai.Client
}

// New constructs a new AI client. The apiKey is required.
// baseURL is optional (empty string uses the default OpenAI endpoint).
func New(apiKey, baseURL string, extra ...option.RequestOption) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("text provider api key is required")
	}
	// Retries are owned by the narrator so transient and permanent errors
	// are classified in one place.
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	opts = append(opts, extra...)
	sdk := openai.NewClient(opts...)
	return &Client{apiKey: apiKey, baseURL: baseURL, sdk: sdk}, nil
}

func (c *Client) APIKey() string  { return c.apiKey }
func (c *Client) BaseURL() string { return c.baseURL }

// GenerateText sends prompt as the only user message and returns the first choice.
func (c *Client) GenerateText(ctx context.Context, model, prompt string, temperature float64) (string, TokenUsage, error) {
	req := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(temperature),
	}
	res, err := c.sdk.Chat.Completions.New(ctx, req)
	if err != nil {
		return "", TokenUsage{}, err
	}
	if len(res.Choices) == 0 {
		return "", usageFromCompletion(res.Usage), ErrNoChoices
	}
	return strings.TrimSpace(res.Choices[0].Message.Content), usageFromCompletion(res.Usage), nil
}
