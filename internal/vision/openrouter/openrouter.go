// Package openrouter reaches OpenRouter's OpenAI-compatible chat completions
// API, the primary path to hosted vision models.
package openrouter

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mealmetrics/mealmetrics/internal/imageprep"
	"github.com/mealmetrics/mealmetrics/internal/vision"
)

const defaultBaseURL = "https://openrouter.ai/api/v1"

// Generation parameters are tuned toward low-variance output; the recoverer
// downstream copes better with terse JSON than with creative prose.
const (
	maxTokens   = 1000
	temperature = 0.3
)

type Client struct {
	api *openai.Client
}

// NewClient creates an OpenRouter client. baseURL overrides the public
// endpoint, which tests use to point at a local server.
func NewClient(apiKey, baseURL string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	cfg.BaseURL = baseURL
	return &Client{api: openai.NewClientWithConfig(cfg)}
}

func (c *Client) Generate(ctx context.Context, model string, payload *imageprep.Payload, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: prompt,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL: fmt.Sprintf("data:%s;base64,%s", payload.MimeType, payload.Base64()),
						},
					},
				},
			},
		},
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", normalizeError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &vision.RequestError{StatusCode: 502, Body: "no choices in completion response"}
	}
	return resp.Choices[0].Message.Content, nil
}

// normalizeError maps go-openai failures onto *vision.RequestError so the
// gateway can classify them. Transport errors pass through untouched.
// go-openai's error types carry no response headers, so RetryAfter stays
// zero and 429s fall back to the gateway's own backoff.
func normalizeError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &vision.RequestError{StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &vision.RequestError{StatusCode: reqErr.HTTPStatusCode, Body: reqErr.Error()}
	}
	return err
}
