// Package anthropic reaches the Anthropic Messages API as a secondary
// backend in the ranked model list.
package anthropic

import (
	"context"
	"errors"
	"net/http"

	anthropicapi "github.com/liushuangls/go-anthropic/v2"

	"github.com/mealmetrics/mealmetrics/internal/imageprep"
	"github.com/mealmetrics/mealmetrics/internal/vision"
)

const maxTokens = 1000

var temperature float32 = 0.3

type Client struct {
	api *anthropicapi.Client
}

func NewClient(apiKey string, opts ...anthropicapi.ClientOption) *Client {
	return &Client{api: anthropicapi.NewClient(apiKey, opts...)}
}

func (c *Client) Generate(ctx context.Context, model string, payload *imageprep.Payload, prompt string) (string, error) {
	resp, err := c.api.CreateMessages(ctx, anthropicapi.MessagesRequest{
		Model:       anthropicapi.Model(model),
		MaxTokens:   maxTokens,
		Temperature: &temperature,
		Messages: []anthropicapi.Message{
			{
				Role: anthropicapi.RoleUser,
				Content: []anthropicapi.MessageContent{
					anthropicapi.NewImageMessageContent(
						anthropicapi.NewMessageContentSource(
							anthropicapi.MessagesContentSourceTypeBase64,
							payload.MimeType,
							payload.Bytes,
						),
					),
					anthropicapi.NewTextMessageContent(prompt),
				},
			},
		},
	})
	if err != nil {
		return "", normalizeError(err)
	}
	if len(resp.Content) == 0 {
		return "", &vision.RequestError{StatusCode: 502, Body: "no content blocks in messages response"}
	}
	return resp.Content[0].GetText(), nil
}

// normalizeError maps go-anthropic failures onto *vision.RequestError. The
// library reports typed API errors without status codes, so the error type
// is translated back to the HTTP status the gateway classifies on. Response
// headers are not surfaced either, so RetryAfter stays zero and 429s fall
// back to the gateway's own backoff.
func normalizeError(err error) error {
	var apiErr *anthropicapi.APIError
	if errors.As(err, &apiErr) {
		return &vision.RequestError{StatusCode: statusForType(apiErr.Type), Body: apiErr.Message}
	}
	var reqErr *anthropicapi.RequestError
	if errors.As(err, &reqErr) {
		return &vision.RequestError{StatusCode: reqErr.StatusCode, Body: reqErr.Error()}
	}
	return err
}

func statusForType(t anthropicapi.ErrType) int {
	switch t {
	case anthropicapi.ErrTypeAuthentication:
		return http.StatusUnauthorized
	case anthropicapi.ErrTypePermission:
		return http.StatusForbidden
	case anthropicapi.ErrTypeRateLimit:
		return http.StatusTooManyRequests
	case anthropicapi.ErrTypeInvalidRequest:
		return http.StatusBadRequest
	case anthropicapi.ErrTypeNotFound:
		return http.StatusNotFound
	default:
		// api_error / overloaded_error and anything unrecognized: treat as
		// a server-side transient.
		return http.StatusInternalServerError
	}
}
