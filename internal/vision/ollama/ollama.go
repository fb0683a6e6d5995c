// Package ollama reaches a local Ollama instance, the last-ranked fallback
// when no hosted model is reachable.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/mealmetrics/mealmetrics/internal/imageprep"
	"github.com/mealmetrics/mealmetrics/internal/vision"
)

const temperature = 0.3

type Client struct {
	host   string
	client *http.Client
}

func NewClient(host string) *Client {
	return &Client{
		host:   host,
		client: &http.Client{},
	}
}

func (c *Client) Generate(ctx context.Context, model string, payload *imageprep.Payload, prompt string) (string, error) {
	reqBody := map[string]interface{}{
		"model":  model,
		"prompt": prompt,
		"images": []string{payload.Base64()},
		"stream": false,
		"options": map[string]interface{}{
			"temperature": temperature,
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &vision.RequestError{
			StatusCode: resp.StatusCode,
			RetryAfter: vision.ParseRetryAfter(resp.Header.Get("Retry-After")),
			Body:       string(bytes.TrimSpace(errBody)),
		}
	}

	var respBody struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&respBody); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return respBody.Response, nil
}
