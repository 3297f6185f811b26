package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint.
// Outbound calls are rate limited so a run with many agents does not
// trip provider quotas.
type OpenAIClient struct {
	client  *resty.Client
	limiter *rate.Limiter
	model   string
}

type OpenAIConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	Timeout        time.Duration
	RequestsPerMin int
}

func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetTimeout(cfg.Timeout)
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")

	rpm := cfg.RequestsPerMin
	if rpm <= 0 {
		rpm = 60
	}
	return &OpenAIClient{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
		model:   cfg.Model,
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", &ProviderError{Type: "rate_limit", Message: "limiter wait", Cause: err}
	}

	var body chatResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(chatRequest{
			Model:    c.model,
			Messages: []chatMessage{{Role: "user", Content: prompt}},
		}).
		SetResult(&body).
		SetError(&body).
		Post("/chat/completions")
	if err != nil {
		return "", &ProviderError{Type: "network", Message: "chat completion", Cause: err}
	}
	if resp.IsError() {
		msg := fmt.Sprintf("status %d", resp.StatusCode())
		if body.Error != nil {
			msg = body.Error.Message
		}
		return "", &ProviderError{Type: "provider_error", Message: msg}
	}
	if len(body.Choices) == 0 || body.Choices[0].Message.Content == "" {
		return "", &ProviderError{Type: "empty", Message: "no completion choices"}
	}
	return body.Choices[0].Message.Content, nil
}
