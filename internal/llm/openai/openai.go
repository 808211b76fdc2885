package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"deriv-signal-bot/internal/api"
	"deriv-signal-bot/internal/interfaces"
	"deriv-signal-bot/internal/store"
	"deriv-signal-bot/internal/trace"
)

const defaultBaseURL = "https://api.openai.com"

type Oracle struct {
	client      *api.Client
	system      string
	maxTokens   int
	temperature float32
}

var _ interfaces.Oracle = (*Oracle)(nil)

func New(cfg *store.Config, apiKey string) (*Oracle, error) {
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY missing")
	}
	base := cfg.LLM.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	return &Oracle{
		client: api.NewClient(
			api.WithBaseURL(strings.TrimRight(base, "/")),
			api.WithTimeout(time.Duration(cfg.LLM.TimeoutSeconds)*time.Second),
			api.WithHeader("Authorization", "Bearer "+apiKey),
			api.WithLogging(true),
		),
		system:      cfg.LLM.System,
		maxTokens:   cfg.LLM.MaxTokens,
		temperature: cfg.LLM.Temperature,
	}, nil
}

func (o *Oracle) Complete(ctx context.Context, prompt, model string) (string, error) {
	ctx, span := trace.StartSpan(ctx, "openai-api-call")
	defer span.End()

	messages := make([]map[string]string, 0, 2)
	if o.system != "" {
		messages = append(messages, map[string]string{"role": "system", "content": o.system})
	}
	messages = append(messages, map[string]string{"role": "user", "content": prompt})

	body := map[string]any{
		"model":           model,
		"messages":        messages,
		"temperature":     o.temperature,
		"max_tokens":      o.maxTokens,
		"response_format": map[string]string{"type": "json_object"},
	}

	resp, err := o.client.PostJSONWithRetry(ctx, "/v1/chat/completions", body, nil, nil)
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}

	choice := gjson.GetBytes(resp.Body, "choices.0.message.content")
	if !choice.Exists() {
		return "", errors.New("openai: no choices")
	}
	out := strings.TrimSpace(choice.String())
	if out == "" {
		return "", errors.New("openai: empty response")
	}
	return out, nil
}
