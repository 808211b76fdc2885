package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"deriv-signal-bot/internal/api"
	"deriv-signal-bot/internal/interfaces"
	"deriv-signal-bot/internal/store"
	"deriv-signal-bot/internal/trace"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"

// Oracle calls the Gemini generateContent endpoint.
type Oracle struct {
	client      *api.Client
	system      string
	maxTokens   int
	temperature float32
}

var _ interfaces.Oracle = (*Oracle)(nil)

func New(cfg *store.Config, apiKey string) (*Oracle, error) {
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY missing")
	}
	base := cfg.LLM.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	return &Oracle{
		client: api.NewClient(
			api.WithBaseURL(strings.TrimRight(base, "/")),
			api.WithTimeout(time.Duration(cfg.LLM.TimeoutSeconds)*time.Second),
			api.WithHeader("x-goog-api-key", apiKey),
			api.WithLogging(true),
		),
		system:      cfg.LLM.System,
		maxTokens:   cfg.LLM.MaxTokens,
		temperature: cfg.LLM.Temperature,
	}, nil
}

func (o *Oracle) Complete(ctx context.Context, prompt, model string) (string, error) {
	ctx, span := trace.StartSpan(ctx, "gemini-api-call")
	defer span.End()

	body := map[string]any{
		"contents": []map[string]any{
			{"role": "user", "parts": []map[string]string{{"text": prompt}}},
		},
		"generationConfig": map[string]any{
			"temperature":      o.temperature,
			"maxOutputTokens":  o.maxTokens,
			"responseMimeType": "application/json",
		},
	}
	if o.system != "" {
		body["systemInstruction"] = map[string]any{
			"parts": []map[string]string{{"text": o.system}},
		}
	}

	path := "/v1beta/models/" + url.PathEscape(model) + ":generateContent"
	resp, err := o.client.PostJSONWithRetry(ctx, path, body, nil, nil)
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}
	return extractText(resp.Body)
}

func extractText(raw []byte) (string, error) {
	if reason := gjson.GetBytes(raw, "promptFeedback.blockReason"); reason.Exists() {
		return "", fmt.Errorf("gemini: prompt blocked: %s", reason.String())
	}

	var parts []string
	for _, p := range gjson.GetBytes(raw, "candidates.0.content.parts.#.text").Array() {
		parts = append(parts, p.String())
	}
	text := strings.TrimSpace(strings.Join(parts, ""))
	if text == "" {
		finish := gjson.GetBytes(raw, "candidates.0.finishReason").String()
		return "", fmt.Errorf("gemini: empty response (finish reason %q)", finish)
	}
	return text, nil
}
