package claude

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

const (
	defaultBaseURL   = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"
	defaultSystem    = "You are a disciplined short-term trader. Reply with a single JSON object and nothing else."
)

// Oracle calls the Anthropic Messages API.
type Oracle struct {
	client      *api.Client
	system      string
	maxTokens   int
	temperature float32
}

var _ interfaces.Oracle = (*Oracle)(nil)

// New builds a Claude oracle. The API key is sent as a header and never logged.
func New(cfg *store.Config, apiKey string) (*Oracle, error) {
	if apiKey == "" {
		return nil, errors.New("CLAUDE_API_KEY missing")
	}
	base := cfg.LLM.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	system := cfg.LLM.System
	if system == "" {
		system = defaultSystem
	}
	return &Oracle{
		client: api.NewClient(
			api.WithBaseURL(strings.TrimRight(base, "/")),
			api.WithTimeout(time.Duration(cfg.LLM.TimeoutSeconds)*time.Second),
			api.WithHeader("x-api-key", apiKey),
			api.WithHeader("anthropic-version", anthropicVersion),
			api.WithLogging(true),
		),
		system:      system,
		maxTokens:   cfg.LLM.MaxTokens,
		temperature: cfg.LLM.Temperature,
	}, nil
}

func (o *Oracle) Complete(ctx context.Context, prompt, model string) (string, error) {
	ctx, span := trace.StartSpan(ctx, "claude-api-call")
	defer span.End()

	body := map[string]any{
		"model":       model,
		"system":      o.system,
		"max_tokens":  o.maxTokens,
		"temperature": o.temperature,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}

	resp, err := o.client.PostJSONWithRetry(ctx, "/v1/messages", body, nil, nil)
	if err != nil {
		return "", fmt.Errorf("claude: %w", err)
	}
	return extractText(resp.Body)
}

// extractText joins every text block of a messages response.
func extractText(raw []byte) (string, error) {
	if msg := gjson.GetBytes(raw, "error.message"); msg.Exists() {
		return "", fmt.Errorf("claude: %s", msg.String())
	}

	var parts []string
	gjson.GetBytes(raw, "content").ForEach(func(_, block gjson.Result) bool {
		if block.Get("type").String() == "text" {
			parts = append(parts, block.Get("text").String())
		}
		return true
	})
	text := strings.TrimSpace(strings.Join(parts, ""))
	if text == "" {
		return "", errors.New("claude: empty response")
	}
	return text, nil
}
