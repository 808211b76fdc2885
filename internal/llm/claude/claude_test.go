package claude

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deriv-signal-bot/internal/store"
)

func TestCompleteJoinsTextBlocks(t *testing.T) {
	var body map[string]any
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"{\"signal\":\"BUY\","},{"type":"tool_use","id":"x"},{"type":"text","text":"\"confidence\":70}"}]}`))
	}))
	defer srv.Close()

	cfg := &store.Config{}
	cfg.LLM.BaseURL = srv.URL + "/"
	cfg.LLM.MaxTokens = 300

	o, err := New(cfg, "c-key")
	require.NoError(t, err)
	text, err := o.Complete(context.Background(), "prompt", "claude-3-5-haiku-latest")
	require.NoError(t, err)
	assert.Equal(t, `{"signal":"BUY","confidence":70}`, text)

	assert.Equal(t, "c-key", headers.Get("x-api-key"))
	assert.Equal(t, anthropicVersion, headers.Get("anthropic-version"))
	assert.Equal(t, "claude-3-5-haiku-latest", body["model"])
	assert.Equal(t, defaultSystem, body["system"])
	assert.EqualValues(t, 300, body["max_tokens"])
}

func TestExtractTextErrors(t *testing.T) {
	_, err := extractText([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
	assert.EqualError(t, err, "claude: Overloaded")

	_, err = extractText([]byte(`{"content":[]}`))
	assert.EqualError(t, err, "claude: empty response")
}
