package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jinford/nutrilog/internal/core/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const completionBody = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 0,
  "model": "gpt-4o-mini",
  "choices": [{"index": 0, "message": {"role": "assistant", "content": " 2 \n"}, "finish_reason": "stop"}],
  "usage": {"prompt_tokens": 10, "completion_tokens": 1, "total_tokens": 11}
}`

const rateLimitBody = `{"error": {"message": "rate limited", "type": "rate_limit_exceeded", "code": "rate_limit_exceeded"}}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient("test-key", WithBaseURL(srv.URL+"/"), withBackoff(time.Millisecond))
	require.NoError(t, err)
	return client
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient("")
	assert.ErrorIs(t, err, ErrAPIKeyNotSet)
}

func TestClient_GenerateCompletion(t *testing.T) {
	var captured map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionBody)
	})

	resp, err := client.GenerateCompletion(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{
			llm.SystemMessage("pick one"),
			llm.UserMessage("User searched for: \"milk\""),
		},
		Model:       "gpt-4.1-mini",
		Temperature: 0,
		MaxTokens:   8,
		ResponseSchema: &llm.ResponseSchema{
			Name:   "food_log",
			Schema: map[string]any{"type": "object"},
			Strict: true,
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "2", resp.Content)
	assert.Equal(t, 11, resp.TokensUsed)
	assert.Equal(t, "gpt-4o-mini", resp.Model)

	assert.Equal(t, "gpt-4.1-mini", captured["model"])
	assert.EqualValues(t, 8, captured["max_tokens"])

	messages, ok := captured["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "user", messages[1].(map[string]any)["role"])

	format, ok := captured["response_format"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "json_schema", format["type"])
	schema := format["json_schema"].(map[string]any)
	assert.Equal(t, "food_log", schema["name"])
	assert.Equal(t, true, schema["strict"])
}

func TestClient_DefaultModel(t *testing.T) {
	var model string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		model, _ = body["model"].(string)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionBody)
	})

	_, err := client.GenerateCompletion(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{llm.UserMessage("hi")},
	})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, model)
}

func TestClient_RetriesOnRateLimit(t *testing.T) {
	tests := []struct {
		name      string
		failures  int32
		wantErr   error
		wantCalls int32
	}{
		{
			name:      "1回目が429でも再試行で成功",
			failures:  1,
			wantCalls: 2,
		},
		{
			name:      "429が続くと最大リトライ超過",
			failures:  100,
			wantErr:   llm.ErrMaxRetriesExceeded,
			wantCalls: MaxRetries + 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				n := atomic.AddInt32(&calls, 1)
				w.Header().Set("Content-Type", "application/json")
				if n <= tt.failures {
					w.WriteHeader(http.StatusTooManyRequests)
					_, _ = io.WriteString(w, rateLimitBody)
					return
				}
				_, _ = io.WriteString(w, completionBody)
			})

			resp, err := client.GenerateCompletion(context.Background(), llm.CompletionRequest{
				Messages: []llm.Message{llm.UserMessage("hi")},
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "2", resp.Content)
			}
			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(&calls))
		})
	}
}

func TestClient_DoesNotRetryOtherErrors(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error": {"message": "bad request"}}`)
	})

	_, err := client.GenerateCompletion(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{llm.UserMessage("hi")},
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, llm.ErrMaxRetriesExceeded)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_EmptyChoices(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id": "x", "object": "chat.completion", "created": 0, "model": "m", "choices": []}`)
	})

	_, err := client.GenerateCompletion(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{llm.UserMessage("hi")},
	})
	assert.ErrorIs(t, err, llm.ErrEmptyCompletion)
}
