package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOpenAIProviderRequiresKey(t *testing.T) {
	_, err := NewOpenAIProvider(OpenAIConfig{Name: "groq", BaseURL: GroqBaseURL})
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestOpenAIProviderGenerate(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"category\":\"Health\"}"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{Name: "groq", BaseURL: srv.URL + "/", APIKey: "test-key"})
	require.NoError(t, err)
	assert.Equal(t, "groq", p.Name())
	assert.Equal(t, DefaultGroqModel, p.Model())

	req := NewRequest("you classify", "毎日10分走る")
	req.Temperature = 0.1
	req.MaxTokens = 200

	text, err := p.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, `{"category":"Health"}`, text)

	assert.Equal(t, DefaultGroqModel, got.Model)
	assert.Equal(t, 0.1, got.Temperature)
	assert.Equal(t, 200, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "毎日10分走る", got.Messages[1].Content)
}

func TestOpenAIProviderStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, APIKey: "k"})
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), NewRequest("", "hi"))
	require.Error(t, err)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
	assert.True(t, IsRetryable(err))
}

func TestOpenAIProviderNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, APIKey: "k"})
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), NewRequest("", "hi"))
	require.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestOpenAIProviderHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, APIKey: "k"})
	require.NoError(t, err)
	assert.NoError(t, p.HealthCheck(context.Background()))
}

func TestGatewayOverOpenAIProvider(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, APIKey: "k"})
	require.NoError(t, err)

	g := NewGateway(GatewayConfig{}, p)
	req := NewRequest("", "hi")
	req.MaxRetries = 1

	text, err := g.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, 2, calls)
}
