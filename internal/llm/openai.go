package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// GroqBaseURL is the OpenAI-compatible endpoint of Groq
	GroqBaseURL = "https://api.groq.com/openai/v1"
	// OpenAIBaseURL is the default OpenAI endpoint
	OpenAIBaseURL = "https://api.openai.com/v1"
	// DefaultGroqModel is the model the challenge app was tuned against
	DefaultGroqModel = "llama-3.1-8b-instant"
)

// OpenAIConfig configures an OpenAI-compatible chat completions provider
type OpenAIConfig struct {
	Name       string
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

// OpenAIProvider calls any OpenAI-compatible /chat/completions endpoint
// (OpenAI, Groq, local gateways).
type OpenAIProvider struct {
	BaseProvider
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewOpenAIProvider creates a provider for an OpenAI-compatible API
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%s: missing API key: %w", cfg.Name, ErrNotConfigured)
	}
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = OpenAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGroqModel
	}
	if cfg.HTTPClient == nil {
		// Per-attempt deadlines come from the gateway's context
		cfg.HTTPClient = &http.Client{Timeout: 2 * time.Minute}
	}

	return &OpenAIProvider{
		BaseProvider: BaseProvider{name: cfg.Name, model: cfg.Model},
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		httpClient:   cfg.HTTPClient,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Generate performs one chat completion call
func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (string, error) {
	body := chatRequest{
		Model:       p.model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}

	var out chatResponse
	if err := p.do(ctx, http.MethodPost, "/chat/completions", body, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%s: %w", p.name, ErrEmptyCompletion)
	}
	return out.Choices[0].Message.Content, nil
}

// HealthCheck lists models, which needs a valid key and a reachable API
func (p *OpenAIProvider) HealthCheck(ctx context.Context) error {
	return p.do(ctx, http.MethodGet, "/models", nil, nil)
}

func (p *OpenAIProvider) do(ctx context.Context, method, path string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", p.name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", p.name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Provider: p.name, StatusCode: resp.StatusCode, Body: string(raw)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", p.name, err)
	}
	return nil
}
