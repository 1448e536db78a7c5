package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/terra-clan/challenge-designer/internal/models"
)

// Client is a Go SDK for the challenge-designer API
type Client struct {
	baseURL    string
	httpClient *http.Client
	dialer     *websocket.Dialer
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new challenge-designer client
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		dialer: websocket.DefaultDialer,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError is a non-2xx answer from the service
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error %d: %s - %s", e.StatusCode, e.Code, e.Message)
}

// IsRateLimited reports whether err is a 429 answer
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}

// Validate checks whether text is a concrete challenge
func (c *Client) Validate(ctx context.Context, text string) (*models.ValidateResponse, error) {
	var out models.ValidateResponse
	if err := c.post(ctx, "/api/ai-validate", models.TextRequest{Text: text}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Classify assigns a category to text
func (c *Client) Classify(ctx context.Context, text string) (*models.ClassifyResponse, error) {
	var out models.ClassifyResponse
	if err := c.post(ctx, "/api/ai-classify", models.TextRequest{Text: text}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AssessDifficulty grades text into a difficulty level
func (c *Client) AssessDifficulty(ctx context.Context, text string) (*models.DifficultyResponse, error) {
	var out models.DifficultyResponse
	if err := c.post(ctx, "/api/ai-difficulty", models.TextRequest{Text: text}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Concretize restates text as a SMART goal
func (c *Client) Concretize(ctx context.Context, text string) (*models.ConcretizeResponse, error) {
	var out models.ConcretizeResponse
	if err := c.post(ctx, "/api/ai-concretize", models.TextRequest{Text: text}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Suggest returns a one-line minimal first step
func (c *Client) Suggest(ctx context.Context, challengeText string) (*models.SuggestionResponse, error) {
	var out models.SuggestionResponse
	if err := c.post(ctx, "/api/ai-suggestion", models.SuggestionRequest{ChallengeText: challengeText}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// InitialAction designs an initial action for a known category and level
func (c *Client) InitialAction(ctx context.Context, req models.InitialActionRequest) (*models.InitialActionResponse, error) {
	var out models.InitialActionResponse
	if err := c.post(ctx, "/api/ai-initial-action", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Coach asks for a one-line re-suggestion given the user's situation and fear
func (c *Client) Coach(ctx context.Context, req models.CoachRequest) (*models.CoachResponse, error) {
	var out models.CoachResponse
	if err := c.post(ctx, "/api/ai-coach", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Design runs the full design pipeline
func (c *Client) Design(ctx context.Context, req models.DesignRequest) (*models.ChallengeDesign, error) {
	var out models.ChallengeDesign
	if err := c.post(ctx, "/api/challenge/design", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type streamMessage struct {
	Type    string                  `json:"type"`
	Event   *models.StageEvent      `json:"event,omitempty"`
	Design  *models.ChallengeDesign `json:"design,omitempty"`
	Message string                  `json:"message,omitempty"`
}

// StreamDesign runs the design pipeline over the websocket stream, calling
// onStage for every stage transition before returning the final design.
func (c *Client) StreamDesign(ctx context.Context, req models.DesignRequest, onStage func(models.StageEvent)) (*models.ChallengeDesign, error) {
	u, err := url.Parse(c.baseURL + "/api/challenge/design/stream")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: "websocket upgrade failed"}
		}
		return nil, fmt.Errorf("failed to connect to design stream: %w", err)
	}
	defer conn.Close()

	// Closing the connection unblocks the read loop when ctx ends
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("failed to send design request: %w", err)
	}

	for {
		var msg streamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("design stream ended without a design: %w", err)
		}

		switch msg.Type {
		case "stage":
			if msg.Event != nil && onStage != nil {
				onStage(*msg.Event)
			}
		case "design":
			if msg.Design == nil {
				return nil, errors.New("design stream sent an empty design")
			}
			return msg.Design, nil
		case "error":
			return nil, &APIError{StatusCode: http.StatusBadRequest, Code: "stream_error", Message: msg.Message}
		}
	}
}

// Health checks if the service is healthy
func (c *Client) Health(ctx context.Context) error {
	_, err := c.doRequest(ctx, http.MethodGet, "/health", nil)
	return err
}

func (c *Client) post(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return err
	}

	if err := json.Unmarshal(resp, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// doRequest performs an HTTP request
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
		var payload struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(respBody, &payload) == nil && payload.Error != "" {
			apiErr.Code = payload.Error
			apiErr.Message = payload.Message
		}
		return nil, apiErr
	}

	return respBody, nil
}
