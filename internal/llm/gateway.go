package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	defaultTimeout = 20 * time.Second
	maxBackoff     = 5 * time.Second
)

// GatewayConfig holds the gateway's per-call policy
type GatewayConfig struct {
	// Timeout bounds every single provider attempt
	Timeout time.Duration
	// RetryBackoff is the pause before the first retry; it doubles per retry
	RetryBackoff time.Duration
}

// Gateway sends completion requests to a primary provider with bounded
// retries, then to each failover provider once. It holds no per-request state.
type Gateway struct {
	providers []Provider
	timeout   time.Duration
	backoff   time.Duration
}

// NewGateway creates a gateway. The first provider is primary; nil providers
// are skipped. A gateway with no providers fails every call with ErrUnavailable.
func NewGateway(cfg GatewayConfig, providers ...Provider) *Gateway {
	g := &Gateway{
		timeout: cfg.Timeout,
		backoff: cfg.RetryBackoff,
	}
	if g.timeout <= 0 {
		g.timeout = defaultTimeout
	}
	if g.backoff < 0 {
		g.backoff = 0
	}
	for _, p := range providers {
		if p != nil {
			g.providers = append(g.providers, p)
		}
	}
	return g
}

// Providers returns the provider names in call order
func (g *Gateway) Providers() []string {
	names := make([]string, 0, len(g.providers))
	for _, p := range g.providers {
		names = append(names, p.Name())
	}
	return names
}

// Complete returns the text produced for req. It never returns partial text:
// on failure the error wraps ErrUnavailable and the last provider error.
func (g *Gateway) Complete(ctx context.Context, req Request) (string, error) {
	if len(g.providers) == 0 {
		return "", fmt.Errorf("%w: no provider configured", ErrUnavailable)
	}

	var lastErr error
	for i, p := range g.providers {
		attempts := 1
		if i == 0 && req.MaxRetries > 0 {
			attempts += req.MaxRetries
		}

		text, err := g.try(ctx, p, req, attempts)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
		if i+1 < len(g.providers) {
			slog.Warn("completion provider failed, trying failover",
				"provider", p.Name(),
				"next", g.providers[i+1].Name(),
				"error", err,
			)
		}
	}

	return "", fmt.Errorf("%w: %w", ErrUnavailable, lastErr)
}

// try calls one provider up to attempts times, sequentially
func (g *Gateway) try(ctx context.Context, p Provider, req Request, attempts int) (string, error) {
	backoff := g.backoff
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		text, err := g.attempt(ctx, p, req)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if !IsRetryable(err) || attempt == attempts {
			break
		}

		slog.Warn("completion request retrying",
			"provider", p.Name(),
			"attempt", attempt,
			"max_attempts", attempts,
			"sleep", backoff.String(),
			"error", err,
		)

		if err := sleep(ctx, backoff); err != nil {
			return "", err
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}

	return "", lastErr
}

func (g *Gateway) attempt(ctx context.Context, p Provider, req Request) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	text, err := p.Generate(callCtx, req)
	if err != nil {
		slog.Debug("completion attempt failed",
			"provider", p.Name(),
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%s: %w", p.Name(), ErrEmptyCompletion)
	}

	slog.Debug("completion attempt succeeded",
		"provider", p.Name(),
		"duration_ms", time.Since(start).Milliseconds(),
		"chars", len(text),
	)
	return text, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
