// Package llm is the gateway to the external text-completion service. The
// pipeline sees only Complete; providers, retries and deadlines live here.
package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Role of a chat message
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// Message is one entry of a chat-style prompt
type Message struct {
	Role    Role
	Content string
}

// Request is a single completion call
type Request struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
	// MaxRetries is the number of extra attempts on the primary provider
	MaxRetries int
}

// NewRequest builds a request from a system and a user prompt; an empty
// system prompt is omitted.
func NewRequest(system, user string) Request {
	var msgs []Message
	if system != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: system})
	}
	msgs = append(msgs, Message{Role: RoleUser, Content: user})
	return Request{Messages: msgs}
}

// System returns the concatenated system messages
func (r Request) System() string {
	return r.join(RoleSystem)
}

// User returns the concatenated user messages
func (r Request) User() string {
	return r.join(RoleUser)
}

func (r Request) join(role Role) string {
	out := ""
	for _, m := range r.Messages {
		if m.Role != role {
			continue
		}
		if out != "" {
			out += "\n\n"
		}
		out += m.Content
	}
	return out
}

// Provider defines the interface for a text-completion backend
type Provider interface {
	// Generate performs one completion attempt and returns the produced text
	Generate(ctx context.Context, req Request) (string, error)

	// Name returns the provider name
	Name() string

	// HealthCheck checks if the provider is configured and reachable
	HealthCheck(ctx context.Context) error
}

// BaseProvider provides common functionality for providers
type BaseProvider struct {
	name  string
	model string
}

// Name returns the provider name
func (p *BaseProvider) Name() string {
	return p.name
}

// Model returns the model the provider calls
func (p *BaseProvider) Model() string {
	return p.model
}

// Registry manages completion providers
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider to the registry
func (r *Registry) Register(name string, provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = provider
}

// Get retrieves a provider by name
func (r *Registry) Get(name string) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers[name]
}

// List returns all registered provider names
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// HealthCheckAll checks health of all registered providers
func (r *Registry) HealthCheckAll(ctx context.Context) map[string]error {
	r.mu.RLock()
	providers := make(map[string]Provider, len(r.providers))
	for name, provider := range r.providers {
		providers[name] = provider
	}
	r.mu.RUnlock()

	results := make(map[string]error, len(providers))
	for name, provider := range providers {
		results[name] = provider.HealthCheck(ctx)
	}
	return results
}

// Ready succeeds when at least one registered provider passes its health
// check. An empty registry is ready: every stage then answers from its
// fallback.
func (r *Registry) Ready(ctx context.Context) error {
	results := r.HealthCheckAll(ctx)
	if len(results) == 0 {
		return nil
	}

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		if results[name] == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", name, results[name]))
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, errors.Join(errs...))
}
