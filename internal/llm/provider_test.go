package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type checkedProvider struct {
	scriptedProvider
	health error
}

func (p *checkedProvider) HealthCheck(context.Context) error { return p.health }

func TestRegistryHealthCheckAll(t *testing.T) {
	r := NewRegistry()
	r.Register("groq", &checkedProvider{scriptedProvider: scriptedProvider{name: "groq"}, health: errBoom})
	r.Register("gemini", &checkedProvider{scriptedProvider: scriptedProvider{name: "gemini"}})

	results := r.HealthCheckAll(context.Background())
	require.Len(t, results, 2)
	assert.ErrorIs(t, results["groq"], errBoom)
	assert.NoError(t, results["gemini"])
}

func TestRegistryReady(t *testing.T) {
	t.Run("empty registry", func(t *testing.T) {
		assert.NoError(t, NewRegistry().Ready(context.Background()))
	})

	t.Run("one healthy provider is enough", func(t *testing.T) {
		r := NewRegistry()
		r.Register("groq", &checkedProvider{health: errBoom})
		r.Register("gemini", &checkedProvider{})
		assert.NoError(t, r.Ready(context.Background()))
	})

	t.Run("all providers down", func(t *testing.T) {
		r := NewRegistry()
		r.Register("groq", &checkedProvider{health: errBoom})
		r.Register("openai", &checkedProvider{health: errors.New("401")})

		err := r.Ready(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.ErrorIs(t, err, errBoom)
		assert.Contains(t, err.Error(), "groq")
		assert.Contains(t, err.Error(), "openai")
	})
}
