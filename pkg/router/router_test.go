package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelrelay/modelrelay/pkg/config"
)

func testModels() config.ModelsConfig {
	return config.ModelsConfig{
		DefaultStrategy: "first",
		Definitions: []config.ModelDefinition{
			{Name: "fast", Provider: "openai", UpstreamModel: "gpt-4o-mini", EnsureToolCall: true},
			{Name: "fast", Provider: "openrouter", UpstreamModel: "openai/gpt-4o-mini"},
			{Name: "gemini", Provider: "vertex", UpstreamModel: "gemini-3-pro-preview",
				Location: "europe-west1", APIKey: "override-key"},
		},
	}
}

func TestResolveFirstStrategy(t *testing.T) {
	r := New(testModels())

	res, err := r.Resolve("fast")
	require.NoError(t, err)

	assert.Equal(t, "openai", res.ProviderKey)
	assert.Equal(t, "gpt-4o-mini", res.UpstreamModel)
	assert.True(t, res.EnsureToolCall)
}

func TestResolveOverrides(t *testing.T) {
	r := New(testModels())

	res, err := r.Resolve("gemini")
	require.NoError(t, err)

	assert.Equal(t, "vertex", res.ProviderKey)
	assert.Equal(t, "europe-west1", res.Overrides.Location)
	assert.Equal(t, "override-key", res.Overrides.APIKey)
	assert.False(t, res.EnsureToolCall)
}

func TestResolveUnknownModel(t *testing.T) {
	r := New(testModels())

	_, err := r.Resolve("nope")
	assert.Error(t, err)
}

func TestWeightedStaysInGroup(t *testing.T) {
	cfg := config.ModelsConfig{
		DefaultStrategy: "weighted",
		Definitions: []config.ModelDefinition{
			{Name: "mix", Provider: "openai", UpstreamModel: "a", Weight: 1},
			{Name: "mix", Provider: "openrouter", UpstreamModel: "b", Weight: 3},
		},
	}
	r := New(cfg)

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		res, err := r.Resolve("mix")
		require.NoError(t, err)
		seen[res.UpstreamModel] = true
		assert.Contains(t, []string{"a", "b"}, res.UpstreamModel)
	}
	// With 200 draws at weights 1:3 both members all but certainly appear.
	assert.True(t, seen["a"] && seen["b"])
}

func TestModelsOrder(t *testing.T) {
	r := New(testModels())
	assert.Equal(t, []string{"fast", "gemini"}, r.Models())
}

func TestUpdateSwapsRoutes(t *testing.T) {
	r := New(testModels())
	require.Contains(t, r.Models(), "fast")

	r.Update(config.ModelsConfig{
		Definitions: []config.ModelDefinition{
			{Name: "replacement", Provider: "anthropic", UpstreamModel: "claude-sonnet-4-20250514"},
		},
	})

	_, err := r.Resolve("fast")
	assert.Error(t, err)

	res, err := r.Resolve("replacement")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", res.ProviderKey)
	assert.Equal(t, []string{"replacement"}, r.Models())
}
