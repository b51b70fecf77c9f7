package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
server:
  host: 0.0.0.0
  port: 9090
providers:
  openai:
    api_key: $OPENAI_API_KEY
models:
  definitions:
    - name: fast
      provider: openai
      upstream_model: gpt-4o-mini
    - name: claude
      provider: anthropic
      upstream_model: claude-sonnet-4-20250514
      ensure_tool_call: true
`

func TestParseResolvesEnvRefs(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-from-env")

	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Address())
	require.NotNil(t, cfg.Providers.OpenAI)
	assert.Equal(t, "sk-from-env", cfg.Providers.OpenAI.APIKey)

	require.Len(t, cfg.Models.Definitions, 2)
	assert.Equal(t, "fast", cfg.Models.Definitions[0].Name)
	assert.True(t, cfg.Models.Definitions[1].EnsureToolCall)
}

func TestParseFailsOnUnsetEnvRef(t *testing.T) {
	_, err := Parse([]byte("server:\n  host: $DEFINITELY_NOT_SET_ANYWHERE\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DEFINITELY_NOT_SET_ANYWHERE")
}

func TestDefaultsApplied(t *testing.T) {
	cfg, err := Parse([]byte("models:\n  definitions: []\n"))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Address())
	assert.Equal(t, "first", cfg.Models.DefaultStrategy)
	assert.Equal(t, 5, cfg.Streaming.ChunkSize)
	assert.Equal(t, 50, cfg.Livestore.BatchSize)
	assert.Equal(t, "data/signatures.db", cfg.Sigcache.Path)
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	_, err := Parse([]byte(`
models:
  definitions:
    - name: bad
      provider: surprise
      upstream_model: m
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

func TestValidateRequiresUpstreamModel(t *testing.T) {
	_, err := Parse([]byte(`
models:
  definitions:
    - name: bad
      provider: openai
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream_model")
}

func TestValidateVertexNeedsProject(t *testing.T) {
	_, err := Parse([]byte(`
providers:
  vertex:
    location: us-central1
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project_id")
}

func TestRateLimitDefault(t *testing.T) {
	cfg, err := Parse([]byte("rate_limit:\n  enabled: true\n"))
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.RateLimit.RequestsPerMinute)
}

func TestEnvRefSuffix(t *testing.T) {
	t.Setenv("DATA_DIR", "/var/data")
	out, err := resolveEnvRef("$DATA_DIR/logs")
	require.NoError(t, err)
	assert.Equal(t, "/var/data/logs", out)
}
