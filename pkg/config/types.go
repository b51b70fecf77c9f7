// Package config loads the proxy configuration: YAML parsed into a raw map,
// environment references resolved, then decoded into typed structs.
package config

import "fmt"

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server" mapstructure:"server"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging" mapstructure:"logging"`
	Streaming StreamingConfig `yaml:"streaming" json:"streaming" mapstructure:"streaming"`
	Livestore LivestoreConfig `yaml:"livestore" json:"livestore" mapstructure:"livestore"`
	Sigcache  SigcacheConfig  `yaml:"sigcache" json:"sigcache" mapstructure:"sigcache"`
	Tracing   TracingConfig   `yaml:"tracing" json:"tracing" mapstructure:"tracing"`
	Auth      AuthConfig      `yaml:"auth" json:"auth" mapstructure:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit" mapstructure:"rate_limit"`
	Providers ProvidersConfig `yaml:"providers" json:"providers" mapstructure:"providers"`
	Models    ModelsConfig    `yaml:"models" json:"models" mapstructure:"models"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host" json:"host" mapstructure:"host"`
	Port int    `yaml:"port" json:"port" mapstructure:"port"`
}

func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
}

func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoggingConfig configures the exchange log store.
type LoggingConfig struct {
	DBPath   string `yaml:"db_path" json:"db_path" mapstructure:"db_path"`
	BlobRoot string `yaml:"blob_root" json:"blob_root" mapstructure:"blob_root"`
}

// StreamingConfig controls SSE rendering of completed responses.
type StreamingConfig struct {
	// Delay between chunks in milliseconds.
	Delay int `yaml:"delay" json:"delay" mapstructure:"delay"`
	// ChunkSize is the number of characters per text delta.
	ChunkSize int `yaml:"chunk_size" json:"chunk_size" mapstructure:"chunk_size"`
}

func (c *StreamingConfig) SetDefaults() {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 5
	}
}

// AuthConfig gates the proxy routes behind static API keys. An empty key
// list disables authentication.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys" json:"api_keys" mapstructure:"api_keys"`
}

// RateLimitConfig caps per-client request rates on the proxy routes.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" json:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// TracingConfig enables span export to stdout.
type TracingConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
}

// SigcacheConfig configures the persisted thought-signature store.
type SigcacheConfig struct {
	Path string `yaml:"path" json:"path" mapstructure:"path"`
}

// LivestoreConfig configures the mirrored client-visible view.
type LivestoreConfig struct {
	BatchSize int `yaml:"batch_size" json:"batch_size" mapstructure:"batch_size"`
}

// ProvidersConfig holds per-provider credentials and endpoints.
type ProvidersConfig struct {
	OpenAI     *OpenAIProviderConfig     `yaml:"openai,omitempty" json:"openai,omitempty" mapstructure:"openai"`
	OpenRouter *OpenRouterProviderConfig `yaml:"openrouter,omitempty" json:"openrouter,omitempty" mapstructure:"openrouter"`
	Vertex     *VertexProviderConfig     `yaml:"vertex,omitempty" json:"vertex,omitempty" mapstructure:"vertex"`
	Anthropic  *AnthropicProviderConfig  `yaml:"anthropic,omitempty" json:"anthropic,omitempty" mapstructure:"anthropic"`
}

type OpenAIProviderConfig struct {
	APIKey  string `yaml:"api_key" json:"api_key" mapstructure:"api_key"`
	BaseURL string `yaml:"base_url" json:"base_url" mapstructure:"base_url"`
}

type OpenRouterProviderConfig struct {
	APIKey string `yaml:"api_key" json:"api_key" mapstructure:"api_key"`
}

type VertexProviderConfig struct {
	ProjectID string `yaml:"project_id" json:"project_id" mapstructure:"project_id"`
	Location  string `yaml:"location" json:"location" mapstructure:"location"`
	// Credentials is inline service-account JSON; CredentialsPath points at
	// a key file. One of the two is required.
	Credentials      string `yaml:"credentials" json:"credentials" mapstructure:"credentials"`
	CredentialsPath  string `yaml:"credentials_path" json:"credentials_path" mapstructure:"credentials_path"`
	EndpointOverride string `yaml:"endpoint_override,omitempty" json:"endpoint_override,omitempty" mapstructure:"endpoint_override"`
}

type AnthropicProviderConfig struct {
	APIKey  string `yaml:"api_key" json:"api_key" mapstructure:"api_key"`
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty" mapstructure:"base_url"`
}

// ModelsConfig declares the routable model aliases.
type ModelsConfig struct {
	Definitions     []ModelDefinition `yaml:"definitions" json:"definitions" mapstructure:"definitions"`
	DefaultStrategy string            `yaml:"default_strategy" json:"default_strategy" mapstructure:"default_strategy"`
}

// ModelDefinition maps a client-visible alias to a provider and upstream
// model id, with optional per-model overrides merged onto the provider's
// base config at invoke time.
type ModelDefinition struct {
	Name           string  `yaml:"name" json:"name" mapstructure:"name"`
	Provider       string  `yaml:"provider" json:"provider" mapstructure:"provider"`
	UpstreamModel  string  `yaml:"upstream_model" json:"upstream_model" mapstructure:"upstream_model"`
	Weight         float64 `yaml:"weight,omitempty" json:"weight,omitempty" mapstructure:"weight"`
	EnsureToolCall bool    `yaml:"ensure_tool_call,omitempty" json:"ensure_tool_call,omitempty" mapstructure:"ensure_tool_call"`

	// Provider-specific overrides.
	APIKey           string `yaml:"api_key,omitempty" json:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL          string `yaml:"base_url,omitempty" json:"base_url,omitempty" mapstructure:"base_url"`
	ProjectID        string `yaml:"project_id,omitempty" json:"project_id,omitempty" mapstructure:"project_id"`
	Location         string `yaml:"location,omitempty" json:"location,omitempty" mapstructure:"location"`
	Credentials      string `yaml:"credentials,omitempty" json:"credentials,omitempty" mapstructure:"credentials"`
	CredentialsPath  string `yaml:"credentials_path,omitempty" json:"credentials_path,omitempty" mapstructure:"credentials_path"`
	EndpointOverride string `yaml:"endpoint_override,omitempty" json:"endpoint_override,omitempty" mapstructure:"endpoint_override"`
}

// SetDefaults fills unset fields across the tree.
func (c *Config) SetDefaults() {
	c.Server.SetDefaults()
	c.Streaming.SetDefaults()
	if c.Models.DefaultStrategy == "" {
		c.Models.DefaultStrategy = "first"
	}
	if c.Livestore.BatchSize <= 0 {
		c.Livestore.BatchSize = 50
	}
	if c.Sigcache.Path == "" {
		c.Sigcache.Path = "data/signatures.db"
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute <= 0 {
		c.RateLimit.RequestsPerMinute = 60
	}
}

// Validate checks for configuration errors that must be fatal at startup.
func (c *Config) Validate() error {
	seen := map[string]bool{}
	for i, def := range c.Models.Definitions {
		if def.Name == "" {
			return fmt.Errorf("models.definitions[%d]: name is required", i)
		}
		if def.Provider == "" {
			return fmt.Errorf("model %q: provider is required", def.Name)
		}
		if def.UpstreamModel == "" {
			return fmt.Errorf("model %q: upstream_model is required", def.Name)
		}
		switch def.Provider {
		case "openai", "openrouter", "vertex", "anthropic":
		default:
			return fmt.Errorf("model %q: unknown provider %q", def.Name, def.Provider)
		}
		seen[def.Name] = true
	}

	if c.Providers.Vertex != nil {
		v := c.Providers.Vertex
		if v.ProjectID == "" {
			return fmt.Errorf("providers.vertex: project_id is required")
		}
		if v.Location == "" {
			return fmt.Errorf("providers.vertex: location is required")
		}
	}

	switch c.Models.DefaultStrategy {
	case "", "first", "weighted":
	default:
		return fmt.Errorf("models.default_strategy: unknown strategy %q", c.Models.DefaultStrategy)
	}

	return nil
}
