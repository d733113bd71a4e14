package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the dossier service
type Config struct {
	General    GeneralConfig    `mapstructure:"general"`
	Server     ServerConfig     `mapstructure:"server"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Agent      AgentConfig      `mapstructure:"agent"`
	Sources    SourcesConfig    `mapstructure:"sources"`
	Capability CapabilityConfig `mapstructure:"capability"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address           string        `mapstructure:"address"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
	RateLimit         float64       `mapstructure:"rate_limit"` // requests per second per client, 0 disables
	RateBurst         int           `mapstructure:"rate_burst"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	MaxNotesLength    int           `mapstructure:"max_notes_length"`
}

// LLMConfig contains LLM provider configurations
type LLMConfig struct {
	Providers map[string]LLMProvider `mapstructure:"providers"`
	Routing   LLMRoutingConfig       `mapstructure:"routing"`
}

// LLMProvider represents a single OpenAI-compatible endpoint
type LLMProvider struct {
	Type       string              `mapstructure:"type"` // openai, perplexity
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Models     map[string]LLMModel `mapstructure:"models"`
	MaxRetries int                 `mapstructure:"max_retries"`
	Timeout    time.Duration       `mapstructure:"timeout"`
}

// LLMModel represents a specific model configuration
type LLMModel struct {
	Name        string  `mapstructure:"name"`
	APIName     string  `mapstructure:"api_name"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// ModelID is the name sent on the wire.
func (m LLMModel) ModelID() string {
	if m.APIName != "" {
		return m.APIName
	}
	return m.Name
}

// LLMRoutingConfig defines which model key serves which role
type LLMRoutingConfig struct {
	Orchestrator string `mapstructure:"orchestrator"` // drives the tool loop
	Analysis     string `mapstructure:"analysis"`     // analyze_meeting_context
	Synthesis    string `mapstructure:"synthesis"`    // generate_dossier
	Research     string `mapstructure:"research"`     // research tool
}

// ResolvedModel ties a routed model to the provider that serves it.
type ResolvedModel struct {
	ProviderName string
	Provider     LLMProvider
	Model        LLMModel
}

// ResolveModel finds the provider owning the model key.
func (c LLMConfig) ResolveModel(key string) (ResolvedModel, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return ResolvedModel{}, errors.New("model key is empty")
	}
	for name, p := range c.Providers {
		if m, ok := p.Models[key]; ok {
			return ResolvedModel{ProviderName: name, Provider: p, Model: m}, nil
		}
	}
	return ResolvedModel{}, fmt.Errorf("model %q not configured under any provider", key)
}

// Normalize fills API keys from the conventional environment variables.
func (c LLMConfig) Normalize() LLMConfig {
	for name, p := range c.Providers {
		if p.APIKey == "" {
			switch strings.ToLower(p.Type) {
			case "openai":
				p.APIKey = os.Getenv("OPENAI_API_KEY")
			case "perplexity":
				p.APIKey = os.Getenv("PERPLEXITY_API_KEY")
			}
		}
		if p.Timeout <= 0 {
			p.Timeout = 2 * time.Minute
		}
		c.Providers[name] = p
	}
	return c
}

// Validate checks that every routed model resolves.
func (c LLMConfig) Validate() error {
	if len(c.Providers) == 0 {
		return errors.New("llm.providers must not be empty")
	}
	routes := map[string]string{
		"orchestrator": c.Routing.Orchestrator,
		"analysis":     c.Routing.Analysis,
		"synthesis":    c.Routing.Synthesis,
		"research":     c.Routing.Research,
	}
	for role, key := range routes {
		if _, err := c.ResolveModel(key); err != nil {
			return fmt.Errorf("llm.routing.%s: %w", role, err)
		}
	}
	return nil
}

// AgentConfig bounds the tool-calling loop
type AgentConfig struct {
	MaxSteps     int           `mapstructure:"max_steps"`
	MaxRunTime   time.Duration `mapstructure:"max_run_time"`
	ToolTimeout  time.Duration `mapstructure:"tool_timeout"`
	Temperature  float64       `mapstructure:"temperature"`
	TextFallback bool          `mapstructure:"text_fallback"`
}

// Validate ensures agent settings are usable.
func (a AgentConfig) Validate() error {
	if a.MaxSteps < 0 {
		return fmt.Errorf("agent.max_steps cannot be negative")
	}
	if a.MaxRunTime < 0 || a.ToolTimeout < 0 {
		return fmt.Errorf("agent timeouts cannot be negative")
	}
	if a.Temperature < 0 || a.Temperature > 2 {
		return fmt.Errorf("agent.temperature must be within [0,2]")
	}
	return nil
}

// SourcesConfig contains optional research sources
type SourcesConfig struct {
	WebSearch WebSearchConfig `mapstructure:"web_search"`
	WebFetch  WebFetchConfig  `mapstructure:"web_fetch"`
}

// WebSearchConfig contains web search settings
type WebSearchConfig struct {
	BraveAPIKey  string        `mapstructure:"brave_api_key"`
	SerperAPIKey string        `mapstructure:"serper_api_key"`
	MaxResults   int           `mapstructure:"max_results"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// WebFetchConfig enables the headless page fetcher
type WebFetchConfig struct {
	Enabled   bool `mapstructure:"enabled"`
	TimeoutMS int  `mapstructure:"timeout_ms"`
	MaxChars  int  `mapstructure:"max_chars"`
}

// CapabilityConfig controls the ToolCard registry behaviour.
type CapabilityConfig struct {
	SigningSecret string   `mapstructure:"signing_secret"`
	RequiredTools []string `mapstructure:"required_tools"`
}

// StorageConfig contains storage settings
type StorageConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

func (r RedisConfig) Validate() error {
	if !r.Enabled {
		return nil
	}
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	if r.CacheTTL < 0 {
		return fmt.Errorf("storage.redis.cache_ttl cannot be negative")
	}
	return nil
}

// TelemetryConfig contains tracing settings
type TelemetryConfig struct {
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	Insecure     bool   `mapstructure:"insecure"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.log_level", "info")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.rate_limit", 1.0)
	v.SetDefault("server.rate_burst", 5)
	v.SetDefault("server.heartbeat_interval", 25*time.Second)
	v.SetDefault("server.max_notes_length", 50000)

	v.SetDefault("llm.providers.openai.type", "openai")
	v.SetDefault("llm.providers.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.providers.openai.max_retries", 2)
	v.SetDefault("llm.providers.openai.api_key", "")
	// model keys double as viper path segments, so they must not contain dots
	v.SetDefault("llm.providers.openai.models.gpt41.name", "gpt-4.1")
	v.SetDefault("llm.providers.openai.models.gpt41.max_tokens", 1500)
	v.SetDefault("llm.providers.openai.models.gpt41.temperature", 0.7)
	v.SetDefault("llm.providers.perplexity.type", "perplexity")
	v.SetDefault("llm.providers.perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("llm.providers.perplexity.api_key", "")
	v.SetDefault("llm.providers.perplexity.max_retries", 2)
	v.SetDefault("llm.providers.perplexity.models.sonar.name", "sonar")
	v.SetDefault("llm.providers.perplexity.models.sonar.max_tokens", 4000)
	v.SetDefault("llm.providers.perplexity.models.sonar.temperature", 0.3)
	v.SetDefault("llm.routing.orchestrator", "gpt41")
	v.SetDefault("llm.routing.analysis", "gpt41")
	v.SetDefault("llm.routing.synthesis", "gpt41")
	v.SetDefault("llm.routing.research", "sonar")

	v.SetDefault("agent.max_steps", 10)
	v.SetDefault("agent.max_run_time", 300*time.Second)
	v.SetDefault("agent.tool_timeout", 90*time.Second)
	v.SetDefault("agent.temperature", 0.3)
	v.SetDefault("agent.text_fallback", true)

	v.SetDefault("sources.web_search.brave_api_key", "")
	v.SetDefault("sources.web_search.serper_api_key", "")
	v.SetDefault("sources.web_search.max_results", 5)
	v.SetDefault("sources.web_search.timeout", 15*time.Second)
	v.SetDefault("sources.web_fetch.enabled", false)
	v.SetDefault("sources.web_fetch.timeout_ms", 15000)
	v.SetDefault("sources.web_fetch.max_chars", 8000)

	v.SetDefault("capability.signing_secret", "")

	v.SetDefault("storage.redis.enabled", false)
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", "6379")
	v.SetDefault("storage.redis.cache_ttl", 24*time.Hour)

	v.SetDefault("telemetry.service_name", "when2meet")
	v.SetDefault("telemetry.otlp_endpoint", "")
}

// Load reads the JSON config named "config" plus WHEN2MEET_* environment
// overrides. A missing file is tolerated unless path is explicit.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	setDefaults(v)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if exe, err := os.Executable(); err == nil {
			exeDir := filepath.Dir(exe)
			v.AddConfigPath(exeDir)
			v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
		}
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("WHEN2MEET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.LLM = cfg.LLM.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate runs every section check.
func (c *Config) Validate() error {
	if err := c.LLM.Validate(); err != nil {
		return err
	}
	if err := c.Agent.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Redis.Validate(); err != nil {
		return err
	}
	if c.Server.MaxNotesLength < 0 {
		return fmt.Errorf("server.max_notes_length cannot be negative")
	}
	return nil
}

// LoadConfig loads config from file and panics on failure
func LoadConfig(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	return cfg
}
