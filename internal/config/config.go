// Package config loads the service configuration from YAML with ${ENV}
// expansion, or from the environment alone when no file is given.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Provider types understood by the service.
const (
	ProviderOpenAI = "openai"
	ProviderGroq   = "groq"
	ProviderCohere = "cohere"
	ProviderGemini = "gemini"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Lock drivers.
const (
	LockLocal = "local"
	LockRedis = "redis"
)

// Config is the complete service configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Auth         AuthConfig         `yaml:"auth"`
	Log          LogConfig          `yaml:"log"`
	Providers    []ProviderConfig   `yaml:"providers"`
	Fallback     FallbackConfig     `yaml:"fallback"`
	Knowledge    KnowledgeConfig    `yaml:"knowledge"`
	WebSearch    WebSearchConfig    `yaml:"websearch"`
	Store        StoreConfig        `yaml:"store"`
	Lock         LockConfig         `yaml:"lock"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Tracing      TracingConfig      `yaml:"tracing"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AuthConfig gates the API behind a shared key. An empty key disables the
// gate.
type AuthConfig struct {
	Key string `yaml:"key"`
}

// LogConfig overrides the TAXASSIST_LOG_* environment defaults.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // compact, json
}

// ProviderConfig is one generation backend. The order of Config.Providers is
// the fallback order.
type ProviderConfig struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// FallbackConfig tunes the provider fallback client.
type FallbackConfig struct {
	CallTimeout    time.Duration `yaml:"call_timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	Temperature    *float64      `yaml:"temperature"`
	MaxTokens      int           `yaml:"max_tokens"`
}

// KnowledgeConfig points at the retrieval service. An empty BaseURL disables
// retrieval; handlers then answer with the no-information statement.
type KnowledgeConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// WebSearchConfig configures Tavily search. An empty APIKey disables it.
type WebSearchConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Domains []string      `yaml:"domains"`
	Timeout time.Duration `yaml:"timeout"`
}

// StoreConfig selects the conversation store.
type StoreConfig struct {
	Driver   string        `yaml:"driver"` // memory, postgres, sqlite
	DSN      string        `yaml:"dsn"`
	Table    string        `yaml:"table"`
	Path     string        `yaml:"path"`
	MaxConns int32         `yaml:"max_conns"`
	CacheTTL time.Duration `yaml:"cache_ttl"` // zero disables the read cache
	Migrate  bool          `yaml:"migrate"`
}

// LockConfig selects the per-thread lock.
type LockConfig struct {
	Driver        string        `yaml:"driver"` // local, redis
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	Lease         time.Duration `yaml:"lease"`
	Timeout       time.Duration `yaml:"timeout"`
}

// OrchestratorConfig tunes the chat flow.
type OrchestratorConfig struct {
	RequestTimeout time.Duration `yaml:"request_timeout"`
	CommitTimeout  time.Duration `yaml:"commit_timeout"`
	MaxQueryRunes  int           `yaml:"max_query_runes"`
	RouterHistory  int           `yaml:"router_history"`
	HandlerHistory int           `yaml:"handler_history"`
	WebEnrichment  bool          `yaml:"web_enrichment"`
	Assessment     bool          `yaml:"assessment"`
	PromptsTTL     time.Duration `yaml:"prompts_ttl"`
}

// TracingConfig contains OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"` // OTLP/HTTP endpoint, e.g. "localhost:4318"
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
	Insecure    bool    `yaml:"insecure"`
}

// RateLimitConfig defines the API token bucket.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	BurstSize         int  `yaml:"burst_size"`
}

// DefaultConfig returns a configuration with sensible defaults and no
// providers.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Fallback: FallbackConfig{
			CallTimeout:    30 * time.Second,
			MaxRetries:     1,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
		},
		Knowledge: KnowledgeConfig{Timeout: 10 * time.Second},
		WebSearch: WebSearchConfig{Timeout: 10 * time.Second},
		Store: StoreConfig{
			Driver:   StoreMemory,
			Table:    "taxassist_turns",
			Path:     "data/taxassist.db",
			MaxConns: 10,
		},
		Lock: LockConfig{
			Driver:  LockLocal,
			Lease:   2 * time.Minute,
			Timeout: 30 * time.Second,
		},
		Orchestrator: OrchestratorConfig{
			RequestTimeout: 90 * time.Second,
			CommitTimeout:  10 * time.Second,
			MaxQueryRunes:  1000,
			RouterHistory:  4,
			HandlerHistory: 5,
			PromptsTTL:     time.Hour,
		},
		Tracing: TracingConfig{
			Endpoint:    "localhost:4318",
			ServiceName: "taxassist",
			SampleRate:  1.0,
			Insecure:    true,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
			BurstSize:         10,
		},
	}
}

// LoadDotEnv loads .env files into the process environment. Missing files
// are skipped; variables already set are not overridden.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// Load reads path when it is non-empty, otherwise starts from DefaultConfig.
// Environment fallbacks are applied to anything the file left empty, and the
// result is validated.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		// Expand environment variables
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// envProviders is the bootstrap fallback order when no providers are
// configured: Groq first, Cohere as the classic secondary.
var envProviders = []struct {
	typ   string
	key   string
	model string
}{
	{ProviderGroq, "GROQ_API_KEY", "llama-3.3-70b-versatile"},
	{ProviderCohere, "COHERE_API_KEY", "command-r-plus"},
	{ProviderGemini, "GEMINI_API_KEY", "gemini-2.0-flash"},
	{ProviderOpenAI, "OPENAI_API_KEY", "gpt-4o-mini"},
}

func (c *Config) applyEnv(getenv func(string) string) {
	if len(c.Providers) == 0 {
		for _, p := range envProviders {
			if key := getenv(p.key); key != "" {
				c.Providers = append(c.Providers, ProviderConfig{Name: p.typ, Type: p.typ, APIKey: key, Model: p.model})
			}
		}
	}

	setIfEmpty(&c.Auth.Key, getenv("ENDPOINT_AUTH_KEY"))
	setIfEmpty(&c.Knowledge.BaseURL, getenv("KNOWLEDGE_BASE_URL"))
	setIfEmpty(&c.Knowledge.APIKey, getenv("KNOWLEDGE_API_KEY"))
	setIfEmpty(&c.WebSearch.APIKey, getenv("TAVILY_API_KEY"))
	setIfEmpty(&c.Lock.RedisAddr, getenv("REDIS_ADDR"))

	if c.Store.DSN == "" {
		if dsn := getenv("DATABASE_URL"); dsn != "" {
			c.Store.DSN = dsn
			if c.Store.Driver == StoreMemory {
				c.Store.Driver = StorePostgres
			}
		}
	}
}

func setIfEmpty(dst *string, value string) {
	if *dst == "" {
		*dst = value
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if len(c.Providers) == 0 {
		return errors.New("at least one provider must be configured")
	}
	names := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider[%d]: name is required", i)
		}
		if names[p.Name] {
			return fmt.Errorf("provider[%d]: duplicate name %q", i, p.Name)
		}
		names[p.Name] = true
		if !slices.Contains([]string{ProviderOpenAI, ProviderGroq, ProviderCohere, ProviderGemini}, p.Type) {
			return fmt.Errorf("provider[%d] %q: unknown type %q", i, p.Name, p.Type)
		}
		if p.APIKey == "" {
			return fmt.Errorf("provider[%d] %q: api_key is required", i, p.Name)
		}
	}

	if c.Fallback.CallTimeout < 0 {
		return errors.New("fallback.call_timeout cannot be negative")
	}
	if c.Fallback.MaxRetries < 0 {
		return errors.New("fallback.max_retries cannot be negative")
	}

	switch c.Store.Driver {
	case StoreMemory:
	case StorePostgres:
		if c.Store.DSN == "" {
			return errors.New("store.dsn is required for the postgres driver")
		}
	case StoreSQLite:
		if strings.TrimSpace(c.Store.Path) == "" {
			return errors.New("store.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Store.CacheTTL < 0 {
		return errors.New("store.cache_ttl cannot be negative")
	}

	switch c.Lock.Driver {
	case LockLocal:
	case LockRedis:
		if c.Lock.RedisAddr == "" {
			return errors.New("lock.redis_addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("unknown lock driver %q", c.Lock.Driver)
	}

	if c.Orchestrator.MaxQueryRunes <= 0 {
		return errors.New("orchestrator.max_query_runes must be positive")
	}
	if c.Orchestrator.RequestTimeout < 0 || c.Orchestrator.CommitTimeout < 0 {
		return errors.New("orchestrator timeouts cannot be negative")
	}

	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return errors.New("tracing.endpoint is required when tracing is enabled")
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerMinute <= 0 || c.RateLimit.BurstSize <= 0) {
		return errors.New("rate_limit requires positive requests_per_minute and burst_size")
	}
	return nil
}
