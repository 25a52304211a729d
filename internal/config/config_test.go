package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable the loader reads so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"GROQ_API_KEY", "COHERE_API_KEY", "GEMINI_API_KEY", "OPENAI_API_KEY",
		"ENDPOINT_AUTH_KEY", "KNOWLEDGE_BASE_URL", "KNOWLEDGE_API_KEY",
		"TAVILY_API_KEY", "REDIS_ADDR", "DATABASE_URL",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, LockLocal, cfg.Lock.Driver)
	assert.Equal(t, 1000, cfg.Orchestrator.MaxQueryRunes)
	assert.Equal(t, 4, cfg.Orchestrator.RouterHistory)
	assert.Equal(t, 5, cfg.Orchestrator.HandlerHistory)
	assert.Empty(t, cfg.Providers)
}

func TestLoad_EnvOnlyBootstrap(t *testing.T) {
	clearEnv(t)
	t.Setenv("GROQ_API_KEY", "gsk-test")
	t.Setenv("COHERE_API_KEY", "co-test")
	t.Setenv("ENDPOINT_AUTH_KEY", "secret")
	t.Setenv("DATABASE_URL", "postgres://localhost/taxassist")

	cfg, err := Load("")
	require.NoError(t, err)

	require.Len(t, cfg.Providers, 2)
	assert.Equal(t, ProviderGroq, cfg.Providers[0].Type)
	assert.Equal(t, ProviderCohere, cfg.Providers[1].Type)
	assert.Equal(t, "gsk-test", cfg.Providers[0].APIKey)
	assert.Equal(t, "secret", cfg.Auth.Key)
	assert.Equal(t, StorePostgres, cfg.Store.Driver)
}

func TestLoad_NoProviders(t *testing.T) {
	clearEnv(t)

	_, err := Load("")
	assert.ErrorContains(t, err, "at least one provider")
}

func TestLoad_FileWithEnvExpansion(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_GEMINI_KEY", "gm-test")

	path := writeConfig(t, `
server:
  port: 9090
providers:
  - name: primary
    type: gemini
    api_key: ${TEST_GEMINI_KEY}
    model: gemini-2.0-flash
  - name: backup
    type: groq
    api_key: literal-key
fallback:
  call_timeout: 12s
store:
  driver: sqlite
  path: /tmp/history.db
  cache_ttl: 2m
orchestrator:
  web_enrichment: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	require.Len(t, cfg.Providers, 2)
	assert.Equal(t, "gm-test", cfg.Providers[0].APIKey)
	assert.Equal(t, "backup", cfg.Providers[1].Name)
	assert.Equal(t, 12*time.Second, cfg.Fallback.CallTimeout)
	assert.Equal(t, StoreSQLite, cfg.Store.Driver)
	assert.Equal(t, 2*time.Minute, cfg.Store.CacheTTL)
	assert.True(t, cfg.Orchestrator.WebEnrichment)
	// Untouched sections keep their defaults.
	assert.Equal(t, 1000, cfg.Orchestrator.MaxQueryRunes)
}

func TestLoad_FileProvidersWinOverEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("GROQ_API_KEY", "from-env")

	path := writeConfig(t, `
providers:
  - name: only
    type: openai
    api_key: from-file
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Providers, 1)
	assert.Equal(t, "from-file", cfg.Providers[0].APIKey)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "read config file")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Providers = []ProviderConfig{{Name: "groq", Type: ProviderGroq, APIKey: "k"}}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "invalid server port"},
		{"unknown provider type", func(c *Config) { c.Providers[0].Type = "llama.cpp" }, "unknown type"},
		{"missing api key", func(c *Config) { c.Providers[0].APIKey = "" }, "api_key is required"},
		{"duplicate provider", func(c *Config) { c.Providers = append(c.Providers, c.Providers[0]) }, "duplicate name"},
		{"postgres without dsn", func(c *Config) { c.Store.Driver = StorePostgres }, "store.dsn"},
		{"unknown store", func(c *Config) { c.Store.Driver = "mongo" }, "unknown store driver"},
		{"redis without addr", func(c *Config) { c.Lock.Driver = LockRedis }, "lock.redis_addr"},
		{"zero query bound", func(c *Config) { c.Orchestrator.MaxQueryRunes = 0 }, "max_query_runes"},
		{"rate limit without rate", func(c *Config) {
			c.RateLimit.Enabled = true
			c.RateLimit.RequestsPerMinute = 0
		}, "rate_limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("TAXASSIST_TEST_DOTENV=loaded\n"), 0o600))
	t.Setenv("TAXASSIST_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("TAXASSIST_TEST_DOTENV"))

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), path))
	assert.Equal(t, "loaded", os.Getenv("TAXASSIST_TEST_DOTENV"))
}
