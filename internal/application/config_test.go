package application

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-consensus/internal/domain"
	"github.com/ahrav/go-consensus/internal/ports"
)

// newTestLoader returns a loader that reads overrides from env only.
func newTestLoader(t *testing.T, env map[string]string) *ConfigLoader {
	t.Helper()
	cl, err := NewConfigLoader()
	require.NoError(t, err)
	cl.getenv = func(key string) string { return env[key] }
	return cl
}

func TestConfigLoader_Defaults(t *testing.T) {
	cfg, err := newTestLoader(t, nil).LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, DefaultConfig(), *cfg)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 30*time.Second, cfg.Submission.Timeout)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "none", cfg.Cache.Driver)
	assert.Len(t, cfg.Catalog.Recommended, 6)
}

func TestConfigLoader_LoadReader(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr error
		verify  func(t *testing.T, cfg *Config)
	}{
		{
			name: "partial file keeps defaults",
			yaml: `
server:
  addr: "127.0.0.1:9090"
submission:
  timeout: 5s
`,
			verify: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr)
				assert.Equal(t, 5*time.Second, cfg.Submission.Timeout)
				assert.Equal(t, 20, cfg.Submission.MaxModels)
				assert.Equal(t, "info", cfg.Log.Level)
			},
		},
		{
			name: "mongo and redis",
			yaml: `
storage:
  driver: mongo
  mongo_uri: mongodb://localhost:27017
  database: votes
cache:
  driver: redis
  redis_addr: localhost:6379
  ttl: 1m
`,
			verify: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "mongo", cfg.Storage.Driver)
				assert.Equal(t, "votes", cfg.Storage.Database)
				assert.Equal(t, "redis", cfg.Cache.Driver)
				assert.Equal(t, time.Minute, cfg.Cache.TTL)
			},
		},
		{
			name: "recommended list replaces defaults",
			yaml: `
catalog:
  per_provider_limit: 3
  recommended:
    - id: openai/gpt-4o
      name: GPT-4o
      provider: OpenAI
      context_length: 128000
`,
			verify: func(t *testing.T, cfg *Config) {
				require.Len(t, cfg.Catalog.Recommended, 1)
				assert.Equal(t, "openai/gpt-4o", cfg.Catalog.Recommended[0].Slug)
				assert.Equal(t, 3, cfg.Catalog.PerProviderLimit)
			},
		},
		{
			name: "environment overrides file",
			yaml: `
log:
  level: debug
`,
			env: map[string]string{
				EnvLogLevel:    "warn",
				EnvTimeout:     "2s",
				EnvTraceStdout: "true",
				EnvCacheDriver: "memory",
			},
			verify: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "warn", cfg.Log.Level)
				assert.Equal(t, 2*time.Second, cfg.Submission.Timeout)
				assert.True(t, cfg.Tracing.Stdout)
				assert.Equal(t, "memory", cfg.Cache.Driver)
			},
		},
		{
			name:    "unknown field",
			yaml:    "servr:\n  addr: \":8080\"\n",
			wantErr: domain.ErrInvalidConfiguration,
		},
		{
			name:    "mongo without uri",
			yaml:    "storage:\n  driver: mongo\n",
			wantErr: domain.ErrInvalidConfiguration,
		},
		{
			name:    "redis without address",
			env:     map[string]string{EnvCacheDriver: "redis"},
			wantErr: domain.ErrInvalidConfiguration,
		},
		{
			name:    "unknown storage driver",
			yaml:    "storage:\n  driver: sqlite\n",
			wantErr: domain.ErrInvalidConfiguration,
		},
		{
			name:    "timeout below one second",
			yaml:    "submission:\n  timeout: 10ms\n",
			wantErr: domain.ErrInvalidConfiguration,
		},
		{
			name:    "bad log level",
			yaml:    "log:\n  level: loud\n",
			wantErr: domain.ErrInvalidConfiguration,
		},
		{
			name: "malformed recommended slug",
			yaml: `
catalog:
  recommended:
    - id: gpt-4o
      name: GPT-4o
      provider: OpenAI
`,
			wantErr: domain.ErrInvalidConfiguration,
		},
		{
			name: "duplicate recommended slug",
			yaml: `
catalog:
  recommended:
    - {id: openai/gpt-4o, name: A, provider: OpenAI}
    - {id: openai/gpt-4o, name: B, provider: OpenAI}
`,
			wantErr: domain.ErrInvalidConfiguration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := newTestLoader(t, tt.env).LoadReader(strings.NewReader(tt.yaml))
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, cfg)
				return
			}
			require.NoError(t, err)
			tt.verify(t, cfg)
		})
	}
}

func TestConfigLoader_BadEnvironment(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		key  string
	}{
		{name: "duration", env: map[string]string{EnvTimeout: "soon"}, key: EnvTimeout},
		{name: "bool", env: map[string]string{EnvTraceStdout: "maybe"}, key: EnvTraceStdout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestLoader(t, tt.env).LoadFile("")
			var cerr *ports.ConfigError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.key, cerr.ConfigKey)
		})
	}
}

func TestConfigLoader_LoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "consensus.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \"localhost:7000\"\n"), 0o600))

	cl := newTestLoader(t, nil)

	cfg, err := cl.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "localhost:7000", cfg.Server.Addr)

	_, err = cl.LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, ports.ErrConfigNotFound)
}

func TestIsModelSlug(t *testing.T) {
	tests := []struct {
		slug string
		want bool
	}{
		{"openai/gpt-4o", true},
		{"meta-llama/llama-3-70b-instruct", true},
		{"mistralai/mistral-7b-instruct:free", true},
		{"x.ai/grok_2", true},
		{"gpt-4o", false},
		{"/gpt-4o", false},
		{"openai/", false},
		{"openai/gpt/4o", false},
		{"OpenAI/gpt-4o", false},
		{"openai/gpt 4o", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.slug, func(t *testing.T) {
			assert.Equal(t, tt.want, IsModelSlug(tt.slug))
		})
	}
}

func TestValidateModelFormat(t *testing.T) {
	v := validator.New()
	require.NoError(t, RegisterConfigValidators(v))

	type model struct {
		Slug string `validate:"modelformat"`
	}
	assert.NoError(t, v.Struct(model{Slug: "openai/gpt-4o"}))
	assert.NoError(t, v.Struct(model{}), "empty passes without required")
	assert.Error(t, v.Struct(model{Slug: "gpt-4o"}))
}
