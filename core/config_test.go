package core

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "capgate", cfg.Name)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "default", cfg.Namespace)

	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)

	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.Telemetry.Enabled)

	assert.Equal(t, 8, cfg.Executor.MaxConcurrency)
	assert.Equal(t, 4, cfg.Ranker.Heads)
	assert.Equal(t, 1.0, cfg.Thompson.PriorAlpha)
	assert.Equal(t, 1.0, cfg.Thompson.PriorBeta)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoadFromEnv(t *testing.T) {
	testEnv := map[string]string{
		EnvGatewayName:           "test-gateway",
		EnvGatewayPort:           "9090",
		EnvGatewayAddress:        "0.0.0.0",
		EnvGatewayNamespace:      "testing",
		EnvGatewayLogLevel:       "debug",
		EnvGatewayLogFormat:      "json",
		EnvGatewayRedisURL:       "redis://test-redis:6379",
		EnvGatewayMaxConcurrency: "16",
		EnvGatewayTaskTimeout:    "45s",
		EnvGatewayOTELEndpoint:   "http://otel:4317",
		EnvGatewayThompsonSeed:   "42",
		EnvGatewaySHGATHeads:     "6",
	}

	for k, v := range testEnv {
		_ = os.Setenv(k, v)
		defer func(k string) { _ = os.Unsetenv(k) }(k)
	}

	cfg := DefaultConfig()
	err := cfg.LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "test-gateway", cfg.Name)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Address)
	assert.Equal(t, "testing", cfg.Namespace)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "redis://test-redis:6379", cfg.Redis.URL)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 16, cfg.Executor.MaxConcurrency)
	assert.Equal(t, 45*time.Second, cfg.Executor.TaskTimeout)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "http://otel:4317", cfg.Telemetry.Endpoint)
	assert.Equal(t, int64(42), cfg.Thompson.Seed)
	assert.Equal(t, 6, cfg.Ranker.Heads)
}

func TestLoadFromEnvRejectsBadValues(t *testing.T) {
	_ = os.Setenv(EnvGatewayPort, "not-a-number")
	defer func() { _ = os.Unsetenv(EnvGatewayPort) }()

	cfg := DefaultConfig()
	err := cfg.LoadFromEnv()
	assert.Error(t, err)
}

func TestLoadFromFileJSON(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.json")

	configData := map[string]interface{}{
		"name":      "file-gateway",
		"namespace": "file-namespace",
		"http":      map[string]interface{}{"port": 8888},
		"logging":   map[string]interface{}{"level": "warn", "format": "text"},
	}

	jsonData, err := json.MarshalIndent(configData, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(configFile, jsonData, 0644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(configFile))

	assert.Equal(t, "file-gateway", cfg.Name)
	assert.Equal(t, 8888, cfg.Server.Port)
	assert.Equal(t, "file-namespace", cfg.Namespace)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*Config)
		wantErr string
	}{
		{
			name:    "valid configuration",
			setup:   func(cfg *Config) {},
			wantErr: "",
		},
		{
			name:    "invalid port - too low",
			setup:   func(cfg *Config) { cfg.Server.Port = 0 },
			wantErr: "invalid port: 0",
		},
		{
			name:    "invalid port - too high",
			setup:   func(cfg *Config) { cfg.Server.Port = 70000 },
			wantErr: "invalid port: 70000",
		},
		{
			name:    "missing gateway name",
			setup:   func(cfg *Config) { cfg.Name = "" },
			wantErr: "gateway name is required",
		},
		{
			name:    "zero concurrency rejected",
			setup:   func(cfg *Config) { cfg.Executor.MaxConcurrency = 0 },
			wantErr: "max concurrency must be >= 1",
		},
		{
			name:    "zero ranker heads rejected",
			setup:   func(cfg *Config) { cfg.Ranker.Heads = 0 },
			wantErr: "ranker heads must be >= 1",
		},
		{
			name:    "non-positive thompson prior rejected",
			setup:   func(cfg *Config) { cfg.Thompson.PriorAlpha = 0 },
			wantErr: "thompson priors must be positive",
		},
		{
			name: "telemetry enabled without endpoint",
			setup: func(cfg *Config) {
				cfg.Telemetry.Enabled = true
				cfg.Telemetry.Endpoint = ""
			},
			wantErr: "telemetry endpoint is required when telemetry is enabled",
		},
		{
			name: "redis enabled without url",
			setup: func(cfg *Config) {
				cfg.Redis.Enabled = true
				cfg.Redis.URL = ""
			},
			wantErr: "redis URL is required when redis is enabled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.setup(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestFunctionalOptions(t *testing.T) {
	t.Run("WithName", func(t *testing.T) {
		cfg, err := NewConfig(WithName("custom-gateway"))
		require.NoError(t, err)
		assert.Equal(t, "custom-gateway", cfg.Name)
	})

	t.Run("WithPort", func(t *testing.T) {
		cfg, err := NewConfig(WithPort(9999))
		require.NoError(t, err)
		assert.Equal(t, 9999, cfg.Server.Port)

		_, err = NewConfig(WithPort(0))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid port")
	})

	t.Run("WithAddress", func(t *testing.T) {
		cfg, err := NewConfig(WithAddress("127.0.0.1"))
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1", cfg.Address)
	})

	t.Run("WithRedisURL", func(t *testing.T) {
		cfg, err := NewConfig(WithRedisURL("redis://custom-redis:6379"))
		require.NoError(t, err)
		assert.Equal(t, "redis://custom-redis:6379", cfg.Redis.URL)
		assert.True(t, cfg.Redis.Enabled)
	})

	t.Run("WithRegistryDefaults", func(t *testing.T) {
		cfg, err := NewConfig(WithRegistryDefaults("global", "public"))
		require.NoError(t, err)
		assert.Equal(t, "global", cfg.Registry.DefaultScope)
		assert.Equal(t, "public", cfg.Registry.DefaultVisibility)
	})

	t.Run("WithRankerHyperparams", func(t *testing.T) {
		cfg, err := NewConfig(WithRankerHyperparams(8, 512, 0.05))
		require.NoError(t, err)
		assert.Equal(t, 8, cfg.Ranker.Heads)
		assert.Equal(t, 512, cfg.Ranker.EmbeddingDim)
		assert.Equal(t, 0.05, cfg.Ranker.LearningRate)
	})

	t.Run("WithThompsonPriors", func(t *testing.T) {
		cfg, err := NewConfig(WithThompsonPriors(2.0, 3.0, 7))
		require.NoError(t, err)
		assert.Equal(t, 2.0, cfg.Thompson.PriorAlpha)
		assert.Equal(t, 3.0, cfg.Thompson.PriorBeta)
		assert.Equal(t, int64(7), cfg.Thompson.Seed)

		_, err = NewConfig(WithThompsonPriors(0, 1, 0))
		assert.Error(t, err)
	})

	t.Run("WithExecutorLimits", func(t *testing.T) {
		cfg, err := NewConfig(WithExecutorLimits(32, 90*time.Second))
		require.NoError(t, err)
		assert.Equal(t, 32, cfg.Executor.MaxConcurrency)
		assert.Equal(t, 90*time.Second, cfg.Executor.TaskTimeout)
	})

	t.Run("WithTelemetry", func(t *testing.T) {
		cfg, err := NewConfig(WithTelemetry(true, "http://otel:4317"))
		require.NoError(t, err)
		assert.True(t, cfg.Telemetry.Enabled)
		assert.Equal(t, "http://otel:4317", cfg.Telemetry.Endpoint)
	})

	t.Run("WithOTELEndpoint", func(t *testing.T) {
		cfg, err := NewConfig(WithOTELEndpoint("http://jaeger:4317"))
		require.NoError(t, err)
		assert.True(t, cfg.Telemetry.Enabled)
		assert.Equal(t, "otel", cfg.Telemetry.Provider)
		assert.Equal(t, "http://jaeger:4317", cfg.Telemetry.Endpoint)
	})

	t.Run("WithLogLevel", func(t *testing.T) {
		cfg, err := NewConfig(WithLogLevel("debug"))
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})

	t.Run("WithCircuitBreaker", func(t *testing.T) {
		cfg, err := NewConfig(WithCircuitBreaker(10, 60*time.Second))
		require.NoError(t, err)
		assert.True(t, cfg.Resilience.CircuitBreaker.Enabled)
		assert.Equal(t, 10, cfg.Resilience.CircuitBreaker.Threshold)
		assert.Equal(t, 60*time.Second, cfg.Resilience.CircuitBreaker.Timeout)
	})

	t.Run("WithRetry", func(t *testing.T) {
		cfg, err := NewConfig(WithRetry(5, 2*time.Second))
		require.NoError(t, err)
		assert.Equal(t, 5, cfg.Resilience.Retry.MaxAttempts)
		assert.Equal(t, 2*time.Second, cfg.Resilience.Retry.InitialInterval)
	})

	t.Run("WithDevelopmentMode", func(t *testing.T) {
		cfg, err := NewConfig(WithDevelopmentMode(true))
		require.NoError(t, err)
		assert.True(t, cfg.Development.Enabled)
		assert.True(t, cfg.Development.PrettyLogs)
		assert.Equal(t, "text", cfg.Logging.Format)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})

	t.Run("WithMockTools", func(t *testing.T) {
		cfg, err := NewConfig(WithMockTools(true))
		require.NoError(t, err)
		assert.True(t, cfg.Development.MockTools)
	})
}

func TestConfigPriority(t *testing.T) {
	_ = os.Setenv(EnvGatewayPort, "7777")
	defer func() { _ = os.Unsetenv(EnvGatewayPort) }()

	cfg, err := NewConfig(WithPort(8888))
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.Port)
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"true", true},
		{"True", true},
		{"1", true},
		{"yes", true},
		{"on", true},
		{"false", false},
		{"0", false},
		{"", false},
		{"invalid", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, parseBool(tt.input), "input: %s", tt.input)
	}
}

func TestConfigWithConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "test-config.json")

	configData := map[string]interface{}{
		"name": "file-loaded-gateway",
		"http": map[string]interface{}{"port": 7777},
	}

	jsonData, err := json.MarshalIndent(configData, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(configFile, jsonData, 0644))

	cfg, err := NewConfig(
		WithConfigFile(configFile),
		WithPort(8888), // option applied after the file load wins
	)
	require.NoError(t, err)

	assert.Equal(t, "file-loaded-gateway", cfg.Name)
	assert.Equal(t, 8888, cfg.Server.Port)
}

func BenchmarkNewConfig(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = NewConfig(
			WithName("bench-gateway"),
			WithPort(8080),
			WithRedisURL("redis://localhost:6379"),
		)
	}
}

func BenchmarkValidate(b *testing.B) {
	cfg := DefaultConfig()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = cfg.Validate()
	}
}
