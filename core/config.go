package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration tree for gatewayd. It is built in
// three layers, each overriding the previous: DefaultConfig(), then
// LoadFromEnv(), then any functional Options passed to NewConfig.
type Config struct {
	Name      string `json:"name" yaml:"name"`
	Address   string `json:"address" yaml:"address"`
	Namespace string `json:"namespace" yaml:"namespace"`

	Server     HTTPConfig      `json:"http" yaml:"http"`
	Redis      RedisConfig     `json:"redis" yaml:"redis"`
	Registry   RegistryConfig  `json:"registry" yaml:"registry"`
	TraceStore TraceStoreConfig `json:"trace_store" yaml:"trace_store"`
	Hyperpath  HyperpathConfig `json:"hyperpath" yaml:"hyperpath"`
	Ranker     RankerConfig    `json:"ranker" yaml:"ranker"`
	Thompson   ThompsonConfig  `json:"thompson" yaml:"thompson"`
	Executor   ExecutorConfig  `json:"executor" yaml:"executor"`
	Telemetry  TelemetryConfig `json:"telemetry" yaml:"telemetry"`
	Resilience ResilienceConfig `json:"resilience" yaml:"resilience"`
	Logging    LoggingConfig   `json:"logging" yaml:"logging"`

	Development DevelopmentConfig `json:"development" yaml:"development"`
}

// HTTPConfig controls the gatewayd HTTP listener.
type HTTPConfig struct {
	Port            int           `json:"port" yaml:"port"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// RedisConfig configures the backing store shared by the Capability
// Registry, Trace Store and HIL checkpoint store. When Enabled is false
// every component falls back to its in-memory implementation.
type RedisConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	URL     string `json:"url" yaml:"url"`
	Prefix  string `json:"prefix" yaml:"prefix"`
}

// RegistryConfig configures the Capability Registry (C2).
type RegistryConfig struct {
	DefaultScope      string `json:"default_scope" yaml:"default_scope"`
	DefaultVisibility string `json:"default_visibility" yaml:"default_visibility"`
	FQDNOrg           string `json:"fqdn_org" yaml:"fqdn_org"`
	FQDNProject       string `json:"fqdn_project" yaml:"fqdn_project"`
}

// TraceStoreConfig configures the Trace Store (C3) and its PER sampling.
type TraceStoreConfig struct {
	RetentionTTL  time.Duration `json:"retention_ttl" yaml:"retention_ttl"`
	PERAlpha      float64       `json:"per_alpha" yaml:"per_alpha"`
	PEREpsilon    float64       `json:"per_epsilon" yaml:"per_epsilon"`
}

// HyperpathConfig configures DR-DSP (C5).
type HyperpathConfig struct {
	RecomputeBatchSize int `json:"recompute_batch_size" yaml:"recompute_batch_size"`
	MaxHyperedges      int `json:"max_hyperedges_per_query" yaml:"max_hyperedges_per_query"`
}

// RankerConfig configures SHGAT (C6).
type RankerConfig struct {
	Heads         int     `json:"heads" yaml:"heads"`
	EmbeddingDim  int     `json:"embedding_dim" yaml:"embedding_dim"`
	LearningRate  float64 `json:"learning_rate" yaml:"learning_rate"`
	PERBatchSize  int     `json:"per_batch_size" yaml:"per_batch_size"`
}

// ThompsonConfig configures the Thompson Threshold Manager (C7).
type ThompsonConfig struct {
	PriorAlpha float64 `json:"prior_alpha" yaml:"prior_alpha"`
	PriorBeta  float64 `json:"prior_beta" yaml:"prior_beta"`
	Seed       int64   `json:"seed" yaml:"seed"`
}

// ExecutorConfig configures the Controlled Executor (C9).
type ExecutorConfig struct {
	MaxConcurrency   int           `json:"max_concurrency" yaml:"max_concurrency"`
	TaskTimeout      time.Duration `json:"task_timeout" yaml:"task_timeout"`
	EventQueueDepth  int           `json:"event_queue_depth" yaml:"event_queue_depth"`
	CheckpointEvery  int           `json:"checkpoint_every_layer" yaml:"checkpoint_every_layer"`
	ApprovalTimeout  time.Duration `json:"approval_timeout" yaml:"approval_timeout"`
}

// TelemetryConfig mirrors the teacher's telemetry wiring: off by default,
// switched on with an OTel collector endpoint.
type TelemetryConfig struct {
	Enabled        bool   `json:"enabled" yaml:"enabled"`
	Provider       string `json:"provider" yaml:"provider"`
	Endpoint       string `json:"endpoint" yaml:"endpoint"`
	MetricsEnabled bool   `json:"metrics_enabled" yaml:"metrics_enabled"`
	TracingEnabled bool   `json:"tracing_enabled" yaml:"tracing_enabled"`
}

// ResilienceConfig configures the circuit breaker and retry policy
// wrapping calls into the tool-provider bridge.
type ResilienceConfig struct {
	CircuitBreaker CircuitBreakerSettings `json:"circuit_breaker" yaml:"circuit_breaker"`
	Retry          RetrySettings          `json:"retry" yaml:"retry"`
}

type CircuitBreakerSettings struct {
	Enabled   bool          `json:"enabled" yaml:"enabled"`
	Threshold int           `json:"threshold" yaml:"threshold"`
	Timeout   time.Duration `json:"timeout" yaml:"timeout"`
}

type RetrySettings struct {
	MaxAttempts     int           `json:"max_attempts" yaml:"max_attempts"`
	InitialInterval time.Duration `json:"initial_interval" yaml:"initial_interval"`
}

// LoggingConfig controls ProductionLogger output.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"` // "json" or "text"
	Output string `json:"output" yaml:"output"` // "stdout" or "stderr"
}

// DevelopmentConfig enables local-loop conveniences: pretty logs and an
// in-memory stand-in for the tool-provider bridge.
type DevelopmentConfig struct {
	Enabled      bool `json:"enabled" yaml:"enabled"`
	PrettyLogs   bool `json:"pretty_logs" yaml:"pretty_logs"`
	DebugLogging bool `json:"debug_logging" yaml:"debug_logging"`
	MockTools    bool `json:"mock_tools" yaml:"mock_tools"`
}

// Option mutates a Config during NewConfig and can reject invalid input.
type Option func(*Config) error

// DefaultConfig returns a Config with conservative, locally-runnable
// defaults: in-memory stores, no telemetry, text logging.
func DefaultConfig() *Config {
	return &Config{
		Name:      "capgate",
		Address:   "localhost",
		Namespace: "default",
		Server: HTTPConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Redis: RedisConfig{
			Enabled: false,
			URL:     "redis://localhost:6379",
			Prefix:  "capgate:",
		},
		Registry: RegistryConfig{
			DefaultScope:      "workspace",
			DefaultVisibility: "private",
			FQDNOrg:           "local",
			FQDNProject:       "capgate",
		},
		TraceStore: TraceStoreConfig{
			RetentionTTL: 30 * 24 * time.Hour,
			PERAlpha:     0.6,
			PEREpsilon:   1e-3,
		},
		Hyperpath: HyperpathConfig{
			RecomputeBatchSize: 32,
			MaxHyperedges:      4096,
		},
		Ranker: RankerConfig{
			Heads:        4,
			EmbeddingDim: 256,
			LearningRate: 0.01,
			PERBatchSize: 32,
		},
		Thompson: ThompsonConfig{
			PriorAlpha: 1.0,
			PriorBeta:  1.0,
			Seed:       0,
		},
		Executor: ExecutorConfig{
			MaxConcurrency:  8,
			TaskTimeout:     60 * time.Second,
			EventQueueDepth: 256,
			CheckpointEvery: 1,
			ApprovalTimeout: 10 * time.Minute,
		},
		Telemetry: TelemetryConfig{
			Enabled:        false,
			Provider:       "otel",
			MetricsEnabled: true,
			TracingEnabled: true,
		},
		Resilience: ResilienceConfig{
			CircuitBreaker: CircuitBreakerSettings{
				Enabled:   true,
				Threshold: 5,
				Timeout:   30 * time.Second,
			},
			Retry: RetrySettings{
				MaxAttempts:     3,
				InitialInterval: 500 * time.Millisecond,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Development: DevelopmentConfig{
			Enabled:    true,
			PrettyLogs: true,
		},
	}
}

// Environment variable names read by LoadFromEnv.
const (
	EnvGatewayName           = "CAPGATE_NAME"
	EnvGatewayAddress        = "CAPGATE_ADDRESS"
	EnvGatewayPort           = "CAPGATE_PORT"
	EnvGatewayNamespace      = "CAPGATE_NAMESPACE"
	EnvGatewayRedisURL       = "CAPGATE_REDIS_URL"
	EnvGatewayRedisEnabled   = "CAPGATE_REDIS_ENABLED"
	EnvGatewayLogLevel       = "CAPGATE_LOG_LEVEL"
	EnvGatewayLogFormat      = "CAPGATE_LOG_FORMAT"
	EnvGatewayMaxConcurrency = "CAPGATE_MAX_CONCURRENCY"
	EnvGatewayTaskTimeout    = "CAPGATE_TASK_TIMEOUT"
	EnvGatewayOTELEndpoint   = "CAPGATE_OTEL_ENDPOINT"
	EnvGatewayDevMode        = "CAPGATE_DEV_MODE"
	EnvGatewayThompsonSeed   = "CAPGATE_THOMPSON_SEED"
	EnvGatewaySHGATHeads     = "CAPGATE_SHGAT_HEADS"
)

// LoadFromEnv overlays environment variables on top of the receiver.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv(EnvGatewayName); v != "" {
		c.Name = v
	}
	if v := os.Getenv(EnvGatewayAddress); v != "" {
		c.Address = v
	}
	if v := os.Getenv(EnvGatewayNamespace); v != "" {
		c.Namespace = v
	}
	if v := os.Getenv(EnvGatewayPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvGatewayPort, ErrInvalidArgument)
		}
		c.Server.Port = port
	}
	if v := os.Getenv(EnvGatewayRedisURL); v != "" {
		c.Redis.URL = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv(EnvGatewayRedisEnabled); v != "" {
		c.Redis.Enabled = parseBool(v)
	}
	if v := os.Getenv(EnvGatewayLogLevel); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv(EnvGatewayLogFormat); v != "" {
		c.Logging.Format = strings.ToLower(v)
	}
	if v := os.Getenv(EnvGatewayMaxConcurrency); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvGatewayMaxConcurrency, ErrInvalidArgument)
		}
		c.Executor.MaxConcurrency = n
	}
	if v := os.Getenv(EnvGatewayTaskTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvGatewayTaskTimeout, ErrInvalidArgument)
		}
		c.Executor.TaskTimeout = d
	}
	if v := os.Getenv(EnvGatewayOTELEndpoint); v != "" {
		c.Telemetry.Enabled = true
		c.Telemetry.Endpoint = v
	}
	if v := os.Getenv(EnvGatewayThompsonSeed); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvGatewayThompsonSeed, ErrInvalidArgument)
		}
		c.Thompson.Seed = seed
	}
	if v := os.Getenv(EnvGatewaySHGATHeads); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvGatewaySHGATHeads, ErrInvalidArgument)
		}
		c.Ranker.Heads = n
	}
	if v := os.Getenv(EnvGatewayDevMode); v != "" && parseBool(v) {
		c.Development.Enabled = true
		c.Development.PrettyLogs = true
		c.Logging.Format = "text"
		c.Logging.Level = "debug"
	}
	return nil
}

// LoadFromFile loads JSON or YAML configuration from path over the
// receiver. File format is inferred from the extension.
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parsing JSON config file: %w", ErrInvalidArgument)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parsing YAML config file: %w", ErrInvalidArgument)
		}
	default:
		return fmt.Errorf("unsupported config file extension %s: %w", ext, ErrInvalidArgument)
	}
	return nil
}

// Validate rejects configurations that would make the gateway
// unschedulable or unobservable.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("gateway name is required: %w", ErrInvalidArgument)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d: %w", c.Server.Port, ErrInvalidArgument)
	}
	if c.Executor.MaxConcurrency < 1 {
		return fmt.Errorf("executor max concurrency must be >= 1: %w", ErrInvalidArgument)
	}
	if c.Ranker.Heads < 1 {
		return fmt.Errorf("ranker heads must be >= 1: %w", ErrInvalidArgument)
	}
	if c.Thompson.PriorAlpha <= 0 || c.Thompson.PriorBeta <= 0 {
		return fmt.Errorf("thompson priors must be positive: %w", ErrInvalidArgument)
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry endpoint is required when telemetry is enabled: %w", ErrInvalidArgument)
	}
	if c.Redis.Enabled && c.Redis.URL == "" {
		return fmt.Errorf("redis URL is required when redis is enabled: %w", ErrInvalidArgument)
	}
	return nil
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}

// ============================================================================
// Functional options
// ============================================================================

func WithName(name string) Option {
	return func(c *Config) error {
		if name == "" {
			return fmt.Errorf("name cannot be empty: %w", ErrInvalidArgument)
		}
		c.Name = name
		return nil
	}
}

func WithPort(port int) Option {
	return func(c *Config) error {
		if port < 1 || port > 65535 {
			return fmt.Errorf("invalid port: %d: %w", port, ErrInvalidArgument)
		}
		c.Server.Port = port
		return nil
	}
}

func WithAddress(address string) Option {
	return func(c *Config) error {
		c.Address = address
		return nil
	}
}

func WithNamespace(namespace string) Option {
	return func(c *Config) error {
		c.Namespace = namespace
		return nil
	}
}

func WithRedisURL(url string) Option {
	return func(c *Config) error {
		c.Redis.URL = url
		c.Redis.Enabled = true
		return nil
	}
}

func WithRegistryDefaults(scope, visibility string) Option {
	return func(c *Config) error {
		c.Registry.DefaultScope = scope
		c.Registry.DefaultVisibility = visibility
		return nil
	}
}

func WithRankerHyperparams(heads, embeddingDim int, learningRate float64) Option {
	return func(c *Config) error {
		if heads < 1 {
			return fmt.Errorf("ranker heads must be >= 1: %w", ErrInvalidArgument)
		}
		c.Ranker.Heads = heads
		c.Ranker.EmbeddingDim = embeddingDim
		c.Ranker.LearningRate = learningRate
		return nil
	}
}

func WithThompsonPriors(alpha, beta float64, seed int64) Option {
	return func(c *Config) error {
		if alpha <= 0 || beta <= 0 {
			return fmt.Errorf("thompson priors must be positive: %w", ErrInvalidArgument)
		}
		c.Thompson.PriorAlpha = alpha
		c.Thompson.PriorBeta = beta
		c.Thompson.Seed = seed
		return nil
	}
}

func WithExecutorLimits(maxConcurrency int, taskTimeout time.Duration) Option {
	return func(c *Config) error {
		if maxConcurrency < 1 {
			return fmt.Errorf("executor max concurrency must be >= 1: %w", ErrInvalidArgument)
		}
		c.Executor.MaxConcurrency = maxConcurrency
		c.Executor.TaskTimeout = taskTimeout
		return nil
	}
}

func WithTelemetry(enabled bool, endpoint string) Option {
	return func(c *Config) error {
		c.Telemetry.Enabled = enabled
		c.Telemetry.Endpoint = endpoint
		return nil
	}
}

func WithEnableMetrics(enabled bool) Option {
	return func(c *Config) error {
		c.Telemetry.MetricsEnabled = enabled
		return nil
	}
}

func WithEnableTracing(enabled bool) Option {
	return func(c *Config) error {
		c.Telemetry.TracingEnabled = enabled
		return nil
	}
}

func WithOTELEndpoint(endpoint string) Option {
	return func(c *Config) error {
		c.Telemetry.Enabled = true
		c.Telemetry.Provider = "otel"
		c.Telemetry.Endpoint = endpoint
		return nil
	}
}

func WithLogLevel(level string) Option {
	return func(c *Config) error {
		c.Logging.Level = level
		return nil
	}
}

func WithLogFormat(format string) Option {
	return func(c *Config) error {
		c.Logging.Format = format
		return nil
	}
}

func WithCircuitBreaker(threshold int, timeout time.Duration) Option {
	return func(c *Config) error {
		c.Resilience.CircuitBreaker.Enabled = true
		c.Resilience.CircuitBreaker.Threshold = threshold
		c.Resilience.CircuitBreaker.Timeout = timeout
		return nil
	}
}

func WithRetry(maxAttempts int, initialInterval time.Duration) Option {
	return func(c *Config) error {
		c.Resilience.Retry.MaxAttempts = maxAttempts
		c.Resilience.Retry.InitialInterval = initialInterval
		return nil
	}
}

func WithConfigFile(path string) Option {
	return func(c *Config) error {
		return c.LoadFromFile(path)
	}
}

func WithDevelopmentMode(enabled bool) Option {
	return func(c *Config) error {
		c.Development.Enabled = enabled
		if enabled {
			c.Development.PrettyLogs = true
			c.Logging.Format = "text"
			c.Logging.Level = "debug"
		}
		return nil
	}
}

func WithMockTools(enabled bool) Option {
	return func(c *Config) error {
		c.Development.MockTools = enabled
		return nil
	}
}

// NewConfig builds a Config by layering DefaultConfig(), LoadFromEnv(),
// and then the supplied Options in order, validating the result.
func NewConfig(opts ...Option) (*Config, error) {
	c := DefaultConfig()
	if err := c.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("loading config from environment: %w", err)
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("applying config option: %w", err)
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// ============================================================================
// ProductionLogger
// ============================================================================

// ProductionLogger is the Logger/ComponentAwareLogger implementation used
// outside of tests: JSON or text output, optional metrics emission once
// telemetry registers itself, and per-component tagging.
type ProductionLogger struct {
	level       string
	debug       bool
	serviceName string
	component   string
	format      string
	output      io.Writer

	metricsEnabled bool
}

// NewProductionLogger builds a logger from LoggingConfig.
func NewProductionLogger(logging LoggingConfig, dev DevelopmentConfig, serviceName string) Logger {
	var output io.Writer = os.Stdout
	if logging.Output == "stderr" {
		output = os.Stderr
	}

	logger := &ProductionLogger{
		level:       strings.ToLower(logging.Level),
		debug:       dev.DebugLogging || logging.Level == "debug",
		serviceName: serviceName,
		component:   "gateway",
		format:      logging.Format,
		output:      output,
	}
	trackLogger(logger)
	return logger
}

// EnableMetrics is called by the telemetry package once it registers a
// MetricsRegistry, turning on metric emission for every log call.
func (p *ProductionLogger) EnableMetrics() {
	p.metricsEnabled = true
}

// WithComponent returns a logger that tags every record with component,
// sharing this logger's output, level and metrics state.
func (p *ProductionLogger) WithComponent(component string) Logger {
	clone := *p
	clone.component = component
	return &clone
}

// GetComponent returns the component this logger tags its records with.
func (p *ProductionLogger) GetComponent() string {
	return p.component
}

func (p *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields, nil)
}

func (p *ProductionLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields, ctx)
}

func (p *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, fields, nil)
}

func (p *ProductionLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, fields, ctx)
}

func (p *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields, nil)
}

func (p *ProductionLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields, ctx)
}

func (p *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields, nil)
	}
}

func (p *ProductionLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields, ctx)
	}
}

func (p *ProductionLogger) logEvent(level, msg string, fields map[string]interface{}, ctx context.Context) {
	timestamp := time.Now().Format(time.RFC3339)

	if p.format == "json" {
		logEntry := map[string]interface{}{
			"timestamp": timestamp,
			"level":     level,
			"service":   p.serviceName,
			"component": p.component,
			"message":   msg,
		}

		if ctx != nil && p.metricsEnabled {
			if baggage := getContextBaggage(ctx); len(baggage) > 0 {
				for k, v := range baggage {
					logEntry["trace."+k] = v
				}
			}
		}

		for k, v := range fields {
			logEntry[k] = v
		}

		if data, err := json.Marshal(logEntry); err == nil {
			fmt.Fprintln(p.output, string(data))
		}
	} else {
		traceInfo := ""
		if ctx != nil && p.metricsEnabled {
			if baggage := getContextBaggage(ctx); baggage["request_id"] != "" {
				traceInfo = fmt.Sprintf("[req=%s] ", baggage["request_id"])
			}
		}

		var fieldStr strings.Builder
		if len(fields) > 0 {
			fieldStr.WriteString(" ")
			for k, v := range fields {
				fieldStr.WriteString(fmt.Sprintf("%s=%v ", k, v))
			}
		}

		fmt.Fprintf(p.output, "%s [%s] [%s/%s] %s%s%s\n",
			timestamp, level, p.serviceName, p.component, traceInfo, msg, fieldStr.String())
	}

	if p.metricsEnabled {
		p.emitFrameworkMetric(level, msg, fields, ctx)
	}
}

func (p *ProductionLogger) emitFrameworkMetric(level, msg string, fields map[string]interface{}, ctx context.Context) {
	labels := []string{
		"level", level,
		"service", p.serviceName,
		"component", p.component,
	}

	for k, v := range fields {
		switch k {
		case "operation", "status", "error_kind", "fqdn", "provider":
			labels = append(labels, k, fmt.Sprintf("%v", v))
		}
	}

	if ctx != nil {
		emitMetricWithContext(ctx, "capgate.log.events", 1.0, labels...)
	} else {
		emitMetric("capgate.log.events", 1.0, labels...)
	}
}

func emitMetric(name string, value float64, labels ...string) {
	if globalMetricsRegistry != nil {
		globalMetricsRegistry.Counter(name, labels...)
	}
}

func emitMetricWithContext(ctx context.Context, name string, value float64, labels ...string) {
	if globalMetricsRegistry != nil {
		globalMetricsRegistry.EmitWithContext(ctx, name, value, labels...)
	}
}

func getContextBaggage(ctx context.Context) map[string]string {
	if globalMetricsRegistry != nil {
		return globalMetricsRegistry.GetBaggage(ctx)
	}
	return make(map[string]string)
}
