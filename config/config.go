package config

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/switchboard/agent"
	"github.com/BaSui01/switchboard/agent/persistence"
	"github.com/BaSui01/switchboard/internal/cache"
	"github.com/BaSui01/switchboard/llm"
	"github.com/BaSui01/switchboard/rag"
)

// Config is the complete Switchboard configuration.
type Config struct {
	Server        ServerConfig            `yaml:"server" env:"SERVER"`
	Orchestrator  OrchestratorConfig      `yaml:"orchestrator" env:"ORCHESTRATOR"`
	Responders    RespondersConfig        `yaml:"responders" env:"RESPONDERS"`
	Redis         cache.Config            `yaml:"redis" env:"REDIS"`
	Database      DatabaseConfig          `yaml:"database" env:"DATABASE"`
	Store         persistence.StoreConfig `yaml:"store" env:"STORE"`
	Escalation    EscalationConfig        `yaml:"escalation" env:"ESCALATION"`
	LLM           LLMConfig               `yaml:"llm" env:"LLM"`
	KnowledgeBase KnowledgeBaseConfig     `yaml:"knowledge_base" env:"KNOWLEDGE_BASE"`
	Auth          AuthConfig              `yaml:"auth" env:"AUTH"`
	Log           LogConfig               `yaml:"log" env:"LOG"`
	Telemetry     TelemetryConfig         `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig configures the HTTP transport.
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// RateLimitRPS of zero disables per-client rate limiting.
	RateLimitRPS   float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// AdminEnabled exposes the configuration endpoints under /v1/admin.
	AdminEnabled bool `yaml:"admin_enabled" env:"ADMIN_ENABLED"`
	// CORSAllowedOrigins are the browser origins allowed to call the API and
	// open the event stream. Empty rejects cross-origin requests.
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	// TLS is served when both files are set.
	TLSCertFile string `yaml:"tls_cert_file" env:"TLS_CERT_FILE"`
	TLSKeyFile  string `yaml:"tls_key_file" env:"TLS_KEY_FILE"`
}

// OrchestratorConfig mirrors agent.Options.
type OrchestratorConfig struct {
	ConfidenceFloor         float64       `yaml:"confidence_floor" env:"CONFIDENCE_FLOOR"`
	RepeatBound             int           `yaml:"repeat_bound" env:"REPEAT_BOUND"`
	MaxHops                 int           `yaml:"max_hops" env:"MAX_HOPS"`
	HopTimeout              time.Duration `yaml:"hop_timeout" env:"HOP_TIMEOUT"`
	KBTimeout               time.Duration `yaml:"kb_timeout" env:"KB_TIMEOUT"`
	KBResultLimit           int           `yaml:"kb_result_limit" env:"KB_RESULT_LIMIT"`
	HistoryTokenBudget      int           `yaml:"history_token_budget" env:"HISTORY_TOKEN_BUDGET"`
	StrictValidation        bool          `yaml:"strict_validation" env:"STRICT_VALIDATION"`
	MaxConcurrentDispatches int           `yaml:"max_concurrent_dispatches" env:"MAX_CONCURRENT_DISPATCHES"`
	// EntryAgent overrides the manifest's entry agent when set.
	EntryAgent string `yaml:"entry_agent" env:"ENTRY_AGENT"`

	EscalatedReply string `yaml:"escalated_reply" env:"ESCALATED_REPLY"`
	FailedReply    string `yaml:"failed_reply" env:"FAILED_REPLY"`
	ResolvedReply  string `yaml:"resolved_reply" env:"RESOLVED_REPLY"`
}

// Options converts the section into orchestrator options.
func (o OrchestratorConfig) Options() agent.Options {
	floor := o.ConfidenceFloor
	if floor == 0 {
		// an explicit zero in configuration turns the floor off
		floor = agent.NoConfidenceFloor
	}
	return agent.Options{
		ConfidenceFloor:         floor,
		RepeatBound:             o.RepeatBound,
		MaxHops:                 o.MaxHops,
		HopTimeout:              o.HopTimeout,
		KBTimeout:               o.KBTimeout,
		KBResultLimit:           o.KBResultLimit,
		HistoryTokenBudget:      o.HistoryTokenBudget,
		StrictValidation:        o.StrictValidation,
		MaxConcurrentDispatches: o.MaxConcurrentDispatches,
		EntryAgent:              o.EntryAgent,
		Fallbacks: agent.FallbackMessages{
			Escalated: o.EscalatedReply,
			Failed:    o.FailedReply,
			Resolved:  o.ResolvedReply,
		},
	}
}

// RespondersConfig points at the responder manifest.
type RespondersConfig struct {
	ManifestPath string `yaml:"manifest_path" env:"MANIFEST_PATH"`
}

// DatabaseConfig configures the SQL database.
type DatabaseConfig struct {
	// Driver: postgres, mysql, sqlite
	Driver          string        `yaml:"driver" env:"DRIVER"`
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	User            string        `yaml:"user" env:"USER"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	Name            string        `yaml:"name" env:"NAME"`
	SSLMode         string        `yaml:"ssl_mode" env:"SSL_MODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	// AutoMigrate applies pending migrations on serve.
	AutoMigrate bool `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
}

// DSN returns the driver-specific connection string.
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}

// EscalationConfig selects the human-escalation queue backend.
type EscalationConfig struct {
	// Backend: memory, redis or database
	Backend   string `yaml:"backend" env:"BACKEND"`
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// LLMConfig configures reply generation.
type LLMConfig struct {
	// Provider: openai (any OpenAI-compatible API) or template
	Provider     string        `yaml:"provider" env:"PROVIDER"`
	ProviderName string        `yaml:"provider_name" env:"PROVIDER_NAME"`
	APIKey       string        `yaml:"api_key" env:"API_KEY"`
	BaseURL      string        `yaml:"base_url" env:"BASE_URL"`
	Model        string        `yaml:"model" env:"MODEL"`
	EndpointPath string        `yaml:"endpoint_path" env:"ENDPOINT_PATH"`
	Timeout      time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxTokens    int           `yaml:"max_tokens" env:"MAX_TOKENS"`
	Temperature  float32       `yaml:"temperature" env:"TEMPERATURE"`

	// FallbackTemplate phrases replies while the provider is unavailable.
	// Empty disables the fallback.
	FallbackTemplate string `yaml:"fallback_template" env:"FALLBACK_TEMPLATE"`

	CircuitFailureThreshold int           `yaml:"circuit_failure_threshold" env:"CIRCUIT_FAILURE_THRESHOLD"`
	CircuitCooldown         time.Duration `yaml:"circuit_cooldown" env:"CIRCUIT_COOLDOWN"`
}

// OpenAI converts the section into the HTTP generator configuration.
func (c LLMConfig) OpenAI() llm.OpenAIConfig {
	return llm.OpenAIConfig{
		ProviderName: c.ProviderName,
		APIKey:       c.APIKey,
		BaseURL:      c.BaseURL,
		Model:        c.Model,
		Timeout:      c.Timeout,
		EndpointPath: c.EndpointPath,
		MaxTokens:    c.MaxTokens,
		Temperature:  c.Temperature,
	}
}

// Resilience converts the section into the timeout and breaker settings.
func (c LLMConfig) Resilience() llm.ResilientConfig {
	return llm.ResilientConfig{
		Timeout: c.Timeout,
		CircuitBreaker: llm.CircuitBreakerConfig{
			FailureThreshold: c.CircuitFailureThreshold,
			Cooldown:         c.CircuitCooldown,
		},
	}
}

// KnowledgeBaseConfig configures the article index.
type KnowledgeBaseConfig struct {
	// Paths are files or directories of articles. Empty disables kb_search.
	Paths []string `yaml:"paths" env:"PATHS"`
	// CacheTTL of zero disables the Redis result cache.
	CacheTTL time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
	// Watch re-indexes when article files change.
	Watch bool `yaml:"watch" env:"WATCH"`

	K1       float64 `yaml:"k1" env:"K1"`
	B        float64 `yaml:"b" env:"B"`
	MinScore float64 `yaml:"min_score" env:"MIN_SCORE"`
}

// Keyword converts the section into BM25 settings.
func (c KnowledgeBaseConfig) Keyword() rag.KeywordConfig {
	return rag.KeywordConfig{K1: c.K1, B: c.B, MinScore: c.MinScore}
}

// AuthConfig configures bearer-token authentication of the HTTP API.
// Tokens are verified with JWTSecret (HS256) or PublicKey (RS256, PEM).
type AuthConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
	PublicKey string `yaml:"public_key" env:"PUBLIC_KEY"`
	Issuer    string `yaml:"issuer" env:"ISSUER"`
	Audience  string `yaml:"audience" env:"AUDIENCE"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json, console
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
	Insecure     bool    `yaml:"insecure" env:"INSECURE"`
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		errs = append(errs, "server.tls_cert_file and server.tls_key_file must be set together")
	}
	if c.Server.RateLimitRPS < 0 {
		errs = append(errs, "server.rate_limit_rps must not be negative")
	}

	o := c.Orchestrator
	if o.ConfidenceFloor < 0 || o.ConfidenceFloor > 1 {
		errs = append(errs, "orchestrator.confidence_floor must be between 0 and 1")
	}
	if o.RepeatBound < 1 {
		errs = append(errs, "orchestrator.repeat_bound must be positive")
	}
	if o.MaxHops < 1 {
		errs = append(errs, "orchestrator.max_hops must be positive")
	}
	if o.HopTimeout <= 0 {
		errs = append(errs, "orchestrator.hop_timeout must be positive")
	}

	if c.Responders.ManifestPath == "" {
		errs = append(errs, "responders.manifest_path is required")
	}

	switch c.Store.Type {
	case persistence.StoreTypeMemory, persistence.StoreTypeRedis:
	case persistence.StoreTypeDatabase:
		if c.Database.DSN() == "" {
			errs = append(errs, fmt.Sprintf("unsupported database driver %q", c.Database.Driver))
		}
	default:
		errs = append(errs, fmt.Sprintf("unsupported store type %q", c.Store.Type))
	}

	switch c.Escalation.Backend {
	case "memory", "redis":
	case "database":
		if c.Database.DSN() == "" {
			errs = append(errs, fmt.Sprintf("unsupported database driver %q", c.Database.Driver))
		}
	default:
		errs = append(errs, fmt.Sprintf("unsupported escalation backend %q", c.Escalation.Backend))
	}

	switch c.LLM.Provider {
	case "template":
	case "openai":
		if c.LLM.Model == "" {
			errs = append(errs, "llm.model is required for the openai provider")
		}
	default:
		errs = append(errs, fmt.Sprintf("unsupported llm provider %q", c.LLM.Provider))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, "llm.temperature must be between 0 and 2")
	}

	if c.Auth.Enabled {
		switch {
		case c.Auth.JWTSecret == "" && c.Auth.PublicKey == "":
			errs = append(errs, "auth.jwt_secret or auth.public_key is required when auth is enabled")
		case c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32:
			errs = append(errs, "auth.jwt_secret must be at least 32 bytes when auth is enabled")
		}
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Sprintf("invalid log level %q", c.Log.Level))
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry.sample_rate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
