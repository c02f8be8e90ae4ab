package config

import (
	"time"

	"github.com/BaSui01/switchboard/agent"
	"github.com/BaSui01/switchboard/agent/persistence"
	"github.com/BaSui01/switchboard/internal/cache"
	"github.com/BaSui01/switchboard/llm"
	"github.com/BaSui01/switchboard/rag"
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server:        DefaultServerConfig(),
		Orchestrator:  DefaultOrchestratorConfig(),
		Responders:    RespondersConfig{ManifestPath: "responders.yaml"},
		Redis:         cache.DefaultConfig(),
		Database:      DefaultDatabaseConfig(),
		Store:         persistence.DefaultStoreConfig(),
		Escalation:    EscalationConfig{Backend: "memory", KeyPrefix: "switchboard:hitl:"},
		LLM:           DefaultLLMConfig(),
		KnowledgeBase: DefaultKnowledgeBaseConfig(),
		Auth:          AuthConfig{Issuer: "switchboard"},
		Log:           DefaultLogConfig(),
		Telemetry:     DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    90 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    20,
		RateLimitBurst:  40,
	}
}

// DefaultOrchestratorConfig returns agent.DefaultOptions as configuration.
func DefaultOrchestratorConfig() OrchestratorConfig {
	o := agent.DefaultOptions()
	return OrchestratorConfig{
		ConfidenceFloor:         o.ConfidenceFloor,
		RepeatBound:             o.RepeatBound,
		MaxHops:                 o.MaxHops,
		HopTimeout:              o.HopTimeout,
		KBTimeout:               o.KBTimeout,
		KBResultLimit:           o.KBResultLimit,
		HistoryTokenBudget:      o.HistoryTokenBudget,
		MaxConcurrentDispatches: o.MaxConcurrentDispatches,
		EscalatedReply:          o.Fallbacks.Escalated,
		FailedReply:             o.Fallbacks.Failed,
		ResolvedReply:           o.Fallbacks.Resolved,
	}
}

// DefaultDatabaseConfig returns the default database configuration.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "switchboard",
		Name:            "switchboard",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultLLMConfig returns the default generation configuration.
func DefaultLLMConfig() LLMConfig {
	cb := llm.DefaultCircuitBreakerConfig()
	return LLMConfig{
		Provider:                "template",
		ProviderName:            "openai",
		Model:                   "gpt-4o-mini",
		Timeout:                 30 * time.Second,
		MaxTokens:               512,
		Temperature:             0.3,
		FallbackTemplate:        llm.DefaultReplyTemplate,
		CircuitFailureThreshold: cb.FailureThreshold,
		CircuitCooldown:         cb.Cooldown,
	}
}

// DefaultKnowledgeBaseConfig returns the default knowledge-base configuration.
func DefaultKnowledgeBaseConfig() KnowledgeBaseConfig {
	k := rag.DefaultKeywordConfig()
	return KnowledgeBaseConfig{
		CacheTTL: 0,
		K1:       k.K1,
		B:        k.B,
	}
}

// DefaultLogConfig returns the default log configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:        "info",
		Format:       "json",
		OutputPaths:  []string{"stdout"},
		EnableCaller: true,
	}
}

// DefaultTelemetryConfig returns the default telemetry configuration.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "switchboard",
		SampleRate:   0.1,
	}
}
