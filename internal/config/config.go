// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger       LoggerConfig       `mapstructure:"logger" yaml:"logger"`
	Classifier   ClassifierConfig   `mapstructure:"classifier" yaml:"classifier"`
	Selector     SelectorConfig     `mapstructure:"selector" yaml:"selector"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator" yaml:"orchestrator"`
	Conversation ConversationConfig `mapstructure:"conversation" yaml:"conversation"`
	History      HistoryConfig      `mapstructure:"history" yaml:"history"`
	Catalog      CatalogConfig      `mapstructure:"catalog" yaml:"catalog"`
	LLM          LLMConfig          `mapstructure:"llm" yaml:"llm"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"` // "console" or "json".
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"` // Megabytes before rotation.
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"` // Days.
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// ClassifierConfig tunes intent classification.
type ClassifierConfig struct {
	RuleWeight    float64 `mapstructure:"rule_weight" yaml:"rule_weight"`       // Weight of the rule table signal.
	ScorerWeight  float64 `mapstructure:"scorer_weight" yaml:"scorer_weight"`   // Weight of the pluggable scorer signal.
	MinConfidence float64 `mapstructure:"min_confidence" yaml:"min_confidence"` // Candidates below this are dropped (the top candidate is always kept).
}

// SelectorConfig tunes strategy selection.
type SelectorConfig struct {
	TieEpsilon        float64 `mapstructure:"tie_epsilon" yaml:"tie_epsilon"`               // Confidence delta treated as a tie.
	ComplexityPenalty float64 `mapstructure:"complexity_penalty" yaml:"complexity_penalty"` // Discount applied to direct_llm for multi-entity queries.
	EMAAlpha          float64 `mapstructure:"ema_alpha" yaml:"ema_alpha"`                   // Smoothing factor for reliability learning.
	HistorySample     int     `mapstructure:"history_sample" yaml:"history_sample"`         // Records consulted per category when adjusting reliability.
}

// OrchestratorConfig tunes path execution.
type OrchestratorConfig struct {
	MaxConcurrency int           `mapstructure:"max_concurrency" yaml:"max_concurrency"` // Steps in flight per path.
	MaxFallbacks   int           `mapstructure:"max_fallbacks" yaml:"max_fallbacks"`     // Additional paths tried after the first fails.
	SafetyFactor   float64       `mapstructure:"safety_factor" yaml:"safety_factor"`     // Multiplier over a capability's average latency for its step timeout.
	DefaultBudget  time.Duration `mapstructure:"default_budget" yaml:"default_budget"`   // Path timeout budget when the caller supplies none.
	MinStepTimeout time.Duration `mapstructure:"min_step_timeout" yaml:"min_step_timeout"`
}

// ConversationConfig tunes the context tracker.
type ConversationConfig struct {
	MaxTurns int `mapstructure:"max_turns" yaml:"max_turns"` // Intent history retained per conversation.
}

// HistoryConfig selects and configures the outcome recorder backend.
type HistoryConfig struct {
	Backend  string         `mapstructure:"backend" yaml:"backend"` // "memory" or "postgres".
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

// PostgresConfig holds the connection details for a PostgreSQL database.
type PostgresConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"-"`
	DBName   string `mapstructure:"dbname" yaml:"dbname"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode"`
}

// DSN renders the pgx connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode)
}

// CatalogConfig tunes the capability catalog's view of the connector registry.
type CatalogConfig struct {
	SeedFile      string  `mapstructure:"seed_file" yaml:"seed_file"`             // Optional JSON capability seed for registry-less runs.
	CallRateLimit float64 `mapstructure:"call_rate_limit" yaml:"call_rate_limit"` // Connector calls per second; 0 disables limiting.
	CallBurst     int     `mapstructure:"call_burst" yaml:"call_burst"`
}

// LLMConfig tunes how the core talks to the LLM service.
type LLMConfig struct {
	SynthesisTier string        `mapstructure:"synthesis_tier" yaml:"synthesis_tier"` // Tier used for final response synthesis.
	DirectTier    string        `mapstructure:"direct_tier" yaml:"direct_tier"`       // Tier used for direct_llm paths.
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Temperature   float64       `mapstructure:"temperature" yaml:"temperature"`
	RetrievalK    int           `mapstructure:"retrieval_k" yaml:"retrieval_k"` // Passages requested per retrieval step.
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults are static; this cannot fail unless the struct tags drift.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "rudder")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Classifier --
	v.SetDefault("classifier.rule_weight", 0.6)
	v.SetDefault("classifier.scorer_weight", 0.4)
	v.SetDefault("classifier.min_confidence", 0.05)

	// -- Selector --
	v.SetDefault("selector.tie_epsilon", 0.01)
	v.SetDefault("selector.complexity_penalty", 0.15)
	v.SetDefault("selector.ema_alpha", 0.3)
	v.SetDefault("selector.history_sample", 50)

	// -- Orchestrator --
	v.SetDefault("orchestrator.max_concurrency", 4)
	v.SetDefault("orchestrator.max_fallbacks", 2)
	v.SetDefault("orchestrator.safety_factor", 3.0)
	v.SetDefault("orchestrator.default_budget", "30s")
	v.SetDefault("orchestrator.min_step_timeout", "250ms")

	// -- Conversation --
	v.SetDefault("conversation.max_turns", 20)

	// -- History --
	v.SetDefault("history.backend", "memory")
	v.SetDefault("history.postgres.host", "localhost")
	v.SetDefault("history.postgres.port", 5432)
	v.SetDefault("history.postgres.user", "postgres")
	v.SetDefault("history.postgres.password", "") // Set via RUDDER_HISTORY_POSTGRES_PASSWORD.
	v.SetDefault("history.postgres.dbname", "rudder_history")
	v.SetDefault("history.postgres.sslmode", "disable")

	// -- Catalog --
	v.SetDefault("catalog.seed_file", "")
	v.SetDefault("catalog.call_rate_limit", 10.0)
	v.SetDefault("catalog.call_burst", 5)

	// -- LLM --
	v.SetDefault("llm.synthesis_tier", "powerful")
	v.SetDefault("llm.direct_tier", "fast")
	v.SetDefault("llm.timeout", "30s")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.retrieval_k", 5)
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data.
	_ = v.BindEnv("history.postgres.password", "RUDDER_HISTORY_POSTGRES_PASSWORD")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Classifier.RuleWeight < 0 || c.Classifier.ScorerWeight < 0 {
		return fmt.Errorf("classifier weights must be non-negative")
	}
	if c.Classifier.RuleWeight+c.Classifier.ScorerWeight == 0 {
		return fmt.Errorf("at least one classifier weight must be positive")
	}
	if c.Selector.TieEpsilon < 0 {
		return fmt.Errorf("selector.tie_epsilon must be non-negative")
	}
	if c.Selector.EMAAlpha < 0 || c.Selector.EMAAlpha > 1 {
		return fmt.Errorf("selector.ema_alpha must be between 0.0 and 1.0")
	}
	if c.Orchestrator.MaxConcurrency <= 0 {
		return fmt.Errorf("orchestrator.max_concurrency must be a positive integer")
	}
	if c.Orchestrator.MaxFallbacks < 0 {
		return fmt.Errorf("orchestrator.max_fallbacks must be non-negative")
	}
	if c.Orchestrator.SafetyFactor <= 0 {
		return fmt.Errorf("orchestrator.safety_factor must be positive")
	}
	if c.Conversation.MaxTurns <= 0 {
		return fmt.Errorf("conversation.max_turns must be a positive integer")
	}
	switch c.History.Backend {
	case "memory":
	case "postgres":
		if c.History.Postgres.Host == "" || c.History.Postgres.DBName == "" {
			return fmt.Errorf("history.postgres.host and history.postgres.dbname are required for the postgres backend")
		}
	default:
		return fmt.Errorf("history.backend must be \"memory\" or \"postgres\", got %q", c.History.Backend)
	}
	return nil
}
