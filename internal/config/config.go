// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Engine() EngineConfig
	Executor() ExecutorConfig
	Retry() RetryConfig
	Rules() RulesConfig
	Sandbox() SandboxConfig
	Server() ServerConfig
	Session() SessionConfig
	Database() DatabaseConfig
}

// Config holds the entire application configuration.
// Fields are exported so viper can unmarshal into them; consumers go through the getters.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	EngineCfg   EngineConfig   `mapstructure:"engine" yaml:"engine"`
	ExecutorCfg ExecutorConfig `mapstructure:"executor" yaml:"executor"`
	RetryCfg    RetryConfig    `mapstructure:"retry" yaml:"retry"`
	RulesCfg    RulesConfig    `mapstructure:"rules" yaml:"rules"`
	SandboxCfg  SandboxConfig  `mapstructure:"sandbox" yaml:"sandbox"`
	ServerCfg   ServerConfig   `mapstructure:"server" yaml:"server"`
	SessionCfg  SessionConfig  `mapstructure:"session" yaml:"session"`
	DatabaseCfg DatabaseConfig `mapstructure:"database" yaml:"database"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Engine() EngineConfig     { return c.EngineCfg }
func (c *Config) Executor() ExecutorConfig { return c.ExecutorCfg }
func (c *Config) Retry() RetryConfig       { return c.RetryCfg }
func (c *Config) Rules() RulesConfig       { return c.RulesCfg }
func (c *Config) Sandbox() SandboxConfig   { return c.SandboxCfg }
func (c *Config) Server() ServerConfig     { return c.ServerCfg }
func (c *Config) Session() SessionConfig   { return c.SessionCfg }
func (c *Config) Database() DatabaseConfig { return c.DatabaseCfg }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// EngineConfig bounds a single goal execution.
type EngineConfig struct {
	MaxExecutionTime time.Duration `mapstructure:"max_execution_time" yaml:"max_execution_time"`
	MaxSubgoals      int           `mapstructure:"max_subgoals" yaml:"max_subgoals"`
	// HistoryLimit caps the in-process run history used for statistics.
	HistoryLimit int `mapstructure:"history_limit" yaml:"history_limit"`
}

// ExecutorConfig bounds the per-subgoal plan/act/observe loop.
type ExecutorConfig struct {
	MaxSteps int           `mapstructure:"max_steps" yaml:"max_steps"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// RetryConfig tunes the retry coordinator and the recovery policy.
type RetryConfig struct {
	MaxRetries        int           `mapstructure:"max_retries" yaml:"max_retries"`
	HistoryLimit      int           `mapstructure:"history_limit" yaml:"history_limit"`
	ErrorHistoryLimit int           `mapstructure:"error_history_limit" yaml:"error_history_limit"`
	ScrollAmount      int           `mapstructure:"scroll_amount" yaml:"scroll_amount"`
	WaitDuration      time.Duration `mapstructure:"wait_duration" yaml:"wait_duration"`
	SettleDelay       time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	TimeoutScale      float64       `mapstructure:"timeout_scale" yaml:"timeout_scale"`
}

// RulesConfig points at an optional YAML rule book overriding the built-in keyword tables.
type RulesConfig struct {
	File string `mapstructure:"file" yaml:"file"`
}

// SandboxConfig configures the simulated browser used by the CLI and the API.
type SandboxConfig struct {
	Latency time.Duration `mapstructure:"latency" yaml:"latency"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int           `mapstructure:"burst" yaml:"burst"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	AllowOrigins      []string      `mapstructure:"allow_origins" yaml:"allow_origins"`
}

// SessionConfig controls where session contexts are persisted.
type SessionConfig struct {
	Dir    string        `mapstructure:"dir" yaml:"dir"`
	MaxAge time.Duration `mapstructure:"max_age" yaml:"max_age"`
}

// DatabaseConfig holds the database connection details. An empty URL disables run persistence.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// Budgets used when a component is built with a zero-valued section.
const (
	DefaultMaxExecutionTime = 300 * time.Second
	DefaultMaxSubgoals      = 10
	DefaultHistoryLimit     = 100
	DefaultExecutorMaxSteps = 20
	DefaultExecutorTimeout  = 300 * time.Second
)

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "goalpilot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Engine --
	v.SetDefault("engine.max_execution_time", "300s")
	v.SetDefault("engine.max_subgoals", 10)
	v.SetDefault("engine.history_limit", 100)

	// -- Executor --
	v.SetDefault("executor.max_steps", 20)
	v.SetDefault("executor.timeout", "300s")

	// -- Retry --
	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.history_limit", 50)
	v.SetDefault("retry.error_history_limit", 100)
	v.SetDefault("retry.scroll_amount", 500)
	v.SetDefault("retry.wait_duration", "2s")
	v.SetDefault("retry.settle_delay", "0s")
	v.SetDefault("retry.timeout_scale", 1.5)

	// -- Rules --
	v.SetDefault("rules.file", "")

	// -- Sandbox --
	v.SetDefault("sandbox.latency", "0s")

	// -- Server --
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.requests_per_second", 10.0)
	v.SetDefault("server.burst", 20)
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.allow_origins", []string{"*"})

	// -- Session --
	v.SetDefault("session.dir", "~/.goalpilot/sessions")
	v.SetDefault("session.max_age", "24h")

	// -- Database --
	v.SetDefault("database.url", "")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// The DSN usually carries credentials, so it is also accepted from a dedicated variable.
	_ = v.BindEnv("database.url", "GOALPILOT_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.DatabaseCfg.URL == "" {
		cfg.DatabaseCfg.URL = os.Getenv("DATABASE_URL")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.EngineCfg.Validate(); err != nil {
		return fmt.Errorf("engine configuration invalid: %w", err)
	}
	if err := c.ExecutorCfg.Validate(); err != nil {
		return fmt.Errorf("executor configuration invalid: %w", err)
	}
	if err := c.RetryCfg.Validate(); err != nil {
		return fmt.Errorf("retry configuration invalid: %w", err)
	}
	if err := c.ServerCfg.Validate(); err != nil {
		return fmt.Errorf("server configuration invalid: %w", err)
	}
	if c.SandboxCfg.Latency < 0 {
		return fmt.Errorf("sandbox.latency must not be negative")
	}
	return nil
}

// Validate checks the EngineConfig settings.
func (e *EngineConfig) Validate() error {
	if e.MaxExecutionTime <= 0 {
		return fmt.Errorf("max_execution_time must be a positive duration")
	}
	if e.MaxSubgoals <= 0 {
		return fmt.Errorf("max_subgoals must be a positive integer")
	}
	if e.HistoryLimit <= 0 {
		return fmt.Errorf("history_limit must be a positive integer")
	}
	return nil
}

// Validate checks the ExecutorConfig settings.
func (e *ExecutorConfig) Validate() error {
	if e.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be a positive integer")
	}
	if e.Timeout <= 0 {
		return fmt.Errorf("timeout must be a positive duration")
	}
	return nil
}

// Validate checks the RetryConfig settings.
func (r *RetryConfig) Validate() error {
	if r.MaxRetries <= 0 {
		return fmt.Errorf("max_retries must be a positive integer")
	}
	if r.HistoryLimit <= 0 || r.ErrorHistoryLimit <= 0 {
		return fmt.Errorf("history limits must be positive integers")
	}
	if r.ScrollAmount <= 0 {
		return fmt.Errorf("scroll_amount must be a positive integer")
	}
	if r.WaitDuration < 0 || r.SettleDelay < 0 {
		return fmt.Errorf("wait_duration and settle_delay must not be negative")
	}
	if r.TimeoutScale < 1.0 {
		return fmt.Errorf("timeout_scale must be at least 1.0")
	}
	return nil
}

// Validate checks the ServerConfig settings.
func (s *ServerConfig) Validate() error {
	if s.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if s.RequestsPerSecond <= 0 || s.Burst <= 0 {
		return fmt.Errorf("requests_per_second and burst must be positive")
	}
	return nil
}
