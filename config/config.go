package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Sandbox      SandboxConfig      `mapstructure:"sandbox"`
	Agent        AgentConfig        `mapstructure:"agent"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	Retry        RetryConfig        `mapstructure:"retry"`
	Tools        ToolsConfig        `mapstructure:"tools"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Transport string `mapstructure:"transport"`
	HTTPPort  int    `mapstructure:"http_port"`
	MCPPort   int    `mapstructure:"mcp_port"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// StorageConfig holds the on-disk state layout
type StorageConfig struct {
	Root        string `mapstructure:"root"`
	MemoryDir   string `mapstructure:"memory_dir"`
	RuntimeDir  string `mapstructure:"runtime_dir"`
	SessionsDir string `mapstructure:"sessions_dir"`
}

// SandboxConfig holds sandbox backend configuration
type SandboxConfig struct {
	DefaultBackend string       `mapstructure:"default_backend"`
	Docker         DockerConfig `mapstructure:"docker"`
	Remote         RemoteConfig `mapstructure:"remote"`
}

// DockerConfig holds local-container backend configuration
type DockerConfig struct {
	Host           string `mapstructure:"host"`
	DefaultImage   string `mapstructure:"default_image"`
	WorkspaceDir   string `mapstructure:"workspace_dir"`
	MemoryMB       int    `mapstructure:"memory_mb"`
	CPUMillicores  int    `mapstructure:"cpu_millicores"`
	NetworkEnabled bool   `mapstructure:"network_enabled"`
}

// RemoteConfig holds remote-managed backend configuration
type RemoteConfig struct {
	BaseURL         string `mapstructure:"base_url"`
	APIKey          string `mapstructure:"api_key"`
	DefaultTemplate string `mapstructure:"default_template"`
	RequestTimeout  int    `mapstructure:"request_timeout_sec"`
}

// AgentConfig holds agent loop defaults
type AgentConfig struct {
	Name          string  `mapstructure:"name"`
	Model         string  `mapstructure:"model"`
	Temperature   float64 `mapstructure:"temperature"`
	MaxTokens     int     `mapstructure:"max_tokens"`
	SystemPrompt  string  `mapstructure:"system_prompt"`
	ToolsEnabled  bool    `mapstructure:"tools_enabled"`
	MaxIterations int     `mapstructure:"max_iterations"`
	TimeoutSec    int     `mapstructure:"timeout_sec"`
	APIKey        string  `mapstructure:"api_key"`
	BaseURL       string  `mapstructure:"base_url"`
}

// ConversationConfig holds conversation history configuration
type ConversationConfig struct {
	MaxHistory        int `mapstructure:"max_history"`
	ContextCharBudget int `mapstructure:"context_char_budget"`
}

// RetryConfig holds retry policy configuration
type RetryConfig struct {
	MaxAttempts  int     `mapstructure:"max_attempts"`
	BaseDelaySec float64 `mapstructure:"base_delay_sec"`
	MaxDelaySec  float64 `mapstructure:"max_delay_sec"`
}

// ToolsConfig holds tool registry configuration
type ToolsConfig struct {
	RegistryPath string `mapstructure:"registry_path"`
}

// New loads and validates the application configuration
func New() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Set default values
	viper.SetDefault("server.transport", "http")
	viper.SetDefault("server.http_port", 8000)
	viper.SetDefault("server.mcp_port", 8080)

	viper.SetDefault("logging.mode", "production")
	viper.SetDefault("logging.level", "info")

	viper.SetDefault("storage.root", "./storage")
	viper.SetDefault("storage.memory_dir", "memory")
	viper.SetDefault("storage.runtime_dir", "runtime")
	viper.SetDefault("storage.sessions_dir", "sessions")

	viper.SetDefault("sandbox.default_backend", "docker")
	viper.SetDefault("sandbox.docker.host", "")
	viper.SetDefault("sandbox.docker.default_image", "python:3.11-slim")
	viper.SetDefault("sandbox.docker.workspace_dir", "./sandbox_runtime")
	viper.SetDefault("sandbox.docker.memory_mb", 512)
	viper.SetDefault("sandbox.docker.cpu_millicores", 1000)
	viper.SetDefault("sandbox.docker.network_enabled", false)

	viper.SetDefault("sandbox.remote.base_url", "https://api.sandbox.example.com")
	viper.SetDefault("sandbox.remote.api_key", "")
	viper.SetDefault("sandbox.remote.default_template", "py-env")
	viper.SetDefault("sandbox.remote.request_timeout_sec", 60)

	viper.SetDefault("agent.name", "agentbox")
	viper.SetDefault("agent.model", "gpt-4o-mini")
	viper.SetDefault("agent.temperature", 0.7)
	viper.SetDefault("agent.max_tokens", 0)
	viper.SetDefault("agent.system_prompt", "")
	viper.SetDefault("agent.tools_enabled", true)
	viper.SetDefault("agent.max_iterations", 10)
	viper.SetDefault("agent.timeout_sec", 300)
	viper.SetDefault("agent.api_key", "")
	viper.SetDefault("agent.base_url", "")

	viper.SetDefault("conversation.max_history", 50)
	viper.SetDefault("conversation.context_char_budget", 200)

	viper.SetDefault("retry.max_attempts", 3)
	viper.SetDefault("retry.base_delay_sec", 1.0)
	viper.SetDefault("retry.max_delay_sec", 60.0)

	viper.SetDefault("tools.registry_path", "./registry/tools")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate configuration
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

// validate ensures the configuration is valid
func (c *Config) validate() error {
	if c.Server.Transport != "stdio" && c.Server.Transport != "http" {
		return fmt.Errorf("invalid server.transport: %s, must be 'stdio' or 'http'", c.Server.Transport)
	}

	supportedBackends := map[string]bool{
		"docker": true,
		"remote": true,
	}
	if !supportedBackends[c.Sandbox.DefaultBackend] {
		return fmt.Errorf("unsupported sandbox.default_backend: %s", c.Sandbox.DefaultBackend)
	}

	if c.Sandbox.Docker.MemoryMB <= 0 {
		return fmt.Errorf("sandbox.docker.memory_mb must be positive, got: %d", c.Sandbox.Docker.MemoryMB)
	}

	if c.Sandbox.Remote.RequestTimeout <= 0 {
		return fmt.Errorf("sandbox.remote.request_timeout_sec must be positive, got: %d", c.Sandbox.Remote.RequestTimeout)
	}

	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent.max_iterations must be positive, got: %d", c.Agent.MaxIterations)
	}

	if c.Agent.TimeoutSec <= 0 {
		return fmt.Errorf("agent.timeout_sec must be positive, got: %d", c.Agent.TimeoutSec)
	}

	if c.Agent.Temperature < 0 || c.Agent.Temperature > 2 {
		return fmt.Errorf("agent.temperature must be in [0, 2], got: %g", c.Agent.Temperature)
	}

	if c.Conversation.MaxHistory <= 0 {
		return fmt.Errorf("conversation.max_history must be positive, got: %d", c.Conversation.MaxHistory)
	}

	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be positive, got: %d", c.Retry.MaxAttempts)
	}

	return nil
}

// AgentTimeout returns the overall agent turn timeout as a duration
func (c *Config) AgentTimeout() time.Duration {
	return time.Duration(c.Agent.TimeoutSec) * time.Second
}

// RemoteRequestTimeout returns the remote backend request timeout as a duration
func (c *Config) RemoteRequestTimeout() time.Duration {
	return time.Duration(c.Sandbox.Remote.RequestTimeout) * time.Second
}
