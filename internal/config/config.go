package config

import (
	"encoding/json"
	"fmt"
)

// Config represents the main aria configuration
type Config struct {
	// Provider selects the model backend: anthropic or openai.
	Provider string `json:"provider" mapstructure:"provider"`

	// Model is the model identifier sent to the provider.
	Model string `json:"model" mapstructure:"model"`

	// SystemPrompt is prepended to every turn.
	SystemPrompt string `json:"system_prompt" mapstructure:"system_prompt"`

	MaxTokens   int     `json:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `json:"temperature" mapstructure:"temperature"`

	// Credentials is the ordered API key list for the provider. The
	// ARIA_API_KEYS environment variable (comma-separated) overrides it.
	Credentials []string `json:"credentials" mapstructure:"credentials"`

	// ContextBudget is the history window size in characters.
	ContextBudget int `json:"context_budget" mapstructure:"context_budget"`

	// MaxIterations bounds the model/tool loop within one turn.
	MaxIterations int `json:"max_iterations" mapstructure:"max_iterations"`

	Tools   ToolsConfig   `json:"tools" mapstructure:"tools"`
	Search  SearchConfig  `json:"search" mapstructure:"search"`
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// DataDir holds conversations, logs, and state. Defaults to ~/.aria.
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ToolsConfig holds tool configuration
type ToolsConfig struct {
	// Enabled gates all tool use. When false the model gets no tool
	// declarations at all.
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// AllowedRoots are the directories file tools may touch. Empty means
	// the current working directory only.
	AllowedRoots []string `json:"allowed_roots" mapstructure:"allowed_roots"`

	// MaxFileSize caps file reads and writes, in bytes.
	MaxFileSize int64 `json:"max_file_size" mapstructure:"max_file_size"`

	Commands CommandsConfig `json:"commands" mapstructure:"commands"`

	// Servers are tool server addresses (tcp://, ws://, wss://, stdio:).
	Servers []string `json:"servers" mapstructure:"servers"`

	// CallTimeoutSeconds bounds a single tool execution, local or remote.
	CallTimeoutSeconds int `json:"call_timeout_seconds" mapstructure:"call_timeout_seconds"`
}

// CommandsConfig holds shell execution settings
type CommandsConfig struct {
	Enabled        bool `json:"enabled" mapstructure:"enabled"`
	Confirm        bool `json:"confirm" mapstructure:"confirm"`
	TimeoutSeconds int  `json:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// SearchConfig holds web search settings
type SearchConfig struct {
	// Enabled gates the search_web tool.
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// Mode selects the backend: duckduckgo or brave.
	Mode string `json:"mode" mapstructure:"mode"`

	// BraveKey is the Brave Search subscription token. The
	// ARIA_BRAVE_API_KEY environment variable overrides it.
	BraveKey string `json:"brave_key" mapstructure:"brave_key"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// MetricsConfig holds the Prometheus endpoint settings
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Listen  string `json:"listen" mapstructure:"listen"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Provider:      "anthropic",
		Model:         "claude-sonnet-4",
		MaxTokens:     4096,
		Temperature:   0.7,
		ContextBudget: 100000,
		MaxIterations: 10,
		Tools: ToolsConfig{
			Enabled:     true,
			MaxFileSize: 10 * 1024 * 1024,
			Commands: CommandsConfig{
				Enabled:        false,
				Confirm:        true,
				TimeoutSeconds: 30,
			},
			CallTimeoutSeconds: 60,
		},
		Search: SearchConfig{
			Enabled: true,
			Mode:    "duckduckgo",
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   50,
			MaxAge:    14,
			Compress:  true,
			Redaction: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9464",
		},
	}
}

// String returns a JSON representation of the config with credentials masked.
func (c *Config) String() string {
	masked := *c
	masked.Credentials = make([]string, len(c.Credentials))
	for i := range c.Credentials {
		masked.Credentials[i] = "[REDACTED]"
	}
	masked.Search.BraveKey = ""
	data, _ := json.MarshalIndent(&masked, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if len(c.Credentials) == 0 {
		return fmt.Errorf("no credentials configured: set credentials in the config file or the ARIA_API_KEYS environment variable")
	}

	v := NewValidator()
	if errs := v.ValidateConfig(c); len(errs) > 0 {
		return errs[0]
	}
	return nil
}
