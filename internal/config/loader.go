package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load loads the configuration from file
func (l *Loader) Load() (*Config, error) {
	configPath := l.configPath
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".aria", "aria.json")
	}

	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		v := viper.New()
		v.SetConfigFile(configPath)
		v.SetConfigType("json")

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	applyEnv(cfg)

	// Fill in derived paths
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".aria")
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "aria.log")
	}

	return cfg, nil
}

// applyEnv overlays ARIA_* environment variables. The credential list from
// the environment replaces the file list entirely so a shell export is the
// single source of truth when present.
func applyEnv(cfg *Config) {
	if keys := os.Getenv("ARIA_API_KEYS"); keys != "" {
		cfg.Credentials = splitKeys(keys)
	}
	if key := os.Getenv("ARIA_API_KEY"); key != "" && len(cfg.Credentials) == 0 {
		cfg.Credentials = []string{strings.TrimSpace(key)}
	}
	if key := os.Getenv("ARIA_BRAVE_API_KEY"); key != "" {
		cfg.Search.BraveKey = key
	}
	if provider := os.Getenv("ARIA_PROVIDER"); provider != "" {
		cfg.Provider = provider
	}
	if model := os.Getenv("ARIA_MODEL"); model != "" {
		cfg.Model = model
	}
	if level := os.Getenv("ARIA_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}

func splitKeys(s string) []string {
	var keys []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			keys = append(keys, part)
		}
	}
	return keys
}

// ConversationsDir returns the conversation store directory for a config.
func (c *Config) ConversationsDir() string {
	return filepath.Join(c.DataDir, "conversations")
}

// Save saves the configuration to file
func (l *Loader) Save(cfg *Config) error {
	configPath := l.configPath
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".aria", "aria.json")
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("provider", cfg.Provider)
	v.Set("model", cfg.Model)
	v.Set("system_prompt", cfg.SystemPrompt)
	v.Set("max_tokens", cfg.MaxTokens)
	v.Set("temperature", cfg.Temperature)
	v.Set("credentials", cfg.Credentials)
	v.Set("context_budget", cfg.ContextBudget)
	v.Set("max_iterations", cfg.MaxIterations)
	v.Set("tools", cfg.Tools)
	v.Set("search", cfg.Search)
	v.Set("logging", cfg.Logging)
	v.Set("metrics", cfg.Metrics)
	v.Set("data_dir", cfg.DataDir)

	if err := v.WriteConfig(); err != nil {
		if os.IsNotExist(err) {
			if err := v.SafeWriteConfig(); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
		} else {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}

	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".aria", "aria.json")
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}
