package config

import (
	"fmt"
	"strings"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateProvider validates a provider name
func (v *Validator) ValidateProvider(provider string) error {
	switch provider {
	case "anthropic", "openai":
		return nil
	}
	return fmt.Errorf("invalid provider: %s (must be one of: anthropic, openai)", provider)
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}

// ValidateModel validates a model name
func (v *Validator) ValidateModel(model string) error {
	if model == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	// Providers accept model names this tool has never heard of; only the
	// empty string is rejected.
	return nil
}

// ValidateTemperature validates temperature value
func (v *Validator) ValidateTemperature(temp float64) error {
	if temp < 0 || temp > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", temp)
	}
	return nil
}

// ValidateMaxTokens validates max tokens value
func (v *Validator) ValidateMaxTokens(tokens int) error {
	if tokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", tokens)
	}
	if tokens > 200000 {
		return fmt.Errorf("max tokens too large (max 200000), got %d", tokens)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateSearchMode validates the web search backend name
func (v *Validator) ValidateSearchMode(mode string) error {
	if mode == "" {
		return nil // Use default
	}

	validModes := []string{"duckduckgo", "brave"}
	for _, valid := range validModes {
		if mode == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid search mode: %s (must be one of: %s)", mode, strings.Join(validModes, ", "))
}

// ValidateServerAddress validates a tool server address scheme
func (v *Validator) ValidateServerAddress(address string) error {
	switch {
	case strings.HasPrefix(address, "tcp://"),
		strings.HasPrefix(address, "ws://"),
		strings.HasPrefix(address, "wss://"),
		strings.HasPrefix(address, "stdio:"):
		return nil
	}
	return fmt.Errorf("invalid tool server address %q (must use tcp://, ws://, wss://, or stdio:)", address)
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if err := v.ValidateProvider(cfg.Provider); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateModel(cfg.Model); err != nil {
		errors = append(errors, err)
	}
	if cfg.Temperature != 0 {
		if err := v.ValidateTemperature(cfg.Temperature); err != nil {
			errors = append(errors, err)
		}
	}
	if cfg.MaxTokens != 0 {
		if err := v.ValidateMaxTokens(cfg.MaxTokens); err != nil {
			errors = append(errors, err)
		}
	}

	// Malformed keys are flagged by the credential pool at startup rather
	// than rejected here; only empty entries are a config error.
	for i, key := range cfg.Credentials {
		if strings.TrimSpace(key) == "" {
			errors = append(errors, fmt.Errorf("credential %d: empty API key", i))
		}
	}

	if cfg.ContextBudget < 0 {
		errors = append(errors, fmt.Errorf("context_budget must be >= 0"))
	}
	if cfg.MaxIterations < 0 {
		errors = append(errors, fmt.Errorf("max_iterations must be >= 0"))
	}

	if cfg.Tools.MaxFileSize < 0 {
		errors = append(errors, fmt.Errorf("tools.max_file_size must be >= 0"))
	}
	if cfg.Tools.Commands.TimeoutSeconds < 0 {
		errors = append(errors, fmt.Errorf("tools.commands.timeout_seconds must be >= 0"))
	}
	if cfg.Tools.CallTimeoutSeconds < 0 {
		errors = append(errors, fmt.Errorf("tools.call_timeout_seconds must be >= 0"))
	}
	for i, addr := range cfg.Tools.Servers {
		if err := v.ValidateServerAddress(addr); err != nil {
			errors = append(errors, fmt.Errorf("tool server %d: %w", i, err))
		}
	}

	if err := v.ValidateSearchMode(cfg.Search.Mode); err != nil {
		errors = append(errors, err)
	}
	if cfg.Search.Enabled && cfg.Search.Mode == "brave" && cfg.Search.BraveKey == "" {
		errors = append(errors, fmt.Errorf("search mode brave requires a brave_key or ARIA_BRAVE_API_KEY"))
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	return errors
}
