// Package config loads the application configuration from defaults, an
// optional patchpilot-config file ($HOME or cwd), and environment variables.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultSystemPrompt is the fixed system instruction. It is installed into
// the context assembler once at startup and never replaced.
const DefaultSystemPrompt = "You are a helpful AI assistant that can read, understand, and edit " +
	"TypeScript, JavaScript, CSS and Python projects. When given a file, explain issues and propose edits."

// Config carries every tunable of the application.
type Config struct {
	// Provider
	Provider    string  `mapstructure:"provider"` // "openai" (NVIDIA-compatible) or "ollama"
	BaseURL     string  `mapstructure:"base_url"`
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`

	// Context budgets
	MaxFiles          int `mapstructure:"max_files"`
	MaxFileTokens     int `mapstructure:"max_file_tokens"`
	MaxTotalTokens    int `mapstructure:"max_total_tokens"`
	MaxConvoMessages  int `mapstructure:"max_convo_messages"`
	MaxResponseTokens int `mapstructure:"max_response_tokens"`

	DefaultExtensions []string `mapstructure:"default_extensions"`

	// Safety & retry
	BackupOnWrite bool          `mapstructure:"backup_on_write"`
	DiffPreview   bool          `mapstructure:"diff_preview"`
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`

	SystemPrompt string `mapstructure:"system_prompt"`
}

// Load reads configuration, layering environment variables over an optional
// config file over defaults. A missing config file is not an error.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("provider", "openai")
	v.SetDefault("base_url", "https://integrate.api.nvidia.com/v1")
	v.SetDefault("api_key", "")
	v.SetDefault("model", "z-ai/glm4.7")
	v.SetDefault("temperature", 0.4)
	v.SetDefault("max_files", 12)
	v.SetDefault("max_file_tokens", 1500)
	v.SetDefault("max_total_tokens", 4500)
	v.SetDefault("max_convo_messages", 40)
	v.SetDefault("max_response_tokens", 4096)
	v.SetDefault("default_extensions", []string{"*.ts", "*.js", "*.css", "*.tsx", "*.jsx", "*.py", "*.txt", "*.md"})
	v.SetDefault("backup_on_write", true)
	v.SetDefault("diff_preview", true)
	v.SetDefault("max_retries", 3)
	v.SetDefault("retry_delay", 1500*time.Millisecond)
	v.SetDefault("system_prompt", DefaultSystemPrompt)

	v.SetConfigName("patchpilot-config")
	v.AddConfigPath("$HOME")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	v.SetEnvPrefix("PATCHPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Legacy environment names kept from the original tool.
	bindLegacyEnv(v, "base_url", "OPENAI_BASE_URL")
	bindLegacyEnv(v, "api_key", "OPENAI_API_KEY")
	bindLegacyEnv(v, "model", "AI_MODEL")
	bindLegacyEnv(v, "temperature", "AI_TEMPERATURE")
	bindLegacyEnv(v, "max_files", "MAX_FILES")
	bindLegacyEnv(v, "max_file_tokens", "MAX_FILE_TOKENS")
	bindLegacyEnv(v, "max_total_tokens", "MAX_TOTAL_TOKENS")
	bindLegacyEnv(v, "max_convo_messages", "MAX_CONVO_MESSAGES")
	bindLegacyEnv(v, "max_response_tokens", "MAX_RESPONSE_TOKENS")
	bindLegacyEnv(v, "max_retries", "MAX_RETRIES")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func bindLegacyEnv(v *viper.Viper, key, env string) {
	// BindEnv only errors on an empty key, which cannot happen here.
	_ = v.BindEnv(key, env)
}

// MaskedAPIKey returns the API key safe for display.
func (c *Config) MaskedAPIKey() string {
	runes := []rune(c.APIKey)
	if len(runes) == 0 {
		return "(not set)"
	}
	if len(runes) < 16 {
		return "****"
	}
	return string(runes[:8]) + "..." + string(runes[len(runes)-8:])
}
