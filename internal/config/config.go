// Package config loads quill's configuration: the model endpoint, the
// user's writing rules, retention limits and storage/server settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// ModelConfig is the endpoint/credential/model triple for the chat API.
type ModelConfig struct {
	BaseURL        string  `mapstructure:"base_url"`
	APIKey         string  `mapstructure:"api_key"`
	Model          string  `mapstructure:"model"`
	Temperature    float64 `mapstructure:"temperature"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
}

// Validate reports the first missing required field.
func (m ModelConfig) Validate() error {
	switch {
	case strings.TrimSpace(m.BaseURL) == "":
		return errors.New("model.base_url is not configured")
	case strings.TrimSpace(m.APIKey) == "":
		return errors.New("model.api_key is not configured")
	case strings.TrimSpace(m.Model) == "":
		return errors.New("model.model is not configured")
	}
	return nil
}

// Rules are the user's persisted writing preferences, injected into every
// turn's context.
type Rules struct {
	Tone     string `mapstructure:"tone" yaml:"tone"`
	Style    string `mapstructure:"style" yaml:"style"`
	Length   string `mapstructure:"length" yaml:"length"`
	Language string `mapstructure:"language" yaml:"language"`
	Custom   string `mapstructure:"custom" yaml:"custom"`
}

// Text renders the rules block injected into the prompt. All-blank rules
// render empty so the block is omitted entirely.
func (r Rules) Text() string {
	var lines []string
	add := func(label, value string) {
		if strings.TrimSpace(value) != "" {
			lines = append(lines, label+": "+value)
		}
	}
	add("语气", r.Tone)
	add("风格", r.Style)
	add("篇幅", r.Length)
	add("语言", r.Language)
	add("其他要求", r.Custom)
	return strings.Join(lines, "\n")
}

// Limits bound retention and context sizes.
type Limits struct {
	MaxSessions          int `mapstructure:"max_sessions"`
	MaxMessages          int `mapstructure:"max_messages"`
	DocumentExcerptChars int `mapstructure:"document_excerpt_chars"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

type Config struct {
	Model   ModelConfig   `mapstructure:"model"`
	Rules   Rules         `mapstructure:"rules"`
	Limits  Limits        `mapstructure:"limits"`
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
}

// Load reads quill.yaml from the working directory or ~/.quill. A missing
// file is fine: defaults apply, and the model config is validated only
// when a turn actually needs it.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("quill")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.quill")

	v.SetDefault("model.temperature", 0.7)
	v.SetDefault("model.max_tokens", 4096)
	v.SetDefault("model.timeout_seconds", 120)
	v.SetDefault("limits.max_sessions", 20)
	v.SetDefault("limits.max_messages", 50)
	v.SetDefault("limits.document_excerpt_chars", 8000)
	v.SetDefault("server.port", 8123)
	v.SetDefault("storage.db_path", filepath.Join(os.Getenv("HOME"), ".quill", "quill.db"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Expand environment variable references in the API key
	if strings.HasPrefix(cfg.Model.APIKey, "${") && strings.HasSuffix(cfg.Model.APIKey, "}") {
		envVar := cfg.Model.APIKey[2 : len(cfg.Model.APIKey)-1]
		cfg.Model.APIKey = os.Getenv(envVar)
	}

	return &cfg, nil
}
