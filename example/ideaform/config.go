package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	IntentLocal = "local"
	IntentTool  = "tool"
)

// FallbackConfig describes a second model used when the primary one fails.
type FallbackConfig struct {
	Provider string `json:"provider" yaml:"provider" env:"FORMCOPILOT_FALLBACK_PROVIDER"`
	APIKey   string `json:"api_key" yaml:"api_key" env:"FORMCOPILOT_FALLBACK_API_KEY"`
	BaseURL  string `json:"base_url" yaml:"base_url" env:"FORMCOPILOT_FALLBACK_BASE_URL"`
	Model    string `json:"model" yaml:"model" env:"FORMCOPILOT_FALLBACK_MODEL"`
}

type Config struct {
	Provider       string `json:"provider" yaml:"provider" env:"FORMCOPILOT_PROVIDER"`
	APIKey         string `json:"api_key" yaml:"api_key" env:"FORMCOPILOT_API_KEY"`
	BaseURL        string `json:"base_url" yaml:"base_url" env:"FORMCOPILOT_BASE_URL"`
	Model          string `json:"model" yaml:"model" env:"FORMCOPILOT_MODEL"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds" env:"FORMCOPILOT_TIMEOUT_SECONDS"`
	MaxRetries     int    `json:"max_retries" yaml:"max_retries" env:"FORMCOPILOT_MAX_RETRIES"`
	IntentMode     string `json:"intent_mode" yaml:"intent_mode" env:"FORMCOPILOT_INTENT_MODE"`

	ListenAddr  string `json:"listen_addr" yaml:"listen_addr" env:"FORMCOPILOT_LISTEN_ADDR"`
	RedisAddr   string `json:"redis_addr" yaml:"redis_addr" env:"FORMCOPILOT_REDIS_ADDR"`
	RedisStream string `json:"redis_stream" yaml:"redis_stream" env:"FORMCOPILOT_REDIS_STREAM"`
	LogLevel    string `json:"log_level" yaml:"log_level" env:"FORMCOPILOT_LOG_LEVEL"`

	Fallback FallbackConfig `json:"fallback" yaml:"fallback"`
}

// loadConfig reads path (JSON, or YAML by extension) when given, then
// applies environment overrides and defaults.
func loadConfig(path string) (*Config, error) {
	var conf Config
	if path != "" {
		file, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(file, &conf)
		default:
			err = json.Unmarshal(file, &conf)
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := envdecode.Decode(&conf); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	conf.applyDefaults()
	if err := conf.validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

func (c *Config) applyDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderOpenAI
	}
	if c.Model == "" {
		switch c.Provider {
		case ProviderGemini:
			c.Model = "gemini-2.5-flash"
		default:
			c.Model = "gpt-4o-mini"
		}
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 60
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.IntentMode == "" {
		c.IntentMode = IntentLocal
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) validate() error {
	switch c.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	if c.APIKey == "" {
		return errors.New("api_key is required")
	}
	switch c.IntentMode {
	case IntentLocal, IntentTool:
	default:
		return fmt.Errorf("unknown intent_mode %q", c.IntentMode)
	}
	switch c.Fallback.Provider {
	case "", ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("unknown fallback provider %q", c.Fallback.Provider)
	}
	return nil
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
