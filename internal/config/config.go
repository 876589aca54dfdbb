// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"voice-commit/internal/model"
)

const (
	DurableFile     = "file"
	DurablePostgres = "postgres"
)

var providerDefaults = map[string]struct{ endpoint, model string }{
	"anthropic": {"https://api.anthropic.com/v1/messages", "claude-3-5-sonnet-20241022"},
	"openai":    {"https://api.openai.com/v1/chat/completions", "gpt-4"},
}

// Config holds all configuration for the application.
type Config struct {
	LogLevel string `mapstructure:"LOG_LEVEL"`
	Role     string `mapstructure:"ROLE"`

	ListenAddr        string        `mapstructure:"LISTEN_ADDR"`
	ControlURL        string        `mapstructure:"CONTROL_URL"`
	PairingSecret     string        `mapstructure:"PAIRING_SECRET"`
	PeerURL           string        `mapstructure:"PEER_URL"`
	PeerCheckInterval time.Duration `mapstructure:"PEER_CHECK_INTERVAL"`
	LiveTimeout       time.Duration `mapstructure:"LIVE_TIMEOUT"`

	DurableBackend string `mapstructure:"DURABLE_BACKEND"`
	DurableDir     string `mapstructure:"DURABLE_DIR"`
	DBURL          string `mapstructure:"DB_URL"`

	CredentialsDir     string `mapstructure:"CREDENTIALS_DIR"`
	CredentialsService string `mapstructure:"CREDENTIALS_SERVICE"`

	GithubAPIURL    string `mapstructure:"GITHUB_API_URL"`
	GithubUserAgent string `mapstructure:"GITHUB_USER_AGENT"`

	GeneratorProvider    string        `mapstructure:"GENERATOR_PROVIDER"`
	GeneratorEndpoint    string        `mapstructure:"GENERATOR_ENDPOINT"`
	GeneratorModel       string        `mapstructure:"GENERATOR_MODEL"`
	GeneratorAPIKey      string        `mapstructure:"GENERATOR_API_KEY"`
	GeneratorMaxTokens   int           `mapstructure:"GENERATOR_MAX_TOKENS"`
	GeneratorTemperature float64       `mapstructure:"GENERATOR_TEMPERATURE"`
	GeneratorTimeout     time.Duration `mapstructure:"GENERATOR_TIMEOUT"`
	DemoMode             bool          `mapstructure:"DEMO_MODE"`
}

// LoadConfig reads configuration from a .env file and environment variables. role selects
// which fields are required; an empty role only loads what the operator commands need.
func LoadConfig(role string) (*Config, error) {
	v := viper.New()

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("ROLE", role)
	v.SetDefault("LISTEN_ADDR", "127.0.0.1:8080")
	v.SetDefault("CONTROL_URL", "http://localhost:8080")
	v.SetDefault("PAIRING_SECRET", "")
	v.SetDefault("PEER_URL", "")
	v.SetDefault("PEER_CHECK_INTERVAL", "10s")
	v.SetDefault("LIVE_TIMEOUT", "5s")
	v.SetDefault("DURABLE_BACKEND", DurableFile)
	v.SetDefault("DURABLE_DIR", "./.voicecommit/context")
	v.SetDefault("DB_URL", "")
	v.SetDefault("CREDENTIALS_DIR", "./.voicecommit/credentials")
	v.SetDefault("CREDENTIALS_SERVICE", "com.voicecommit.tokens")
	v.SetDefault("GITHUB_API_URL", "https://api.github.com/")
	v.SetDefault("GITHUB_USER_AGENT", "voicecommit-app")
	v.SetDefault("GENERATOR_PROVIDER", "anthropic")
	v.SetDefault("GENERATOR_ENDPOINT", "")
	v.SetDefault("GENERATOR_MODEL", "")
	v.SetDefault("GENERATOR_API_KEY", "")
	v.SetDefault("GENERATOR_MAX_TOKENS", 4000)
	v.SetDefault("GENERATOR_TEMPERATURE", 0.7)
	v.SetDefault("GENERATOR_TIMEOUT", "30s")
	v.SetDefault("DEMO_MODE", false)

	// Load from .env file if it exists
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if role != "" {
		cfg.Role = role
	}

	cfg.GeneratorProvider = strings.ToLower(cfg.GeneratorProvider)
	defaults, ok := providerDefaults[cfg.GeneratorProvider]
	if !ok {
		return nil, fmt.Errorf("GENERATOR_PROVIDER must be one of anthropic, openai; got %q", cfg.GeneratorProvider)
	}
	if cfg.GeneratorEndpoint == "" {
		cfg.GeneratorEndpoint = defaults.endpoint
	}
	if cfg.GeneratorModel == "" {
		cfg.GeneratorModel = defaults.model
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Role {
	case "":
		return nil
	case model.RolePrimary, model.RoleSatellite:
	default:
		return fmt.Errorf("ROLE must be %s or %s; got %q", model.RolePrimary, model.RoleSatellite, c.Role)
	}

	if c.PeerURL == "" {
		return errors.New("PEER_URL is a required configuration field")
	}
	if c.PairingSecret == "" {
		return errors.New("PAIRING_SECRET is a required configuration field")
	}
	if c.PeerCheckInterval <= 0 || c.LiveTimeout <= 0 {
		return errors.New("PEER_CHECK_INTERVAL and LIVE_TIMEOUT must be positive")
	}
	switch c.DurableBackend {
	case DurableFile:
		if c.DurableDir == "" {
			return errors.New("DURABLE_DIR is a required configuration field for the file backend")
		}
	case DurablePostgres:
		if c.DBURL == "" {
			return errors.New("DB_URL is a required configuration field for the postgres backend")
		}
	default:
		return fmt.Errorf("DURABLE_BACKEND must be %s or %s; got %q", DurableFile, DurablePostgres, c.DurableBackend)
	}
	return nil
}
