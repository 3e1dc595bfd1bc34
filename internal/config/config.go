// Package config loads and validates the banktalk configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/banktalk/internal/common"
)

// Data sources.
const (
	SourceRemote  = "remote"
	SourceSandbox = "sandbox"
)

// Config is the validated application configuration.
type Config struct {
	Logging  LoggingConfig
	Server   ServerConfig
	NLP      NLPConfig
	Data     DataConfig
	Database DatabaseConfig
	Rules    RulesConfig
	Transfer TransferConfig
	User     UserConfig
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string
	Format string
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NLPConfig configures the classification client.
type NLPConfig struct {
	BaseURL           string
	Timeout           time.Duration
	CacheTTL          time.Duration
	RequestsPerMinute int
}

// DataConfig selects and configures the banking data source.
type DataConfig struct {
	Source  string
	BaseURL string
	Token   string
	Timeout time.Duration
}

// DatabaseConfig locates the sandbox database.
type DatabaseConfig struct {
	Path string
}

// RulesConfig optionally replaces the built-in rule table.
type RulesConfig struct {
	Path string
}

// TransferConfig bounds transfer sessions.
type TransferConfig struct {
	SessionMaxAge time.Duration
	CallTimeout   time.Duration
}

// UserConfig identifies the customer for terminal sessions.
type UserConfig struct {
	ID string
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("nlp.base_url", "http://localhost:8000")
	v.SetDefault("nlp.timeout", 30*time.Second)
	v.SetDefault("nlp.requests_per_minute", 120)
	v.SetDefault("nlp.cache_ttl", 5*time.Minute)
	v.SetDefault("data.source", SourceSandbox)
	v.SetDefault("data.base_url", "http://localhost:3001")
	v.SetDefault("data.timeout", 15*time.Second)
	v.SetDefault("database.path", "~/.local/share/banktalk/sandbox.db")
	v.SetDefault("rules.path", "")
	v.SetDefault("transfer.session_max_age", 30*time.Minute)
	v.SetDefault("transfer.call_timeout", 30*time.Second)
	v.SetDefault("user.id", "1")
}

// Load reads the configuration from v. Keys missing from v fall back to
// the direct environment variables NLP_BASE_URL, DATA_BASE_URL and
// DATA_TOKEN, then to the defaults.
func Load(v *viper.Viper) (*Config, error) {
	explicit := map[string]bool{}
	for _, key := range []string{"nlp.base_url", "data.base_url", "data.token"} {
		explicit[key] = v.IsSet(key)
	}
	SetDefaults(v)
	fromEnv := func(key, env string) string {
		if explicit[key] {
			return v.GetString(key)
		}
		if value := os.Getenv(env); value != "" {
			return value
		}
		return v.GetString(key)
	}

	cfg := &Config{
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
		Server: ServerConfig{
			Addr:         v.GetString("server.addr"),
			ReadTimeout:  v.GetDuration("server.read_timeout"),
			WriteTimeout: v.GetDuration("server.write_timeout"),
		},
		NLP: NLPConfig{
			BaseURL:           fromEnv("nlp.base_url", "NLP_BASE_URL"),
			Timeout:           v.GetDuration("nlp.timeout"),
			CacheTTL:          v.GetDuration("nlp.cache_ttl"),
			RequestsPerMinute: v.GetInt("nlp.requests_per_minute"),
		},
		Data: DataConfig{
			Source:  strings.ToLower(v.GetString("data.source")),
			BaseURL: fromEnv("data.base_url", "DATA_BASE_URL"),
			Token:   fromEnv("data.token", "DATA_TOKEN"),
			Timeout: v.GetDuration("data.timeout"),
		},
		Database: DatabaseConfig{Path: ExpandPath(v.GetString("database.path"))},
		Rules:    RulesConfig{Path: ExpandPath(v.GetString("rules.path"))},
		Transfer: TransferConfig{
			SessionMaxAge: v.GetDuration("transfer.session_max_age"),
			CallTimeout:   v.GetDuration("transfer.call_timeout"),
		},
		User: UserConfig{ID: v.GetString("user.id")},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the application cannot run with.
func (c *Config) Validate() error {
	if _, err := common.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: logging.level: %w", common.ErrInvalidConfig, err)
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("%w: logging.format must be console or json, got %q", common.ErrInvalidConfig, c.Logging.Format)
	}
	if err := validateURL("nlp.base_url", c.NLP.BaseURL); err != nil {
		return err
	}
	if c.NLP.Timeout <= 0 {
		return fmt.Errorf("%w: nlp.timeout must be positive", common.ErrInvalidConfig)
	}
	if c.NLP.RequestsPerMinute < 0 {
		return fmt.Errorf("%w: nlp.requests_per_minute cannot be negative", common.ErrInvalidConfig)
	}

	switch c.Data.Source {
	case SourceRemote:
		if err := validateURL("data.base_url", c.Data.BaseURL); err != nil {
			return err
		}
	case SourceSandbox:
		if c.Database.Path == "" {
			return fmt.Errorf("%w: database.path", common.ErrMissingConfig)
		}
	default:
		return fmt.Errorf("%w: data.source must be %s or %s, got %q",
			common.ErrInvalidConfig, SourceRemote, SourceSandbox, c.Data.Source)
	}

	if c.Transfer.SessionMaxAge <= 0 || c.Transfer.CallTimeout <= 0 {
		return fmt.Errorf("%w: transfer timeouts must be positive", common.ErrInvalidConfig)
	}
	if strings.TrimSpace(c.User.ID) == "" {
		return fmt.Errorf("%w: user.id", common.ErrMissingConfig)
	}
	return nil
}

func validateURL(key, raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: %s", common.ErrMissingConfig, key)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %s must be an http(s) URL, got %q", common.ErrInvalidConfig, key, raw)
	}
	return nil
}
