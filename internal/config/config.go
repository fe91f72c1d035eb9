// Package config loads service configuration from environment variables
// and an optional YAML file, with sane defaults for local development.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration of the API service.
type Config struct {
	Server struct {
		Address         string `mapstructure:"address"`
		ShutdownTimeout int    `mapstructure:"shutdown_timeout_seconds"`
		MaxBodyBytes    int64  `mapstructure:"max_body_bytes"`
	} `mapstructure:"server"`

	Database struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"database"`

	JWT struct {
		Secret    string `mapstructure:"secret"`
		Algorithm string `mapstructure:"algorithm"` // HS256|HS384|HS512
	} `mapstructure:"jwt"`

	Internal struct {
		// Shared secret expected in the S-Token header on internal endpoints.
		ServiceToken string `mapstructure:"service_token"`
	} `mapstructure:"internal"`

	Mail struct {
		BaseURL string `mapstructure:"base_url"`
	} `mapstructure:"mail"`

	RateLimit struct {
		PerSecond float64 `mapstructure:"per_second"`
		Burst     int     `mapstructure:"burst"`
	} `mapstructure:"rate_limit"`
}

const placeholder = "CHANGE_ME"

// Load reads configuration. Environment variables use the CLASSHUB_ prefix
// with underscores for nesting (CLASSHUB_JWT_SECRET); CLASSHUB_CONFIG_FILE
// points at an optional YAML file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CLASSHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("database.dsn", "")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.algorithm", "HS256")
	v.SetDefault("internal.service_token", "")
	v.SetDefault("mail.base_url", "http://localhost:3000")
	v.SetDefault("rate_limit.per_second", 50)
	v.SetDefault("rate_limit.burst", 100)

	if cfgFile := os.Getenv("CLASSHUB_CONFIG_FILE"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", cfgFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations that cannot run safely.
func (c *Config) Validate() error {
	if c.JWT.Secret == "" || c.JWT.Secret == placeholder {
		return errors.New("config: jwt.secret must be set")
	}
	switch c.JWT.Algorithm {
	case "HS256", "HS384", "HS512":
	default:
		return fmt.Errorf("config: unsupported jwt.algorithm %q", c.JWT.Algorithm)
	}
	if c.Internal.ServiceToken == "" || c.Internal.ServiceToken == placeholder {
		return errors.New("config: internal.service_token must be set")
	}
	return nil
}
