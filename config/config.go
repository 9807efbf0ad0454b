// Package config loads service configuration from defaults, an optional
// config file, and SDCFORMS_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the service settings.
type Config struct {
	// FHIRBaseURL is the base URL of the backing FHIR server.
	FHIRBaseURL string `mapstructure:"fhir_base_url"`

	// FHIRTimeout bounds each request to the FHIR server.
	FHIRTimeout time.Duration `mapstructure:"fhir_timeout"`

	// PackageTimeout bounds one whole package operation.
	PackageTimeout time.Duration `mapstructure:"package_timeout"`

	// Host and Port are the listen address of the HTTP API.
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`

	// CORSOrigins lists allowed CORS origins; "*" allows any.
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		FHIRBaseURL:    "http://hapi-fhir:8080/fhir",
		FHIRTimeout:    30 * time.Second,
		PackageTimeout: 60 * time.Second,
		Host:           "0.0.0.0",
		Port:           8000,
		LogLevel:       "info",
		CORSOrigins:    []string{"*"},
	}
}

// Load reads configuration. An empty file argument searches the default
// locations ("sdcforms.yaml" in the working directory or /etc/sdcforms);
// a non-empty one must exist. Environment variables such as
// SDCFORMS_FHIR_BASE_URL override either.
func Load(file string) (*Config, error) {
	v := viper.New()

	defaults := Default()
	v.SetDefault("fhir_base_url", defaults.FHIRBaseURL)
	v.SetDefault("fhir_timeout", defaults.FHIRTimeout)
	v.SetDefault("package_timeout", defaults.PackageTimeout)
	v.SetDefault("host", defaults.Host)
	v.SetDefault("port", defaults.Port)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("cors_origins", defaults.CORSOrigins)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("sdcforms")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/sdcforms")
	}

	v.SetEnvPrefix("SDCFORMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	return &cfg, nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
