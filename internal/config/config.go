// Package config loads loader settings from a YAML file and the environment.
//
// Settings are resolved in order, later sources winning: Default, the YAML
// file, GQL_* environment variables (after .env files are loaded), and
// finally command-line flags, which the CLI applies itself.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds every loader setting.
type Config struct {
	// Documents is the directory holding <id>.gql files.
	Documents string `yaml:"documents"`
	// Dictionaries is the directory holding <id>.js files.
	Dictionaries      string        `yaml:"dictionaries"`
	StrictFields      bool          `yaml:"strict_fields"`
	DictionaryTimeout time.Duration `yaml:"dictionary_timeout"`
	// Warm builds every document when the server starts.
	Warm bool `yaml:"warm"`

	Log    LogConfig    `yaml:"log"`
	Server ServerConfig `yaml:"server"`
	Otel   OtelConfig   `yaml:"otel"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	Pretty       bool          `yaml:"pretty"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	CORS         []string      `yaml:"cors"`
	// Metrics serves Prometheus metrics on /metrics.
	Metrics bool `yaml:"metrics"`
}

type OtelConfig struct {
	// Endpoint is the OTLP gRPC collector address. Tracing is off when empty.
	Endpoint string `yaml:"endpoint"`
	Service  string `yaml:"service"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Documents:         "gql",
		Dictionaries:      "dict",
		DictionaryTimeout: 5 * time.Second,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr:         ":8080",
			Timeout:      10 * time.Second,
			MaxBodyBytes: 1 << 20,
			Metrics:      true,
		},
		Otel: OtelConfig{Service: "graphql-loader"},
	}
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if c.Documents == "" {
		errs = append(errs, errors.New("documents: must not be empty"))
	}
	if c.Dictionaries == "" {
		errs = append(errs, errors.New("dictionaries: must not be empty"))
	}
	if c.DictionaryTimeout < 0 {
		errs = append(errs, errors.New("dictionary_timeout: must not be negative"))
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: must be text or json, got %q", c.Log.Format))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr: must not be empty"))
	}
	if c.Server.Timeout < 0 {
		errs = append(errs, errors.New("server.timeout: must not be negative"))
	}
	if c.Server.MaxBodyBytes < 0 {
		errs = append(errs, errors.New("server.max_body_bytes: must not be negative"))
	}
	if c.Otel.Endpoint != "" && c.Otel.Service == "" {
		errs = append(errs, errors.New("otel.service: required when otel.endpoint is set"))
	}
	return errors.Join(errs...)
}
