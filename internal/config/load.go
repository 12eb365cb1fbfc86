package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML file at path over Default. Unknown keys are errors.
// ${VAR} references in path-like values are expanded from the environment.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes is Load for file contents.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.ExpandEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ExpandEnv expands ${VAR} references in the directory, address and
// endpoint settings.
func (c *Config) ExpandEnv() error {
	for _, f := range []struct {
		name string
		val  *string
	}{
		{"documents", &c.Documents},
		{"dictionaries", &c.Dictionaries},
		{"server.addr", &c.Server.Addr},
		{"otel.endpoint", &c.Otel.Endpoint},
		{"otel.service", &c.Otel.Service},
	} {
		v, err := ExpandEnvStrict(*f.val)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.val = v
	}
	return nil
}
