package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var envPattern = regexp.MustCompile(`\$\{([A-Za-z0-9_]+)\}`)

// ExpandEnvStrict expands ${VAR} references and errors if any env var is missing.
func ExpandEnvStrict(input string) (string, error) {
	var missing string
	out := envPattern.ReplaceAllStringFunc(input, func(m string) string {
		name := envPattern.FindStringSubmatch(m)[1]
		val, ok := os.LookupEnv(name)
		if !ok && missing == "" {
			missing = name
		}
		return val
	})
	if missing != "" {
		return "", fmt.Errorf("missing env var %s", missing)
	}
	return out, nil
}

// LoadEnv loads the given .env files into the process environment and
// returns the ones that exist. Variables already set are not overridden.
func LoadEnv(files ...string) ([]string, error) {
	var loaded []string
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return loaded, fmt.Errorf("load %s: %w", f, err)
		}
		loaded = append(loaded, f)
	}
	return loaded, nil
}

// LookupFunc looks up an environment variable.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides settings from GQL_* variables.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	var errs []error
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("GQL_DOCUMENTS", &c.Documents)
	str("GQL_DICTIONARIES", &c.Dictionaries)
	boolean("GQL_STRICT_FIELDS", &c.StrictFields)
	duration("GQL_DICTIONARY_TIMEOUT", &c.DictionaryTimeout)
	boolean("GQL_WARM", &c.Warm)
	str("GQL_LOG_LEVEL", &c.Log.Level)
	str("GQL_LOG_FORMAT", &c.Log.Format)
	str("GQL_ADDR", &c.Server.Addr)
	boolean("GQL_PRETTY", &c.Server.Pretty)
	duration("GQL_TIMEOUT", &c.Server.Timeout)
	boolean("GQL_METRICS", &c.Server.Metrics)
	if v, ok := lookup("GQL_MAX_BODY_BYTES"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("GQL_MAX_BODY_BYTES: %w", err))
		} else {
			c.Server.MaxBodyBytes = n
		}
	}
	if v, ok := lookup("GQL_CORS"); ok {
		c.Server.CORS = SplitList(v)
	}
	str("GQL_OTEL_ENDPOINT", &c.Otel.Endpoint)
	str("GQL_OTEL_SERVICE", &c.Otel.Service)

	if len(errs) > 0 {
		return fmt.Errorf("environment: %w", errors.Join(errs...))
	}
	return nil
}

// SplitList splits a comma-separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
