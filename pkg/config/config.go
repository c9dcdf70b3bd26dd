// Package config loads runtime configuration for the tool index from
// a YAML file, with `${VAR}`/`${VAR:-default}` environment expansion
// and an optional .env overlay.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Source describes one tool entry as declared in the config file, as a
// raw map; Config.ToolEntries converts it into a toolsource.LocalSource,
// RemoteSource, or MCPEntry depending on which keys it sets.
type Source map[string]any

// Config is the root configuration document.
type Config struct {
	// CacheRoot is where cloned repositories and installed
	// dependency environments are cached.
	CacheRoot string `yaml:"cache_root"`

	// InterpreterBinary is the Python interpreter used for fresh
	// virtualenvs (defaults to "python3" when empty).
	InterpreterBinary string `yaml:"interpreter_binary"`

	// OracleEndpoint is the optional remote lookup service consulted
	// when a declared tool source resolves to nothing locally.
	OracleEndpoint string `yaml:"oracle_endpoint"`

	// LogLevel names a slog level ("debug", "info", "warn", "error").
	// The toolindex CLI takes its level from --log-level and does not
	// read this field.
	LogLevel string `yaml:"log_level"`

	// MetricsEnabled turns on Prometheus instrumentation.
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// Tools is the ordered list of tool sources to resolve.
	Tools []Source `yaml:"tools"`
}

// Load reads path as YAML, expands `${VAR}`/`${VAR:-default}`
// references against the process environment, and unmarshals the
// result into a Config. Before loading, it overlays ".env"/".env.local"
// into the process environment if present, so expansion can see them.
func Load(path string) (*Config, error) {
	if err := loadDotEnvFiles(); err != nil {
		return nil, fmt.Errorf("loading .env overlay: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("loading config file %q: %w", path, err)
	}

	if err := expandInPlace(k); err != nil {
		return nil, fmt.Errorf("expanding environment variables in %q: %w", path, err)
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("unmarshaling config %q: %w", path, err)
	}

	return cfg, nil
}

func loadDotEnvFiles() error {
	for _, f := range []string{".env.local", ".env"} {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// expandInPlace rewrites every string leaf in k's backing data with
// environment variables substituted, then reloads k from the result.
func expandInPlace(k *koanf.Koanf) error {
	expanded := expandEnvVarsInData(k.Raw())
	asMap, ok := expanded.(map[string]interface{})
	if !ok {
		return fmt.Errorf("unexpected shape after environment expansion")
	}

	reloaded := koanf.New(".")
	if err := reloaded.Load(confmap.Provider(asMap, "."), nil); err != nil {
		return fmt.Errorf("reloading expanded config: %w", err)
	}
	*k = *reloaded
	return nil
}

var (
	envWithDefault = regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*):-(.*?)\}`)
	envBraced      = regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`)
	envSimple      = regexp.MustCompile(`\$([A-Z_][A-Z0-9_]*)`)
)

func expandEnvVars(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}

	s = envWithDefault.ReplaceAllStringFunc(s, func(match string) string {
		parts := envWithDefault.FindStringSubmatch(match)
		if val := os.Getenv(parts[1]); val != "" {
			return val
		}
		return parts[2]
	})

	s = envBraced.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envBraced.FindStringSubmatch(match)[1])
	})

	s = envSimple.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envSimple.FindStringSubmatch(match)[1])
	})

	return s
}

// parseValue converts an expanded env value back to a typed literal
// when it looks like one, so e.g. metrics_enabled: ${METRICS_ENABLED}
// unmarshals into a bool field rather than staying a string.
func parseValue(s string) interface{} {
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	return s
}

func expandEnvVarsInData(data interface{}) interface{} {
	switch v := data.(type) {
	case string:
		expanded := expandEnvVars(v)
		if expanded != v {
			return parseValue(expanded)
		}
		return expanded
	case map[string]interface{}:
		result := make(map[string]interface{}, len(v))
		for key, value := range v {
			result[key] = expandEnvVarsInData(value)
		}
		return result
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, item := range v {
			result[i] = expandEnvVarsInData(item)
		}
		return result
	default:
		return v
	}
}
