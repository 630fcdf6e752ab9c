package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML config file, expands ${ENV} references, applies
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse([]byte(os.ExpandEnv(string(data))))
}

// Parse decodes raw YAML config bytes.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets a handful of deployment-sensitive values be set
// without editing the config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HEARTH_BACKEND_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("HEARTH_BACKEND_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("HEARTH_TOKENS"); v != "" {
		cfg.Server.Tokens = splitList(v)
	}
	if v := os.Getenv("HEARTH_DB_PATH"); v != "" {
		cfg.Sessions.DatabasePath = v
	}
	if v := os.Getenv("HEARTH_TOOL_DIR"); v != "" {
		cfg.Tools.UserDir = v
	}
	if v := os.Getenv("HEARTH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
