package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"tasktrail/internal/domain"
)

// Config models tasktrail.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Defaults struct {
		Priority string `yaml:"priority"`
	} `yaml:"defaults"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Defaults.Priority != "" {
		if _, err := domain.ParsePriority(c.Defaults.Priority); err != nil {
			return fmt.Errorf("config.defaults.priority: %w", err)
		}
	}
	return nil
}

// DefaultPriority returns the priority applied when task creation omits one.
func (c *Config) DefaultPriority() domain.Priority {
	if c == nil || c.Defaults.Priority == "" {
		return domain.PriorityMedium
	}
	return domain.Priority(c.Defaults.Priority)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "tasktrail.yml")
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	cfg.Server.Addr = "127.0.0.1:8080"
	cfg.Server.BasePath = "/v0"
	cfg.Defaults.Priority = string(domain.PriorityMedium)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Omitted fields
// fall back to defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}
