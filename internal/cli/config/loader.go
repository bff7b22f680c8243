// Package config defines the CLI configuration structure.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath returns the default CLI config file path.
func DefaultConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".tokmesh", "cli.yaml")
}

// Load loads CLI configuration from file, returning Default() if the file
// does not exist.
func Load(path string) (*CLIConfig, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves CLI configuration to file.
func Save(cfg *CLIConfig, path string) error {
	if path == "" {
		path = DefaultConfigPath()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Merge overrides cfg's fields with any non-empty values from env and
// flags, in that order (flags win).
func Merge(cfg *CLIConfig, env map[string]string, flags map[string]string) *CLIConfig {
	if v, ok := env["TOKMESH_SERVER"]; ok && v != "" {
		cfg.DefaultServer = v
	}
	if v, ok := flags["server"]; ok && v != "" {
		cfg.DefaultServer = v
	}
	if v, ok := flags["output"]; ok && v != "" {
		cfg.DefaultOutput = v
	}
	return cfg
}
