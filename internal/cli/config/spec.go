// Package config defines the CLI configuration structure.
package config

// CLIConfig is the configuration for tokmesh-cli.
type CLIConfig struct {
	// DefaultServer is the admin address dialed when --server is not given.
	DefaultServer string `yaml:"default_server"`
	DefaultOutput string `yaml:"default_output"` // table, json, yaml

	// Servers holds named admin targets keyed by profile name. No
	// tokmesh-cli flag selects among them.
	Servers           map[string]ServerConfig `yaml:"servers"`
	CurrentServerName string                  `yaml:"current_server_name"`
}

// ServerConfig stores a named admin server target.
type ServerConfig struct {
	Server string `yaml:"server"`
}

// Default returns the default CLI configuration.
func Default() *CLIConfig {
	return &CLIConfig{
		DefaultServer: "localhost:25080",
		DefaultOutput: "table",
		Servers:       make(map[string]ServerConfig),
	}
}
